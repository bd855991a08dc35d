package alchemy

type addressNetworks struct {
	Address  string   `json:"address"`
	Networks []string `json:"networks"`
}

type tokensRequest struct {
	Addresses           []addressNetworks `json:"addresses"`
	WithMetadata        bool              `json:"withMetadata"`
	WithPrices          bool              `json:"withPrices"`
	IncludeNativeTokens bool              `json:"includeNativeTokens"`
	IncludeErc20Tokens  bool              `json:"includeErc20Tokens"`
	PageKey             string            `json:"pageKey,omitempty"`
}

type tokenMetadata struct {
	Decimals *int32  `json:"decimals"`
	Logo     *string `json:"logo"`
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
}

type tokenPrice struct {
	Currency      string `json:"currency"`
	Value         string `json:"value"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

type token struct {
	Address       string        `json:"address"`
	Network       string        `json:"network"`
	TokenAddress  *string       `json:"tokenAddress"`
	TokenBalance  string        `json:"tokenBalance"`
	TokenMetadata tokenMetadata `json:"tokenMetadata"`
	TokenPrices   []tokenPrice  `json:"tokenPrices"`
	Error         *string       `json:"error"`
}

type tokensResponse struct {
	Data struct {
		Tokens  []token `json:"tokens"`
		PageKey string  `json:"pageKey"`
	} `json:"data"`
}

type nftsRequest struct {
	Addresses    []addressNetworks `json:"addresses"`
	WithMetadata bool              `json:"withMetadata"`
	PageKey      string            `json:"pageKey,omitempty"`
	PageSize     int               `json:"pageSize,omitempty"`
}

type nftImage struct {
	CachedURL    *string `json:"cachedUrl"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	OriginalURL  *string `json:"originalUrl"`
}

type nftRaw struct {
	TokenURI *string `json:"tokenUri"`
	Metadata *struct {
		Image *string `json:"image"`
		Name  *string `json:"name"`
	} `json:"metadata"`
}

type nftContract struct {
	Address   string  `json:"address"`
	Name      *string `json:"name"`
	TokenType string  `json:"tokenType"`
}

type nft struct {
	Address         string       `json:"address"`
	Network         string       `json:"network"`
	TokenID         string       `json:"tokenId"`
	TokenType       string       `json:"tokenType"`
	ContractAddress string       `json:"contractAddress"`
	Contract        *nftContract `json:"contract"`
	Balance         string       `json:"balance"`
	Name            *string      `json:"name"`
	Title           *string      `json:"title"`
	Image           *nftImage    `json:"image"`
	Raw             *nftRaw      `json:"raw"`
	Collection      *struct {
		Name *string `json:"name"`
	} `json:"collection"`
	Error *string `json:"error"`
}

type nftsResponse struct {
	Data struct {
		NFTs       []nft  `json:"nfts"`
		TotalCount int    `json:"totalCount"`
		PageKey    string `json:"pageKey"`
	} `json:"data"`
}
