package zerion

// Response envelope shared by Zerion list endpoints.
type listResponse[T any] struct {
	Links struct {
		Self string `json:"self"`
		Next string `json:"next"`
	} `json:"links"`
	Data []T `json:"data"`
}

type chainRelationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type relationships struct {
	Chain chainRelationship `json:"chain"`
}

type quantity struct {
	Int      string  `json:"int"`
	Decimals int32   `json:"decimals"`
	Float    float64 `json:"float"`
	Numeric  string  `json:"numeric"`
}

type implementation struct {
	ChainID  string  `json:"chain_id"`
	Address  *string `json:"address"`
	Decimals int32   `json:"decimals"`
}

type fungibleInfo struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Icon   *struct {
		URL string `json:"url"`
	} `json:"icon"`
	Flags struct {
		Verified *bool `json:"verified"`
	} `json:"flags"`
	Implementations []implementation `json:"implementations"`
}

type positionAttributes struct {
	Parent       *string      `json:"parent"`
	Protocol     *string      `json:"protocol"`
	Name         string       `json:"name"`
	PositionType string       `json:"position_type"`
	Quantity     quantity     `json:"quantity"`
	Value        *float64     `json:"value"`
	Price        *float64     `json:"price"`
	FungibleInfo fungibleInfo `json:"fungible_info"`
	Flags        struct {
		Displayable bool `json:"displayable"`
		IsTrash     bool `json:"is_trash"`
	} `json:"flags"`
	UpdatedAt string `json:"updated_at"`
}

type position struct {
	Type          string             `json:"type"`
	ID            string             `json:"id"`
	Attributes    positionAttributes `json:"attributes"`
	Relationships relationships      `json:"relationships"`
}

type nftInfo struct {
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
	Name            string `json:"name"`
}

type transfer struct {
	FungibleInfo *fungibleInfo `json:"fungible_info"`
	NFTInfo      *nftInfo      `json:"nft_info"`
	Direction    string        `json:"direction"`
	Quantity     quantity      `json:"quantity"`
	Sender       string        `json:"sender"`
	Recipient    string        `json:"recipient"`
}

type transactionAttributes struct {
	OperationType string     `json:"operation_type"`
	Hash          string     `json:"hash"`
	MinedAt       string     `json:"mined_at"`
	SentFrom      string     `json:"sent_from"`
	SentTo        string     `json:"sent_to"`
	Status        string     `json:"status"`
	Transfers     []transfer `json:"transfers"`
}

type transaction struct {
	Type          string                `json:"type"`
	ID            string                `json:"id"`
	Attributes    transactionAttributes `json:"attributes"`
	Relationships relationships         `json:"relationships"`
}
