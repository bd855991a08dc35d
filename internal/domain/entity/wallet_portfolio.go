package entity

// ProviderResult is a single page returned by an upstream call.
// NextCursor is empty when there are no further pages.
type ProviderResult[T any] struct {
	Items        []T          `json:"items"`
	NextCursor   string       `json:"nextCursor,omitempty"`
	ProviderName ProviderName `json:"providerName"`
}

// PortfolioOptions controls how positions are fetched and presented.
type PortfolioOptions struct {
	AllPages      bool `json:"allPages"`
	PageLimit     int  `json:"pageLimit"`
	PageSize      int  `json:"pageSize"`
	HideZeroValue bool `json:"hideZeroValue"`
}

// FetchOptions is the subset of PortfolioOptions passed to an adapter.
type FetchOptions struct {
	PageLimit int
	PageSize  int
}

// AggregatedPortfolio is the merged view of a wallet across every requested chain.
// ProvidersUsed maps each provider that was asked for a partition to whether it succeeded.
type AggregatedPortfolio struct {
	WalletAddress string                `json:"walletAddress"`
	ChainIDs      []int64               `json:"chainIds"`
	Positions     []TokenPosition       `json:"positions"`
	TotalUSDValue float64               `json:"totalUsdValue"`
	ProvidersUsed map[ProviderName]bool `json:"providersUsed"`
	ChainErrors   map[int64]string      `json:"chainErrors,omitempty"`
}

// NFTCollection is the merged NFT view of a wallet.
type NFTCollection struct {
	WalletAddress string           `json:"walletAddress"`
	Items         []NFTItem        `json:"items"`
	ChainErrors   map[int64]string `json:"chainErrors,omitempty"`
}

// TransactionHistory is the merged transaction list of a wallet on one chain.
type TransactionHistory struct {
	WalletAddress string        `json:"walletAddress"`
	ChainID       int64         `json:"chainId"`
	Transactions  []Transaction `json:"transactions"`
	Source        ProviderName  `json:"source"`
}
