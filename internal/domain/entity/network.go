package entity

// ProviderName identifies an upstream data provider.
type ProviderName string

const (
	ProviderZerion    ProviderName = "zerion"
	ProviderAlchemy   ProviderName = "alchemy"
	ProviderEtherscan ProviderName = "etherscan"
)

// ChainDefinition holds the static configuration for a blockchain network.
// Upstream-specific identifiers are empty when that upstream does not cover the chain.
type ChainDefinition struct {
	ChainID           int64        `json:"chainId" yaml:"chainId"`
	Name              string       `json:"name" yaml:"name"`
	NativeSymbol      string       `json:"nativeSymbol" yaml:"nativeSymbol"`
	NativeName        string       `json:"nativeName" yaml:"nativeName"`
	Decimals          int32        `json:"decimals" yaml:"decimals"`
	ZerionID          string       `json:"zerionId,omitempty" yaml:"zerionId,omitempty"`
	AlchemyNetwork    string       `json:"alchemyNetwork,omitempty" yaml:"alchemyNetwork,omitempty"`
	DEXScreenerID     string       `json:"dexScreenerId,omitempty" yaml:"dexScreenerId,omitempty"`
	ExplorerSupported bool         `json:"explorerSupported" yaml:"explorerSupported"`
	PreferredProvider ProviderName `json:"preferredProvider" yaml:"preferredProvider"`
}
