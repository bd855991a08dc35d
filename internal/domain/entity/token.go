package entity

import "time"

// PositionKind classifies how a token is held.
type PositionKind string

const (
	PositionWallet  PositionKind = "wallet"
	PositionDeposit PositionKind = "deposit"
	PositionReward  PositionKind = "reward"
	PositionStaked  PositionKind = "staked"
	PositionAirdrop PositionKind = "airdrop"
	PositionMargin  PositionKind = "margin"
	PositionUnknown PositionKind = "unknown"
)

// ParsePositionKind maps an upstream position type onto a PositionKind.
func ParsePositionKind(s string) PositionKind {
	switch k := PositionKind(s); k {
	case PositionWallet, PositionDeposit, PositionReward, PositionStaked, PositionAirdrop, PositionMargin:
		return k
	default:
		return PositionUnknown
	}
}

// TokenMetadata is the descriptive part of a token, used for enrichment.
type TokenMetadata struct {
	ChainID  int64  `json:"chainId"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	Logo     string `json:"logo,omitempty"`
}

// TokenPosition is a normalized fungible holding of one wallet on one chain.
// TokenAddress is nil exactly when the position is the chain's native asset.
type TokenPosition struct {
	ID             string       `json:"id"`
	ChainID        int64        `json:"chainId"`
	WalletAddress  string       `json:"walletAddress"`
	TokenAddress   *string      `json:"tokenAddress"`
	BalanceRaw     string       `json:"balanceRaw"`
	BalanceFloat   float64      `json:"balanceFloat"`
	Decimals       int32        `json:"decimals"`
	Symbol         string       `json:"symbol"`
	Name           string       `json:"name"`
	Logo           string       `json:"logo,omitempty"`
	PriceUSD       float64      `json:"priceUsd"`
	ValueUSD       float64      `json:"valueUsd"`
	PositionKind   PositionKind `json:"positionKind"`
	Protocol       *string      `json:"protocol"`
	IsVerified     bool         `json:"isVerified"`
	IsNative       bool         `json:"isNative"`
	SourceProvider ProviderName `json:"sourceProvider"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Reprice sets the USD price and keeps ValueUSD consistent with it.
func (p *TokenPosition) Reprice(priceUSD float64) {
	p.PriceUSD = priceUSD
	p.ValueUSD = p.BalanceFloat * priceUSD
}

// NFTItem is a single NFT held by a wallet.
type NFTItem struct {
	ChainID         int64        `json:"chainId"`
	ContractAddress string       `json:"contractAddress"`
	TokenID         string       `json:"tokenId"`
	TokenType       string       `json:"tokenType"`
	Name            string       `json:"name"`
	CollectionName  string       `json:"collectionName,omitempty"`
	ImageURL        string       `json:"imageUrl,omitempty"`
	Balance         string       `json:"balance"`
	SourceProvider  ProviderName `json:"sourceProvider"`
}
