package entity

import (
	"fmt"
	"strings"
	"time"
)

// TransferLine is one asset movement inside a transaction.
type TransferLine struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	IsNFT           bool    `json:"isNft"`
	SymbolOrName    string  `json:"symbolOrName"`
	Decimals        int32   `json:"decimals"`
	Amount          string  `json:"amount"`
	ContractAddress *string `json:"contractAddress,omitempty"`
	TokenID         *string `json:"tokenId,omitempty"`
}

// Transaction is a normalized on-chain transaction.
type Transaction struct {
	Hash      string         `json:"hash"`
	ChainID   int64          `json:"chainId"`
	MinedAt   time.Time      `json:"minedAt"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Status    string         `json:"status"`
	Transfers []TransferLine `json:"transfers"`
}

// IdentityKey returns the composite (hash, chain) key that identifies a transaction
// across pages and sources. Hashes compare case-insensitively.
func (t Transaction) IdentityKey() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(t.Hash), t.ChainID)
}

// TransactionKey is the key function used when deduplicating transactions.
// Transactions without a hash cannot be keyed.
func TransactionKey(t Transaction) (string, bool) {
	if t.Hash == "" {
		return "", false
	}
	return t.IdentityKey(), true
}

// TransactionFilters narrows an explorer transaction query.
type TransactionFilters struct {
	StartBlock            int64  `json:"startBlock"`
	EndBlock              int64  `json:"endBlock"`
	Sort                  string `json:"sort"`
	PageSize              int    `json:"pageSize"`
	PageLimit             int    `json:"pageLimit"`
	IncludeTokenTransfers bool   `json:"includeTokenTransfers"`
}
