package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// PositionProvider is an upstream adapter that returns fungible positions.
type PositionProvider interface {
	Name() entity.ProviderName
	GetPositions(ctx context.Context, address string, chainIDs []int64, opts entity.FetchOptions) ([]entity.TokenPosition, error)
}

// TransactionProvider is an upstream adapter that returns deduplicated transaction history.
type TransactionProvider interface {
	Name() entity.ProviderName
	GetTransactions(ctx context.Context, address string, chainID int64, filters entity.TransactionFilters) ([]entity.Transaction, error)
}

// NFTProvider is an upstream adapter that returns NFT holdings.
type NFTProvider interface {
	GetNFTs(ctx context.Context, address string, chainIDs []int64, pageLimit int) ([]entity.NFTItem, error)
}

// ChainRegistry exposes the static chain table.
type ChainRegistry interface {
	Get(chainID int64) (entity.ChainDefinition, bool)
	All() []entity.ChainDefinition
}
