package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// PortfolioService aggregates a wallet's fungible positions across chains.
type PortfolioService interface {
	GetPortfolio(ctx context.Context, address string, chainIDs []int64, opts entity.PortfolioOptions) (entity.AggregatedPortfolio, error)
}

// TransactionService returns a wallet's transaction history on one chain.
type TransactionService interface {
	GetTransactions(ctx context.Context, address string, chainID int64, filters entity.TransactionFilters) (entity.TransactionHistory, error)
}

// NFTService returns a wallet's NFT holdings.
type NFTService interface {
	GetNFTs(ctx context.Context, address string, chainIDs []int64, pageLimit int) (entity.NFTCollection, error)
}
