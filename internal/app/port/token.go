package port

import (
	"context"

	"portfolio_aggregator/internal/domain/entity"
)

// TokenMetadataSource resolves descriptive token metadata.
type TokenMetadataSource interface {
	Lookup(ctx context.Context, chainID int64, address string) (entity.TokenMetadata, bool, error)
}

// TokenPriceService fills in USD prices that the position upstream did not provide.
type TokenPriceService interface {
	Backfill(ctx context.Context, positions []entity.TokenPosition) int
}
