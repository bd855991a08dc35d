package service

import (
	"context"
	"fmt"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/cache"

	"go.uber.org/zap"
)

const defaultNFTsTTL = 10 * time.Minute

// NFTService implements port.NFTService on top of the wallet-data upstream.
type NFTService struct {
	provider port.NFTProvider
	chains   port.ChainRegistry
	cache    *cache.Layer
	ttl      time.Duration
	logger   *zap.Logger
}

// NewNFTService creates an NFTService. provider may be nil when no key is configured.
func NewNFTService(provider port.NFTProvider, chains port.ChainRegistry, cacheLayer *cache.Layer, ttl time.Duration, logger *zap.Logger) *NFTService {
	if ttl <= 0 {
		ttl = defaultNFTsTTL
	}
	return &NFTService{
		provider: provider,
		chains:   chains,
		cache:    cacheLayer,
		ttl:      ttl,
		logger:   logger.Named("NFTService"),
	}
}

type nftsKey struct {
	Address   string  `json:"address"`
	ChainIDs  []int64 `json:"chainIds"`
	PageLimit int     `json:"pageLimit"`
}

// GetNFTs returns the NFTs held by address. Chains the upstream does not cover
// are listed in ChainErrors.
func (s *NFTService) GetNFTs(ctx context.Context, address string, chainIDs []int64, pageLimit int) (entity.NFTCollection, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return entity.NFTCollection{}, err
	}
	chainIDs, err = normalizeChains(s.chains, chainIDs)
	if err != nil {
		return entity.NFTCollection{}, err
	}
	if pageLimit < 0 {
		return entity.NFTCollection{}, entity.NewValidationError("", "pageLimit must not be negative", nil)
	}
	if s.provider == nil {
		return entity.NFTCollection{}, fmt.Errorf("nfts: %w", entity.ErrProviderNotConfigured)
	}

	key := nftsKey{Address: address, ChainIDs: chainIDs, PageLimit: pageLimit}
	return cache.Cached(ctx, s.cache, cache.NamespaceNFTs, key, s.ttl,
		func(ctx context.Context) (entity.NFTCollection, error) {
			return s.collect(ctx, address, chainIDs, pageLimit)
		})
}

func (s *NFTService) collect(ctx context.Context, address string, chainIDs []int64, pageLimit int) (entity.NFTCollection, error) {
	out := entity.NFTCollection{WalletAddress: address, Items: []entity.NFTItem{}}

	covered := make([]int64, 0, len(chainIDs))
	for _, id := range chainIDs {
		def, _ := s.chains.Get(id)
		if def.AlchemyNetwork == "" {
			setChainError(&out.ChainErrors, id, "NFT holdings are not available for this chain")
			continue
		}
		covered = append(covered, id)
	}
	if len(covered) == 0 {
		return out, nil
	}

	items, err := s.provider.GetNFTs(ctx, address, covered, pageLimit)
	if err != nil {
		s.logger.Warn("NFT fetch failed", zap.String("wallet", address), zap.Int64s("chains", covered), zap.Error(err))
		return entity.NFTCollection{}, err
	}
	out.Items = append(out.Items, items...)
	return out, nil
}
