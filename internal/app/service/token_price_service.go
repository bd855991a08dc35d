package service

import (
	"context"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/upstream/dexscreener"
	"portfolio_aggregator/internal/pkg/utils"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPriceTTL   = 60 * time.Minute
	priceFetchWorkers = 3
	noPriceSentinel   = -1.0
)

// PairSource is the DEX Screener surface used for price backfill.
type PairSource interface {
	GetTokenPairs(ctx context.Context, chainID string, tokenAddresses []string) ([]dexscreener.Pair, error)
	MaxTokensPerRequest() int
}

// ChainIDMapping translates canonical chain IDs into DEX Screener chain slugs.
type ChainIDMapping interface {
	Upstream(chainID int64) (string, bool)
}

// PriceService fills in USD prices that the position upstream left at zero.
// Lookups, including misses, are cached per (chain, token).
type PriceService struct {
	pairs  PairSource
	ids    ChainIDMapping
	prices *gocache.Cache
	logger *zap.Logger
}

// NewPriceService creates a PriceService whose cached prices live for ttl.
func NewPriceService(pairs PairSource, ids ChainIDMapping, ttl time.Duration, logger *zap.Logger) *PriceService {
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &PriceService{
		pairs:  pairs,
		ids:    ids,
		prices: gocache.New(ttl, 2*ttl),
		logger: logger.Named("PriceService"),
	}
}

func priceKey(dexID, address string) string {
	return dexID + ":" + address
}

func needsPrice(p entity.TokenPosition) bool {
	return p.PriceUSD == 0 && p.TokenAddress != nil && p.BalanceFloat > 0
}

// Backfill reprices positions in place and returns how many got a price.
// Failures are logged and leave the affected positions untouched.
func (s *PriceService) Backfill(ctx context.Context, positions []entity.TokenPosition) int {
	missing := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, p := range positions {
		if !needsPrice(p) {
			continue
		}
		dexID, ok := s.ids.Upstream(p.ChainID)
		if !ok {
			continue
		}
		addr := strings.ToLower(*p.TokenAddress)
		key := priceKey(dexID, addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, cached := s.prices.Get(key); cached {
			continue
		}
		missing[dexID] = append(missing[dexID], addr)
	}

	if len(missing) > 0 {
		s.fetch(ctx, missing)
	}

	repriced := 0
	for i := range positions {
		p := &positions[i]
		if !needsPrice(*p) {
			continue
		}
		dexID, ok := s.ids.Upstream(p.ChainID)
		if !ok {
			continue
		}
		v, ok := s.prices.Get(priceKey(dexID, strings.ToLower(*p.TokenAddress)))
		if !ok {
			continue
		}
		if price := v.(float64); price > 0 {
			p.Reprice(price)
			repriced++
		}
	}
	return repriced
}

func (s *PriceService) fetch(ctx context.Context, missing map[string][]string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceFetchWorkers)

	for dexID, addrs := range missing {
		for _, batch := range utils.Batch(addrs, s.pairs.MaxTokensPerRequest()) {
			g.Go(func() error {
				pairs, err := s.pairs.GetTokenPairs(gctx, dexID, batch)
				if err != nil {
					s.logger.Warn("Price backfill request failed",
						zap.String("chain", dexID),
						zap.Int("tokens", len(batch)),
						zap.Error(err))
					return nil
				}
				for _, addr := range batch {
					s.prices.SetDefault(priceKey(dexID, addr), pickPrice(pairs, addr))
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// pickPrice returns the best USD price for addr, or noPriceSentinel when no usable
// pair exists, so that repeated lookups of unpriced tokens stay cached.
func pickPrice(pairs []dexscreener.Pair, addr string) float64 {
	raw, ok := dexscreener.BestPrice(pairs, addr)
	if !ok {
		return noPriceSentinel
	}
	price, err := utils.ParseDecimalFloat(raw)
	if err != nil || price <= 0 {
		return noPriceSentinel
	}
	return price
}
