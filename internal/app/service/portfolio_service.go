// Package service holds the use cases behind the REST surface: portfolio
// aggregation, transaction history, NFT holdings and price backfill.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/provider"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/cache"
	"portfolio_aggregator/internal/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPortfolioTTL = 5 * time.Minute

// Partitioner splits requested chains into per-provider partitions.
type Partitioner interface {
	Partition(chainIDs []int64) ([]provider.Partition, []int64)
}

// PortfolioConfig tunes PortfolioService.
type PortfolioConfig struct {
	CacheTTL                time.Duration
	MaxConcurrentPartitions int
	// DefaultPageLimit applies when AllPages is set without an explicit PageLimit. Zero is unbounded.
	DefaultPageLimit int
}

// PortfolioService implements port.PortfolioService.
type PortfolioService struct {
	cfg       PortfolioConfig
	chains    port.ChainRegistry
	router    Partitioner
	providers map[entity.ProviderName]port.PositionProvider
	prices    port.TokenPriceService
	cache     *cache.Layer
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewPortfolioService creates a PortfolioService. prices, cacheLayer and tracer may be nil.
func NewPortfolioService(
	cfg PortfolioConfig,
	chains port.ChainRegistry,
	router Partitioner,
	providers []port.PositionProvider,
	prices port.TokenPriceService,
	cacheLayer *cache.Layer,
	tracer trace.Tracer,
	logger *zap.Logger,
) *PortfolioService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultPortfolioTTL
	}
	if cfg.MaxConcurrentPartitions <= 0 {
		cfg.MaxConcurrentPartitions = 4
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("aggregator")
	}
	byName := make(map[entity.ProviderName]port.PositionProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &PortfolioService{
		cfg:       cfg,
		chains:    chains,
		router:    router,
		providers: byName,
		prices:    prices,
		cache:     cacheLayer,
		tracer:    tracer,
		logger:    logger.Named("AggregationService"),
	}
}

type portfolioKey struct {
	Address  string                  `json:"address"`
	ChainIDs []int64                 `json:"chainIds"`
	Options  entity.PortfolioOptions `json:"options"`
}

// GetPortfolio returns the merged positions of address on chainIDs.
// A failing provider partition is reported in ChainErrors and does not fail the call
// unless every partition failed.
func (s *PortfolioService) GetPortfolio(ctx context.Context, address string, chainIDs []int64, opts entity.PortfolioOptions) (entity.AggregatedPortfolio, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return entity.AggregatedPortfolio{}, err
	}
	chainIDs, err = normalizeChains(s.chains, chainIDs)
	if err != nil {
		return entity.AggregatedPortfolio{}, err
	}
	if opts.PageLimit < 0 || opts.PageSize < 0 {
		return entity.AggregatedPortfolio{}, entity.NewValidationError("", "pageLimit and pageSize must not be negative", nil)
	}
	if !opts.AllPages {
		opts.PageLimit = 1
	} else if opts.PageLimit == 0 {
		opts.PageLimit = s.cfg.DefaultPageLimit
	}

	key := portfolioKey{Address: address, ChainIDs: chainIDs, Options: opts}
	return cache.Cached(ctx, s.cache, cache.NamespacePortfolio, key, s.cfg.CacheTTL,
		func(ctx context.Context) (entity.AggregatedPortfolio, error) {
			return s.aggregate(ctx, address, chainIDs, opts)
		},
		cache.ShouldCache(func(p entity.AggregatedPortfolio) bool { return len(p.ChainErrors) == 0 }),
	)
}

type partitionOutcome struct {
	positions []entity.TokenPosition
	err       error
}

func (s *PortfolioService) aggregate(ctx context.Context, address string, chainIDs []int64, opts entity.PortfolioOptions) (entity.AggregatedPortfolio, error) {
	ctx, span := s.tracer.Start(ctx, "aggregator.GetPortfolio", trace.WithAttributes(
		attribute.String("wallet", address),
		attribute.Int64Slice("chains", chainIDs),
	))
	defer span.End()

	result := entity.AggregatedPortfolio{
		WalletAddress: address,
		ChainIDs:      chainIDs,
		Positions:     []entity.TokenPosition{},
		ProvidersUsed: make(map[entity.ProviderName]bool),
	}

	partitions, unrouted := s.router.Partition(chainIDs)
	for _, id := range unrouted {
		setChainError(&result.ChainErrors, id, "no provider routes this chain")
	}

	outcomes := make([]partitionOutcome, len(partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentPartitions)
	fetch := entity.FetchOptions{PageLimit: opts.PageLimit, PageSize: opts.PageSize}
	for i, part := range partitions {
		g.Go(func() error {
			outcomes[i] = s.fetchPartition(gctx, address, part, fetch)
			// Failures stay in the outcome so siblings are never cancelled.
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var firstErr error
	for i, part := range partitions {
		out := outcomes[i]
		if out.err != nil {
			failed++
			if firstErr == nil {
				firstErr = out.err
			}
			result.ProvidersUsed[part.Provider] = false
			for _, id := range part.ChainIDs {
				setChainError(&result.ChainErrors, id, out.err.Error())
			}
			metrics.PartitionFailures.WithLabelValues(string(part.Provider)).Inc()
			s.logger.Warn("Provider partition failed",
				zap.String("provider", string(part.Provider)),
				zap.Int64s("chains", part.ChainIDs),
				zap.String("wallet", address),
				zap.Error(out.err))
			continue
		}
		result.ProvidersUsed[part.Provider] = true
		result.Positions = append(result.Positions, out.positions...)
	}

	if len(partitions) > 0 && failed == len(partitions) {
		span.SetStatus(codes.Error, firstErr.Error())
		return entity.AggregatedPortfolio{}, fmt.Errorf("every provider partition failed: %w", firstErr)
	}

	if s.prices != nil {
		if n := s.prices.Backfill(ctx, result.Positions); n > 0 {
			s.logger.Debug("Backfilled missing prices", zap.Int("positions", n))
		}
	}

	result.Positions = finalizePositions(result.Positions, opts.HideZeroValue)
	for _, p := range result.Positions {
		result.TotalUSDValue += p.ValueUSD
	}

	span.SetAttributes(
		attribute.Int("positions", len(result.Positions)),
		attribute.Int("failedPartitions", failed),
	)
	s.logger.Info("Portfolio aggregated",
		zap.String("wallet", address),
		zap.Int("positions", len(result.Positions)),
		zap.Float64("totalUsd", result.TotalUSDValue),
		zap.Int("failedPartitions", failed))
	return result, nil
}

func (s *PortfolioService) fetchPartition(ctx context.Context, address string, part provider.Partition, opts entity.FetchOptions) partitionOutcome {
	ctx, span := s.tracer.Start(ctx, "aggregator.partition", trace.WithAttributes(
		attribute.String("provider", string(part.Provider)),
		attribute.Int64Slice("chains", part.ChainIDs),
	))
	defer span.End()

	adapter, ok := s.providers[part.Provider]
	if !ok {
		err := fmt.Errorf("%s: %w", part.Provider, entity.ErrProviderNotConfigured)
		span.SetStatus(codes.Error, err.Error())
		return partitionOutcome{err: err}
	}

	positions, err := adapter.GetPositions(ctx, address, part.ChainIDs, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return partitionOutcome{err: err}
	}
	span.SetAttributes(attribute.Int("positions", len(positions)))
	return partitionOutcome{positions: positions}
}

// finalizePositions drops zero-value entries when requested and orders the
// rest by descending USD value. Ties keep their merge order.
func finalizePositions(positions []entity.TokenPosition, hideZero bool) []entity.TokenPosition {
	if hideZero {
		kept := positions[:0]
		for _, p := range positions {
			if p.ValueUSD > 0 {
				kept = append(kept, p)
			}
		}
		positions = kept
	}
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].ValueUSD > positions[j].ValueUSD })
	return positions
}

func setChainError(errs *map[int64]string, chainID int64, msg string) {
	if *errs == nil {
		*errs = make(map[int64]string)
	}
	(*errs)[chainID] = msg
}

var (
	_ port.PortfolioService   = (*PortfolioService)(nil)
	_ port.TransactionService = (*TransactionService)(nil)
	_ port.NFTService         = (*NFTService)(nil)
	_ port.TokenPriceService  = (*PriceService)(nil)
)
