package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/provider"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/cache"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
)

const testWallet = "0x8f8e8b3c4de76a31971fe6a87297d8f703be8570"

type fakePositions struct {
	name entity.ProviderName
	err  error
	fn   func(chainIDs []int64) []entity.TokenPosition

	mu    sync.Mutex
	calls int
	opts  []entity.FetchOptions
	// started, when set, is signalled on entry and the call blocks until release closes.
	started chan<- entity.ProviderName
	release <-chan struct{}
}

func (f *fakePositions) Name() entity.ProviderName { return f.name }

func (f *fakePositions) GetPositions(ctx context.Context, _ string, chainIDs []int64, opts entity.FetchOptions) ([]entity.TokenPosition, error) {
	f.mu.Lock()
	f.calls++
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- f.name
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.fn(chainIDs), nil
}

func position(chainID int64, symbol string, balance, price float64, source entity.ProviderName) entity.TokenPosition {
	return entity.TokenPosition{
		ID:             symbol,
		ChainID:        chainID,
		WalletAddress:  testWallet,
		BalanceFloat:   balance,
		Decimals:       18,
		Symbol:         symbol,
		PriceUSD:       price,
		ValueUSD:       balance * price,
		PositionKind:   entity.PositionWallet,
		IsNative:       true,
		SourceProvider: source,
	}
}

func perChain(source entity.ProviderName, symbol string, value float64) func([]int64) []entity.TokenPosition {
	return func(chainIDs []int64) []entity.TokenPosition {
		out := make([]entity.TokenPosition, 0, len(chainIDs))
		for _, id := range chainIDs {
			out = append(out, position(id, symbol, 1, value, source))
		}
		return out
	}
}

// splitRouter sends chain 1 to zerion and everything else to alchemy.
func splitRouter() *provider.Router {
	return provider.NewRouter(provider.RouterConfig{
		Preferences: map[int64]entity.ProviderName{
			1:    entity.ProviderZerion,
			10:   entity.ProviderAlchemy,
			8453: entity.ProviderAlchemy,
		},
	})
}

func newPortfolioService(cacheLayer *cache.Layer, prices port.TokenPriceService, providers ...port.PositionProvider) *PortfolioService {
	chains := networkdefinition.NewRegistry(zap.NewNop(), []int64{1, 10, 8453})
	return NewPortfolioService(PortfolioConfig{MaxConcurrentPartitions: 4}, chains, splitRouter(), providers, prices, cacheLayer, nil, zap.NewNop())
}

func TestGetPortfolioIsolatesFailedPartition(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 3000)}
	b := &fakePositions{name: entity.ProviderAlchemy, err: entity.NewApplicationError(entity.ProviderAlchemy, 500, "boom")}
	svc := newPortfolioService(nil, nil, a, b)

	got, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1, 10, 8453}, entity.PortfolioOptions{})
	if err != nil {
		t.Fatalf("partial failure must not surface as an error: %v", err)
	}
	if len(got.Positions) != 1 || got.Positions[0].SourceProvider != entity.ProviderZerion {
		t.Fatalf("expected only zerion positions, got %+v", got.Positions)
	}
	if !got.ProvidersUsed[entity.ProviderZerion] || got.ProvidersUsed[entity.ProviderAlchemy] {
		t.Fatalf("unexpected providersUsed %v", got.ProvidersUsed)
	}
	if _, ok := got.ProvidersUsed[entity.ProviderAlchemy]; !ok {
		t.Fatalf("failed provider must still be listed")
	}
	if got.ChainErrors[10] == "" || got.ChainErrors[8453] == "" || got.ChainErrors[1] != "" {
		t.Fatalf("unexpected chain errors %v", got.ChainErrors)
	}
	if got.TotalUSDValue != 3000 {
		t.Fatalf("expected total 3000, got %v", got.TotalUSDValue)
	}
}

func TestGetPortfolioRunsPartitionsConcurrently(t *testing.T) {
	t.Parallel()

	started := make(chan entity.ProviderName, 2)
	release := make(chan struct{})
	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 1), started: started, release: release}
	b := &fakePositions{name: entity.ProviderAlchemy, fn: perChain(entity.ProviderAlchemy, "OP", 1), started: started, release: release}
	svc := newPortfolioService(nil, nil, a, b)

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1, 10}, entity.PortfolioOptions{})
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("partitions were not in flight at the same time")
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetPortfolioHidesZeroValueNativeBalance(t *testing.T) {
	t.Parallel()

	raw, err := utils.ParseRawBalance("0x0")
	if err != nil {
		t.Fatalf("parse raw balance: %v", err)
	}
	empty := position(1, "ETH", utils.ToFloat(raw, 18), 3000, entity.ProviderZerion)
	empty.BalanceRaw = "0x0"
	usdc := position(1, "USDC", 25, 1, entity.ProviderZerion)
	a := &fakePositions{name: entity.ProviderZerion, fn: func([]int64) []entity.TokenPosition {
		return []entity.TokenPosition{empty, usdc}
	}}
	svc := newPortfolioService(nil, nil, a)

	all, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all.Positions) != 2 {
		t.Fatalf("zero-value position must be kept by default, got %d", len(all.Positions))
	}
	zero := all.Positions[1]
	if zero.Symbol != "ETH" || zero.BalanceFloat != 0 || zero.ValueUSD != 0 {
		t.Fatalf("unexpected zero position %+v", zero)
	}

	nonZero, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{HideZeroValue: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nonZero.Positions) != 1 || nonZero.Positions[0].Symbol != "USDC" {
		t.Fatalf("expected only USDC, got %+v", nonZero.Positions)
	}
	if nonZero.TotalUSDValue != 25 {
		t.Fatalf("unexpected total %v", nonZero.TotalUSDValue)
	}
}

func TestGetPortfolioSortsByValueAndTotals(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 10)}
	b := &fakePositions{name: entity.ProviderAlchemy, fn: perChain(entity.ProviderAlchemy, "OP", 50)}
	svc := newPortfolioService(nil, nil, a, b)

	got, err := svc.GetPortfolio(context.Background(), testWallet, []int64{8453, 1, 10, 1}, entity.PortfolioOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(got.Positions))
	}
	for i := 1; i < len(got.Positions); i++ {
		if got.Positions[i-1].ValueUSD < got.Positions[i].ValueUSD {
			t.Fatalf("positions not sorted by value: %+v", got.Positions)
		}
	}
	if got.TotalUSDValue != 110 {
		t.Fatalf("expected total 110, got %v", got.TotalUSDValue)
	}
	if len(got.ChainIDs) != 3 || got.ChainIDs[0] != 1 || got.ChainIDs[2] != 8453 {
		t.Fatalf("chain ids should be deduped and sorted, got %v", got.ChainIDs)
	}
}

func TestGetPortfolioPassesPageOptions(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 1)}
	svc := newPortfolioService(nil, nil, a)

	if _, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{PageLimit: 9, PageSize: 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{AllPages: true, PageLimit: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.opts[0].PageLimit != 1 || a.opts[0].PageSize != 50 {
		t.Fatalf("single-page request should fetch one page, got %+v", a.opts[0])
	}
	if a.opts[1].PageLimit != 3 {
		t.Fatalf("allPages should honour pageLimit, got %+v", a.opts[1])
	}
}

func TestGetPortfolioValidation(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 1)}
	svc := newPortfolioService(nil, nil, a)

	_, err := svc.GetPortfolio(context.Background(), "0x1234", []int64{1}, entity.PortfolioOptions{})
	if entity.KindOf(err) != entity.KindValidation || !errors.Is(err, entity.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	_, err = svc.GetPortfolio(context.Background(), testWallet, []int64{1, 31337}, entity.PortfolioOptions{})
	if entity.KindOf(err) != entity.KindValidation || !errors.Is(err, entity.ErrUnsupportedChain) {
		t.Fatalf("expected unsupported chain, got %v", err)
	}
	if a.calls != 0 {
		t.Fatalf("validation failures must not reach providers")
	}
}

func TestGetPortfolioFailsWhenEveryPartitionFails(t *testing.T) {
	t.Parallel()

	cause := entity.Exhausted(entity.NewRateLimitedError(entity.ProviderZerion, 429, "slow down"), 6)
	a := &fakePositions{name: entity.ProviderZerion, err: cause}
	svc := newPortfolioService(nil, nil, a)

	_, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{})
	if !errors.Is(err, cause) || entity.KindOf(err) != entity.KindApplication {
		t.Fatalf("expected application error wrapping the cause, got %v", err)
	}
}

func TestGetPortfolioMissingAdapterIsPartitionFailure(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 1)}
	svc := newPortfolioService(nil, nil, a)

	got, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1, 10}, entity.PortfolioOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ProvidersUsed[entity.ProviderAlchemy] || got.ChainErrors[10] == "" {
		t.Fatalf("unconfigured provider should be reported per chain: %+v", got)
	}
}

func TestGetPortfolioCachesOnlyCompleteResults(t *testing.T) {
	t.Parallel()

	layer := cache.NewLayer(cache.NewMemoryBackend(time.Minute), zap.NewNop())
	a := &fakePositions{name: entity.ProviderZerion, fn: perChain(entity.ProviderZerion, "ETH", 1)}
	b := &fakePositions{name: entity.ProviderAlchemy, err: errors.New("down")}
	svc := newPortfolioService(layer, nil, a, b)

	for i := 0; i < 2; i++ {
		if _, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if a.calls != 1 {
		t.Fatalf("complete result should be served from cache, got %d calls", a.calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1, 10}, entity.PortfolioOptions{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.calls != 2 {
		t.Fatalf("partial result must not be cached, got %d calls", b.calls)
	}

	// Checksum casing must not change the cache key.
	if _, err := svc.GetPortfolio(context.Background(), "0x8F8E8B3C4DE76A31971FE6A87297D8F703BE8570", []int64{1}, entity.PortfolioOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.calls != 3 {
		t.Fatalf("expected cache hit for differently cased address, got %d calls", a.calls)
	}
}

type fakePrices struct{ price float64 }

func (f fakePrices) Backfill(_ context.Context, positions []entity.TokenPosition) int {
	n := 0
	for i := range positions {
		if positions[i].PriceUSD == 0 {
			positions[i].Reprice(f.price)
			n++
		}
	}
	return n
}

func TestGetPortfolioBackfillsBeforeFiltering(t *testing.T) {
	t.Parallel()

	a := &fakePositions{name: entity.ProviderZerion, fn: func([]int64) []entity.TokenPosition {
		return []entity.TokenPosition{position(1, "UNPRICED", 4, 0, entity.ProviderZerion)}
	}}
	svc := newPortfolioService(nil, fakePrices{price: 2.5}, a)

	got, err := svc.GetPortfolio(context.Background(), testWallet, []int64{1}, entity.PortfolioOptions{HideZeroValue: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Positions) != 1 || got.Positions[0].ValueUSD != 10 || got.TotalUSDValue != 10 {
		t.Fatalf("backfilled position should survive the zero filter: %+v", got)
	}
}
