// Package tokenlist serves token metadata from a Uniswap-format token list.
package tokenlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	"portfolio_aggregator/internal/pkg/resilience"

	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnavailable is returned while a failed first load is backing off.
var ErrUnavailable = errors.New("token list unavailable")

const (
	defaultTTL = 24 * time.Hour
	// After a failed refresh no new fetch is attempted for this long.
	failureBackoff = 5 * time.Minute
)

// Config holds the token list source.
type Config struct {
	URL  string
	File string
	TTL  time.Duration
}

type listToken struct {
	ChainID  int64  `json:"chainId"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

type list struct {
	Name   string      `json:"name"`
	Tokens []listToken `json:"tokens"`
}

// Registry holds the token list in memory and refreshes it once its TTL expires.
// Concurrent lookups during a refresh share a single fetch.
type Registry struct {
	http   *httpclient.Client
	cfg    Config
	retry  resilience.Policy
	logger *zap.Logger
	now    func() time.Time
	group  singleflight.Group

	mu          sync.RWMutex
	index       map[string]entity.TokenMetadata
	fetchedAt   time.Time
	nextAttempt time.Time
	lastErr     error
}

// NewRegistry creates a Registry. httpClient may be nil when cfg.File is set.
func NewRegistry(cfg Config, httpClient *httpclient.Client, retry resilience.Policy, logger *zap.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Registry{
		http:   httpClient,
		cfg:    cfg,
		retry:  retry,
		logger: logger.Named("TokenList"),
		now:    time.Now,
	}
}

func indexKey(chainID int64, address string) string {
	return strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(address)
}

// Lookup returns the metadata of address on chainID.
// When a refresh fails but an older copy exists, the older copy is used.
func (r *Registry) Lookup(ctx context.Context, chainID int64, address string) (entity.TokenMetadata, bool, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return entity.TokenMetadata{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.index[indexKey(chainID, address)]
	return m, ok, nil
}

// Len returns the number of indexed tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

func (r *Registry) ensureFresh(ctx context.Context) error {
	now := r.now()
	r.mu.RLock()
	hasCopy := r.index != nil
	fresh := hasCopy && now.Sub(r.fetchedAt) < r.cfg.TTL
	backingOff := now.Before(r.nextAttempt)
	lastErr := r.lastErr
	r.mu.RUnlock()
	if fresh || (backingOff && hasCopy) {
		return nil
	}
	if backingOff {
		return fmt.Errorf("%w until %s: %v", ErrUnavailable, r.nextAttempt.Format(time.RFC3339), lastErr)
	}

	_, err, _ := r.group.Do("refresh", func() (any, error) {
		return nil, r.Refresh(ctx)
	})
	if err == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAttempt = now.Add(failureBackoff)
	r.lastErr = err
	if r.index == nil {
		return err
	}
	r.logger.Warn("Token list refresh failed, serving stale copy",
		zap.Time("fetchedAt", r.fetchedAt),
		zap.Error(err))
	return nil
}

// Refresh reloads the list from its source and swaps the index.
func (r *Registry) Refresh(ctx context.Context) error {
	data, err := r.load(ctx)
	if err != nil {
		return err
	}
	var l list
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("failed to decode token list: %w", err)
	}

	index := make(map[string]entity.TokenMetadata, len(l.Tokens))
	skipped := 0
	for _, t := range l.Tokens {
		if t.ChainID <= 0 || !common.IsHexAddress(t.Address) {
			skipped++
			continue
		}
		address := strings.ToLower(common.HexToAddress(t.Address).Hex())
		index[indexKey(t.ChainID, address)] = entity.TokenMetadata{
			ChainID:  t.ChainID,
			Address:  address,
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			Logo:     t.LogoURI,
		}
	}

	r.mu.Lock()
	r.index = index
	r.fetchedAt = r.now()
	r.nextAttempt = time.Time{}
	r.lastErr = nil
	r.mu.Unlock()

	r.logger.Info("Token list loaded",
		zap.String("list", l.Name),
		zap.Int("tokens", len(index)),
		zap.Int("skipped", skipped))
	return nil
}

func (r *Registry) load(ctx context.Context) ([]byte, error) {
	if r.cfg.File != "" {
		data, err := os.ReadFile(r.cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read token list file %s: %w", r.cfg.File, err)
		}
		return data, nil
	}
	if r.http == nil {
		return nil, fmt.Errorf("token list: %w", entity.ErrProviderNotConfigured)
	}
	return resilience.Call(ctx, r.retry, func(ctx context.Context) ([]byte, error) {
		return r.http.Do(ctx, httpclient.Request{URL: r.cfg.URL})
	})
}
