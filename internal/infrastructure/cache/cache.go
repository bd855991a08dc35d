// Package cache is the read-through response cache shared by the services.
// A failing backend never fails a request: lookups bypass the cache instead.
package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"portfolio_aggregator/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// canonical re-encodes values with sorted object keys and exact numbers.
var canonical = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Namespaces used by the services.
const (
	NamespacePortfolio    = "unified:fungible-positions"
	NamespaceTransactions = "explorer:transactions"
	NamespaceNFTs         = "wallet:nfts"
)

// Entry is the stored form of a cached value.
type Entry struct {
	Key       string              `json:"key"`
	Value     jsoniter.RawMessage `json:"value"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// Key derives the cache key of input. Structurally equal inputs yield the same
// key regardless of field or map order.
func Key(namespace string, input any) (string, error) {
	first, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache input: %w", err)
	}
	var generic any
	if err := canonical.Unmarshal(first, &generic); err != nil {
		return "", fmt.Errorf("failed to normalize cache input: %w", err)
	}
	normalized, err := canonical.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to normalize cache input: %w", err)
	}
	return namespace + ":" + base64.RawURLEncoding.EncodeToString(normalized), nil
}

// Layer wraps a Backend with key derivation, expiry and metrics.
type Layer struct {
	backend   Backend
	logger    *zap.Logger
	now       func() time.Time
	opTimeout time.Duration
}

// LayerOption customises a Layer.
type LayerOption func(*Layer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LayerOption {
	return func(l *Layer) { l.now = now }
}

// WithOperationTimeout bounds every backend call.
func WithOperationTimeout(d time.Duration) LayerOption {
	return func(l *Layer) { l.opTimeout = d }
}

// NewLayer creates a Layer over backend.
func NewLayer(backend Backend, logger *zap.Logger, opts ...LayerOption) *Layer {
	l := &Layer{
		backend: backend,
		logger:  logger.Named("CacheLayer"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Layer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.opTimeout)
}

type options[T any] struct {
	shouldCache func(T) bool
}

// Option customises a single Cached call.
type Option[T any] func(*options[T])

// ShouldCache vetoes the write-through of results for which fn returns false.
func ShouldCache[T any](fn func(T) bool) Option[T] {
	return func(o *options[T]) { o.shouldCache = fn }
}

type lookup int

const (
	lookupMiss lookup = iota
	lookupHit
	lookupBypass
)

// Cached returns the value stored for (namespace, input) while it is younger than ttl.
// Otherwise it calls compute and stores the result. A nil Layer always computes.
func Cached[T any](ctx context.Context, l *Layer, namespace string, input any, ttl time.Duration, compute func(context.Context) (T, error), opts ...Option[T]) (T, error) {
	if l == nil {
		return compute(ctx)
	}
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	key, err := Key(namespace, input)
	if err != nil {
		l.logger.Warn("Cache key derivation failed, bypassing cache", zap.String("namespace", namespace), zap.Error(err))
		return compute(ctx)
	}

	value, state := get[T](ctx, l, namespace, key)
	switch state {
	case lookupHit:
		return value, nil
	case lookupBypass:
		return compute(ctx)
	}

	result, err := compute(ctx)
	if err != nil {
		return result, err
	}
	if o.shouldCache != nil && !o.shouldCache(result) {
		l.logger.Debug("Result not cached", zap.String("namespace", namespace))
		return result, nil
	}
	set(ctx, l, namespace, key, result, ttl)
	return result, nil
}

func get[T any](ctx context.Context, l *Layer, namespace, key string) (T, lookup) {
	var zero T
	opCtx, cancel := l.withTimeout(ctx)
	defer cancel()

	data, ok, err := l.backend.Get(opCtx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, "error").Inc()
		l.logger.Warn("Cache backend read failed, bypassing cache", zap.String("namespace", namespace), zap.Error(err))
		return zero, lookupBypass
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		return zero, lookupMiss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		l.logger.Warn("Discarding undecodable cache entry", zap.String("namespace", namespace), zap.Error(err))
		return zero, lookupMiss
	}
	if !l.now().Before(entry.ExpiresAt) {
		metrics.CacheLookups.WithLabelValues(namespace, "expired").Inc()
		return zero, lookupMiss
	}
	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		l.logger.Warn("Discarding undecodable cache value", zap.String("namespace", namespace), zap.Error(err))
		return zero, lookupMiss
	}
	metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
	return value, lookupHit
}

func set[T any](ctx context.Context, l *Layer, namespace, key string, value T, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		l.logger.Warn("Failed to encode cache value", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	data, err := json.Marshal(Entry{Key: key, Value: raw, ExpiresAt: l.now().Add(ttl)})
	if err != nil {
		l.logger.Warn("Failed to encode cache entry", zap.String("namespace", namespace), zap.Error(err))
		return
	}

	opCtx, cancel := l.withTimeout(ctx)
	defer cancel()
	if err := l.backend.Set(opCtx, key, data, ttl); err != nil {
		l.logger.Warn("Cache backend write failed", zap.String("namespace", namespace), zap.Error(err))
	}
}
