// Package paginate walks cursor-based upstream listings.
package paginate

import (
	"context"
	"fmt"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/resilience"

	"go.uber.org/zap"
)

// FetchFunc fetches the page identified by cursor. The initial page uses an empty cursor.
// Rate limiting and retries are the FetchFunc's concern.
type FetchFunc[T any] func(ctx context.Context, cursor string) (entity.ProviderResult[T], error)

// Options bounds a pagination walk.
type Options struct {
	// PageLimit stops the walk after this many pages. Zero means no limit.
	PageLimit int
	// Delay is slept between consecutive page requests.
	Delay  time.Duration
	Sleep  resilience.SleepFunc
	Logger *zap.Logger
}

func (o Options) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return resilience.SleepContext(ctx, d)
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// FetchAllPages returns every page in cursor order until the upstream stops
// returning a cursor or PageLimit is reached.
func FetchAllPages[T any](ctx context.Context, fetch FetchFunc[T], opts Options) ([]entity.ProviderResult[T], error) {
	var (
		pages  []entity.ProviderResult[T]
		cursor string
		seen   = make(map[string]struct{})
	)
	for {
		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", len(pages)+1, err)
		}
		pages = append(pages, page)

		if page.NextCursor == "" {
			return pages, nil
		}
		if opts.PageLimit > 0 && len(pages) >= opts.PageLimit {
			opts.logger().Debug("Page limit reached, more pages available",
				zap.String("provider", string(page.ProviderName)),
				zap.Int("pageLimit", opts.PageLimit))
			return pages, nil
		}
		if _, dup := seen[page.NextCursor]; dup {
			opts.logger().Warn("Upstream repeated a cursor, stopping pagination",
				zap.String("provider", string(page.ProviderName)),
				zap.Int("pages", len(pages)))
			return pages, nil
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor

		if opts.Delay > 0 {
			if err := opts.sleep(ctx, opts.Delay); err != nil {
				return nil, err
			}
		}
	}
}

// Flatten concatenates the items of pages, preserving order.
func Flatten[T any](pages []entity.ProviderResult[T]) []T {
	n := 0
	for _, p := range pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range pages {
		out = append(out, p.Items...)
	}
	return out
}

// FetchAllUnique walks every page and keeps the first occurrence of each key.
// Items for which key reports false are skipped.
func FetchAllUnique[T any](ctx context.Context, fetch FetchFunc[T], key func(T) (string, bool), opts Options) ([]T, error) {
	pages, err := FetchAllPages(ctx, fetch, opts)
	if err != nil {
		return nil, err
	}
	return Dedup(Flatten(pages), key, opts.logger()), nil
}

// Dedup keeps the first item for each key, in input order.
func Dedup[T any](items []T, key func(T) (string, bool), logger *zap.Logger) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	skipped, dropped := 0, 0
	for _, item := range items {
		k, ok := key(item)
		if !ok {
			skipped++
			continue
		}
		if _, exists := seen[k]; exists {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	if logger != nil && (skipped > 0 || dropped > 0) {
		logger.Debug("Deduplicated paginated items",
			zap.Int("kept", len(out)),
			zap.Int("duplicates", dropped),
			zap.Int("unkeyed", skipped))
	}
	return out
}
