// Package zerion is the position-indexer adapter backed by the Zerion wallet API.
package zerion

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/paginate"
	"portfolio_aggregator/internal/pkg/resilience"

	"go.uber.org/zap"
)

// Config holds the Zerion settings the client needs.
type Config struct {
	BaseURL   string
	APIKey    string
	PageSize  int
	PageDelay time.Duration
}

// Client fetches positions and transactions from Zerion.
type Client struct {
	http       *httpclient.Client
	baseURL    string
	authHeader string
	pageSize   int
	pageDelay  time.Duration
	limiter    resilience.Limiter
	retry      resilience.Policy
	names      networkdefinition.NameMapping
	logger     *zap.Logger
	now        func() time.Time
	sleep      resilience.SleepFunc
}

// NewClient creates a Zerion client. Every HTTP call passes limiter then retry.
func NewClient(
	cfg Config,
	httpClient *httpclient.Client,
	limiter resilience.Limiter,
	retry resilience.Policy,
	names networkdefinition.NameMapping,
	logger *zap.Logger,
) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		pageSize:   pageSize,
		pageDelay:  cfg.PageDelay,
		limiter:    limiter,
		retry:      retry,
		names:      names,
		logger:     logger.Named("ZerionClient"),
		now:        time.Now,
	}
}

// Name implements port.PositionProvider.
func (c *Client) Name() entity.ProviderName { return entity.ProviderZerion }

// GetPositions returns the wallet's simple fungible positions on chainIDs.
func (c *Client) GetPositions(ctx context.Context, address string, chainIDs []int64, opts entity.FetchOptions) ([]entity.TokenPosition, error) {
	chains, err := c.chainFilter(chainIDs)
	if err != nil {
		return nil, err
	}
	wallet := strings.ToLower(address)
	query := map[string]string{
		"currency":          "usd",
		"filter[positions]": "only_simple",
		"filter[chain_ids]": chains,
		"page[size]":        strconv.Itoa(c.pageSizeOr(opts.PageSize)),
	}

	pages, err := paginate.FetchAllPages(ctx,
		listPage[position](c, fmt.Sprintf("%s/wallets/%s/positions/", c.baseURL, wallet), query),
		c.paginateOptions(opts.PageLimit))
	if err != nil {
		return nil, fmt.Errorf("zerion positions for %s: %w", wallet, err)
	}

	now := c.now()
	raw := paginate.Flatten(pages)
	out := make([]entity.TokenPosition, 0, len(raw))
	for _, p := range raw {
		pos, ok := mapPosition(p, wallet, c.names, now)
		if !ok {
			c.logger.Debug("Skipping position on unmapped chain",
				zap.String("chain", p.Relationships.Chain.Data.ID),
				zap.String("positionId", p.ID))
			continue
		}
		out = append(out, pos)
	}
	c.logger.Debug("Fetched positions",
		zap.String("wallet", wallet),
		zap.String("chains", chains),
		zap.Int("pages", len(pages)),
		zap.Int("positions", len(out)))
	return out, nil
}

// GetTransactions returns the wallet's unique transactions on chainID.
func (c *Client) GetTransactions(ctx context.Context, address string, chainID int64, filters entity.TransactionFilters) ([]entity.Transaction, error) {
	chains, err := c.chainFilter([]int64{chainID})
	if err != nil {
		return nil, err
	}
	wallet := strings.ToLower(address)
	query := map[string]string{
		"currency":          "usd",
		"filter[chain_ids]": chains,
		"page[size]":        strconv.Itoa(c.pageSizeOr(filters.PageSize)),
	}

	fetchRaw := listPage[transaction](c, fmt.Sprintf("%s/wallets/%s/transactions/", c.baseURL, wallet), query)
	fetch := func(ctx context.Context, cursor string) (entity.ProviderResult[entity.Transaction], error) {
		page, err := fetchRaw(ctx, cursor)
		if err != nil {
			return entity.ProviderResult[entity.Transaction]{}, err
		}
		items := make([]entity.Transaction, 0, len(page.Items))
		for _, tx := range page.Items {
			items = append(items, mapTransaction(tx, c.names))
		}
		return entity.ProviderResult[entity.Transaction]{Items: items, NextCursor: page.NextCursor, ProviderName: page.ProviderName}, nil
	}

	txs, err := paginate.FetchAllUnique(ctx, fetch, entity.TransactionKey, c.paginateOptions(filters.PageLimit))
	if err != nil {
		return nil, fmt.Errorf("zerion transactions for %s: %w", wallet, err)
	}
	return txs, nil
}

func (c *Client) chainFilter(chainIDs []int64) (string, error) {
	names := make([]string, 0, len(chainIDs))
	for _, id := range chainIDs {
		name, ok := c.names.Upstream(id)
		if !ok {
			return "", fmt.Errorf("%w: chain %d has no zerion id", entity.ErrUnsupportedChain, id)
		}
		names = append(names, name)
	}
	return strings.Join(names, ","), nil
}

func (c *Client) pageSizeOr(n int) int {
	if n > 0 && n <= 100 {
		return n
	}
	return c.pageSize
}

func (c *Client) paginateOptions(pageLimit int) paginate.Options {
	return paginate.Options{
		PageLimit: pageLimit,
		Delay:     c.pageDelay,
		Sleep:     c.sleep,
		Logger:    c.logger,
	}
}

// listPage returns a page fetcher. The first page is built from url and query;
// later pages follow the absolute links.next URL, which already carries the query.
func listPage[T any](c *Client, url string, query map[string]string) paginate.FetchFunc[T] {
	return func(ctx context.Context, cursor string) (entity.ProviderResult[T], error) {
		req := httpclient.Request{
			URL:     url,
			Query:   query,
			Headers: map[string]string{"Authorization": c.authHeader},
		}
		if cursor != "" {
			if !strings.HasPrefix(cursor, c.baseURL+"/") {
				return entity.ProviderResult[T]{}, entity.NewApplicationError(entity.ProviderZerion, 0,
					fmt.Sprintf("next link %q is outside %s", cursor, c.baseURL))
			}
			req.URL = cursor
			req.Query = nil
		}

		resp, err := resilience.Call(ctx, c.retry, func(ctx context.Context) (listResponse[T], error) {
			if err := c.limiter.Acquire(ctx); err != nil {
				return listResponse[T]{}, err
			}
			var out listResponse[T]
			err := c.http.DoJSON(ctx, req, &out)
			return out, err
		})
		if err != nil {
			return entity.ProviderResult[T]{}, err
		}
		return entity.ProviderResult[T]{
			Items:        resp.Data,
			NextCursor:   resp.Links.Next,
			ProviderName: entity.ProviderZerion,
		}, nil
	}
}
