// Package alchemy is the wallet-data adapter backed by the Alchemy Portfolio API.
package alchemy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/paginate"
	"portfolio_aggregator/internal/pkg/resilience"
	"portfolio_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	tokensPath = "/assets/tokens/by-address"
	nftsPath   = "/assets/nfts/by-address"

	// Alchemy rejects more networks than this per address entry.
	defaultMaxNetworks = 5
	maxParallelBatches = 2
)

// MetadataSource resolves token metadata Alchemy did not return.
type MetadataSource interface {
	Lookup(ctx context.Context, chainID int64, address string) (entity.TokenMetadata, bool, error)
}

// Config holds the Alchemy settings the client needs.
type Config struct {
	BaseURL               string
	APIKey                string
	MaxNetworksPerRequest int
	NFTPageSize           int
}

// Client fetches token balances and NFTs from Alchemy.
type Client struct {
	http        *httpclient.Client
	endpoint    string
	maxNetworks int
	nftPageSize int
	limiter     resilience.Limiter
	retry       resilience.Policy
	chains      *networkdefinition.Registry
	networks    networkdefinition.NameMapping
	metadata    MetadataSource
	logger      *zap.Logger
	now         func() time.Time
}

// NewClient creates an Alchemy client. metadata may be nil, which disables enrichment.
func NewClient(
	cfg Config,
	httpClient *httpclient.Client,
	limiter resilience.Limiter,
	retry resilience.Policy,
	chains *networkdefinition.Registry,
	metadata MetadataSource,
	logger *zap.Logger,
) *Client {
	maxNetworks := cfg.MaxNetworksPerRequest
	if maxNetworks <= 0 || maxNetworks > defaultMaxNetworks {
		maxNetworks = defaultMaxNetworks
	}
	return &Client{
		http:        httpClient,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIKey,
		maxNetworks: maxNetworks,
		nftPageSize: cfg.NFTPageSize,
		limiter:     limiter,
		retry:       retry,
		chains:      chains,
		networks:    chains.AlchemyNetworks(),
		metadata:    metadata,
		logger:      logger.Named("AlchemyClient"),
		now:         time.Now,
	}
}

// Name implements port.PositionProvider.
func (c *Client) Name() entity.ProviderName { return entity.ProviderAlchemy }

// GetPositions returns native and ERC-20 balances of address on chainIDs.
func (c *Client) GetPositions(ctx context.Context, address string, chainIDs []int64, opts entity.FetchOptions) ([]entity.TokenPosition, error) {
	networks, err := c.networksFor(chainIDs)
	if err != nil {
		return nil, err
	}
	wallet := strings.ToLower(address)

	tokens, err := fetchBatched(ctx, c, networks, func(batch []string) paginate.FetchFunc[token] {
		return c.tokensPage(wallet, batch)
	}, opts.PageLimit)
	if err != nil {
		return nil, fmt.Errorf("alchemy tokens for %s: %w", wallet, err)
	}

	now := c.now()
	out := make([]entity.TokenPosition, 0, len(tokens))
	for _, t := range tokens {
		if t.Error != nil && *t.Error != "" {
			c.logger.Debug("Skipping token with upstream error",
				zap.String("network", t.Network),
				zap.String("error", *t.Error))
			continue
		}
		chainID, ok := c.networks.Canonical(t.Network)
		if !ok {
			continue
		}
		def, _ := c.chains.Get(chainID)

		if needsMetadata(t) {
			t.TokenMetadata = c.enrich(ctx, chainID, *t.TokenAddress, t.TokenMetadata)
		}
		pos, err := mapToken(t, wallet, def, now)
		if err != nil {
			c.logger.Warn("Skipping token with unparsable balance",
				zap.String("network", t.Network),
				zap.String("tokenAddress", deref(t.TokenAddress)),
				zap.Error(err))
			continue
		}
		out = append(out, pos)
	}

	c.logger.Debug("Fetched token balances",
		zap.String("wallet", wallet),
		zap.Strings("networks", networks),
		zap.Int("positions", len(out)))
	return out, nil
}

// GetNFTs returns the NFTs held by address on chainIDs.
func (c *Client) GetNFTs(ctx context.Context, address string, chainIDs []int64, pageLimit int) ([]entity.NFTItem, error) {
	networks, err := c.networksFor(chainIDs)
	if err != nil {
		return nil, err
	}
	wallet := strings.ToLower(address)

	raw, err := fetchBatched(ctx, c, networks, func(batch []string) paginate.FetchFunc[nft] {
		return c.nftsPage(wallet, batch)
	}, pageLimit)
	if err != nil {
		return nil, fmt.Errorf("alchemy nfts for %s: %w", wallet, err)
	}

	out := make([]entity.NFTItem, 0, len(raw))
	for _, n := range raw {
		if n.Error != nil && *n.Error != "" {
			continue
		}
		chainID, ok := c.networks.Canonical(n.Network)
		if !ok {
			continue
		}
		out = append(out, mapNFT(n, chainID))
	}
	return out, nil
}

func (c *Client) enrich(ctx context.Context, chainID int64, address string, m tokenMetadata) tokenMetadata {
	if c.metadata == nil {
		return m
	}
	found, ok, err := c.metadata.Lookup(ctx, chainID, address)
	if err != nil {
		c.logger.Warn("Token metadata lookup failed",
			zap.Int64("chainId", chainID),
			zap.String("tokenAddress", address),
			zap.Error(err))
		return m
	}
	if !ok {
		return m
	}
	return mergeMetadata(m, found)
}

func (c *Client) networksFor(chainIDs []int64) ([]string, error) {
	out := make([]string, 0, len(chainIDs))
	for _, id := range chainIDs {
		network, ok := c.networks.Upstream(id)
		if !ok {
			return nil, fmt.Errorf("%w: chain %d has no alchemy network", entity.ErrUnsupportedChain, id)
		}
		out = append(out, network)
	}
	return out, nil
}

func (c *Client) tokensPage(wallet string, networks []string) paginate.FetchFunc[token] {
	return func(ctx context.Context, cursor string) (entity.ProviderResult[token], error) {
		body := tokensRequest{
			Addresses:           []addressNetworks{{Address: wallet, Networks: networks}},
			WithMetadata:        true,
			WithPrices:          true,
			IncludeNativeTokens: true,
			IncludeErc20Tokens:  true,
			PageKey:             cursor,
		}
		resp, err := post[tokensResponse](ctx, c, tokensPath, body)
		if err != nil {
			return entity.ProviderResult[token]{}, err
		}
		return entity.ProviderResult[token]{
			Items:        resp.Data.Tokens,
			NextCursor:   resp.Data.PageKey,
			ProviderName: entity.ProviderAlchemy,
		}, nil
	}
}

func (c *Client) nftsPage(wallet string, networks []string) paginate.FetchFunc[nft] {
	return func(ctx context.Context, cursor string) (entity.ProviderResult[nft], error) {
		body := nftsRequest{
			Addresses:    []addressNetworks{{Address: wallet, Networks: networks}},
			WithMetadata: true,
			PageKey:      cursor,
			PageSize:     c.nftPageSize,
		}
		resp, err := post[nftsResponse](ctx, c, nftsPath, body)
		if err != nil {
			return entity.ProviderResult[nft]{}, err
		}
		return entity.ProviderResult[nft]{
			Items:        resp.Data.NFTs,
			NextCursor:   resp.Data.PageKey,
			ProviderName: entity.ProviderAlchemy,
		}, nil
	}
}

// fetchBatched splits networks into Alchemy-sized groups and walks each group's pages.
// Items keep batch order.
func fetchBatched[T any](ctx context.Context, c *Client, networks []string, page func([]string) paginate.FetchFunc[T], pageLimit int) ([]T, error) {
	batches := utils.Batch(networks, c.maxNetworks)
	results := make([][]T, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBatches)
	for i, batch := range batches {
		g.Go(func() error {
			pages, err := paginate.FetchAllPages(gctx, page(batch), paginate.Options{
				PageLimit: pageLimit,
				Logger:    c.logger,
			})
			if err != nil {
				return fmt.Errorf("networks %s: %w", strings.Join(batch, ","), err)
			}
			results[i] = paginate.Flatten(pages)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// post sends one rate-limited, retried request.
func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	req := httpclient.Request{
		Method: "POST",
		URL:    c.endpoint + path,
		Body:   body,
	}
	return resilience.Call(ctx, c.retry, func(ctx context.Context) (T, error) {
		var out T
		if err := c.limiter.Acquire(ctx); err != nil {
			return out, err
		}
		err := c.http.DoJSON(ctx, req, &out)
		return out, err
	})
}
