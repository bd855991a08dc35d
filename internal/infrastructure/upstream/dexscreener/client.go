// Package dexscreener reads token pair prices from the DEX Screener API.
package dexscreener

import (
	"context"
	"fmt"
	"strings"

	"portfolio_aggregator/internal/infrastructure/httpclient"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client fetches token pairs from DEX Screener.
type Client struct {
	http                *httpclient.Client
	baseURL             string
	logger              *zap.Logger
	maxTokensPerRequest int
}

// NewClient creates a DEX Screener client.
func NewClient(baseURL string, httpClient *httpclient.Client, logger *zap.Logger, maxTokensPerRequest int) *Client {
	if maxTokensPerRequest <= 0 {
		maxTokensPerRequest = 30
	}
	return &Client{
		http:                httpClient,
		baseURL:             strings.TrimRight(baseURL, "/"),
		logger:              logger.Named("DEXScreenerClient"),
		maxTokensPerRequest: maxTokensPerRequest,
	}
}

// MaxTokensPerRequest is the largest address batch GetTokenPairs accepts.
func (c *Client) MaxTokensPerRequest() int { return c.maxTokensPerRequest }

// GetTokenPairs returns every pair whose base or quote token is one of tokenAddresses.
func (c *Client) GetTokenPairs(ctx context.Context, chainID string, tokenAddresses []string) ([]Pair, error) {
	if len(tokenAddresses) == 0 {
		return nil, fmt.Errorf("tokenAddresses cannot be empty")
	}
	if len(tokenAddresses) > c.maxTokensPerRequest {
		c.logger.Warn("Number of token addresses exceeds maxTokensPerRequest",
			zap.Int("requestedCount", len(tokenAddresses)),
			zap.Int("maxAllowed", c.maxTokensPerRequest))
		return nil, fmt.Errorf("number of token addresses (%d) exceeds max tokens per request (%d)", len(tokenAddresses), c.maxTokensPerRequest)
	}

	requestURL := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, chainID, strings.Join(tokenAddresses, ","))
	body, err := c.http.Do(ctx, httpclient.Request{URL: requestURL})
	if err != nil {
		return nil, err
	}

	var wrapped tokenPairsEnvelope
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Pairs != nil {
		return wrapped.Pairs, nil
	}

	var direct []Pair
	if err := json.Unmarshal(body, &direct); err != nil {
		c.logger.Error("Failed to unmarshal DEX Screener response",
			zap.String("chainId", chainID),
			zap.ByteString("responseBody", body),
			zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal DEX Screener response: %w", err)
	}
	if len(direct) == 0 {
		c.logger.Debug("DEX Screener returned no pairs",
			zap.String("chainId", chainID),
			zap.Int("tokenCount", len(tokenAddresses)))
	}
	return direct, nil
}

var stablecoinSymbols = map[string]struct{}{
	"USDC":   {},
	"USDT":   {},
	"DAI":    {},
	"USDC.E": {},
	"USDBC":  {},
}

// BestPrice picks the USD price of baseTokenAddress from pairs. Pairs quoted in a
// stablecoin win over others; within a group the deepest liquidity wins.
func BestPrice(pairs []Pair, baseTokenAddress string) (string, bool) {
	var bestOverall, bestStable *Pair
	for i := range pairs {
		pair := &pairs[i]
		if !strings.EqualFold(pair.BaseToken.Address, baseTokenAddress) {
			continue
		}
		if pair.PriceUsd == "" || pair.PriceUsd == "0" {
			continue
		}
		if _, ok := stablecoinSymbols[strings.ToUpper(pair.QuoteToken.Symbol)]; ok {
			if bestStable == nil || pair.LiquidityUSD() > bestStable.LiquidityUSD() {
				bestStable = pair
			}
		}
		if bestOverall == nil || pair.LiquidityUSD() > bestOverall.LiquidityUSD() {
			bestOverall = pair
		}
	}
	switch {
	case bestStable != nil:
		return bestStable.PriceUsd, true
	case bestOverall != nil:
		return bestOverall.PriceUsd, true
	default:
		return "", false
	}
}
