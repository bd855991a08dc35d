// Package etherscan is the block-explorer adapter backed by the Etherscan v2 multichain API.
package etherscan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/pkg/paginate"
	"portfolio_aggregator/internal/pkg/resilience"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	noTransactionsMessage = "No transactions found"

	defaultPageSize = 1000
	// Etherscan refuses page*offset beyond this window.
	maxResultWindow = 10000
)

// Config holds the Etherscan settings the client needs.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
}

// Client reads transaction history from Etherscan.
type Client struct {
	http     *httpclient.Client
	baseURL  string
	apiKey   string
	pageSize int
	limiter  resilience.Limiter
	retry    resilience.Policy
	chains   *networkdefinition.Registry
	logger   *zap.Logger
}

// NewClient creates an Etherscan client.
func NewClient(
	cfg Config,
	httpClient *httpclient.Client,
	limiter resilience.Limiter,
	retry resilience.Policy,
	chains *networkdefinition.Registry,
	logger *zap.Logger,
) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		http:     httpClient,
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		limiter:  limiter,
		retry:    retry,
		chains:   chains,
		logger:   logger.Named("EtherscanClient"),
	}
}

// Name implements port.TransactionProvider.
func (c *Client) Name() entity.ProviderName { return entity.ProviderEtherscan }

// GetTransactions returns the unique transactions of address on chainID. With
// IncludeTokenTransfers set, token and NFT transfers are attached to their transaction.
func (c *Client) GetTransactions(ctx context.Context, address string, chainID int64, filters entity.TransactionFilters) ([]entity.Transaction, error) {
	def, ok := c.chains.Get(chainID)
	if !ok || !def.ExplorerSupported {
		return nil, fmt.Errorf("%w: chain %d is not served by etherscan", entity.ErrUnsupportedChain, chainID)
	}
	wallet := strings.ToLower(address)
	opts := paginate.Options{PageLimit: filters.PageLimit, Logger: c.logger}

	fetchTxs := func(ctx context.Context, cursor string) (entity.ProviderResult[entity.Transaction], error) {
		raw, err := c.page(ctx, "txlist", wallet, chainID, filters, cursor)
		if err != nil {
			return entity.ProviderResult[entity.Transaction]{}, err
		}
		rows, err := decodeRows[normalTx](raw)
		if err != nil {
			return entity.ProviderResult[entity.Transaction]{}, err
		}
		items := make([]entity.Transaction, 0, len(rows))
		for _, row := range rows {
			items = append(items, mapNormalTx(row, def))
		}
		return entity.ProviderResult[entity.Transaction]{Items: items, NextCursor: c.nextCursor(cursor, len(rows), filters), ProviderName: entity.ProviderEtherscan}, nil
	}

	txs, err := paginate.FetchAllUnique(ctx, fetchTxs, entity.TransactionKey, opts)
	if err != nil {
		return nil, fmt.Errorf("etherscan txlist for %s on %d: %w", wallet, chainID, err)
	}

	if filters.IncludeTokenTransfers {
		for _, a := range transferActions {
			transfers, err := c.transfers(ctx, a.action, wallet, chainID, filters, opts)
			if err != nil {
				return nil, fmt.Errorf("etherscan %s for %s on %d: %w", a.action, wallet, chainID, err)
			}
			txs = mergeTransfers(txs, transfers, a.kind, chainID)
		}
	}

	sortTransactions(txs, filters.Sort)
	c.logger.Debug("Fetched transactions",
		zap.String("wallet", wallet),
		zap.Int64("chainId", chainID),
		zap.Int("transactions", len(txs)))
	return txs, nil
}

func (c *Client) transfers(ctx context.Context, action, wallet string, chainID int64, filters entity.TransactionFilters, opts paginate.Options) ([]tokenTransfer, error) {
	fetch := func(ctx context.Context, cursor string) (entity.ProviderResult[tokenTransfer], error) {
		raw, err := c.page(ctx, action, wallet, chainID, filters, cursor)
		if err != nil {
			return entity.ProviderResult[tokenTransfer]{}, err
		}
		rows, err := decodeRows[tokenTransfer](raw)
		if err != nil {
			return entity.ProviderResult[tokenTransfer]{}, err
		}
		return entity.ProviderResult[tokenTransfer]{Items: rows, NextCursor: c.nextCursor(cursor, len(rows), filters), ProviderName: entity.ProviderEtherscan}, nil
	}
	pages, err := paginate.FetchAllPages(ctx, fetch, opts)
	if err != nil {
		return nil, err
	}
	return paginate.Dedup(paginate.Flatten(pages), transferKey, c.logger), nil
}

// mergeTransfers attaches each transfer to its transaction by identity key,
// creating the transaction when txlist did not contain it.
func mergeTransfers(txs []entity.Transaction, transfers []tokenTransfer, kind transferKind, chainID int64) []entity.Transaction {
	index := make(map[string]int, len(txs))
	for i, tx := range txs {
		index[tx.IdentityKey()] = i
	}
	for _, tr := range transfers {
		if tr.Hash == "" {
			continue
		}
		key := entity.Transaction{Hash: tr.Hash, ChainID: chainID}.IdentityKey()
		i, ok := index[key]
		if !ok {
			txs = append(txs, transactionFromTransfer(tr, chainID))
			i = len(txs) - 1
			index[key] = i
		}
		txs[i].Transfers = append(txs[i].Transfers, mapTransferLine(tr, kind))
	}
	return txs
}

func sortTransactions(txs []entity.Transaction, order string) {
	asc := strings.EqualFold(order, "asc")
	sort.SliceStable(txs, func(i, j int) bool {
		if asc {
			return txs[i].MinedAt.Before(txs[j].MinedAt)
		}
		return txs[i].MinedAt.After(txs[j].MinedAt)
	})
}

func (c *Client) pageSizeFor(filters entity.TransactionFilters) int {
	if filters.PageSize > 0 && filters.PageSize <= c.pageSize {
		return filters.PageSize
	}
	return c.pageSize
}

// nextCursor returns the next page number while pages come back full.
func (c *Client) nextCursor(cursor string, rows int, filters entity.TransactionFilters) string {
	offset := c.pageSizeFor(filters)
	if rows < offset {
		return ""
	}
	page := pageNumber(cursor)
	if (page+1)*offset > maxResultWindow {
		c.logger.Warn("Etherscan result window exhausted, history truncated",
			zap.Int("page", page),
			zap.Int("offset", offset))
		return ""
	}
	return strconv.Itoa(page + 1)
}

func pageNumber(cursor string) int {
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// page fetches one page of action. The payload is inspected inside the retry
// loop so a rate limit reported with HTTP 200 is retried.
func (c *Client) page(ctx context.Context, action, wallet string, chainID int64, filters entity.TransactionFilters, cursor string) (jsoniter.RawMessage, error) {
	sortOrder := "desc"
	if strings.EqualFold(filters.Sort, "asc") {
		sortOrder = "asc"
	}
	query := map[string]string{
		"chainid": strconv.FormatInt(chainID, 10),
		"module":  "account",
		"action":  action,
		"address": wallet,
		"page":    strconv.Itoa(pageNumber(cursor)),
		"offset":  strconv.Itoa(c.pageSizeFor(filters)),
		"sort":    sortOrder,
		"apikey":  c.apiKey,
	}
	if filters.StartBlock > 0 {
		query["startblock"] = strconv.FormatInt(filters.StartBlock, 10)
	}
	if filters.EndBlock > 0 {
		query["endblock"] = strconv.FormatInt(filters.EndBlock, 10)
	}
	req := httpclient.Request{URL: c.baseURL, Query: query}

	return resilience.Call(ctx, c.retry, func(ctx context.Context) (jsoniter.RawMessage, error) {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		var env envelope
		if err := c.http.DoJSON(ctx, req, &env); err != nil {
			return nil, err
		}
		return checkEnvelope(env)
	})
}

// checkEnvelope classifies an Etherscan payload and returns the result array.
func checkEnvelope(env envelope) (jsoniter.RawMessage, error) {
	if env.Status == "1" {
		return env.Result, nil
	}

	var detail string
	if err := json.Unmarshal(env.Result, &detail); err != nil {
		detail = ""
	}
	if env.Message == noTransactionsMessage || strings.EqualFold(detail, noTransactionsMessage) {
		return jsoniter.RawMessage("[]"), nil
	}

	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "rate limit"):
		return nil, entity.NewRateLimitedError(entity.ProviderEtherscan, 200, detail)
	case strings.Contains(lower, "invalid address"):
		return nil, entity.NewValidationError(entity.ProviderEtherscan, detail, entity.ErrInvalidAddress)
	}
	msg := env.Message
	if detail != "" {
		msg = msg + ": " + detail
	}
	return nil, entity.NewApplicationError(entity.ProviderEtherscan, 200, msg)
}

func decodeRows[T any](raw jsoniter.RawMessage) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, entity.NewApplicationError(entity.ProviderEtherscan, 200, fmt.Sprintf("malformed result: %v", err))
	}
	return rows, nil
}
