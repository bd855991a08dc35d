// Package restapi exposes the aggregation services over HTTP under /api/v1.
package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/provider"
	"portfolio_aggregator/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Data      any    `json:"data"`
	RequestID string `json:"requestId,omitempty"`
}

// APIError is the envelope of every failed response.
type APIError struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId,omitempty"`
}

// ErrorBody describes a failure to API clients.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Handler serves the /api/v1 routes.
type Handler struct {
	portfolio    port.PortfolioService
	transactions port.TransactionService
	nfts         port.NFTService
	chains       port.ChainRegistry
	routing      RoutePlanner
}

// RoutePlanner reports how chains are split across providers.
type RoutePlanner interface {
	PreferredFor(chainIDs []int64) (entity.ProviderName, bool)
	Partition(chainIDs []int64) ([]provider.Partition, []int64)
}

// RoutingPlan is the body of GET /routing.
type RoutingPlan struct {
	PreferredProvider entity.ProviderName `json:"preferredProvider,omitempty"`
	Partitions        []RoutedChains      `json:"partitions"`
	Unrouted          []int64             `json:"unrouted,omitempty"`
}

// RoutedChains is the set of chains one provider serves.
type RoutedChains struct {
	Provider entity.ProviderName `json:"provider"`
	ChainIDs []int64             `json:"chainIds"`
}

// NewHandler creates a Handler.
func NewHandler(portfolio port.PortfolioService, transactions port.TransactionService, nfts port.NFTService, chains port.ChainRegistry) *Handler {
	return &Handler{
		portfolio:    portfolio,
		transactions: transactions,
		nfts:         nfts,
		chains:       chains,
	}
}

// GetPortfolio handles GET /portfolio/:address?chains=1,10&allPages=true&pageLimit=3&pageSize=100&hideZero=true.
func (h *Handler) GetPortfolio(c *gin.Context) {
	chainIDs, err := parseChainList(c.Query("chains"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var opts entity.PortfolioOptions
	if opts.AllPages, err = queryBool(c, "allPages"); err != nil {
		h.fail(c, err)
		return
	}
	if opts.HideZeroValue, err = queryBool(c, "hideZero"); err != nil {
		h.fail(c, err)
		return
	}
	if opts.PageLimit, err = queryInt(c, "pageLimit"); err != nil {
		h.fail(c, err)
		return
	}
	if opts.PageSize, err = queryInt(c, "pageSize"); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.portfolio.GetPortfolio(c.Request.Context(), c.Param("address"), chainIDs, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, result)
}

// GetTransactions handles GET /transactions/:address?chainId=1&sort=desc&pageLimit=2&startBlock=&endBlock=.
func (h *Handler) GetTransactions(c *gin.Context) {
	raw := c.Query("chainId")
	if raw == "" {
		h.fail(c, entity.NewValidationError("", "chainId is required", nil))
		return
	}
	chainID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.fail(c, entity.NewValidationError("", fmt.Sprintf("invalid chainId %q", raw), err))
		return
	}

	filters := entity.TransactionFilters{Sort: c.Query("sort"), IncludeTokenTransfers: true}
	if filters.StartBlock, err = queryInt64(c, "startBlock"); err != nil {
		h.fail(c, err)
		return
	}
	if filters.EndBlock, err = queryInt64(c, "endBlock"); err != nil {
		h.fail(c, err)
		return
	}
	if filters.PageLimit, err = queryInt(c, "pageLimit"); err != nil {
		h.fail(c, err)
		return
	}
	if filters.PageSize, err = queryInt(c, "pageSize"); err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("transfers") != "" {
		if filters.IncludeTokenTransfers, err = queryBool(c, "transfers"); err != nil {
			h.fail(c, err)
			return
		}
	}

	history, err := h.transactions.GetTransactions(c.Request.Context(), c.Param("address"), chainID, filters)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, history)
}

// GetNFTs handles GET /nfts/:address?chains=1,8453&pageLimit=2.
func (h *Handler) GetNFTs(c *gin.Context) {
	chainIDs, err := parseChainList(c.Query("chains"))
	if err != nil {
		h.fail(c, err)
		return
	}
	pageLimit, err := queryInt(c, "pageLimit")
	if err != nil {
		h.fail(c, err)
		return
	}

	collection, err := h.nfts.GetNFTs(c.Request.Context(), c.Param("address"), chainIDs, pageLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, collection)
}

// GetChains lists the enabled chains.
func (h *Handler) GetChains(c *gin.Context) {
	h.ok(c, h.chains.All())
}

// WithRouting enables GET /routing.
func (h *Handler) WithRouting(r RoutePlanner) *Handler {
	h.routing = r
	return h
}

// GetRouting handles GET /routing?chains=1,42220. Without chains every enabled chain is planned.
func (h *Handler) GetRouting(c *gin.Context) {
	chainIDs, err := parseChainList(c.Query("chains"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(chainIDs) == 0 {
		for _, def := range h.chains.All() {
			chainIDs = append(chainIDs, def.ChainID)
		}
	}

	partitions, unrouted := h.routing.Partition(chainIDs)
	plan := RoutingPlan{Partitions: make([]RoutedChains, 0, len(partitions)), Unrouted: unrouted}
	if p, ok := h.routing.PreferredFor(chainIDs); ok {
		plan.PreferredProvider = p
	}
	for _, part := range partitions {
		plan.Partitions = append(plan.Partitions, RoutedChains{Provider: part.Provider, ChainIDs: part.ChainIDs})
	}
	h.ok(c, plan)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Data: data, RequestID: c.GetString(requestIDKey)})
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status, kind := statusFor(err)
	c.AbortWithStatusJSON(status, APIError{
		Error:     ErrorBody{Kind: kind, Message: err.Error()},
		RequestID: c.GetString(requestIDKey),
	})
}

// statusFor maps the error taxonomy onto HTTP statuses: bad input is 400, an
// upstream that failed for good is 502, anything else is 500.
func statusFor(err error) (int, string) {
	switch entity.KindOf(err) {
	case entity.KindValidation:
		return http.StatusBadRequest, entity.KindValidation.String()
	case entity.KindApplication:
		return http.StatusBadGateway, entity.KindApplication.String()
	}
	if errors.Is(err, context.Canceled) {
		return 499, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

func parseChainList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, entity.NewValidationError("", fmt.Sprintf("invalid chain id %q", p), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, entity.NewValidationError("", fmt.Sprintf("invalid %s %q", name, raw), err)
	}
	return v, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v, err := queryInt64(c, name)
	return int(v), err
}

func queryInt64(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, entity.NewValidationError("", fmt.Sprintf("invalid %s %q", name, raw), err)
	}
	return v, nil
}
