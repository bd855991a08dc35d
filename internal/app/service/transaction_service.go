package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/cache"

	"go.uber.org/zap"
)

const defaultTransactionsTTL = 2 * time.Minute

// TransactionService implements port.TransactionService. The block explorer
// serves every chain it supports; the position indexer covers the rest.
type TransactionService struct {
	explorer port.TransactionProvider
	indexer  port.TransactionProvider
	chains   port.ChainRegistry
	cache    *cache.Layer
	ttl      time.Duration
	logger   *zap.Logger
}

// NewTransactionService creates a TransactionService. Either provider may be nil,
// but not both.
func NewTransactionService(explorer, indexer port.TransactionProvider, chains port.ChainRegistry, cacheLayer *cache.Layer, ttl time.Duration, logger *zap.Logger) *TransactionService {
	if ttl <= 0 {
		ttl = defaultTransactionsTTL
	}
	return &TransactionService{
		explorer: explorer,
		indexer:  indexer,
		chains:   chains,
		cache:    cacheLayer,
		ttl:      ttl,
		logger:   logger.Named("TransactionService"),
	}
}

type transactionsKey struct {
	Address string                    `json:"address"`
	ChainID int64                     `json:"chainId"`
	Source  entity.ProviderName       `json:"source"`
	Filters entity.TransactionFilters `json:"filters"`
}

// GetTransactions returns the deduplicated history of address on chainID.
func (s *TransactionService) GetTransactions(ctx context.Context, address string, chainID int64, filters entity.TransactionFilters) (entity.TransactionHistory, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return entity.TransactionHistory{}, err
	}
	def, ok := s.chains.Get(chainID)
	if !ok {
		return entity.TransactionHistory{}, entity.NewValidationError("", fmt.Sprintf("unsupported chain %d", chainID), entity.ErrUnsupportedChain)
	}
	filters, err = normalizeFilters(filters)
	if err != nil {
		return entity.TransactionHistory{}, err
	}

	source := s.sourceFor(def)
	if source == nil {
		return entity.TransactionHistory{}, fmt.Errorf("transactions for chain %d: %w", chainID, entity.ErrProviderNotConfigured)
	}

	key := transactionsKey{Address: address, ChainID: chainID, Source: source.Name(), Filters: filters}
	return cache.Cached(ctx, s.cache, cache.NamespaceTransactions, key, s.ttl,
		func(ctx context.Context) (entity.TransactionHistory, error) {
			txs, err := source.GetTransactions(ctx, address, chainID, filters)
			if err != nil {
				s.logger.Warn("Transaction fetch failed",
					zap.String("provider", string(source.Name())),
					zap.Int64("chainId", chainID),
					zap.Error(err))
				return entity.TransactionHistory{}, err
			}
			if txs == nil {
				txs = []entity.Transaction{}
			}
			return entity.TransactionHistory{
				WalletAddress: address,
				ChainID:       chainID,
				Transactions:  txs,
				Source:        source.Name(),
			}, nil
		})
}

func (s *TransactionService) sourceFor(def entity.ChainDefinition) port.TransactionProvider {
	if s.explorer != nil && def.ExplorerSupported {
		return s.explorer
	}
	return s.indexer
}

func normalizeFilters(f entity.TransactionFilters) (entity.TransactionFilters, error) {
	f.Sort = strings.ToLower(strings.TrimSpace(f.Sort))
	switch f.Sort {
	case "":
		f.Sort = "desc"
	case "asc", "desc":
	default:
		return f, entity.NewValidationError("", fmt.Sprintf("sort must be asc or desc, got %q", f.Sort), nil)
	}
	if f.StartBlock < 0 || f.EndBlock < 0 || f.PageSize < 0 || f.PageLimit < 0 {
		return f, entity.NewValidationError("", "block range and paging parameters must not be negative", nil)
	}
	if f.EndBlock != 0 && f.StartBlock > f.EndBlock {
		return f, entity.NewValidationError("", "startBlock is after endBlock", nil)
	}
	return f, nil
}
