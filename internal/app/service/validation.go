package service

import (
	"fmt"
	"sort"
	"strings"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
)

// normalizeAddress validates a wallet address and lowercases it so that cache
// keys and upstream queries do not depend on checksum casing.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return "", entity.NewValidationError("", fmt.Sprintf("invalid wallet address %q", address), entity.ErrInvalidAddress)
	}
	return strings.ToLower(address), nil
}

// normalizeChains dedupes and sorts chainIDs. An empty request means every enabled chain.
func normalizeChains(chains port.ChainRegistry, chainIDs []int64) ([]int64, error) {
	if len(chainIDs) == 0 {
		all := chains.All()
		ids := make([]int64, 0, len(all))
		for _, def := range all {
			ids = append(ids, def.ChainID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids, nil
	}

	seen := make(map[int64]struct{}, len(chainIDs))
	ids := make([]int64, 0, len(chainIDs))
	for _, id := range chainIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := chains.Get(id); !ok {
			return nil, entity.NewValidationError("", fmt.Sprintf("unsupported chain %d", id), entity.ErrUnsupportedChain)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
