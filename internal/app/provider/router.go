// Package provider decides which upstream serves which chain.
package provider

import (
	"portfolio_aggregator/internal/domain/entity"
)

// RouterConfig is the static routing table.
type RouterConfig struct {
	// Preferences maps a canonical chain ID to its preferred provider.
	Preferences map[int64]entity.ProviderName
	// HighThroughput providers win ties between mixed preferences.
	HighThroughput []entity.ProviderName
	// Available lists the configured providers. Empty means all are available.
	Available []entity.ProviderName
	// Fallbacks serve chains whose preferred provider is unavailable, tried in order.
	Fallbacks []entity.ProviderName
	// Coverage lists the chains each provider can serve. A provider without an
	// entry is assumed to serve every chain.
	Coverage map[entity.ProviderName][]int64
}

// Partition is the subset of requested chains routed to one provider.
type Partition struct {
	Provider entity.ProviderName
	ChainIDs []int64
}

// Router is a pure function of its table: no I/O and no mutable state.
type Router struct {
	table          map[int64]entity.ProviderName
	highThroughput map[entity.ProviderName]bool
	available      map[entity.ProviderName]bool
	fallbacks      []entity.ProviderName
	coverage       map[entity.ProviderName]map[int64]bool
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		table:          make(map[int64]entity.ProviderName, len(cfg.Preferences)),
		highThroughput: make(map[entity.ProviderName]bool, len(cfg.HighThroughput)),
		fallbacks:      append([]entity.ProviderName(nil), cfg.Fallbacks...),
		coverage:       make(map[entity.ProviderName]map[int64]bool, len(cfg.Coverage)),
	}
	for p, ids := range cfg.Coverage {
		covered := make(map[int64]bool, len(ids))
		for _, id := range ids {
			covered[id] = true
		}
		r.coverage[p] = covered
	}
	for id, p := range cfg.Preferences {
		r.table[id] = p
	}
	for _, p := range cfg.HighThroughput {
		r.highThroughput[p] = true
	}
	if len(cfg.Available) > 0 {
		r.available = make(map[entity.ProviderName]bool, len(cfg.Available))
		for _, p := range cfg.Available {
			r.available[p] = true
		}
	}
	return r
}

func (r *Router) isAvailable(p entity.ProviderName) bool {
	return r.available == nil || r.available[p]
}

func (r *Router) covers(p entity.ProviderName, chainID int64) bool {
	covered, ok := r.coverage[p]
	return !ok || covered[chainID]
}

// ProviderFor returns the provider that serves chainID. When the preferred
// provider is unavailable the first available fallback covering the chain is
// used. Without one the preferred provider is still returned. ok is false for
// chains missing from the table.
func (r *Router) ProviderFor(chainID int64) (entity.ProviderName, bool) {
	p, ok := r.table[chainID]
	if !ok {
		return "", false
	}
	if r.isAvailable(p) {
		return p, true
	}
	for _, f := range r.fallbacks {
		if f != p && r.isAvailable(f) && r.covers(f, chainID) {
			return f, true
		}
	}
	return p, true
}

// PreferredFor picks a single provider for a set of chains. If every chain agrees,
// that provider wins. Otherwise the first high-throughput provider preferred by
// any of the chains wins, and failing that the provider of the first chain.
func (r *Router) PreferredFor(chainIDs []int64) (entity.ProviderName, bool) {
	var first entity.ProviderName
	agree := true
	for _, id := range chainIDs {
		p, ok := r.ProviderFor(id)
		if !ok {
			continue
		}
		if first == "" {
			first = p
		} else if p != first {
			agree = false
		}
	}
	if first == "" {
		return "", false
	}
	if agree {
		return first, true
	}
	for _, id := range chainIDs {
		if p, ok := r.ProviderFor(id); ok && r.highThroughput[p] {
			return p, true
		}
	}
	return first, true
}

// Partition groups chainIDs by provider. Partitions and the chains inside them
// keep the order of first appearance. Unknown chains are returned separately.
func (r *Router) Partition(chainIDs []int64) (partitions []Partition, unknown []int64) {
	index := make(map[entity.ProviderName]int)
	for _, id := range chainIDs {
		p, ok := r.ProviderFor(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		i, seen := index[p]
		if !seen {
			i = len(partitions)
			index[p] = i
			partitions = append(partitions, Partition{Provider: p})
		}
		partitions[i].ChainIDs = append(partitions[i].ChainIDs, id)
	}
	return partitions, unknown
}
