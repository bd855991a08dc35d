package networkdefinition

import (
	"sort"
	"strings"

	"portfolio_aggregator/internal/domain/entity"

	"go.uber.org/zap"
)

// Predefined chain definitions
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.ChainDefinition{
		ChainID:           1,
		Name:              "ethereum",
		NativeSymbol:      "ETH",
		NativeName:        "Ethereum",
		Decimals:          18,
		ZerionID:          "ethereum",
		AlchemyNetwork:    "eth-mainnet",
		DEXScreenerID:     "ethereum",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Optimism = entity.ChainDefinition{
		ChainID:           10,
		Name:              "optimism",
		NativeSymbol:      "ETH",
		NativeName:        "Ethereum",
		Decimals:          18,
		ZerionID:          "optimism",
		AlchemyNetwork:    "opt-mainnet",
		DEXScreenerID:     "optimism",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Base = entity.ChainDefinition{
		ChainID:           8453,
		Name:              "base",
		NativeSymbol:      "ETH",
		NativeName:        "Ethereum",
		Decimals:          18,
		ZerionID:          "base",
		AlchemyNetwork:    "base-mainnet",
		DEXScreenerID:     "base",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Arbitrum = entity.ChainDefinition{
		ChainID:           42161,
		Name:              "arbitrum",
		NativeSymbol:      "ETH",
		NativeName:        "Ethereum",
		Decimals:          18,
		ZerionID:          "arbitrum",
		AlchemyNetwork:    "arb-mainnet",
		DEXScreenerID:     "arbitrum",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Polygon = entity.ChainDefinition{
		ChainID:           137,
		Name:              "polygon",
		NativeSymbol:      "POL",
		NativeName:        "Polygon",
		Decimals:          18,
		ZerionID:          "polygon",
		AlchemyNetwork:    "polygon-mainnet",
		DEXScreenerID:     "polygon",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Berachain = entity.ChainDefinition{
		ChainID:           80094,
		Name:              "berachain",
		NativeSymbol:      "BERA",
		NativeName:        "Berachain",
		Decimals:          18,
		ZerionID:          "berachain",
		AlchemyNetwork:    "berachain-mainnet",
		DEXScreenerID:     "berachain",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderAlchemy,
	}
	Celo = entity.ChainDefinition{
		ChainID:           42220,
		Name:              "celo",
		NativeSymbol:      "CELO",
		NativeName:        "Celo",
		Decimals:          18,
		ZerionID:          "celo",
		AlchemyNetwork:    "celo-mainnet",
		DEXScreenerID:     "celo",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderZerion,
	}
	HyperEVM = entity.ChainDefinition{
		ChainID:           999,
		Name:              "hyperevm",
		NativeSymbol:      "HYPE",
		NativeName:        "Hyperliquid",
		Decimals:          18,
		ZerionID:          "hyperevm",
		DEXScreenerID:     "hyperevm",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderZerion,
	}
	BSC = entity.ChainDefinition{
		ChainID:           56,
		Name:              "bsc",
		NativeSymbol:      "BNB",
		NativeName:        "BNB",
		Decimals:          18,
		ZerionID:          "binance-smart-chain",
		AlchemyNetwork:    "bnb-mainnet",
		DEXScreenerID:     "bsc",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderZerion,
	}
	Avalanche = entity.ChainDefinition{
		ChainID:           43114,
		Name:              "avalanche",
		NativeSymbol:      "AVAX",
		NativeName:        "Avalanche",
		Decimals:          18,
		ZerionID:          "avalanche",
		AlchemyNetwork:    "avax-mainnet",
		DEXScreenerID:     "avalanche",
		ExplorerSupported: true,
		PreferredProvider: entity.ProviderZerion,
	}
)

var allKnownDefinitions = []entity.ChainDefinition{ //nolint:gochecknoglobals
	Ethereum, Optimism, Base, Arbitrum, Polygon, Berachain, Celo, HyperEVM, BSC, Avalanche,
}

// NameMapping translates between canonical chain IDs and one upstream's chain names.
type NameMapping struct {
	toUpstream  map[int64]string
	toCanonical map[string]int64
}

// NewNameMapping builds a mapping from canonical ID to upstream name. Empty names are skipped.
func NewNameMapping(pairs map[int64]string) NameMapping {
	m := NameMapping{
		toUpstream:  make(map[int64]string, len(pairs)),
		toCanonical: make(map[string]int64, len(pairs)),
	}
	for id, name := range pairs {
		if name == "" {
			continue
		}
		m.toUpstream[id] = name
		m.toCanonical[strings.ToLower(name)] = id
	}
	return m
}

// Upstream returns the upstream name of a canonical chain.
func (m NameMapping) Upstream(chainID int64) (string, bool) {
	name, ok := m.toUpstream[chainID]
	return name, ok
}

// Canonical returns the canonical chain ID of an upstream name.
func (m NameMapping) Canonical(name string) (int64, bool) {
	id, ok := m.toCanonical[strings.ToLower(name)]
	return id, ok
}

// Registry serves chain definitions for the enabled chains.
type Registry struct {
	logger *zap.Logger
	byID   map[int64]entity.ChainDefinition
	order  []int64

	zerion      NameMapping
	alchemy     NameMapping
	dexScreener NameMapping
}

// NewRegistry creates a Registry restricted to enabled. An empty list enables every known chain.
func NewRegistry(logger *zap.Logger, enabled []int64) *Registry {
	r := &Registry{
		logger: logger.Named("ChainRegistry"),
		byID:   make(map[int64]entity.ChainDefinition),
	}

	want := make(map[int64]struct{}, len(enabled))
	for _, id := range enabled {
		want[id] = struct{}{}
	}

	zerion := map[int64]string{}
	alchemy := map[int64]string{}
	dex := map[int64]string{}
	for _, def := range allKnownDefinitions {
		if len(want) > 0 {
			if _, ok := want[def.ChainID]; !ok {
				continue
			}
			delete(want, def.ChainID)
		}
		r.byID[def.ChainID] = def
		r.order = append(r.order, def.ChainID)
		zerion[def.ChainID] = def.ZerionID
		alchemy[def.ChainID] = def.AlchemyNetwork
		dex[def.ChainID] = def.DEXScreenerID
	}
	for id := range want {
		r.logger.Warn("Enabled chain has no definition, ignoring", zap.Int64("chainId", id))
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })

	r.zerion = NewNameMapping(zerion)
	r.alchemy = NewNameMapping(alchemy)
	r.dexScreener = NewNameMapping(dex)

	r.logger.Info("Chain registry initialized", zap.Int("chains", len(r.byID)))
	return r
}

// Get returns the definition of chainID.
func (r *Registry) Get(chainID int64) (entity.ChainDefinition, bool) {
	def, ok := r.byID[chainID]
	return def, ok
}

// All returns every enabled definition ordered by chain ID.
func (r *Registry) All() []entity.ChainDefinition {
	out := make([]entity.ChainDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Preferences returns the static chain to provider table.
func (r *Registry) Preferences() map[int64]entity.ProviderName {
	out := make(map[int64]entity.ProviderName, len(r.byID))
	for id, def := range r.byID {
		out[id] = def.PreferredProvider
	}
	return out
}

// Coverage returns, per position provider, the chains it has a network mapping for.
func (r *Registry) Coverage() map[entity.ProviderName][]int64 {
	out := map[entity.ProviderName][]int64{}
	for _, id := range r.order {
		def := r.byID[id]
		if def.ZerionID != "" {
			out[entity.ProviderZerion] = append(out[entity.ProviderZerion], id)
		}
		if def.AlchemyNetwork != "" {
			out[entity.ProviderAlchemy] = append(out[entity.ProviderAlchemy], id)
		}
	}
	return out
}

func (r *Registry) ZerionNames() NameMapping     { return r.zerion }
func (r *Registry) AlchemyNetworks() NameMapping { return r.alchemy }
func (r *Registry) DEXScreenerIDs() NameMapping  { return r.dexScreener }
