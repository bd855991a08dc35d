package dexscreener

// tokenPairsEnvelope is the wrapped form of a token-pairs response. The
// /tokens/v1 endpoint usually returns a bare array instead.
type tokenPairsEnvelope struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is a trading pair as reported by DEX Screener.
type Pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	URL         string     `json:"url"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   Token      `json:"baseToken"`
	QuoteToken  Token      `json:"quoteToken"`
	PriceNative string     `json:"priceNative"`
	PriceUsd    string     `json:"priceUsd"`
	Liquidity   *Liquidity `json:"liquidity"`
	Fdv         float64    `json:"fdv"`
	MarketCap   float64    `json:"marketCap"`
}

// Token is one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity of a pair. It is absent for some pools.
type Liquidity struct {
	Usd   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// LiquidityUSD returns the pair's USD liquidity, or zero when unknown.
func (p Pair) LiquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.Usd
}
