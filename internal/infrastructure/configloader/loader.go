package configloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	Port                string   `yaml:"port"`
	ReadTimeoutSeconds  int      `yaml:"readTimeoutSeconds"`
	WriteTimeoutSeconds int      `yaml:"writeTimeoutSeconds"`
	IdleTimeoutSeconds  int      `yaml:"idleTimeoutSeconds"`
	AllowedOrigins      []string `yaml:"allowedOrigins"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend                string `yaml:"backend"` // "redis" or "memory"
	RedisURL               string `yaml:"redisURL"`
	CleanupIntervalMinutes int    `yaml:"cleanupIntervalMinutes"`
	PortfolioTTLMillis     int64  `yaml:"portfolioTTLMillis"`
	TransactionsTTLMillis  int64  `yaml:"transactionsTTLMillis"`
	NFTsTTLMillis          int64  `yaml:"nftsTTLMillis"`
	OperationTimeoutMillis int64  `yaml:"operationTimeoutMillis"`
}

// RateLimitConfig is a sliding window of MaxCalls per WindowMillis.
type RateLimitConfig struct {
	WindowMillis  int64 `yaml:"windowMillis"`
	MaxCalls      int   `yaml:"maxCalls"`
	MinWaitMillis int64 `yaml:"minWaitMillis"`
}

// RetryConfig configures the retry policy of one upstream.
type RetryConfig struct {
	MaxRetries      int    `yaml:"maxRetries"`
	BaseDelayMillis int64  `yaml:"baseDelayMillis"`
	Backoff         string `yaml:"backoff"` // "linear" or "exponential"
}

// ZerionConfig holds position-indexer settings.
type ZerionConfig struct {
	BaseURL              string          `yaml:"baseURL"`
	APIKey               string          `yaml:"apiKey"`
	RequestTimeoutMillis int64           `yaml:"requestTimeoutMillis"`
	PageSize             int             `yaml:"pageSize"`
	PageDelayMillis      int64           `yaml:"pageDelayMillis"`
	RateLimit            RateLimitConfig `yaml:"rateLimit"`
	Retry                RetryConfig     `yaml:"retry"`
}

// AlchemyConfig holds wallet-data API settings.
type AlchemyConfig struct {
	BaseURL               string          `yaml:"baseURL"`
	APIKey                string          `yaml:"apiKey"`
	RequestTimeoutMillis  int64           `yaml:"requestTimeoutMillis"`
	MaxNetworksPerRequest int             `yaml:"maxNetworksPerRequest"`
	NFTPageSize           int             `yaml:"nftPageSize"`
	RateLimit             RateLimitConfig `yaml:"rateLimit"`
	Retry                 RetryConfig     `yaml:"retry"`
}

// EtherscanConfig holds block-explorer settings.
type EtherscanConfig struct {
	BaseURL              string      `yaml:"baseURL"`
	APIKey               string      `yaml:"apiKey"`
	RequestTimeoutMillis int64       `yaml:"requestTimeoutMillis"`
	MinIntervalMillis    int64       `yaml:"minIntervalMillis"`
	PageSize             int         `yaml:"pageSize"`
	Retry                RetryConfig `yaml:"retry"`
}

// TokenListConfig holds the reference token list settings.
// File, when set, is read instead of fetching URL.
type TokenListConfig struct {
	URL                  string      `yaml:"url"`
	File                 string      `yaml:"file"`
	TTLMinutes           int         `yaml:"ttlMinutes"`
	RequestTimeoutMillis int64       `yaml:"requestTimeoutMillis"`
	Retry                RetryConfig `yaml:"retry"`
}

// DEXScreenerConfig holds DEXScreener API specific configurations.
type DEXScreenerConfig struct {
	Enabled                  bool   `yaml:"enabled"`
	BaseURL                  string `yaml:"baseURL"`
	RequestTimeoutMillis     int64  `yaml:"requestTimeoutMillis"`
	MaxTokensPerBatchRequest int    `yaml:"maxTokensPerBatchRequest"`
	CacheTTLMinutes          int    `yaml:"cacheTTLMinutes"`
}

// AggregatorConfig tunes the aggregation fan-out.
type AggregatorConfig struct {
	Chains                  []int64 `yaml:"chains"`
	MaxConcurrentPartitions int     `yaml:"maxConcurrentPartitions"`
	DefaultPageLimit        int     `yaml:"defaultPageLimit"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
	Zerion      ZerionConfig      `yaml:"zerion"`
	Alchemy     AlchemyConfig     `yaml:"alchemy"`
	Etherscan   EtherscanConfig   `yaml:"etherscan"`
	TokenList   TokenListConfig   `yaml:"tokenList"`
	DEXScreener DEXScreenerConfig `yaml:"dexScreener"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// Load reads the YAML configuration file at path, fills defaults and applies
// environment overrides. An empty path or a missing file at the default path
// yields a configuration built from defaults and the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		logrus.Infof("Loading configuration from path: %s", path)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
				return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && os.Getenv("CONFIG_PATH") == "":
			logrus.Warnf("Config file %s not found, using defaults and environment", path)
		default:
			logrus.Errorf("Failed to read config file %s: %v", path, err)
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
			logrus.Debugf("%s set from environment", name)
		}
	}
	override("ZERION_API_KEY", &cfg.Zerion.APIKey)
	override("ALCHEMY_API_KEY", &cfg.Alchemy.APIKey)
	override("ETHERSCAN_API_KEY", &cfg.Etherscan.APIKey)
	override("REDIS_URL", &cfg.Cache.RedisURL)
	override("CACHE_BACKEND", &cfg.Cache.Backend)
	override("LOG_LEVEL", &cfg.Logging.Level)
	override("SERVER_PORT", &cfg.Server.Port)
	override("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	if v, ok := os.LookupEnv("TRACING_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		} else {
			logrus.Warnf("Ignoring invalid TRACING_ENABLED value %q", v)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	} else if !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	defaultInt(&cfg.Server.ReadTimeoutSeconds, 10, "server.readTimeoutSeconds")
	defaultInt(&cfg.Server.WriteTimeoutSeconds, 60, "server.writeTimeoutSeconds")
	defaultInt(&cfg.Server.IdleTimeoutSeconds, 120, "server.idleTimeoutSeconds")

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Cache.Backend == "" {
		if cfg.Cache.RedisURL != "" {
			cfg.Cache.Backend = "redis"
		} else {
			cfg.Cache.Backend = "memory"
		}
		logrus.Infof("cache.backend not set, defaulting to %s", cfg.Cache.Backend)
	}
	defaultInt(&cfg.Cache.CleanupIntervalMinutes, 10, "cache.cleanupIntervalMinutes")
	defaultInt64(&cfg.Cache.PortfolioTTLMillis, 5*60*1000, "cache.portfolioTTLMillis")
	defaultInt64(&cfg.Cache.TransactionsTTLMillis, 2*60*1000, "cache.transactionsTTLMillis")
	defaultInt64(&cfg.Cache.NFTsTTLMillis, 10*60*1000, "cache.nftsTTLMillis")
	defaultInt64(&cfg.Cache.OperationTimeoutMillis, 500, "cache.operationTimeoutMillis")

	defaultString(&cfg.Zerion.BaseURL, "https://api.zerion.io/v1", "zerion.baseURL")
	defaultInt64(&cfg.Zerion.RequestTimeoutMillis, 30000, "zerion.requestTimeoutMillis")
	defaultInt(&cfg.Zerion.PageSize, 100, "zerion.pageSize")
	defaultInt64(&cfg.Zerion.PageDelayMillis, 1000, "zerion.pageDelayMillis")
	defaultRateLimit(&cfg.Zerion.RateLimit, 500, 10, "zerion")
	defaultRetry(&cfg.Zerion.Retry, 5, 1000, "exponential", "zerion")

	defaultString(&cfg.Alchemy.BaseURL, "https://api.g.alchemy.com/data/v1", "alchemy.baseURL")
	defaultInt64(&cfg.Alchemy.RequestTimeoutMillis, 30000, "alchemy.requestTimeoutMillis")
	defaultInt(&cfg.Alchemy.MaxNetworksPerRequest, 5, "alchemy.maxNetworksPerRequest")
	defaultInt(&cfg.Alchemy.NFTPageSize, 100, "alchemy.nftPageSize")
	defaultRateLimit(&cfg.Alchemy.RateLimit, 1000, 25, "alchemy")
	defaultRetry(&cfg.Alchemy.Retry, 3, 1000, "linear", "alchemy")

	defaultString(&cfg.Etherscan.BaseURL, "https://api.etherscan.io/v2/api", "etherscan.baseURL")
	defaultInt64(&cfg.Etherscan.RequestTimeoutMillis, 10000, "etherscan.requestTimeoutMillis")
	defaultInt64(&cfg.Etherscan.MinIntervalMillis, 200, "etherscan.minIntervalMillis")
	defaultInt(&cfg.Etherscan.PageSize, 1000, "etherscan.pageSize")
	defaultRetry(&cfg.Etherscan.Retry, 3, 2000, "exponential", "etherscan")

	defaultString(&cfg.TokenList.URL, "https://ipfs.io/ipns/tokens.uniswap.org", "tokenList.url")
	defaultInt(&cfg.TokenList.TTLMinutes, 24*60, "tokenList.ttlMinutes")
	defaultInt64(&cfg.TokenList.RequestTimeoutMillis, 15000, "tokenList.requestTimeoutMillis")
	defaultRetry(&cfg.TokenList.Retry, 2, 500, "linear", "tokenList")

	defaultString(&cfg.DEXScreener.BaseURL, "https://api.dexscreener.com", "dexScreener.baseURL")
	defaultInt64(&cfg.DEXScreener.RequestTimeoutMillis, 10000, "dexScreener.requestTimeoutMillis")
	defaultInt(&cfg.DEXScreener.MaxTokensPerBatchRequest, 30, "dexScreener.maxTokensPerBatchRequest")
	defaultInt(&cfg.DEXScreener.CacheTTLMinutes, 60, "dexScreener.cacheTTLMinutes")

	defaultInt(&cfg.Aggregator.MaxConcurrentPartitions, 4, "aggregator.maxConcurrentPartitions")
	defaultInt(&cfg.Aggregator.DefaultPageLimit, 10, "aggregator.defaultPageLimit")
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.backend is redis but no redisURL (or REDIS_URL) is set")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	for name, r := range map[string]RetryConfig{
		"zerion": c.Zerion.Retry, "alchemy": c.Alchemy.Retry, "etherscan": c.Etherscan.Retry, "tokenList": c.TokenList.Retry,
	} {
		if r.Backoff != "linear" && r.Backoff != "exponential" {
			return fmt.Errorf("%s.retry.backoff must be linear or exponential, got %q", name, r.Backoff)
		}
	}
	if c.Zerion.APIKey == "" && c.Alchemy.APIKey == "" {
		logrus.Warn("Neither ZERION_API_KEY nor ALCHEMY_API_KEY is set; position requests will fail")
	}
	return nil
}

func defaultString(dst *string, v, name string) {
	if *dst == "" {
		*dst = v
		logrus.Debugf("%s not set, defaulting to %s", name, v)
	}
}

func defaultInt(dst *int, v int, name string) {
	if *dst <= 0 {
		*dst = v
		logrus.Debugf("%s not set, defaulting to %d", name, v)
	}
}

func defaultInt64(dst *int64, v int64, name string) {
	if *dst <= 0 {
		*dst = v
		logrus.Debugf("%s not set, defaulting to %d", name, v)
	}
}

func defaultRateLimit(r *RateLimitConfig, windowMillis int64, maxCalls int, upstream string) {
	defaultInt64(&r.WindowMillis, windowMillis, upstream+".rateLimit.windowMillis")
	defaultInt(&r.MaxCalls, maxCalls, upstream+".rateLimit.maxCalls")
	defaultInt64(&r.MinWaitMillis, 50, upstream+".rateLimit.minWaitMillis")
}

func defaultRetry(r *RetryConfig, maxRetries int, baseMillis int64, backoff, upstream string) {
	if r.MaxRetries == 0 {
		r.MaxRetries = maxRetries
	}
	defaultInt64(&r.BaseDelayMillis, baseMillis, upstream+".retry.baseDelayMillis")
	defaultString(&r.Backoff, backoff, upstream+".retry.backoff")
}

// Millis converts a millisecond setting to a time.Duration.
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Window returns the sliding window length.
func (r RateLimitConfig) Window() time.Duration { return Millis(r.WindowMillis) }

// BaseDelay returns the first backoff step.
func (r RetryConfig) BaseDelay() time.Duration { return Millis(r.BaseDelayMillis) }
