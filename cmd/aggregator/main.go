package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/app/provider"
	"portfolio_aggregator/internal/app/service"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/infrastructure/cache"
	"portfolio_aggregator/internal/infrastructure/configloader"
	"portfolio_aggregator/internal/infrastructure/httpclient"
	networkdefinition "portfolio_aggregator/internal/infrastructure/network/definition"
	"portfolio_aggregator/internal/infrastructure/restapi"
	"portfolio_aggregator/internal/infrastructure/tokenlist"
	"portfolio_aggregator/internal/infrastructure/upstream/alchemy"
	"portfolio_aggregator/internal/infrastructure/upstream/dexscreener"
	"portfolio_aggregator/internal/infrastructure/upstream/etherscan"
	"portfolio_aggregator/internal/infrastructure/upstream/zerion"
	"portfolio_aggregator/internal/pkg/logger"
	"portfolio_aggregator/internal/pkg/metrics"
	"portfolio_aggregator/internal/pkg/resilience"
	"portfolio_aggregator/internal/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "config/config.yaml"
	serviceName       = "portfolio-aggregator"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger.InstallSlog(zapLogger)

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Service stopped with error", zap.Error(err))
	}
}

func run(cfg *configloader.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := tracing.InitTracer(ctx, cfg.Tracing.Enabled, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	metrics.MustRegisterMetrics()

	chains := networkdefinition.NewRegistry(log, cfg.Aggregator.Chains)
	cacheLayer, closeCache := newCacheLayer(ctx, cfg.Cache, log)
	defer closeCache()

	tokens := tokenlist.NewRegistry(
		tokenlist.Config{
			URL:  cfg.TokenList.URL,
			File: cfg.TokenList.File,
			TTL:  time.Duration(cfg.TokenList.TTLMinutes) * time.Minute,
		},
		newHTTPClient("tokenlist", cfg.TokenList.RequestTimeoutMillis, tracer, log),
		retryPolicy("tokenlist", cfg.TokenList.Retry, log),
		log,
	)
	go func() {
		if err := tokens.Refresh(ctx); err != nil {
			log.Warn("Initial token list load failed, enrichment will retry lazily", zap.Error(err))
		}
	}()

	var (
		positionProviders []port.PositionProvider
		available         []entity.ProviderName
		indexer           port.TransactionProvider
		explorer          port.TransactionProvider
		nftProvider       port.NFTProvider
	)

	if cfg.Zerion.APIKey != "" {
		z := zerion.NewClient(
			zerion.Config{
				BaseURL:   cfg.Zerion.BaseURL,
				APIKey:    cfg.Zerion.APIKey,
				PageSize:  cfg.Zerion.PageSize,
				PageDelay: configloader.Millis(cfg.Zerion.PageDelayMillis),
			},
			newHTTPClient(entity.ProviderZerion, cfg.Zerion.RequestTimeoutMillis, tracer, log, httpclient.WithSecret(cfg.Zerion.APIKey)),
			slidingLimiter(entity.ProviderZerion, cfg.Zerion.RateLimit),
			retryPolicy(entity.ProviderZerion, cfg.Zerion.Retry, log),
			chains.ZerionNames(),
			log,
		)
		positionProviders = append(positionProviders, z)
		available = append(available, entity.ProviderZerion)
		indexer = z
	} else {
		log.Warn("ZERION_API_KEY not set, position indexer disabled")
	}

	if cfg.Alchemy.APIKey != "" {
		a := alchemy.NewClient(
			alchemy.Config{
				BaseURL:               cfg.Alchemy.BaseURL,
				APIKey:                cfg.Alchemy.APIKey,
				MaxNetworksPerRequest: cfg.Alchemy.MaxNetworksPerRequest,
				NFTPageSize:           cfg.Alchemy.NFTPageSize,
			},
			newHTTPClient(entity.ProviderAlchemy, cfg.Alchemy.RequestTimeoutMillis, tracer, log, httpclient.WithSecret(cfg.Alchemy.APIKey)),
			slidingLimiter(entity.ProviderAlchemy, cfg.Alchemy.RateLimit),
			retryPolicy(entity.ProviderAlchemy, cfg.Alchemy.Retry, log),
			chains,
			tokens,
			log,
		)
		positionProviders = append(positionProviders, a)
		available = append(available, entity.ProviderAlchemy)
		nftProvider = a
	} else {
		log.Warn("ALCHEMY_API_KEY not set, wallet-data API disabled")
	}

	if cfg.Etherscan.APIKey != "" {
		explorer = etherscan.NewClient(
			etherscan.Config{
				BaseURL:  cfg.Etherscan.BaseURL,
				APIKey:   cfg.Etherscan.APIKey,
				PageSize: cfg.Etherscan.PageSize,
			},
			newHTTPClient(entity.ProviderEtherscan, cfg.Etherscan.RequestTimeoutMillis, tracer, log, httpclient.WithSecret(cfg.Etherscan.APIKey)),
			resilience.NewSpacingLimiter(configloader.Millis(cfg.Etherscan.MinIntervalMillis), metrics.ObserveWait(string(entity.ProviderEtherscan))),
			retryPolicy(entity.ProviderEtherscan, cfg.Etherscan.Retry, log),
			chains,
			log,
		)
	} else {
		log.Warn("ETHERSCAN_API_KEY not set, transactions fall back to the position indexer")
	}

	var prices port.TokenPriceService
	if cfg.DEXScreener.Enabled {
		dex := dexscreener.NewClient(
			cfg.DEXScreener.BaseURL,
			newHTTPClient("dexscreener", cfg.DEXScreener.RequestTimeoutMillis, tracer, log),
			log,
			cfg.DEXScreener.MaxTokensPerBatchRequest,
		)
		prices = service.NewPriceService(dex, chains.DEXScreenerIDs(), time.Duration(cfg.DEXScreener.CacheTTLMinutes)*time.Minute, log)
	}

	router := provider.NewRouter(provider.RouterConfig{
		Preferences:    chains.Preferences(),
		HighThroughput: []entity.ProviderName{entity.ProviderAlchemy},
		Available:      available,
		Fallbacks:      []entity.ProviderName{entity.ProviderZerion, entity.ProviderAlchemy},
		Coverage:       chains.Coverage(),
	})

	portfolioSvc := service.NewPortfolioService(
		service.PortfolioConfig{
			CacheTTL:                configloader.Millis(cfg.Cache.PortfolioTTLMillis),
			MaxConcurrentPartitions: cfg.Aggregator.MaxConcurrentPartitions,
			DefaultPageLimit:        cfg.Aggregator.DefaultPageLimit,
		},
		chains, router, positionProviders, prices, cacheLayer, tracer, log,
	)
	transactionSvc := service.NewTransactionService(explorer, indexer, chains, cacheLayer, configloader.Millis(cfg.Cache.TransactionsTTLMillis), log)
	nftSvc := service.NewNFTService(nftProvider, chains, cacheLayer, configloader.Millis(cfg.Cache.NFTsTTLMillis), log)

	gin.SetMode(gin.ReleaseMode)
	handler := restapi.NewHandler(portfolioSvc, transactionSvc, nftSvc, chains).WithRouting(router)
	engine := restapi.SetupRouter(handler, restapi.RouterConfig{
		ServiceName:    serviceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        true,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", cfg.Server.Port), zap.Int("chains", len(chains.All())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

func newHTTPClient(name entity.ProviderName, timeoutMillis int64, tracer trace.Tracer, log *zap.Logger, opts ...httpclient.Option) *httpclient.Client {
	opts = append(opts, httpclient.WithTracer(tracer))
	return httpclient.New(name, configloader.Millis(timeoutMillis), log, opts...)
}

func slidingLimiter(name entity.ProviderName, rl configloader.RateLimitConfig) *resilience.SlidingWindowLimiter {
	return resilience.NewSlidingWindowLimiter(rl.Window(), rl.MaxCalls,
		resilience.WithMinWait(configloader.Millis(rl.MinWaitMillis)),
		resilience.WithWaitObserver(metrics.ObserveWait(string(name))),
	)
}

func retryPolicy(name entity.ProviderName, rc configloader.RetryConfig, log *zap.Logger) resilience.Policy {
	delay := resilience.LinearBackoff(rc.BaseDelay())
	if rc.Backoff == "exponential" {
		delay = resilience.ExponentialBackoff(rc.BaseDelay())
	}
	countRetry := metrics.CountRetry(string(name))
	retryLog := log.Named("Retry").With(zap.String("provider", string(name)))
	return resilience.Policy{
		MaxRetries:      rc.MaxRetries,
		DelayForAttempt: delay,
		OnRetry: func(attempt, maxRetries int, err error) {
			countRetry()
			retryLog.Warn("Retrying upstream call",
				zap.Int("attempt", attempt),
				zap.Int("maxRetries", maxRetries),
				zap.Error(err))
		},
	}
}

// newCacheLayer connects the configured backend. An unreachable Redis degrades
// to the in-memory backend instead of failing startup.
func newCacheLayer(ctx context.Context, cfg configloader.CacheConfig, log *zap.Logger) (*cache.Layer, func()) {
	cleanup := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	opts := []cache.LayerOption{cache.WithOperationTimeout(configloader.Millis(cfg.OperationTimeoutMillis))}

	if cfg.Backend == "redis" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := cache.NewRedisClient(connectCtx, cfg.RedisURL)
		cancel()
		if err == nil {
			log.Info("Using Redis cache backend")
			return cache.NewLayer(cache.NewRedisBackend(client), log, opts...), func() { _ = client.Close() }
		}
		log.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
	}

	log.Info("Using in-memory cache backend")
	return cache.NewLayer(cache.NewMemoryBackend(cleanup), log, opts...), func() {}
}
