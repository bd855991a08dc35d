package restapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

// SetupRouter wires middleware and routes onto a new gin engine.
func SetupRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(corsConfig))

	router.Use(RequestID())
	router.Use(ZapLogger(logger.Named("HTTP")))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/portfolio/:address", h.GetPortfolio)
		v1.GET("/transactions/:address", h.GetTransactions)
		v1.GET("/nfts/:address", h.GetNFTs)
		v1.GET("/chains", h.GetChains)
		if h.routing != nil {
			v1.GET("/routing", h.GetRouting)
		}
		v1.GET("/healthz", h.Health)
	}

	if cfg.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return router
}
