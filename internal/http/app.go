package http

import (
	"time"

	"orderflow_backend/platform/config"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// AppConfig is the configuration surface the HTTP app needs.
type AppConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// App is the assembled HTTP application.
type App struct {
	Engine *gin.Engine
}

// NewApp builds the gin engine, applies the shared middleware stack and
// registers every module's routes.
func NewApp(cfg AppConfig, log *logger.Logger, modules []Module) *App {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(cfg))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(50), 100, log)
	engine.Use(limiter.RateLimit())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	public := engine.Group("/")
	api := engine.Group("/api/v1")
	api.Use(httpkit.AuthRequired(cfg))

	rc := RouterContext{API: api, Public: public}
	for _, m := range modules {
		m.RegisterRoutes(rc)
		log.Info("module routes registered", "module", m.Name())
	}

	return &App{Engine: engine}
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}
	return cors.New(corsCfg)
}
