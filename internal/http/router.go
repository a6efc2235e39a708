package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/supsol/poreview/internal/config"
	"github.com/supsol/poreview/internal/http/handlers"
	"github.com/supsol/poreview/internal/http/middleware"

	_ "github.com/supsol/poreview/docs"
)

type Deps struct {
	Store    handlers.Store
	Reviewer handlers.Reviewer
	Notifier handlers.Notifier
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          deps.Store,
		Reviewer:       deps.Reviewer,
		Notifier:       deps.Notifier,
		Validator:      validator.New(),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}

	r.GET("/health", h.Healthz)
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateBurst).Middleware())
	{
		api.GET("/status", h.Status)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/run-review", h.RunReview)
		admin.POST("/run-review", h.RunReview)
		admin.POST("/cleanup", h.Cleanup)
		admin.POST("/po/:wpq/vendor-response", h.VendorResponse)
		admin.GET("/run-whatsapp", h.RunWhatsApp)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
