package app

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopcore/server/internal/module/order"
	"github.com/shopcore/server/internal/module/payment"
	"github.com/shopcore/server/internal/module/payment/provider"
	porthttp "github.com/shopcore/server/internal/ports/http"
	"github.com/shopcore/server/internal/shared/cache"
	"github.com/shopcore/server/internal/shared/config"
	"github.com/shopcore/server/internal/shared/database"
	"github.com/shopcore/server/internal/shared/logger"
	"github.com/shopcore/server/internal/utils/metrics"
	"github.com/shopcore/server/internal/utils/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the modules together and owns their lifecycles.
type App struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrate(&order.Order{}, &order.ArchivedOrder{}, &payment.WebhookEvent{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis backs the idempotency middleware only; the app runs
	// without it.
	var redisClient redis.UniversalClient
	if cfg.Redis.Address != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, idempotency caching disabled", zap.Error(err))
			redisClient = nil
		}
	}

	m := metrics.New("shopcore", prometheus.DefaultRegisterer)

	gateway := provider.NewStripeProvider(&provider.StripeConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})

	orderRepo := order.NewRepository(db)
	orderSvc := order.NewService(orderRepo, m, log.Named("order"))
	orderHandler := order.NewHandler(orderSvc)

	paymentRepo := payment.NewRepository(db)
	paymentSvc := payment.NewService(paymentRepo, orderSvc, gateway, cfg.Stripe.Currency, m, log.Named("payment"))
	paymentHandler := payment.NewHandler(paymentSvc)
	webhookHandler := payment.NewWebhookHandler(paymentSvc, m, log.Named("webhook"))

	adminHandler := porthttp.NewAdminHandler(orderSvc, paymentSvc, log.Named("admin"))
	operatorAuth := middleware.NewOperatorAuthorizer(cfg.Auth.JWTSecret, cfg.Auth.OperatorEmails)

	router := buildRouter(cfg, log, m, redisClient, operatorAuth, orderHandler, paymentHandler, webhookHandler, adminHandler)

	return &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		redis:  redisClient,
		router: router,
	}, nil
}

func buildRouter(
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Metrics,
	redisClient redis.UniversalClient,
	operatorAuth *middleware.OperatorAuthorizer,
	orderHandler *order.Handler,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
	adminHandler *porthttp.AdminHandler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(log))
	router.Use(m.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("")
	orderHandler.RegisterRoutes(public)
	paymentHandler.RegisterRoutes(public)
	webhookHandler.RegisterRoutes(public)

	operator := router.Group("")
	operator.Use(middleware.RequireOperator(operatorAuth))
	operator.Use(middleware.Idempotency(redisClient, middleware.IdempotencyConfig{}))
	adminHandler.RegisterRoutes(operator)

	return router
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.log
}

// Stop releases the application's resources.
func (a *App) Stop() {
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.log.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
