package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/compliance-gateway/internal/config"
	"github.com/jmehdipour/compliance-gateway/internal/http/middleware"
	"github.com/jmehdipour/compliance-gateway/internal/metrics"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/service/ingest"
	"github.com/jmehdipour/compliance-gateway/internal/validation"
	"github.com/jmehdipour/compliance-gateway/internal/webhook"
	"github.com/jmehdipour/compliance-gateway/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

type DeliveryRunner interface {
	RunOnce(ctx context.Context) (worker.Result, error)
}

// Deps is everything the routes need. NewServer wires the real ones.
type Deps struct {
	Ingester      Ingester
	Deliverer     DeliveryRunner
	APIKeys       repository.APIKeysRepository
	Logs          repository.IngestionLogsRepository
	Notifications repository.NotificationsRepository
	Attempts      repository.CHDeliveryAttemptsRepository
	Redis         *redis.Client
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, logger *zap.Logger) *Server {
	// repos (MySQL)
	apiKeysRepo := repository.NewAPIKeysRepository(mysqlDB)
	integrationsRepo := repository.NewIntegrationsRepository(mysqlDB)
	mappingsRepo := repository.NewMappingsRepository(mysqlDB)
	logsRepo := repository.NewIngestionLogsRepository(mysqlDB)
	notificationsRepo := repository.NewNotificationsRepository(mysqlDB, cfg.Webhook.ClaimTimeout)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chAttemptsRepo := repository.NewCHDeliveryAttemptsRepository(clickhouseDB)

	// services
	ingestSvc := ingest.New(
		ingest.Repositories{
			APIKeys:       apiKeysRepo,
			Integrations:  integrationsRepo,
			Mappings:      mappingsRepo,
			Logs:          logsRepo,
			Notifications: notificationsRepo,
			Outbox:        outboxRepo,
		},
		repository.NewTransactor(mysqlDB),
		logger.Named("ingest"),
		cfg.Ingest.MaxRecords,
		cfg.Kafka.Topic,
	)

	deliverer := worker.NewDeliverer(
		notificationsRepo,
		webhook.NewClient(cfg.Webhook.TimeoutMs, cfg.Webhook.UserAgent),
		chAttemptsRepo,
		logger.Named("deliver"),
		worker.Options{
			BatchSize:  cfg.Webhook.BatchSize,
			MaxRetries: cfg.Webhook.MaxRetries,
			Backoff:    worker.Backoff{Base: cfg.Webhook.BackoffBase, Max: cfg.Webhook.BackoffMax},
		},
	)

	return &Server{
		e: newEcho(cfg, Deps{
			Ingester:      ingestSvc,
			Deliverer:     deliverer,
			APIKeys:       apiKeysRepo,
			Logs:          logsRepo,
			Notifications: notificationsRepo,
			Attempts:      chAttemptsRepo,
			Redis:         rds,
		}),
		log: logger,
	}
}

func newEcho(cfg config.Config, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Validator = &requestValidator{v: validation.New()}

	e.Pre(middleware.CORS())
	e.Use(echoMid.Recover(), echoMid.Logger(), echoMid.BodyLimit("16M"))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// ingestion authenticates with the key in the body; limit by caller address
	ipRL := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
		KeyFunc:        middleware.ByRealIP,
	})
	clientRL := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:client:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
	authMW := middleware.APIKeyMiddleware(d.APIKeys)

	// routes
	v1 := e.Group("/v1")
	v1.POST("/ingest", ingestHandler(d.Ingester), ipRL)
	v1.POST("/webhooks/deliver", deliverHandler(d.Deliverer), middleware.BearerToken(cfg.HTTP.TriggerToken))

	authed := v1.Group("", authMW, clientRL)
	authed.GET("/reports/ingestions", listIngestionsHandler(d.Logs))
	authed.GET("/reports/deliveries", listDeliveriesHandler(d.Attempts))
	authed.GET("/webhooks/notifications", listNotificationsHandler(d.Notifications))

	return e
}

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validation.Describe(err))
	}
	return nil
}

func echoLogLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
