package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmehdipour/agency-crm/internal/auth"
	"github.com/jmehdipour/agency-crm/internal/config"
	"github.com/jmehdipour/agency-crm/internal/http/middleware"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/internal/metrics"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/service/crm"
	"github.com/jmehdipour/agency-crm/internal/service/report"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	e   *echo.Echo
	cfg config.HTTPConfig
}

// NewServer wires repositories, services and routes. clickhouseDB and rds may
// be nil; bill history then answers 503 and rate limiting is off.
func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) (*Server, error) {
	// repos (MySQL)
	agenciesRepo := repository.NewAgenciesRepository(mysqlDB)
	clientsRepo := repository.NewClientsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	var billsRepo repository.BillEventsRepository
	if clickhouseDB != nil {
		billsRepo = repository.NewCHBillEventsRepository(clickhouseDB)
	}

	// services
	crmSvc := crm.New(mysqlDB, agenciesRepo, clientsRepo, outboxRepo, crm.Topics{
		Agencies: cfg.Kafka.AgenciesTopic,
		Clients:  cfg.Kafka.ClientsTopic,
	})
	reportSvc := report.New(agenciesRepo, clientsRepo)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return nil, err
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))

	e.Use(
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: uuid.NewString}),
		requestLogger(),
		echoMid.Recover(),
	)
	if cfg.HTTP.RequestTimeout > 0 {
		e.Use(echoMid.ContextTimeout(cfg.HTTP.RequestTimeout))
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.AuthMiddleware(verifier, bootstrapBypass(crmSvc))
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:sub:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	api := e.Group("/api", authMW, rlMW)

	api.POST("/agencies", createAgencyHandler(crmSvc))
	api.GET("/agencies", listAgenciesHandler(crmSvc))
	api.GET("/agencies/top-clients", topClientsHandler(reportSvc))
	api.GET("/agencies/top-client", topClientHandler(reportSvc))
	api.GET("/agencies/clients/:clientId", getClientHandler(crmSvc))
	api.PUT("/agencies/clients/:clientId", updateClientHandler(crmSvc))
	api.GET("/agencies/:id", getAgencyHandler(crmSvc))
	api.PUT("/agencies/:id", updateAgencyHandler(crmSvc))
	api.GET("/agencies/:id/bill-history", billHistoryHandler(crmSvc, billsRepo))

	api.POST("/clients", createClientHandler(crmSvc))
	api.GET("/clients", listClientsHandler(crmSvc))
	api.GET("/clients/:agencyId", listClientsHandler(crmSvc))
	api.GET("/clients/:agencyId/:id", getAgencyClientHandler(crmSvc))
	api.PUT("/clients/:agencyId/:id", updateAgencyClientHandler(crmSvc))

	return &Server{e: e, cfg: cfg.HTTP}, nil
}

// bootstrapBypass lets the very first agency be created without a token.
// The count here is only a fast path; crm.Service.BootstrapAgency re-checks
// and claims inside the create transaction.
func bootstrapBypass(svc *crm.Service) middleware.BypassFunc {
	return func(c echo.Context) (bool, error) {
		if c.Request().Method != http.MethodPost || c.Path() != "/api/agencies" {
			return false, nil
		}
		has, err := svc.HasAgencies(c.Request().Context())
		if err != nil {
			return false, err
		}
		return !has, nil
	}
}

func requestLogger() echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Log.Info("request", fields...)
			return nil
		},
	})
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.e.Server.ReadTimeout = s.cfg.ReadTimeout
	s.e.Server.WriteTimeout = s.cfg.WriteTimeout
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
