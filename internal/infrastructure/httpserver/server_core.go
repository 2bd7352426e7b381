package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/ports"
	customMiddleware "github.com/canner-app/canner/go/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	// MaxWait caps the timeout a client may request from the wait endpoint.
	MaxWait time.Duration
}

type ServerDeps struct {
	TaskService    ports.TaskService
	CacheStore     ports.CacheStore
	ResponseCache  *services.ResponseCache
	RateLimiter    ports.RateLimiter
	HealthCheckers []ports.HealthChecker
	// Gatherer serves /metrics; the default registry when nil.
	Gatherer prometheus.Gatherer
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	taskService    ports.TaskService
	cacheStore     ports.CacheStore
	responseCache  *services.ResponseCache
	metricsHandler http.Handler
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

const (
	defaultMaxWait    = 2 * time.Minute
	writeTimeoutSlack = 5 * time.Second
)

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true

	if serverConfig.MaxWait <= 0 {
		serverConfig.MaxWait = defaultMaxWait
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		taskService:    deps.TaskService,
		cacheStore:     deps.CacheStore,
		responseCache:  deps.ResponseCache,
		metricsHandler: newMetricsHandler(gatherer),
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.RateLimiter,
			logger,
			requestsTotal,
			requestDuration,
			rateLimitedTotal,
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
