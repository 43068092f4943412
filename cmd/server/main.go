package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/sbilibin2017/user-service/docs"
	"github.com/sbilibin2017/user-service/internal/config"
	"github.com/sbilibin2017/user-service/internal/handlers"
	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/middlewares"
	"github.com/sbilibin2017/user-service/internal/pool"
	"github.com/sbilibin2017/user-service/internal/repositories"
	"github.com/sbilibin2017/user-service/internal/services"
	"github.com/sbilibin2017/user-service/internal/session"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// @title user-service API
// @version 0.1.0
// @description User management API backed by PostgreSQL
// @host localhost:8000
// @BasePath /
// @schemes http
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Version: %s, Commit: %s, Build: %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// userService is everything the user routes need.
type userService interface {
	handlers.UserCreator
	handlers.UserLister
	handlers.UserGetter
	handlers.UserUpdater
	handlers.UserDeleter
}

// run initializes the logger, connection pool, optional Kafka and Redis
// clients and the HTTP server, and blocks until ctx is done or a signal arrives.
func run(ctx context.Context, cfg config.Config) error {
	if err := logger.Initialize(cfg.App.LogLevel, "app", cfg.App.Name, "version", cfg.App.Version); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.App.LogLevel)

	// Connection pool
	db := pool.New(cfg.Database)
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize connection pool: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := db.Shutdown(ctx); err != nil {
			logger.Log.Errorw("connection pool shutdown error", "error", err)
		}
	}()

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := repositories.CreateSchema(ctx, sqlDB); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(db.Collectors()...)

	// Kafka, optional
	var events services.EventWriter
	if len(cfg.Kafka.Brokers) > 0 {
		writer := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
		defer writer.Close()
		events = writer
		logger.Log.Infow("publishing user events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// Redis, optional
	var limiter middlewares.Counter
	if cfg.Redis.Addr != "" && cfg.HTTP.RateLimit > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Warnw("redis unreachable, requests are not limited until it is", "addr", cfg.Redis.Addr, "error", err)
		}
		limiter = rdb
	}

	runner := session.NewRunner(db, session.WithQueryTimeout(cfg.Database.QueryTimeout))
	svc := services.NewUserService(runner, services.BcryptHasher{}, events)

	var ready atomic.Bool
	srv := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           newRouter(cfg, svc, reg, limiter, &ready),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s", cfg.App.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	ready.Store(true)

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}

// newRouter wires the routes. limiter may be nil, which disables rate limiting.
func newRouter(cfg config.Config, svc userService, reg *prometheus.Registry, limiter middlewares.Counter, ready *atomic.Bool) http.Handler {
	metrics := middlewares.NewMetrics(reg)

	docs.SwaggerInfo.Title = cfg.App.Name + " API"
	docs.SwaggerInfo.Version = cfg.App.Version
	docs.SwaggerInfo.Description = cfg.App.Description
	docs.SwaggerInfo.Host = ""

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middlewares.LoggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middlewares.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/", handlers.NewRootHandler(cfg.App))
	r.Get("/health", handlers.NewHealthHandler(cfg.App))
	r.Get("/ready", handlers.NewReadyHandler(ready))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/users", func(r chi.Router) {
		if limiter != nil {
			r.Use(middlewares.RateLimitMiddleware(limiter, cfg.HTTP.RateLimit))
		}
		r.Post("/", handlers.NewCreateUserHandler(svc))
		r.Get("/", handlers.NewListUsersHandler(svc))
		r.Get("/{id}", handlers.NewGetUserHandler(svc))
		r.Put("/{id}", handlers.NewUpdateUserHandler(svc))
		r.Delete("/{id}", handlers.NewDeleteUserHandler(svc))
	})

	return r
}
