package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/protobridge/internal/auth"
	"github.com/af-corp/protobridge/internal/bridge"
	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/filter"
	"github.com/af-corp/protobridge/internal/filter/policy"
	"github.com/af-corp/protobridge/internal/filter/secrets"
	"github.com/af-corp/protobridge/internal/ratelimit"
	"github.com/af-corp/protobridge/internal/router"
	"github.com/af-corp/protobridge/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load configuration
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TracingOptions{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		SampleRate:  cfg.Telemetry.TraceSampleRate,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	metrics := telemetry.NewMetrics()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (bridge will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (auth cache and limits disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Build adapter registry; reloads swap the contents in place so handlers
	// holding the pointer see the new graph.
	registry := router.BuildFromConfig(loader.Adapters())
	metrics.SetRegisteredAdapters(registry.Len())
	loader.OnReload(func() {
		registry.Replace(router.BuildFromConfig(loader.Adapters()))
		metrics.SetRegisteredAdapters(registry.Len())
		logger.Info("adapter registry reloaded", "adapters", registry.Len())
	})

	healthTracker := router.NewHealthTrackerFromConfig(cfg.Routing.CircuitBreaker)
	healthTracker.OnStateChange(func(edge string, from, to router.CircuitState) {
		metrics.SetCircuitState(edge, int(to))
		logger.Warn("circuit state changed", "edge", edge, "from", from.String(), "to", to.String())
	})

	// Guard filters
	currentCfg := func() *config.Config { return loader.Config() }
	evaluator := policy.NewEvaluator(func() config.PolicyFilterConfig { return loader.Config().Filter.Policy })
	if cfg.Filter.Policy.Enabled {
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
		loader.OnReload(func() {
			if err := evaluator.Load(); err != nil {
				logger.Error("policy reload failed, keeping previous policies", "error", err)
			}
		})
	}
	scanner := secrets.NewScanner(func() config.SecretsFilterConfig { return loader.Config().Filter.Secrets })
	if err := scanner.AddPatterns(cfg.Filter.Secrets.CustomPatterns); err != nil {
		logger.Error("invalid custom secret pattern", "error", err)
		os.Exit(1)
	}
	filterChain := filter.NewChain(evaluator, scanner)

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	handler := bridge.NewHandler(registry, healthTracker, currentCfg, filterChain, metrics)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/bridge/v1/health", handler.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(ratelimit.NewLimiter(rdb), ratelimit.NewQuotaTracker(rdb), cfg.Limits, metrics))
		r.Post("/v1/convert", handler.Convert)
		r.Get("/v1/routes", handler.Routes)
		r.Get("/v1/adapters", handler.ListAdapters)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
		Handler: metricsMux,
	}

	// Graceful shutdown
	errCh := make(chan error, 2)
	go func() {
		logger.Info("bridge starting", "addr", addr, "version", version, "adapters", registry.Len())
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics server starting", "addr", metricsSrv.Addr)
		errCh <- metricsSrv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	logger.Info("bridge stopped")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
