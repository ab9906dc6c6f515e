// Command router-server runs the agent router as a standalone HTTP service:
// the routing API (§6) plus the four background control loops (§4.8).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/developer-mesh/agent-router/internal/router/api"
	"github.com/developer-mesh/agent-router/internal/router/breaker"
	"github.com/developer-mesh/agent-router/internal/router/intelligent"
	"github.com/developer-mesh/agent-router/internal/router/learning"
	"github.com/developer-mesh/agent-router/internal/router/load"
	"github.com/developer-mesh/agent-router/internal/router/loops"
	"github.com/developer-mesh/agent-router/internal/router/outcome"
	"github.com/developer-mesh/agent-router/internal/router/registry"
	"github.com/developer-mesh/agent-router/internal/router/scorer"
	"github.com/developer-mesh/agent-router/internal/router/selector"
	"github.com/developer-mesh/agent-router/internal/router/store/postgres"
	"github.com/developer-mesh/agent-router/internal/router/store/rediscache"
	"github.com/developer-mesh/agent-router/pkg/config"
	"github.com/developer-mesh/agent-router/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	_ "github.com/lib/pq"
)

const localScoreCacheSize = 4096

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	environment := os.Getenv("ENVIRONMENT")
	loader, err := config.LoadConfig(os.Getenv("ROUTER_CONFIG_DIR"), environment)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := config.ValidateConfig(loader, environment); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	cfg, err := loader.Decode()
	if err != nil {
		log.Fatalf("failed to decode configuration: %v", err)
	}

	logger := observability.NewLogger("router-server")
	metricsClient := observability.NewPrometheusMetricsClient("agent_router", "router", nil)
	defer metricsClient.Close()

	store, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.Address})
	defer redisClient.Close()

	scoreCache, err := rediscache.New(redisClient, localScoreCacheSize)
	if err != nil {
		log.Fatalf("failed to initialize score cache: %v", err)
	}

	reg := registry.New(logger, metricsClient)
	breakers := breaker.NewManager(breaker.Config{
		FailureThreshold:        cfg.Routing.Breaker.FailureThreshold,
		RecoveryTimeout:         cfg.Routing.Breaker.RecoveryTimeout,
		HalfOpenSuccessRequired: cfg.Routing.Breaker.HalfOpenSuccessRequired,
	}, logger, metricsClient)
	loads := load.NewTracker(cfg.Routing.CapacityDefault)
	sc := scorer.New(store, loads)
	sel := selector.New(store, store)

	learningCfg := learning.Config{
		LearningRate:        cfg.Learning.LearningRate,
		ConfidenceThreshold: cfg.Learning.ConfidenceThreshold,
		MinimumSampleSize:   cfg.Learning.MinimumSampleSize,
		PredictionThreshold: cfg.Learning.PredictionThreshold,
	}
	engine := learning.New(learningCfg, store, logger, metricsClient)

	router := intelligent.New(sel, engine, breakers, true)
	recorder := outcome.New(store, breakers, loads, scoreCache, store, engine, logger, metricsClient)

	loopGroup := loops.NewGroup(
		loops.NewRunner(
			"performance_refresh",
			time.Duration(cfg.Loops.PerformanceRefreshSeconds)*time.Second,
			1*time.Minute,
			loops.PerformanceRefreshTick(reg, sc, scoreCache, cfg.Cache.ScoreCacheTTL),
			logger, metricsClient,
		),
		loops.NewRunner(
			"breaker_transitions",
			time.Duration(cfg.Loops.BreakerTransitionsSeconds)*time.Second,
			30*time.Second,
			loops.BreakerTransitionsTick(breakers),
			logger, metricsClient,
		),
		loops.NewRunner(
			"performance_snapshots",
			time.Duration(cfg.Loops.SnapshotsSeconds)*time.Second,
			5*time.Minute,
			loops.PerformanceSnapshotsTick(reg, loads, breakers, store),
			logger, metricsClient,
		),
		loops.NewRunner(
			"specialization_scan",
			time.Duration(cfg.Loops.SpecializationSeconds)*time.Second,
			5*time.Minute,
			loops.SpecializationScanTick(engine),
			logger, metricsClient,
		),
	)
	loopGroup.Start(ctx)
	defer loopGroup.Stop()

	server := api.NewServer(reg, breakers, loads, sc, router, recorder, engine, scoreCache, logger)

	gin.SetMode(ginMode(environment))
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	server.RegisterRoutes(ginEngine.Group("/v1"))

	httpServer := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      ginEngine,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	go func() {
		logger.Info("starting router-server", map[string]interface{}{
			"address":     cfg.API.ListenAddress,
			"environment": environment,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("router-server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			reloaded, err := loader.Decode()
			if err != nil {
				logger.Error("config reload failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			cfg = reloaded
			logger.Info("configuration decoded again; running components keep the settings they were started with", nil)
			continue
		}
		break
	}
	logger.Info("received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	loopGroup.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("router-server shutdown error", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("router-server stopped gracefully", nil)
}

func ginMode(environment string) string {
	if environment == "production" || environment == "staging" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}
