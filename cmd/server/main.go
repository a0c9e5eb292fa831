package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/internal/handlers"
	"github.com/terminal-bench/ticketvault/internal/middleware"
	"github.com/terminal-bench/ticketvault/internal/repository"
	"github.com/terminal-bench/ticketvault/internal/services/analytics"
	"github.com/terminal-bench/ticketvault/internal/services/ingest"
	"github.com/terminal-bench/ticketvault/internal/services/lock"
	"github.com/terminal-bench/ticketvault/internal/services/notify"
	ticketsync "github.com/terminal-bench/ticketvault/internal/services/sync"
	"github.com/terminal-bench/ticketvault/pkg/circuit"
	"github.com/terminal-bench/ticketvault/pkg/ratelimit"
)

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := repository.NewStore(ctx, cfg)
	if err != nil {
		cancel()
		logrus.WithError(err).Fatal("failed to connect to mongodb")
	}
	if err := store.EnsureIndexes(ctx, cfg.TicketTTLDays); err != nil {
		cancel()
		logrus.WithError(err).Fatal("failed to create indexes")
	}
	cancel()

	router := setupRouter(cfg, store)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
	if err := store.Close(shutdownCtx); err != nil {
		logrus.WithError(err).Error("mongodb disconnect failed")
	}

	logrus.Info("server exiting")
}

func setupRouter(cfg *config.Config, store *repository.Store) *gin.Engine {
	// Process-wide singletons: one rate limiter and one breaker registry
	// shared by all tenants.
	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
	breakers := circuit.NewRegistry(cfg.CircuitFailureThreshold, cfg.CircuitCooldown)

	ticketRepo := repository.NewTicketRepository(store)
	jobRepo := repository.NewJobRepository(store)
	historyRepo := repository.NewHistoryRepository(store)

	lockService := lock.NewService(store.Collection(config.LocksCollection), cfg.LockTTL)
	syncService := ticketsync.NewService(ticketRepo, historyRepo)
	notifyService := notify.NewService(cfg.ExternalAPIURL, breakers)
	fetcher := ingest.NewFetcher(cfg.ExternalAPIURL)
	coordinator := ingest.NewCoordinator(lockService, jobRepo, ticketRepo, syncService, notifyService, fetcher, limiter)
	analyticsService := analytics.NewService(store.Collection(config.TicketsCollection))

	ticketHandler := handlers.NewTicketHandler(ticketRepo, syncService)
	ingestHandler := handlers.NewIngestHandler(coordinator, lockService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	circuitHandler := handlers.NewCircuitHandler(breakers)
	healthHandler := handlers.NewHealthHandler(store, cfg.ExternalAPIURL)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler.Check)

	router.GET("/tickets", ticketHandler.List)
	router.GET("/tickets/urgent", ticketHandler.Urgent)
	router.GET("/tickets/:external_id", ticketHandler.Get)
	router.GET("/tickets/:external_id/history", ticketHandler.History)

	router.GET("/tenants/:tenant_id/stats", analyticsHandler.TenantStats)

	router.POST("/ingest/run", ingestHandler.Run)
	router.GET("/ingest/status", ingestHandler.Status)
	router.GET("/ingest/progress/:job_id", ingestHandler.Progress)
	router.DELETE("/ingest/:job_id", ingestHandler.Cancel)
	router.GET("/ingest/lock/:tenant_id", ingestHandler.LockStatus)

	router.GET("/circuit/:name/status", circuitHandler.Status)
	router.POST("/circuit/:name/reset", circuitHandler.Reset)

	return router
}
