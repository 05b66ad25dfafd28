package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"detective_game/internal/cache"
	"detective_game/internal/config"
	"detective_game/internal/consistency"
	"detective_game/internal/db"
	httpServer "detective_game/internal/http"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
	"detective_game/internal/repository"
	"detective_game/internal/responder"
	"detective_game/internal/service"
	"detective_game/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("store unavailable", "backend", cfg.Store.Backend, "error", err)
	}

	tracker := consistency.NewVersionTracker(store, cfg.InstanceTTL)
	deps := service.Deps{
		Store:    store,
		Repos:    repository.New(store, cfg.RecordTTL, cfg.Game.VoteRetention),
		Tracker:  tracker,
		Cache:    cache.New(cfg.CacheTTL),
		Stake:    service.HumanityGate{},
		Settings: cfg.Game,
		LockTTL:  cfg.LockTTL,
	}

	// the archive is optional; without it history endpoints are empty
	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbPool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("archive disabled", "error", err)
		} else {
			deps.Archive = repository.NewArchiveRepository(dbPool)
			deps.Audit = service.NewAuditService(dbPool)
		}
	}

	hub := ws.NewHub()
	deps.Publisher = hub
	if rs, ok := store.(*kv.RedisStore); ok {
		bridge := ws.NewRedisBridge(rs.Client(), hub, "", tracker.InstanceID())
		deps.Publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", "error", err)
			}
		}()
	}

	if cfg.ResponderURL != "" {
		deps.Replies = responder.NewClient(cfg.ResponderURL, cfg.ResponderAPIKey, cfg.ResponderTimeout)
	} else {
		logger.Warn("RESPONDER_URL not set, bots will stay silent")
	}

	game := service.NewGameService(deps)
	sched, err := game.StartScheduler(cfg.TickInterval)
	if err != nil {
		logger.Fatal("scheduler failed to start", "error", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Config:  cfg,
		Game:    game,
		Audit:   deps.Audit,
		Store:   store,
		DB:      dbPool,
		Hub:     hub,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "instance", tracker.InstanceID(), "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", "error", err)
	}
	hub.Close()
	game.Close()
	if err := store.Close(); err != nil {
		logger.Warn("store close", "error", err)
	}
	if dbPool != nil {
		dbPool.Close()
	}

	logger.Info("server exited")
}
