package http

import (
	"detective_game/internal/config"
	"detective_game/internal/http/handlers"
	"detective_game/internal/http/middleware"
	"detective_game/internal/kv"
	"detective_game/internal/service"
	"detective_game/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is what the HTTP layer needs. DB and Audit may be nil.
type Deps struct {
	Config  *config.Config
	Game    *service.GameService
	Audit   *service.AuditService
	Store   kv.Store
	DB      *pgxpool.Pool
	Hub     *ws.Hub
	Version string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := handlers.NewHandler(d.Game, d.Audit)
	var clients func() int
	if d.Hub != nil {
		clients = d.Hub.ClientCount
	}
	healthHandler := handlers.NewHealthHandler(d.Store, d.DB, clients, d.Version)

	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	registerAPIRoutes(v1, h, d)

	if d.Hub != nil {
		r.GET("/ws", ws.HandleWS(d.Hub, d.Config.AllowedOrigin))
	}
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, d Deps) {
	limit := middleware.RateLimit(d.Store, d.Config.APIRateLimit, d.Config.APIRateWindow)
	auth := []gin.HandlerFunc{middleware.JWT(), limit}

	// Public
	api.GET("/game/state", limit, h.GameState)
	api.GET("/leaderboard", limit, h.GetLeaderboard)
	api.GET("/leaderboard/history", limit, h.LeaderboardHistory)
	api.GET("/leaderboard/history/:cycleId", limit, h.ArchivedLeaderboard)

	// Player
	player := api.Group("", auth...)
	{
		player.POST("/game/register", h.Register)
		player.GET("/matches/active", h.ActiveMatches)
		player.GET("/matches/inbound", h.InboundMatches)
		player.POST("/matches/:id/messages", h.SendMessage)
		player.POST("/matches/:id/vote", h.Vote)
		player.POST("/matches/:id/lock", h.LockVote)
	}

	// Admin
	admin := api.Group("/admin", middleware.JWT(), middleware.Admin(d.Config.IsAdmin))
	{
		admin.POST("/phase", h.ForcePhase)
		admin.POST("/reset", h.ResetCycle)
		admin.GET("/audit", h.AuditLogs)
	}
}
