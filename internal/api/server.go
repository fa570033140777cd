// Package api exposes the read/control HTTP surface: bot status, recent
// decisions with their evidence trails, safety state, arm/disarm and the
// prometheus scrape endpoint. Candle ingestion does not flow through here.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/events"
	"hyperliquid-trading-bot/internal/execution"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/learning"
	"hyperliquid-trading-bot/internal/metrics"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     zerolog.Logger

	bots    []*bot.Bot
	adapter hyperliquid.ExecutionAdapter
	learner *learning.Manager
	bus     *events.EventBus
	hub     *Hub
	started time.Time
}

// NewServer wires the API over the running components. Risk state and
// open trades are read through the per-symbol bots. learner may be nil.
func NewServer(cfg config.ServerConfig, bots []*bot.Bot,
	adapter hyperliquid.ExecutionAdapter, learner *learning.Manager,
	bus *events.EventBus, logger zerolog.Logger) *Server {

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:  router,
		cfg:     cfg,
		logger:  logger.With().Str("component", "APIServer").Logger(),
		bots:    bots,
		adapter: adapter,
		learner: learner,
		bus:     bus,
		hub:     NewHub(bus, logger),
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/status", s.handleStatus)
	s.router.GET("/api/decisions", s.handleDecisions)
	s.router.GET("/api/trades", s.handleTrades)
	s.router.GET("/api/risk", s.handleRisk)

	s.router.GET("/api/safety", s.handleSafety)
	s.router.POST("/api/safety/arm", s.handleArm)
	s.router.POST("/api/safety/disarm", s.handleDisarm)

	s.router.GET("/api/learning/snapshots", s.handleSnapshots)
	s.router.POST("/api/learning/apply", s.handleApplyCritique)
	s.router.POST("/api/learning/rollback", s.handleRollback)

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/ws", s.hub.HandleWebSocket)
}

// Start runs the server; it blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.hub.Start()
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	symbols := make([]string, 0, len(s.bots))
	openTrades := 0
	for _, b := range s.bots {
		symbols = append(symbols, b.Symbol())
		openTrades += len(b.OpenTrades())
	}
	successResponse(c, gin.H{
		"symbols":     symbols,
		"safety":      s.adapter.GetSafetyStatus(),
		"open_trades": openTrades,
	})
}

func (s *Server) handleDecisions(c *gin.Context) {
	symbol := c.Query("symbol")

	records := make([]bot.DecisionRecord, 0)
	for _, b := range s.bots {
		if symbol != "" && b.Symbol() != symbol {
			continue
		}
		records = append(records, b.RecentDecisions()...)
	}
	successResponse(c, records)
}

func (s *Server) handleTrades(c *gin.Context) {
	symbol := c.Query("symbol")

	trades := make([]execution.Trade, 0)
	for _, b := range s.bots {
		if symbol != "" && b.Symbol() != symbol {
			continue
		}
		trades = append(trades, b.OpenTrades()...)
	}
	successResponse(c, trades)
}

func (s *Server) handleRisk(c *gin.Context) {
	perSymbol := make(map[string]gin.H, len(s.bots))
	for _, b := range s.bots {
		perSymbol[b.Symbol()] = gin.H{
			"state": b.RiskState(),
			"stats": b.RiskStats(),
		}
	}
	successResponse(c, perSymbol)
}

func (s *Server) handleSafety(c *gin.Context) {
	successResponse(c, s.adapter.GetSafetyStatus())
}

func (s *Server) handleArm(c *gin.Context) {
	if err := s.adapter.Arm(); err != nil {
		errorResponse(c, http.StatusForbidden, err.Error())
		return
	}
	s.logger.Warn().Msg("Adapter armed via API")
	successResponse(c, s.adapter.GetSafetyStatus())
}

func (s *Server) handleDisarm(c *gin.Context) {
	s.adapter.Disarm()
	s.logger.Info().Msg("Adapter disarmed via API")
	successResponse(c, s.adapter.GetSafetyStatus())
}

func (s *Server) handleSnapshots(c *gin.Context) {
	if s.learner == nil {
		errorResponse(c, http.StatusNotFound, "learning is disabled")
		return
	}
	successResponse(c, s.learner.Snapshots())
}

func (s *Server) handleApplyCritique(c *gin.Context) {
	if s.learner == nil {
		errorResponse(c, http.StatusNotFound, "learning is disabled")
		return
	}

	var report learning.CritiqueReport
	if err := c.ShouldBindJSON(&report); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid critique report")
		return
	}

	results := s.learner.ApplyRecommendations(report)

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		}
	}
	if applied > 0 {
		s.publish(events.EventConfigChanged, gin.H{
			"critique_id": report.ID,
			"applied":     applied,
		})
	}
	successResponse(c, results)
}

func (s *Server) handleRollback(c *gin.Context) {
	if s.learner == nil {
		errorResponse(c, http.StatusNotFound, "learning is disabled")
		return
	}

	var req struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	restored := s.learner.Rollback(req.SnapshotID)
	if restored == nil {
		errorResponse(c, http.StatusConflict, "no snapshot to roll back to")
		return
	}
	s.publish(events.EventConfigRolledBack, gin.H{"snapshot_id": restored.ID})
	successResponse(c, restored)
}

func (s *Server) publish(typ events.EventType, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: typ, Data: data, Timestamp: time.Now()})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
