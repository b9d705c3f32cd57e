// Package api serves the dashboard HTTP surface: monitor state, recent
// actions, reload requests and the WebSocket action stream.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"option-monitor/internal/gateway"
	"option-monitor/internal/model"
	"option-monitor/internal/orchestrator"
)

// Query limits for /api/actions.
const (
	DefaultActionLimit = 50
	MaxActionLimit     = 500
)

// TOTPHeader carries the one-time code guarding admin endpoints.
const TOTPHeader = "X-TOTP"

// ActionLog reads journal rows, newest first.
type ActionLog interface {
	Recent(ctx context.Context, limit int) ([]model.LogRow, error)
}

// TradeLog is an ActionLog that can also list one trade's rows.
type TradeLog interface {
	ActionLog
	ByTradeID(ctx context.Context, tradeID string) ([]model.LogRow, error)
}

// Reloader queues an instruments reload.
type Reloader interface {
	RequestReload(reason string) bool
}

// Config wires the server. Status and Reload are required; Actions and
// Hub are optional.
type Config struct {
	Addr       string
	Status     func() orchestrator.Status
	Actions    ActionLog
	Hub        *gateway.Hub
	Reload     Reloader
	TOTPSecret string

	// Now is used to validate TOTP codes.
	Now func() time.Time
}

// Server is the gin HTTP server.
type Server struct {
	cfg    Config
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Status == nil || cfg.Reload == nil {
		return nil, errors.New("api: status and reload are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9095"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/monitors", s.handleMonitors)
	api.GET("/actions", s.handleActions)
	api.GET("/actions/:trade_id", s.handleTradeActions)
	api.POST("/reload", s.handleReload)
	if s.cfg.Hub != nil {
		s.router.GET("/ws", gin.WrapH(s.cfg.Hub))
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(c *gin.Context) {
	st := s.cfg.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"run_id":   st.RunID,
		"passes":   st.Passes,
		"pass_at":  st.PassAt,
		"monitors": len(st.Monitors),
	})
}

func (s *Server) handleMonitors(c *gin.Context) {
	st := s.cfg.Status()
	c.JSON(http.StatusOK, gin.H{
		"run_id":   st.RunID,
		"session":  st.Session,
		"symbol":   st.Symbol,
		"expiry":   st.Expiry,
		"pass_at":  st.PassAt,
		"monitors": st.Monitors,
	})
}

func (s *Server) handleActions(c *gin.Context) {
	limit := DefaultActionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxActionLimit)
	}

	if s.cfg.Actions != nil {
		rows, err := s.cfg.Actions.Recent(c.Request.Context(), limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"source": "journal", "rows": rows})
			return
		}
		log.Printf("[api] journal read failed, using replay buffer: %v", err)
	}
	if s.cfg.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no action source configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": "replay", "actions": s.cfg.Hub.RecentActions(limit)})
}

func (s *Server) handleTradeActions(c *gin.Context) {
	tl, ok := s.cfg.Actions.(TradeLog)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "journal does not support trade lookup"})
		return
	}
	rows, err := tl.ByTradeID(c.Request.Context(), c.Param("trade_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) handleReload(c *gin.Context) {
	if s.cfg.TOTPSecret != "" {
		code := c.GetHeader(TOTPHeader)
		valid, err := totp.ValidateCustom(code, s.cfg.TOTPSecret, s.cfg.Now().UTC(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing " + TOTPHeader})
			return
		}
	}
	queued := s.cfg.Reload.RequestReload("http")
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[api] listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" {
			return
		}
		log.Printf("[api] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
