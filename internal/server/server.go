// Package server exposes the relay over HTTP: health, the stored-quote query
// API, the websocket push endpoint and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/quote-relay/internal/connection"
	"github.com/rickgao/quote-relay/internal/model"
	"github.com/rickgao/quote-relay/internal/version"
)

const (
	healthTimeout = 5 * time.Second
	queryTimeout  = 10 * time.Second
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QuoteSource reads stored quotes.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, bool, error)
	ListQuotes(ctx context.Context) ([]model.Quote, error)
}

// ConnectionStatus reports the broker connection.
type ConnectionStatus interface {
	Stats() connection.Stats
}

// CacheStatus reports the change cache size.
type CacheStatus interface {
	Len() int
}

// Config holds server settings.
type Config struct {
	Port          int
	WebSocketPath string
	MetricsPath   string
}

// Deps are the components the server reports on or serves. Nil members
// disable the routes or health components that need them.
type Deps struct {
	DB         Pinger
	Quotes     QuoteSource
	Connection ConnectionStatus
	Cache      CacheStatus
	WebSocket  http.Handler
	Metrics    http.Handler
}

// Server is the relay's HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the router.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.engine = s.buildRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	_ = router.SetTrustedProxies(nil)

	router.GET("/health", s.handleHealth)

	if s.deps.Quotes != nil {
		router.GET("/quotes", s.handleListQuotes)
		router.GET("/quotes/:symbol", s.handleGetQuote)
	}
	if s.deps.WebSocket != nil && s.cfg.WebSocketPath != "" {
		router.GET(s.cfg.WebSocketPath, gin.WrapH(s.deps.WebSocket))
	}
	if s.deps.Metrics != nil && s.cfg.MetricsPath != "" {
		router.GET(s.cfg.MetricsPath, gin.WrapH(s.deps.Metrics))
	}
	return router
}

// Start listens in the background. Listener failures other than a clean
// shutdown are logged.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("starting http server", "port", s.cfg.Port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type health struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Components map[string]any `json:"components"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	h := health{
		Status:     "healthy",
		Version:    version.Version,
		Components: make(map[string]any),
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(ctx); err != nil {
			h.Status = "unhealthy"
			h.Components["database"] = gin.H{"status": "disconnected", "error": err.Error()}
		} else {
			h.Components["database"] = "connected"
		}
	}

	if s.deps.Connection != nil {
		st := s.deps.Connection.Stats()
		broker := gin.H{
			"state":             st.State.String(),
			"client_id":         st.ClientID,
			"connects":          st.Connects,
			"reconnects":        st.Reconnects,
			"messages_received": st.MessagesReceived,
			"parse_errors":      st.ParseErrors,
			"dropped":           st.Dropped,
		}
		if !st.LastMessage.IsZero() {
			broker["last_message"] = st.LastMessage.UTC().Format(time.RFC3339)
		}
		h.Components["broker"] = broker
		if st.State != connection.StateConnected && h.Status == "healthy" {
			h.Status = "degraded"
		}
	}

	if s.deps.Cache != nil {
		h.Components["cache"] = gin.H{"entries": s.deps.Cache.Len()}
	}

	code := http.StatusOK
	if h.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

func (s *Server) handleListQuotes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	quotes, err := s.deps.Quotes.ListQuotes(ctx)
	if err != nil {
		s.logger.Error("list quotes failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quotes"})
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) handleGetQuote(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	symbol := c.Param("symbol")
	q, ok, err := s.deps.Quotes.GetQuote(ctx, symbol)
	if err != nil {
		s.logger.Error("get quote failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quote"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "quote not found", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, model.ToExternalFormat(q))
}
