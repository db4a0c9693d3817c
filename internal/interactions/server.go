package interactions

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"

	"github.com/latoulicious/groovebox/internal/version"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
)

// Config holds the webhook server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// PublicKey is the application's ed25519 verification key, hex encoded.
	PublicKey string
}

// StatusSource feeds the /status endpoint. session.Manager satisfies it.
type StatusSource interface {
	ActiveCount() int
}

// Deps carries the server's collaborators. Sessions and Metrics may be
// nil; the status endpoint degrades accordingly.
type Deps struct {
	Registry *Registry
	Rest     *discordgo.Session
	IsOwner  func(guildID, userID string) bool
	Sessions StatusSource
	Metrics  metrics.Collector
}

// Server receives interaction webhooks and serves the health surface.
type Server struct {
	cfg     Config
	deps    Deps
	pubKey  ed25519.PublicKey
	logger  logging.Logger
	router  *gin.Engine
	httpSrv *http.Server
	started time.Time
}

// NewServer validates the public key and builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	key, err := hex.DecodeString(cfg.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, faults.New(faults.CategorySystem, faults.CodeSystemConfig, "PUBLIC_KEY must be a 64 character hex string")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		pubKey:  ed25519.PublicKey(key),
		logger:  logging.GetGlobalLoggerFactory().CreateLogger("interactions"),
		started: time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(s.logger), gin.Recovery())
	router.POST("/interactions", s.handleInteraction)
	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	s.router = router
	return s, nil
}

// Router exposes the handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Interaction server failed", err, map[string]interface{}{
				"addr":  s.cfg.Addr,
				"error": err.Error(),
			})
		}
	}()
	s.logger.Info("Interaction server listening", map[string]interface{}{"addr": s.cfg.Addr})
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleInteraction(c *gin.Context) {
	if !discordgo.VerifyInteraction(c.Request, s.pubKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid request signature"})
		return
	}

	var ic discordgo.Interaction
	if err := json.NewDecoder(c.Request.Body).Decode(&ic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed interaction payload"})
		return
	}

	if ic.Type == discordgo.InteractionPing {
		c.JSON(http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
		return
	}

	handler, key, ok := s.deps.Registry.resolve(&ic)
	if !ok {
		s.logger.Warn("Unknown interaction", map[string]interface{}{
			"type":     int(ic.Type),
			"key":      key,
			"guild_id": ic.GuildID,
		})
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError(faults.CodePlatformUnknownInteraction)
		}
		c.JSON(http.StatusOK, unknownInteractionResponse())
		return
	}

	ctx := newContext(s.deps.Rest, &ic, s.deps.IsOwner, s.logger)
	handler(ctx)

	resp := ctx.Response()
	if resp == nil {
		s.logger.Error("Handler returned without acknowledging", nil, map[string]interface{}{
			"key":      key,
			"guild_id": ic.GuildID,
		})
		resp = unknownInteractionResponse()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.deps.Metrics != nil && !isHealthy(s.deps.Metrics) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	payload := gin.H{
		"status":         "ok",
		"version":        version.Get(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
	}
	if s.deps.Sessions != nil {
		payload["active_sessions"] = s.deps.Sessions.ActiveCount()
	}
	if s.deps.Metrics != nil {
		payload["metrics"] = s.deps.Metrics.Snapshot()
	}
	c.JSON(http.StatusOK, payload)
}

// isHealthy asks collectors that can self-report; others count as healthy.
func isHealthy(m metrics.Collector) bool {
	type healthReporter interface {
		IsHealthy() bool
	}
	if hr, ok := m.(healthReporter); ok {
		return hr.IsHealthy()
	}
	return true
}

// unknownInteractionResponse is the fail-closed reply for payloads nothing
// is registered for.
func unknownInteractionResponse() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "I don't recognize that interaction. It may come from an older build; try `/components` to repost the controls.",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("HTTP request", map[string]interface{}{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
}
