package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jason-c-dev/harmonia-memory/internal/extraction"
	"github.com/jason-c-dev/harmonia-memory/internal/llm"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/memory"
	"github.com/jason-c-dev/harmonia-memory/internal/ratelimit"
	"github.com/jason-c-dev/harmonia-memory/internal/router"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

var apiLog = logging.GetLogger("api")

// Server is the REST API server: one process-wide router (mapping
// user_id to per-user storage), one LLM client, one extraction
// pipeline, one write manager, and a rate limiter shared by every
// request.
type Server struct {
	engine     *gin.Engine
	config     *config.Config
	router     *router.Router
	llmClient  *llm.Client
	pipeline   *extraction.Pipeline
	manager    *memory.Manager
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	addr       string
}

// NewServer wires every component together and registers routes, but
// does not start listening.
func NewServer(cfg *config.Config) *Server {
	apiLog.Info("initializing REST API server")

	rtr := router.New(cfg.DataDir)

	llmClient := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		ChatModel:      cfg.LLM.ChatModel,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		HealthInterval: cfg.LLM.HealthInterval,
	})

	pipeline := extraction.New(llmClient)
	manager := memory.NewManager(rtr, pipeline)
	manager.EnableConflictDetection = cfg.Conflict.Enabled
	manager.DetectionFanout = cfg.Conflict.DetectionFanout

	limiter := ratelimit.NewLimiter(toRateLimitConfig(cfg.RateLimit))

	s := &Server{
		config:    cfg,
		router:    rtr,
		llmClient: llmClient,
		pipeline:  pipeline,
		manager:   manager,
		limiter:   limiter,
	}

	s.setupRouter()
	return s
}

func toRateLimitConfig(c config.RateLimitConfig) *ratelimit.Config {
	tools := make([]ratelimit.ToolLimit, 0, len(c.Tools))
	for _, t := range c.Tools {
		tools = append(tools, ratelimit.ToolLimit{
			Name:              t.Name,
			RequestsPerSecond: t.RequestsPerSecond,
			BurstSize:         t.BurstSize,
		})
	}
	return &ratelimit.Config{
		Enabled: c.Enabled,
		Global: ratelimit.LimitConfig{
			RequestsPerSecond: c.Global.RequestsPerSecond,
			BurstSize:         c.Global.BurstSize,
		},
		Tools: tools,
	}
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogMiddleware())

	if s.config.RestAPI.CORS {
		corsCfg := cors.Config{
			AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders:   []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
			AllowAllOrigins: true,
			MaxAge:          12 * time.Hour,
		}
		r.Use(cors.New(corsCfg))
	}

	r.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	var apiKeys []string
	if s.config.Auth.Required {
		apiKeys = s.config.Auth.APIKeys
	}
	r.Use(APIKeyAuthMiddleware(apiKeys))
	r.Use(RateLimitMiddleware(s.limiter))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/health/simple", s.handleHealthSimple)

		v1.POST("/memory/store", s.handleStore)
		v1.GET("/memory/search", s.handleSearch)
		v1.GET("/memory/list", s.handleList)
		v1.GET("/memory/export", s.handleExport)
		v1.GET("/memory/:id", s.handleGetMemory)
		v1.DELETE("/memory/:id", s.handleDeleteMemory)
	}

	s.engine = r
}

// requestLogMiddleware logs every request/response pair the way the
// rest of the module logs operations.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		apiLog.LogResponse(c.Request.Method, float64(time.Since(start).Milliseconds()),
			"path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

// Start binds the configured host:port (or an ephemeral port when
// AutoPort is set) and serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, s.config.RestAPI.Port)

	var listener net.Listener
	var err error
	if s.config.RestAPI.AutoPort {
		listener, err = net.Listen("tcp", fmt.Sprintf("%s:0", s.config.RestAPI.Host))
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to bind REST API listener: %w", err)
	}

	s.httpServer = &http.Server{Handler: s.engine}
	s.addr = listener.Addr().String()
	apiLog.Info("REST API server listening", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts the server down, closing every open per-user
// storage handle and the LLM client's background health loop.
func (s *Server) Stop() error {
	apiLog.Info("shutting down REST API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(shutdownCtx)
	}

	s.llmClient.Close()

	for _, id := range mustList(s.router) {
		s.router.Evict(id)
	}

	return shutdownErr
}

func mustList(r *router.Router) []string {
	ids, err := r.List()
	if err != nil {
		return nil
	}
	return ids
}

// Addr returns the address a running server is bound to, for tests
// that start with AutoPort.
func (s *Server) Addr() string {
	return s.addr
}

// Handler exposes the underlying gin.Engine, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}
