// Package server exposes the experiment core and its debug surface over HTTP.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/splitkit/internal/boundary"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/frame"
	"github.com/harunnryd/splitkit/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	// Debug mounts the /debug routes used by the dashboard.
	Debug          bool
	AllowedOrigins []string
	Metrics        *metrics.Sink
	LoadingTimeout time.Duration
	FrameInterval  time.Duration
	Scheduler      frame.Scheduler
	// Health contributes component state to GET /health.
	Health func() map[string]any
}

type Server struct {
	core      *core.Core
	metrics   *metrics.Sink
	gate      *frame.LoadingGate
	scheduler frame.Scheduler
	interval  time.Duration
	health    func() map[string]any
	started   time.Time

	mu         sync.Mutex
	coalescers map[string]*frame.Coalescer

	router *gin.Engine
}

func New(c *core.Core, opts Options) *Server {
	if opts.LoadingTimeout <= 0 {
		opts.LoadingTimeout = 3 * time.Second
	}

	s := &Server{
		core:       c,
		metrics:    opts.Metrics,
		gate:       frame.NewLoadingGate(opts.LoadingTimeout, opts.Scheduler),
		scheduler:  opts.Scheduler,
		interval:   opts.FrameInterval,
		health:     opts.Health,
		started:    time.Now(),
		coalescers: make(map[string]*frame.Coalescer),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(clientScope())
	r.Use(boundary.Middleware(func(c *gin.Context) boundary.ErrorTracker {
		return s.scope(c).Analytics
	}))
	r.Use(requestLogger())

	r.GET("/", s.handleLanding)
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/variant/:experiment", s.handleVariant)
		api.POST("/conversion", s.handleConversion)
		api.POST("/events", s.handleEvent)
		api.POST("/interaction", s.handleInteraction)
		api.POST("/pointer", s.handlePointer)
		api.POST("/timing/mark", s.handleMark)
		api.POST("/timing/measure", s.handleMeasure)
		api.GET("/loading", s.handleLoading)
		api.POST("/loading/ready", s.handleLoadingReady)
	}

	if opts.Debug {
		debug := r.Group("/debug")
		{
			debug.GET("/session", s.handleDebugSession)
			debug.GET("/metrics", s.handleDebugMetrics)
			debug.GET("/experiments", s.handleDebugExperiments)
			debug.GET("/snapshot", s.handleDebugSnapshot)
			debug.GET("/export/session", s.handleExportSession)
			debug.GET("/export/metrics", s.handleExportMetrics)
			debug.POST("/clear", s.handleClear)
		}
	}

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Gate is the loading gate the landing page waits on.
func (s *Server) Gate() *frame.LoadingGate {
	return s.gate
}

// Close cancels pending pointer deliveries.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coalescers {
		c.Stop()
	}
}

func (s *Server) scope(c *gin.Context) *core.Scope {
	return s.core.Scope(clientID(c))
}

// coalescer returns the pointer coalescer of one visitor scope.
func (s *Server) coalescer(scope *core.Scope) *frame.Coalescer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.coalescers[scope.ID]; ok {
		return c
	}
	c := frame.NewCoalescer(func(p frame.Point) { trackPointer(scope, p) },
		frame.WithScheduler(s.scheduler),
		frame.WithInterval(s.interval),
	)
	s.coalescers[scope.ID] = c
	return c
}

func (s *Server) pointerStats(scopeID string) frame.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.coalescers[scopeID]; ok {
		return c.Stats()
	}
	return frame.Stats{}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			ClientIDHeader, "X-Requested-With",
		},
		ExposeHeaders: []string{"Content-Type", "Content-Disposition", ClientIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
