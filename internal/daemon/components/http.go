package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/daemon"
	"github.com/harunnryd/splitkit/internal/server"
)

// HTTPServerComponent serves the landing API and, when enabled, the debug
// surface.
type HTTPServerComponent struct {
	daemon  *daemon.Daemon
	runtime RuntimeProvider
	cfg     *config.Config

	mu          sync.RWMutex
	api         *server.Server
	server      *http.Server
	listener    net.Listener
	shutdownTTL time.Duration
	started     bool
	serveErr    error
}

func NewHTTPServerComponent(d *daemon.Daemon, runtime RuntimeProvider, cfg *config.Config) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:  d,
		runtime: runtime,
		cfg:     cfg,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return []string{"Runtime"}
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.runtime == nil || h.runtime.Core() == nil {
		return fmt.Errorf("runtime not initialized")
	}

	srv := h.cfg.Server
	readTimeout, err := config.DurationOrDefault(srv.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(srv.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(srv.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(srv.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}
	loadingTimeout, err := config.DurationOrDefault(h.cfg.Frame.LoadingTimeout, config.DefaultFrameLoadingTimeout)
	if err != nil {
		return fmt.Errorf("parse frame loading timeout: %w", err)
	}
	frameInterval, err := config.DurationOrDefault(h.cfg.Frame.Interval, config.DefaultFrameInterval)
	if err != nil {
		return fmt.Errorf("parse frame interval: %w", err)
	}

	opts := server.Options{
		Debug:          h.cfg.Dashboard.Enabled,
		AllowedOrigins: srv.AllowedOrigins,
		LoadingTimeout: loadingTimeout,
		FrameInterval:  frameInterval,
	}
	if h.cfg.Analytics.MetricsEnabled {
		opts.Metrics = h.runtime.Metrics()
	}
	if h.daemon != nil {
		opts.Health = h.daemon.HealthSummary
	}
	h.api = server.New(h.runtime.Core(), opts)

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      h.api.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout

	slog.Info("HTTPServer initialized", "component", h.Name(), "port", srv.Port, "debug", opts.Debug)
	return nil
}

// Start binds the listener synchronously so a busy port fails startup.
func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == nil {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	go func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
			h.mu.Lock()
			h.serveErr = err
			h.mu.Unlock()
		}
	}()

	h.started = true
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.api != nil {
		h.api.Close()
	}
	if !h.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case h.server == nil:
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	case h.serveErr != nil:
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: h.serveErr}, nil
	case !h.started:
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}

// Addr reports the bound listener address, useful when the port is 0.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
