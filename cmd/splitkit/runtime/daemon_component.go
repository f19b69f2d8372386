package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/daemon"
	"github.com/harunnryd/splitkit/internal/metrics"
	"github.com/harunnryd/splitkit/internal/store"
)

// KVSource is satisfied by the daemon's Store component.
type KVSource interface {
	KV() store.KV
}

// DaemonRuntimeComponent assembles the Runtime on top of the Store component
// so the HTTP server and exporter share one core.
type DaemonRuntimeComponent struct {
	mu      sync.RWMutex
	cfg     *config.Config
	kv      KVSource
	runtime *Runtime
	stopped bool
}

func NewDaemonRuntimeComponent(cfg *config.Config, kv KVSource) *DaemonRuntimeComponent {
	return &DaemonRuntimeComponent{cfg: cfg, kv: kv}
}

func (c *DaemonRuntimeComponent) Name() string {
	return "Runtime"
}

func (c *DaemonRuntimeComponent) Dependencies() []string {
	return []string{"Store"}
}

func (c *DaemonRuntimeComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("runtime component already stopped")
	}
	if c.kv == nil || c.kv.KV() == nil {
		return fmt.Errorf("store not initialized")
	}

	r, err := New(c.cfg, c.kv.KV())
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	c.runtime = r
	return nil
}

func (c *DaemonRuntimeComponent) Start(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runtime == nil {
		return fmt.Errorf("runtime component not initialized")
	}
	return nil
}

// Stop marks the runtime as stopped. The store itself belongs to the Store
// component and is closed there.
func (c *DaemonRuntimeComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *DaemonRuntimeComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	r := c.runtime
	stopped := c.stopped
	c.mu.RUnlock()

	switch {
	case r == nil:
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	case stopped:
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("stopped")}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}

func (c *DaemonRuntimeComponent) Core() *core.Core {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runtime == nil {
		return nil
	}
	return c.runtime.Core
}

func (c *DaemonRuntimeComponent) Metrics() *metrics.Sink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runtime == nil {
		return nil
	}
	return c.runtime.Metrics
}
