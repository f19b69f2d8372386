package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/daemon"
	"github.com/harunnryd/splitkit/internal/store"
)

// StoreComponent owns the persisted assignment store for the daemon's lifetime.
type StoreComponent struct {
	cfg  config.StoreConfig
	open func(config.StoreConfig) (store.KV, error)

	mu sync.RWMutex
	kv store.KV
}

func NewStoreComponent(cfg config.StoreConfig) *StoreComponent {
	return &StoreComponent{cfg: cfg, open: store.Open}
}

func (s *StoreComponent) Name() string {
	return "Store"
}

func (s *StoreComponent) Dependencies() []string {
	return []string{}
}

func (s *StoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("store init cancelled: %w", ctx.Err())
	default:
	}

	kv, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", s.cfg.Driver, err)
	}
	s.kv = kv

	slog.Info("Store initialized", "component", s.Name(), "driver", s.cfg.Driver, "path", s.cfg.Path)
	return nil
}

func (s *StoreComponent) Start(ctx context.Context) error {
	return nil
}

func (s *StoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	err := s.kv.Close()
	s.kv = nil
	return err
}

func (s *StoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.kv == nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if _, err := s.kv.Keys(); err != nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

// KV returns the opened store, or nil before Init.
func (s *StoreComponent) KV() store.KV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kv
}
