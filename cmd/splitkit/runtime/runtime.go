package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/metrics"
	"github.com/harunnryd/splitkit/internal/store"
)

// Runtime is the assembled core plus the resources it owns.
type Runtime struct {
	Config   *config.Config
	KV       store.KV
	Core     *core.Core
	Metrics  *metrics.Sink
	EventLog *analytics.JSONLSink

	ownsKV bool
}

// Open opens the configured store and assembles a Runtime around it.
func Open(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	kv, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	r, err := New(cfg, kv)
	if err != nil {
		kv.Close()
		return nil, err
	}
	r.ownsKV = true
	return r, nil
}

// New assembles a Runtime on an already opened store. Close leaves kv open.
func New(cfg *config.Config, kv store.KV) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if kv == nil {
		return nil, fmt.Errorf("store is required")
	}

	registry, err := LoadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	r := &Runtime{Config: cfg, KV: kv}

	if cfg.Analytics.MetricsEnabled {
		r.Metrics = metrics.NewSink(nil)
	}

	if path := cfg.Analytics.EventLogPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
		// Scopes write through ForSession; the sink's own session id is unused.
		sink, err := analytics.NewJSONLSink(path, cfg.Analytics.EventLogRotateMaxBytes, "")
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		r.EventLog = sink
	}

	r.Core = core.New(registry, kv, core.WithSinkFactory(r.sinkFor))
	slog.Debug("Runtime assembled",
		"experiments", len(registry.Experiments()),
		"store", cfg.Store.Driver,
		"event_log", cfg.Analytics.EventLogPath,
		"metrics", r.Metrics != nil,
	)
	return r, nil
}

func (r *Runtime) sinkFor(scopeID, sessionID string) analytics.Sink {
	var sinks analytics.MultiSink
	if r.EventLog != nil {
		sinks = append(sinks, r.EventLog.ForSession(sessionID))
	}
	if r.Metrics != nil {
		sinks = append(sinks, r.Metrics)
	}
	switch len(sinks) {
	case 0:
		return analytics.NopSink{}
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// Close releases the store when Open created it.
func (r *Runtime) Close() error {
	if r == nil || !r.ownsKV || r.KV == nil {
		return nil
	}
	return r.KV.Close()
}

// LoadRegistry defines the experiments declared inline in the config, then
// those in experiments_file. A later definition of the same id wins.
func LoadRegistry(cfg *config.Config) (*experiment.Registry, error) {
	registry := experiment.NewRegistry()
	registry.DefineAll(experiment.FromConfig(cfg.Experiments))

	if cfg.ExperimentsFile != "" {
		n, err := registry.LoadFile(cfg.ExperimentsFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("Experiments file not found", "path", cfg.ExperimentsFile)
		case err != nil:
			return nil, fmt.Errorf("load experiments: %w", err)
		default:
			slog.Info("Experiments loaded", "path", cfg.ExperimentsFile, "count", n)
		}
	}
	return registry, nil
}
