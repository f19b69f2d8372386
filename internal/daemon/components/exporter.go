package components

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/config"
	"github.com/harunnryd/splitkit/internal/daemon"

	"github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"
)

// ExportFile is the name of the snapshot written into the export directory.
const ExportFile = "events.json"

// EventExport is the on-disk shape of a scheduled export; report.Load reads it.
type EventExport struct {
	ExportedAt time.Time         `json:"exportedAt"`
	Scopes     int               `json:"scopes"`
	Events     []analytics.Event `json:"events"`
}

// ExporterComponent periodically snapshots every scope's events to disk so
// the offline report can run against a live service.
type ExporterComponent struct {
	runtime  RuntimeProvider
	dir      string
	schedule string
	now      func() time.Time

	mu         sync.RWMutex
	cron       *cron.Cron
	lastExport time.Time
	lastErr    error
}

func NewExporterComponent(runtime RuntimeProvider, cfg config.AnalyticsConfig) *ExporterComponent {
	schedule := cfg.ExportSchedule
	if schedule == "" {
		schedule = config.DefaultAnalyticsExportSchedule
	}
	return &ExporterComponent{
		runtime:  runtime,
		dir:      cfg.ExportDir,
		schedule: schedule,
		now:      time.Now,
	}
}

func (e *ExporterComponent) Name() string {
	return "Exporter"
}

func (e *ExporterComponent) Dependencies() []string {
	return []string{"Runtime"}
}

func (e *ExporterComponent) Init(ctx context.Context) error {
	if e.runtime == nil {
		return fmt.Errorf("runtime not provided")
	}
	if e.dir == "" {
		return fmt.Errorf("analytics.export_dir is empty")
	}
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(e.schedule, func() {
		if err := e.Export(); err != nil {
			slog.Error("Scheduled export failed", "component", e.Name(), "error", err)
		}
	}); err != nil {
		return fmt.Errorf("parse export schedule %q: %w", e.schedule, err)
	}

	e.mu.Lock()
	e.cron = c
	e.mu.Unlock()

	slog.Info("Exporter initialized", "component", e.Name(), "dir", e.dir, "schedule", e.schedule)
	return nil
}

func (e *ExporterComponent) Start(ctx context.Context) error {
	e.mu.RLock()
	c := e.cron
	e.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("exporter not initialized")
	}
	c.Start()
	return nil
}

// Stop halts the schedule, waits for a running export and writes a final one.
func (e *ExporterComponent) Stop(ctx context.Context) error {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return fmt.Errorf("wait for running export: %w", ctx.Err())
	}

	return e.Export()
}

func (e *ExporterComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.lastErr != nil {
		return &daemon.ComponentHealth{Name: e.Name(), Healthy: false, Error: e.lastErr}, nil
	}
	return &daemon.ComponentHealth{Name: e.Name(), Healthy: true}, nil
}

// Export writes the current events of every scope to ExportFile. Nothing is
// written while the log is empty.
func (e *ExporterComponent) Export() error {
	c := e.runtime.Core()
	if c == nil {
		return fmt.Errorf("core not initialized")
	}

	events := c.Events()
	if len(events) == 0 {
		return nil
	}

	payload := EventExport{
		ExportedAt: e.now(),
		Scopes:     len(c.ScopeIDs()),
		Events:     events,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	path := filepath.Join(e.dir, ExportFile)
	err = atomic.WriteFile(path, bytes.NewReader(data))

	e.mu.Lock()
	e.lastErr = err
	if err == nil {
		e.lastExport = payload.ExportedAt
	}
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	slog.Debug("Events exported", "component", e.Name(), "path", path, "events", len(events))
	return nil
}

func (e *ExporterComponent) LastExport() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastExport
}
