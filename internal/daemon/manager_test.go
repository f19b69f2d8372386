package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/splitkit/internal/config"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type mockComponent struct {
	name         string
	dependencies []string
	log          *callLog
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string, log *callLog) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		log:          log,
		healthResult: &ComponentHealth{Name: name, Healthy: true},
	}
}

func (m *mockComponent) Name() string           { return m.name }
func (m *mockComponent) Dependencies() []string { return m.dependencies }

func (m *mockComponent) Init(ctx context.Context) error {
	m.log.add("init:" + m.name)
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.log.add("start:" + m.name)
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.log.add("stop:" + m.name)
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, m.healthError
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Daemon: config.DaemonConfig{
			DataPath:            filepath.Join(t.TempDir(), "data"),
			ShutdownTimeout:     "2s",
			HealthCheckInterval: "1h",
		},
	}
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestNewDaemon(t *testing.T) {
	if _, err := NewDaemon(nil); err == nil {
		t.Fatal("NewDaemon(nil) should fail")
	}

	d, err := NewDaemon(&config.Config{})
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	if d.Health() != StatusStarting {
		t.Errorf("Health = %v, want %v", d.Health(), StatusStarting)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := testConfig(t)
	d, _ := NewDaemon(cfg)

	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}
	if _, err := os.Stat(cfg.Daemon.DataPath); err != nil {
		t.Fatalf("data path not created: %v", err)
	}

	cfg.Server.Port = 0
	if err := d.validateConfig(); err == nil {
		t.Fatal("expected invalid port error")
	}
}

func TestInitializeComponentsDependencyOrder(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(testConfig(t))

	d.AddComponent(newMockComponent("HTTPServer", []string{"Runtime"}, log))
	d.AddComponent(newMockComponent("Runtime", []string{"Store"}, log))
	d.AddComponent(newMockComponent("Store", nil, log))

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}

	equalCalls(t, log.snapshot(), []string{"init:Store", "init:Runtime", "init:HTTPServer"})
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	d, _ := NewDaemon(testConfig(t))
	d.AddComponent(newMockComponent("Comp1", []string{"Comp2"}, &callLog{}))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}, &callLog{}))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for circular dependency, got nil")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	d, _ := NewDaemon(testConfig(t))
	d.AddComponent(newMockComponent("Comp", []string{"NonExistent"}, &callLog{}))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for missing dependency, got nil")
	}
}

func TestShutdownReversesInitOrder(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(testConfig(t))
	d.AddComponent(newMockComponent("Exporter", []string{"Store"}, log))
	d.AddComponent(newMockComponent("Store", nil, log))

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	if err := d.startComponents(ctx); err != nil {
		t.Fatalf("startComponents() error = %v", err)
	}
	d.shutdownComponents(ctx)

	equalCalls(t, log.snapshot(), []string{
		"init:Store", "init:Exporter",
		"start:Store", "start:Exporter",
		"stop:Exporter", "stop:Store",
	})
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want %v", d.Health(), StatusStopped)
	}
}

func TestRollbackStopsOnlyInitialized(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(testConfig(t))

	broken := newMockComponent("Broken", []string{"Store"}, log)
	broken.initError = fmt.Errorf("boom")
	d.AddComponent(newMockComponent("Store", nil, log))
	d.AddComponent(broken)

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Fatal("expected init failure")
	}
	d.rollback(context.Background())

	equalCalls(t, log.snapshot(), []string{"init:Store", "init:Broken", "stop:Store"})
}

func TestComponentHealth(t *testing.T) {
	d, _ := NewDaemon(testConfig(t))

	healthy := newMockComponent("Comp1", nil, &callLog{})
	sick := newMockComponent("Comp2", nil, &callLog{})
	sick.healthResult.Healthy = false
	sick.healthResult.Error = fmt.Errorf("mock error")
	failing := newMockComponent("Comp3", nil, &callLog{})
	failing.healthResult = nil
	failing.healthError = fmt.Errorf("probe failed")

	d.AddComponent(healthy)
	d.AddComponent(sick)
	d.AddComponent(failing)

	healths := d.ComponentHealth()
	if len(healths) != 3 {
		t.Fatalf("ComponentHealth() returned %d entries, want 3", len(healths))
	}
	if !healths["Comp1"].Healthy {
		t.Error("Comp1 should be healthy")
	}
	if healths["Comp2"].Healthy || healths["Comp2"].Error == nil {
		t.Error("Comp2 should be unhealthy with an error")
	}
	if healths["Comp3"].Healthy || healths["Comp3"].Error == nil {
		t.Error("Comp3 should be unhealthy with the probe error")
	}

	if got := d.checkComponentHealth(); got != 2 {
		t.Errorf("checkComponentHealth() = %d, want 2", got)
	}

	summary := d.HealthSummary()
	entry, ok := summary["Comp2"].(map[string]any)
	if !ok {
		t.Fatalf("summary entry = %#v", summary["Comp2"])
	}
	if entry["error"] != "mock error" {
		t.Errorf("summary error = %v, want mock error", entry["error"])
	}
}

func TestStartRunsUntilCancelled(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(testConfig(t))
	d.AddComponent(newMockComponent("Store", nil, log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Health() != StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not reach running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	equalCalls(t, log.snapshot(), []string{"init:Store", "start:Store", "stop:Store"})
}

func TestStartFailureShutsDownStarted(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(testConfig(t))

	bad := newMockComponent("HTTPServer", []string{"Store"}, log)
	bad.startError = fmt.Errorf("port in use")
	d.AddComponent(newMockComponent("Store", nil, log))
	d.AddComponent(bad)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected startup error")
	}

	equalCalls(t, log.snapshot(), []string{
		"init:Store", "init:HTTPServer",
		"start:Store", "start:HTTPServer",
		"stop:HTTPServer", "stop:Store",
	})
}
