// Package core gives every visitor its own session, timing recorder and
// persisted assignment scope on top of one shared experiment registry.
package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/store"
	"github.com/harunnryd/splitkit/internal/timing"

	"github.com/oklog/ulid/v2"
)

// DefaultScope is used by local callers (CLI, REPL) that have no visitor id.
const DefaultScope = "local"

// SinkFactory returns the sink a new scope's session forwards events to.
type SinkFactory func(scopeID, sessionID string) analytics.Sink

// Scope is what one browser tab would hold: a session event log, a timing
// recorder and the persisted assignments read by the engine.
type Scope struct {
	ID          string
	KV          store.KV
	Analytics   *analytics.Service
	Recorder    *timing.Recorder
	Engine      *experiment.Engine
	Conversions *experiment.ConversionTracker
}

type Core struct {
	Registry *experiment.Registry

	kv       store.KV
	sinks    SinkFactory
	reporter analytics.ErrorReporter
	now      func() time.Time
	random   func() float64

	mu     sync.Mutex
	scopes map[string]*Scope
}

type Option func(*Core)

func WithSinkFactory(f SinkFactory) Option {
	return func(c *Core) {
		c.sinks = f
	}
}

func WithErrorReporter(r analytics.ErrorReporter) Option {
	return func(c *Core) {
		c.reporter = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// WithRandom fixes the bucketing source of every scope.
func WithRandom(random func() float64) Option {
	return func(c *Core) {
		c.random = random
	}
}

func New(registry *experiment.Registry, kv store.KV, opts ...Option) *Core {
	c := &Core{
		Registry: registry,
		kv:       kv,
		scopes:   make(map[string]*Scope),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scope returns the scope for id, creating it with a fresh session on first
// use. An empty id selects DefaultScope.
func (c *Core) Scope(id string) *Scope {
	if id == "" {
		id = DefaultScope
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.scopes[id]; ok {
		return s
	}

	sessionID := ulid.Make().String()
	svcOpts := []analytics.Option{
		analytics.WithSessionID(sessionID),
		analytics.WithClock(c.now),
		analytics.WithErrorReporter(c.reporter),
	}
	if c.sinks != nil {
		svcOpts = append(svcOpts, analytics.WithSink(c.sinks(id, sessionID)))
	}
	svc := analytics.New(svcOpts...)

	kv := store.NewNamespaced(c.kv, id)
	var engineOpts []experiment.EngineOption
	if c.random != nil {
		engineOpts = append(engineOpts, experiment.WithRandom(c.random))
	}
	engine := experiment.NewEngine(c.Registry, kv, svc, engineOpts...)

	s := &Scope{
		ID:          id,
		KV:          kv,
		Analytics:   svc,
		Recorder:    timing.NewRecorder(svc, timing.WithClock(c.now)),
		Engine:      engine,
		Conversions: experiment.NewConversionTracker(engine, svc),
	}
	c.scopes[id] = s

	slog.Debug("Scope opened", "scope", id, "session", svc.Session().SessionID)
	return s
}

// Lookup returns an existing scope without creating one.
func (c *Core) Lookup(id string) (*Scope, bool) {
	if id == "" {
		id = DefaultScope
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[id]
	return s, ok
}

// ScopeIDs lists scopes opened by this process.
func (c *Core) ScopeIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.scopes))
	for id := range c.scopes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Events merges the events of every open scope ordered by timestamp. Events
// of one session keep their recorded order.
func (c *Core) Events() []analytics.Event {
	c.mu.Lock()
	scopes := make([]*Scope, 0, len(c.scopes))
	for _, s := range c.scopes {
		scopes = append(scopes, s)
	}
	c.mu.Unlock()

	var events []analytics.Event
	for _, s := range scopes {
		events = append(events, s.Analytics.SessionData().Events...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return events
}

// ClearScope removes the persisted assignments of one scope.
func (c *Core) ClearScope(id string) error {
	s := c.Scope(id)
	if err := s.KV.Clear(); err != nil {
		return fmt.Errorf("clear scope %s: %w", s.ID, err)
	}
	s.Engine.Forget()
	slog.Info("Scope cleared", "scope", s.ID)
	return nil
}

// ClearAll wipes the whole persisted store, every scope included.
func (c *Core) ClearAll() error {
	if err := c.kv.Clear(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	c.mu.Lock()
	for _, s := range c.scopes {
		s.Engine.Forget()
	}
	c.mu.Unlock()

	slog.Info("Persisted store cleared")
	return nil
}
