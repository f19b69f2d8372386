package experiment

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"unicode/utf16"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"
	"github.com/harunnryd/splitkit/internal/store"
)

// EventTracker is the slice of the analytics service the engine emits into.
type EventTracker interface {
	Track(name string, props map[string]any) analytics.Event
}

// Engine resolves variants for one storage scope. An experiment moves from
// unassigned to assigned on its first GetVariant call and stays assigned until
// the scope is cleared externally.
type Engine struct {
	registry *Registry
	kv       store.KV
	tracker  EventTracker
	random   func() float64

	mu       sync.Mutex
	resolved map[string]Variant
}

type EngineOption func(*Engine)

// WithRandom replaces the uniform [0, 1) source used when no user id is given.
func WithRandom(random func() float64) EngineOption {
	return func(e *Engine) {
		if random != nil {
			e.random = random
		}
	}
}

func NewEngine(registry *Registry, kv store.KV, tracker EventTracker, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		kv:       kv,
		tracker:  tracker,
		random:   rand.Float64,
		resolved: make(map[string]Variant),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetVariant returns the scope's variant for experimentID, assigning one on
// first use. It returns nil for unknown experiments; failures are logged and
// never surface to the caller.
func (e *Engine) GetVariant(experimentID, userID string) *Variant {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.readPersisted(experimentID); ok {
		e.resolved[experimentID] = v
		return &v
	}

	variants, ok := e.registry.Lookup(experimentID)
	if !ok {
		err := splitErrors.UnknownExperiment(experimentID)
		slog.Error("Variant requested for unknown experiment",
			"experiment", experimentID,
			"category", splitErrors.Category(err),
		)
		return nil
	}

	var bucket float64
	if userID != "" {
		bucket = float64(HashBucket(userID))
	} else {
		bucket = e.random() * 100
	}

	selected, ok := SelectVariant(variants, bucket)
	if !ok {
		slog.Warn("Experiment has no variants", "experiment", experimentID)
		return nil
	}

	e.persist(experimentID, selected)
	e.resolved[experimentID] = selected

	e.tracker.Track(analytics.EventAssigned, map[string]any{
		"experimentId": experimentID,
		"variantId":    selected.ID,
		"variantName":  selected.Name,
	})

	slog.Debug("Variant assigned", "experiment", experimentID, "variant", selected.ID, "bucket", bucket)
	return &selected
}

// Resolved returns the last variant this engine resolved for experimentID,
// falling back to a read of the persisted store. It never assigns.
func (e *Engine) Resolved(experimentID string) (Variant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.resolved[experimentID]; ok {
		return v, true
	}
	if v, ok := e.readPersisted(experimentID); ok {
		e.resolved[experimentID] = v
		return v, true
	}
	return Variant{}, false
}

// Assignments lists the variants resolved in this process, sorted by experiment.
func (e *Engine) Assignments() []Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Assignment, 0, len(e.resolved))
	for id, v := range e.resolved {
		out = append(out, Assignment{ExperimentID: id, Variant: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExperimentID < out[j].ExperimentID })
	return out
}

// Forget drops in-memory assignments, used after the backing scope is cleared.
func (e *Engine) Forget() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved = make(map[string]Variant)
}

func (e *Engine) readPersisted(experimentID string) (Variant, bool) {
	raw, ok, err := e.kv.Get(StorageKey(experimentID))
	if err != nil {
		err = splitErrors.StorageUnavailable("read "+StorageKey(experimentID), err)
		slog.Warn("Failed to read persisted assignment, treating as unassigned",
			"experiment", experimentID,
			"category", splitErrors.Category(err),
			"error", err,
		)
		return Variant{}, false
	}
	if !ok {
		return Variant{}, false
	}

	var v Variant
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("Discarding unreadable persisted assignment", "experiment", experimentID, "error", err)
		return Variant{}, false
	}
	return v, true
}

func (e *Engine) persist(experimentID string, v Variant) {
	data, err := json.Marshal(v)
	if err == nil {
		err = e.kv.Set(StorageKey(experimentID), string(data))
	}
	if err != nil {
		err = splitErrors.StorageUnavailable("write "+StorageKey(experimentID), err)
		slog.Warn("Failed to persist assignment",
			"experiment", experimentID,
			"variant", v.ID,
			"category", splitErrors.Category(err),
			"error", err,
		)
	}
}

// HashBucket maps a user id to [0, 100) with a 32-bit multiply-add rolling
// hash over UTF-16 code units, so ids bucket the same as in browser clients.
func HashBucket(userID string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(userID)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}

// SelectVariant walks variants accumulating weight and returns the first whose
// cumulative weight reaches bucket. When weights fall short the last variant
// wins. It reports false only for an empty list.
func SelectVariant(variants []Variant, bucket float64) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Weight
		if cumulative >= bucket {
			return v, true
		}
	}
	return variants[len(variants)-1], true
}
