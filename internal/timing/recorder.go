// Package timing records named marks and the durations measured between them.
package timing

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"
)

// PerformanceTracker receives every completed measure.
type PerformanceTracker interface {
	TrackPerformance(metric string, value float64, unit string) analytics.Event
}

// Mark is a named point in time, in milliseconds since the recorder started.
type Mark struct {
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp"`
}

// Measure is a duration between two marks.
type Measure struct {
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	Timestamp int64   `json:"timestamp"`
}

// Metrics is a point-in-time copy of the recorder.
type Metrics struct {
	Marks    []Mark    `json:"marks"`
	Measures []Measure `json:"measures"`
}

type Recorder struct {
	tracker PerformanceTracker
	now     func() time.Time
	origin  time.Time

	mu       sync.Mutex
	marks    map[string]float64
	measures []Measure
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRecorder(tracker PerformanceTracker, opts ...Option) *Recorder {
	r := &Recorder{
		tracker: tracker,
		now:     time.Now,
		marks:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.origin = r.now()
	return r
}

func (r *Recorder) elapsed() float64 {
	return float64(r.now().Sub(r.origin).Microseconds()) / 1000
}

// Mark records the current time under name. A later mark with the same name
// replaces the earlier one.
func (r *Recorder) Mark(name string) {
	r.mu.Lock()
	r.marks[name] = r.elapsed()
	r.mu.Unlock()
}

// Measure appends the duration from startMark to endMark, or to now when
// endMark is empty or unrecorded. It returns nil when startMark was never
// recorded.
func (r *Recorder) Measure(name, startMark, endMark string) *Measure {
	r.mu.Lock()
	start, ok := r.marks[startMark]
	if !ok {
		r.mu.Unlock()
		err := splitErrors.MissingMark(startMark)
		slog.Warn("Measure skipped, start mark not recorded",
			"measure", name,
			"mark", startMark,
			"category", splitErrors.Category(err),
		)
		return nil
	}

	end, ok := r.marks[endMark]
	if endMark == "" || !ok {
		end = r.elapsed()
	}

	m := Measure{
		Name:      name,
		Duration:  end - start,
		Timestamp: r.now().UnixMilli(),
	}
	r.measures = append(r.measures, m)
	r.mu.Unlock()

	if r.tracker != nil {
		r.tracker.TrackPerformance(name, m.Duration, "ms")
	}
	return &m
}

// Metrics returns marks ordered by time and measures in insertion order.
func (r *Recorder) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	marks := make([]Mark, 0, len(r.marks))
	for name, ts := range r.marks {
		marks = append(marks, Mark{Name: name, Timestamp: ts})
	}
	sort.Slice(marks, func(i, j int) bool {
		if marks[i].Timestamp == marks[j].Timestamp {
			return marks[i].Name < marks[j].Name
		}
		return marks[i].Timestamp < marks[j].Timestamp
	})

	measures := make([]Measure, len(r.measures))
	copy(measures, r.measures)

	return Metrics{Marks: marks, Measures: measures}
}

// Export writes the metrics snapshot as indented JSON.
func (r *Recorder) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Metrics())
}

// MeasureRender times fn between "<component>_start" and "<component>_end"
// and returns its result unchanged.
func MeasureRender[T any](r *Recorder, component string, fn func() T) T {
	r.Mark(component + "_start")
	result := fn()
	r.Mark(component + "_end")
	r.Measure(component, component+"_start", component+"_end")
	return result
}
