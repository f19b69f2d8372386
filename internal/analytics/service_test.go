package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.UnixMilli(1_700_000_000_000), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type recordingSink struct {
	names []string
	props []map[string]any
	err   error
}

func (r *recordingSink) Send(name string, props map[string]any) error {
	r.names = append(r.names, name)
	r.props = append(r.props, props)
	return r.err
}

type recordingReporter struct {
	errs   []error
	extras []map[string]any
}

func (r *recordingReporter) CaptureException(err error, extra map[string]any) error {
	r.errs = append(r.errs, err)
	r.extras = append(r.extras, extra)
	return nil
}

func TestTrackPreservesOrderAndTimestamps(t *testing.T) {
	clock := newStepClock(5 * time.Millisecond)
	svc := New(WithClock(clock.Now))

	svc.Track("a", nil)
	svc.Track("b", map[string]any{"k": "v"})

	data := svc.SessionData()
	require.Equal(t, 2, data.EventCount)
	require.Len(t, data.Events, 2)
	assert.Equal(t, "a", data.Events[0].Name)
	assert.Equal(t, "b", data.Events[1].Name)
	assert.LessOrEqual(t, data.Events[0].Timestamp, data.Events[1].Timestamp)
	assert.Equal(t, svc.Session().SessionID, data.Events[1].SessionID)
	assert.Equal(t, "v", data.Events[1].String("k"))
	assert.Greater(t, data.Events[1].SessionDurationMs, data.Events[0].SessionDurationMs)
}

func TestTrackDoesNotDeduplicate(t *testing.T) {
	svc := New()
	svc.Track("click", nil)
	svc.Track("click", nil)
	assert.Equal(t, 2, svc.SessionData().EventCount)
}

func TestTrackCopiesProperties(t *testing.T) {
	svc := New()
	props := map[string]any{"k": "before"}
	evt := svc.Track("x", props)
	props["k"] = "after"

	assert.Equal(t, "before", evt.String("k"))
	assert.Equal(t, "before", svc.SessionData().Events[0].String("k"))
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := New()
	b := New()
	assert.NotEmpty(t, a.Session().SessionID)
	assert.NotEqual(t, a.Session().SessionID, b.Session().SessionID)

	fixed := New(WithSessionID("sess-fixed"))
	assert.Equal(t, "sess-fixed", fixed.Session().SessionID)
}

func TestSinkReceivesEventsAndFailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("tag manager offline")}
	svc := New(WithSink(sink))

	evt := svc.Track("page_view", map[string]any{"path": "/"})

	assert.Equal(t, "page_view", evt.Name)
	assert.Equal(t, []string{"page_view"}, sink.names)
	assert.Equal(t, "/", sink.props[0]["path"])
	assert.Equal(t, 1, svc.SessionData().EventCount)
}

func TestPanickingSinkDoesNotReachCaller(t *testing.T) {
	svc := New(WithSink(SinkFunc(func(string, map[string]any) error {
		panic("boom")
	})))

	assert.NotPanics(t, func() { svc.Track("x", nil) })
	assert.Equal(t, 1, svc.SessionData().EventCount)
}

func TestConvenienceWrappers(t *testing.T) {
	svc := New()

	perf := svc.TrackPerformance("hero_render", 12.5, "")
	assert.Equal(t, EventPerformanceMetric, perf.Name)
	assert.Equal(t, "hero_render", perf.String("metric"))
	assert.Equal(t, "ms", perf.String("unit"))
	v, ok := perf.Float("value")
	require.True(t, ok)
	assert.Equal(t, 12.5, v)

	inter := svc.TrackInteraction("cta_click", map[string]any{"target": "buy"})
	assert.Equal(t, EventUserInteraction, inter.Name)
	assert.Equal(t, "cta_click", inter.String("type"))
	assert.Equal(t, "buy", inter.String("target"))
}

type stackErr struct{}

func (stackErr) Error() string { return "render exploded" }
func (stackErr) Stack() string { return "frame-1\nframe-2" }

func TestTrackErrorForwardsToReporter(t *testing.T) {
	reporter := &recordingReporter{}
	svc := New(WithErrorReporter(reporter))

	evt := svc.TrackError(fmt.Errorf("landing: %w", stackErr{}), map[string]any{"component": "hero"})

	assert.Equal(t, EventError, evt.Name)
	assert.Equal(t, "landing: render exploded", evt.String("message"))
	assert.Equal(t, "frame-1\nframe-2", evt.String("stack"))
	ctx, ok := evt.Properties["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hero", ctx["component"])

	require.Len(t, reporter.errs, 1)
	assert.Equal(t, "hero", reporter.extras[0]["component"])

	plain := svc.TrackError(errors.New("plain"), nil)
	assert.NotEmpty(t, plain.String("stack"))
}

func TestEventJSONFlattensProperties(t *testing.T) {
	evt := Event{
		Name:              EventAssigned,
		Timestamp:         1700000000123,
		SessionID:         "sess-1",
		SessionDurationMs: 42,
		Properties: map[string]any{
			"experimentId": "hero",
			"variantId":    "A",
			"name":         "ignored",
		},
	}

	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, EventAssigned, flat["name"])
	assert.Equal(t, "hero", flat["experimentId"])
	assert.Equal(t, "sess-1", flat["sessionId"])
	assert.Equal(t, float64(42), flat["sessionDuration"])

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, evt.Name, back.Name)
	assert.Equal(t, evt.Timestamp, back.Timestamp)
	assert.Equal(t, "A", back.String("variantId"))
	_, hasName := back.Properties["name"]
	assert.False(t, hasName)

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":1}`), &back))
}

func TestExportWritesSessionData(t *testing.T) {
	svc := New(WithSessionID("sess-export"))
	svc.Track("a", nil)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf))

	var data SessionData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "sess-export", data.SessionID)
	assert.Equal(t, 1, data.EventCount)
	assert.Equal(t, "a", data.Events[0].Name)
}

func TestMultiSinkContinuesPastFailures(t *testing.T) {
	first := &recordingSink{err: errors.New("down")}
	second := &recordingSink{}
	panicky := SinkFunc(func(string, map[string]any) error { panic("nope") })

	err := MultiSink{first, panicky, second}.Send("x", nil)
	assert.Error(t, err)
	assert.Equal(t, []string{"x"}, first.names)
	assert.Equal(t, []string{"x"}, second.names)
}
