package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/splitkit/internal/analytics"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the value of the series of family name whose labels
// include want.
func gathered(t *testing.T, s *Sink, name string, want map[string]string) float64 {
	t.Helper()
	families, err := s.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
				}
			}
			if !match {
				continue
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSinkCountsAssignmentsAndConversions(t *testing.T) {
	sink := NewSink(nil)
	svc := analytics.New(analytics.WithSink(sink))

	reg := experiment.NewRegistry()
	reg.Define("hero", []experiment.Variant{{ID: "A", Name: "Only", Weight: 100}})
	engine := experiment.NewEngine(reg, store.NewMemoryKV(), svc)
	conv := experiment.NewConversionTracker(engine, svc)

	require.NotNil(t, engine.GetVariant("hero", ""))
	require.True(t, conv.TrackConversion("hero", "click", 2))
	require.True(t, conv.TrackConversion("hero", "click", 3))

	assert.Equal(t, 1.0, gathered(t, sink, "splitkit_assignments_total", map[string]string{"experiment": "hero", "variant": "A"}))
	assert.Equal(t, 2.0, gathered(t, sink, "splitkit_conversions_total", map[string]string{"experiment": "hero", "variant": "A", "type": "click"}))
	assert.Equal(t, 5.0, gathered(t, sink, "splitkit_conversion_value_total", map[string]string{"experiment": "hero", "variant": "A"}))
	assert.Equal(t, 2.0, gathered(t, sink, "splitkit_events_total", map[string]string{"event": analytics.EventConversion}))
}

func TestSinkObservesPerformance(t *testing.T) {
	sink := NewSink(nil)
	svc := analytics.New(analytics.WithSink(sink))

	svc.TrackPerformance("Logo", 12, "")
	svc.TrackPerformance("Logo", 40, "")

	assert.Equal(t, 2.0, gathered(t, sink, "splitkit_performance_metric_milliseconds", map[string]string{"metric": "Logo"}))
}

func TestSinkRejectsPerformanceWithoutValue(t *testing.T) {
	sink := NewSink(nil)
	err := sink.Send(analytics.EventPerformanceMetric, map[string]any{"metric": "x", "value": "fast"})
	assert.Error(t, err)
}

func TestHandlerExposesRegistry(t *testing.T) {
	sink := NewSink(nil)
	require.NoError(t, sink.Send(analytics.EventError, map[string]any{"message": "x"}))

	srv := httptest.NewServer(sink.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "splitkit_errors_total 1")
}
