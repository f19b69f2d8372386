// Package metrics exposes tracked events as Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/harunnryd/splitkit/internal/analytics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitkit"

// Sink counts every event it receives. It satisfies analytics.Sink.
type Sink struct {
	registry *prometheus.Registry

	eventsTotal      *prometheus.CounterVec
	assignmentsTotal *prometheus.CounterVec
	conversionsTotal *prometheus.CounterVec
	conversionValue  *prometheus.CounterVec
	performance      *prometheus.HistogramVec
	errorsTotal      prometheus.Counter
}

// NewSink registers collectors on registry, or on a fresh registry when nil.
func NewSink(registry *prometheus.Registry) *Sink {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Sink{
		registry: registry,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of tracked events by name",
		}, []string{"event"}),
		assignmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Variant assignments by experiment and variant",
		}, []string{"experiment", "variant"}),
		conversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversions by experiment, variant and conversion type",
		}, []string{"experiment", "variant", "type"}),
		conversionValue: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_value_total",
			Help:      "Sum of conversion values by experiment and variant",
		}, []string{"experiment", "variant"}),
		performance: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "performance_metric_milliseconds",
			Help:      "Performance measures reported by the timing recorder",
			Buckets:   []float64{1, 5, 10, 16, 33, 50, 100, 250, 500, 1000, 2500},
		}, []string{"metric"}),
		errorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error events recorded by render boundaries and handlers",
		}),
	}
}

func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Sink) Send(name string, props map[string]any) error {
	s.eventsTotal.WithLabelValues(name).Inc()

	switch name {
	case analytics.EventAssigned:
		s.assignmentsTotal.WithLabelValues(label(props, "experimentId"), label(props, "variantId")).Inc()
	case analytics.EventConversion:
		experiment, variant := label(props, "experimentId"), label(props, "variantId")
		s.conversionsTotal.WithLabelValues(experiment, variant, label(props, "conversionType")).Inc()
		if v, ok := number(props["value"]); ok && v >= 0 {
			s.conversionValue.WithLabelValues(experiment, variant).Add(v)
		}
	case analytics.EventPerformanceMetric:
		v, ok := number(props["value"])
		if !ok {
			return fmt.Errorf("performance metric %q has no numeric value", label(props, "metric"))
		}
		s.performance.WithLabelValues(label(props, "metric")).Observe(v)
	case analytics.EventError:
		s.errorsTotal.Inc()
	}
	return nil
}

func label(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
