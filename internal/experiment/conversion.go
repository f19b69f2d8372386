package experiment

import (
	"log/slog"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"
)

const (
	DefaultConversionType  = "default"
	DefaultConversionValue = 1.0
)

// ConversionTracker attributes outcomes to the scope's assigned variant.
type ConversionTracker struct {
	engine  *Engine
	tracker EventTracker
}

func NewConversionTracker(engine *Engine, tracker EventTracker) *ConversionTracker {
	return &ConversionTracker{engine: engine, tracker: tracker}
}

// TrackConversion emits ab_test_conversion for the variant resolved for
// experimentID. Without a resolved or persisted assignment nothing is
// emitted and false is returned.
func (c *ConversionTracker) TrackConversion(experimentID, conversionType string, value float64) bool {
	if conversionType == "" {
		conversionType = DefaultConversionType
	}

	variant, ok := c.engine.Resolved(experimentID)
	if !ok {
		if _, defined := c.engine.registry.Lookup(experimentID); !defined {
			err := splitErrors.UnknownExperiment(experimentID)
			slog.Warn("Conversion for unknown experiment dropped",
				"experiment", experimentID,
				"conversion", conversionType,
				"category", splitErrors.Category(err),
			)
		} else {
			slog.Warn("Conversion before assignment dropped",
				"experiment", experimentID,
				"conversion", conversionType,
			)
		}
		return false
	}

	c.tracker.Track(analytics.EventConversion, map[string]any{
		"experimentId":   experimentID,
		"variantId":      variant.ID,
		"variantName":    variant.Name,
		"conversionType": conversionType,
		"value":          value,
	})
	return true
}
