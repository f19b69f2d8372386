package components

import (
	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/metrics"
)

// RuntimeProvider exposes the assembled core to components that depend on
// the "Runtime" component. Both accessors return nil before it initializes.
type RuntimeProvider interface {
	Core() *core.Core
	Metrics() *metrics.Sink
}
