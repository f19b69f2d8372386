package experiment

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/harunnryd/splitkit/internal/config"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"

	"gopkg.in/yaml.v3"
)

const weightTolerance = 0.01

// Registry holds experiment definitions keyed by id.
type Registry struct {
	mu          sync.RWMutex
	experiments map[string][]Variant
}

func NewRegistry() *Registry {
	return &Registry{experiments: make(map[string][]Variant)}
}

// Define stores variants under experimentID, replacing any earlier
// definition. Weights that do not sum to 100 are logged, never rejected.
func (r *Registry) Define(experimentID string, variants []Variant) {
	if total := totalWeight(variants); math.Abs(total-100) > weightTolerance {
		err := splitErrors.WeightSumMismatch(experimentID, total)
		slog.Warn("Experiment weights do not sum to 100",
			"experiment", experimentID,
			"total", total,
			"category", splitErrors.Category(err),
		)
	}

	r.mu.Lock()
	r.experiments[experimentID] = cloneVariants(variants)
	r.mu.Unlock()

	slog.Debug("Experiment defined", "experiment", experimentID, "variants", len(variants))
}

func (r *Registry) DefineAll(experiments []Experiment) {
	for _, exp := range experiments {
		r.Define(exp.ID, exp.Variants)
	}
}

func (r *Registry) Lookup(experimentID string) ([]Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	variants, ok := r.experiments[experimentID]
	if !ok {
		return nil, false
	}
	return cloneVariants(variants), true
}

// Experiments returns every definition sorted by id.
func (r *Registry) Experiments() []Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Experiment, 0, len(r.experiments))
	for id, variants := range r.experiments {
		out = append(out, Experiment{ID: id, Variants: cloneVariants(variants)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type experimentsFile struct {
	Experiments []Experiment `yaml:"experiments"`
}

// LoadFile defines every experiment listed in a YAML file of the form
// `experiments: [{id, variants: [...]}]`.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read experiments file: %w", err)
	}

	var doc experimentsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse experiments file %s: %w", path, err)
	}

	r.DefineAll(doc.Experiments)
	return len(doc.Experiments), nil
}

// FromConfig converts configured experiments into definitions.
func FromConfig(cfgs []config.ExperimentConfig) []Experiment {
	out := make([]Experiment, 0, len(cfgs))
	for _, c := range cfgs {
		exp := Experiment{ID: c.ID, Variants: make([]Variant, 0, len(c.Variants))}
		for _, v := range c.Variants {
			exp.Variants = append(exp.Variants, Variant{
				ID:     v.ID,
				Name:   v.Name,
				Weight: v.Weight,
				Config: v.Config,
			})
		}
		out = append(out, exp)
	}
	return out
}
