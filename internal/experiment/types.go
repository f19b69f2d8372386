package experiment

// Variant is one configuration option of an experiment. Weight is its share of
// the 0-100 bucketing space.
type Variant struct {
	ID     string         `json:"id" yaml:"id"`
	Name   string         `json:"name" yaml:"name"`
	Weight float64        `json:"weight" yaml:"weight"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Experiment is an ordered list of mutually exclusive variants. Order matters:
// bucketing walks it front to back and falls back to the last entry.
type Experiment struct {
	ID       string    `json:"id" yaml:"id"`
	Variants []Variant `json:"variants" yaml:"variants"`
}

// Assignment binds a storage scope to one variant of an experiment.
type Assignment struct {
	ExperimentID string  `json:"experimentId"`
	Variant      Variant `json:"variant"`
}

// StorageKey is the persisted key holding the assignment for experimentID.
func StorageKey(experimentID string) string {
	return "ab_" + experimentID
}

func totalWeight(variants []Variant) float64 {
	total := 0.0
	for _, v := range variants {
		total += v.Weight
	}
	return total
}

func cloneVariants(in []Variant) []Variant {
	out := make([]Variant, len(in))
	copy(out, in)
	return out
}
