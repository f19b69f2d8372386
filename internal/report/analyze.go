package report

import (
	"github.com/harunnryd/splitkit/internal/analytics"
)

// Sample size below which a comparison is reported as inconclusive.
const (
	MinUsersPerVariant       = 100
	MinConversionsPerVariant = 5
)

type VariantResult struct {
	ID                 string  `json:"variantId"`
	Name               string  `json:"variantName"`
	Users              int     `json:"totalUsers"`
	Conversions        int     `json:"conversions"`
	ConversionRate     float64 `json:"conversionRate"`
	AvgSessionSeconds  float64 `json:"avgSessionDuration"`
	AvgInteractions    float64 `json:"avgInteractions"`
	ConversionValueSum float64 `json:"conversionValue"`
}

// Comparison describes a variant against the control. It is descriptive only.
type Comparison struct {
	VariantID          string  `json:"variantId"`
	ControlID          string  `json:"controlId"`
	RateDifference     float64 `json:"rateDifference"`
	RelativeLift       float64 `json:"relativeLift"`
	SampleSizeAdequate bool    `json:"sampleSizeAdequate"`
	Recommendation     string  `json:"recommendation"`
}

type ExperimentResult struct {
	ID          string          `json:"experimentId"`
	Variants    []VariantResult `json:"variants"`
	Comparisons []Comparison    `json:"comparisons,omitempty"`
}

// Control is the first variant seen for the experiment.
func (r ExperimentResult) Control() (VariantResult, bool) {
	if len(r.Variants) == 0 {
		return VariantResult{}, false
	}
	return r.Variants[0], true
}

func (r ExperimentResult) Sufficient() bool {
	return len(r.Variants) >= 2
}

type variantAcc struct {
	name        string
	sessions    map[string]struct{}
	order       []string
	conversions int
	value       float64
}

type sessionAcc struct {
	durationMs   int64
	interactions int
}

// Analyze groups assignments by experiment and variant, counting unique
// sessions as users. A conversion only counts once its variant has been
// seen assigned. Experiments and variants keep first-seen order.
func Analyze(events []analytics.Event) []ExperimentResult {
	experiments := map[string]map[string]*variantAcc{}
	var expOrder []string
	varOrder := map[string][]string{}
	sessions := map[string]*sessionAcc{}

	for _, evt := range events {
		if evt.SessionID != "" {
			s, ok := sessions[evt.SessionID]
			if !ok {
				s = &sessionAcc{}
				sessions[evt.SessionID] = s
			}
			if evt.SessionDurationMs > s.durationMs {
				s.durationMs = evt.SessionDurationMs
			}
			if evt.Name == analytics.EventUserInteraction {
				s.interactions++
			}
		}

		expID := evt.String("experimentId")
		varID := evt.String("variantId")

		switch evt.Name {
		case analytics.EventAssigned:
			variants, ok := experiments[expID]
			if !ok {
				variants = map[string]*variantAcc{}
				experiments[expID] = variants
				expOrder = append(expOrder, expID)
			}
			acc, ok := variants[varID]
			if !ok {
				name := evt.String("variantName")
				if name == "" {
					name = varID
				}
				acc = &variantAcc{name: name, sessions: map[string]struct{}{}}
				variants[varID] = acc
				varOrder[expID] = append(varOrder[expID], varID)
			}
			if _, seen := acc.sessions[evt.SessionID]; !seen {
				acc.sessions[evt.SessionID] = struct{}{}
				acc.order = append(acc.order, evt.SessionID)
			}

		case analytics.EventConversion:
			acc, ok := experiments[expID][varID]
			if !ok {
				continue
			}
			acc.conversions++
			if v, ok := evt.Float("value"); ok {
				acc.value += v
			}
		}
	}

	results := make([]ExperimentResult, 0, len(expOrder))
	for _, expID := range expOrder {
		res := ExperimentResult{ID: expID}
		for _, varID := range varOrder[expID] {
			res.Variants = append(res.Variants, summarize(varID, experiments[expID][varID], sessions))
		}
		if control, ok := res.Control(); ok {
			for _, v := range res.Variants[1:] {
				res.Comparisons = append(res.Comparisons, Compare(control, v))
			}
		}
		results = append(results, res)
	}
	return results
}

func summarize(id string, acc *variantAcc, sessions map[string]*sessionAcc) VariantResult {
	res := VariantResult{
		ID:                 id,
		Name:               acc.name,
		Users:              len(acc.sessions),
		Conversions:        acc.conversions,
		ConversionValueSum: acc.value,
	}
	if res.Users > 0 {
		res.ConversionRate = float64(res.Conversions) / float64(res.Users) * 100
	}

	var durationMs, interactions float64
	counted := 0
	for _, sid := range acc.order {
		s, ok := sessions[sid]
		if !ok {
			continue
		}
		durationMs += float64(s.durationMs)
		interactions += float64(s.interactions)
		counted++
	}
	if counted > 0 {
		res.AvgSessionSeconds = durationMs / float64(counted) / 1000
		res.AvgInteractions = interactions / float64(counted)
	}
	return res
}

// Compare reports the rate difference and relative lift of variant over
// control in percentage points and percent.
func Compare(control, variant VariantResult) Comparison {
	c := Comparison{
		VariantID:      variant.ID,
		ControlID:      control.ID,
		RateDifference: variant.ConversionRate - control.ConversionRate,
	}
	if control.ConversionRate > 0 {
		c.RelativeLift = c.RateDifference / control.ConversionRate * 100
	}
	c.SampleSizeAdequate = adequate(control) && adequate(variant)

	switch {
	case !c.SampleSizeAdequate:
		c.Recommendation = "Continue test - need more users or conversions per variant"
	case c.RelativeLift > 0:
		c.Recommendation = "Leading - " + variant.Name + " converts better than " + control.Name
	case c.RelativeLift < 0:
		c.Recommendation = "Trailing - " + variant.Name + " converts worse than " + control.Name
	default:
		c.Recommendation = "No clear winner"
	}
	return c
}

func adequate(v VariantResult) bool {
	return v.Users >= MinUsersPerVariant && v.Conversions >= MinConversionsPerVariant
}
