package report

import (
	"fmt"
	"strings"

	"github.com/harunnryd/splitkit/internal/formatter"
)

// Format renders one block per experiment: a variant table followed by the
// comparisons against the control.
func Format(results []ExperimentResult) string {
	if len(results) == 0 {
		return "No experiments found"
	}

	f := formatter.NewTableFormatter()
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(f.Title("A/B TEST REPORT: " + res.ID))
		b.WriteString("\n")

		if !res.Sufficient() {
			b.WriteString(fmt.Sprintf("Insufficient data for experiment: %s", res.ID))
			continue
		}

		rows := make([][]string, 0, len(res.Variants))
		for _, v := range res.Variants {
			rows = append(rows, []string{
				formatter.Truncate(v.Name, 24) + " (" + v.ID + ")",
				fmt.Sprintf("%d", v.Users),
				fmt.Sprintf("%d", v.Conversions),
				fmt.Sprintf("%.2f%%", v.ConversionRate),
				fmt.Sprintf("%.1fs", v.AvgSessionSeconds),
				fmt.Sprintf("%.1f", v.AvgInteractions),
			})
		}
		b.WriteString(f.Table([]string{"Variant", "Users", "Conversions", "Rate", "Avg Session", "Avg Interactions"}, rows))

		if len(res.Comparisons) > 0 {
			cmp := make([][]string, 0, len(res.Comparisons))
			for _, c := range res.Comparisons {
				adequate := "no"
				if c.SampleSizeAdequate {
					adequate = "yes"
				}
				cmp = append(cmp, []string{
					c.VariantID + " vs " + c.ControlID,
					fmt.Sprintf("%+.2f%%", c.RateDifference),
					fmt.Sprintf("%+.2f%%", c.RelativeLift),
					adequate,
					c.Recommendation,
				})
			}
			b.WriteString("\n")
			b.WriteString(f.Table([]string{"Comparison", "Rate Diff", "Lift", "Sample OK", "Recommendation"}, cmp))
		}
	}
	return b.String()
}
