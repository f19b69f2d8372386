package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/splitkit/internal/formatter"
)

// RecentEvents is how many of the latest events the view lists.
const RecentEvents = 10

func Render(snap Snapshot) string {
	f := formatter.NewTableFormatter()
	var b strings.Builder

	b.WriteString(f.Title("splitkit debug dashboard"))
	b.WriteString("\n")
	b.WriteString(f.KeyValue([][2]string{
		{"Session", snap.Session.SessionID},
		{"Duration", (time.Duration(snap.Session.Duration) * time.Millisecond).String()},
		{"Events", fmt.Sprintf("%d", snap.Session.EventCount)},
		{"Loaded", loadingLabel(snap)},
		{"Pointer", fmt.Sprintf("%d delivered / %d dropped", snap.Pointer.Delivered, snap.Pointer.Dropped)},
	}))

	b.WriteString("\n")
	b.WriteString(f.Title("Experiments"))
	b.WriteString("\n")
	assigned := make(map[string]string, len(snap.Assignments))
	for _, a := range snap.Assignments {
		assigned[a.ExperimentID] = a.Variant.ID
	}
	expRows := make([][]string, 0, len(snap.Experiments))
	for _, exp := range snap.Experiments {
		variants := make([]string, 0, len(exp.Variants))
		for _, v := range exp.Variants {
			variants = append(variants, fmt.Sprintf("%s:%g", v.ID, v.Weight))
		}
		current := assigned[exp.ID]
		if current == "" {
			current = "-"
		}
		expRows = append(expRows, []string{exp.ID, formatter.Truncate(strings.Join(variants, " "), 40), current})
	}
	b.WriteString(f.Table([]string{"Experiment", "Variants", "Assigned"}, expRows))

	b.WriteString("\n")
	b.WriteString(f.Title("Recent events"))
	b.WriteString("\n")
	events := snap.Session.Events
	if len(events) > RecentEvents {
		events = events[len(events)-RecentEvents:]
	}
	eventRows := make([][]string, 0, len(events))
	for _, e := range events {
		eventRows = append(eventRows, []string{
			e.Time().Format("15:04:05.000"),
			e.Name,
			formatter.Truncate(propsSummary(e.Properties), 48),
		})
	}
	b.WriteString(f.Table([]string{"Time", "Event", "Properties"}, eventRows))

	b.WriteString("\n")
	b.WriteString(f.Title("Measures"))
	b.WriteString("\n")
	measureRows := make([][]string, 0, len(snap.Metrics.Measures))
	for _, m := range snap.Metrics.Measures {
		measureRows = append(measureRows, []string{m.Name, fmt.Sprintf("%.2fms", m.Duration)})
	}
	b.WriteString(f.Table([]string{"Measure", "Duration"}, measureRows))

	return b.String()
}

func loadingLabel(snap Snapshot) string {
	if !snap.Loading.Loaded {
		return "no"
	}
	return "yes (" + snap.Loading.Reason + ")"
}

func propsSummary(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == "stack" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return strings.Join(parts, " ")
}
