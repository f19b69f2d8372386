package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names emitted by the core.
const (
	EventAssigned          = "ab_test_assigned"
	EventConversion        = "ab_test_conversion"
	EventPerformanceMetric = "performance_metric"
	EventUserInteraction   = "user_interaction"
	EventError             = "error"
)

// Event is one entry in the session log. Properties are flattened next to the
// fixed fields when serialized; a property never overrides a fixed field.
type Event struct {
	Name              string
	Timestamp         int64
	SessionID         string
	SessionDurationMs int64
	Properties        map[string]any
}

var reservedFields = map[string]struct{}{
	"name":            {},
	"timestamp":       {},
	"sessionId":       {},
	"sessionDuration": {},
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Property returns a copy-safe read of a single property.
func (e Event) Property(key string) (any, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

// String returns the property as a string, or "" when absent or not a string.
func (e Event) String(key string) string {
	if v, ok := e.Properties[key].(string); ok {
		return v
	}
	return ""
}

// Float returns a numeric property, accepting the integer and float kinds that
// appear before and after a JSON round trip.
func (e Event) Float(key string) (float64, bool) {
	switch v := e.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Properties)+4)
	for k, v := range e.Properties {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["name"] = e.Name
	out["timestamp"] = e.Timestamp
	out["sessionId"] = e.SessionID
	out["sessionDuration"] = e.SessionDurationMs
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	name, ok := raw["name"].(string)
	if !ok {
		return fmt.Errorf("event has no name")
	}

	*e = Event{Name: name, Properties: make(map[string]any)}
	if ts, ok := raw["timestamp"].(float64); ok {
		e.Timestamp = int64(ts)
	}
	if sid, ok := raw["sessionId"].(string); ok {
		e.SessionID = sid
	}
	if d, ok := raw["sessionDuration"].(float64); ok {
		e.SessionDurationMs = int64(d)
	}
	for k, v := range raw {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		e.Properties[k] = v
	}
	return nil
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
