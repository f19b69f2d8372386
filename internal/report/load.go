// Package report summarizes experiment outcomes from exported sessions or
// event logs.
package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harunnryd/splitkit/internal/analytics"
	splitErrors "github.com/harunnryd/splitkit/internal/errors"
)

// Load reads events from a session export ({"events": [...]}), a bare JSON
// array of events, or an event log with one record per line. Entries without
// a name are skipped.
func Load(r io.Reader) ([]analytics.Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, splitErrors.InvalidInput("no events in input")
	}

	switch trimmed[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, splitErrors.Wrap(splitErrors.InvalidInput(err.Error()), "parse event array")
		}
		return decodeEvents(raw), nil
	case '{':
		var export struct {
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(trimmed, &export); err == nil && export.Events != nil {
			return decodeEvents(export.Events), nil
		}
		return loadLines(trimmed)
	default:
		return nil, splitErrors.InvalidInput("unexpected data format")
	}
}

func LoadFile(path string) ([]analytics.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func decodeEvents(raw []json.RawMessage) []analytics.Event {
	events := make([]analytics.Event, 0, len(raw))
	for i, msg := range raw {
		var evt analytics.Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			slog.Debug("Skipping unreadable event", "index", i, "error", err)
			continue
		}
		events = append(events, evt)
	}
	return events
}

// loadLines accepts event log records ({name, timestamp, sessionId,
// properties}) as well as flattened events, one per line.
func loadLines(data []byte) ([]analytics.Event, error) {
	var events []analytics.Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var probe struct {
			Properties json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(text, &probe); err != nil {
			return nil, splitErrors.Wrap(splitErrors.InvalidInput(err.Error()), fmt.Sprintf("parse line %d", line))
		}

		if len(probe.Properties) > 0 && probe.Properties[0] == '{' {
			var rec analytics.Record
			if err := json.Unmarshal(text, &rec); err != nil || rec.Name == "" {
				slog.Debug("Skipping unreadable record", "line", line, "error", err)
				continue
			}
			events = append(events, rec.Event())
			continue
		}

		var evt analytics.Event
		if err := json.Unmarshal(text, &evt); err != nil {
			slog.Debug("Skipping unreadable event", "line", line, "error", err)
			continue
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}
