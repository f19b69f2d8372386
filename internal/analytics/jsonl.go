package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLSink appends each forwarded event as one JSON line. When the file
// grows past maxBytes it is renamed to <path>.<timestamp>.bak and a new file
// is started. Lines carry sessionID so offline analysis can count unique
// sessions per variant.
type JSONLSink struct {
	path      string
	maxBytes  int64
	sessionID string
	now      func() time.Time
	mu       sync.Mutex
}

func NewJSONLSink(path string, maxBytes int64, sessionID string) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log dir: %w", err)
	}
	return &JSONLSink{path: path, maxBytes: maxBytes, sessionID: sessionID, now: time.Now}, nil
}

// Record is one line of the event log.
type Record struct {
	Name       string         `json:"name"`
	Timestamp  int64          `json:"timestamp"`
	SessionID  string         `json:"sessionId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Event converts the record to the flattened event shape used by exports.
func (r Record) Event() Event {
	return Event{
		Name:       r.Name,
		Timestamp:  r.Timestamp,
		SessionID:  r.SessionID,
		Properties: copyProps(r.Properties),
	}
}

func (j *JSONLSink) Send(name string, props map[string]any) error {
	return j.write(name, props, j.sessionID)
}

// ForSession returns a sink writing to the same file under another session id.
func (j *JSONLSink) ForSession(sessionID string) Sink {
	return SinkFunc(func(name string, props map[string]any) error {
		return j.write(name, props, sessionID)
	})
}

func (j *JSONLSink) write(name string, props map[string]any, sessionID string) error {
	line, err := json.Marshal(Record{
		Name:       name,
		Timestamp:  j.now().UnixMilli(),
		SessionID:  sessionID,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.checkAndRotate(); err != nil {
		slog.Warn("Failed to rotate event log", "path", j.path, "error", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (j *JSONLSink) checkAndRotate() error {
	if j.maxBytes <= 0 {
		return nil
	}

	info, err := os.Stat(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < j.maxBytes {
		return nil
	}

	backupPath := fmt.Sprintf("%s.%s.bak", j.path, j.now().Format("20060102150405.000"))
	slog.Info("Rotating event log", "path", j.path, "size", info.Size(), "backup", backupPath)
	if err := os.Rename(j.path, backupPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
