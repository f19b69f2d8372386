package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session identifies the lifetime of one Service.
type Session struct {
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
}

// SessionData is a snapshot of the session and its ordered events.
type SessionData struct {
	SessionID  string  `json:"sessionId"`
	Duration   int64   `json:"duration"`
	EventCount int     `json:"eventCount"`
	Events     []Event `json:"events"`
}

// Service is the append-only event log for one session. It is safe for
// concurrent use; events keep the order in which Track calls acquired the log.
type Service struct {
	session  Session
	now      func() time.Time
	sink     Sink
	reporter ErrorReporter

	mu     sync.RWMutex
	events []Event
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSink(sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

func WithSessionID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.session.SessionID = id
		}
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		now:      time.Now,
		sink:     NopSink{},
		reporter: NopReporter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session.SessionID == "" {
		s.session.SessionID = ulid.Make().String()
	}
	s.session.StartTime = s.now()
	return s
}

func (s *Service) Session() Session {
	return s.session
}

// Track appends an event and forwards it to the sink. Sink failures are
// logged and dropped.
func (s *Service) Track(name string, props map[string]any) Event {
	s.mu.Lock()
	now := s.now()
	evt := Event{
		Name:              name,
		Timestamp:         now.UnixMilli(),
		SessionID:         s.session.SessionID,
		SessionDurationMs: now.Sub(s.session.StartTime).Milliseconds(),
		Properties:        copyProps(props),
	}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	if err := safeSend(s.sink, name, copyProps(props)); err != nil {
		slog.Debug("Analytics sink failed", "event", name, "error", err)
	}

	slog.Debug("Event tracked", "event", name, "session", s.session.SessionID)
	return evt
}

func (s *Service) TrackPerformance(metric string, value float64, unit string) Event {
	if unit == "" {
		unit = "ms"
	}
	return s.Track(EventPerformanceMetric, map[string]any{
		"metric": metric,
		"value":  value,
		"unit":   unit,
	})
}

func (s *Service) TrackInteraction(interactionType string, details map[string]any) Event {
	props := copyProps(details)
	props["type"] = interactionType
	return s.Track(EventUserInteraction, props)
}

type stackTracer interface {
	Stack() string
}

// TrackError records an error event and hands the error to the reporter.
// Errors carrying their own stack (render faults) keep it; others get the
// caller's stack.
func (s *Service) TrackError(err error, context map[string]any) Event {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}

	var st stackTracer
	stack := ""
	if errors.As(err, &st) {
		stack = st.Stack()
	} else {
		stack = string(debug.Stack())
	}

	evt := s.Track(EventError, map[string]any{
		"message": err.Error(),
		"stack":   stack,
		"context": copyProps(context),
	})

	if rerr := safeCapture(s.reporter, err, copyProps(context)); rerr != nil {
		slog.Debug("Error reporter failed", "error", rerr)
	}
	return evt
}

// SessionData returns the session summary. The events slice is a copy;
// events themselves are never mutated after creation.
func (s *Service) SessionData() SessionData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)

	return SessionData{
		SessionID:  s.session.SessionID,
		Duration:   s.now().Sub(s.session.StartTime).Milliseconds(),
		EventCount: len(events),
		Events:     events,
	}
}

// Export writes the session data as indented JSON.
func (s *Service) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.SessionData())
}
