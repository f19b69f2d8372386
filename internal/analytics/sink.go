package analytics

import (
	"errors"
	"fmt"
)

// Sink receives every tracked event, e.g. a tag manager or metrics exporter.
type Sink interface {
	Send(name string, props map[string]any) error
}

// ErrorReporter receives errors passed to TrackError.
type ErrorReporter interface {
	CaptureException(err error, extra map[string]any) error
}

type NopSink struct{}

func (NopSink) Send(string, map[string]any) error { return nil }

type NopReporter struct{}

func (NopReporter) CaptureException(error, map[string]any) error { return nil }

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(name string, props map[string]any) error

func (f SinkFunc) Send(name string, props map[string]any) error {
	return f(name, props)
}

// MultiSink forwards to every sink and joins their errors. A failing or
// panicking sink does not stop the others.
type MultiSink []Sink

func (m MultiSink) Send(name string, props map[string]any) error {
	var errs []error
	for _, s := range m {
		if err := safeSend(s, name, props); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeSend(s Sink, name string, props map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Send(name, props)
}

func safeCapture(r ErrorReporter, cause error, extra map[string]any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("error reporter panicked: %v", p)
		}
	}()
	return r.CaptureException(cause, extra)
}
