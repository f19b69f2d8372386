package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the experiment and tracking core. Core operations log
// these and return a fallback value instead of propagating them to callers.
var (
	// ErrUnknownExperiment - variant or conversion requested for an undefined experiment
	ErrUnknownExperiment = errors.New("unknown experiment")

	// ErrMissingMark - measure requested from a start mark that was never recorded
	ErrMissingMark = errors.New("missing mark")

	// ErrWeightSumMismatch - variant weights do not sum to 100 (definition is still accepted)
	ErrWeightSumMismatch = errors.New("weight sum mismatch")

	// ErrRenderFault - rendering panicked or failed and was replaced with the fallback page
	ErrRenderFault = errors.New("render fault")

	// ErrStorageUnavailable - persisted key-value store could not be read or written
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidInput - malformed request payload or argument
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")
)

// Category returns the taxonomy name for err, used as a structured log field.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnknownExperiment):
		return "UnknownExperiment"
	case errors.Is(err, ErrMissingMark):
		return "MissingMark"
	case errors.Is(err, ErrWeightSumMismatch):
		return "WeightSumMismatch"
	case errors.Is(err, ErrRenderFault):
		return "RenderFault"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

func UnknownExperiment(experimentID string) error {
	return fmt.Errorf("experiment %q: %w", experimentID, ErrUnknownExperiment)
}

func MissingMark(name string) error {
	return fmt.Errorf("mark %q: %w", name, ErrMissingMark)
}

func WeightSumMismatch(experimentID string, total float64) error {
	return fmt.Errorf("experiment %q weights sum to %.2f, expected 100: %w", experimentID, total, ErrWeightSumMismatch)
}

// StorageUnavailable keeps the underlying cause reachable through errors.Is/As.
func StorageUnavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, cause)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}
