package ollama

import (
	"errors"
	"fmt"
)

// backendUnavailableError signals that the Ollama endpoint could not be reached.
type backendUnavailableError struct {
	host  string
	cause error
}

func (e backendUnavailableError) Error() string {
	return fmt.Sprintf("ollama unavailable at %s: %v", e.host, e.cause)
}

func (e backendUnavailableError) Unwrap() error { return e.cause }

// IsBackendUnavailable reports whether err indicates an unreachable backend.
func IsBackendUnavailable(err error) bool {
	var e backendUnavailableError
	return errors.As(err, &e)
}

// invalidModelError is returned by chat calls naming a model the backend does not have.
type invalidModelError struct {
	model string
	msg   string
}

func (e invalidModelError) Error() string {
	if e.msg != "" {
		return "invalid model " + e.model + ": " + e.msg
	}
	return "invalid model: " + e.model
}

// IsInvalidModel reports whether err indicates an unknown model on inference.
func IsInvalidModel(err error) bool {
	var e invalidModelError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ model string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.model }

// ErrModelNotFound returns an error for a delete of a model the backend does not have.
func ErrModelNotFound(model string) error { return modelNotFoundError{model: model} }

// IsModelNotFound reports whether err indicates a missing model on delete.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// streamInterruptedError is surfaced by a FragmentStream whose producer failed
// before signalling completion.
type streamInterruptedError struct {
	msg   string
	cause error
}

func (e streamInterruptedError) Error() string {
	if e.cause != nil {
		return "stream interrupted: " + e.msg + ": " + e.cause.Error()
	}
	return "stream interrupted: " + e.msg
}

func (e streamInterruptedError) Unwrap() error { return e.cause }

// IsStreamInterrupted reports whether err indicates a broken inference stream.
func IsStreamInterrupted(err error) bool {
	var e streamInterruptedError
	return errors.As(err, &e)
}

// responseError carries a non-success HTTP status that has no more specific mapping.
type responseError struct {
	op     string
	status int
	msg    string
}

func (e responseError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("ollama %s: http %d: %s", e.op, e.status, e.msg)
	}
	return fmt.Sprintf("ollama %s: http %d", e.op, e.status)
}
