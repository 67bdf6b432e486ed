package trips

import (
	"errors"
	"strings"
)

var (
	// ErrNotConfigured means the service cannot plan trips until an operator
	// fixes configuration, e.g. a missing LLM credential.
	ErrNotConfigured = errors.New("trip planner not configured")
	// ErrBadRequest wraps malformed request bodies.
	ErrBadRequest = errors.New("bad request")
	// ErrJobTimeout is recorded on jobs that exceed the job timeout.
	ErrJobTimeout = errors.New("trip planning timed out")
	// ErrUnusableResult is recorded when the pipeline output is not an itinerary.
	ErrUnusableResult = errors.New("pipeline returned no usable itinerary")
)

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if r := []rune(msg); len(r) > maxLen {
		msg = string(r[:maxLen])
	}
	return msg
}
