package sanitize

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches any *ValidationError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// Rule identifiers reported in ValidationError.Rule.
const (
	RuleRequired   = "required"
	RuleTooLong    = "too_long"
	RuleSuspicious = "suspicious_content"
	RuleFormat     = "invalid_format"
	RuleRange      = "out_of_range"
	RuleTooMany    = "too_many"
	RuleEnum       = "not_allowed"
	RuleType       = "invalid_type"
)

// ValidationError names the field and rule a value violated.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidInput) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TypeMismatch reports a request value whose JSON kind cannot hold field.
func TypeMismatch(field, format string, args ...any) *ValidationError {
	return invalid(field, RuleType, format, args...)
}

func invalid(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}
