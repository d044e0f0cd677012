package model

import (
	"fmt"
	"strings"
)

// InputValidationError reports a malformed dataset, rule set or analysis input.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// MissingAttributeError reports a declared attribute column that no record carries.
type MissingAttributeError struct {
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("missing attribute %q", e.Attribute)
}

// InsufficientDataError reports a sample below a method's minimum size.
type InsufficientDataError struct {
	Method string
	N      int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: n=%d, requires at least %d", e.Method, e.N, e.Min)
}

// NumericInstabilityError reports a singular design matrix or a degenerate
// decomposition that would otherwise yield unsupported numbers.
type NumericInstabilityError struct {
	Method string
	Reason string
}

func (e *NumericInstabilityError) Error() string {
	return fmt.Sprintf("%s: numeric instability: %s", e.Method, e.Reason)
}

// TimeoutError reports a computation abandoned because its deadline expired.
type TimeoutError struct {
	Method string
	Cause  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline exceeded", e.Method)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// ZeroVarianceWarning is a non-fatal condition: an attribute had zero weighted
// variance and was zero-filled during standardization. It is returned next to
// results, never as the error.
type ZeroVarianceWarning struct {
	Attribute string
}

func (w ZeroVarianceWarning) String() string {
	if w.Attribute == "" {
		return "zero variance: values zero-filled"
	}
	return fmt.Sprintf("zero variance in %q: values zero-filled", w.Attribute)
}

// FormatWarnings joins warnings into a single line for logs.
func FormatWarnings(ws []ZeroVarianceWarning) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.String()
	}
	return strings.Join(parts, "; ")
}
