package intent

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStepType is returned for a step whose type is not a known variant.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrInvalidIntent is returned for any other schema violation.
	ErrInvalidIntent = errors.New("invalid intent")
)

// ValidationError locates a schema violation in an intent document.
// Index is the step position, or -1 for the policy.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	where := "policy"
	if e.Index >= 0 {
		where = fmt.Sprintf("steps[%d]", e.Index)
	}
	if e.Field != "" {
		where += "." + e.Field
	}
	return fmt.Sprintf("%s: %s", where, e.Reason)
}

// Unwrap returns the sentinel the error classifies as.
func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidIntent
	}
	return e.Err
}

// Operator is a comparison operator of a threshold step.
type Operator string

// Supported operators.
const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
)

// Valid reports whether the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// SQL returns the operator as emitted in SQL.
func (o Operator) SQL() string {
	if o == OpNotEqual {
		return "<>"
	}
	return string(o)
}

func fieldError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Index: -1, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (b *StepBase) validateWindow() error {
	if b.Window == "" || b.Window == WindowNone {
		return nil
	}
	if _, ok := LookupWindow(b.Window); !ok {
		return fieldError("window", "unknown window template %q", b.Window)
	}
	return nil
}

func (s *AgeRange) validate() error {
	if s.Min < 0 || s.Max > 150 || s.Min > s.Max {
		return fieldError("min", "age range [%d, %d] is not valid", s.Min, s.Max)
	}
	return s.validateWindow()
}

func (s *DiagnosisPrefix) validate() error {
	return s.validateWindow()
}

func (s *ProcedurePrefix) validate() error {
	return s.validateWindow()
}

func (s *IcuLengthOfStay) validate() error {
	if s.MinDays < 0 {
		return fieldError("min_days", "must not be negative")
	}
	if s.MaxDays != nil && *s.MaxDays < s.MinDays {
		return fieldError("max_days", "must not be less than min_days")
	}
	return s.validateWindow()
}

func (s *DeathWithinDays) validate() error {
	if s.Days <= 0 {
		return fieldError("days", "must be positive")
	}
	return s.validateWindow()
}

func (s *MeasurementRequired) validate() error {
	return s.validateWindow()
}

func (s *VitalOrLabSignal) validate() error {
	if s.Signal == "" {
		return fieldError("signal", "is required")
	}
	if !s.Operator.Valid() {
		return fieldError("operator", "unsupported operator %q", s.Operator)
	}
	return s.validateWindow()
}

func (s *DerivedScore) validate() error {
	if s.Score == "" {
		return fieldError("score", "is required")
	}
	if s.Operator != "" && !s.Operator.Valid() {
		return fieldError("operator", "unsupported operator %q", s.Operator)
	}
	if (s.Operator == "") != (s.Value == nil) {
		return fieldError("value", "operator and value must be given together")
	}
	return s.validateWindow()
}
