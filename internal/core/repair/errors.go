// Package repair classifies database errors and applies deterministic
// template repairs for the narrow set of error kinds that have one.
package repair

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the structured class of a database error.
type Kind string

const (
	KindUnknownColumn     Kind = "unknown_column"
	KindUnknownTable      Kind = "unknown_table"
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindAmbiguousColumn   Kind = "ambiguous_column"
	KindGroupBy           Kind = "group_by"
	KindSyntax            Kind = "syntax"
	KindDivideByZero      Kind = "divide_by_zero"
	KindDatatypeMismatch  Kind = "datatype_mismatch"
	KindTimeout           Kind = "timeout"
	KindUnknown           Kind = "unknown"
)

// ErrZeroRows marks an execution that succeeded with an implausibly empty result.
var ErrZeroRows = errors.New("query returned no rows")

// DBError is a classified database error.
type DBError struct {
	Kind Kind
	// Code is the vendor code: ORA-nnnnn, a SQLSTATE or a MySQL error number.
	Code    string
	Message string
	// Identifier is the offending name, lower-cased, when the message carries one.
	// Qualified names keep their qualifier ("i.los_icu").
	Identifier string
	Cause      error
}

// Error implements the error interface.
func (e *DBError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the driver error.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Column returns the unqualified part of Identifier.
func (e *DBError) Column() string {
	if i := strings.LastIndexByte(e.Identifier, '.'); i >= 0 {
		return e.Identifier[i+1:]
	}
	return e.Identifier
}

// Qualifier returns the qualifier of Identifier, or "".
func (e *DBError) Qualifier() string {
	if i := strings.LastIndexByte(e.Identifier, '.'); i >= 0 {
		return e.Identifier[:i]
	}
	return ""
}

// Retryable reports whether a repair round could plausibly fix the error.
func (e *DBError) Retryable() bool {
	return e.Kind != KindUnknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	c := Classify(err)
	return c != nil && c.Kind == kind
}
