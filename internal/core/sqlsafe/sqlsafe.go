// Package sqlsafe enforces the read-only boundary: every statement that
// reaches a database must be a single SELECT or WITH query with no write
// keyword anywhere outside string literals and comments.
package sqlsafe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

var (
	// ErrUnsafeSQL is returned for any statement that is not read-only.
	ErrUnsafeSQL = errors.New("unsafe sql")

	// ErrEmptySQL is returned for blank input.
	ErrEmptySQL = errors.New("empty sql")
)

// UnsafeError describes why a statement was rejected.
type UnsafeError struct {
	Reason  string
	Keyword string
}

// Error implements the error interface.
func (e *UnsafeError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("unsafe sql: %s (%s)", e.Reason, strings.ToUpper(e.Keyword))
	}
	return "unsafe sql: " + e.Reason
}

// Is reports whether target is ErrUnsafeSQL.
func (e *UnsafeError) Is(target error) bool {
	return target == ErrUnsafeSQL
}

var writeKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true, "upsert": true,
	"drop": true, "create": true, "alter": true, "truncate": true, "rename": true,
	"grant": true, "revoke": true, "replace": true, "commit": true, "rollback": true,
	"savepoint": true, "lock": true, "call": true, "exec": true, "execute": true,
	"copy": true, "attach": true, "detach": true, "vacuum": true, "pragma": true,
	"into": true, "reindex": true,
}

// Check returns nil when sql is a single read-only query.
func Check(sql string) error {
	tokens, err := sqlscan.Tokenize(sql)
	if err != nil {
		return &UnsafeError{Reason: err.Error()}
	}
	first := tokens.First(0)
	for first >= 0 && tokens[first].IsPunct("(") {
		first = tokens.Next(first)
	}
	if first < 0 {
		return ErrEmptySQL
	}
	if !tokens[first].Is("select") && !tokens[first].Is("with") {
		return &UnsafeError{Reason: "statement must start with SELECT or WITH", Keyword: tokens[first].Text}
	}

	for i, t := range tokens {
		if t.IsPunct(";") {
			if next := tokens.Next(i); next >= 0 {
				return &UnsafeError{Reason: "multiple statements"}
			}
			continue
		}
		if t.Kind != sqlscan.KindIdent {
			continue
		}
		word := strings.ToLower(t.Text)
		if !writeKeywords[word] {
			continue
		}
		if isFunctionCall(tokens, i) || isQualified(tokens, i) {
			continue
		}
		if p := tokens.Prev(i); word == "update" && p >= 0 && tokens[p].Is("for") {
			return &UnsafeError{Reason: "locking clause", Keyword: "for update"}
		}
		return &UnsafeError{Reason: "write keyword", Keyword: word}
	}
	return nil
}

// IsReadOnly reports whether Check accepts sql.
func IsReadOnly(sql string) bool {
	return Check(sql) == nil
}

// isFunctionCall reports whether the identifier at i is the REPLACE string
// function rather than a REPLACE statement.
func isFunctionCall(ts sqlscan.Tokens, i int) bool {
	if !ts[i].Is("replace") {
		return false
	}
	next := ts.Next(i)
	return next >= 0 && ts[next].IsPunct("(")
}

// isQualified reports whether the identifier follows a dot, as in t.merge.
func isQualified(ts sqlscan.Tokens, i int) bool {
	p := ts.Prev(i)
	return p >= 0 && ts[p].IsPunct(".")
}
