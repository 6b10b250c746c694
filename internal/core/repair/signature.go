package repair

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// Normalize returns sql with comments and whitespace runs collapsed, trailing
// terminators removed and identifiers lower-cased. Literals are kept verbatim.
func Normalize(sql string) string {
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return strings.Join(strings.Fields(strings.ToLower(sql)), " ")
	}
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		switch {
		case !t.Significant():
		case t.Kind == sqlscan.KindIdent:
			parts = append(parts, strings.ToLower(t.Text))
		default:
			parts = append(parts, t.Text)
		}
	}
	for len(parts) > 0 && parts[len(parts)-1] == ";" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " ")
}

// Signature is the cache key of a SQL text: the SHA-256 of its normalized form.
func Signature(sql string) string {
	sum := sha256.Sum256([]byte(Normalize(sql)))
	return hex.EncodeToString(sum[:])
}

// ErrorSignature identifies the class of failure independently of the SQL.
func ErrorSignature(e *DBError) string {
	if e == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(string(e.Kind) + "\x00" + e.Code + "\x00" + e.Identifier))
	return hex.EncodeToString(sum[:16])
}
