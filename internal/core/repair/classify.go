package repair

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	oraCodeRe = regexp.MustCompile(`ORA-(\d{5})`)
	// Oracle quotes identifiers in upper case: "I"."LOS_ICU".
	oraIdentRe = regexp.MustCompile(`ORA-\d{5}:\s*((?:"[^"]+"\.)*"[^"]+")`)
	quotedRe   = regexp.MustCompile(`"([^"]+)"`)

	pgColumnRe   = regexp.MustCompile(`column "?([\w.]+?)"? does not exist`)
	pgRelationRe = regexp.MustCompile(`relation "([\w.]+)" does not exist`)
	pgAmbigRe    = regexp.MustCompile(`column reference "([\w.]+)" is ambiguous`)

	sqliteColumnRe = regexp.MustCompile(`no such column: ([\w.]+)`)
	sqliteTableRe  = regexp.MustCompile(`no such table: ([\w.]+)`)
	sqliteAmbigRe  = regexp.MustCompile(`ambiguous column name: ([\w.]+)`)

	mysqlColumnRe = regexp.MustCompile(`Unknown column '([\w.]+)'`)
	mysqlTableRe  = regexp.MustCompile(`Table '(?:[\w]+\.)?([\w]+)' doesn't exist`)
	mysqlAmbigRe  = regexp.MustCompile(`Column '([\w.]+)' in [\w ]+ is ambiguous`)
)

var oraKinds = map[string]Kind{
	"00904": KindInvalidIdentifier,
	"00942": KindUnknownTable,
	"00918": KindAmbiguousColumn,
	"00979": KindGroupBy,
	"00937": KindGroupBy,
	"00934": KindGroupBy,
	"00933": KindSyntax,
	"00936": KindSyntax,
	"00907": KindSyntax,
	"00923": KindSyntax,
	"00905": KindSyntax,
	"00921": KindSyntax,
	"01476": KindDivideByZero,
	"01722": KindDatatypeMismatch,
	"00932": KindDatatypeMismatch,
	"01861": KindDatatypeMismatch,
	"01013": KindTimeout,
}

var sqlStateKinds = map[string]Kind{
	"42703": KindUnknownColumn,
	"42P01": KindUnknownTable,
	"42702": KindAmbiguousColumn,
	"42803": KindGroupBy,
	"42601": KindSyntax,
	"22012": KindDivideByZero,
	"42804": KindDatatypeMismatch,
	"42883": KindDatatypeMismatch,
	"22P02": KindDatatypeMismatch,
	"22007": KindDatatypeMismatch,
	"57014": KindTimeout,
}

var mysqlKinds = map[uint16]Kind{
	1054: KindUnknownColumn,
	1146: KindUnknownTable,
	1052: KindAmbiguousColumn,
	1055: KindGroupBy,
	1140: KindGroupBy,
	1064: KindSyntax,
	1365: KindDivideByZero,
	1292: KindDatatypeMismatch,
	1366: KindDatatypeMismatch,
	3024: KindTimeout,
}

// Classify parses err into a structured DBError. It returns nil for a nil
// error and a KindUnknown error when nothing matches.
func Classify(err error) *DBError {
	if err == nil {
		return nil
	}
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DBError{Kind: KindTimeout, Message: err.Error(), Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromSQLState(pgErr.Code, pgErr.Message, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fromSQLState(string(pqErr.Code), pqErr.Message, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		out := fromMessage(myErr.Message, err)
		if k, ok := mysqlKinds[myErr.Number]; ok {
			out.Kind = k
		}
		out.Code = strconv.Itoa(int(myErr.Number))
		return out
	}
	return fromMessage(err.Error(), err)
}

func fromSQLState(code, msg string, cause error) *DBError {
	out := fromMessage(msg, cause)
	if k, ok := sqlStateKinds[code]; ok {
		out.Kind = k
	}
	out.Code = code
	return out
}

// fromMessage classifies by message text alone.
func fromMessage(msg string, cause error) *DBError {
	out := &DBError{Kind: KindUnknown, Message: strings.TrimSpace(msg), Cause: cause}

	if m := oraCodeRe.FindStringSubmatch(msg); m != nil {
		out.Code = "ORA-" + m[1]
		if k, ok := oraKinds[m[1]]; ok {
			out.Kind = k
		}
		if im := oraIdentRe.FindStringSubmatch(msg); im != nil {
			var parts []string
			for _, q := range quotedRe.FindAllStringSubmatch(im[1], -1) {
				parts = append(parts, strings.ToLower(q[1]))
			}
			out.Identifier = strings.Join(parts, ".")
		}
		return out
	}

	lower := strings.ToLower(msg)
	match := func(re *regexp.Regexp, kind Kind) bool {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			return false
		}
		out.Kind = kind
		out.Identifier = strings.ToLower(m[1])
		return true
	}
	switch {
	case match(pgAmbigRe, KindAmbiguousColumn), match(pgColumnRe, KindUnknownColumn),
		match(pgRelationRe, KindUnknownTable):
	case match(sqliteColumnRe, KindUnknownColumn), match(sqliteTableRe, KindUnknownTable),
		match(sqliteAmbigRe, KindAmbiguousColumn):
	case match(mysqlColumnRe, KindUnknownColumn), match(mysqlTableRe, KindUnknownTable),
		match(mysqlAmbigRe, KindAmbiguousColumn):
	case strings.Contains(lower, "group by") || strings.Contains(lower, "misuse of aggregate") ||
		strings.Contains(lower, "must appear in the group by"):
		out.Kind = KindGroupBy
	case strings.Contains(lower, "division by zero") || strings.Contains(lower, "divide by zero") ||
		strings.Contains(lower, "divisor is equal to zero"):
		out.Kind = KindDivideByZero
	case strings.Contains(lower, "syntax error") || strings.Contains(lower, "incomplete input"):
		out.Kind = KindSyntax
	case strings.Contains(lower, "invalid input syntax") || strings.Contains(lower, "datatype mismatch") ||
		strings.Contains(lower, "operator does not exist"):
		out.Kind = KindDatatypeMismatch
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "canceling statement") ||
		strings.Contains(lower, "interrupted"):
		out.Kind = KindTimeout
	}
	return out
}
