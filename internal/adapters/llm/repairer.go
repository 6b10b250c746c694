// Package llm adapts language-model backends to the orchestrator's repair
// collaborator contract. Everything a model returns is untrusted: it is
// reduced to a single statement here and re-checked by the orchestrator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

// ErrNoSQL is returned when a model response contains no SELECT or WITH statement.
var ErrNoSQL = errors.New("llm: response contains no query")

// Provider names accepted by NewRepairer.
const (
	ProviderNone   = "none"
	ProviderStatic = "static"
	ProviderGenAI  = "genai"
)

// Config configures a repairer.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// NewRepairer returns the repairer for cfg. The none provider yields a nil
// repairer, which disables collaborator repairs.
func NewRepairer(ctx context.Context, cfg Config, cat *catalog.Catalog, d dialect.Dialect) (orchestrator.Repairer, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderStatic:
		return Static{}, nil
	case ProviderGenAI:
		return NewGenAIRepairer(ctx, cfg, cat, d)
	}
	return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
}

// Static answers from a fixed table of failing SQL to replacement SQL and
// returns the input unchanged otherwise.
type Static map[string]string

// Repair implements orchestrator.Repairer.
func (s Static) Repair(_ context.Context, req orchestrator.RepairRequest) (string, error) {
	if out, ok := s[strings.TrimSpace(req.SQL)]; ok {
		return out, nil
	}
	return req.SQL, nil
}

const systemPrompt = `You repair SQL for a clinical research database.
Return exactly one read-only SELECT or WITH statement and nothing else.
Use only the tables and columns listed in the schema.
Keep the question's intent: do not add or drop filters it does not imply.`

// BuildPrompt renders the user prompt for req against target dialect d.
// Schema lines are included for every catalog table the failing SQL mentions.
func BuildPrompt(req orchestrator.RepairRequest, cat *catalog.Catalog, d dialect.Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", strings.TrimSpace(req.Question))
	fmt.Fprintf(&b, "SQL (%s):\n%s\n\n", d, strings.TrimSpace(req.SQL))
	switch {
	case req.Error != nil:
		fmt.Fprintf(&b, "Database error (%s):\n%s\n\n", req.Error.Kind, req.Error.Message)
	case req.Reason != "":
		fmt.Fprintf(&b, "Problem:\n%s\n\n", req.Reason)
	}
	if req.Broaden {
		b.WriteString("The query returned no rows. Broaden the filters that are too strict while preserving the question's intent.\n\n")
	}
	if tables := mentionedTables(req.SQL, cat); len(tables) > 0 {
		b.WriteString("Schema:\n")
		for _, t := range tables {
			fmt.Fprintf(&b, "- %s(%s)\n", t, strings.Join(cat.Columns(t), ", "))
		}
	}
	return b.String()
}

func mentionedTables(sql string, cat *catalog.Catalog) []string {
	if cat == nil {
		return nil
	}
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, t := range ts {
		if t.IsName() {
			name := t.Name()
			if to, ok := cat.RenameTable(name); ok {
				name = to
			}
			if cat.HasTable(name) {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

var (
	fenceRe     = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	lineStartRe = regexp.MustCompile(`(?im)^[ \t]*(select|with)\b`)
)

// ExtractSQL pulls the statement out of a model response. A fenced block
// wins over the surrounding prose. Among the statements found, ones outside
// any parenthesis come first, then ones opening a line, then earlier ones;
// the first the statement parser accepts is returned, else the first found.
// WITH only counts when it opens a CTE. The statement ends at its first
// top-level semicolon.
func ExtractSQL(text string) (string, error) {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	type candidate struct {
		offset, depth int
		lineStart     bool
		sql           string
	}
	byOffset := map[int]*candidate{}
	add := func(offset, depth int, sql string) {
		if sql == "" || byOffset[offset] != nil {
			return
		}
		byOffset[offset] = &candidate{offset: offset, depth: depth, lineStart: opensLine(text, offset), sql: sql}
	}

	if ts, err := sqlscan.Tokenize(text); err == nil {
		for i := range ts {
			if statementStart(ts, i) {
				add(ts[i].Offset, ts[i].Depth, statementFrom(text, ts, i))
			}
		}
	}
	// Apostrophes in prose can swallow a statement into a string literal,
	// so statements opening a line are also tokenized on their own.
	for _, loc := range lineStartRe.FindAllStringSubmatchIndex(text, -1) {
		ts, err := sqlscan.Tokenize(text[loc[2]:])
		if err != nil || len(ts) == 0 || !statementStart(ts, 0) {
			continue
		}
		add(loc[2], 0, statementFrom(text[loc[2]:], ts, 0))
	}
	if len(byOffset) == 0 {
		return "", ErrNoSQL
	}

	cands := make([]*candidate, 0, len(byOffset))
	for _, c := range byOffset {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		if a.lineStart != b.lineStart {
			return a.lineStart
		}
		return a.offset < b.offset
	})
	for _, c := range cands {
		if _, err := sqlscan.Parse(c.sql); err == nil {
			return c.sql, nil
		}
	}
	return cands[0].sql, nil
}

// opensLine reports whether only blanks precede offset on its line.
func opensLine(text string, offset int) bool {
	for i := offset - 1; i >= 0; i-- {
		switch text[i] {
		case '\n':
			return true
		case ' ', '\t', '\r':
			continue
		}
		return false
	}
	return true
}

// statementStart reports whether token i opens a query: SELECT, or WITH
// followed by RECURSIVE or by "name [(columns)] AS (".
func statementStart(ts sqlscan.Tokens, i int) bool {
	switch {
	case ts[i].Is("select"):
		return true
	case !ts[i].Is("with"):
		return false
	}
	n := ts.Next(i)
	if n < 0 {
		return false
	}
	if ts[n].Is("recursive") {
		return true
	}
	if !ts[n].IsName() {
		return false
	}
	n = ts.Next(n)
	if n >= 0 && ts[n].IsPunct("(") {
		closeAt := ts.Match(n)
		if closeAt < 0 {
			return false
		}
		n = ts.Next(closeAt)
	}
	if n < 0 || !ts[n].Is("as") {
		return false
	}
	n = ts.Next(n)
	return n >= 0 && ts[n].IsPunct("(")
}

// statementFrom returns the text from token start up to the first semicolon
// at the same nesting depth.
func statementFrom(text string, ts sqlscan.Tokens, start int) string {
	end := len(text)
	for i := start; i < len(ts); i++ {
		if ts[i].IsPunct(";") && ts[i].Depth == ts[start].Depth {
			end = ts[i].Offset
			break
		}
	}
	return strings.TrimSpace(text[ts[start].Offset:end])
}
