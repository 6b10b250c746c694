package sqlscan

import (
	"strings"
)

// Kind classifies a token.
type Kind int

const (
	// KindWhitespace is spaces, tabs and newlines.
	KindWhitespace Kind = iota
	// KindComment is a line or block comment.
	KindComment
	// KindString is a single-quoted string literal.
	KindString
	// KindQuotedIdent is a double-quoted or backtick-quoted identifier.
	KindQuotedIdent
	// KindNumber is a numeric literal.
	KindNumber
	// KindIdent is a bare identifier or keyword.
	KindIdent
	// KindOperator is an arithmetic or comparison operator.
	KindOperator
	// KindPunct is parentheses, commas, dots and semicolons.
	KindPunct
	// KindOther is anything the lexer did not recognise.
	KindOther
)

// Token is a single lexical token of a SQL string.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
	Depth  int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

// Significant reports whether the token carries meaning (not whitespace or a comment).
func (t Token) Significant() bool {
	return t.Kind != KindWhitespace && t.Kind != KindComment
}

// Is reports whether the token is the bare keyword or identifier word,
// compared case-insensitively.
func (t Token) Is(word string) bool {
	return t.Kind == KindIdent && strings.EqualFold(t.Text, word)
}

// IsPunct reports whether the token is the punctuation p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == KindPunct && t.Text == p
}

// IsName reports whether the token can name a table, column or alias.
func (t Token) IsName() bool {
	return t.Kind == KindIdent || t.Kind == KindQuotedIdent
}

// Name returns the lower-cased identifier the token refers to, with quotes removed.
func (t Token) Name() string {
	switch t.Kind {
	case KindIdent:
		return strings.ToLower(t.Text)
	case KindQuotedIdent:
		if len(t.Text) >= 2 {
			inner := t.Text[1 : len(t.Text)-1]
			return strings.ToLower(strings.ReplaceAll(inner, `""`, `"`))
		}
	}
	return ""
}

// StringValue returns the contents of a string literal with quotes removed.
func (t Token) StringValue() string {
	if t.Kind != KindString {
		return ""
	}
	text := t.Text
	if i := strings.IndexByte(text, '\''); i > 0 {
		text = text[i:]
	}
	if len(text) < 2 {
		return ""
	}
	return strings.ReplaceAll(text[1:len(text)-1], "''", "'")
}

// Tokens is a token stream.
type Tokens []Token

// String reassembles the original text.
func (ts Tokens) String() string {
	var b strings.Builder
	for _, t := range ts {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Next returns the index of the next significant token after i, or -1.
func (ts Tokens) Next(i int) int {
	for j := i + 1; j < len(ts); j++ {
		if ts[j].Significant() {
			return j
		}
	}
	return -1
}

// Prev returns the index of the previous significant token before i, or -1.
func (ts Tokens) Prev(i int) int {
	for j := i - 1; j >= 0; j-- {
		if ts[j].Significant() {
			return j
		}
	}
	return -1
}

// First returns the index of the first significant token at or after i, or -1.
func (ts Tokens) First(i int) int {
	for j := i; j < len(ts); j++ {
		if ts[j].Significant() {
			return j
		}
	}
	return -1
}

// Match returns the closing parenthesis index for the opening parenthesis at i, or -1.
func (ts Tokens) Match(i int) int {
	if i < 0 || i >= len(ts) || !ts[i].IsPunct("(") {
		return -1
	}
	depth := ts[i].Depth
	for j := i + 1; j < len(ts); j++ {
		if ts[j].IsPunct(")") && ts[j].Depth == depth {
			return j
		}
	}
	return -1
}

// MatchOpen returns the opening parenthesis index for the closing parenthesis at i, or -1.
func (ts Tokens) MatchOpen(i int) int {
	if i < 0 || i >= len(ts) || !ts[i].IsPunct(")") {
		return -1
	}
	depth := ts[i].Depth
	for j := i - 1; j >= 0; j-- {
		if ts[j].IsPunct("(") && ts[j].Depth == depth {
			return j
		}
	}
	return -1
}

// IsSequence reports whether the significant tokens starting at i spell the
// given keywords, and returns the index of the last one.
func (ts Tokens) IsSequence(i int, words ...string) (int, bool) {
	j := i
	for n, w := range words {
		if n > 0 {
			j = ts.Next(j)
		}
		if j < 0 || !ts[j].Is(w) {
			return -1, false
		}
	}
	return j, true
}

// Slice returns the source text between tokens [from, to).
func (ts Tokens) Slice(from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(ts) {
		to = len(ts)
	}
	if from >= to {
		return ""
	}
	return ts[from:to].String()
}

// Compact returns the significant tokens in [from, to) joined by single spaces,
// lower-cased outside literals. It is used to compare expressions textually.
func (ts Tokens) Compact(from, to int) string {
	var parts []string
	for j := from; j < to && j < len(ts); j++ {
		t := ts[j]
		if !t.Significant() {
			continue
		}
		switch t.Kind {
		case KindIdent:
			parts = append(parts, strings.ToLower(t.Text))
		default:
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ContainsWord reports whether any identifier token in ts equals word.
func (ts Tokens) ContainsWord(word string) bool {
	for _, t := range ts {
		if t.Is(word) {
			return true
		}
	}
	return false
}

// Keywords that can never be an alias.
var reserved = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "order": true,
	"having": true, "limit": true, "fetch": true, "offset": true, "union": true,
	"intersect": true, "except": true, "minus": true, "join": true, "inner": true,
	"left": true, "right": true, "full": true, "outer": true, "cross": true,
	"natural": true, "on": true, "using": true, "as": true, "and": true, "or": true,
	"not": true, "window": true, "for": true, "connect": true, "start": true,
	"qualify": true, "lateral": true, "when": true, "then": true, "else": true,
	"end": true, "case": true, "with": true, "by": true, "is": true, "in": true,
	"between": true, "like": true, "exists": true, "null": true, "distinct": true,
	"all": true, "top": true, "over": true, "partition": true, "asc": true, "desc": true,
	"nulls": true, "first": true, "last": true, "rows": true, "only": true,
	"true": true, "false": true, "interval": true, "apply": true,
}

// IsReserved reports whether word is a keyword that cannot be used as an alias.
func IsReserved(word string) bool {
	return reserved[strings.ToLower(word)]
}
