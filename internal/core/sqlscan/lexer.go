// Package sqlscan tokenizes SQL text and recovers the table/alias graph of
// SELECT statements. It is not a full SQL parser: it understands enough
// structure (CTEs, select lists, FROM items, clause boundaries) for the
// rewrite rules and the cohort-scoping composer to edit statements without
// touching string literals or comments.
package sqlscan

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// SQLLexer defines the token types for generic SQL text.
var SQLLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?:[^*]|\*+[^*/])*\*+/`},

	// Literals
	{Name: "String", Pattern: `[nNeE]?'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"|` + "`[^`]*`"},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][+-]?\d+)?|\.\d+`},

	// Identifiers and keywords
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_$#]*`},

	// Operators (multi-character first)
	{Name: "Operator", Pattern: `<=|>=|<>|!=|\|\||::|=>|[-+*/%=<>!~^&|]`},

	// Punctuation
	{Name: "Punct", Pattern: `[(),.;\[\]{}]`},

	// Whitespace
	{Name: "Whitespace", Pattern: `\s+`},

	// Anything else (bind markers, stray characters)
	{Name: "Other", Pattern: `.`},
})

var kindBySymbol = func() map[lexer.TokenType]Kind {
	symbols := SQLLexer.Symbols()
	return map[lexer.TokenType]Kind{
		symbols["Comment"]:     KindComment,
		symbols["String"]:      KindString,
		symbols["QuotedIdent"]: KindQuotedIdent,
		symbols["Number"]:      KindNumber,
		symbols["Ident"]:       KindIdent,
		symbols["Operator"]:    KindOperator,
		symbols["Punct"]:       KindPunct,
		symbols["Whitespace"]:  KindWhitespace,
		symbols["Other"]:       KindOther,
	}
}()

// Tokenize splits sql into tokens. Each token records its byte offset and the
// parenthesis depth it appears at (the opening and closing parenthesis of a
// group carry the depth outside the group).
func Tokenize(sql string) (Tokens, error) {
	lex, err := SQLLexer.LexString("", sql)
	if err != nil {
		return nil, fmt.Errorf("failed to lex sql: %w", err)
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, fmt.Errorf("failed to lex sql: %w", err)
	}

	tokens := make(Tokens, 0, len(raw))
	depth := 0
	for _, t := range raw {
		if t.EOF() {
			break
		}
		kind, ok := kindBySymbol[t.Type]
		if !ok {
			kind = KindOther
		}
		tok := Token{Kind: kind, Text: t.Value, Offset: t.Pos.Offset, Depth: depth}
		if kind == KindPunct {
			switch t.Value {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
				tok.Depth = depth
			}
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// MustTokenize is Tokenize for inputs that are known to lex; the lexer has a
// catch-all rule so it only fails on invalid UTF-8 handling bugs.
func MustTokenize(sql string) Tokens {
	tokens, err := Tokenize(sql)
	if err != nil {
		panic(err)
	}
	return tokens
}
