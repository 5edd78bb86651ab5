package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Token types for the BASIC lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenDouble     // 3.14, 1.5e10
	TokenDecimal    // 19.99d
	TokenString     // "hello\n"
	TokenIdentifier // FOO, X$, MY_VAR (always upper-cased)

	// Operators and punctuation; the spelling is in Literal
	TokenSpecial
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenDouble:     "DOUBLE",
	TokenDecimal:    "DECIMAL",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenSpecial:    "SPECIAL",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position represents a source location.
type Position struct {
	Offset int // byte offset in source
	Line   int // 1-based line number within the source text
	Column int // 1-based column
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // spelling; identifiers are upper-cased, strings unescaped
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Is reports whether the token is an identifier or special with the given
// spelling. Identifier comparison is case-insensitive.
func (t Token) Is(spelling string) bool {
	switch t.Type {
	case TokenIdentifier:
		return t.Literal == strings.ToUpper(spelling)
	case TokenSpecial:
		return t.Literal == spelling
	}
	return false
}

// reservedWords may not be used as variable names.
var reservedWords = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "MOD": true, "OF": true,
	"IF": true, "THEN": true, "ELSE": true, "FOR": true, "EACH": true,
	"TO": true, "STEP": true, "NEXT": true, "DO": true, "LOOP": true,
	"WHILE": true, "UNTIL": true, "GOTO": true, "GOSUB": true,
	"RETURN": true, "END": true, "STOP": true, "LET": true, "PRINT": true,
	"DATA": true, "READ": true, "SUB": true, "CALL": true, "DIM": true,
	"AS": true, "ON": true, "ERROR": true, "REM": true, "WHERE": true,
	"IN": true, "MIN": true, "MAX": true, "TRUE": true, "FALSE": true,
	"CONTINUE": true, "USING": true,
}

// IsReserved reports whether name (upper-case) is a reserved word.
func IsReserved(name string) bool {
	return reservedWords[name]
}

// multiSpecials are the two-character operators, longest match first.
var multiSpecials = []string{"<=", ">=", "<>", "!=", "==", "++", "--", "->", "..", "||", "&&"}
