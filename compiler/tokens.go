package compiler

import (
	"strconv"

	"github.com/chazu/mbasic/status"
)

// TokenStream is a cursor over the tokens of one source line. It supports
// one-token pushback, arbitrary mark/reset for speculative parses, and
// end-of-statement detection honoring the compound statement separator.
type TokenStream struct {
	source    string
	toks      []Token
	pos       int
	separator string
	line      int
}

// NewTokenStream tokenizes src. A lexical error is returned as a located
// syntax error.
func NewTokenStream(src string, line int, separator string) (*TokenStream, error) {
	toks := Tokenize(src)
	last := toks[len(toks)-1]
	if last.Type == TokenError {
		base := status.ErrSyntax
		if last.Literal == "unterminated string" {
			base = status.ErrUnterminated
		}
		return nil, status.New(base, "%s", last.Literal).At(line, last.Pos.Column).WithSource(src)
	}
	if separator == "" {
		separator = ":"
	}
	return &TokenStream{source: src, toks: toks, separator: separator, line: line}, nil
}

// Source returns the text the stream was built from.
func (ts *TokenStream) Source() string { return ts.source }

// Line returns the program line number of the stream.
func (ts *TokenStream) Line() int { return ts.line }

// Peek returns the next token without consuming it.
func (ts *TokenStream) Peek() Token {
	if ts.pos >= len(ts.toks) {
		return ts.toks[len(ts.toks)-1]
	}
	return ts.toks[ts.pos]
}

// Next consumes and returns the next token. At EOF it keeps returning EOF,
// and each call still counts for Restore.
func (ts *TokenStream) Next() Token {
	tok := ts.Peek()
	ts.pos++
	return tok
}

// Restore pushes back the most recently consumed token.
func (ts *TokenStream) Restore() {
	if ts.pos > 0 {
		ts.pos--
	}
}

// RestoreToken pushes a synthesized token in front of the cursor.
func (ts *TokenStream) RestoreToken(text string, typ TokenType) {
	pos := ts.Peek().Pos
	tok := Token{Type: typ, Literal: text, Pos: pos}
	if ts.pos > len(ts.toks)-1 {
		ts.pos = len(ts.toks) - 1
	}
	ts.toks = append(ts.toks, Token{})
	copy(ts.toks[ts.pos+1:], ts.toks[ts.pos:])
	ts.toks[ts.pos] = tok
}

// Mark returns a checkpoint for Reset.
func (ts *TokenStream) Mark() int { return ts.pos }

// Reset rewinds the cursor to a checkpoint returned by Mark.
func (ts *TokenStream) Reset(mark int) { ts.pos = mark }

// Test reports whether the next token is an identifier or special with the
// given spelling.
func (ts *TokenStream) Test(spelling string) bool {
	return ts.Peek().Is(spelling)
}

// Assume consumes the next token if Test(spelling) holds.
func (ts *TokenStream) Assume(spelling string) bool {
	if ts.Test(spelling) {
		ts.pos++
		return true
	}
	return false
}

// TestType reports whether the next token has the given type.
func (ts *TokenStream) TestType(typ TokenType) bool {
	return ts.Peek().Type == typ
}

// AssumeType consumes and returns the next token if it has the given type.
func (ts *TokenStream) AssumeType(typ TokenType) (Token, bool) {
	if ts.TestType(typ) {
		return ts.Next(), true
	}
	return Token{}, false
}

// AssumeIdentifier consumes an identifier that is not a reserved word.
func (ts *TokenStream) AssumeIdentifier() (string, bool) {
	tok := ts.Peek()
	if tok.Type != TokenIdentifier || IsReserved(tok.Literal) {
		return "", false
	}
	ts.pos++
	return tok.Literal, true
}

// AssumeInteger consumes an integer literal.
func (ts *TokenStream) AssumeInteger() (int64, bool) {
	tok := ts.Peek()
	if tok.Type != TokenInteger {
		return 0, false
	}
	n, err := strconv.ParseInt(tok.Literal, 10, 64)
	if err != nil {
		return 0, false
	}
	ts.pos++
	return n, true
}

// EndOfStatement reports whether the cursor is at EOF or at the compound
// statement separator.
func (ts *TokenStream) EndOfStatement() bool {
	tok := ts.Peek()
	return tok.Type == TokenEOF || (tok.Type == TokenSpecial && tok.Literal == ts.separator)
}

// AtEOF reports whether all tokens are consumed.
func (ts *TokenStream) AtEOF() bool {
	return ts.Peek().Type == TokenEOF
}

// AssumeSeparator consumes the compound statement separator.
func (ts *TokenStream) AssumeSeparator() bool {
	tok := ts.Peek()
	if tok.Type == TokenSpecial && tok.Literal == ts.separator {
		ts.pos++
		return true
	}
	return false
}

// Error returns a syntax error located at the next token.
func (ts *TokenStream) Error(base *status.Error, format string, args ...any) *status.Error {
	return status.New(base, format, args...).At(ts.line, ts.Peek().Pos.Column).WithSource(ts.source)
}

// Spelling returns a printable rendition of the next token for messages.
func (ts *TokenStream) Spelling() string {
	tok := ts.Peek()
	if tok.Type == TokenEOF {
		return "end of statement"
	}
	return tok.Literal
}
