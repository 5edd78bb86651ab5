package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/mbasic/value"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for BASIC statements
// ---------------------------------------------------------------------------

// Lexer tokenizes BASIC source text.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	case strings.ContainsRune("+-*/%^()[]{},.;:=<>!&|'#?@", l.ch):
		return l.readSpecial(pos)

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
	}
}

// skipWhitespace skips blanks. Newlines are whitespace inside a statement.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readString reads a double-quoted string literal with backslash escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "
	start := l.pos
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' && l.peekChar() != 0 {
			l.readChar()
		}
		l.readChar()
	}
	if l.ch != '"' {
		return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
	}
	raw := l.input[start:l.pos]
	l.readChar() // consume closing "
	return Token{Type: TokenString, Literal: value.Unescape(raw), Pos: pos}
}

// readNumber reads an integer, double or decimal literal. A ".." following
// the digits is a range operator, not a fraction.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isDouble := false

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && l.peekChar() != '.' {
		isDouble = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '-' || next == '+' {
			isDouble = true
			l.readChar()
			if l.ch == '-' || l.ch == '+' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	text := l.input[start:l.pos]
	if (l.ch == 'd' || l.ch == 'D') && !isLetter(l.peekChar()) {
		l.readChar()
		return Token{Type: TokenDecimal, Literal: text, Pos: pos}
	}
	if isDouble {
		return Token{Type: TokenDouble, Literal: text, Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: text, Pos: pos}
}

// readIdentifier reads a name. A trailing '$' (string variable suffix) is
// part of the name.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '$' {
		l.readChar()
	}
	return Token{Type: TokenIdentifier, Literal: strings.ToUpper(l.input[start:l.pos]), Pos: pos}
}

// readSpecial reads an operator or punctuation token.
func (l *Lexer) readSpecial(pos Position) Token {
	for _, m := range multiSpecials {
		if strings.HasPrefix(l.input[l.pos:], m) {
			l.readChar()
			l.readChar()
			return Token{Type: TokenSpecial, Literal: m, Pos: pos}
		}
	}
	ch := l.ch
	l.readChar()
	return Token{Type: TokenSpecial, Literal: string(ch), Pos: pos}
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens in input up to and including EOF, or up to
// and including the first error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
