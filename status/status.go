// Package status defines the error values returned by the compiler, linker
// and optimizers. Every error carries a Kind, a short stable Code and an
// optional location, and may wrap a more specific cause. The cause chain is
// what produces multi-line diagnostics such as
//
//	link error: unresolved branch target
//	  at line 40
//	  no such label: DONE
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindSyntax Kind = iota + 1
	KindLink
	KindOptimizer
	KindProtected
	KindConfig
)

var kindNames = map[Kind]string{
	KindSyntax:    "syntax error",
	KindLink:      "link error",
	KindOptimizer: "optimizer error",
	KindProtected: "protected program",
	KindConfig:    "configuration error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the status value used throughout the pipeline.
type Error struct {
	Kind   Kind
	Code   string
	Msg    string
	Line   int    // program line number, 0 if unknown
	Column int    // 1-based column in Source, 0 if unknown
	Source string // statement text, for caret rendering
	Cause  error
}

// Sentinels, matchable with errors.Is. Matching compares Code only.
var (
	ErrSyntax         = &Error{Kind: KindSyntax, Code: "SYNTAX", Msg: "syntax error"}
	ErrParen          = &Error{Kind: KindSyntax, Code: "PAREN", Msg: "mismatched parenthesis"}
	ErrUnterminated   = &Error{Kind: KindSyntax, Code: "UNTERM", Msg: "unterminated literal"}
	ErrExpression     = &Error{Kind: KindSyntax, Code: "EXPR", Msg: "invalid expression"}
	ErrLValue         = &Error{Kind: KindSyntax, Code: "LVALUE", Msg: "invalid assignment target"}
	ErrReserved       = &Error{Kind: KindSyntax, Code: "RESERVED", Msg: "reserved word"}
	ErrArgCount       = &Error{Kind: KindSyntax, Code: "ARGCOUNT", Msg: "wrong number of arguments"}
	ErrUnknownFunc    = &Error{Kind: KindSyntax, Code: "UNKFUNC", Msg: "unknown function"}
	ErrUnknownVerb    = &Error{Kind: KindSyntax, Code: "VERB", Msg: "unrecognized statement"}
	ErrDuplicateLabel = &Error{Kind: KindLink, Code: "DUPLABEL", Msg: "duplicate label"}
	ErrNoSuchLabel    = &Error{Kind: KindLink, Code: "NOLABEL", Msg: "no such label"}
	ErrNoSuchLine     = &Error{Kind: KindLink, Code: "NOLINE", Msg: "no such line number"}
	ErrLoopNesting    = &Error{Kind: KindLink, Code: "LOOPNEST", Msg: "mismatched loop nesting"}
	ErrIfNesting      = &Error{Kind: KindLink, Code: "IFNEST", Msg: "mismatched conditional nesting"}
	ErrLinkCompile    = &Error{Kind: KindLink, Code: "LINKCOMPILE", Msg: "statement failed to compile"}
	ErrProtected      = &Error{Kind: KindProtected, Code: "PROTECTED", Msg: "program is protected"}
	ErrRule           = &Error{Kind: KindConfig, Code: "RULE", Msg: "malformed optimizer rule"}
	ErrAction         = &Error{Kind: KindConfig, Code: "ACTION", Msg: "unknown optimizer action"}
	ErrArithmetic     = &Error{Kind: KindOptimizer, Code: "MATH", Msg: "arithmetic fault in replacement"}
	ErrManifest       = &Error{Kind: KindConfig, Code: "MANIFEST", Msg: "invalid project configuration"}
)

// New creates an error derived from a sentinel with a formatted detail
// message. The detail is appended to the sentinel message after a colon.
func New(base *Error, format string, args ...any) *Error {
	e := *base
	if format != "" {
		e.Msg = base.Msg + ": " + fmt.Sprintf(format, args...)
	}
	return &e
}

// Errorf creates an error of the given kind with an ad-hoc code.
func Errorf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// At records the program line (and optionally a column) of the error.
func (e *Error) At(line, column int) *Error {
	e.Line = line
	e.Column = column
	return e
}

// WithSource attaches the statement text used for caret rendering.
func (e *Error) WithSource(src string) *Error {
	e.Source = src
	return e
}

// Wrap sets the cause of e and returns e.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Line > 0 {
		fmt.Fprintf(&sb, " (line %d)", e.Line)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// KindOf returns the Kind of the outermost *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Render produces the multi-line diagnostic for err: one line per level of
// the cause chain, with a caret snippet for levels that carry source text.
func Render(err error) string {
	var sb strings.Builder
	depth := 0
	for err != nil {
		indent := strings.Repeat("  ", depth)
		e, ok := err.(*Error)
		if !ok {
			sb.WriteString(indent + err.Error() + "\n")
			break
		}
		if depth == 0 {
			sb.WriteString(indent + e.Kind.String() + ": " + e.Msg + "\n")
		} else {
			sb.WriteString(indent + e.Msg + "\n")
		}
		if e.Line > 0 {
			fmt.Fprintf(&sb, "%s  at line %d\n", indent, e.Line)
		}
		if e.Source != "" {
			sb.WriteString(snippet(indent+"  ", e.Line, e.Column, e.Source))
		}
		err = e.Cause
		depth++
	}
	return sb.String()
}

// snippet renders the statement with a caret under the 1-based column.
func snippet(indent string, line, col int, src string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%5d | %s\n", indent, line, src)
	if col < 1 {
		return sb.String()
	}
	if col > len(src)+1 {
		col = len(src) + 1
	}
	fmt.Fprintf(&sb, "%s      | %s^\n", indent, strings.Repeat(" ", col-1))
	return sb.String()
}
