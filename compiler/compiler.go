// Package compiler translates BASIC statements and expressions into
// unlinked instruction fragments for the linker.
package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
)

var log = commonlog.GetLogger("mbasic.compiler")

// FragmentOptimizer rewrites a single unlinked statement fragment in place
// and returns the number of rewrites applied.
type FragmentOptimizer interface {
	Optimize(s *bytecode.Stream, deadCode bool) int
}

// Compiler holds the collaborators shared by every statement it compiles.
// A Compiler is not safe for concurrent use; create one per goroutine.
type Compiler struct {
	flags     Flags
	inline    InlineCompiler
	optimizer FragmentOptimizer
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithInline replaces the inline function collaborator.
func WithInline(ic InlineCompiler) Option {
	return func(c *Compiler) { c.inline = ic }
}

// WithFragmentOptimizer sets the optimizer run over each compiled
// statement when Flags.Optimize is on.
func WithFragmentOptimizer(o FragmentOptimizer) Option {
	return func(c *Compiler) { c.optimizer = o }
}

// New creates a compiler using the built-in inline function registry.
func New(flags Flags, opts ...Option) *Compiler {
	if flags.Separator == "" {
		flags.Separator = ":"
	}
	c := &Compiler{flags: flags, inline: DefaultRegistry()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flags returns the compiler's feature switches.
func (c *Compiler) Flags() Flags { return c.flags }

// CompileExpression compiles a standalone expression. Constant pooling is
// never applied outside program statements.
func (c *Compiler) CompileExpression(src string) (*bytecode.Stream, error) {
	ts, err := NewTokenStream(src, 0, c.flags.Separator)
	if err != nil {
		return nil, err
	}
	out := bytecode.NewStream()
	if err := c.newExpression(ts, false).Compile(out); err != nil {
		return nil, err
	}
	if !ts.AtEOF() {
		return nil, ts.Error(status.ErrExpression, "unexpected %s", ts.Spelling())
	}
	c.optimize(out)
	return out, nil
}

// CompileStatement compiles one program line into an unlinked fragment.
// Each separator-delimited segment begins with a STMT marker.
func (c *Compiler) CompileStatement(line int, src string) (*bytecode.Stream, error) {
	ts, err := NewTokenStream(src, line, c.flags.Separator)
	if err != nil {
		return nil, err
	}
	out := bytecode.NewStream()
	for {
		out.EmitInt(bytecode.OpStmt, int64(line))
		if ts.EndOfStatement() {
			if ts.AssumeSeparator() {
				continue
			}
			break
		}
		if err := c.statement(ts, out); err != nil {
			return nil, err
		}
		if ts.AssumeSeparator() {
			continue
		}
		if !ts.AtEOF() {
			return nil, ts.Error(status.ErrSyntax, "unexpected %s", ts.Spelling())
		}
		break
	}
	c.optimize(out)
	return out, nil
}

func (c *Compiler) optimize(out *bytecode.Stream) {
	if !c.flags.Optimize || c.optimizer == nil {
		return
	}
	if n := c.optimizer.Optimize(out, c.flags.DeadCode); n > 0 {
		log.Debugf("fragment: %d rewrites", n)
	}
}
