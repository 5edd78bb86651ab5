// Package linker fuses the compiled statements of a program into one
// executable stream. Linking resolves conditionals, line numbers, labels,
// loops and subroutine entries to absolute addresses, pools structured
// constants into a prologue, optimizes the result and indexes DATA
// statements for READ.
package linker

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/optimizer"
	"github.com/chazu/mbasic/patopt"
	"github.com/chazu/mbasic/program"
	"github.com/chazu/mbasic/status"
)

var log = commonlog.GetLogger("mbasic.linker")

// Linker links programs with one set of feature switches. A Linker is not
// safe for concurrent use; the rule table it shares is.
type Linker struct {
	flags    compiler.Flags
	rules    *patopt.Rules
	compiler *compiler.Compiler
	opt      *optimizer.Optimizer
}

// Option configures a Linker.
type Option func(*Linker)

// WithRules uses rules instead of the process-wide default table.
func WithRules(rules *patopt.Rules) Option {
	return func(l *Linker) { l.rules = rules }
}

// New creates a linker. When optimization is on and no rule table was
// given, the default table is loaded; a broken table is reported here.
func New(flags compiler.Flags, opts ...Option) (*Linker, error) {
	l := &Linker{flags: flags}
	for _, opt := range opts {
		opt(l)
	}
	if flags.Optimize && l.rules == nil {
		rules, err := patopt.Default()
		if err != nil {
			return nil, err
		}
		l.rules = rules
	}
	l.opt = optimizer.New(l.rules)
	l.compiler = compiler.New(flags, compiler.WithFragmentOptimizer(l.opt))
	return l, nil
}

// Compiler returns the statement compiler used for unlinked statements.
func (l *Linker) Compiler() *compiler.Compiler { return l.compiler }

// Link fuses p into one stream, stores it as the first statement's code
// and marks p linked. Linking a linked program returns its stream. On
// error p is left unlinked with its statement fragments intact.
func (l *Linker) Link(p *program.Program) (*bytecode.Stream, error) {
	if p.State() == program.Linked {
		return p.Executable(), nil
	}
	if p.Protected {
		return nil, status.New(status.ErrProtected, "cannot link %s", p.Name)
	}
	if len(p.Statements) == 0 {
		return nil, status.New(status.ErrNoSuchLine, "%s has no statements", p.Name)
	}

	p.SetState(program.Linking)
	s, err := l.link(p)
	if err != nil {
		p.SetState(program.Unlinked)
		log.Debugf("link %s failed: %s", p.Name, err)
		return nil, err
	}

	p.SetExecutable(s)
	log.Infof("linked %s: %d statements, %d instructions", p.Name, len(p.Statements), s.Size())
	return s, nil
}

// Unlink discards the fused stream and recompiles every statement.
func (l *Linker) Unlink(p *program.Program) error {
	if p.Protected {
		return status.New(status.ErrProtected, "cannot unlink %s", p.Name)
	}
	p.Reset()
	return l.compileAll(p)
}

func (l *Linker) link(p *program.Program) (*bytecode.Stream, error) {
	if err := l.compileAll(p); err != nil {
		return nil, err
	}
	s, err := concat(p)
	if err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		run  func(*bytecode.Stream) error
	}{
		{"conditionals", resolveConditionals},
		{"line numbers", resolveLines},
		{"labels", resolveLabels},
		{"for/next", patchForNext},
		{"do/loop", l.patchDoLoop},
	}
	for _, step := range steps {
		if err := step.run(s); err != nil {
			return nil, err
		}
	}

	stripNoops(s)
	if err := hoistConstants(s); err != nil {
		return nil, err
	}
	if err := checkNesting(s); err != nil {
		return nil, err
	}
	if err := collectEntries(s, p); err != nil {
		return nil, err
	}
	if l.flags.StripStatements {
		stripStatements(s)
	}
	if l.flags.Optimize {
		if n := l.opt.Optimize(s, false); n > 0 {
			log.Debugf("%s: %d optimizer changes", p.Name, n)
		}
	}
	buildData(s)
	s.MarkBranchTargets()
	return s, nil
}

// compileAll compiles every statement that has no fragment.
func (l *Linker) compileAll(p *program.Program) error {
	for _, st := range p.Statements {
		if st.Code != nil {
			continue
		}
		code, err := l.compiler.CompileStatement(st.Line, st.Source)
		if err != nil {
			return status.New(status.ErrLinkCompile, "line %d", st.Line).
				At(st.Line, 0).WithSource(st.Source).Wrap(err)
		}
		st.Code = code
	}
	return nil
}

// concat appends every fragment in statement order and records statement
// labels. From here on branch operands are absolute.
func concat(p *program.Program) (*bytecode.Stream, error) {
	s := bytecode.NewStream()
	for i, st := range p.Statements {
		base := s.Concat(st.Code)
		if st.Label != "" && !s.AddLabel(st.Label, i, base) {
			return nil, status.New(status.ErrDuplicateLabel, "%s", st.Label).At(st.Line, 0)
		}
	}
	s.SetLinked(true)
	return s, nil
}

// lineAt returns the line number of the statement containing pos.
func lineAt(s *bytecode.Stream, pos int) int {
	for i := pos; i >= 0; i-- {
		if in := s.Get(i); in.Op == bytecode.OpStmt {
			return int(in.Int)
		}
	}
	return 0
}
