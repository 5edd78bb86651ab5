// Package optimizer runs the hardcoded peephole battery together with the
// rule-driven pattern optimizer until neither changes the stream.
package optimizer

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/patopt"
)

var log = commonlog.GetLogger("mbasic.optimizer")

// maxRounds bounds the fixpoint loop. Each round either changes the stream
// or ends the loop, so this only matters for rule tables that oscillate.
const maxRounds = 64

// Optimizer applies the peephole passes and an optional rule table.
type Optimizer struct {
	rules  *patopt.Rules
	passes []Pass
}

// New returns an optimizer using rules, which may be nil.
func New(rules *patopt.Rules) *Optimizer {
	return &Optimizer{rules: rules, passes: Passes()}
}

// Peephole runs every peephole pass once and returns the number of
// changes.
func (o *Optimizer) Peephole(s *bytecode.Stream) int {
	total := 0
	for _, p := range o.passes {
		if n := p.Run(s); n > 0 {
			log.Debugf("%s: %d changes", p.Name, n)
			total += n
		}
	}
	return total
}

// Optimize alternates the peephole battery and the pattern rules until a
// round makes no change, then runs loop constant hoisting once more. Dead
// code elimination only touches unlinked fragments. A second call on the
// result returns 0.
func (o *Optimizer) Optimize(s *bytecode.Stream, deadCode bool) int {
	total := 0
	for round := 0; ; round++ {
		if round == maxRounds {
			log.Warningf("optimizer stopped after %d rounds", maxRounds)
			break
		}
		n := o.Peephole(s)
		if o.rules != nil {
			n += o.rules.Optimize(s, deadCode)
		}
		total += n
		if n == 0 {
			break
		}
	}
	total += HoistLoopConstants(s)
	s.MarkBranchTargets()
	return total
}
