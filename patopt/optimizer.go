// Package patopt is the table-driven peephole optimizer. Rules are read
// from an XML document; each rule names an instruction pattern and its
// replacement, with actions that capture operands while matching and
// compute new operands while replacing.
package patopt

import (
	"errors"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
)

var log = commonlog.GetLogger("mbasic.patopt")

// Rules is a loaded rule table. The table itself is immutable; Optimize
// may run concurrently on independent streams.
type Rules struct {
	rules  []*Rule
	maxLen int

	mu    sync.Mutex
	stats map[string]int
}

// NewRules builds a table from parsed rules.
func NewRules(rules ...*Rule) *Rules {
	r := &Rules{rules: rules, stats: make(map[string]int)}
	for _, rule := range rules {
		if len(rule.Pattern) > r.maxLen {
			r.maxLen = len(rule.Pattern)
		}
	}
	return r
}

// Rules returns the rules in application order.
func (r *Rules) Rules() []*Rule {
	return append([]*Rule(nil), r.rules...)
}

// Len returns the number of rules.
func (r *Rules) Len() int { return len(r.rules) }

// Stat is the application count of one rule.
type Stat struct {
	Name  string
	Count int
}

// Stats returns how often each rule has fired, most frequent first.
func (r *Rules) Stats() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stat, 0, len(r.stats))
	for name, n := range r.stats {
		out = append(out, Stat{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Rules) record(name string) {
	r.mu.Lock()
	r.stats[name]++
	r.mu.Unlock()
}

// Optimize applies the rules to s until none matches, then optionally
// strips dead code from unlinked streams. It returns the number of
// rewrites made.
func (r *Rules) Optimize(s *bytecode.Stream, deadCode bool) int {
	n := r.applyRules(s)
	if deadCode && !s.Linked() {
		n += EliminateDeadCode(s)
	}
	return n
}

func (r *Rules) applyRules(s *bytecode.Stream) int {
	linked := s.Linked()
	s.MarkBranchTargets()

	// A table whose rules undo each other would never settle.
	limit := 16 * (s.Size() + 1)
	count := 0

	for pos := 0; pos < s.Size(); {
		fired := false
		for _, rule := range r.rules {
			if !rule.AppliesTo(linked) || pos+len(rule.Pattern) > s.Size() {
				continue
			}
			if interiorTarget(s, pos, len(rule.Pattern)) {
				continue
			}
			sl, ok := rule.match(s, pos)
			if !ok {
				continue
			}
			repl, err := rule.build(sl, pos)
			if err != nil {
				if errors.Is(err, status.ErrArithmetic) {
					log.Debugf("%s at %d suppressed: %s", rule.Name, pos, err)
				} else {
					log.Warningf("%s at %d: %s", rule.Name, pos, err)
				}
				continue
			}
			rule.rewrite(s, pos, repl)
			s.MarkBranchTargets()
			r.record(rule.Name)
			count++
			fired = true

			pos -= r.maxLen + 1
			if pos < 0 {
				pos = 0
			}
			break
		}
		if !fired {
			pos++
		}
		if count >= limit {
			log.Warningf("rule rewriting stopped after %d rewrites", count)
			break
		}
	}
	return count
}

// interiorTarget reports whether any instruction of the span after the
// first is a branch target.
func interiorTarget(s *bytecode.Stream, pos, n int) bool {
	for i := pos + 1; i < pos+n && i < s.Size(); i++ {
		if s.IsBranchTarget(i) {
			return true
		}
	}
	return false
}

// EliminateDeadCode removes duplicate statement markers, branches to the
// next instruction and unreachable code after unconditional transfers.
// Linked streams are left alone.
func EliminateDeadCode(s *bytecode.Stream) int {
	if s.Linked() {
		return 0
	}
	s.MarkBranchTargets()
	n := 0
	for i := 0; i < s.Size(); {
		in := s.Get(i)
		if in.Op == bytecode.OpBr {
			if addr, ok := in.Address(); ok && addr == i+1 {
				s.Remove(i)
				n++
				continue
			}
		}
		if i+1 >= s.Size() {
			break
		}
		next := s.Get(i + 1)
		switch {
		case in.Op == bytecode.OpStmt && next.Op == bytecode.OpStmt && in.Int == next.Int && !in.BranchTarget:
			s.Remove(i)
			n++
		case in.Op.IsUnconditional() && !next.BranchTarget && !next.Op.IsMarker():
			s.Remove(i + 1)
			n++
		default:
			i++
		}
	}
	if n > 0 {
		log.Debugf("dead code: removed %d instructions", n)
	}
	return n
}
