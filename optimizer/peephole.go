package optimizer

import (
	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/value"
)

// Pass is one structural rewrite. It returns the number of changes made.
// Every pass leaves branch operands and label addresses consistent and
// never deletes an instruction that something branches to.
type Pass struct {
	Name string
	Run  func(s *bytecode.Stream) int
}

// Passes returns the peephole battery in the order it is applied.
func Passes() []Pass {
	return []Pass{
		{"resolve-branches", ResolveBranches},
		{"fold-conversions", FoldConversions},
		{"eliminate-swaps", EliminateSwaps},
		{"fuse-short-circuit", FuseShortCircuit},
		{"remove-dead-ends", RemoveDeadEnds},
		{"hoist-loop-constants", HoistLoopConstants},
	}
}

// ResolveBranches resolves label operands of BR, BRZ and BRNZ through the
// stream's label table, turns a BR with no operand at all into END and
// deletes a BR to the very next instruction. Linked streams only.
func ResolveBranches(s *bytecode.Stream) int {
	if !s.Linked() {
		return 0
	}
	n := 0
	for i := 0; i < s.Size(); {
		in := s.At(i)
		if in.Op != bytecode.OpBr && in.Op != bytecode.OpBrZ && in.Op != bytecode.OpBrNZ {
			i++
			continue
		}
		if !in.HasInt && in.HasStr {
			if l, ok := s.Label(in.Str); ok {
				in.SetInt(int64(l.Address))
				in.ClearStr()
				n++
			}
		}
		if in.Op != bytecode.OpBr {
			i++
			continue
		}
		switch addr, ok := in.Address(); {
		case !in.HasInt && !in.HasStr:
			s.Set(i, bytecode.New(bytecode.OpEnd))
			n++
			i++
		case ok && addr == i+1:
			s.Remove(i)
			n++
		default:
			i++
		}
	}
	return n
}

// FoldConversions collapses a constant followed by CVT into the converted
// constant, using the same coercion the runtime applies.
func FoldConversions(s *bytecode.Stream) int {
	s.MarkBranchTargets()
	n := 0
	for i := 0; i+1 < s.Size(); {
		in, next := s.Get(i), s.Get(i+1)
		if !in.Op.IsConstant() || next.Op != bytecode.OpCvt || !next.HasInt || next.BranchTarget {
			i++
			continue
		}
		folded, ok := convert(in, value.Type(next.Int))
		if !ok {
			i++
			continue
		}
		s.Set(i, folded)
		s.Remove(i + 1)
		n++
	}
	return n
}

func convert(in bytecode.Instruction, t value.Type) (bytecode.Instruction, bool) {
	v, ok := in.Constant()
	if !ok {
		return in, false
	}
	c, err := v.Coerce(t)
	if err != nil {
		log.Debugf("not folding %s to %s: %s", in, t, err)
		return in, false
	}
	return bytecode.FromConstant(c)
}

// isPush reports whether the instruction pushes one value with no side
// effects.
func isPush(op bytecode.Opcode) bool {
	return op.IsConstant() || op == bytecode.OpLoad || op == bytecode.OpLoadRef
}

// EliminateSwaps turns "push a, push b, SWAP" into "push b, push a".
func EliminateSwaps(s *bytecode.Stream) int {
	s.MarkBranchTargets()
	n := 0
	for i := 0; i+2 < s.Size(); i++ {
		a, b, c := s.Get(i), s.Get(i+1), s.Get(i+2)
		if !isPush(a.Op) || !isPush(b.Op) || c.Op != bytecode.OpSwap || b.BranchTarget || c.BranchTarget {
			continue
		}
		a.BranchTarget, b.BranchTarget = false, false
		s.Set(i, b)
		s.Set(i+1, a)
		s.Remove(i + 2)
		n++
	}
	return n
}

// FuseShortCircuit rewrites
//
//	BRZ  L+3
//	STMT n
//	BR   T
//
// into BRNZ T (and BRNZ into BRZ). Linked streams only.
func FuseShortCircuit(s *bytecode.Stream) int {
	if !s.Linked() {
		return 0
	}
	s.MarkBranchTargets()
	n := 0
	for i := 0; i+2 < s.Size(); i++ {
		cond, mark, br := s.Get(i), s.Get(i+1), s.Get(i+2)
		if cond.Op != bytecode.OpBrZ && cond.Op != bytecode.OpBrNZ {
			continue
		}
		if mark.Op != bytecode.OpStmt || br.Op != bytecode.OpBr || mark.BranchTarget || br.BranchTarget {
			continue
		}
		skip, ok1 := cond.Address()
		target, ok2 := br.Address()
		if !ok1 || !ok2 || skip != i+3 || (target > i && target <= i+2) {
			continue
		}
		inverse := bytecode.OpBrNZ
		if cond.Op == bytecode.OpBrNZ {
			inverse = bytecode.OpBrZ
		}
		s.Set(i, bytecode.NewInt(inverse, int64(target)))
		s.RemoveRange(i+1, 2)
		n++
	}
	return n
}

// RemoveDeadEnds deletes an END or RETURN that directly follows an
// unconditional transfer and that nothing branches to. Loop tails do not
// count as transfers: an unresolved pre-condition test may exit past them.
func RemoveDeadEnds(s *bytecode.Stream) int {
	s.MarkBranchTargets()
	n := 0
	for i := 0; i+1 < s.Size(); {
		in, next := s.Get(i), s.Get(i+1)
		if in.Op.IsUnconditional() && !in.Op.IsLoopTail() &&
			(next.Op == bytecode.OpEnd || next.Op == bytecode.OpReturn) &&
			!next.BranchTarget && s.ReferencesTo(i+1, -1) == 0 {
			s.Remove(i + 1)
			n++
			continue
		}
		i++
	}
	return n
}

// HoistLoopConstants moves array and record constructions whose operands
// are all constants out of loop bodies into the prologue, replacing them
// with LOADREF. Structurally equal constants share one pooled block.
// Linked streams only.
func HoistLoopConstants(s *bytecode.Stream) int {
	if !s.Linked() {
		return 0
	}
	s.MarkBranchTargets()
	pool := ScanPool(s)
	n, depth := 0, 0
	for i := pool.End(); i < s.Size(); i++ {
		in := s.Get(i)
		switch {
		case in.Op.IsLoopHead():
			depth++
			continue
		case in.Op.IsLoopTail():
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 || (in.Op != bytecode.OpArray && in.Op != bytecode.OpRecord) || !in.HasInt || in.Int <= 0 {
			continue
		}
		k := int(in.Int)
		if in.Op == bytecode.OpRecord {
			k *= 2
		}
		start := i - k
		if start < pool.End() || !constantOperands(s, pool, start, i) {
			continue
		}

		body := Body(s, start, i+1)
		v, err := bytecode.EvalConstant(body, pool.Values())
		if err != nil {
			log.Debugf("not hoisting %s at %d: %s", in, i, err)
			continue
		}
		name, ok := pool.Lookup(v)
		if !ok {
			name = compiler.ConstName(body)
			added := pool.Insert(s, name, body, v)
			start += added
			i += added
		}
		s.Set(start, bytecode.NewString(bytecode.OpLoadRef, name))
		s.RemoveRange(start+1, i-start)
		i = start
		n++
	}
	return n
}

// constantOperands reports whether [start, end) are all constant pushes and
// nothing branches into (start, end].
func constantOperands(s *bytecode.Stream, pool *Pool, start, end int) bool {
	for j := start; j < end; j++ {
		in := s.Get(j)
		switch {
		case in.Op.IsConstant():
		case in.Op == bytecode.OpLoadRef && pool.Has(in.Str):
		default:
			return false
		}
	}
	for j := start + 1; j <= end; j++ {
		if s.IsBranchTarget(j) {
			return false
		}
	}
	return true
}
