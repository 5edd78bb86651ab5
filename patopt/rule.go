package patopt

import (
	"cmp"
	"strconv"
	"unicode/utf8"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
	"github.com/chazu/mbasic/value"
)

// Mode is how a template constrains one operand field.
type Mode int

const (
	Ignore  Mode = iota // field not mentioned; anything matches
	Any                 // present, any value
	Exact               // present and equal
	Range               // present and within [Lo, Hi]
	Not                 // absent, or present and not equal
	Missing             // absent
)

// FieldSpec constrains one operand field of an instruction.
type FieldSpec[T cmp.Ordered] struct {
	Mode Mode
	Lo   T
	Hi   T
}

func (f FieldSpec[T]) match(has bool, v T) bool {
	switch f.Mode {
	case Any:
		return has
	case Exact:
		return has && v == f.Lo
	case Range:
		return has && v >= f.Lo && v <= f.Hi
	case Not:
		return !has || v != f.Lo
	case Missing:
		return !has
	}
	return true
}

// Template describes one instruction, either to match (pattern side) or
// to build (replacement side).
type Template struct {
	Op      bytecode.Opcode
	AnyOp   bool
	Int     FieldSpec[int64]
	Double  FieldSpec[float64]
	Str     FieldSpec[string]
	Actions []Action
	Text    string
}

// Rule is one named pattern/replacement pair. Linked is nil when the rule
// applies to both fragments and linked streams.
type Rule struct {
	Name    string
	Linked  *bool
	Pattern []Template
	Replace []Template
}

// AppliesTo reports whether the rule may run on a stream with the given
// linked state.
func (r *Rule) AppliesTo(linked bool) bool {
	return r.Linked == nil || *r.Linked == linked
}

// slots holds the values captured while matching one rule at one position.
type slots struct {
	ints   [Slots]int64
	dbls   [Slots]float64
	strs   [Slots]string
	intSet [Slots]bool
	dblSet [Slots]bool
	strSet [Slots]bool
}

func (sl *slots) setInt(n int, v int64) {
	sl.ints[n] = v
	sl.intSet[n] = true
}

// match tries the pattern at base and returns the captured slots.
func (r *Rule) match(s *bytecode.Stream, base int) (*slots, bool) {
	if base+len(r.Pattern) > s.Size() {
		return nil, false
	}
	sl := &slots{}
	for k, t := range r.Pattern {
		idx := base + k
		in := s.Get(idx)
		if !t.AnyOp && in.Op != t.Op {
			return nil, false
		}
		if !t.Int.match(in.HasInt, in.Int) || !t.Double.match(in.HasDouble, in.Double) || !t.Str.match(in.HasStr, in.Str) {
			return nil, false
		}
		for _, a := range t.Actions {
			if !sl.capture(a, in, idx) {
				return nil, false
			}
		}
	}
	return sl, true
}

// capture runs one pattern-side action. TESTPOSn holds when slot n
// addresses the instruction immediately after this one.
func (sl *slots) capture(a Action, in bytecode.Instruction, idx int) bool {
	base, n := a.family()
	switch base {
	case SetInt:
		if !in.HasInt {
			return false
		}
		sl.setInt(n, in.Int)
	case SetDbl:
		if !in.HasDouble {
			return false
		}
		sl.dbls[n], sl.dblSet[n] = in.Double, true
	case SetStr:
		if !in.HasStr {
			return false
		}
		sl.strs[n], sl.strSet[n] = in.Str, true
	case SetPos:
		sl.setInt(n, int64(idx))
	case TestInt:
		return in.HasInt && sl.intSet[n] && sl.ints[n] == in.Int
	case TestDbl:
		return in.HasDouble && sl.dblSet[n] && sl.dbls[n] == in.Double
	case TestStr:
		return in.HasStr && sl.strSet[n] && sl.strs[n] == in.Str
	case TestPos:
		return sl.intSet[n] && sl.ints[n] == int64(idx+1)
	default:
		return false
	}
	return true
}

// build computes the replacement instructions for a match at base. Branch
// operands that point past the matched span are shifted by the length
// difference unless the template applies OFFSET itself.
func (r *Rule) build(sl *slots, base int) ([]bytecode.Instruction, error) {
	delta := len(r.Replace) - len(r.Pattern)
	end := base + len(r.Pattern)
	out := make([]bytecode.Instruction, 0, len(r.Replace))
	for _, t := range r.Replace {
		in := bytecode.New(t.Op)
		if t.Int.Mode == Exact {
			in.SetInt(t.Int.Lo)
		}
		if t.Double.Mode == Exact {
			in.SetDouble(t.Double.Lo)
		}
		if t.Str.Mode == Exact {
			in.SetStr(t.Str.Lo)
		}
		offset := false
		for _, a := range t.Actions {
			if a == Offset {
				offset = true
			}
			if err := sl.recall(a, &in, delta); err != nil {
				return nil, err
			}
		}
		if addr, ok := in.Address(); ok && !offset && addr >= end {
			in.Int = int64(addr + delta)
		}
		out = append(out, in)
	}
	return out, nil
}

func (sl *slots) needInt(ns ...int) error {
	for _, n := range ns {
		if !sl.intSet[n] {
			return status.New(status.ErrRule, "integer slot %d is empty", n)
		}
	}
	return nil
}

func (sl *slots) needDbl(ns ...int) error {
	for _, n := range ns {
		if !sl.dblSet[n] {
			return status.New(status.ErrRule, "double slot %d is empty", n)
		}
	}
	return nil
}

func (sl *slots) needStr(ns ...int) error {
	for _, n := range ns {
		if !sl.strSet[n] {
			return status.New(status.ErrRule, "string slot %d is empty", n)
		}
	}
	return nil
}

// recall runs one replacement-side action against in.
func (sl *slots) recall(a Action, in *bytecode.Instruction, delta int) error {
	switch a {
	case MulInt, AddInt, SubInt, DivInt:
		if err := sl.needInt(1, 2); err != nil {
			return err
		}
		x, y := sl.ints[1], sl.ints[2]
		var r int64
		switch a {
		case MulInt:
			r = x * y
		case AddInt:
			r = x + y
		case SubInt:
			r = x - y
		case DivInt:
			if y == 0 {
				return status.New(status.ErrArithmetic, "integer division by zero")
			}
			r = x / y
		}
		sl.ints[2] = r
		in.SetInt(r)
		return nil

	case MulDbl, AddDbl, SubDbl, DivDbl:
		if err := sl.needDbl(1, 2); err != nil {
			return err
		}
		x, y := sl.dbls[1], sl.dbls[2]
		var r float64
		switch a {
		case MulDbl:
			r = x * y
		case AddDbl:
			r = x + y
		case SubDbl:
			r = x - y
		case DivDbl:
			if y == 0 {
				return status.New(status.ErrArithmetic, "division by zero")
			}
			r = x / y
		}
		sl.dbls[2] = r
		in.SetDouble(r)
		return nil

	case NegInt0, NegInt1:
		n := int(a - NegInt0)
		if err := sl.needInt(n); err != nil {
			return err
		}
		in.SetInt(-sl.ints[n])
		return nil

	case NegDbl0, NegDbl1:
		n := int(a - NegDbl0)
		if err := sl.needDbl(n); err != nil {
			return err
		}
		in.SetDouble(-sl.dbls[n])
		return nil

	case StrLen1:
		if err := sl.needStr(1); err != nil {
			return err
		}
		in.SetInt(int64(utf8.RuneCountInString(sl.strs[1])))
		return nil

	case NotInt1:
		if err := sl.needInt(1); err != nil {
			return err
		}
		if sl.ints[1] == 0 {
			in.SetInt(1)
		} else {
			in.SetInt(0)
		}
		return nil

	case IntStr1:
		if err := sl.needInt(1); err != nil {
			return err
		}
		in.SetStr(strconv.FormatInt(sl.ints[1], 10))
		return nil

	case DblStr1:
		if err := sl.needDbl(1); err != nil {
			return err
		}
		in.SetStr(value.FormatDouble(sl.dbls[1]))
		return nil

	case IntDbl1:
		if err := sl.needInt(1); err != nil {
			return err
		}
		in.SetDouble(float64(sl.ints[1]))
		return nil

	case StrCat:
		if err := sl.needStr(1, 2); err != nil {
			return err
		}
		in.SetStr(sl.strs[1] + sl.strs[2])
		return nil

	case Offset:
		if !in.HasInt {
			return status.New(status.ErrRule, "OFFSET needs an integer operand")
		}
		in.Int += int64(delta)
		return nil
	}

	base, n := a.family()
	switch base {
	case RclInt:
		if err := sl.needInt(n); err != nil {
			return err
		}
		in.SetInt(sl.ints[n])
	case RclDbl:
		if err := sl.needDbl(n); err != nil {
			return err
		}
		in.SetDouble(sl.dbls[n])
	case RclStr:
		if err := sl.needStr(n); err != nil {
			return err
		}
		in.SetStr(sl.strs[n])
	default:
		return status.New(status.ErrAction, "%s cannot build an instruction", a)
	}
	return nil
}

// rewrite replaces the span [base, base+len(Pattern)) with repl. The
// stream's own relocation keeps every other branch operand consistent.
func (r *Rule) rewrite(s *bytecode.Stream, base int, repl []bytecode.Instruction) {
	plen, rlen := len(r.Pattern), len(repl)
	for i := rlen; i < plen; i++ {
		s.Remove(base + rlen)
	}
	for i := plen; i < rlen; i++ {
		s.Insert(base+plen, bytecode.New(bytecode.OpNoop))
	}
	for i, in := range repl {
		s.Set(base+i, in)
	}
}
