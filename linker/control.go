package linker

import (
	"strconv"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
)

// resolveConditionals turns IF 1 / IF 2 / IF 3 marker triplets into
// branches:
//
//	cond  IF 1  then  IF 2  else  IF 3
//	cond  BRZ e then  BR x  e:else x:NOOP
//
// Without IF 2 the BRZ goes straight to the end marker. The end marker
// becomes a NOOP and is stripped later, so branches to it land on the
// instruction after it.
func resolveConditionals(s *bytecode.Stream) error {
	type open struct{ start, alt int }
	var stack []open

	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		if in.Op != bytecode.OpIf {
			continue
		}
		switch in.Int {
		case 1:
			stack = append(stack, open{start: i, alt: -1})
		case 2:
			if len(stack) == 0 || stack[len(stack)-1].alt >= 0 {
				return status.New(status.ErrIfNesting, "ELSE without IF").At(lineAt(s, i), 0)
			}
			stack[len(stack)-1].alt = i
		case 3:
			if len(stack) == 0 {
				return status.New(status.ErrIfNesting, "end of IF without IF").At(lineAt(s, i), 0)
			}
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if c.alt >= 0 {
				s.Set(c.start, bytecode.NewInt(bytecode.OpBrZ, int64(c.alt+1)))
				s.Set(c.alt, bytecode.NewInt(bytecode.OpBr, int64(i)))
			} else {
				s.Set(c.start, bytecode.NewInt(bytecode.OpBrZ, int64(i)))
			}
			s.Set(i, bytecode.New(bytecode.OpNoop))
		default:
			return status.New(status.ErrIfNesting, "bad IF marker %d", in.Int).At(lineAt(s, i), 0)
		}
	}
	if len(stack) > 0 {
		return status.New(status.ErrIfNesting, "IF without end").At(lineAt(s, stack[0].start), 0)
	}
	return nil
}

// findLine returns the first statement marker for line or the nearest
// line after it.
func findLine(s *bytecode.Stream, line int64) (int, bool) {
	for i := 0; i < s.Size(); i++ {
		if in := s.Get(i); in.Op == bytecode.OpStmt && in.Int >= line {
			return i, true
		}
	}
	return 0, false
}

// resolveLines rewrites GOTO and GOSUB with line number operands into BR
// and CALLSUB, and resolves ON ERROR GOTO line.
func resolveLines(s *bytecode.Stream) error {
	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		var line int64
		switch {
		case (in.Op == bytecode.OpGoto || in.Op == bytecode.OpGosub) && in.HasInt:
			line = in.Int
		case in.Op == bytecode.OpOnErr && !in.HasInt:
			n, err := strconv.ParseInt(in.Str, 10, 64)
			if err != nil {
				continue
			}
			line = n
		default:
			continue
		}

		addr, ok := findLine(s, line)
		if !ok {
			return status.New(status.ErrNoSuchLine, "%d", line).At(lineAt(s, i), 0)
		}
		s.Set(i, resolved(in, addr))
	}
	return nil
}

// resolveLabels resolves label operands of GOTO, GOSUB, ON ERROR GOTO and
// unresolved branches, and CALL through subroutine ENTRY markers.
func resolveLabels(s *bytecode.Stream) error {
	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		switch in.Op {
		case bytecode.OpGoto, bytecode.OpGosub, bytecode.OpOnErr, bytecode.OpBr, bytecode.OpBrZ, bytecode.OpBrNZ:
			if in.HasInt || !in.HasStr {
				continue
			}
			l, ok := s.Label(in.Str)
			if !ok {
				return status.New(status.ErrNoSuchLabel, "%s", in.Str).At(lineAt(s, i), 0)
			}
			s.Set(i, resolved(in, l.Address))

		case bytecode.OpCall:
			addr, ok := findEntry(s, in.Str)
			if !ok {
				return status.New(status.ErrNoSuchLabel, "SUB %s", in.Str).At(lineAt(s, i), 0)
			}
			s.Set(i, bytecode.NewIntString(bytecode.OpCallSub, int64(addr), in.Str))
		}
	}
	return nil
}

// resolved returns the branch that replaces an unresolved jump.
func resolved(in bytecode.Instruction, addr int) bytecode.Instruction {
	switch in.Op {
	case bytecode.OpGoto:
		return bytecode.NewInt(bytecode.OpBr, int64(addr))
	case bytecode.OpGosub:
		return bytecode.NewInt(bytecode.OpCallSub, int64(addr))
	case bytecode.OpOnErr:
		return bytecode.NewIntString(bytecode.OpOnErr, int64(addr), in.Str)
	}
	return bytecode.NewInt(in.Op, int64(addr))
}

func findEntry(s *bytecode.Stream, name string) (int, bool) {
	for i := 0; i < s.Size(); i++ {
		if in := s.Get(i); in.Op == bytecode.OpEntry && in.Str == name {
			return i, true
		}
	}
	return 0, false
}

// patchForNext pairs FOR and FOR EACH with their NEXT. The head branches
// past the NEXT when the loop is done; the NEXT branches back to the
// first body instruction.
func patchForNext(s *bytecode.Stream) error {
	type open struct {
		pos  int
		name string
	}
	var stack []open

	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		switch in.Op {
		case bytecode.OpFor, bytecode.OpForEach:
			stack = append(stack, open{pos: i, name: in.Str})
		case bytecode.OpNext:
			if len(stack) == 0 {
				return status.New(status.ErrLoopNesting, "NEXT without FOR").At(lineAt(s, i), 0)
			}
			top := stack[len(stack)-1]
			if in.HasStr && in.Str != top.name {
				return status.New(status.ErrLoopNesting, "NEXT %s does not close FOR %s", in.Str, top.name).At(lineAt(s, i), 0)
			}
			stack = stack[:len(stack)-1]
			s.At(top.pos).SetInt(int64(i + 1))
			next := s.At(i)
			next.SetInt(int64(top.pos + 1))
			next.SetStr(top.name)
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return status.New(status.ErrLoopNesting, "FOR %s without NEXT", top.name).At(lineAt(s, top.pos), 0)
	}
	return nil
}

// loopFrame is an open loop while patching DO/LOOP and the loop
// pseudo-branches.
type loopFrame struct {
	head    int
	op      bytecode.Opcode
	test    int   // DO WHILE/UNTIL position, -1 if none
	pending []int // CONTINUE and EXIT LOOP positions
}

// patchDoLoop points LOOP, LOOP WHILE and LOOP UNTIL back at their DO,
// resolves the exit of DO WHILE / DO UNTIL when loop-top tests are on and
// resolves CONTINUE and EXIT LOOP against the innermost loop of any kind.
func (l *Linker) patchDoLoop(s *bytecode.Stream) error {
	var stack []*loopFrame
	mismatch := func(i int, what string) error {
		return status.New(status.ErrLoopNesting, "%s", what).At(lineAt(s, i), 0)
	}

	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		switch in.Op {
		case bytecode.OpFor, bytecode.OpForEach, bytecode.OpDo:
			stack = append(stack, &loopFrame{head: i, op: in.Op, test: -1})

		case bytecode.OpDoWhile, bytecode.OpDoUntil:
			if len(stack) == 0 || stack[len(stack)-1].op != bytecode.OpDo {
				return mismatch(i, "WHILE or UNTIL outside DO")
			}
			stack[len(stack)-1].test = i

		case bytecode.OpContinue, bytecode.OpExitLoop:
			if len(stack) == 0 {
				return mismatch(i, in.Op.String()+" outside a loop")
			}
			top := stack[len(stack)-1]
			top.pending = append(top.pending, i)

		case bytecode.OpNext:
			if len(stack) == 0 || stack[len(stack)-1].op == bytecode.OpDo {
				return mismatch(i, "NEXT inside DO")
			}
			resolvePending(s, stack[len(stack)-1], i)
			stack = stack[:len(stack)-1]

		case bytecode.OpLoop, bytecode.OpLoopWhile, bytecode.OpLoopUntil:
			if len(stack) == 0 || stack[len(stack)-1].op != bytecode.OpDo {
				return mismatch(i, "LOOP without DO")
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			s.At(i).SetInt(int64(top.head))
			if top.test >= 0 && l.flags.LoopTopTest {
				s.At(top.test).SetInt(int64(i + 1))
			}
			resolvePending(s, top, i)
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return mismatch(top.head, top.op.String()+" without end")
	}
	return nil
}

// resolvePending points CONTINUE at the start of the statement holding the
// loop tail, so a tail condition is evaluated, and EXIT LOOP just past the
// tail.
func resolvePending(s *bytecode.Stream, f *loopFrame, tail int) {
	cont := tail
	for j := tail; j > f.head; j-- {
		if s.Get(j).Op == bytecode.OpStmt {
			cont = j
			break
		}
	}
	for _, pos := range f.pending {
		in := s.At(pos)
		if in.Op == bytecode.OpContinue {
			in.SetInt(int64(cont))
		} else {
			in.SetInt(int64(tail + 1))
		}
	}
}
