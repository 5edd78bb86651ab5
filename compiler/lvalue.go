package compiler

import (
	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
)

// Scope flag bits carried in the integer operand of store instructions.
const (
	ScopeGlobal int64 = 1 << iota
	ScopeParent
	ScopeRoot
	ScopeReadOnly
	ScopeCommon
	ScopeStatic
)

var scopeNames = map[string]int64{
	"GLOBAL":   ScopeGlobal,
	"PARENT":   ScopeParent,
	"ROOT":     ScopeRoot,
	"READONLY": ScopeReadOnly,
	"COMMON":   ScopeCommon,
	"STATIC":   ScopeStatic,
}

// LValue is a compiled assignment target. Address is emitted before the
// right-hand side and Store after it; Deferred holds post-increments from
// index expressions, emitted after Store.
type LValue struct {
	Name      string
	Scope     int64
	Depth     int  // levels of member/index nesting
	Reference bool // compiled as a locate-or-create chain

	Address  []bytecode.Instruction
	Store    []bytecode.Instruction
	Deferred []bytecode.Instruction
}

// Simple reports whether the target is a bare variable.
func (lv *LValue) Simple() bool { return lv.Depth == 0 }

type lvalueStep struct {
	member string
	index  *bytecode.Stream // nil for a member step
}

// compileLValue parses one assignment target. It first parses in reference
// mode to learn the structure; shallow targets are then reparsed from the
// saved mark in direct mode.
func (c *Compiler) compileLValue(ts *TokenStream) (*LValue, error) {
	mark := ts.Mark()
	lv, err := c.parseTarget(ts, true)
	if err != nil {
		return nil, err
	}
	if lv.Depth > 1 || len(lv.Deferred) > 0 {
		return lv, nil
	}
	ts.Reset(mark)
	return c.parseTarget(ts, false)
}

func (c *Compiler) parseTarget(ts *TokenStream, reference bool) (*LValue, error) {
	tok := ts.Peek()
	name, ok := ts.AssumeIdentifier()
	if !ok {
		if tok.Type == TokenIdentifier {
			return nil, ts.Error(status.ErrReserved, "%s cannot be assigned", tok.Literal)
		}
		return nil, ts.Error(status.ErrLValue, "unexpected %s", ts.Spelling())
	}
	lv := &LValue{Name: name, Reference: reference}

	var steps []lvalueStep
	for {
		if ts.Assume(".") {
			m := ts.Next()
			if m.Type != TokenIdentifier {
				ts.Restore()
				return nil, ts.Error(status.ErrLValue, "member name expected after .")
			}
			steps = append(steps, lvalueStep{member: m.Literal})
			continue
		}
		if ts.Assume("[") {
			idx := bytecode.NewStream()
			expr := c.newExpression(ts, false)
			deferred, err := expr.CompileDeferred(idx)
			if err != nil {
				return nil, err
			}
			if !ts.Assume("]") {
				if ts.Test("..") {
					return nil, ts.Error(status.ErrLValue, "cannot assign to a slice")
				}
				return nil, ts.Error(status.ErrUnterminated, "expected ] after index")
			}
			lv.Deferred = append(lv.Deferred, deferred...)
			steps = append(steps, lvalueStep{index: idx})
			continue
		}
		break
	}
	lv.Depth = len(steps)

	scope, err := parseScope(ts)
	if err != nil {
		return nil, err
	}
	lv.Scope = scope

	if reference {
		lv.Address = append(lv.Address, bytecode.NewIntString(bytecode.OpLocRef, scope, name))
		for _, s := range steps {
			if s.index == nil {
				lv.Address = append(lv.Address, bytecode.NewString(bytecode.OpLocMem, s.member))
				continue
			}
			lv.Address = append(lv.Address, s.index.Instructions()...)
			lv.Address = append(lv.Address, bytecode.New(bytecode.OpLocIdx))
		}
		lv.Store = []bytecode.Instruction{bytecode.New(bytecode.OpSet)}
		return lv, nil
	}

	switch {
	case len(steps) == 0:
		lv.Store = []bytecode.Instruction{bytecode.NewIntString(bytecode.OpStor, scope, name)}
	case steps[0].index != nil:
		lv.Store = append(steps[0].index.Instructions(), bytecode.NewIntString(bytecode.OpStorA, scope, name))
	default:
		lv.Store = []bytecode.Instruction{
			bytecode.NewString(bytecode.OpString, steps[0].member),
			bytecode.NewIntString(bytecode.OpStorR, scope, name),
		}
	}
	return lv, nil
}

// parseScope parses an optional storage class suffix: <GLOBAL>, |ROOT|,
// /COMMON,READONLY/.
func parseScope(ts *TokenStream) (int64, error) {
	var closer string
	switch {
	case ts.Test("<"):
		closer = ">"
	case ts.Test("|"):
		closer = "|"
	case ts.Test("/"):
		closer = "/"
	default:
		return 0, nil
	}
	ts.Next()

	var scope int64
	for {
		tok := ts.Next()
		bit, ok := scopeNames[tok.Literal]
		if tok.Type != TokenIdentifier || !ok {
			ts.Restore()
			return 0, ts.Error(status.ErrLValue, "unknown storage class %s", ts.Spelling())
		}
		scope |= bit
		if ts.Assume(",") {
			continue
		}
		if ts.Assume(closer) {
			return scope, nil
		}
		return 0, ts.Error(status.ErrLValue, "expected %s after storage class", closer)
	}
}

// emitStore appends lv's store sequence, assuming the value to store is
// on top of the stack and, in reference mode, the address below it.
func emitStore(out *bytecode.Stream, lv *LValue) {
	for _, in := range lv.Store {
		out.Append(in)
	}
	for _, in := range lv.Deferred {
		out.Append(in)
	}
}

// compileAssignment compiles target[, target...] = expression. Multiple
// targets receive successive elements of the array value.
func (c *Compiler) compileAssignment(ts *TokenStream, out *bytecode.Stream) error {
	var targets []*LValue
	for {
		lv, err := c.compileLValue(ts)
		if err != nil {
			return err
		}
		targets = append(targets, lv)
		if !ts.Assume(",") {
			break
		}
	}

	if len(targets) == 1 && targets[0].Simple() {
		switch {
		case ts.Assume("++"):
			out.Append(bytecode.NewIntString(bytecode.OpIncr, 1, targets[0].Name))
			return nil
		case ts.Assume("--"):
			out.Append(bytecode.NewIntString(bytecode.OpIncr, -1, targets[0].Name))
			return nil
		}
	}

	if !ts.Assume("=") {
		return ts.Error(status.ErrSyntax, "expected = but found %s", ts.Spelling())
	}

	if len(targets) == 1 {
		lv := targets[0]
		for _, in := range lv.Address {
			out.Append(in)
		}
		if err := c.newExpression(ts, true).Compile(out); err != nil {
			return err
		}
		emitStore(out, lv)
		return nil
	}

	if err := c.newExpression(ts, true).Compile(out); err != nil {
		return err
	}
	for i, lv := range targets {
		out.Emit(bytecode.OpDup)
		out.EmitInt(bytecode.OpInteger, int64(i+1))
		out.Emit(bytecode.OpIndex)
		if len(lv.Address) > 0 {
			for _, in := range lv.Address {
				out.Append(in)
			}
			out.Emit(bytecode.OpSwap)
		}
		emitStore(out, lv)
	}
	out.Emit(bytecode.OpDrop)
	return nil
}
