package bytecode

import (
	"fmt"

	"github.com/chazu/mbasic/value"
)

// EvalConstant runs a straight-line block of constant instructions on a
// private stack and returns the single value it leaves. It understands the
// literal pushes plus NEG, CVT, ARRAY, RECORD and LOADREF, which is all a
// pooled constant block can contain. refs resolves LOADREF names and may
// be nil.
func EvalConstant(code []Instruction, refs map[string]*value.Value) (*value.Value, error) {
	var stack []*value.Value
	pop := func(n int) ([]*value.Value, error) {
		if n < 0 {
			return nil, fmt.Errorf("constant block has negative count %d", n)
		}
		if len(stack) < n {
			return nil, fmt.Errorf("constant block underflows the stack")
		}
		out := stack[len(stack)-n:]
		stack = stack[:len(stack)-n]
		return out, nil
	}

	for _, in := range code {
		switch in.Op {
		case OpInteger, OpDouble, OpString, OpBool, OpDecimal:
			v, ok := in.Constant()
			if !ok {
				return nil, fmt.Errorf("bad constant %s", in)
			}
			stack = append(stack, v)

		case OpLoadRef:
			v, ok := refs[in.Str]
			if !ok {
				return nil, fmt.Errorf("unknown constant %s", in.Str)
			}
			stack = append(stack, v)

		case OpNeg:
			args, err := pop(1)
			if err != nil {
				return nil, err
			}
			v, err := args[0].Negate()
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)

		case OpCvt:
			args, err := pop(1)
			if err != nil {
				return nil, err
			}
			v, err := args[0].Coerce(value.Type(in.Int))
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)

		case OpArray:
			elems, err := pop(int(in.Int))
			if err != nil {
				return nil, err
			}
			stack = append(stack, value.NewArray(elems...))

		case OpRecord:
			pairs, err := pop(2 * int(in.Int))
			if err != nil {
				return nil, err
			}
			rec := value.NewRecord()
			for i := 0; i < len(pairs); i += 2 {
				rec.Set(pairs[i].String(), pairs[i+1])
			}
			stack = append(stack, rec)

		case OpNoop, OpStmt:

		default:
			return nil, fmt.Errorf("%s is not allowed in a constant block", in.Op)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("constant block leaves %d values", len(stack))
	}
	return stack[0], nil
}
