package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/mbasic/value"
)

// Instruction is one opcode plus its optional operands. Each operand has a
// presence flag: a missing integer operand is distinct from an integer
// operand of zero, and the pattern optimizer can match on either.
//
// Instructions are values. Streams copy them on append and concatenation, so
// editing one stream never changes another.
type Instruction struct {
	Op        Opcode  `cbor:"1,keyasint"`
	Int       int64   `cbor:"2,keyasint,omitempty"`
	Double    float64 `cbor:"3,keyasint,omitempty"`
	Str       string  `cbor:"4,keyasint,omitempty"`
	HasInt    bool    `cbor:"5,keyasint,omitempty"`
	HasDouble bool    `cbor:"6,keyasint,omitempty"`
	HasStr    bool    `cbor:"7,keyasint,omitempty"`

	// BranchTarget is set when some branch-class instruction references
	// this position. It belongs to the position, not the operation.
	BranchTarget bool `cbor:"8,keyasint,omitempty"`
}

// New returns an instruction with no operands.
func New(op Opcode) Instruction {
	return Instruction{Op: op}
}

// NewInt returns an instruction with an integer operand.
func NewInt(op Opcode, i int64) Instruction {
	return Instruction{Op: op, Int: i, HasInt: true}
}

// NewDouble returns an instruction with a double operand.
func NewDouble(op Opcode, d float64) Instruction {
	return Instruction{Op: op, Double: d, HasDouble: true}
}

// NewString returns an instruction with a string operand.
func NewString(op Opcode, s string) Instruction {
	return Instruction{Op: op, Str: s, HasStr: true}
}

// NewIntString returns an instruction with integer and string operands.
func NewIntString(op Opcode, i int64, s string) Instruction {
	return Instruction{Op: op, Int: i, HasInt: true, Str: s, HasStr: true}
}

// SetInt sets the integer operand.
func (in *Instruction) SetInt(i int64) {
	in.Int = i
	in.HasInt = true
}

// SetDouble sets the double operand.
func (in *Instruction) SetDouble(d float64) {
	in.Double = d
	in.HasDouble = true
}

// SetStr sets the string operand.
func (in *Instruction) SetStr(s string) {
	in.Str = s
	in.HasStr = true
}

// ClearInt removes the integer operand.
func (in *Instruction) ClearInt() {
	in.Int = 0
	in.HasInt = false
}

// ClearStr removes the string operand.
func (in *Instruction) ClearStr() {
	in.Str = ""
	in.HasStr = false
}

// Address returns the absolute branch target of a branch-class instruction.
func (in Instruction) Address() (int, bool) {
	if !in.Op.IsBranch() || !in.HasInt {
		return 0, false
	}
	return int(in.Int), true
}

// Same reports whether two instructions have the same opcode and operands.
// The branch target flag is ignored.
func (in Instruction) Same(o Instruction) bool {
	return in.Op == o.Op &&
		in.HasInt == o.HasInt && in.Int == o.Int &&
		in.HasDouble == o.HasDouble && in.Double == o.Double &&
		in.HasStr == o.HasStr && in.Str == o.Str
}

// Constant returns the literal value pushed by a constant instruction.
func (in Instruction) Constant() (*value.Value, bool) {
	switch in.Op {
	case OpInteger:
		return value.NewInteger(in.Int), true
	case OpDouble:
		return value.NewDouble(in.Double), true
	case OpString:
		return value.NewString(in.Str), true
	case OpBool:
		return value.NewBoolean(in.Int != 0), true
	case OpDecimal:
		v, err := value.ParseDecimal(in.Str)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// FromConstant returns the instruction that pushes a scalar value.
func FromConstant(v *value.Value) (Instruction, bool) {
	switch v.Type() {
	case value.Integer:
		return NewInt(OpInteger, v.Int()), true
	case value.Double:
		return NewDouble(OpDouble, v.Float()), true
	case value.String:
		return NewString(OpString, v.String()), true
	case value.Boolean:
		b := int64(0)
		if v.Bool() {
			b = 1
		}
		return NewInt(OpBool, b), true
	case value.Decimal:
		return NewString(OpDecimal, v.String()), true
	}
	return Instruction{}, false
}

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	var ops []string
	if in.HasInt {
		ops = append(ops, strconv.FormatInt(in.Int, 10))
	}
	if in.HasDouble {
		ops = append(ops, value.FormatDouble(in.Double))
	}
	if in.HasStr {
		ops = append(ops, fmt.Sprintf("%q", in.Str))
	}
	if len(ops) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(ops, ", "))
	}
	return sb.String()
}
