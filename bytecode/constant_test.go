package bytecode

import (
	"testing"

	"github.com/chazu/mbasic/value"
)

func TestEvalConstant(t *testing.T) {
	code := []Instruction{
		NewInt(OpInteger, 1),
		NewDouble(OpDouble, 2.5),
		NewString(OpString, "abc"),
		New(OpNeg),
		NewInt(OpArray, 3),
	}
	got, err := EvalConstant(code, nil)
	if err != nil {
		t.Fatalf("EvalConstant: %v", err)
	}
	want := value.NewArray(value.NewInteger(1), value.NewDouble(2.5), value.NewString("cba"))
	if !got.Match(want) {
		t.Errorf("EvalConstant = %s, want %s", got.Format(), want.Format())
	}
}

func TestEvalConstantRecordAndRefs(t *testing.T) {
	refs := map[string]*value.Value{
		"__CONST$A": value.NewArray(value.NewInteger(7)),
	}
	code := []Instruction{
		NewString(OpString, "N"),
		NewInt(OpInteger, 5),
		NewInt(OpCvt, int64(value.Double)),
		NewString(OpString, "L"),
		NewString(OpLoadRef, "__CONST$A"),
		NewInt(OpRecord, 2),
	}
	got, err := EvalConstant(code, refs)
	if err != nil {
		t.Fatalf("EvalConstant: %v", err)
	}
	n, ok := got.Field("N")
	if !ok || n.Type() != value.Double || n.Float() != 5 {
		t.Errorf("N = %v, want DOUBLE 5", n)
	}
	l, ok := got.Field("L")
	if !ok || !l.Match(refs["__CONST$A"]) {
		t.Errorf("L = %v, want pooled array", l)
	}
}

func TestEvalConstantRejects(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
	}{
		{"variable", []Instruction{NewString(OpLoad, "X")}},
		{"underflow", []Instruction{NewInt(OpArray, 2)}},
		{"two values", []Instruction{NewInt(OpInteger, 1), NewInt(OpInteger, 2)}},
		{"unknown ref", []Instruction{NewString(OpLoadRef, "NOPE")}},
		{"negative array count", []Instruction{NewInt(OpInteger, 1), NewInt(OpArray, -1)}},
		{"negative record count", []Instruction{NewString(OpString, "K"), NewInt(OpInteger, 1), NewInt(OpRecord, -1)}},
	}
	for _, tc := range tests {
		if _, err := EvalConstant(tc.code, nil); err == nil {
			t.Errorf("%s: EvalConstant succeeded, want error", tc.name)
		}
	}
}
