package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
)

// listing renders a stream as "OP a; OP b" for compact comparisons.
func listing(s *bytecode.Stream) string {
	parts := make([]string, 0, s.Size())
	for _, in := range s.Instructions() {
		parts = append(parts, in.String())
	}
	return strings.Join(parts, "; ")
}

func TestCompileExpression(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "INTEGER 1; INTEGER 2; INTEGER 3; MUL; ADD"},
		{"(1 + 2) * 3", "INTEGER 1; INTEGER 2; ADD; INTEGER 3; MUL"},
		{"2 ^ 3 ^ 2", "INTEGER 2; INTEGER 3; INTEGER 2; EXP; EXP"},
		{"A < 3 AND NOT B", `LOAD "A"; INTEGER 3; LT; LOAD "B"; NOT; AND`},
		{"A <> B OR C", `LOAD "A"; LOAD "B"; NE; LOAD "C"; OR`},
		{"10 MOD 3", "INTEGER 10; INTEGER 3; MOD"},
		{"-5", "INTEGER -5"},
		{"-2.5", "DOUBLE -2.5"},
		{`-"abc"`, `STRING "cba"`},
		{"-X", `LOAD "X"; NEG`},
		{"19.99d", `DECIMAL "19.99"`},
		{"TRUE", "BOOL 1"},
		{`"a" || B`, `STRING "a"; LOAD "B"; CONCAT`},
		{"++N * 2", `INCR 1, "N"; LOAD "N"; INTEGER 2; MUL`},
		{"S[1..3]", `LOAD "S"; INTEGER 1; INTEGER 3; SLICE`},
		{"P.NAME", `LOAD "P"; MEMBER "NAME"`},
		{"OBJ->SIZE(1)", `LOAD "OBJ"; INTEGER 1; METHOD 1, "SIZE"`},
		{"2 OF X", `INTEGER 2; LOAD "X"; SWAP; INDEX`},
		{"A IN (1, 2)", `LOAD "A"; INTEGER 1; INTEGER 2; IN 2`},
		{"L WHERE X > 2", `LOAD "L"; WHERE "X > 2"`},
		{"A MIN 3", `LOAD "A"; INTEGER 3; MIN`},
		{"IF A THEN 1 ELSE 2", `LOAD "A"; IF 1; INTEGER 1; IF 2; INTEGER 2; IF 3`},
		{"[1, 2]", "INTEGER 1; INTEGER 2; ARRAY 2"},
		{"[]", "ARRAY 0"},
		{`{NAME: "BOB", "age": 3}`, `STRING "NAME"; STRING "BOB"; STRING "AGE"; INTEGER 3; RECORD 2`},
		{"F(1)(2)", `INTEGER 1; CALLF 1, "F"; INTEGER 2; CALLFREF 1`},
	}

	c := New(Flags{})
	for _, tc := range tests {
		s, err := c.CompileExpression(tc.src)
		if err != nil {
			t.Errorf("CompileExpression(%q) error: %v", tc.src, err)
			continue
		}
		if got := listing(s); got != tc.want {
			t.Errorf("CompileExpression(%q) =\n  %s\nwant\n  %s", tc.src, got, tc.want)
		}
	}
}

func TestDeferredPostIncrement(t *testing.T) {
	c := New(Flags{})
	s, err := c.CompileExpression("X[B++]")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	want := `LOAD "X"; LOAD "B"; INDEX; INCR 1, "B"`
	if got := listing(s); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	// The increment follows the whole chain, not just the index.
	s, err = c.CompileExpression("X[B--].Y + 1")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	want = `LOAD "X"; LOAD "B"; INDEX; MEMBER "Y"; INTEGER 1; ADD; INCR -1, "B"`
	if got := listing(s); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestConditionalBranchIncrement(t *testing.T) {
	c := New(Flags{})
	tests := []struct {
		src  string
		want string
	}{
		{"IF C THEN A++ ELSE B", `LOAD "C"; IF 1; LOAD "A"; INCR 1, "A"; IF 2; LOAD "B"; IF 3`},
		{"IF C THEN A ELSE B--", `LOAD "C"; IF 1; LOAD "A"; IF 2; LOAD "B"; INCR -1, "B"; IF 3`},
		{"IF C++ THEN A++ ELSE B", `LOAD "C"; IF 1; LOAD "A"; INCR 1, "A"; IF 2; LOAD "B"; IF 3; INCR 1, "C"`},
	}
	for _, tc := range tests {
		s, err := c.CompileExpression(tc.src)
		if err != nil {
			t.Errorf("CompileExpression(%q) error: %v", tc.src, err)
			continue
		}
		if got := listing(s); got != tc.want {
			t.Errorf("CompileExpression(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}

	code, err := c.CompileStatement(10, "Y = IF C THEN A++ ELSE B")
	if err != nil {
		t.Fatalf("CompileStatement: %v", err)
	}
	want := `STMT 10; LOAD "C"; IF 1; LOAD "A"; INCR 1, "A"; IF 2; LOAD "B"; IF 3; STOR 0, "Y"`
	if got := listing(code); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestInlineRegistry(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"DOUBLE(5)", "INTEGER 5; CVT 2"},
		{"STRING(N)", `LOAD "N"; CVT 5`},
		{"LENGTH(S$)", `LOAD "S$"; LENGTH`},
		{"ABS(-3)", "INTEGER -3; ABS"},
		{"MAX(1, 2, 3)", "INTEGER 3; INTEGER 2; INTEGER 1; MAX; MAX"},
		{"UPPERCASE(S)", `LOAD "S"; CALLF 1, "UPPERCASE"`},
		{"F()", `CALLF 0, "F"`},
	}
	c := New(Flags{})
	for _, tc := range tests {
		s, err := c.CompileExpression(tc.src)
		if err != nil {
			t.Errorf("CompileExpression(%q) error: %v", tc.src, err)
			continue
		}
		if got := listing(s); got != tc.want {
			t.Errorf("CompileExpression(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestRegistryUnknownFunction(t *testing.T) {
	out := bytecode.NewStream()
	done, err := DefaultRegistry().CompileInline("NOPE", 1, out, true)
	if done {
		t.Error("CompileInline(NOPE) reported done")
	}
	if !errors.Is(err, status.ErrUnknownFunc) {
		t.Errorf("CompileInline(NOPE) error = %v, want %v", err, status.ErrUnknownFunc)
	}
	if out.Size() != 0 {
		t.Errorf("stream changed: %d instructions", out.Size())
	}
}

func TestInlineCollaborator(t *testing.T) {
	ctrl := gomock.NewController(t)
	inline := NewMockInlineCompiler(ctrl)
	c := New(Flags{}, WithInline(inline))

	inline.EXPECT().CompileInline("F", 2, gomock.Any(), true).Return(false, nil)
	s, err := c.CompileExpression("F(1, 2)")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	if got, want := listing(s), `INTEGER 2; INTEGER 1; CALLF 2, "F"`; got != want {
		t.Errorf("unknown function: got %s, want %s", got, want)
	}

	inline.EXPECT().CompileInline("G", 1, gomock.Any(), false).DoAndReturn(
		func(name string, argc int, out *bytecode.Stream, constant bool) (bool, error) {
			out.Emit(bytecode.OpAbs)
			return true, nil
		})
	s, err = c.CompileExpression("G(X)")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	if got, want := listing(s), `LOAD "X"; ABS`; got != want {
		t.Errorf("inline function: got %s, want %s", got, want)
	}

	inline.EXPECT().CompileInline("K", 1, gomock.Any(), true).Return(false, status.New(status.ErrUnknownFunc, "K"))
	s, err = c.CompileExpression("K(1)")
	if err != nil {
		t.Fatalf("CompileExpression: %v", err)
	}
	if got, want := listing(s), `INTEGER 1; CALLF 1, "K"`; got != want {
		t.Errorf("unknown function status: got %s, want %s", got, want)
	}

	inline.EXPECT().CompileInline("H", 0, gomock.Any(), true).Return(false, status.New(status.ErrArgCount, "H"))
	if _, err := c.CompileExpression("H()"); !errors.Is(err, status.ErrArgCount) {
		t.Errorf("collaborator failure not propagated: %v", err)
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		src  string
		want *status.Error
	}{
		{"(1 + 2", status.ErrParen},
		{"[1, 2", status.ErrUnterminated},
		{`"abc`, status.ErrUnterminated},
		{"A.", status.ErrExpression},
		{"1 +", status.ErrExpression},
		{"1 2", status.ErrExpression},
		{"IF A THEN 1", status.ErrExpression},
		{"THEN", status.ErrReserved},
		{"LENGTH(1, 2)", status.ErrArgCount},
		{"F(1 2)", status.ErrParen},
	}
	c := New(Flags{})
	for _, tc := range tests {
		_, err := c.CompileExpression(tc.src)
		if !errors.Is(err, tc.want) {
			t.Errorf("CompileExpression(%q) error = %v, want %v", tc.src, err, tc.want.Code)
		}
		if status.KindOf(err) != status.KindSyntax {
			t.Errorf("CompileExpression(%q) kind = %v, want syntax", tc.src, status.KindOf(err))
		}
	}
}

func TestExpressionErrorLocation(t *testing.T) {
	_, err := New(Flags{}).CompileExpression("1 + * 2")
	var se *status.Error
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a *status.Error", err)
	}
	if se.Column != 5 {
		t.Errorf("Column = %d, want 5", se.Column)
	}
}

func TestConstantPooling(t *testing.T) {
	c := New(Flags{PoolConstants: true})

	s, err := c.CompileStatement(10, "A = [1, [2, 3]]")
	if err != nil {
		t.Fatalf("CompileStatement: %v", err)
	}
	code := s.Instructions()
	ops := make([]bytecode.Opcode, len(code))
	for i, in := range code {
		ops[i] = in.Op
	}
	wantOps := []bytecode.Opcode{
		bytecode.OpStmt, bytecode.OpConstBegin,
		bytecode.OpInteger, bytecode.OpInteger, bytecode.OpInteger, bytecode.OpArray, bytecode.OpArray,
		bytecode.OpConstEnd, bytecode.OpLoadRef, bytecode.OpStor,
	}
	if len(ops) != len(wantOps) {
		t.Fatalf("got %s", listing(s))
	}
	for i := range ops {
		if ops[i] != wantOps[i] {
			t.Errorf("op[%d] = %v, want %v", i, ops[i], wantOps[i])
		}
	}
	name := code[1].Str
	if !strings.HasPrefix(name, ConstPrefix) || code[7].Str != name || code[8].Str != name {
		t.Errorf("constant names disagree: %s", listing(s))
	}

	// The same literal elsewhere gets the same name.
	s2, _ := c.CompileStatement(20, "B = [1, [2, 3]]")
	if s2.Get(1).Str != name {
		t.Errorf("name = %q, want %q", s2.Get(1).Str, name)
	}

	// A non-constant element disables pooling.
	s3, _ := c.CompileStatement(30, "C = [X, 1]")
	if got, want := listing(s3), `STMT 30; LOAD "X"; INTEGER 1; ARRAY 2; STOR 0, "C"`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	// Standalone expressions are never pooled.
	s4, _ := c.CompileExpression("[1, 2]")
	if got, want := listing(s4), "INTEGER 1; INTEGER 2; ARRAY 2"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
