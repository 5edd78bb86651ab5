package compiler

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/chazu/mbasic/status"
)

func TestCompileStatement(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"simple store", "A = 1", `STMT 10; INTEGER 1; STOR 0, "A"`},
		{"let", "LET A = B + 1", `STMT 10; LOAD "B"; INTEGER 1; ADD; STOR 0, "A"`},
		{"scoped store", "A<GLOBAL,READONLY> = 1", `STMT 10; INTEGER 1; STOR 9, "A"`},
		{"pipe scope", "A|ROOT| = 1", `STMT 10; INTEGER 1; STOR 4, "A"`},
		{"element store", "A[1] = 2", `STMT 10; INTEGER 2; INTEGER 1; STORA 0, "A"`},
		{"member store", "A.B = 2", `STMT 10; INTEGER 2; STRING "B"; STORR 0, "A"`},
		{"deep target", "A.B[2] = 1", `STMT 10; LOCREF 0, "A"; LOCMEM "B"; INTEGER 2; LOCIDX; INTEGER 1; SET`},
		{"index side effect", "X[B++] = 5", `STMT 10; LOCREF 0, "X"; LOAD "B"; LOCIDX; INTEGER 5; SET; INCR 1, "B"`},
		{"chained", "A, B = C",
			`STMT 10; LOAD "C"; DUP; INTEGER 1; INDEX; STOR 0, "A"; DUP; INTEGER 2; INDEX; STOR 0, "B"; DROP`},
		{"chained mixed", "A[I], B.C = V",
			`STMT 10; LOAD "V"; DUP; INTEGER 1; INDEX; LOAD "I"; STORA 0, "A"; DUP; INTEGER 2; INDEX; STRING "C"; STORR 0, "B"; DROP`},
		{"chained reference", "A.B.C, D = V",
			`STMT 10; LOAD "V"; DUP; INTEGER 1; INDEX; LOCREF 0, "A"; LOCMEM "B"; LOCMEM "C"; SWAP; SET; DUP; INTEGER 2; INDEX; STOR 0, "D"; DROP`},
		{"increment", "X++", `STMT 10; INCR 1, "X"`},
		{"prefix decrement", "--X", `STMT 10; INCR -1, "X"`},
		{"print", "PRINT A; B", `STMT 10; LOAD "A"; PRINT 0; LOAD "B"; PRINT 1`},
		{"print shorthand", `? "HI"`, `STMT 10; STRING "HI"; PRINT 1`},
		{"empty print", "PRINT", `STMT 10; STRING ""; PRINT 1`},
		{"if goto", "IF A THEN 100", `STMT 10; LOAD "A"; IF 1; STMT 10; GOTO 100; IF 3`},
		{"if else", "IF A THEN B = 1 ELSE B = 2",
			`STMT 10; LOAD "A"; IF 1; STMT 10; INTEGER 1; STOR 0, "B"; IF 2; STMT 10; INTEGER 2; STOR 0, "B"; IF 3`},
		{"if compound", "IF A THEN PRINT 1 : PRINT 2 ELSE PRINT 3",
			`STMT 10; LOAD "A"; IF 1; STMT 10; INTEGER 1; PRINT 1; STMT 10; INTEGER 2; PRINT 1; IF 2; STMT 10; INTEGER 3; PRINT 1; IF 3`},
		{"goto label", "GOTO DONE", `STMT 10; GOTO "DONE"`},
		{"goto using", "GOTO USING(N)", `STMT 10; LOAD "N"; JMPIND`},
		{"gosub", "GOSUB 200", `STMT 10; GOSUB 200`},
		{"return", "RETURN", `STMT 10; RETURN`},
		{"end", "END", `STMT 10; END`},
		{"end loop", "END LOOP", `STMT 10; EXITLOOP`},
		{"exit for", "EXIT FOR", `STMT 10; EXITLOOP`},
		{"continue", "CONTINUE", `STMT 10; CONTINUE`},
		{"for", "FOR I = 1 TO 10 STEP 2", `STMT 10; INTEGER 1; INTEGER 10; INTEGER 2; FOR "I"`},
		{"for default step", "FOR I = 1 TO N", `STMT 10; INTEGER 1; LOAD "N"; INTEGER 1; FOR "I"`},
		{"for each", "FOR EACH V IN L", `STMT 10; LOAD "L"; FOREACH "V"`},
		{"next", "NEXT I", `STMT 10; NEXT "I"`},
		{"bare next", "NEXT", `STMT 10; NEXT`},
		{"do while", "DO WHILE X < 3 : X++ : LOOP",
			`STMT 10; DO; LOAD "X"; INTEGER 3; LT; DOWHILE; STMT 10; INCR 1, "X"; STMT 10; LOOP`},
		{"loop until", "LOOP UNTIL X", `STMT 10; LOAD "X"; LOOPUNTIL`},
		{"data", `DATA 1, -2, "x"`, `STMT 10; DATA 5; INTEGER 1; INTEGER -2; STRING "x"`},
		{"read", "READ A, B<GLOBAL>", `STMT 10; READ 0, "A"; READ 1, "B"`},
		{"sub", "SUB F(A, B)", `STMT 10; ENTRY "F"; STOR 0, "A"; STOR 0, "B"`},
		{"call", "CALL F(1, 2)", `STMT 10; INTEGER 2; INTEGER 1; CALL 2, "F"`},
		{"call no args", "CALL F", `STMT 10; CALL 0, "F"`},
		{"dim", "DIM X AS DOUBLE, S AS STRING, N",
			`STMT 10; DOUBLE 0; STOR 0, "X"; STRING ""; STOR 0, "S"; INTEGER 0; STOR 0, "N"`},
		{"on error", "ON ERROR GOTO 900", `STMT 10; ONERR "900"`},
		{"on error label", "ON ERROR GOTO FAIL", `STMT 10; ONERR "FAIL"`},
		{"remark", "REM A = 1 : B = 2", `STMT 10`},
		{"quote remark", "' anything", `STMT 10`},
		{"compound", "A = 1 : B = 2", `STMT 10; INTEGER 1; STOR 0, "A"; STMT 10; INTEGER 2; STOR 0, "B"`},
		{"empty", "", `STMT 10`},
	}

	c := New(Flags{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := c.CompileStatement(10, tc.src)
			if err != nil {
				t.Fatalf("CompileStatement(%q) error: %v", tc.src, err)
			}
			if got := listing(s); got != tc.want {
				t.Errorf("CompileStatement(%q) =\n  %s\nwant\n  %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestStatementSeparator(t *testing.T) {
	c := New(Flags{Separator: "#"})
	s, err := c.CompileStatement(20, "A = 1 # B = 2")
	if err != nil {
		t.Fatalf("CompileStatement: %v", err)
	}
	want := `STMT 20; INTEGER 1; STOR 0, "A"; STMT 20; INTEGER 2; STOR 0, "B"`
	if got := listing(s); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	if _, err := c.CompileStatement(20, "A = 1 : B = 2"); !errors.Is(err, status.ErrSyntax) {
		t.Errorf("colon with # separator: error = %v, want syntax error", err)
	}
}

func TestLValueModes(t *testing.T) {
	tests := []struct {
		src       string
		depth     int
		reference bool
		scope     int64
	}{
		{"A", 0, false, 0},
		{"A[1]", 1, false, 0},
		{"A.B", 1, false, 0},
		{"A.B[1]", 2, true, 0},
		{"A[I++]", 1, true, 0},
		{"A/COMMON,STATIC/", 0, false, ScopeCommon | ScopeStatic},
		{"A<PARENT>", 0, false, ScopeParent},
	}
	c := New(Flags{})
	for _, tc := range tests {
		ts, err := NewTokenStream(tc.src, 1, ":")
		if err != nil {
			t.Fatalf("NewTokenStream(%q): %v", tc.src, err)
		}
		lv, err := c.compileLValue(ts)
		if err != nil {
			t.Errorf("compileLValue(%q) error: %v", tc.src, err)
			continue
		}
		if lv.Depth != tc.depth || lv.Reference != tc.reference || lv.Scope != tc.scope {
			t.Errorf("compileLValue(%q) = depth %d ref %v scope %d, want depth %d ref %v scope %d",
				tc.src, lv.Depth, lv.Reference, lv.Scope, tc.depth, tc.reference, tc.scope)
		}
		if !ts.AtEOF() {
			t.Errorf("compileLValue(%q) left %s unconsumed", tc.src, ts.Spelling())
		}
	}
}

func TestStatementErrors(t *testing.T) {
	tests := []struct {
		src  string
		want *status.Error
	}{
		{"THEN = 1", status.ErrUnknownVerb},
		{"LET THEN = 1", status.ErrReserved},
		{"A =", status.ErrExpression},
		{"A B", status.ErrSyntax},
		{"A = 1 B", status.ErrSyntax},
		{"A.B[1..2] = 3", status.ErrLValue},
		{"A<FOO> = 1", status.ErrLValue},
		{"A[1 = 2", status.ErrUnterminated},
		{"IF A B = 1", status.ErrSyntax},
		{"IF A THEN", status.ErrSyntax},
		{"FOR I = 1 10", status.ErrSyntax},
		{"FOR 1 = 1 TO 2", status.ErrLValue},
		{"DATA X", status.ErrSyntax},
		{"GOTO", status.ErrSyntax},
		{"GOTO USING N", status.ErrParen},
		{"ON GOTO 10", status.ErrSyntax},
		{"SUB F(A B)", status.ErrParen},
		{"DIM X AS WIDGET", status.ErrSyntax},
		{"EXIT", status.ErrSyntax},
		{"++", status.ErrLValue},
	}
	c := New(Flags{})
	for _, tc := range tests {
		_, err := c.CompileStatement(10, tc.src)
		if !errors.Is(err, tc.want) {
			t.Errorf("CompileStatement(%q) error = %v, want %v", tc.src, err, tc.want.Code)
		}
	}
}

func TestStatementErrorCarriesLine(t *testing.T) {
	_, err := New(Flags{}).CompileStatement(130, "A = (1")
	var se *status.Error
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a *status.Error", err)
	}
	if se.Line != 130 {
		t.Errorf("Line = %d, want 130", se.Line)
	}
	if se.Source != "A = (1" {
		t.Errorf("Source = %q", se.Source)
	}
}

func TestFragmentOptimizer(t *testing.T) {
	ctrl := gomock.NewController(t)
	opt := NewMockFragmentOptimizer(ctrl)

	c := New(Flags{Optimize: true, DeadCode: true}, WithFragmentOptimizer(opt))
	opt.EXPECT().Optimize(gomock.Any(), true).Return(2).Times(1)
	if _, err := c.CompileStatement(10, "A = 1 + 2"); err != nil {
		t.Fatalf("CompileStatement: %v", err)
	}

	// Disabled optimization never reaches the collaborator.
	off := New(Flags{}, WithFragmentOptimizer(opt))
	if _, err := off.CompileStatement(10, "A = 1 + 2"); err != nil {
		t.Fatalf("CompileStatement: %v", err)
	}
}
