package bytecode

import (
	"strings"
	"testing"
)

// buildLoop returns a small linked stream with backward and forward
// branches and one label:
//
//	0 STMT 10
//	1 INTEGER 0
//	2 STOR "I"
//	3 LOAD "I"          <- TOP
//	4 BRZ 8
//	5 INCR 1, "I"
//	6 BR 3
//	7 NOOP
//	8 END
func buildLoop() *Stream {
	s := NewStream()
	s.Append(NewInt(OpStmt, 10))
	s.Append(NewInt(OpInteger, 0))
	s.Append(NewIntString(OpStor, 0, "I"))
	s.Append(NewString(OpLoad, "I"))
	s.Append(NewInt(OpBrZ, 8))
	s.Append(NewIntString(OpIncr, 1, "I"))
	s.Append(NewInt(OpBr, 3))
	s.Emit(OpNoop)
	s.Emit(OpEnd)
	s.AddLabel("TOP", 1, 3)
	s.SetLinked(true)
	s.MarkBranchTargets()
	return s
}

func snapshot(s *Stream) ([]Instruction, []Linkage) {
	return s.Instructions(), s.Labels()
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	for pos := 0; pos <= 9; pos++ {
		s := buildLoop()
		before, beforeLabels := snapshot(s)

		s.Insert(pos, New(OpNoop))
		if s.Size() != 10 {
			t.Fatalf("pos %d: Size() after insert = %d, want 10", pos, s.Size())
		}
		s.Remove(pos)

		after, afterLabels := snapshot(s)
		if len(after) != len(before) {
			t.Fatalf("pos %d: size %d, want %d", pos, len(after), len(before))
		}
		for i := range before {
			if !before[i].Same(after[i]) {
				t.Errorf("pos %d: instruction %d = %v, want %v", pos, i, after[i], before[i])
			}
		}
		for i := range beforeLabels {
			if beforeLabels[i] != afterLabels[i] {
				t.Errorf("pos %d: label %v, want %v", pos, afterLabels[i], beforeLabels[i])
			}
		}
	}
}

func TestInsertShiftsTargets(t *testing.T) {
	s := buildLoop()
	s.Insert(3, New(OpNoop))

	if got := s.Get(5).Int; got != 9 {
		t.Errorf("BRZ target = %d, want 9", got)
	}
	if got := s.Get(7).Int; got != 4 {
		t.Errorf("BR target = %d, want 4", got)
	}
	l, _ := s.Label("TOP")
	if l.Address != 4 {
		t.Errorf("label TOP = %d, want 4", l.Address)
	}
	if !s.IsBranchTarget(4) || s.IsBranchTarget(3) {
		t.Error("branch target flag did not move with the instruction")
	}
}

func TestRemoveKeepsTargetOnSuccessor(t *testing.T) {
	s := buildLoop()
	// Remove the NOOP before END; nothing targets it.
	s.Remove(7)
	if got := s.Get(4).Int; got != 7 {
		t.Errorf("BRZ target = %d, want 7", got)
	}
	if s.Get(7).Op != OpEnd || !s.IsBranchTarget(7) {
		t.Errorf("END should now be a branch target at 7: %v", s.Get(7))
	}

	// Remove the target instruction itself: branches fall to the successor.
	s = buildLoop()
	s.Remove(3)
	if got := s.Get(5).Int; got != 3 {
		t.Errorf("BR target = %d, want 3", got)
	}
	if !s.IsBranchTarget(3) {
		t.Error("successor did not inherit branch target flag")
	}
}

func TestSetPreservesBranchTarget(t *testing.T) {
	s := buildLoop()
	s.Set(3, NewString(OpLoad, "J"))
	if !s.Get(3).BranchTarget {
		t.Error("Set dropped branch target flag")
	}
}

func TestConcatRelocatesAndCopies(t *testing.T) {
	a := NewStream()
	a.Emit(OpNoop)
	a.Emit(OpNoop)

	b := NewStream()
	b.Append(NewInt(OpBr, 1))
	b.Emit(OpEnd)
	b.AddLabel("L", 0, 1)

	base := a.Concat(b)
	if base != 2 {
		t.Errorf("base = %d, want 2", base)
	}
	if got := a.Get(2).Int; got != 3 {
		t.Errorf("relocated branch = %d, want 3", got)
	}
	if l, _ := a.Label("L"); l.Address != 3 {
		t.Errorf("relocated label = %d, want 3", l.Address)
	}

	// Editing the source must not affect the copy.
	b.At(0).Int = 99
	if a.Get(2).Int != 3 {
		t.Error("concat aliased instructions")
	}
}

func TestSliceRebases(t *testing.T) {
	s := buildLoop()
	sub := s.Slice(3, 7)
	if sub.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", sub.Size())
	}
	if got := sub.Get(3).Int; got != 0 {
		t.Errorf("rebased BR = %d, want 0", got)
	}
}

func TestOpcodeByName(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, ok := OpcodeByName(op.String())
		if !ok || got != op {
			t.Errorf("OpcodeByName(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if op, ok := OpcodeByName("_integer"); !ok || op != OpInteger {
		t.Errorf("OpcodeByName(_integer) = %v, %v", op, ok)
	}
}

func TestDisassemble(t *testing.T) {
	out := buildLoop().DisassembleWithName("loop")
	for _, want := range []string{"; === loop ===", "linked", "TOP:", ">0003  LOAD \"I\"", " 0004  BRZ 8"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	s := buildLoop()
	d := NewStream()
	d.Append(NewInt(OpInteger, 7))
	s.Data = map[int]*Stream{100: d}

	data, err := MarshalStream(s)
	if err != nil {
		t.Fatalf("MarshalStream: %v", err)
	}
	got, err := UnmarshalStream(data)
	if err != nil {
		t.Fatalf("UnmarshalStream: %v", err)
	}
	if got.Disassemble() != s.Disassemble() {
		t.Errorf("listing mismatch:\n%s\nwant:\n%s", got.Disassemble(), s.Disassemble())
	}
}
