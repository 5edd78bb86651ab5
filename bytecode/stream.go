package bytecode

import (
	"fmt"
	"sort"
)

// Linkage records where a label lives in a linked stream. One exists for
// each user label and one for each subroutine entry point.
type Linkage struct {
	StatementID int    `cbor:"1,keyasint"`
	Address     int    `cbor:"2,keyasint"`
	Name        string `cbor:"3,keyasint"`
}

// EntryLabel returns the synthesized label name of a subroutine entry.
func EntryLabel(name string) string {
	return "__entry$" + name
}

// Stream is an ordered, editable sequence of instructions. Branch operands
// are indexes into the stream's own slice, never references, so Insert and
// Remove can keep every branch operand and label address consistent.
type Stream struct {
	code   []Instruction
	labels map[string]*Linkage

	linked          bool
	hasErrorHandler bool

	// Data maps a DATA statement's line number to its literal instructions.
	// Built by the linker for sequential READ consumption.
	Data map[int]*Stream
}

// NewStream creates an empty, unlinked stream.
func NewStream() *Stream {
	return &Stream{
		code:   make([]Instruction, 0, 32),
		labels: make(map[string]*Linkage),
	}
}

// Size returns the number of instructions.
func (s *Stream) Size() int {
	return len(s.code)
}

// Append adds an instruction and returns its position.
func (s *Stream) Append(in Instruction) int {
	s.code = append(s.code, in)
	return len(s.code) - 1
}

// Emit appends an instruction with no operands.
func (s *Stream) Emit(op Opcode) int {
	return s.Append(New(op))
}

// EmitInt appends an instruction with an integer operand.
func (s *Stream) EmitInt(op Opcode, i int64) int {
	return s.Append(NewInt(op, i))
}

// EmitString appends an instruction with a string operand.
func (s *Stream) EmitString(op Opcode, str string) int {
	return s.Append(NewString(op, str))
}

// Get returns a copy of the instruction at pos.
func (s *Stream) Get(pos int) Instruction {
	return s.code[pos]
}

// At returns a pointer to the instruction at pos for in-place operand
// edits. The pointer is invalidated by Insert, Remove and Append.
func (s *Stream) At(pos int) *Instruction {
	return &s.code[pos]
}

// Set replaces the instruction at pos. The branch target flag belongs to
// the position and is carried over to the new instruction.
func (s *Stream) Set(pos int, in Instruction) {
	in.BranchTarget = in.BranchTarget || s.code[pos].BranchTarget
	s.code[pos] = in
}

// Instructions returns a copy of the instruction slice.
func (s *Stream) Instructions() []Instruction {
	return append([]Instruction(nil), s.code...)
}

// Insert places in at pos, shifting later instructions up. Every branch
// operand and label address at or after pos moves up by one.
func (s *Stream) Insert(pos int, in Instruction) {
	if pos < 0 || pos > len(s.code) {
		panic(fmt.Sprintf("bytecode: insert position %d out of range [0,%d]", pos, len(s.code)))
	}
	s.relocate(pos, 1)
	in.BranchTarget = false
	s.code = append(s.code, Instruction{})
	copy(s.code[pos+1:], s.code[pos:])
	s.code[pos] = in
}

// Remove deletes the instruction at pos. Branch operands and label
// addresses beyond pos move down by one; those equal to pos now refer to
// the following instruction, which inherits the branch target flag.
func (s *Stream) Remove(pos int) {
	if pos < 0 || pos >= len(s.code) {
		panic(fmt.Sprintf("bytecode: remove position %d out of range [0,%d)", pos, len(s.code)))
	}
	wasTarget := s.code[pos].BranchTarget
	s.code = append(s.code[:pos], s.code[pos+1:]...)
	s.relocate(pos+1, -1)
	if wasTarget && pos < len(s.code) {
		s.code[pos].BranchTarget = true
	}
}

// RemoveRange deletes n instructions starting at pos.
func (s *Stream) RemoveRange(pos, n int) {
	for i := 0; i < n; i++ {
		s.Remove(pos)
	}
}

// relocate adds delta to every branch operand and label address >= from.
func (s *Stream) relocate(from, delta int) {
	for i := range s.code {
		in := &s.code[i]
		if addr, ok := in.Address(); ok && addr >= from {
			in.Int = int64(addr + delta)
		}
	}
	for _, l := range s.labels {
		if l.Address >= from {
			l.Address += delta
		}
	}
}

// Concat appends deep copies of other's instructions and labels, relocating
// other's branch operands by the current size. Returns the base position.
func (s *Stream) Concat(other *Stream) int {
	base := len(s.code)
	for _, in := range other.code {
		if addr, ok := in.Address(); ok {
			in.Int = int64(addr + base)
		}
		s.code = append(s.code, in)
	}
	for name, l := range other.labels {
		s.labels[name] = &Linkage{StatementID: l.StatementID, Address: l.Address + base, Name: name}
	}
	if other.hasErrorHandler {
		s.hasErrorHandler = true
	}
	return base
}

// Slice returns a new stream holding copies of instructions [from, to).
// Branch operands are rebased so that they remain relative to the slice.
func (s *Stream) Slice(from, to int) *Stream {
	out := NewStream()
	for _, in := range s.code[from:to] {
		if addr, ok := in.Address(); ok {
			in.Int = int64(addr - from)
		}
		in.BranchTarget = false
		out.code = append(out.code, in)
	}
	return out
}

// Clone returns a deep copy of the stream.
func (s *Stream) Clone() *Stream {
	out := NewStream()
	out.code = append(out.code, s.code...)
	for name, l := range s.labels {
		c := *l
		out.labels[name] = &c
	}
	out.linked = s.linked
	out.hasErrorHandler = s.hasErrorHandler
	if s.Data != nil {
		out.Data = make(map[int]*Stream, len(s.Data))
		for line, d := range s.Data {
			out.Data[line] = d.Clone()
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// AddLabel records a label. It returns false if the name already exists.
func (s *Stream) AddLabel(name string, statementID, address int) bool {
	if _, exists := s.labels[name]; exists {
		return false
	}
	s.labels[name] = &Linkage{StatementID: statementID, Address: address, Name: name}
	return true
}

// Label looks up a label.
func (s *Stream) Label(name string) (Linkage, bool) {
	l, ok := s.labels[name]
	if !ok {
		return Linkage{}, false
	}
	return *l, true
}

// Labels returns all labels ordered by address, then name.
func (s *Stream) Labels() []Linkage {
	out := make([]Linkage, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ---------------------------------------------------------------------------
// State flags
// ---------------------------------------------------------------------------

// Linked reports whether branch operands are absolute addresses.
func (s *Stream) Linked() bool { return s.linked }

// SetLinked marks the stream as linked or as a fragment.
func (s *Stream) SetLinked(linked bool) { s.linked = linked }

// HasErrorHandler reports whether the stream installs an error handler.
func (s *Stream) HasErrorHandler() bool { return s.hasErrorHandler }

// SetErrorHandler records whether the stream installs an error handler.
func (s *Stream) SetErrorHandler(b bool) { s.hasErrorHandler = b }

// ---------------------------------------------------------------------------
// Branch targets
// ---------------------------------------------------------------------------

// MarkBranchTargets recomputes the branch target flag of every instruction
// from the current branch operands and label addresses.
func (s *Stream) MarkBranchTargets() {
	for i := range s.code {
		s.code[i].BranchTarget = false
	}
	for _, in := range s.code {
		if addr, ok := in.Address(); ok && addr >= 0 && addr < len(s.code) {
			s.code[addr].BranchTarget = true
		}
	}
	for _, l := range s.labels {
		if l.Address >= 0 && l.Address < len(s.code) {
			s.code[l.Address].BranchTarget = true
		}
	}
}

// IsBranchTarget reports whether pos is referenced by a branch or label.
func (s *Stream) IsBranchTarget(pos int) bool {
	return pos >= 0 && pos < len(s.code) && s.code[pos].BranchTarget
}

// ReferencesTo counts branch operands that target pos, ignoring the
// instruction at skip (pass -1 to count all).
func (s *Stream) ReferencesTo(pos, skip int) int {
	n := 0
	for i, in := range s.code {
		if i == skip {
			continue
		}
		if addr, ok := in.Address(); ok && addr == pos {
			n++
		}
	}
	for _, l := range s.labels {
		if l.Address == pos {
			n++
		}
	}
	return n
}
