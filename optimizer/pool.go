package optimizer

import (
	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/value"
)

// Pool is the set of pooled constants defined in a linked stream's
// prologue: consecutive CONSTBEGIN ... CONSTEND blocks starting at
// position 0.
type Pool struct {
	names  []string
	values map[string]*value.Value
	end    int
}

// NewPool returns an empty pool whose prologue ends at position 0.
func NewPool() *Pool {
	return &Pool{values: make(map[string]*value.Value)}
}

// ScanPool reads the prologue of s.
func ScanPool(s *bytecode.Stream) *Pool {
	p := NewPool()
	for p.end < s.Size() {
		in := s.Get(p.end)
		if in.Op != bytecode.OpConstBegin {
			break
		}
		end := FindConstEnd(s, p.end)
		if end < 0 {
			break
		}
		if v, err := bytecode.EvalConstant(Body(s, p.end+1, end), p.values); err == nil {
			p.names = append(p.names, in.Str)
			p.values[in.Str] = v
		}
		p.end = end + 1
	}
	return p
}

// FindConstEnd returns the position of the CONSTEND closing the block that
// opens at begin, or -1.
func FindConstEnd(s *bytecode.Stream, begin int) int {
	name := s.Get(begin).Str
	for i := begin + 1; i < s.Size(); i++ {
		in := s.Get(i)
		if in.Op == bytecode.OpConstEnd && in.Str == name {
			return i
		}
	}
	return -1
}

// Body returns copies of the instructions in [from, to).
func Body(s *bytecode.Stream, from, to int) []bytecode.Instruction {
	out := make([]bytecode.Instruction, 0, to-from)
	for i := from; i < to; i++ {
		in := s.Get(i)
		in.BranchTarget = false
		out = append(out, in)
	}
	return out
}

// End returns the position after the last prologue block.
func (p *Pool) End() int { return p.end }

// Len returns the number of distinct pooled constants.
func (p *Pool) Len() int { return len(p.names) }

// Names returns the pooled constant names in prologue order.
func (p *Pool) Names() []string { return append([]string(nil), p.names...) }

// Values resolves pooled names, aliases included.
func (p *Pool) Values() map[string]*value.Value { return p.values }

// Has reports whether name is pooled or aliased.
func (p *Pool) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Lookup returns the pooled constant structurally equal to v.
func (p *Pool) Lookup(v *value.Value) (string, bool) {
	for _, name := range p.names {
		if p.values[name].Match(v) {
			return name, true
		}
	}
	return "", false
}

// Alias records that name evaluates to the pooled constant canonical.
func (p *Pool) Alias(name, canonical string) {
	p.values[name] = p.values[canonical]
}

// Insert appends a block defining name to the prologue of s and returns
// the number of instructions inserted. Everything at or after the old
// prologue end moves up.
func (p *Pool) Insert(s *bytecode.Stream, name string, body []bytecode.Instruction, v *value.Value) int {
	pos := p.end
	s.Insert(pos, bytecode.NewString(bytecode.OpConstBegin, name))
	pos++
	for _, in := range body {
		s.Insert(pos, in)
		pos++
	}
	s.Insert(pos, bytecode.NewString(bytecode.OpConstEnd, name))
	pos++

	n := pos - p.end
	p.end = pos
	p.names = append(p.names, name)
	p.values[name] = v
	return n
}

// Rename rewrites LOADREF operands through renames and returns how many
// changed.
func Rename(s *bytecode.Stream, renames map[string]string) int {
	if len(renames) == 0 {
		return 0
	}
	n := 0
	for i := 0; i < s.Size(); i++ {
		in := s.At(i)
		if in.Op != bytecode.OpLoadRef {
			continue
		}
		if to, ok := renames[in.Str]; ok {
			in.Str = to
			n++
		}
	}
	return n
}
