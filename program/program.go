// Package program models a BASIC program as the linker sees it: an ordered
// list of numbered statements, each with optional label and source text
// and an optional compiled fragment.
package program

import (
	"bufio"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/status"
)

// State is the link lifecycle of a program.
type State int

const (
	Unlinked State = iota
	Linking
	Linked
)

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linking:
		return "linking"
	case Linked:
		return "linked"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Statement is one program line.
type Statement struct {
	Line   int
	Label  string
	Source string

	// Code is the compiled fragment, nil until compiled. Once the program
	// is linked only the first statement holds code: the fused stream.
	Code *bytecode.Stream
}

// Program is an ordered list of statements plus link state.
type Program struct {
	ID         uuid.UUID
	Name       string
	Statements []*Statement
	Protected  bool

	state State
}

// New returns an empty program.
func New(name string) *Program {
	return &Program{ID: uuid.New(), Name: name}
}

// Parse splits source text into statements. Each line may start with a
// line number and then a "LABEL:" prefix. Lines without a number are
// numbered one past the previous line. Numbers must ascend.
func Parse(name, src string) (*Program, error) {
	p := New(name)
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	prev := 0
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		st := SplitLine(text)
		if st.Line == 0 {
			st.Line = prev + 1
		} else if st.Line <= prev {
			return nil, status.New(status.ErrSyntax, "line %d out of order", st.Line).At(n, 1).WithSource(text)
		}
		prev = st.Line
		p.Statements = append(p.Statements, st)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// SplitLine separates a source line into its line number (0 if absent),
// label and statement text.
func SplitLine(text string) *Statement {
	st := &Statement{}
	rest := strings.TrimSpace(text)

	toks := compiler.Tokenize(rest)
	if toks[0].Type == compiler.TokenInteger && len(toks) > 1 {
		if n, err := strconv.Atoi(toks[0].Literal); err == nil && n > 0 {
			st.Line = n
			rest = strings.TrimSpace(rest[toks[1].Pos.Offset:])
			toks = compiler.Tokenize(rest)
		}
	}

	if len(toks) > 2 && toks[0].Type == compiler.TokenIdentifier && !compiler.IsReserved(toks[0].Literal) &&
		toks[1].Type == compiler.TokenSpecial && toks[1].Literal == ":" {
		st.Label = toks[0].Literal
		rest = strings.TrimSpace(rest[toks[2].Pos.Offset:])
	}
	st.Source = rest
	return st
}

// State returns the link state.
func (p *Program) State() State { return p.state }

// SetState records a link state transition.
func (p *Program) SetState(s State) { p.state = s }

// Executable returns the fused stream of a linked program, or nil.
func (p *Program) Executable() *bytecode.Stream {
	if p.state != Linked || len(p.Statements) == 0 {
		return nil
	}
	return p.Statements[0].Code
}

// SetExecutable installs a fused stream as the program's code and marks
// the program linked.
func (p *Program) SetExecutable(s *bytecode.Stream) {
	for i, st := range p.Statements {
		st.Code = nil
		if i == 0 {
			st.Code = s
		}
	}
	p.state = Linked
}

// Reset discards all compiled code and returns the program to Unlinked.
func (p *Program) Reset() {
	for _, st := range p.Statements {
		st.Code = nil
	}
	p.state = Unlinked
}

// Find returns the index of the statement with the given line number.
func (p *Program) Find(line int) (int, bool) {
	i := sort.Search(len(p.Statements), func(i int) bool { return p.Statements[i].Line >= line })
	return i, i < len(p.Statements) && p.Statements[i].Line == line
}

// Put adds or replaces the statement for a line. Empty text deletes it.
// Editing a linked program unlinks it.
func (p *Program) Put(line int, text string) error {
	if p.Protected {
		return status.New(status.ErrProtected, "cannot edit %s", p.Name)
	}
	if p.state == Linked {
		p.Reset()
	}
	st := SplitLine(text)
	st.Line = line

	i, found := p.Find(line)
	switch {
	case strings.TrimSpace(text) == "":
		if found {
			p.Statements = append(p.Statements[:i], p.Statements[i+1:]...)
		}
	case found:
		p.Statements[i] = st
	default:
		p.Statements = append(p.Statements, nil)
		copy(p.Statements[i+1:], p.Statements[i:])
		p.Statements[i] = st
	}
	return nil
}

// DataLines returns the line numbers of DATA statements in program order.
// READ consumes the linked stream's Data map in this order.
func (p *Program) DataLines() []int {
	exe := p.Executable()
	if exe == nil {
		return nil
	}
	lines := make([]int, 0, len(exe.Data))
	for line := range exe.Data {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// String renders the program as source text.
func (p *Program) String() string {
	var sb strings.Builder
	for _, st := range p.Statements {
		sb.WriteString(strconv.Itoa(st.Line))
		sb.WriteByte(' ')
		if st.Label != "" {
			sb.WriteString(st.Label)
			sb.WriteString(": ")
		}
		sb.WriteString(st.Source)
		sb.WriteByte('\n')
	}
	return sb.String()
}
