package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a human-readable listing of the stream.
func (s *Stream) Disassemble() string {
	return s.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
// Branch targets are flagged with '>' and labels are printed above the
// instruction they name.
func (s *Stream) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	state := "fragment"
	if s.linked {
		state = "linked"
	}
	sb.WriteString(fmt.Sprintf("; %d instructions, %s", len(s.code), state))
	if s.hasErrorHandler {
		sb.WriteString(" [ONERR]")
	}
	sb.WriteString("\n")

	byAddr := make(map[int][]string)
	for _, l := range s.labels {
		byAddr[l.Address] = append(byAddr[l.Address], l.Name)
	}

	for i, in := range s.code {
		if names, ok := byAddr[i]; ok {
			sort.Strings(names)
			for _, n := range names {
				sb.WriteString(fmt.Sprintf("%s:\n", n))
			}
		}
		mark := " "
		if in.BranchTarget {
			mark = ">"
		}
		sb.WriteString(fmt.Sprintf("%s%04d  %s\n", mark, i, in.String()))
	}

	if len(s.Data) > 0 {
		lines := make([]int, 0, len(s.Data))
		for line := range s.Data {
			lines = append(lines, line)
		}
		sort.Ints(lines)
		sb.WriteString("; DATA:\n")
		for _, line := range lines {
			parts := make([]string, 0, s.Data[line].Size())
			for _, in := range s.Data[line].code {
				parts = append(parts, in.String())
			}
			sb.WriteString(fmt.Sprintf(";   %d: %s\n", line, strings.Join(parts, "; ")))
		}
	}

	return sb.String()
}
