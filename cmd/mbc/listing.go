package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/patopt"
)

// listing renders a linked stream as a table, one row per instruction,
// with labels in their own column.
func listing(name string, s *bytecode.Stream) string {
	labels := make(map[int]string)
	for _, l := range s.Labels() {
		if prev, ok := labels[l.Address]; ok {
			labels[l.Address] = prev + ", " + l.Name
		} else {
			labels[l.Address] = l.Name
		}
	}

	t := table.NewWriter()
	title := fmt.Sprintf("%s (%d instructions)", name, s.Size())
	if s.HasErrorHandler() {
		title += " [ON ERROR]"
	}
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Addr", "", "Label", "Op", "Int", "Double", "Str"})

	for i, in := range s.Instructions() {
		mark := ""
		if in.BranchTarget {
			mark = ">"
		}
		row := table.Row{fmt.Sprintf("%04d", i), mark, labels[i], in.Op.String(), "", "", ""}
		if in.HasInt {
			row[4] = in.Int
		}
		if in.HasDouble {
			row[5] = strconv.FormatFloat(in.Double, 'g', -1, 64)
		}
		if in.HasStr {
			row[6] = strconv.Quote(in.Str)
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// dataTable renders the DATA index in READ order.
func dataTable(s *bytecode.Stream, lines []int) string {
	t := table.NewWriter()
	t.SetTitle("DATA")
	t.AppendHeader(table.Row{"Line", "Literals"})
	for _, line := range lines {
		d := s.Data[line]
		vals := ""
		for i, in := range d.Instructions() {
			if i > 0 {
				vals += ", "
			}
			vals += in.String()
		}
		t.AppendRow(table.Row{line, vals})
	}
	return t.Render()
}

func statsTable(stats []patopt.Stat) string {
	t := table.NewWriter()
	t.SetTitle("Optimizer rules")
	t.AppendHeader(table.Row{"Rule", "Applied"})
	total := 0
	for _, st := range stats {
		t.AppendRow(table.Row{st.Name, st.Count})
		total += st.Count
	}
	t.AppendFooter(table.Row{"Total", total})
	return t.Render()
}
