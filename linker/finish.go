package linker

import (
	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/optimizer"
	"github.com/chazu/mbasic/program"
	"github.com/chazu/mbasic/status"
)

// stripNoops removes NOOPs and records whether the stream installs an
// error handler.
func stripNoops(s *bytecode.Stream) {
	handler := false
	for i := s.Size() - 1; i >= 0; i-- {
		switch s.Get(i).Op {
		case bytecode.OpNoop:
			s.Remove(i)
		case bytecode.OpOnErr:
			handler = true
		}
	}
	s.SetErrorHandler(handler)
}

// hoistConstants moves every pooled constant block to the prologue.
// Blocks are evaluated once; a block whose value equals one already
// hoisted is dropped and its LOADREFs renamed. A block that cannot be
// evaluated stays where it is and is defined when execution reaches it.
func hoistConstants(s *bytecode.Stream) error {
	pool := optimizer.NewPool()
	renames := make(map[string]string)

	for i := 0; i < s.Size(); {
		in := s.Get(i)
		if in.Op != bytecode.OpConstBegin {
			i++
			continue
		}
		end := optimizer.FindConstEnd(s, i)
		if end < 0 {
			return status.New(status.ErrLinkCompile, "unterminated constant %s", in.Str).At(lineAt(s, i), 0)
		}
		name := in.Str
		body := optimizer.Body(s, i+1, end)
		v, err := bytecode.EvalConstant(body, pool.Values())
		if err != nil {
			log.Warningf("constant %s left in place: %s", name, err)
			i = end + 1
			continue
		}

		s.RemoveRange(i, end-i+1)
		if canonical, found := pool.Lookup(v); found {
			if canonical != name {
				renames[name] = canonical
				pool.Alias(name, canonical)
			}
			continue
		}
		i += pool.Insert(s, name, body, v)
	}

	if n := optimizer.Rename(s, renames); n > 0 {
		log.Debugf("constant pool: %d references renamed", n)
	}
	return nil
}

// checkNesting verifies that loop heads and tails balance over the whole
// stream.
func checkNesting(s *bytecode.Stream) error {
	forDepth, doDepth := 0, 0
	for _, in := range s.Instructions() {
		switch in.Op {
		case bytecode.OpFor, bytecode.OpForEach:
			forDepth++
		case bytecode.OpNext:
			forDepth--
		case bytecode.OpDo:
			doDepth++
		case bytecode.OpLoop, bytecode.OpLoopWhile, bytecode.OpLoopUntil:
			doDepth--
		}
	}
	if forDepth != 0 {
		return status.New(status.ErrLoopNesting, "FOR and NEXT do not balance (%+d)", forDepth)
	}
	if doDepth != 0 {
		return status.New(status.ErrLoopNesting, "DO and LOOP do not balance (%+d)", doDepth)
	}
	return nil
}

// collectEntries adds a label for every SUB entry point.
func collectEntries(s *bytecode.Stream, p *program.Program) error {
	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		if in.Op != bytecode.OpEntry {
			continue
		}
		line := lineAt(s, i)
		idx, _ := p.Find(line)
		if !s.AddLabel(bytecode.EntryLabel(in.Str), idx, i) {
			return status.New(status.ErrDuplicateLabel, "SUB %s", in.Str).At(line, 0)
		}
	}
	return nil
}

// needsMarkers reports whether some instruction locates code by line
// number at run time.
func needsMarkers(s *bytecode.Stream) bool {
	for _, in := range s.Instructions() {
		if in.Op == bytecode.OpJmpInd || in.Op == bytecode.OpData {
			return true
		}
	}
	return false
}

// stripStatements removes statement markers unless something needs them.
func stripStatements(s *bytecode.Stream) int {
	if needsMarkers(s) {
		log.Debugf("statement markers kept")
		return 0
	}
	n := 0
	for i := s.Size() - 1; i >= 0; i-- {
		if s.Get(i).Op == bytecode.OpStmt {
			s.Remove(i)
			n++
		}
	}
	return n
}

// buildData indexes the literals of each DATA statement by line number.
// Several DATA statements on one line are joined in order.
func buildData(s *bytecode.Stream) {
	s.Data = make(map[int]*bytecode.Stream)
	line := 0
	for i := 0; i < s.Size(); i++ {
		in := s.Get(i)
		switch in.Op {
		case bytecode.OpStmt:
			line = int(in.Int)
		case bytecode.OpData:
			end, ok := in.Address()
			if !ok || end <= i || end > s.Size() {
				continue
			}
			lits := s.Slice(i+1, end)
			if d, ok := s.Data[line]; ok {
				d.Concat(lits)
			} else {
				s.Data[line] = lits
			}
		}
	}
}
