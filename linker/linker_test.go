package linker_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/linker"
	"github.com/chazu/mbasic/optimizer"
	"github.com/chazu/mbasic/program"
	"github.com/chazu/mbasic/status"
)

func listing(s *bytecode.Stream) string {
	parts := make([]string, 0, s.Size())
	for _, in := range s.Instructions() {
		parts = append(parts, in.String())
	}
	return strings.Join(parts, "; ")
}

// find returns the position of the first instruction with op, or -1.
func find(s *bytecode.Stream, op bytecode.Opcode) int {
	for i := 0; i < s.Size(); i++ {
		if s.Get(i).Op == op {
			return i
		}
	}
	return -1
}

func findStmt(s *bytecode.Stream, line int64) int {
	for i := 0; i < s.Size(); i++ {
		if in := s.Get(i); in.Op == bytecode.OpStmt && in.Int == line {
			return i
		}
	}
	return -1
}

func count(s *bytecode.Stream, op bytecode.Opcode) int {
	n := 0
	for _, in := range s.Instructions() {
		if in.Op == op {
			n++
		}
	}
	return n
}

func addr(in bytecode.Instruction) int {
	a, ok := in.Address()
	if !ok {
		return -1
	}
	return a
}

func errorLine(err error) int {
	var se *status.Error
	if errors.As(err, &se) {
		return se.Line
	}
	return -1
}

var _ = Describe("Linker", func() {
	var (
		flags compiler.Flags
		prog  *program.Program
	)

	BeforeEach(func() {
		flags = compiler.Flags{Separator: ":"}
	})

	link := func(src string) (*bytecode.Stream, error) {
		var err error
		prog, err = program.Parse("test", src)
		Expect(err).NotTo(HaveOccurred())
		l, err := linker.New(flags)
		Expect(err).NotTo(HaveOccurred())
		return l.Link(prog)
	}

	mustLink := func(src string) *bytecode.Stream {
		s, err := link(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Linked()).To(BeTrue())
		return s
	}

	Context("program state", func() {
		It("stores the fused stream on the first statement", func() {
			s := mustLink("10 PRINT 1\n20 PRINT 2")
			Expect(prog.State()).To(Equal(program.Linked))
			Expect(prog.Executable()).To(BeIdenticalTo(s))
			Expect(prog.Statements[1].Code).To(BeNil())
		})

		It("returns the same stream when linked twice", func() {
			s := mustLink("10 PRINT 1")
			l, err := linker.New(flags)
			Expect(err).NotTo(HaveOccurred())
			again, err := l.Link(prog)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeIdenticalTo(s))
		})

		It("recompiles every statement on unlink", func() {
			s := mustLink("10 PRINT 1\n20 GOTO 10")
			before := listing(s)

			l, err := linker.New(flags)
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Unlink(prog)).To(Succeed())
			Expect(prog.State()).To(Equal(program.Unlinked))
			for _, st := range prog.Statements {
				Expect(st.Code).NotTo(BeNil())
				Expect(st.Code.Linked()).To(BeFalse())
			}

			relinked, err := l.Link(prog)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing(relinked)).To(Equal(before))
		})

		It("rejects protected programs", func() {
			var err error
			prog, err = program.Parse("locked", "10 PRINT 1")
			Expect(err).NotTo(HaveOccurred())
			prog.Protected = true

			l, err := linker.New(flags)
			Expect(err).NotTo(HaveOccurred())
			_, err = l.Link(prog)
			Expect(err).To(MatchError(status.ErrProtected))
			Expect(l.Unlink(prog)).To(MatchError(status.ErrProtected))
			Expect(prog.State()).To(Equal(program.Unlinked))
		})

		It("hands out the stream of a program protected after linking", func() {
			s := mustLink("10 PRINT 1\n20 END")
			prog.Protected = true

			l, err := linker.New(flags)
			Expect(err).NotTo(HaveOccurred())
			again, err := l.Link(prog)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(BeIdenticalTo(s))
			Expect(prog.State()).To(Equal(program.Linked))

			Expect(l.Unlink(prog)).To(MatchError(status.ErrProtected))
			Expect(prog.State()).To(Equal(program.Linked))
			Expect(prog.Executable()).To(BeIdenticalTo(s))
		})

		It("reports the failing statement when a line does not compile", func() {
			_, err := link("10 PRINT 1\n20 PRINT (1")
			Expect(err).To(MatchError(status.ErrLinkCompile))
			Expect(status.KindOf(err)).To(Equal(status.KindLink))
			Expect(errorLine(err)).To(Equal(20))
			Expect(prog.State()).To(Equal(program.Unlinked))
			Expect(prog.Statements[0].Code).NotTo(BeNil())
		})
	})

	Context("labels and line numbers", func() {
		It("fails on a duplicate label and stays unlinked", func() {
			_, err := link("10 A: PRINT 1\n20 A: PRINT 2")
			Expect(err).To(MatchError(status.ErrDuplicateLabel))
			Expect(errorLine(err)).To(Equal(20))
			Expect(prog.State()).To(Equal(program.Unlinked))
			Expect(prog.Executable()).To(BeNil())
		})

		It("fails on an unknown label", func() {
			_, err := link("10 GOTO NOWHERE")
			Expect(err).To(MatchError(status.ErrNoSuchLabel))
			Expect(errorLine(err)).To(Equal(10))
		})

		It("fails on a line number past the end", func() {
			_, err := link("10 GOTO 99")
			Expect(err).To(MatchError(status.ErrNoSuchLine))
		})

		It("resolves GOTO by line number to the statement marker", func() {
			s := mustLink("10 GOTO 30\n20 PRINT 1\n30 END")
			Expect(listing(s)).To(Equal("STMT 10; BR 5; STMT 20; INTEGER 1; PRINT 1; STMT 30; END"))
		})

		It("resolves GOTO and GOSUB by label", func() {
			s := mustLink("10 GOSUB WORK\n20 GOTO DONE\n30 WORK: RETURN\n40 DONE: END")
			Expect(listing(s)).To(Equal("STMT 10; CALLSUB 4; STMT 20; BR 6; STMT 30; RETURN; STMT 40; END"))
			l, ok := s.Label("DONE")
			Expect(ok).To(BeTrue())
			Expect(l.Address).To(Equal(6))
			Expect(l.StatementID).To(Equal(3))
		})

		It("resolves CALL through the SUB entry", func() {
			s := mustLink("10 CALL GREET(1)\n20 END\n30 SUB GREET(N)\n40 PRINT N\n50 RETURN")
			entry := find(s, bytecode.OpEntry)
			call := find(s, bytecode.OpCallSub)
			Expect(entry).To(BeNumerically(">", 0))
			Expect(call).To(BeNumerically(">", 0))
			Expect(addr(s.Get(call))).To(Equal(entry))
			Expect(s.Get(call).Str).To(Equal("GREET"))

			l, ok := s.Label(bytecode.EntryLabel("GREET"))
			Expect(ok).To(BeTrue())
			Expect(l.Address).To(Equal(entry))
			Expect(l.StatementID).To(Equal(2))
		})

		It("fails on CALL of an unknown SUB", func() {
			_, err := link("10 CALL MISSING")
			Expect(err).To(MatchError(status.ErrNoSuchLabel))
		})

		It("resolves ON ERROR GOTO and records the handler", func() {
			s := mustLink("10 ON ERROR GOTO 30\n20 END\n30 PRINT 1")
			Expect(s.HasErrorHandler()).To(BeTrue())
			onerr := s.Get(find(s, bytecode.OpOnErr))
			Expect(addr(onerr)).To(Equal(findStmt(s, 30)))
		})
	})

	Context("conditionals", func() {
		It("turns IF markers into branches", func() {
			s := mustLink("10 IF A THEN PRINT 1 ELSE PRINT 2\n20 END")
			Expect(listing(s)).To(Equal(`STMT 10; LOAD "A"; BRZ 7; STMT 10; INTEGER 1; PRINT 1; BR 10; ` +
				`STMT 10; INTEGER 2; PRINT 1; STMT 20; END`))
			Expect(count(s, bytecode.OpIf)).To(Equal(0))
			Expect(count(s, bytecode.OpNoop)).To(Equal(0))
		})

		It("fuses IF ... THEN line into one branch when optimizing", func() {
			flags = compiler.DefaultFlags()
			s := mustLink("10 IF A THEN 30\n20 PRINT 1\n30 END")
			Expect(listing(s)).To(Equal(`STMT 10; LOAD "A"; BRNZ 6; STMT 20; INTEGER 1; PRINT 1; STMT 30; END`))
		})
	})

	Context("loops", func() {
		It("patches FOR and NEXT against each other", func() {
			s := mustLink("10 FOR I = 1 TO 3 : PRINT I : NEXT I")
			head := find(s, bytecode.OpFor)
			tail := find(s, bytecode.OpNext)
			Expect(head).To(BeNumerically(">=", 0))
			Expect(tail).To(BeNumerically(">", head))
			Expect(addr(s.Get(head))).To(Equal(tail + 1))
			Expect(addr(s.Get(tail))).To(Equal(head + 1))
		})

		It("pairs NEXT without a name with the innermost FOR", func() {
			s := mustLink("10 FOR I = 1 TO 2\n20 FOR J = 1 TO 2\n30 NEXT\n40 NEXT I")
			Expect(s.Get(find(s, bytecode.OpNext)).Str).To(Equal("J"))
		})

		DescribeTable("rejects mismatched loops",
			func(src string) {
				_, err := link(src)
				Expect(err).To(MatchError(status.ErrLoopNesting))
				Expect(prog.State()).To(Equal(program.Unlinked))
			},
			Entry("NEXT of another variable", "10 FOR I = 1 TO 2\n20 NEXT J"),
			Entry("NEXT without FOR", "10 NEXT"),
			Entry("FOR without NEXT", "10 FOR I = 1 TO 2"),
			Entry("DO without LOOP", "10 DO\n20 PRINT 1"),
			Entry("LOOP without DO", "10 LOOP"),
			Entry("crossed loops", "10 FOR I = 1 TO 2\n20 DO\n30 NEXT I\n40 LOOP"),
			Entry("EXIT outside a loop", "10 EXIT LOOP"),
		)

		It("branches LOOP back to DO and resolves the top test exit", func() {
			flags.LoopTopTest = true
			s := mustLink("10 DO WHILE X < 3\n20 X = X + 1\n30 LOOP\n40 END")
			do := find(s, bytecode.OpDo)
			test := find(s, bytecode.OpDoWhile)
			tail := find(s, bytecode.OpLoop)
			Expect(addr(s.Get(tail))).To(Equal(do))
			Expect(addr(s.Get(test))).To(Equal(tail + 1))
		})

		It("leaves the top test unresolved without loop-top tests", func() {
			s := mustLink("10 DO UNTIL X\n20 LOOP")
			Expect(s.Get(find(s, bytecode.OpDoUntil)).HasInt).To(BeFalse())
		})

		It("resolves CONTINUE and EXIT LOOP against the innermost loop", func() {
			s := mustLink("10 FOR I = 1 TO 3\n20 IF I = 2 THEN CONTINUE\n30 EXIT LOOP\n40 NEXT I\n50 END")
			cont := s.Get(find(s, bytecode.OpContinue))
			exit := s.Get(find(s, bytecode.OpExitLoop))
			Expect(addr(cont)).To(Equal(findStmt(s, 40)))
			Expect(addr(exit)).To(Equal(find(s, bytecode.OpNext) + 1))
		})

		It("continues a post-condition loop at its condition", func() {
			s := mustLink("10 DO\n20 CONTINUE LOOP\n30 LOOP UNTIL X > 5")
			cont := s.Get(find(s, bytecode.OpContinue))
			Expect(addr(cont)).To(Equal(findStmt(s, 30)))
		})
	})

	Context("constants and data", func() {
		It("hoists pooled constants to the prologue once", func() {
			flags.PoolConstants = true
			s := mustLink("10 A = [1, 2]\n20 B = [1, 2]\n30 C = {X: 1}")
			Expect(s.Get(0).Op).To(Equal(bytecode.OpConstBegin))
			Expect(count(s, bytecode.OpConstBegin)).To(Equal(2))
			Expect(count(s, bytecode.OpLoadRef)).To(Equal(3))
			Expect(optimizer.ScanPool(s).Len()).To(Equal(2))
			Expect(findStmt(s, 10)).To(Equal(optimizer.ScanPool(s).End()))
		})

		It("indexes DATA literals by line", func() {
			s := mustLink("10 DATA 1, 2\n20 DATA \"X\"\n30 READ A, B")
			Expect(s.Data).To(HaveLen(2))
			Expect(listing(s.Data[10])).To(Equal("INTEGER 1; INTEGER 2"))
			Expect(listing(s.Data[20])).To(Equal(`STRING "X"`))
			Expect(prog.DataLines()).To(Equal([]int{10, 20}))

			data := find(s, bytecode.OpData)
			Expect(addr(s.Get(data))).To(Equal(data + 3))
		})
	})

	Context("statement markers", func() {
		It("strips markers when nothing needs them", func() {
			flags.StripStatements = true
			s := mustLink("10 PRINT 1\n20 GOTO 10")
			Expect(listing(s)).To(Equal("INTEGER 1; PRINT 1; BR 0"))
		})

		It("keeps markers for indirect jumps", func() {
			flags.StripStatements = true
			s := mustLink("10 GOTO USING(X)\n20 END")
			Expect(count(s, bytecode.OpStmt)).To(Equal(2))
		})
	})
})
