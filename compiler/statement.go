package compiler

import (
	"strconv"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
	"github.com/chazu/mbasic/value"
)

// ---------------------------------------------------------------------------
// Statement compilers
// ---------------------------------------------------------------------------

type verbFunc func(c *Compiler, ts *TokenStream, out *bytecode.Stream) error

var verbs map[string]verbFunc

func init() {
	verbs = map[string]verbFunc{
		"LET":      (*Compiler).compileAssignment,
		"PRINT":    (*Compiler).compilePrint,
		"IF":       (*Compiler).compileIf,
		"GOTO":     (*Compiler).compileGoto,
		"GOSUB":    (*Compiler).compileGosub,
		"RETURN":   emitVerb(bytecode.OpReturn),
		"STOP":     emitVerb(bytecode.OpEnd),
		"END":      (*Compiler).compileEnd,
		"EXIT":     (*Compiler).compileExit,
		"CONTINUE": (*Compiler).compileContinue,
		"FOR":      (*Compiler).compileFor,
		"NEXT":     (*Compiler).compileNext,
		"DO":       (*Compiler).compileDo,
		"LOOP":     (*Compiler).compileLoop,
		"DATA":     (*Compiler).compileData,
		"READ":     (*Compiler).compileRead,
		"SUB":      (*Compiler).compileSub,
		"CALL":     (*Compiler).compileCall,
		"DIM":      (*Compiler).compileDim,
		"ON":       (*Compiler).compileOn,
		"REM":      compileRemark,
	}
}

func emitVerb(op bytecode.Opcode) verbFunc {
	return func(_ *Compiler, _ *TokenStream, out *bytecode.Stream) error {
		out.Emit(op)
		return nil
	}
}

// statement compiles one separator-delimited segment.
func (c *Compiler) statement(ts *TokenStream, out *bytecode.Stream) error {
	tok := ts.Peek()
	switch tok.Type {
	case TokenIdentifier:
		if fn, ok := verbs[tok.Literal]; ok {
			ts.Next()
			return fn(c, ts, out)
		}
		if IsReserved(tok.Literal) {
			return ts.Error(status.ErrUnknownVerb, "%s", tok.Literal)
		}
		return c.compileAssignment(ts, out)

	case TokenSpecial:
		switch tok.Literal {
		case "'":
			return compileRemark(c, ts, out)
		case "?":
			ts.Next()
			return c.compilePrint(ts, out)
		case "++", "--":
			ts.Next()
			name, ok := ts.AssumeIdentifier()
			if !ok {
				return ts.Error(status.ErrLValue, "%s needs a variable", tok.Literal)
			}
			delta := int64(1)
			if tok.Literal == "--" {
				delta = -1
			}
			out.Append(bytecode.NewIntString(bytecode.OpIncr, delta, name))
			return nil
		}
	}
	return ts.Error(status.ErrUnknownVerb, "%s", ts.Spelling())
}

// compileRemark discards the rest of the line, separators included.
func compileRemark(_ *Compiler, ts *TokenStream, _ *bytecode.Stream) error {
	for !ts.AtEOF() {
		ts.Next()
	}
	return nil
}

func (c *Compiler) expression(ts *TokenStream, out *bytecode.Stream) error {
	return c.newExpression(ts, true).Compile(out)
}

// PRINT [expr {; expr}] [;]
func (c *Compiler) compilePrint(ts *TokenStream, out *bytecode.Stream) error {
	if ts.EndOfStatement() || ts.Test("ELSE") {
		out.EmitString(bytecode.OpString, "")
		out.EmitInt(bytecode.OpPrint, 1)
		return nil
	}
	for {
		if err := c.expression(ts, out); err != nil {
			return err
		}
		if ts.Assume(";") || ts.Assume(",") {
			out.EmitInt(bytecode.OpPrint, 0)
			if ts.EndOfStatement() || ts.Test("ELSE") {
				return nil
			}
			continue
		}
		out.EmitInt(bytecode.OpPrint, 1)
		return nil
	}
}

// IF cond THEN clause [ELSE clause]
//
// Emits cond, IF 1, then-clause, [IF 2, else-clause,] IF 3. The linker
// turns the markers into branches.
func (c *Compiler) compileIf(ts *TokenStream, out *bytecode.Stream) error {
	if err := c.expression(ts, out); err != nil {
		return err
	}
	if !ts.Assume("THEN") {
		return ts.Error(status.ErrSyntax, "expected THEN")
	}
	out.EmitInt(bytecode.OpIf, 1)
	if err := c.clause(ts, out, true); err != nil {
		return err
	}
	if ts.Assume("ELSE") {
		out.EmitInt(bytecode.OpIf, 2)
		if err := c.clause(ts, out, false); err != nil {
			return err
		}
	}
	out.EmitInt(bytecode.OpIf, 3)
	return nil
}

// clause compiles the statements of a THEN or ELSE part, which run to the
// end of the line. A bare line number means GOTO.
func (c *Compiler) clause(ts *TokenStream, out *bytecode.Stream, stopAtElse bool) error {
	for {
		out.EmitInt(bytecode.OpStmt, int64(ts.Line()))
		if ts.TestType(TokenInteger) {
			ts.RestoreToken("GOTO", TokenIdentifier)
		}
		if ts.EndOfStatement() {
			return ts.Error(status.ErrSyntax, "missing statement after THEN or ELSE")
		}
		if err := c.statement(ts, out); err != nil {
			return err
		}
		if stopAtElse && ts.Test("ELSE") {
			return nil
		}
		if !ts.AssumeSeparator() {
			return nil
		}
	}
}

// jumpTarget parses a line number or label operand into op.
func jumpTarget(ts *TokenStream, op bytecode.Opcode) (bytecode.Instruction, error) {
	if n, ok := ts.AssumeInteger(); ok {
		return bytecode.NewInt(op, n), nil
	}
	tok := ts.Next()
	if tok.Type != TokenIdentifier {
		ts.Restore()
		return bytecode.Instruction{}, ts.Error(status.ErrSyntax, "expected line number or label")
	}
	return bytecode.NewString(op, tok.Literal), nil
}

// GOTO line|label, GOTO USING(expr)
func (c *Compiler) compileGoto(ts *TokenStream, out *bytecode.Stream) error {
	if ts.Assume("USING") {
		if !ts.Assume("(") {
			return ts.Error(status.ErrParen, "expected ( after USING")
		}
		if err := c.expression(ts, out); err != nil {
			return err
		}
		if !ts.Assume(")") {
			return ts.Error(status.ErrParen, "expected )")
		}
		out.Emit(bytecode.OpJmpInd)
		return nil
	}
	in, err := jumpTarget(ts, bytecode.OpGoto)
	if err != nil {
		return err
	}
	out.Append(in)
	return nil
}

func (c *Compiler) compileGosub(ts *TokenStream, out *bytecode.Stream) error {
	in, err := jumpTarget(ts, bytecode.OpGosub)
	if err != nil {
		return err
	}
	out.Append(in)
	return nil
}

// END, END LOOP, END SUB
func (c *Compiler) compileEnd(ts *TokenStream, out *bytecode.Stream) error {
	switch {
	case ts.Assume("LOOP"):
		out.Emit(bytecode.OpExitLoop)
	case ts.Assume("SUB"):
		out.Emit(bytecode.OpReturn)
	default:
		out.Emit(bytecode.OpEnd)
	}
	return nil
}

// EXIT LOOP
func (c *Compiler) compileExit(ts *TokenStream, out *bytecode.Stream) error {
	if !ts.Assume("LOOP") && !ts.Assume("FOR") && !ts.Assume("DO") {
		return ts.Error(status.ErrSyntax, "expected LOOP after EXIT")
	}
	out.Emit(bytecode.OpExitLoop)
	return nil
}

// CONTINUE [LOOP]
func (c *Compiler) compileContinue(ts *TokenStream, out *bytecode.Stream) error {
	if !ts.Assume("LOOP") {
		ts.Assume("FOR")
	}
	out.Emit(bytecode.OpContinue)
	return nil
}

// FOR v = a TO b [STEP c], FOR EACH v IN expr
func (c *Compiler) compileFor(ts *TokenStream, out *bytecode.Stream) error {
	if ts.Assume("EACH") {
		name, ok := ts.AssumeIdentifier()
		if !ok {
			return ts.Error(status.ErrLValue, "FOR EACH needs a variable")
		}
		if !ts.Assume("IN") {
			return ts.Error(status.ErrSyntax, "expected IN")
		}
		if err := c.expression(ts, out); err != nil {
			return err
		}
		out.EmitString(bytecode.OpForEach, name)
		return nil
	}

	name, ok := ts.AssumeIdentifier()
	if !ok {
		return ts.Error(status.ErrLValue, "FOR needs a variable")
	}
	if !ts.Assume("=") {
		return ts.Error(status.ErrSyntax, "expected =")
	}
	if err := c.expression(ts, out); err != nil {
		return err
	}
	if !ts.Assume("TO") {
		return ts.Error(status.ErrSyntax, "expected TO")
	}
	if err := c.expression(ts, out); err != nil {
		return err
	}
	if ts.Assume("STEP") {
		if err := c.expression(ts, out); err != nil {
			return err
		}
	} else {
		out.EmitInt(bytecode.OpInteger, 1)
	}
	out.EmitString(bytecode.OpFor, name)
	return nil
}

// NEXT [v]
func (c *Compiler) compileNext(ts *TokenStream, out *bytecode.Stream) error {
	if name, ok := ts.AssumeIdentifier(); ok {
		out.EmitString(bytecode.OpNext, name)
		return nil
	}
	out.Emit(bytecode.OpNext)
	return nil
}

// loopCondition compiles an optional WHILE/UNTIL clause and emits whileOp
// or untilOp after it. It returns false if there was no clause.
func (c *Compiler) loopCondition(ts *TokenStream, out *bytecode.Stream, whileOp, untilOp bytecode.Opcode) (bool, error) {
	op := whileOp
	switch {
	case ts.Assume("WHILE"):
	case ts.Assume("UNTIL"):
		op = untilOp
	default:
		return false, nil
	}
	if err := c.expression(ts, out); err != nil {
		return false, err
	}
	out.Emit(op)
	return true, nil
}

// DO [WHILE|UNTIL cond]
func (c *Compiler) compileDo(ts *TokenStream, out *bytecode.Stream) error {
	out.Emit(bytecode.OpDo)
	_, err := c.loopCondition(ts, out, bytecode.OpDoWhile, bytecode.OpDoUntil)
	return err
}

// LOOP [WHILE|UNTIL cond]
func (c *Compiler) compileLoop(ts *TokenStream, out *bytecode.Stream) error {
	found, err := c.loopCondition(ts, out, bytecode.OpLoopWhile, bytecode.OpLoopUntil)
	if err != nil {
		return err
	}
	if !found {
		out.Emit(bytecode.OpLoop)
	}
	return nil
}

// DATA literal {, literal}
//
// The DATA instruction's address is the end of the literal list, so
// execution skips over it.
func (c *Compiler) compileData(ts *TokenStream, out *bytecode.Stream) error {
	pos := out.Emit(bytecode.OpData)
	e := c.newExpression(ts, false)
	for {
		negate := ts.Assume("-")
		tok := ts.Next()
		var in bytecode.Instruction
		switch {
		case tok.Type == TokenInteger || tok.Type == TokenDouble || tok.Type == TokenDecimal || tok.Type == TokenString:
			lit, err := e.literal(tok, negate)
			if err != nil {
				return err
			}
			in = lit
		case !negate && tok.Is("TRUE"):
			in = bytecode.NewInt(bytecode.OpBool, 1)
		case !negate && tok.Is("FALSE"):
			in = bytecode.NewInt(bytecode.OpBool, 0)
		default:
			ts.Restore()
			return ts.Error(status.ErrSyntax, "DATA accepts only constants")
		}
		out.Append(in)
		if !ts.Assume(",") {
			break
		}
	}
	out.At(pos).SetInt(int64(out.Size()))
	return nil
}

// READ v {, v}
func (c *Compiler) compileRead(ts *TokenStream, out *bytecode.Stream) error {
	for {
		name, ok := ts.AssumeIdentifier()
		if !ok {
			return ts.Error(status.ErrLValue, "READ needs a variable")
		}
		scope, err := parseScope(ts)
		if err != nil {
			return err
		}
		out.Append(bytecode.NewIntString(bytecode.OpRead, scope, name))
		if !ts.Assume(",") {
			return nil
		}
	}
}

// SUB name [(param {, param})]
//
// Callers push arguments last to first, so parameters are stored in
// declaration order.
func (c *Compiler) compileSub(ts *TokenStream, out *bytecode.Stream) error {
	name, ok := ts.AssumeIdentifier()
	if !ok {
		return ts.Error(status.ErrSyntax, "SUB needs a name")
	}
	out.EmitString(bytecode.OpEntry, name)
	if !ts.Assume("(") {
		return nil
	}
	for n := 0; !ts.Assume(")"); n++ {
		if n > 0 && !ts.Assume(",") {
			return ts.Error(status.ErrParen, "expected , or )")
		}
		param, ok := ts.AssumeIdentifier()
		if !ok {
			return ts.Error(status.ErrLValue, "parameter name expected")
		}
		out.Append(bytecode.NewIntString(bytecode.OpStor, 0, param))
	}
	return nil
}

// CALL name [(args)]
func (c *Compiler) compileCall(ts *TokenStream, out *bytecode.Stream) error {
	name, ok := ts.AssumeIdentifier()
	if !ok {
		return ts.Error(status.ErrSyntax, "CALL needs a name")
	}
	argc := 0
	if ts.Assume("(") {
		n, _, err := c.newExpression(ts, true).arguments(out)
		if err != nil {
			return err
		}
		argc = n
	}
	out.Append(bytecode.NewIntString(bytecode.OpCall, int64(argc), name))
	return nil
}

// DIM v AS type {, v AS type}
func (c *Compiler) compileDim(ts *TokenStream, out *bytecode.Stream) error {
	for {
		name, ok := ts.AssumeIdentifier()
		if !ok {
			return ts.Error(status.ErrLValue, "DIM needs a variable")
		}
		scope, err := parseScope(ts)
		if err != nil {
			return err
		}
		t := value.Integer
		if ts.Assume("AS") {
			tok := ts.Next()
			typ, ok := value.TypeByName(tok.Literal)
			if tok.Type != TokenIdentifier || !ok {
				ts.Restore()
				return ts.Error(status.ErrSyntax, "unknown type %s", ts.Spelling())
			}
			t = typ
		}
		out.Append(initialValue(t))
		out.Append(bytecode.NewIntString(bytecode.OpStor, scope, name))
		if !ts.Assume(",") {
			return nil
		}
	}
}

// initialValue returns the instruction that pushes the zero value of t.
func initialValue(t value.Type) bytecode.Instruction {
	switch t {
	case value.Double:
		return bytecode.NewDouble(bytecode.OpDouble, 0)
	case value.Decimal:
		return bytecode.NewString(bytecode.OpDecimal, "0")
	case value.Boolean:
		return bytecode.NewInt(bytecode.OpBool, 0)
	case value.String:
		return bytecode.NewString(bytecode.OpString, "")
	case value.Array:
		return bytecode.NewInt(bytecode.OpArray, 0)
	case value.Record:
		return bytecode.NewInt(bytecode.OpRecord, 0)
	}
	return bytecode.NewInt(bytecode.OpInteger, 0)
}

// ON ERROR GOTO line|label
//
// Line numbers are kept in the string operand; ONERR's integer operand is
// an address once linked.
func (c *Compiler) compileOn(ts *TokenStream, out *bytecode.Stream) error {
	if !ts.Assume("ERROR") || !ts.Assume("GOTO") {
		return ts.Error(status.ErrSyntax, "expected ERROR GOTO after ON")
	}
	if n, ok := ts.AssumeInteger(); ok {
		out.EmitString(bytecode.OpOnErr, strconv.FormatInt(n, 10))
		return nil
	}
	tok := ts.Next()
	if tok.Type != TokenIdentifier {
		ts.Restore()
		return ts.Error(status.ErrSyntax, "expected line number or label")
	}
	out.EmitString(bytecode.OpOnErr, tok.Literal)
	return nil
}
