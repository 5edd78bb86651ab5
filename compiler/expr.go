package compiler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
	"github.com/chazu/mbasic/value"
)

// ---------------------------------------------------------------------------
// Expression compiler
// ---------------------------------------------------------------------------

// constSpace is the namespace for pooled constant names. Identical literal
// blocks get identical names regardless of which statement produced them.
var constSpace = uuid.MustParse("6f1c1d2e-5b0a-4c8e-9a57-3d2b8c0e41aa")

// ConstPrefix starts the name of every pooled constant.
const ConstPrefix = "__CONST$"

// ConstName returns the pooled constant name for a block of instructions.
func ConstName(code []bytecode.Instruction) string {
	var sb strings.Builder
	for _, in := range code {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	u := uuid.NewSHA1(constSpace, []byte(sb.String()))
	return ConstPrefix + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:12])
}

// Expression compiles one expression from a token stream. Each compile
// method reports whether what it emitted is a compile-time constant.
type Expression struct {
	ts     *TokenStream
	inline InlineCompiler
	flags  Flags

	// pool allows constant pooling; only set for program statements.
	pool  bool
	depth int // array/record literal nesting

	// deferred holds post-increments not yet emitted.
	deferred []bytecode.Instruction
}

// newExpression returns an expression compiler reading from ts.
func (c *Compiler) newExpression(ts *TokenStream, pool bool) *Expression {
	return &Expression{ts: ts, inline: c.inline, flags: c.flags, pool: pool}
}

// Compile emits the expression followed by any deferred post-increments.
func (e *Expression) Compile(out *bytecode.Stream) error {
	if _, err := e.boolean(out); err != nil {
		return err
	}
	e.flush(out)
	return nil
}

// CompileDeferred emits the expression and returns its post-increments
// instead of emitting them. The caller must append them once every read of
// the incremented variables is complete.
func (e *Expression) CompileDeferred(out *bytecode.Stream) ([]bytecode.Instruction, error) {
	if _, err := e.boolean(out); err != nil {
		return nil, err
	}
	return e.Deferred(), nil
}

// Deferred returns and clears the pending post-increments.
func (e *Expression) Deferred() []bytecode.Instruction {
	d := e.deferred
	e.deferred = nil
	return d
}

func (e *Expression) flush(out *bytecode.Stream) {
	for _, in := range e.Deferred() {
		out.Append(in)
	}
}

var booleanOps = map[string]bytecode.Opcode{
	"AND": bytecode.OpAnd, "&": bytecode.OpAnd, "&&": bytecode.OpAnd,
	"OR": bytecode.OpOr, "|": bytecode.OpOr,
}

var relationalOps = map[string]bytecode.Opcode{
	"=": bytecode.OpEq, "==": bytecode.OpEq,
	"<>": bytecode.OpNe, "!=": bytecode.OpNe,
	"<": bytecode.OpLt, "<=": bytecode.OpLe,
	">": bytecode.OpGt, ">=": bytecode.OpGe,
	"MIN": bytecode.OpMin, "MAX": bytecode.OpMax,
}

var additiveOps = map[string]bytecode.Opcode{
	"+": bytecode.OpAdd, "-": bytecode.OpSub, "||": bytecode.OpConcat,
}

var multiplicativeOps = map[string]bytecode.Opcode{
	"*": bytecode.OpMul, "/": bytecode.OpDiv, "%": bytecode.OpMod, "MOD": bytecode.OpMod,
}

// operator returns the opcode for the next token if it is in ops.
func (e *Expression) operator(ops map[string]bytecode.Opcode) (bytecode.Opcode, bool) {
	tok := e.ts.Peek()
	if tok.Type != TokenSpecial && tok.Type != TokenIdentifier {
		return 0, false
	}
	op, ok := ops[tok.Literal]
	return op, ok
}

func (e *Expression) boolean(out *bytecode.Stream) (bool, error) {
	constant, err := e.relational(out)
	if err != nil {
		return false, err
	}
	for {
		op, ok := e.operator(booleanOps)
		if !ok {
			return constant, nil
		}
		e.ts.Next()
		if _, err := e.relational(out); err != nil {
			return false, err
		}
		out.Emit(op)
		constant = false
	}
}

func (e *Expression) relational(out *bytecode.Stream) (bool, error) {
	constant, err := e.additive(out)
	if err != nil {
		return false, err
	}
	for {
		switch {
		case e.ts.Test("IN"):
			e.ts.Next()
			if !e.ts.Assume("(") {
				return false, e.ts.Error(status.ErrParen, "IN needs a parenthesized list")
			}
			n := 0
			for !e.ts.Assume(")") {
				if n > 0 && !e.ts.Assume(",") {
					return false, e.ts.Error(status.ErrParen, "expected , or ) in IN list")
				}
				if _, err := e.boolean(out); err != nil {
					return false, err
				}
				n++
			}
			out.EmitInt(bytecode.OpIn, int64(n))

		case e.ts.Test("WHERE"):
			e.ts.Next()
			text, err := e.filterText()
			if err != nil {
				return false, err
			}
			out.EmitString(bytecode.OpWhere, text)

		default:
			op, ok := e.operator(relationalOps)
			if !ok {
				return constant, nil
			}
			e.ts.Next()
			if _, err := e.additive(out); err != nil {
				return false, err
			}
			out.Emit(op)
		}
		constant = false
	}
}

// filterText validates the WHERE operand and returns its source text, which
// is evaluated per element at run time.
func (e *Expression) filterText() (string, error) {
	start := e.ts.Peek().Pos.Offset
	scratch := &Expression{ts: e.ts, inline: e.inline, flags: e.flags}
	if _, err := scratch.boolean(bytecode.NewStream()); err != nil {
		return "", err
	}
	end := len(e.ts.Source())
	if !e.ts.AtEOF() {
		end = e.ts.Peek().Pos.Offset
	}
	return strings.TrimSpace(e.ts.Source()[start:end]), nil
}

func (e *Expression) additive(out *bytecode.Stream) (bool, error) {
	constant, err := e.multiplicative(out)
	if err != nil {
		return false, err
	}
	for {
		op, ok := e.operator(additiveOps)
		if !ok {
			return constant, nil
		}
		e.ts.Next()
		if _, err := e.multiplicative(out); err != nil {
			return false, err
		}
		out.Emit(op)
		constant = false
	}
}

func (e *Expression) multiplicative(out *bytecode.Stream) (bool, error) {
	constant, err := e.exponent(out)
	if err != nil {
		return false, err
	}
	for {
		op, ok := e.operator(multiplicativeOps)
		if !ok {
			return constant, nil
		}
		e.ts.Next()
		if _, err := e.exponent(out); err != nil {
			return false, err
		}
		out.Emit(op)
		constant = false
	}
}

// exponent handles right-associative ^ and the "n OF v" index form.
func (e *Expression) exponent(out *bytecode.Stream) (bool, error) {
	constant, err := e.atom(out)
	if err != nil {
		return false, err
	}
	for {
		switch {
		case e.ts.Assume("^"):
			if _, err := e.exponent(out); err != nil {
				return false, err
			}
			out.Emit(bytecode.OpExp)
			return false, nil
		case e.ts.Assume("OF"):
			if _, err := e.atom(out); err != nil {
				return false, err
			}
			out.Emit(bytecode.OpSwap)
			out.Emit(bytecode.OpIndex)
			constant = false
		default:
			return constant, nil
		}
	}
}

func (e *Expression) atom(out *bytecode.Stream) (bool, error) {
	ts := e.ts
	tok := ts.Next()

	switch tok.Type {
	case TokenEOF:
		return false, ts.Error(status.ErrExpression, "unexpected end of expression")

	case TokenInteger, TokenDouble, TokenDecimal, TokenString:
		in, err := e.literal(tok, false)
		if err != nil {
			return false, err
		}
		out.Append(in)
		return e.postfix(out, true, false)

	case TokenIdentifier:
		return e.identifier(tok, out)
	}

	switch tok.Literal {
	case "(":
		if _, err := e.boolean(out); err != nil {
			return false, err
		}
		if !ts.Assume(")") {
			return false, ts.Error(status.ErrParen, "expected )")
		}
		return e.postfix(out, false, true)

	case "-":
		next := ts.Peek()
		switch next.Type {
		case TokenInteger, TokenDouble, TokenDecimal, TokenString:
			ts.Next()
			in, err := e.literal(next, true)
			if err != nil {
				return false, err
			}
			out.Append(in)
			return e.postfix(out, true, false)
		}
		if _, err := e.atom(out); err != nil {
			return false, err
		}
		out.Emit(bytecode.OpNeg)
		return false, nil

	case "+":
		return e.atom(out)

	case "!":
		if _, err := e.atom(out); err != nil {
			return false, err
		}
		out.Emit(bytecode.OpNot)
		return false, nil

	case "++", "--":
		name, ok := ts.AssumeIdentifier()
		if !ok {
			return false, ts.Error(status.ErrLValue, "%s needs a variable", tok.Literal)
		}
		delta := int64(1)
		if tok.Literal == "--" {
			delta = -1
		}
		out.Append(bytecode.NewIntString(bytecode.OpIncr, delta, name))
		out.EmitString(bytecode.OpLoad, name)
		return e.postfix(out, false, false)

	case "[":
		return e.structure(out, false)

	case "{":
		return e.structure(out, true)
	}

	ts.Restore()
	return false, ts.Error(status.ErrExpression, "unexpected %s", ts.Spelling())
}

// literal converts a literal token to a constant instruction, optionally
// negated. Negating a string reverses it.
func (e *Expression) literal(tok Token, negate bool) (bytecode.Instruction, error) {
	var v *value.Value
	switch tok.Type {
	case TokenInteger:
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			// Too large for an integer; keep it as a double.
			f, ferr := strconv.ParseFloat(tok.Literal, 64)
			if ferr != nil {
				return bytecode.Instruction{}, e.tokenError(tok, status.ErrExpression, "bad number %s", tok.Literal)
			}
			v = value.NewDouble(f)
		} else {
			v = value.NewInteger(n)
		}
	case TokenDouble:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return bytecode.Instruction{}, e.tokenError(tok, status.ErrExpression, "bad number %s", tok.Literal)
		}
		v = value.NewDouble(f)
	case TokenDecimal:
		d, err := value.ParseDecimal(tok.Literal)
		if err != nil {
			return bytecode.Instruction{}, e.tokenError(tok, status.ErrExpression, "bad decimal %s", tok.Literal)
		}
		v = d
	case TokenString:
		v = value.NewString(tok.Literal)
	}
	if negate {
		nv, err := v.Negate()
		if err != nil {
			return bytecode.Instruction{}, e.tokenError(tok, status.ErrExpression, "%v", err)
		}
		v = nv
	}
	in, _ := bytecode.FromConstant(v)
	return in, nil
}

func (e *Expression) tokenError(tok Token, base *status.Error, format string, args ...any) *status.Error {
	return status.New(base, format, args...).At(e.ts.Line(), tok.Pos.Column).WithSource(e.ts.Source())
}

func (e *Expression) identifier(tok Token, out *bytecode.Stream) (bool, error) {
	ts := e.ts
	name := tok.Literal

	if ts.Test("(") && (!IsReserved(name) || name == "MIN" || name == "MAX") {
		ts.Next()
		return e.call(name, out)
	}

	switch name {
	case "TRUE":
		out.EmitInt(bytecode.OpBool, 1)
		return true, nil
	case "FALSE":
		out.EmitInt(bytecode.OpBool, 0)
		return true, nil
	case "NOT":
		if _, err := e.atom(out); err != nil {
			return false, err
		}
		out.Emit(bytecode.OpNot)
		return false, nil
	case "IF":
		return e.ternary(out)
	}
	if IsReserved(name) {
		return false, e.tokenError(tok, status.ErrReserved, "%s", name)
	}

	out.EmitString(bytecode.OpLoad, name)
	switch {
	case ts.Assume("++"):
		e.deferred = append(e.deferred, bytecode.NewIntString(bytecode.OpIncr, 1, name))
	case ts.Assume("--"):
		e.deferred = append(e.deferred, bytecode.NewIntString(bytecode.OpIncr, -1, name))
	}
	return e.postfix(out, false, false)
}

// ternary compiles IF c THEN a ELSE b using IF triplet markers.
func (e *Expression) ternary(out *bytecode.Stream) (bool, error) {
	ts := e.ts
	if _, err := e.boolean(out); err != nil {
		return false, err
	}
	if !ts.Assume("THEN") {
		return false, ts.Error(status.ErrExpression, "expected THEN")
	}
	out.EmitInt(bytecode.OpIf, 1)

	// Post-increments inside a branch only run when that branch is taken.
	outer := e.deferred
	defer func() { e.deferred = outer }()
	if err := e.branch(out); err != nil {
		return false, err
	}
	if !ts.Assume("ELSE") {
		return false, ts.Error(status.ErrExpression, "conditional expression needs ELSE")
	}
	out.EmitInt(bytecode.OpIf, 2)
	if err := e.branch(out); err != nil {
		return false, err
	}
	out.EmitInt(bytecode.OpIf, 3)
	return false, nil
}

// branch compiles one arm of a conditional expression and emits its own
// post-increments before the next marker.
func (e *Expression) branch(out *bytecode.Stream) error {
	e.deferred = nil
	if _, err := e.boolean(out); err != nil {
		return err
	}
	for _, in := range e.deferred {
		out.Append(in)
	}
	e.deferred = nil
	return nil
}

// arguments compiles a comma-separated list up to the closing parenthesis
// (the opening one is already consumed) and appends the values in reverse
// order, so the first argument ends up on top of the stack.
func (e *Expression) arguments(out *bytecode.Stream) (int, bool, error) {
	var args []*bytecode.Stream
	constant := true
	for !e.ts.Assume(")") {
		if len(args) > 0 && !e.ts.Assume(",") {
			if e.ts.AtEOF() {
				return 0, false, e.ts.Error(status.ErrParen, "missing )")
			}
			return 0, false, e.ts.Error(status.ErrParen, "expected , or )")
		}
		arg := bytecode.NewStream()
		c, err := e.boolean(arg)
		if err != nil {
			return 0, false, err
		}
		constant = constant && c
		args = append(args, arg)
	}
	for i := len(args) - 1; i >= 0; i-- {
		out.Concat(args[i])
	}
	return len(args), constant, nil
}

// call compiles name(args...). Inline functions are expanded in place;
// anything else becomes a call by name.
func (e *Expression) call(name string, out *bytecode.Stream) (bool, error) {
	argc, constant, err := e.arguments(out)
	if err != nil {
		return false, err
	}
	done := false
	if e.inline != nil {
		done, err = e.inline.CompileInline(name, argc, out, constant)
		if errors.Is(err, status.ErrUnknownFunc) {
			done, err = false, nil
		}
		if err != nil {
			return false, e.ts.Error(status.ErrExpression, "in call to %s", name).Wrap(err)
		}
	}
	if !done {
		out.Append(bytecode.NewIntString(bytecode.OpCallF, int64(argc), name))
	}
	return e.postfix(out, false, true)
}

// postfix compiles a dereference chain: .member, ->method(args), [index],
// [from..to], and (args) when the preceding value is a function.
func (e *Expression) postfix(out *bytecode.Stream, constant, callable bool) (bool, error) {
	ts := e.ts
	for {
		switch {
		case ts.Assume("."):
			tok := ts.Next()
			if tok.Type != TokenIdentifier {
				ts.Restore()
				return false, ts.Error(status.ErrExpression, "member name expected after .")
			}
			out.EmitString(bytecode.OpMember, tok.Literal)

		case ts.Assume("->"):
			tok := ts.Next()
			if tok.Type != TokenIdentifier {
				ts.Restore()
				return false, ts.Error(status.ErrExpression, "method name expected after ->")
			}
			argc := 0
			if ts.Assume("(") {
				n, _, err := e.arguments(out)
				if err != nil {
					return false, err
				}
				argc = n
			}
			out.Append(bytecode.NewIntString(bytecode.OpMethod, int64(argc), tok.Literal))

		case ts.Assume("["):
			if _, err := e.boolean(out); err != nil {
				return false, err
			}
			op := bytecode.OpIndex
			if ts.Assume("..") {
				if _, err := e.boolean(out); err != nil {
					return false, err
				}
				op = bytecode.OpSlice
			}
			if !ts.Assume("]") {
				return false, ts.Error(status.ErrUnterminated, "expected ] after index")
			}
			out.Emit(op)

		case callable && ts.Test("("):
			ts.Next()
			argc, _, err := e.arguments(out)
			if err != nil {
				return false, err
			}
			out.EmitInt(bytecode.OpCallFRef, int64(argc))

		default:
			return constant, nil
		}
		constant = false
		callable = true
	}
}

// structure compiles an array literal [a, b] or a record literal
// {NAME: a, "key": b}. A literal whose elements are all constants is
// pooled into a named constant block when pooling is allowed.
func (e *Expression) structure(out *bytecode.Stream, record bool) (bool, error) {
	ts := e.ts
	closer := "]"
	op := bytecode.OpArray
	if record {
		closer = "}"
		op = bytecode.OpRecord
	}

	e.depth++
	defer func() { e.depth-- }()

	body := bytecode.NewStream()
	constant := true
	n := 0
	for !ts.Assume(closer) {
		if n > 0 && !ts.Assume(",") {
			return false, ts.Error(status.ErrUnterminated, "expected , or %s", closer)
		}
		if record {
			key := ts.Next()
			if key.Type != TokenIdentifier && key.Type != TokenString {
				ts.Restore()
				return false, ts.Error(status.ErrExpression, "record member name expected")
			}
			name := key.Literal
			if key.Type == TokenString {
				name = strings.ToUpper(name)
			}
			body.EmitString(bytecode.OpString, name)
			if !ts.Assume(":") {
				return false, ts.Error(status.ErrExpression, "expected : after %s", name)
			}
		}
		c, err := e.boolean(body)
		if err != nil {
			return false, err
		}
		constant = constant && c
		n++
	}
	body.EmitInt(op, int64(n))

	if constant && e.pool && e.depth == 1 && e.flags.PoolConstants {
		name := ConstName(body.Instructions())
		out.EmitString(bytecode.OpConstBegin, name)
		out.Concat(body)
		out.EmitString(bytecode.OpConstEnd, name)
		out.EmitString(bytecode.OpLoadRef, name)
		return e.postfix(out, true, false)
	}
	out.Concat(body)
	return e.postfix(out, constant, false)
}
