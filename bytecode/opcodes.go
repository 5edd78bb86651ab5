package bytecode

import (
	"fmt"
	"strings"
)

// Opcode represents an instruction's operation.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Markers and stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNoop Opcode = 0x00 // No operation, stripped at link time
	OpStmt Opcode = 0x01 // Statement boundary: int = source line
	OpSwap Opcode = 0x02 // Swap top two stack elements
	OpDup  Opcode = 0x03 // Duplicate top of stack
	OpDrop Opcode = 0x04 // Pop and discard

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpInteger Opcode = 0x10 // Push integer: int
	OpDouble  Opcode = 0x11 // Push double: double
	OpString  Opcode = 0x12 // Push string: string
	OpBool    Opcode = 0x13 // Push boolean: int 0/1
	OpDecimal Opcode = 0x14 // Push decimal: string digits
	OpLoadRef Opcode = 0x15 // Push pooled constant by reference: string name

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoad   Opcode = 0x20 // Push variable: string name
	OpStor   Opcode = 0x21 // Pop and store scalar: string name, int scope flags
	OpStorA  Opcode = 0x22 // Pop index, pop value, store element: string name, int scope
	OpStorR  Opcode = 0x23 // Pop key, pop value, store member: string name, int scope
	OpLocRef Opcode = 0x24 // Push locate-or-create reference: string name, int scope
	OpLocIdx Opcode = 0x25 // Pop index, pop ref, push element ref
	OpLocMem Opcode = 0x26 // Pop ref, push member ref: string member
	OpSet    Opcode = 0x27 // Pop value, pop ref, store through ref
	OpIncr   Opcode = 0x28 // Add int delta to variable in place: string name
	OpRead   Opcode = 0x29 // Store next DATA value: string name, int scope

	// ========================================================================
	// Arithmetic and string (0x30-0x3F)
	// ========================================================================

	OpAdd    Opcode = 0x30
	OpSub    Opcode = 0x31
	OpMul    Opcode = 0x32
	OpDiv    Opcode = 0x33
	OpMod    Opcode = 0x34
	OpExp    Opcode = 0x35
	OpNeg    Opcode = 0x36
	OpConcat Opcode = 0x37
	OpCvt    Opcode = 0x38 // Convert top of stack: int = value.Type code
	OpLength Opcode = 0x39
	OpAbs    Opcode = 0x3A

	// ========================================================================
	// Relational and boolean (0x40-0x4F)
	// ========================================================================

	OpEq    Opcode = 0x40
	OpNe    Opcode = 0x41
	OpLt    Opcode = 0x42
	OpLe    Opcode = 0x43
	OpGt    Opcode = 0x44
	OpGe    Opcode = 0x45
	OpMin   Opcode = 0x46
	OpMax   Opcode = 0x47
	OpIn    Opcode = 0x48 // Membership: int = number of candidates
	OpWhere Opcode = 0x49 // Filter array: string = filter expression
	OpAnd   Opcode = 0x4A
	OpOr    Opcode = 0x4B
	OpNot   Opcode = 0x4C

	// ========================================================================
	// Structures and calls (0x50-0x5F)
	// ========================================================================

	OpArray    Opcode = 0x50 // Build array: int = element count
	OpRecord   Opcode = 0x51 // Build record: int = member count
	OpIndex    Opcode = 0x52
	OpSlice    Opcode = 0x53
	OpMember   Opcode = 0x54 // Record member: string name
	OpMethod   Opcode = 0x55 // Object method: string name, int argc
	OpCallF    Opcode = 0x56 // Call function by name: string name, int argc
	OpCallFRef Opcode = 0x57 // Call function value on stack: int argc
	OpPrint    Opcode = 0x58 // Print top of stack: int 1 = newline

	// ========================================================================
	// Constant pool blocks (0x60-0x6F)
	// ========================================================================

	OpConstBegin Opcode = 0x60 // Start of pooled constant block: string name
	OpConstEnd   Opcode = 0x61 // Pop value, define pooled constant: string name

	// ========================================================================
	// Control flow (0x80-0x9F); "addr" operands are absolute after linking
	// ========================================================================

	OpBr        Opcode = 0x80 // Unconditional branch: int addr or string label
	OpBrZ       Opcode = 0x81 // Branch if false/zero
	OpBrNZ      Opcode = 0x82 // Branch if true/non-zero
	OpCallSub   Opcode = 0x83 // Resolved GOSUB: int addr
	OpFor       Opcode = 0x84 // Loop head: string var, int addr after NEXT
	OpForEach   Opcode = 0x85 // Collection loop head: string var, int addr after NEXT
	OpNext      Opcode = 0x86 // Loop tail: string var, int addr after FOR
	OpDoWhile   Opcode = 0x87 // Pre-condition test: int addr of exit
	OpDoUntil   Opcode = 0x88
	OpLoop      Opcode = 0x89 // Loop tail: int addr of test start
	OpLoopWhile Opcode = 0x8A
	OpLoopUntil Opcode = 0x8B
	OpContinue  Opcode = 0x8C // Pseudo-branch to loop test start
	OpExitLoop  Opcode = 0x8D // Pseudo-branch to loop exit
	OpOnErr     Opcode = 0x8E // Install error handler: int addr or string label
	OpData      Opcode = 0x8F // Skip inline DATA literals: int addr of end

	// ========================================================================
	// Unresolved control flow and markers (0xA0-0xAF)
	// ========================================================================

	OpGoto   Opcode = 0xA0 // GOTO: string label or int line (rewritten to BR)
	OpGosub  Opcode = 0xA1 // GOSUB: string label or int line (rewritten to CALLSUB)
	OpCall   Opcode = 0xA2 // Call SUB by name: string name, int argc
	OpEntry  Opcode = 0xA3 // SUB entry point: string name
	OpIf     Opcode = 0xA4 // Conditional triplet marker: int 1=start, 2=else, 3=end
	OpDo     Opcode = 0xA5 // Loop head marker
	OpJmpInd Opcode = 0xA6 // Indirect goto through line number on stack

	// ========================================================================
	// Termination (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0
	OpEnd    Opcode = 0xF1
)

// Operand slot bits describing which fields an opcode uses.
const (
	UsesInt    = 1 << 0
	UsesDouble = 1 << 1
	UsesString = 1 << 2
)

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name     string // Mnemonic, also used by the rule file DSL
	Operands int    // UsesInt | UsesDouble | UsesString
	StackPop int    // Values popped (-1 = depends on int operand)
	Push     int    // Values pushed
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNoop: {"NOOP", 0, 0, 0},
	OpStmt: {"STMT", UsesInt, 0, 0},
	OpSwap: {"SWAP", 0, 2, 2},
	OpDup:  {"DUP", 0, 1, 2},
	OpDrop: {"DROP", 0, 1, 0},

	OpInteger: {"INTEGER", UsesInt, 0, 1},
	OpDouble:  {"DOUBLE", UsesDouble, 0, 1},
	OpString:  {"STRING", UsesString, 0, 1},
	OpBool:    {"BOOL", UsesInt, 0, 1},
	OpDecimal: {"DECIMAL", UsesString, 0, 1},
	OpLoadRef: {"LOADREF", UsesString, 0, 1},

	OpLoad:   {"LOAD", UsesString, 0, 1},
	OpStor:   {"STOR", UsesInt | UsesString, 1, 0},
	OpStorA:  {"STORA", UsesInt | UsesString, 2, 0},
	OpStorR:  {"STORR", UsesInt | UsesString, 2, 0},
	OpLocRef: {"LOCREF", UsesInt | UsesString, 0, 1},
	OpLocIdx: {"LOCIDX", 0, 2, 1},
	OpLocMem: {"LOCMEM", UsesString, 1, 1},
	OpSet:    {"SET", 0, 2, 0},
	OpIncr:   {"INCR", UsesInt | UsesString, 0, 0},
	OpRead:   {"READ", UsesInt | UsesString, 0, 0},

	OpAdd:    {"ADD", 0, 2, 1},
	OpSub:    {"SUB", 0, 2, 1},
	OpMul:    {"MUL", 0, 2, 1},
	OpDiv:    {"DIV", 0, 2, 1},
	OpMod:    {"MOD", 0, 2, 1},
	OpExp:    {"EXP", 0, 2, 1},
	OpNeg:    {"NEG", 0, 1, 1},
	OpConcat: {"CONCAT", 0, 2, 1},
	OpCvt:    {"CVT", UsesInt, 1, 1},
	OpLength: {"LENGTH", 0, 1, 1},
	OpAbs:    {"ABS", 0, 1, 1},

	OpEq:    {"EQ", 0, 2, 1},
	OpNe:    {"NE", 0, 2, 1},
	OpLt:    {"LT", 0, 2, 1},
	OpLe:    {"LE", 0, 2, 1},
	OpGt:    {"GT", 0, 2, 1},
	OpGe:    {"GE", 0, 2, 1},
	OpMin:   {"MIN", 0, 2, 1},
	OpMax:   {"MAX", 0, 2, 1},
	OpIn:    {"IN", UsesInt, -1, 1},
	OpWhere: {"WHERE", UsesString, 1, 1},
	OpAnd:   {"AND", 0, 2, 1},
	OpOr:    {"OR", 0, 2, 1},
	OpNot:   {"NOT", 0, 1, 1},

	OpArray:    {"ARRAY", UsesInt, -1, 1},
	OpRecord:   {"RECORD", UsesInt, -1, 1},
	OpIndex:    {"INDEX", 0, 2, 1},
	OpSlice:    {"SLICE", 0, 3, 1},
	OpMember:   {"MEMBER", UsesString, 1, 1},
	OpMethod:   {"METHOD", UsesInt | UsesString, -1, 1},
	OpCallF:    {"CALLF", UsesInt | UsesString, -1, 1},
	OpCallFRef: {"CALLFREF", UsesInt, -1, 1},
	OpPrint:    {"PRINT", UsesInt, 1, 0},

	OpConstBegin: {"CONSTBEGIN", UsesString, 0, 0},
	OpConstEnd:   {"CONSTEND", UsesString, 1, 0},

	OpBr:        {"BR", UsesInt | UsesString, 0, 0},
	OpBrZ:       {"BRZ", UsesInt | UsesString, 1, 0},
	OpBrNZ:      {"BRNZ", UsesInt | UsesString, 1, 0},
	OpCallSub:   {"CALLSUB", UsesInt, 0, 0},
	OpFor:       {"FOR", UsesInt | UsesString, 3, 0},
	OpForEach:   {"FOREACH", UsesInt | UsesString, 1, 0},
	OpNext:      {"NEXT", UsesInt | UsesString, 0, 0},
	OpDoWhile:   {"DOWHILE", UsesInt, 1, 0},
	OpDoUntil:   {"DOUNTIL", UsesInt, 1, 0},
	OpLoop:      {"LOOP", UsesInt, 0, 0},
	OpLoopWhile: {"LOOPWHILE", UsesInt, 1, 0},
	OpLoopUntil: {"LOOPUNTIL", UsesInt, 1, 0},
	OpContinue:  {"CONTINUE", UsesInt, 0, 0},
	OpExitLoop:  {"EXITLOOP", UsesInt, 0, 0},
	OpOnErr:     {"ONERR", UsesInt | UsesString, 0, 0},
	OpData:      {"DATA", UsesInt, 0, 0},

	OpGoto:   {"GOTO", UsesInt | UsesString, 0, 0},
	OpGosub:  {"GOSUB", UsesInt | UsesString, 0, 0},
	OpCall:   {"CALL", UsesInt | UsesString, -1, 0},
	OpEntry:  {"ENTRY", UsesString, 0, 0},
	OpIf:     {"IF", UsesInt, 0, 0},
	OpDo:     {"DO", 0, 0, 0},
	OpJmpInd: {"JMPIND", 0, 1, 0},

	OpReturn: {"RETURN", 0, 0, 0},
	OpEnd:    {"END", 0, 0, 0},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// OpcodeByName looks up an opcode by mnemonic. A leading underscore is
// accepted and ignored.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodesByName[strings.ToUpper(strings.TrimPrefix(name, "_"))]
	return op, ok
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsBranch reports whether the integer operand of this opcode, when
// present, is an absolute instruction address.
func (op Opcode) IsBranch() bool {
	return op >= OpBr && op <= OpData
}

// IsUnconditional reports whether control never falls through to the next
// instruction.
func (op Opcode) IsUnconditional() bool {
	switch op {
	case OpBr, OpGoto, OpReturn, OpEnd, OpJmpInd, OpLoop, OpContinue, OpExitLoop:
		return true
	}
	return false
}

// IsMarker reports whether the opcode delimits statements or structured
// control flow. Code following a marker may be reachable through branches
// that are only resolved at link time.
func (op Opcode) IsMarker() bool {
	switch op {
	case OpStmt, OpIf, OpDo, OpEntry, OpFor, OpForEach, OpNext, OpLoop, OpLoopWhile,
		OpLoopUntil, OpDoWhile, OpDoUntil, OpConstBegin, OpConstEnd, OpData:
		return true
	}
	return false
}

// IsConstant reports whether the opcode pushes a literal constant.
func (op Opcode) IsConstant() bool {
	return op >= OpInteger && op <= OpDecimal
}

// IsLoopHead reports whether the opcode opens a loop body.
func (op Opcode) IsLoopHead() bool {
	return op == OpFor || op == OpForEach || op == OpDo
}

// IsLoopTail reports whether the opcode closes a loop body.
func (op Opcode) IsLoopTail() bool {
	return op == OpNext || op == OpLoop || op == OpLoopWhile || op == OpLoopUntil
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
