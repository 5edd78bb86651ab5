package compiler

// Flags are the named feature switches consulted while compiling and
// linking. The zero value disables every optional behaviour.
type Flags struct {
	// Optimize runs the pattern optimizer over each compiled statement and
	// the full optimizer battery at link time.
	Optimize bool

	// PoolConstants hoists constant array and record literals into named
	// constant blocks.
	PoolConstants bool

	// LoopTopTest resolves the exit address of DO WHILE / DO UNTIL loops at
	// link time instead of leaving it to a runtime scan.
	LoopTopTest bool

	// StripStatements removes statement markers from linked code when no
	// instruction needs them.
	StripStatements bool

	// DeadCode enables the dead-code sub-pass of the pattern optimizer.
	DeadCode bool

	// Separator is the compound statement separator. Empty means ":".
	Separator string
}

// DefaultFlags returns the switches used when no manifest is present.
func DefaultFlags() Flags {
	return Flags{
		Optimize:      true,
		PoolConstants: true,
		LoopTopTest:   true,
		DeadCode:      true,
		Separator:     ":",
	}
}
