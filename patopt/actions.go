package patopt

import (
	"fmt"
	"strconv"
)

// Action is a numeric action code bound to an instruction template.
//
// Pattern-side codes capture or test operands:
//
//	100+n SETINTn   110+n SETDBLn   120+n SETSTRn   130+n SETPOSn
//	200+n TESTINTn  210+n TESTDBLn  220+n TESTSTRn  230+n TESTPOSn
//
// Replacement-side codes recall slots (300+n RCLINTn, 310+n RCLDBLn,
// 320+n RCLSTRn) or run a combinator (400 and up).
type Action int

const (
	SetInt  Action = 100
	SetDbl  Action = 110
	SetStr  Action = 120
	SetPos  Action = 130
	TestInt Action = 200
	TestDbl Action = 210
	TestStr Action = 220
	TestPos Action = 230
	RclInt  Action = 300
	RclDbl  Action = 310
	RclStr  Action = 320
)

// Combinators. The paired arithmetic combinators compute slot1 op slot2
// and leave the result in slot 2 as well as the operand.
const (
	MulInt Action = 400 + iota
	AddInt
	SubInt
	DivInt
	MulDbl
	AddDbl
	SubDbl
	DivDbl
	NegInt0
	NegInt1
	NegDbl0
	NegDbl1
	StrLen1
	NotInt1
	IntStr1
	DblStr1
	IntDbl1
	Offset
	StrCat
	lastCombinator
)

// Slots is the number of capture slots per operand type.
const Slots = 10

var combinatorNames = map[Action]string{
	MulInt:  "MULINT",
	AddInt:  "ADDINT",
	SubInt:  "SUBINT",
	DivInt:  "DIVINT",
	MulDbl:  "MULDBL",
	AddDbl:  "ADDDBL",
	SubDbl:  "SUBDBL",
	DivDbl:  "DIVDBL",
	NegInt0: "NEGINT0",
	NegInt1: "NEGINT1",
	NegDbl0: "NEGDBL0",
	NegDbl1: "NEGDBL1",
	StrLen1: "STRLEN1",
	NotInt1: "NOTINT1",
	IntStr1: "INTSTR1",
	DblStr1: "DBLSTR1",
	IntDbl1: "INTDBL1",
	Offset:  "OFFSET",
	StrCat:  "STRCAT",
}

var slotFamilies = []struct {
	prefix string
	base   Action
}{
	{"SETINT", SetInt}, {"SETDBL", SetDbl}, {"SETSTR", SetStr}, {"SETPOS", SetPos},
	{"TESTINT", TestInt}, {"TESTDBL", TestDbl}, {"TESTSTR", TestStr}, {"TESTPOS", TestPos},
	{"RCLINT", RclInt}, {"RCLDBL", RclDbl}, {"RCLSTR", RclStr},
}

// actionDictionary maps action names to codes.
var actionDictionary = func() map[string]Action {
	d := make(map[string]Action)
	for _, f := range slotFamilies {
		for n := 0; n < Slots; n++ {
			d[f.prefix+strconv.Itoa(n)] = f.base + Action(n)
		}
	}
	for code, name := range combinatorNames {
		d[name] = code
	}
	return d
}()

// family returns the base code of a slot action and its slot number.
func (a Action) family() (Action, int) {
	if a >= MulInt || a < 0 {
		return a, -1
	}
	return a - a%10, int(a % 10)
}

// IsPatternAction reports whether the code may appear on a pattern.
func (a Action) IsPatternAction() bool {
	base, _ := a.family()
	switch base {
	case SetInt, SetDbl, SetStr, SetPos, TestInt, TestDbl, TestStr, TestPos:
		return true
	}
	return false
}

// IsReplaceAction reports whether the code may appear on a replacement.
func (a Action) IsReplaceAction() bool {
	if a >= MulInt && a < lastCombinator {
		return true
	}
	base, _ := a.family()
	return base == RclInt || base == RclDbl || base == RclStr
}

func (a Action) String() string {
	if name, ok := combinatorNames[a]; ok {
		return name
	}
	base, n := a.family()
	for _, f := range slotFamilies {
		if f.base == base {
			return f.prefix + strconv.Itoa(n)
		}
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction resolves an action name or raw numeric code.
func ParseAction(text string) (Action, bool) {
	if a, ok := actionDictionary[text]; ok {
		return a, true
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	a := Action(n)
	if a.IsPatternAction() || a.IsReplaceAction() {
		return a, true
	}
	return 0, false
}
