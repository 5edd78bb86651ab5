// Package value implements the dynamically typed values that compiled
// programs manipulate. The compiler and optimizer only need a small part of
// the contract: type inspection, coercion, formatting and structural
// equality. Those are used for compile-time constant folding and for
// deduplicating pooled constants.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Type identifies the kind of a Value. The numeric codes are also the
// operand of the CVT instruction, so they must remain stable.
type Type int

const (
	Undefined Type = 0
	Integer   Type = 1
	Double    Type = 2
	Decimal   Type = 3
	Boolean   Type = 4
	String    Type = 5
	Array     Type = 6
	Record    Type = 7
)

var typeNames = map[Type]string{
	Undefined: "UNDEFINED",
	Integer:   "INTEGER",
	Double:    "DOUBLE",
	Decimal:   "DECIMAL",
	Boolean:   "BOOLEAN",
	String:    "STRING",
	Array:     "ARRAY",
	Record:    "RECORD",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// TypeByName returns the type with the given (case-insensitive) name.
func TypeByName(name string) (Type, bool) {
	name = strings.ToUpper(name)
	for t, n := range typeNames {
		if n == name && t != Undefined {
			return t, true
		}
	}
	return Undefined, false
}

// IsScalar reports whether values of this type are scalars.
func (t Type) IsScalar() bool {
	return t >= Integer && t <= String
}

// decimalContext is used for all decimal arithmetic and conversion.
var decimalContext = apd.BaseContext.WithPrecision(34)

// Value is a dynamically typed runtime value. Values are immutable once
// constructed, except records and arrays built with the Append/Set helpers
// before they are shared.
type Value struct {
	typ    Type
	i      int64
	d      float64
	dec    *apd.Decimal
	b      bool
	s      string
	elems  []*Value
	keys   []string
	fields map[string]*Value
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewInteger returns an integer value.
func NewInteger(i int64) *Value { return &Value{typ: Integer, i: i} }

// NewDouble returns a double value.
func NewDouble(d float64) *Value { return &Value{typ: Double, d: d} }

// NewBoolean returns a boolean value.
func NewBoolean(b bool) *Value { return &Value{typ: Boolean, b: b} }

// NewString returns a string value.
func NewString(s string) *Value { return &Value{typ: String, s: s} }

// NewDecimal returns a decimal value. The argument is copied.
func NewDecimal(d *apd.Decimal) *Value {
	c := new(apd.Decimal)
	c.Set(d)
	return &Value{typ: Decimal, dec: c}
}

// ParseDecimal parses a decimal literal such as "12.50".
func ParseDecimal(s string) (*Value, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return &Value{typ: Decimal, dec: d}, nil
}

// NewArray returns an array holding the given elements.
func NewArray(elems ...*Value) *Value {
	return &Value{typ: Array, elems: append([]*Value(nil), elems...)}
}

// NewRecord returns an empty record.
func NewRecord() *Value {
	return &Value{typ: Record, fields: make(map[string]*Value)}
}

// Set stores a record member. Member names are case-insensitive and kept in
// upper case, matching identifier handling in the compiler.
func (v *Value) Set(key string, member *Value) {
	key = strings.ToUpper(key)
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = member
}

// Append adds an element to an array value.
func (v *Value) Append(elem *Value) {
	v.elems = append(v.elems, elem)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Type returns the value's type.
func (v *Value) Type() Type {
	if v == nil {
		return Undefined
	}
	return v.typ
}

// Int returns the value as an integer, coercing when needed. Values that
// cannot be coerced yield zero.
func (v *Value) Int() int64 {
	if v.typ == Integer {
		return v.i
	}
	c, err := v.Coerce(Integer)
	if err != nil {
		return 0
	}
	return c.i
}

// Float returns the value as a double, coercing when needed.
func (v *Value) Float() float64 {
	if v.typ == Double {
		return v.d
	}
	c, err := v.Coerce(Double)
	if err != nil {
		return 0
	}
	return c.d
}

// Bool returns the value as a boolean, coercing when needed.
func (v *Value) Bool() bool {
	if v.typ == Boolean {
		return v.b
	}
	c, err := v.Coerce(Boolean)
	if err != nil {
		return false
	}
	return c.b
}

// Decimal returns the decimal payload, or nil for other types.
func (v *Value) Decimal() *apd.Decimal {
	return v.dec
}

// Len returns the element count of an array, member count of a record or
// rune count of a string.
func (v *Value) Len() int {
	switch v.typ {
	case Array:
		return len(v.elems)
	case Record:
		return len(v.keys)
	case String:
		return len([]rune(v.s))
	}
	return 0
}

// Elements returns the elements of an array value.
func (v *Value) Elements() []*Value { return v.elems }

// Keys returns record member names in insertion order.
func (v *Value) Keys() []string { return v.keys }

// Field returns a record member.
func (v *Value) Field(key string) (*Value, bool) {
	f, ok := v.fields[strings.ToUpper(key)]
	return f, ok
}

// ---------------------------------------------------------------------------
// Coercion
// ---------------------------------------------------------------------------

// Coerce converts the value to the requested type using the runtime's
// conversion rules: doubles truncate toward zero, numbers convert to
// booleans by comparing with zero, and numeric/string conversions are
// locale independent.
func (v *Value) Coerce(t Type) (*Value, error) {
	if v.typ == t {
		return v, nil
	}
	switch t {
	case Integer:
		return v.toInteger()
	case Double:
		return v.toDouble()
	case Decimal:
		return v.toDecimal()
	case Boolean:
		return v.toBoolean()
	case String:
		return NewString(v.String()), nil
	case Array:
		if v.typ == Record {
			break
		}
		return NewArray(v), nil
	}
	return nil, fmt.Errorf("cannot convert %s to %s", v.typ, t)
}

func (v *Value) toInteger() (*Value, error) {
	switch v.typ {
	case Double:
		if math.IsNaN(v.d) || math.IsInf(v.d, 0) {
			return nil, fmt.Errorf("cannot convert %v to INTEGER", v.d)
		}
		return NewInteger(int64(v.d)), nil
	case Decimal:
		var integ, frac apd.Decimal
		v.dec.Modf(&integ, &frac)
		i, err := integ.Int64()
		if err != nil {
			return nil, err
		}
		return NewInteger(i), nil
	case Boolean:
		if v.b {
			return NewInteger(1), nil
		}
		return NewInteger(0), nil
	case String:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return NewInteger(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NewInteger(int64(f)), nil
		}
		return nil, fmt.Errorf("invalid integer %q", v.s)
	}
	return nil, fmt.Errorf("cannot convert %s to INTEGER", v.typ)
}

func (v *Value) toDouble() (*Value, error) {
	switch v.typ {
	case Integer:
		return NewDouble(float64(v.i)), nil
	case Decimal:
		f, err := v.dec.Float64()
		if err != nil {
			return nil, err
		}
		return NewDouble(f), nil
	case Boolean:
		if v.b {
			return NewDouble(1), nil
		}
		return NewDouble(0), nil
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid double %q", v.s)
		}
		return NewDouble(f), nil
	}
	return nil, fmt.Errorf("cannot convert %s to DOUBLE", v.typ)
}

func (v *Value) toDecimal() (*Value, error) {
	d := new(apd.Decimal)
	switch v.typ {
	case Integer:
		d.SetInt64(v.i)
	case Double:
		if _, err := d.SetFloat64(v.d); err != nil {
			return nil, err
		}
	case Boolean:
		if v.b {
			d.SetInt64(1)
		}
	case String:
		return ParseDecimal(v.s)
	default:
		return nil, fmt.Errorf("cannot convert %s to DECIMAL", v.typ)
	}
	return &Value{typ: Decimal, dec: d}, nil
}

func (v *Value) toBoolean() (*Value, error) {
	switch v.typ {
	case Integer:
		return NewBoolean(v.i != 0), nil
	case Double:
		return NewBoolean(v.d != 0.0), nil
	case Decimal:
		return NewBoolean(!v.dec.IsZero()), nil
	case String:
		s := strings.ToLower(strings.TrimSpace(v.s))
		switch s {
		case "true", "yes":
			return NewBoolean(true), nil
		case "false", "no", "":
			return NewBoolean(false), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NewBoolean(f != 0), nil
		}
		return nil, fmt.Errorf("invalid boolean %q", v.s)
	}
	return nil, fmt.Errorf("cannot convert %s to BOOLEAN", v.typ)
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// FormatDouble formats a double the way the runtime prints it: shortest
// representation, no locale, no trailing zeros.
func FormatDouble(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}

// String returns the display form of the value. Strings are returned
// unquoted; nested strings inside arrays and records are quoted.
func (v *Value) String() string {
	if v == nil {
		return "<undefined>"
	}
	switch v.typ {
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Double:
		return FormatDouble(v.d)
	case Decimal:
		return v.dec.String()
	case Boolean:
		if v.b {
			return "true"
		}
		return "false"
	case String:
		return v.s
	case Array, Record:
		return v.Format()
	}
	return "<undefined>"
}

// Format returns a source-like representation, quoting strings.
func (v *Value) Format() string {
	switch v.typ {
	case String:
		return `"` + Escape(v.s) + `"`
	case Array:
		parts := make([]string, len(v.elems))
		for i, e := range v.elems {
			parts[i] = e.Format()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Record:
		parts := make([]string, len(v.keys))
		for i, k := range v.keys {
			parts[i] = k + ": " + v.fields[k].Format()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.String()
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Match reports structural equality: same type and equal contents,
// recursively for arrays and records. Record member order is ignored.
// Numbers match by representation, so -0.0 and 0.0 differ, as do decimal
// 1.0 and 1.00; every NaN matches every other NaN.
func (v *Value) Match(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Integer:
		return v.i == o.i
	case Double:
		if math.IsNaN(v.d) || math.IsNaN(o.d) {
			return math.IsNaN(v.d) && math.IsNaN(o.d)
		}
		return math.Float64bits(v.d) == math.Float64bits(o.d)
	case Decimal:
		return v.dec.Cmp(o.dec) == 0 && v.dec.Negative == o.dec.Negative && v.dec.Exponent == o.dec.Exponent
	case Boolean:
		return v.b == o.b
	case String:
		return v.s == o.s
	case Array:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Match(o.elems[i]) {
				return false
			}
		}
		return true
	case Record:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for _, k := range v.keys {
			of, ok := o.fields[k]
			if !ok || !v.fields[k].Match(of) {
				return false
			}
		}
		return true
	}
	return true
}

// Negate returns the arithmetic negation of a numeric value. Negating a
// string reverses its characters.
func (v *Value) Negate() (*Value, error) {
	switch v.typ {
	case Integer:
		return NewInteger(-v.i), nil
	case Double:
		return NewDouble(-v.d), nil
	case Decimal:
		d := new(apd.Decimal)
		if _, err := decimalContext.Neg(d, v.dec); err != nil {
			return nil, err
		}
		return &Value{typ: Decimal, dec: d}, nil
	case Boolean:
		return NewBoolean(!v.b), nil
	case String:
		return NewString(Reverse(v.s)), nil
	}
	return nil, fmt.Errorf("cannot negate %s", v.typ)
}
