package compiler

import (
	"sort"

	"github.com/chazu/mbasic/bytecode"
	"github.com/chazu/mbasic/status"
	"github.com/chazu/mbasic/value"
)

// InlineCompiler expands calls to known functions directly into the
// instruction stream. When name is not a function it knows, CompileInline
// leaves out untouched and returns false with either a nil error or one
// matching status.ErrUnknownFunc.
type InlineCompiler interface {
	CompileInline(name string, argc int, out *bytecode.Stream, constant bool) (bool, error)
}

// InlineFunction is one entry of a Registry. Emit is called after argc
// arguments have been pushed.
type InlineFunction struct {
	MinArgs int
	MaxArgs int // -1 for unlimited
	Emit    func(out *bytecode.Stream, argc int, constant bool)
}

// Registry is a static name to InlineFunction map.
type Registry struct {
	funcs map[string]InlineFunction
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]InlineFunction)}
}

// Register adds or replaces a function. Names are upper-case.
func (r *Registry) Register(name string, fn InlineFunction) {
	r.funcs[name] = fn
}

// Names returns the registered function names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CompileInline implements InlineCompiler.
func (r *Registry) CompileInline(name string, argc int, out *bytecode.Stream, constant bool) (bool, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return false, status.New(status.ErrUnknownFunc, "%s", name)
	}
	if argc < fn.MinArgs {
		return false, status.New(status.ErrArgCount, "%s needs at least %d", name, fn.MinArgs)
	}
	if fn.MaxArgs >= 0 && argc > fn.MaxArgs {
		return false, status.New(status.ErrArgCount, "%s accepts at most %d", name, fn.MaxArgs)
	}
	fn.Emit(out, argc, constant)
	return true, nil
}

func emitOp(op bytecode.Opcode) func(*bytecode.Stream, int, bool) {
	return func(out *bytecode.Stream, _ int, _ bool) {
		out.Emit(op)
	}
}

func emitConvert(t value.Type) func(*bytecode.Stream, int, bool) {
	return func(out *bytecode.Stream, _ int, _ bool) {
		out.EmitInt(bytecode.OpCvt, int64(t))
	}
}

// emitFold applies a binary operator argc-1 times.
func emitFold(op bytecode.Opcode) func(*bytecode.Stream, int, bool) {
	return func(out *bytecode.Stream, argc int, _ bool) {
		for i := 1; i < argc; i++ {
			out.Emit(op)
		}
	}
}

// DefaultRegistry returns the built-in inline functions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("LENGTH", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitOp(bytecode.OpLength)})
	r.Register("ABS", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitOp(bytecode.OpAbs)})
	r.Register("INTEGER", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitConvert(value.Integer)})
	r.Register("DOUBLE", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitConvert(value.Double)})
	r.Register("DECIMAL", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitConvert(value.Decimal)})
	r.Register("STRING", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitConvert(value.String)})
	r.Register("BOOLEAN", InlineFunction{MinArgs: 1, MaxArgs: 1, Emit: emitConvert(value.Boolean)})
	r.Register("MIN", InlineFunction{MinArgs: 1, MaxArgs: -1, Emit: emitFold(bytecode.OpMin)})
	r.Register("MAX", InlineFunction{MinArgs: 1, MaxArgs: -1, Emit: emitFold(bytecode.OpMax)})
	return r
}
