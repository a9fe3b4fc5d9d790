// Package vm embeds a wazero runtime: it links the world's host functions
// under a fixed module namespace and runs compiled individuals against
// borrowed host state, enforcing each execution's wall-clock budget.
package vm

import (
	"context"
	"reflect"

	"github.com/tetratelabs/wazero"

	"github.com/hhramberg/gpengine/internal/encoder"
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/value"
)

// hostModuleName is the fixed namespace every host import is linked under,
// per §4.6 and §6 ("the example uses host").
const hostModuleName = "host"

// Linker accumulates host function imports and builds the wazero host
// module they are resolved against. One Linker is shared read-only across
// every individual's compilation and execution in a world, matching
// §5's "the imported function table is read-only after world construction"
// invariant.
type Linker struct {
	runtime wazero.Runtime
	builder wazero.HostModuleBuilder
	entries []encoder.Import
	built   bool
}

// NewLinker begins linking against runtime, which the caller owns and must
// close after the world is done with it.
func NewLinker(runtime wazero.Runtime) *Linker {
	return &Linker{runtime: runtime, builder: runtime.NewHostModuleBuilder(hostModuleName)}
}

// AddFunctionImport registers fn under name and returns the stable 0-based
// index later Call nodes reference. fn's signature is discovered by
// reflection over its Go function type and normalized to the four value
// tags the boundary supports; every parameter and result must be one of
// int32, int64, float32 or float64 (optionally prefixed by a
// context.Context parameter, which wazero supplies at call time and the
// signature discovery skips).
func (l *Linker) AddFunctionImport(name string, fn any) (uint32, error) {
	if l.built {
		return 0, gperrors.Configuration("cannot add import %q after the linker has been built", name)
	}

	sig, err := discoverSignature(fn)
	if err != nil {
		return 0, gperrors.Configuration("import %q: %v", name, err)
	}

	index := uint32(len(l.entries))
	l.builder = l.builder.NewFunctionBuilder().WithFunc(fn).Export(name)
	l.entries = append(l.entries, encoder.Import{Name: name, Sig: sig})
	return index, nil
}

// Imports returns the registered imports in stable index order, the form
// package compiler's Options.Imports expects.
func (l *Linker) Imports() []encoder.Import {
	out := make([]encoder.Import, len(l.entries))
	copy(out, l.entries)
	return out
}

// Instantiate builds the host module so its exports become resolvable by
// subsequent module instantiations. Call once, after every import has been
// registered.
func (l *Linker) Instantiate(ctx context.Context) error {
	if l.built {
		return nil
	}
	if _, err := l.builder.Instantiate(ctx); err != nil {
		return gperrors.Instantiation(err, "host module")
	}
	l.built = true
	return nil
}

func discoverSignature(fn any) (encoder.Signature, error) {
	rt := reflect.TypeOf(fn)
	if rt == nil || rt.Kind() != reflect.Func {
		return encoder.Signature{}, gperrors.Configuration("host import must be a function, got %T", fn)
	}

	var sig encoder.Signature
	start := 0
	if rt.NumIn() > 0 && rt.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
		start = 1
	}
	for i := start; i < rt.NumIn(); i++ {
		t, err := goTypeToValue(rt.In(i))
		if err != nil {
			return encoder.Signature{}, err
		}
		sig.Params = append(sig.Params, t)
	}
	for i := 0; i < rt.NumOut(); i++ {
		t, err := goTypeToValue(rt.Out(i))
		if err != nil {
			return encoder.Signature{}, err
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, nil
}

func goTypeToValue(t reflect.Type) (value.Type, error) {
	switch t.Kind() {
	case reflect.Int32:
		return value.I32, nil
	case reflect.Int64:
		return value.I64, nil
	case reflect.Float32:
		return value.F32, nil
	case reflect.Float64:
		return value.F64, nil
	default:
		return 0, gperrors.Configuration("unsupported host function type %s; only int32, int64, float32, float64 cross the boundary", t)
	}
}
