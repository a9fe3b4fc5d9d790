package world

import (
	"context"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/hhramberg/gpengine/internal/compiler"
	"github.com/hhramberg/gpengine/internal/ir"
	"github.com/hhramberg/gpengine/internal/vm"
)

// Engine owns the wazero runtime and host-function linker for one world,
// and compiles and runs individuals against borrowed host state of type H.
// Per §5, the engine and linker are append-only during setup (host
// functions registered, then Finalize called once) and read-only
// thereafter; host state is exclusively borrowed by the VM for the
// duration of one Run call, enforced here by a mutex rather than by
// relying on callers to respect the single-threaded contract.
type Engine[H any] struct {
	runtime wazero.Runtime
	linker  *vm.Linker
	opts    compiler.Options

	mu      sync.Mutex
	current *H
}

// NewEngine constructs an engine for the given compile options. opts's
// Imports field is overwritten by Finalize once every host function has
// been registered.
func NewEngine[H any](ctx context.Context, opts compiler.Options) *Engine[H] {
	runtime := vm.NewRuntime(ctx)
	return &Engine[H]{
		runtime: runtime,
		linker:  vm.NewLinker(runtime),
		opts:    opts,
	}
}

// Linker exposes the host-function registrar so the world's owner can call
// AddFunctionImport for every native callback before Finalize.
func (e *Engine[H]) Linker() *vm.Linker { return e.linker }

// Finalize instantiates the host module and snapshots its registered
// imports into the compile options every subsequent Run uses. Must be
// called exactly once, after every host import has been registered.
func (e *Engine[H]) Finalize(ctx context.Context) error {
	if err := e.linker.Instantiate(ctx); err != nil {
		return err
	}
	e.opts.Imports = e.linker.Imports()
	return nil
}

// Close releases the underlying wazero runtime.
func (e *Engine[H]) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Host returns the host state currently borrowed by an in-flight Run call,
// for host function closures registered through Linker() to read and
// mutate. Returns nil outside of Run.
func (e *Engine[H]) Host() *H { return e.current }

// Run implements §4.5: compile code against the engine's options, invoke
// the exported entry point with args while host is exclusively borrowed,
// and return its raw results.
func (e *Engine[H]) Run(ctx context.Context, code []ir.Node, host *H, timeout time.Duration, args ...uint64) ([]uint64, error) {
	moduleBytes, err := compiler.Assemble(code, e.opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.current = host
	defer func() {
		e.current = nil
		e.mu.Unlock()
	}()

	return vm.Run(ctx, e.runtime, moduleBytes, e.opts.ExportName, args, timeout)
}
