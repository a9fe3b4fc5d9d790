package vm

import (
	"context"
	"math"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/hhramberg/gpengine/internal/gperrors"
)

// NewRuntime builds a wazero runtime configured to abort an in-flight call
// as soon as its context is cancelled, the mechanism Run relies on to
// enforce §5's per-individual wall-clock budget without leaking a goroutine
// per execution.
func NewRuntime(ctx context.Context) wazero.Runtime {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	return wazero.NewRuntimeWithConfig(ctx, cfg)
}

// EncodeI32 packs a signed 32-bit argument into wazero's raw uint64 calling
// convention.
func EncodeI32(v int32) uint64 { return uint64(uint32(v)) }

// EncodeI64 packs a signed 64-bit argument.
func EncodeI64(v int64) uint64 { return uint64(v) }

// EncodeF32 packs a 32-bit float argument.
func EncodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }

// EncodeF64 packs a 64-bit float argument.
func EncodeF64(v float64) uint64 { return math.Float64bits(v) }

// DecodeI32 unpacks a signed 32-bit result.
func DecodeI32(v uint64) int32 { return int32(uint32(v)) }

// DecodeI64 unpacks a signed 64-bit result.
func DecodeI64(v uint64) int64 { return int64(v) }

// DecodeF32 unpacks a 32-bit float result.
func DecodeF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }

// DecodeF64 unpacks a 64-bit float result.
func DecodeF64(v uint64) float64 { return math.Float64frombits(v) }

// Run implements §4.5 steps 3-4: it instantiates moduleBytes as an
// anonymous module (so host state is never shared between concurrent
// individuals of the same compiled program), invokes entryName with args,
// and returns its raw results. The instantiated module is always closed
// before Run returns, releasing its memory back to the runtime.
//
// If timeout elapses before the call returns, the call is aborted and Run
// returns an error wrapping gperrors.ErrTimeout; whatever partial effects
// the call had on host state (reachable only through imported host
// functions, since the module owns no externally-visible memory of its
// own) are left as they were at the moment of cancellation, per §5's "no
// retries" policy.
func Run(ctx context.Context, runtime wazero.Runtime, moduleBytes []byte, entryName string, args []uint64, timeout time.Duration) ([]uint64, error) {
	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, gperrors.Instantiation(err, "compiling individual")
	}
	defer compiled.Close(ctx)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	mod, err := runtime.InstantiateModule(runCtx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, gperrors.Instantiation(err, "instantiating individual")
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(entryName)
	if fn == nil {
		return nil, gperrors.Compile("entry point %q not exported", entryName)
	}

	results, err := fn.Call(runCtx, args...)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, gperrors.Combine(gperrors.ErrTimeout, err)
		}
		return nil, gperrors.Combine(gperrors.ErrRuntimeTrap, err)
	}
	return results, nil
}
