package compiler_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hhramberg/gpengine/internal/compiler"
	"github.com/hhramberg/gpengine/internal/ir"
	"github.com/hhramberg/gpengine/internal/slot"
	"github.com/hhramberg/gpengine/internal/value"
	"github.com/hhramberg/gpengine/internal/vm"
)

func runProgram(t *testing.T, opts compiler.Options, program []ir.Node, args ...uint64) []uint64 {
	t.Helper()
	moduleBytes, err := compiler.Assemble(program, opts)
	require.NoError(t, err)

	ctx := context.Background()
	runtime := vm.NewRuntime(ctx)
	defer runtime.Close(ctx)

	results, err := vm.Run(ctx, runtime, moduleBytes, opts.ExportName, args, time.Second)
	require.NoError(t, err)
	return results
}

// Scenario 1: compile and run identity.
func TestCompileAndRunIdentity(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewCopySlot(0, 1), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeI32(42))
	require.Equal(t, int32(42), vm.DecodeI32(results[0]))
}

// Scenario 2: integer division guard leaves the destination slot unchanged
// when the divisor is zero.
func TestIntegerDivisionGuard(t *testing.T) {
	opts := compiler.Options{
		Entry: compiler.Signature{
			Params:  []value.Type{value.I32, value.I32},
			Results: []value.Type{value.I32},
		},
		ExportName: "entry",
	}

	preload := func(dividend, divisor int32) int32 {
		// The return slot (index 2) is zero-initialized by wasm locals; the
		// scenario's "preload return slot with 7" is expressed by running a
		// program that first writes 7, then divides, so a zero divisor
		// leaves that 7 in place.
		preloaded := []ir.Node{
			ir.NewConstI32(2, 7),
			ir.NewDivide(0, 1, 2),
			ir.NewReturn(),
		}
		results := runProgram(t, opts, preloaded, vm.EncodeI32(dividend), vm.EncodeI32(divisor))
		return vm.DecodeI32(results[0])
	}

	require.Equal(t, int32(7), preload(10, 0))
	require.Equal(t, int32(5), preload(10, 2))
}

// Scenario 3: DoFor executes its body exactly n times.
func TestDoForLoopCount(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		Locals:     slot.Budget{I32: 1},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewDoFor(3, []ir.Node{ir.NewAdd(0, 1, 1)}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(5))
	require.Equal(t, int32(15), vm.DecodeI32(results[0]))
}

// Scenario 4: Break inside DoFor stops the loop after its first iteration.
func TestBreakInsideDoFor(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewDoFor(10, []ir.Node{ir.NewAdd(0, 1, 1), ir.NewBreak()}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(5))
	require.Equal(t, int32(5), vm.DecodeI32(results[0]))
}

// Scenario 5: a host call round trips its arguments and result.
func TestHostCallRoundTrip(t *testing.T) {
	ctx := context.Background()
	runtime := vm.NewRuntime(ctx)
	defer runtime.Close(ctx)

	linker := vm.NewLinker(runtime)
	_, err := linker.AddFunctionImport("double", func(_ context.Context, x int32) int32 { return x * 2 })
	require.NoError(t, err)
	require.NoError(t, linker.Instantiate(ctx))

	opts := compiler.Options{
		Entry: compiler.Signature{
			Params:  []value.Type{value.I32, value.I32},
			Results: []value.Type{value.I32},
		},
		ExportName: "entry",
		Imports:    linker.Imports(),
	}
	program := []ir.Node{
		ir.NewAdd(0, 1, 2),
		ir.NewCall(0, []uint8{2}, []uint8{2}),
		ir.NewReturn(),
	}

	moduleBytes, err := compiler.Assemble(program, opts)
	require.NoError(t, err)

	results, err := vm.Run(ctx, runtime, moduleBytes, opts.ExportName, []uint64{vm.EncodeI32(1), vm.EncodeI32(2)}, time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(6), vm.DecodeI32(results[0]))
}

// If runs its body only when the compare slot is nonzero.
func TestIfRunsBodyOnlyWhenConditionIsNonzero(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewIf(0, []ir.Node{ir.NewConstI32(1, 42)}),
		ir.NewReturn(),
	}

	require.Equal(t, int32(42), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(1))[0]))
	require.Equal(t, int32(0), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(0))[0]))
}

// IfElse picks its else body when the compare slot is zero.
func TestIfElseSelectsBranchByCondition(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewIfElse(0, []ir.Node{ir.NewConstI32(1, 1)}, []ir.Node{ir.NewConstI32(1, 2)}),
		ir.NewReturn(),
	}

	require.Equal(t, int32(1), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(1))[0]))
	require.Equal(t, int32(2), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(0))[0]))
}

// DoUntil tests its condition after the body runs, so the body always runs
// at least once even when the condition is already true at entry.
func TestDoUntilRunsBodyAtLeastOnce(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		Locals:     slot.Budget{I32: 1},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewConstI32(2, 1),
		ir.NewDoUntil(0, []ir.Node{ir.NewAdd(1, 2, 1)}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(1))
	require.Equal(t, int32(1), vm.DecodeI32(results[0]))
}

// DoWhile tests its condition before the body runs and exits as soon as it
// reads nonzero, the inverted "while zero" semantics carried over from the
// source rather than the conventional "while nonzero" loop.
func TestDoWhileNeverRunsBodyWhenConditionStartsNonzero(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		Locals:     slot.Budget{I32: 1},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewConstI32(2, 1),
		ir.NewDoWhile(0, []ir.Node{ir.NewAdd(1, 2, 1)}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(1))
	require.Equal(t, int32(0), vm.DecodeI32(results[0]))
}

func TestDoWhileExitsAsSoonAsConditionBecomesNonzero(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		Locals:     slot.Budget{I32: 1},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewConstI32(2, 1),
		ir.NewDoWhile(0, []ir.Node{
			ir.NewAdd(1, 2, 1),
			ir.NewConstI32(0, 1),
		}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(0))
	require.Equal(t, int32(1), vm.DecodeI32(results[0]))
}

// BreakIf exits its innermost loop as soon as its compare slot reads
// nonzero, short-circuiting a DoFor that would otherwise run far longer.
func TestBreakIfExitsLoopOnceThresholdReached(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		Locals:     slot.Budget{I32: 2},
		ExportName: "entry",
	}
	program := []ir.Node{
		ir.NewConstI32(2, 1),
		ir.NewDoFor(10, []ir.Node{
			ir.NewAdd(1, 2, 1),
			ir.NewIsGreaterThanOrEqual(1, 0, 3),
			ir.NewBreakIf(3),
		}),
		ir.NewReturn(),
	}

	results := runProgram(t, opts, program, vm.EncodeI32(4))
	require.Equal(t, int32(4), vm.DecodeI32(results[0]))
}

// Bitwise binary operators compute in whichever of i32/i64 both operands
// already share, widening to i64 whenever either is not i32.
func TestBitwiseBinaryOperators(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32, value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	cases := []struct {
		name        string
		node        ir.Node
		left, right int32
		want        int32
	}{
		{"and", ir.NewAnd(0, 1, 2), 0b0110, 0b1010, 0b0010},
		{"or", ir.NewOr(0, 1, 2), 0b0110, 0b1010, 0b1110},
		{"xor", ir.NewXor(0, 1, 2), 0b0110, 0b1010, 0b1100},
		{"shiftLeft", ir.NewShiftLeft(0, 1, 2), 1, 4, 16},
		{"shiftRight", ir.NewShiftRight(0, 1, 2), 16, 2, 4},
		{"rotateLeft", ir.NewRotateLeft(0, 1, 2), 1, 1, 2},
		{"rotateRight", ir.NewRotateRight(0, 1, 2), 1, 1, math.MinInt32},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			program := []ir.Node{c.node, ir.NewReturn()}
			results := runProgram(t, opts, program, vm.EncodeI32(c.left), vm.EncodeI32(c.right))
			require.Equal(t, c.want, vm.DecodeI32(results[0]))
		})
	}
}

// A bitwise binary operator widens to i64 the moment either operand slot
// isn't already i32.
func TestBitwiseBinaryWidensMixedOperandTypes(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32, value.I64}, Results: []value.Type{value.I64}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewAnd(0, 1, 2), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeI32(6), vm.EncodeI64(10))
	require.Equal(t, int64(2), vm.DecodeI64(results[0]))
}

func TestBitwiseUnaryOperators(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	cases := []struct {
		name string
		node ir.Node
		in   int32
		want int32
	}{
		{"clz", ir.NewCountLeadingZeros(0, 1), 5, 29},
		{"ctz", ir.NewCountTrailingZeros(0, 1), 8, 3},
		{"popcnt", ir.NewPopulationCount(0, 1), 7, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			program := []ir.Node{c.node, ir.NewReturn()}
			results := runProgram(t, opts, program, vm.EncodeI32(c.in))
			require.Equal(t, c.want, vm.DecodeI32(results[0]))
		})
	}
}

// A bitwise unary operator widens to i64 whenever its source slot isn't
// already i32.
func TestBitwiseUnaryOperatesOverI64WhenSourceIsNotI32(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I64}, Results: []value.Type{value.I64}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewCountLeadingZeros(0, 1), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeI64(5))
	require.Equal(t, int64(61), vm.DecodeI64(results[0]))
}

func TestFloatUnaryOperators(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.F64}, Results: []value.Type{value.F64}},
		ExportName: "entry",
	}
	cases := []struct {
		name string
		node ir.Node
		in   float64
		want float64
	}{
		{"abs", ir.NewAbsoluteValue(0, 1), -3.5, 3.5},
		{"negate", ir.NewNegate(0, 1), 3.5, -3.5},
		{"sqrt", ir.NewSquareRoot(0, 1), -16, 4},
		{"ceil", ir.NewCeiling(0, 1), 1.2, 2},
		{"floor", ir.NewFloor(0, 1), 1.8, 1},
		{"nearest", ir.NewNearest(0, 1), 1.5, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			program := []ir.Node{c.node, ir.NewReturn()}
			results := runProgram(t, opts, program, vm.EncodeF64(c.in))
			require.InDelta(t, c.want, vm.DecodeF64(results[0]), 1e-9)
		})
	}
}

func TestFloatBinaryOperators(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.F64, value.F64}, Results: []value.Type{value.F64}},
		ExportName: "entry",
	}
	cases := []struct {
		name        string
		node        ir.Node
		left, right float64
		want        float64
	}{
		{"min", ir.NewMin(0, 1, 2), 3.5, 2.5, 2.5},
		{"max", ir.NewMax(0, 1, 2), 3.5, 2.5, 3.5},
		{"copysign", ir.NewCopySign(0, 1, 2), 3.5, -1.0, -3.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			program := []ir.Node{c.node, ir.NewReturn()}
			results := runProgram(t, opts, program, vm.EncodeF64(c.left), vm.EncodeF64(c.right))
			require.InDelta(t, c.want, vm.DecodeF64(results[0]), 1e-9)
		})
	}
}

// A float binary operator widens to f64 the moment either operand isn't
// already f32.
func TestFloatBinaryWidensMixedOperandTypes(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.F32, value.F64}, Results: []value.Type{value.F64}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewMin(0, 1, 2), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeF32(3.5), vm.EncodeF64(2.5))
	require.InDelta(t, 2.5, vm.DecodeF64(results[0]), 1e-9)
}

func TestCompareOperators(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32, value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	cases := []struct {
		name        string
		node        ir.Node
		left, right int32
		want        int32
	}{
		{"areEqual-true", ir.NewAreEqual(0, 1, 2), 4, 4, 1},
		{"areEqual-false", ir.NewAreEqual(0, 1, 2), 4, 5, 0},
		{"areNotEqual", ir.NewAreNotEqual(0, 1, 2), 4, 5, 1},
		{"isGreaterThan", ir.NewIsGreaterThan(0, 1, 2), 5, 4, 1},
		{"isLessThanOrEqual", ir.NewIsLessThanOrEqual(0, 1, 2), 4, 4, 1},
		{"isGreaterThanOrEqual", ir.NewIsGreaterThanOrEqual(0, 1, 2), 3, 4, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			program := []ir.Node{c.node, ir.NewReturn()}
			results := runProgram(t, opts, program, vm.EncodeI32(c.left), vm.EncodeI32(c.right))
			require.Equal(t, c.want, vm.DecodeI32(results[0]))
		})
	}
}

func TestIsEqualZero(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewIsEqualZero(0, 1), ir.NewReturn()}

	require.Equal(t, int32(1), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(0))[0]))
	require.Equal(t, int32(0), vm.DecodeI32(runProgram(t, opts, program, vm.EncodeI32(5))[0]))
}

// A compare operator computes in i64 the moment either integer operand
// isn't already i32, while its result slot always stores an i32 boolean.
func TestCompareWidensMixedIntegerOperandTypes(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.I32, value.I64}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewIsLessThan(0, 1, 2), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeI32(3), vm.EncodeI64(5))
	require.Equal(t, int32(1), vm.DecodeI32(results[0]))
}

func TestCompareFloatOperandsUseFloatSpace(t *testing.T) {
	opts := compiler.Options{
		Entry:      compiler.Signature{Params: []value.Type{value.F32, value.F32}, Results: []value.Type{value.I32}},
		ExportName: "entry",
	}
	program := []ir.Node{ir.NewAreEqual(0, 1, 2), ir.NewReturn()}

	results := runProgram(t, opts, program, vm.EncodeF32(1.5), vm.EncodeF32(1.5))
	require.Equal(t, int32(1), vm.DecodeI32(results[0]))
}

// Remainder mirrors Divide's zero-guard: a zero divisor leaves the
// destination slot unchanged instead of trapping.
func TestRemainderByZeroGuard(t *testing.T) {
	opts := compiler.Options{
		Entry: compiler.Signature{
			Params:  []value.Type{value.I32, value.I32},
			Results: []value.Type{value.I32},
		},
		ExportName: "entry",
	}

	preload := func(dividend, divisor int32) int32 {
		preloaded := []ir.Node{
			ir.NewConstI32(2, 7),
			ir.NewRemainder(0, 1, 2),
			ir.NewReturn(),
		}
		results := runProgram(t, opts, preloaded, vm.EncodeI32(dividend), vm.EncodeI32(divisor))
		return vm.DecodeI32(results[0])
	}

	require.Equal(t, int32(7), preload(10, 0))
	require.Equal(t, int32(1), preload(10, 3))
}

// Scenario: saturating float-to-integer conversion never traps on NaN,
// infinities, or out-of-range finite values; it clamps to the destination
// type's extremes (or zero for NaN) instead.
func TestSaturatingFloatToIntConversionNeverTraps(t *testing.T) {
	runF32ToI32 := func(v float32) int32 {
		opts := compiler.Options{
			Entry:      compiler.Signature{Params: []value.Type{value.F32}, Results: []value.Type{value.I32}},
			Signed:     true,
			ExportName: "entry",
		}
		program := []ir.Node{ir.NewCopySlot(0, 1), ir.NewReturn()}
		results := runProgram(t, opts, program, vm.EncodeF32(v))
		return vm.DecodeI32(results[0])
	}
	runF64ToI64 := func(v float64) int64 {
		opts := compiler.Options{
			Entry:      compiler.Signature{Params: []value.Type{value.F64}, Results: []value.Type{value.I64}},
			Signed:     true,
			ExportName: "entry",
		}
		program := []ir.Node{ir.NewCopySlot(0, 1), ir.NewReturn()}
		results := runProgram(t, opts, program, vm.EncodeF64(v))
		return vm.DecodeI64(results[0])
	}

	require.Equal(t, int32(0), runF32ToI32(float32(math.NaN())))
	require.Equal(t, int32(math.MaxInt32), runF32ToI32(float32(math.Inf(1))))
	require.Equal(t, int32(math.MinInt32), runF32ToI32(float32(math.Inf(-1))))
	require.Equal(t, int32(math.MaxInt32), runF32ToI32(1e20))

	require.Equal(t, int64(0), runF64ToI64(math.NaN()))
	require.Equal(t, int64(math.MaxInt64), runF64ToI64(math.Inf(1)))
	require.Equal(t, int64(math.MinInt64), runF64ToI64(math.Inf(-1)))
	require.Equal(t, int64(math.MinInt64), runF64ToI64(-1e30))
}
