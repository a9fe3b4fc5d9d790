package compiler

import (
	"github.com/hhramberg/gpengine/internal/encoder"
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/ir"
	"github.com/hhramberg/gpengine/internal/value"
)

// lowerProgram lowers a sibling sequence of nodes into one instruction
// stream. Composite nodes recurse into fresh buffers for their child
// bodies before splicing the result back in, which is how nested
// block/loop/if skeletons compose without any backpatching.
func lowerProgram(ctx *Context, nodes []ir.Node) ([]byte, error) {
	f := encoder.NewFunc()
	for _, n := range nodes {
		if err := lowerNode(ctx, f, n); err != nil {
			return nil, err
		}
	}
	return f.Bytes(), nil
}

func lowerNode(ctx *Context, f *encoder.Func, n ir.Node) error {
	switch n.Kind {
	case ir.ConstI32:
		f.ConstI32(n.ImmI32)
		return ctx.storeSlot(f, n.Slot1, value.I32)
	case ir.ConstI64:
		f.ConstI64(n.ImmI64)
		return ctx.storeSlot(f, n.Slot1, value.I64)
	case ir.ConstF32:
		f.ConstF32(n.ImmF32)
		return ctx.storeSlot(f, n.Slot1, value.F32)
	case ir.ConstF64:
		f.ConstF64(n.ImmF64)
		return ctx.storeSlot(f, n.Slot1, value.F64)

	case ir.Add:
		return lowerArith(ctx, f, n, (*encoder.Func).Add)
	case ir.Sub:
		return lowerArith(ctx, f, n, (*encoder.Func).Sub)
	case ir.Mul:
		return lowerArith(ctx, f, n, (*encoder.Func).Mul)
	case ir.Divide:
		return lowerDivide(ctx, f, n)
	case ir.Remainder:
		return lowerRemainder(ctx, f, n)

	case ir.And:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).And)
	case ir.Or:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).Or)
	case ir.Xor:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).Xor)
	case ir.ShiftLeft:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).ShiftLeft)
	case ir.ShiftRight:
		return lowerBitwiseBinary(ctx, f, n, func(f *encoder.Func, t value.Type) { f.ShiftRight(t, ctx.Signed) })
	case ir.RotateLeft:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).RotateLeft)
	case ir.RotateRight:
		return lowerBitwiseBinary(ctx, f, n, (*encoder.Func).RotateRight)
	case ir.CountLeadingZeros:
		return lowerBitwiseUnary(ctx, f, n, (*encoder.Func).CountLeadingZeros)
	case ir.CountTrailingZeros:
		return lowerBitwiseUnary(ctx, f, n, (*encoder.Func).CountTrailingZeros)
	case ir.PopulationCount:
		return lowerBitwiseUnary(ctx, f, n, (*encoder.Func).PopulationCount)

	case ir.AbsoluteValue:
		return lowerFloatUnary(ctx, f, n, (*encoder.Func).AbsoluteValue)
	case ir.Negate:
		return lowerFloatUnary(ctx, f, n, (*encoder.Func).Negate)
	case ir.SquareRoot:
		return lowerFloatUnary(ctx, f, n, func(f *encoder.Func, t value.Type) {
			f.AbsoluteValue(t)
			f.SquareRoot(t)
		})
	case ir.Ceiling:
		return lowerFloatUnary(ctx, f, n, (*encoder.Func).Ceiling)
	case ir.Floor:
		return lowerFloatUnary(ctx, f, n, (*encoder.Func).Floor)
	case ir.Nearest:
		return lowerFloatUnary(ctx, f, n, (*encoder.Func).Nearest)

	case ir.Min:
		return lowerFloatBinary(ctx, f, n, (*encoder.Func).Min)
	case ir.Max:
		return lowerFloatBinary(ctx, f, n, (*encoder.Func).Max)
	case ir.CopySign:
		return lowerFloatBinary(ctx, f, n, (*encoder.Func).CopySign)

	case ir.IsEqualZero:
		return lowerIsEqualZero(ctx, f, n)
	case ir.AreEqual:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.Equal(t) })
	case ir.AreNotEqual:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.NotEqual(t) })
	case ir.IsLessThan:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.LessThan(t, ctx.Signed) })
	case ir.IsGreaterThan:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.GreaterThan(t, ctx.Signed) })
	case ir.IsLessThanOrEqual:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.LessThanOrEqual(t, ctx.Signed) })
	case ir.IsGreaterThanOrEqual:
		return lowerCompare(ctx, f, n, func(f *encoder.Func, t value.Type) { f.GreaterThanOrEqual(t, ctx.Signed) })

	case ir.CopySlot:
		return lowerCopySlot(ctx, f, n)
	case ir.Return:
		return lowerReturn(ctx, f)
	case ir.Call:
		return lowerCall(ctx, f, n)

	case ir.If:
		return lowerIf(ctx, f, n)
	case ir.IfElse:
		return lowerIfElse(ctx, f, n)
	case ir.DoUntil:
		return lowerDoUntil(ctx, f, n)
	case ir.DoWhile:
		return lowerDoWhile(ctx, f, n)
	case ir.DoFor:
		return lowerDoFor(ctx, f, n)
	case ir.Break:
		return lowerBreak(ctx, f)
	case ir.BreakIf:
		return lowerBreakIf(ctx, f, n)

	default:
		return gperrors.Compile("unrecognized IR node kind %d", n.Kind)
	}
}

func lowerArith(ctx *Context, f *encoder.Func, n ir.Node, op func(*encoder.Func, value.Type)) error {
	dstType, err := ctx.Table.TypeOf(n.Slot3)
	if err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot1, dstType); err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot2, dstType); err != nil {
		return err
	}
	op(f, dstType)
	return ctx.storeSlot(f, n.Slot3, dstType)
}

// lowerDivide implements the §4.2 division-by-zero guard: the divisor is
// captured once into a transient slot, tested for zero, and the division
// and store are skipped entirely (leaving the destination unchanged) when
// it is.
func lowerDivide(ctx *Context, f *encoder.Func, n ir.Node) error {
	dstType, err := ctx.Table.TypeOf(n.Slot3)
	if err != nil {
		return err
	}
	h, err := ctx.Table.ReserveTransient(dstType)
	if err != nil {
		return err
	}
	defer h.Release()

	if err := ctx.loadSlot(f, n.Slot2, dstType); err != nil {
		return err
	}
	f.LocalSet(h.Slot())

	inner := encoder.NewFunc()
	inner.LocalGet(h.Slot())
	ctx.emitIsZero(inner, dstType)
	inner.BrIf(0)

	if err := ctx.loadSlot(inner, n.Slot1, dstType); err != nil {
		return err
	}
	inner.LocalGet(h.Slot())
	if dstType.IsInteger() {
		inner.DivideInteger(dstType, ctx.Signed)
	} else {
		inner.DivideFloat(dstType)
	}
	if err := ctx.storeSlot(inner, n.Slot3, dstType); err != nil {
		return err
	}

	f.Block(inner.Bytes())
	return nil
}

// lowerRemainder mirrors lowerDivide, except remainder always operates in
// integer space: float destinations are computed in i64 and converted back
// on store, per §4.2.
func lowerRemainder(ctx *Context, f *encoder.Func, n ir.Node) error {
	dstType, err := ctx.Table.TypeOf(n.Slot3)
	if err != nil {
		return err
	}
	opType := dstType
	if opType.IsFloat() {
		opType = value.I64
	}

	h, err := ctx.Table.ReserveTransient(opType)
	if err != nil {
		return err
	}
	defer h.Release()

	if err := ctx.loadSlot(f, n.Slot2, opType); err != nil {
		return err
	}
	f.LocalSet(h.Slot())

	inner := encoder.NewFunc()
	inner.LocalGet(h.Slot())
	ctx.emitIsZero(inner, opType)
	inner.BrIf(0)

	if err := ctx.loadSlot(inner, n.Slot1, opType); err != nil {
		return err
	}
	inner.LocalGet(h.Slot())
	inner.RemainderInteger(opType, ctx.Signed)
	if err := ctx.storeSlot(inner, n.Slot3, opType); err != nil {
		return err
	}

	f.Block(inner.Bytes())
	return nil
}

func lowerBitwiseBinary(ctx *Context, f *encoder.Func, n ir.Node, op func(*encoder.Func, value.Type)) error {
	leftType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	rightType, err := ctx.Table.TypeOf(n.Slot2)
	if err != nil {
		return err
	}
	opType := widestBitwise(leftType, rightType)

	if err := ctx.loadSlot(f, n.Slot1, opType); err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot2, opType); err != nil {
		return err
	}
	op(f, opType)
	return ctx.storeSlot(f, n.Slot3, opType)
}

func lowerBitwiseUnary(ctx *Context, f *encoder.Func, n ir.Node, op func(*encoder.Func, value.Type)) error {
	srcType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	opType := widestBitwiseUnary(srcType)

	if err := ctx.loadSlot(f, n.Slot1, opType); err != nil {
		return err
	}
	op(f, opType)
	return ctx.storeSlot(f, n.Slot2, opType)
}

func lowerFloatUnary(ctx *Context, f *encoder.Func, n ir.Node, op func(*encoder.Func, value.Type)) error {
	srcType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	opType := floatSpace(srcType)

	if err := ctx.loadSlot(f, n.Slot1, opType); err != nil {
		return err
	}
	op(f, opType)
	return ctx.storeSlot(f, n.Slot2, opType)
}

func lowerFloatBinary(ctx *Context, f *encoder.Func, n ir.Node, op func(*encoder.Func, value.Type)) error {
	leftType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	rightType, err := ctx.Table.TypeOf(n.Slot2)
	if err != nil {
		return err
	}
	opType := floatSpace2(leftType, rightType)

	if err := ctx.loadSlot(f, n.Slot1, opType); err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot2, opType); err != nil {
		return err
	}
	op(f, opType)
	return ctx.storeSlot(f, n.Slot3, opType)
}

func lowerIsEqualZero(ctx *Context, f *encoder.Func, n ir.Node) error {
	srcType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot1, srcType); err != nil {
		return err
	}
	ctx.emitIsZero(f, srcType)
	return ctx.storeSlot(f, n.Slot2, value.I32)
}

func lowerCompare(ctx *Context, f *encoder.Func, n ir.Node, cmp func(*encoder.Func, value.Type)) error {
	leftType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	rightType, err := ctx.Table.TypeOf(n.Slot2)
	if err != nil {
		return err
	}
	opType := widestCompare(leftType, rightType)

	if err := ctx.loadSlot(f, n.Slot1, opType); err != nil {
		return err
	}
	if err := ctx.loadSlot(f, n.Slot2, opType); err != nil {
		return err
	}
	cmp(f, opType)
	return ctx.storeSlot(f, n.Slot3, value.I32)
}

func lowerCopySlot(ctx *Context, f *encoder.Func, n ir.Node) error {
	srcType, err := ctx.Table.TypeOf(n.Slot1)
	if err != nil {
		return err
	}
	f.LocalGet(n.Slot1)
	return ctx.storeSlot(f, n.Slot2, srcType)
}

func lowerReturn(ctx *Context, f *encoder.Func) error {
	for _, s := range ctx.Table.ReturnSlots() {
		f.LocalGet(s)
	}
	f.Return()
	return nil
}

// lowerCall loads each argument, invokes the imported function, then
// stores its results in reverse order (the stack's top is the last
// return value). Short argument or result lists are padded out using
// slots 0..n, per §4.2's Call contract.
func lowerCall(ctx *Context, f *encoder.Func, n ir.Node) error {
	if int(n.FuncIndex) >= len(ctx.Imports) {
		return gperrors.Compile("call references unknown function index %d", n.FuncIndex)
	}
	sig := ctx.Imports[n.FuncIndex]

	for i, pt := range sig.Params {
		s := uint8(i)
		if i < len(n.Args) {
			s = n.Args[i]
		}
		if err := ctx.loadSlot(f, s, pt); err != nil {
			return err
		}
	}

	f.Call(n.FuncIndex)

	for i := len(sig.Results) - 1; i >= 0; i-- {
		rt := sig.Results[i]
		s := uint8(i)
		if i < len(n.Results) {
			s = n.Results[i]
		}
		if err := ctx.storeSlot(f, s, rt); err != nil {
			return err
		}
	}
	return nil
}

func lowerIf(ctx *Context, f *encoder.Func, n ir.Node) error {
	if err := ctx.loadSlot(f, n.Slot1, value.I32); err != nil {
		return err
	}
	ctx.pushBlock()
	thenBytes, err := lowerProgram(ctx, n.Body())
	ctx.popBlock()
	if err != nil {
		return err
	}
	f.If(thenBytes, nil)
	return nil
}

func lowerIfElse(ctx *Context, f *encoder.Func, n ir.Node) error {
	if err := ctx.loadSlot(f, n.Slot1, value.I32); err != nil {
		return err
	}
	ctx.pushBlock()
	thenBytes, err := lowerProgram(ctx, n.Body())
	if err != nil {
		ctx.popBlock()
		return err
	}
	elseBytes, err := lowerProgram(ctx, n.ElseBody())
	ctx.popBlock()
	if err != nil {
		return err
	}
	f.If(thenBytes, elseBytes)
	return nil
}

// wrapLoop wraps inner (a complete loop body, ending with its own branch
// instructions) in `loop ... end`, then that in `block ... end`, the
// outer-block/inner-loop skeleton every DoUntil/DoWhile/DoFor lowering
// shares: branch 0 reaches the loop head, branch 1 exits the block.
func wrapLoop(f *encoder.Func, inner *encoder.Func) {
	loopWrap := encoder.NewFunc()
	loopWrap.Loop(inner.Bytes())
	f.Block(loopWrap.Bytes())
}

// lowerDoUntil runs body at least once, testing cond after each pass.
func lowerDoUntil(ctx *Context, f *encoder.Func, n ir.Node) error {
	ctx.pushLoop()
	bodyBytes, err := lowerProgram(ctx, n.Body())
	ctx.popLoop()
	if err != nil {
		return err
	}

	inner := encoder.NewFunc()
	inner.Raw(bodyBytes)
	if err := ctx.loadSlot(inner, n.Slot1, value.I32); err != nil {
		return err
	}
	inner.BrIf(1)
	inner.Br(0)

	wrapLoop(f, inner)
	return nil
}

// lowerDoWhile tests cond before each pass, exiting immediately once it
// reads nonzero; this is the inverted "exits when nonzero" semantics
// documented on ir.NewDoWhile, preserved rather than corrected.
func lowerDoWhile(ctx *Context, f *encoder.Func, n ir.Node) error {
	ctx.pushLoop()

	inner := encoder.NewFunc()
	if err := ctx.loadSlot(inner, n.Slot1, value.I32); err != nil {
		ctx.popLoop()
		return err
	}
	inner.BrIf(1)

	bodyBytes, err := lowerProgram(ctx, n.Body())
	ctx.popLoop()
	if err != nil {
		return err
	}
	inner.Raw(bodyBytes)
	inner.Br(0)

	wrapLoop(f, inner)
	return nil
}

// lowerDoFor allocates a transient i32 counter initialized to the node's
// (already-clamped) iteration count, decrementing it once per pass and
// exiting when it reaches zero.
func lowerDoFor(ctx *Context, f *encoder.Func, n ir.Node) error {
	h, err := ctx.Table.ReserveTransient(value.I32)
	if err != nil {
		return err
	}
	defer h.Release()

	f.ConstI32(int32(n.Count))
	f.LocalSet(h.Slot())

	ctx.pushLoop()
	bodyBytes, err := lowerProgram(ctx, n.Body())
	ctx.popLoop()
	if err != nil {
		return err
	}

	inner := encoder.NewFunc()
	inner.LocalGet(h.Slot())
	inner.EqualToZero(value.I32)
	inner.BrIf(1)
	inner.Raw(bodyBytes)
	inner.LocalGet(h.Slot())
	inner.ConstI32(1)
	inner.Sub(value.I32)
	inner.LocalSet(h.Slot())
	inner.Br(0)

	wrapLoop(f, inner)
	return nil
}

func lowerBreak(ctx *Context, f *encoder.Func) error {
	if operand, ok := ctx.breakOperand(); ok {
		f.Br(operand)
	}
	return nil
}

func lowerBreakIf(ctx *Context, f *encoder.Func, n ir.Node) error {
	operand, ok := ctx.breakOperand()
	if !ok {
		return nil
	}
	if err := ctx.loadSlot(f, n.Slot1, value.I32); err != nil {
		return err
	}
	f.BrIf(operand)
	return nil
}
