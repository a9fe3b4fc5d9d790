package encoder

import "github.com/hhramberg/gpengine/internal/value"

// valType maps a value.Type to its WebAssembly binary value-type byte.
func valType(t value.Type) byte {
	switch t {
	case value.I32:
		return 0x7F
	case value.I64:
		return 0x7E
	case value.F32:
		return 0x7D
	case value.F64:
		return 0x7C
	default:
		panic("encoder: invalid value.Type")
	}
}

// Func accumulates the instruction byte stream for one function body.
// Control-flow nodes build their nested bodies into a fresh Func and splice
// the resulting bytes into the parent, which is how the structured
// block/loop/if skeleton of package compiler composes without any
// backpatching: branch targets are just a static count of enclosing blocks.
type Func struct {
	code []byte
}

// NewFunc returns an empty instruction builder.
func NewFunc() *Func { return &Func{} }

// Bytes returns the accumulated instruction stream, not yet wrapped with a
// trailing End opcode.
func (f *Func) Bytes() []byte { return f.code }

func (f *Func) op(b byte) { f.code = append(f.code, b) }

// Raw appends an already-built instruction sequence verbatim, the
// mechanism composite lowerings use to splice a recursively-built child
// body into its parent before wrapping it with Block/Loop/If.
func (f *Func) Raw(b []byte) { f.code = append(f.code, b...) }

func (f *Func) opU32(b byte, n uint32) {
	f.code = append(f.code, b)
	f.code = putUvarint(f.code, uint64(n))
}

// LocalGet emits local.get for slot.
func (f *Func) LocalGet(slot uint8) { f.opU32(opLocalGet, uint32(slot)) }

// LocalSet emits local.set for slot.
func (f *Func) LocalSet(slot uint8) { f.opU32(opLocalSet, uint32(slot)) }

// ConstI32 emits i32.const imm.
func (f *Func) ConstI32(imm int32) {
	f.code = append(f.code, opI32Const)
	f.code = putVarint(f.code, int64(imm))
}

// ConstI64 emits i64.const imm.
func (f *Func) ConstI64(imm int64) {
	f.code = append(f.code, opI64Const)
	f.code = putVarint(f.code, imm)
}

// ConstF32 emits f32.const imm.
func (f *Func) ConstF32(imm float32) {
	f.code = append(f.code, opF32Const)
	f.code = putFloat32(f.code, imm)
}

// ConstF64 emits f64.const imm.
func (f *Func) ConstF64(imm float64) {
	f.code = append(f.code, opF64Const)
	f.code = putFloat64(f.code, imm)
}

// Call emits a call to the imported or defined function at funcIndex.
func (f *Func) Call(funcIndex uint32) { f.opU32(opCall, funcIndex) }

// Return emits an explicit return.
func (f *Func) Return() { f.op(opReturn) }

// Br emits an unconditional branch exiting depth enclosing blocks/loops.
func (f *Func) Br(depth uint32) { f.opU32(opBr, depth) }

// BrIf emits a conditional branch, popping an i32 condition off the stack.
func (f *Func) BrIf(depth uint32) { f.opU32(opBrIf, depth) }

// Block wraps body (already-built instructions, without a trailing End) as
// a `block ... end` with an empty block type.
func (f *Func) Block(body []byte) {
	f.op(opBlock)
	f.op(blockTypeEmpty)
	f.code = append(f.code, body...)
	f.op(opEnd)
}

// Loop wraps body as a `loop ... end` with an empty block type.
func (f *Func) Loop(body []byte) {
	f.op(opLoop)
	f.op(blockTypeEmpty)
	f.code = append(f.code, body...)
	f.op(opEnd)
}

// If wraps thenBody (and, if non-nil, elseBody) as an `if ... else ... end`
// with an empty block type. Assumes the i32 condition is already on the
// stack.
func (f *Func) If(thenBody, elseBody []byte) {
	f.op(opIf)
	f.op(blockTypeEmpty)
	f.code = append(f.code, thenBody...)
	if elseBody != nil {
		f.op(opElse)
		f.code = append(f.code, elseBody...)
	}
	f.op(opEnd)
}

func (f *Func) numeric1(t value.Type, i32, i64, f32, f64 byte) {
	switch t {
	case value.I32:
		f.op(i32)
	case value.I64:
		f.op(i64)
	case value.F32:
		f.op(f32)
	case value.F64:
		f.op(f64)
	}
}

// Add emits the typed addition instruction.
func (f *Func) Add(t value.Type) { f.numeric1(t, opI32Add, opI64Add, opF32Add, opF64Add) }

// Sub emits the typed subtraction instruction.
func (f *Func) Sub(t value.Type) { f.numeric1(t, opI32Sub, opI64Sub, opF32Sub, opF64Sub) }

// Mul emits the typed multiplication instruction.
func (f *Func) Mul(t value.Type) { f.numeric1(t, opI32Mul, opI64Mul, opF32Mul, opF64Mul) }

// DivideInteger emits the signed or unsigned integer division instruction
// for t (I32 or I64), per signed.
func (f *Func) DivideInteger(t value.Type, signed bool) {
	if t == value.I32 {
		if signed {
			f.op(opI32DivS)
		} else {
			f.op(opI32DivU)
		}
		return
	}
	if signed {
		f.op(opI64DivS)
	} else {
		f.op(opI64DivU)
	}
}

// DivideFloat emits the typed float division instruction.
func (f *Func) DivideFloat(t value.Type) { f.numeric1(t, 0, 0, opF32Div, opF64Div) }

// RemainderInteger emits the signed or unsigned integer remainder
// instruction for t (I32 or I64).
func (f *Func) RemainderInteger(t value.Type, signed bool) {
	if t == value.I32 {
		if signed {
			f.op(opI32RemS)
		} else {
			f.op(opI32RemU)
		}
		return
	}
	if signed {
		f.op(opI64RemS)
	} else {
		f.op(opI64RemU)
	}
}

// And emits the typed bitwise AND instruction (I32 or I64).
func (f *Func) And(t value.Type) { f.numeric1(t, opI32And, opI64And, 0, 0) }

// Or emits the typed bitwise OR instruction (I32 or I64).
func (f *Func) Or(t value.Type) { f.numeric1(t, opI32Or, opI64Or, 0, 0) }

// Xor emits the typed bitwise XOR instruction (I32 or I64).
func (f *Func) Xor(t value.Type) { f.numeric1(t, opI32Xor, opI64Xor, 0, 0) }

// ShiftLeft emits the typed shift-left instruction (I32 or I64).
func (f *Func) ShiftLeft(t value.Type) { f.numeric1(t, opI32Shl, opI64Shl, 0, 0) }

// ShiftRight emits the typed arithmetic or logical shift-right instruction.
func (f *Func) ShiftRight(t value.Type, signed bool) {
	if t == value.I32 {
		if signed {
			f.op(opI32ShrS)
		} else {
			f.op(opI32ShrU)
		}
		return
	}
	if signed {
		f.op(opI64ShrS)
	} else {
		f.op(opI64ShrU)
	}
}

// RotateLeft emits the typed rotate-left instruction (I32 or I64).
func (f *Func) RotateLeft(t value.Type) { f.numeric1(t, opI32Rotl, opI64Rotl, 0, 0) }

// RotateRight emits the typed rotate-right instruction (I32 or I64).
func (f *Func) RotateRight(t value.Type) { f.numeric1(t, opI32Rotr, opI64Rotr, 0, 0) }

// CountLeadingZeros emits the typed clz instruction (I32 or I64).
func (f *Func) CountLeadingZeros(t value.Type) { f.numeric1(t, opI32Clz, opI64Clz, 0, 0) }

// CountTrailingZeros emits the typed ctz instruction (I32 or I64).
func (f *Func) CountTrailingZeros(t value.Type) { f.numeric1(t, opI32Ctz, opI64Ctz, 0, 0) }

// PopulationCount emits the typed popcnt instruction (I32 or I64).
func (f *Func) PopulationCount(t value.Type) { f.numeric1(t, opI32Popcnt, opI64Popcnt, 0, 0) }

// AbsoluteValue emits the typed float abs instruction (F32 or F64).
func (f *Func) AbsoluteValue(t value.Type) { f.numeric1(t, 0, 0, opF32Abs, opF64Abs) }

// Negate emits the typed float negate instruction (F32 or F64).
func (f *Func) Negate(t value.Type) { f.numeric1(t, 0, 0, opF32Neg, opF64Neg) }

// SquareRoot emits the typed float sqrt instruction (F32 or F64).
func (f *Func) SquareRoot(t value.Type) { f.numeric1(t, 0, 0, opF32Sqrt, opF64Sqrt) }

// Ceiling emits the typed float ceil instruction (F32 or F64).
func (f *Func) Ceiling(t value.Type) { f.numeric1(t, 0, 0, opF32Ceil, opF64Ceil) }

// Floor emits the typed float floor instruction (F32 or F64).
func (f *Func) Floor(t value.Type) { f.numeric1(t, 0, 0, opF32Floor, opF64Floor) }

// Nearest emits the typed float round-to-nearest instruction (F32 or F64).
func (f *Func) Nearest(t value.Type) { f.numeric1(t, 0, 0, opF32Nearest, opF64Nearest) }

// Min emits the typed float min instruction (F32 or F64).
func (f *Func) Min(t value.Type) { f.numeric1(t, 0, 0, opF32Min, opF64Min) }

// Max emits the typed float max instruction (F32 or F64).
func (f *Func) Max(t value.Type) { f.numeric1(t, 0, 0, opF32Max, opF64Max) }

// CopySign emits the typed float copysign instruction (F32 or F64).
func (f *Func) CopySign(t value.Type) { f.numeric1(t, 0, 0, opF32Copysign, opF64Copysign) }

// EqualToZero emits the typed eqz instruction (I32 or I64); result is i32.
func (f *Func) EqualToZero(t value.Type) { f.numeric1(t, opI32Eqz, opI64Eqz, 0, 0) }

// Equal emits the typed equality comparison; result is i32.
func (f *Func) Equal(t value.Type) { f.numeric1(t, opI32Eq, opI64Eq, opF32Eq, opF64Eq) }

// NotEqual emits the typed inequality comparison; result is i32.
func (f *Func) NotEqual(t value.Type) { f.numeric1(t, opI32Ne, opI64Ne, opF32Ne, opF64Ne) }

// LessThan emits the typed less-than comparison, honoring signed for
// integer types; result is i32.
func (f *Func) LessThan(t value.Type, signed bool) {
	switch t {
	case value.I32:
		if signed {
			f.op(opI32LtS)
		} else {
			f.op(opI32LtU)
		}
	case value.I64:
		if signed {
			f.op(opI64LtS)
		} else {
			f.op(opI64LtU)
		}
	case value.F32:
		f.op(opF32Lt)
	case value.F64:
		f.op(opF64Lt)
	}
}

// GreaterThan emits the typed greater-than comparison, honoring signed for
// integer types; result is i32.
func (f *Func) GreaterThan(t value.Type, signed bool) {
	switch t {
	case value.I32:
		if signed {
			f.op(opI32GtS)
		} else {
			f.op(opI32GtU)
		}
	case value.I64:
		if signed {
			f.op(opI64GtS)
		} else {
			f.op(opI64GtU)
		}
	case value.F32:
		f.op(opF32Gt)
	case value.F64:
		f.op(opF64Gt)
	}
}

// LessThanOrEqual emits the typed <= comparison, honoring signed for
// integer types; result is i32.
func (f *Func) LessThanOrEqual(t value.Type, signed bool) {
	switch t {
	case value.I32:
		if signed {
			f.op(opI32LeS)
		} else {
			f.op(opI32LeU)
		}
	case value.I64:
		if signed {
			f.op(opI64LeS)
		} else {
			f.op(opI64LeU)
		}
	case value.F32:
		f.op(opF32Le)
	case value.F64:
		f.op(opF64Le)
	}
}

// GreaterThanOrEqual emits the typed >= comparison, honoring signed for
// integer types; result is i32.
func (f *Func) GreaterThanOrEqual(t value.Type, signed bool) {
	switch t {
	case value.I32:
		if signed {
			f.op(opI32GeS)
		} else {
			f.op(opI32GeU)
		}
	case value.I64:
		if signed {
			f.op(opI64GeS)
		} else {
			f.op(opI64GeU)
		}
	case value.F32:
		f.op(opF32Ge)
	case value.F64:
		f.op(opF64Ge)
	}
}

func (f *Func) misc(sub uint32) {
	f.code = append(f.code, opMiscPrefix)
	f.code = putUvarint(f.code, uint64(sub))
}

// Convert emits the instruction(s) that convert the value on top of the
// stack from src to dst; package compiler applies it on every slot load and
// store. Integer-to-float conversion, i32-to-i64 extension and float
// truncation to integer honor signed; i64-to-i32 wrap ignores it. Float
// truncation to integer always saturates rather than trapping.
func (f *Func) Convert(src, dst value.Type, signed bool) {
	if src == dst {
		return
	}
	switch {
	case src == value.I32 && dst == value.I64:
		if signed {
			f.op(opI64ExtendI32S)
		} else {
			f.op(opI64ExtendI32U)
		}
	case src == value.I32 && dst == value.F32:
		if signed {
			f.op(opF32ConvertI32S)
		} else {
			f.op(opF32ConvertI32U)
		}
	case src == value.I32 && dst == value.F64:
		if signed {
			f.op(opF64ConvertI32S)
		} else {
			f.op(opF64ConvertI32U)
		}
	case src == value.I64 && dst == value.I32:
		f.op(opI32WrapI64)
	case src == value.I64 && dst == value.F32:
		if signed {
			f.op(opF32ConvertI64S)
		} else {
			f.op(opF32ConvertI64U)
		}
	case src == value.I64 && dst == value.F64:
		if signed {
			f.op(opF64ConvertI64S)
		} else {
			f.op(opF64ConvertI64U)
		}
	case src == value.F32 && dst == value.I32:
		if signed {
			f.misc(miscI32TruncSatF32S)
		} else {
			f.misc(miscI32TruncSatF32U)
		}
	case src == value.F32 && dst == value.I64:
		if signed {
			f.misc(miscI64TruncSatF32S)
		} else {
			f.misc(miscI64TruncSatF32U)
		}
	case src == value.F32 && dst == value.F64:
		f.op(opF64PromoteF32)
	case src == value.F64 && dst == value.I32:
		if signed {
			f.misc(miscI32TruncSatF64S)
		} else {
			f.misc(miscI32TruncSatF64U)
		}
	case src == value.F64 && dst == value.I64:
		if signed {
			f.misc(miscI64TruncSatF64S)
		} else {
			f.misc(miscI64TruncSatF64U)
		}
	case src == value.F64 && dst == value.F32:
		f.op(opF32DemoteF64)
	}
}
