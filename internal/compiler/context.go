// Package compiler lowers package ir programs into WebAssembly bytecode
// using package encoder, implementing slot coercion, structured control
// flow with break targets, and division-by-zero guards.
package compiler

import (
	"github.com/hhramberg/gpengine/internal/encoder"
	"github.com/hhramberg/gpengine/internal/slot"
	"github.com/hhramberg/gpengine/internal/value"
)

// breakFrame records the nesting depth at which a loop's outer block was
// entered, so a Break or BreakIf lowered anywhere inside that loop's body
// (however deeply nested in If constructs) can compute the branch operand
// that exits exactly that block, per the outer-block/inner-loop skeleton
// every loop variant shares.
type breakFrame struct {
	outerDepth int
}

// Context is constructed fresh for each IR-to-module compilation: a slot
// table, the signedness policy driving integer widening and float/integer
// direction, and the caller's imported host-function signatures (which
// Call nodes need to know how many arguments and results to move). It is
// discarded once the module has been assembled.
type Context struct {
	Table   *slot.Table
	Signed  bool
	Imports []encoder.Signature

	depth  int
	breaks []breakFrame
}

// NewContext builds a compile context over table, with integer
// signedness policy signed and the host imports available to Call nodes
// in registration order.
func NewContext(table *slot.Table, signed bool, imports []encoder.Signature) *Context {
	return &Context{Table: table, Signed: signed, Imports: imports}
}

// loadSlot emits a load of slot s followed by the get-slot coercion to
// want, using the conversions encoder.Func.Convert emits.
func (c *Context) loadSlot(f *encoder.Func, s uint8, want value.Type) error {
	have, err := c.Table.TypeOf(s)
	if err != nil {
		return err
	}
	f.LocalGet(s)
	f.Convert(have, want, c.Signed)
	return nil
}

// storeSlot emits the set-slot coercion from have to slot s's declared
// type, then stores. The value of type have must already be on the stack.
func (c *Context) storeSlot(f *encoder.Func, s uint8, have value.Type) error {
	want, err := c.Table.TypeOf(s)
	if err != nil {
		return err
	}
	f.Convert(have, want, c.Signed)
	f.LocalSet(s)
	return nil
}

// emitIsZero consumes the value of type t already on top of the stack and
// leaves an i32 boolean: the integer eqz instruction for integer types, or
// an explicit comparison against a typed zero constant for floats, per
// §4.2's division-by-zero guard description.
func (c *Context) emitIsZero(f *encoder.Func, t value.Type) {
	if t.IsInteger() {
		f.EqualToZero(t)
		return
	}
	switch t {
	case value.F32:
		f.ConstF32(0)
	case value.F64:
		f.ConstF64(0)
	}
	f.Equal(t)
}

// widestBitwise returns the operand type bitwise/shift nodes compute in:
// i32 only when both operand slots are already i32, i64 otherwise (floats
// among them are truncated to i64 by the normal get-slot coercion).
func widestBitwise(a, b value.Type) value.Type {
	if a == value.I32 && b == value.I32 {
		return value.I32
	}
	return value.I64
}

// widestBitwiseUnary is widestBitwise specialized to a single operand.
func widestBitwiseUnary(a value.Type) value.Type {
	if a == value.I32 {
		return value.I32
	}
	return value.I64
}

// floatSpace returns the operand type unary float-space nodes compute in:
// f32 if the source is already f32, else f64.
func floatSpace(a value.Type) value.Type {
	if a == value.F32 {
		return value.F32
	}
	return value.F64
}

// floatSpace2 is floatSpace generalized to two operands: f32 only when
// both are already f32.
func floatSpace2(a, b value.Type) value.Type {
	if a == value.F32 && b == value.F32 {
		return value.F32
	}
	return value.F64
}

// widestCompare returns the operand type comparison nodes compute in,
// following the preference order from §4.2: (i32,i32)->i32, any integer
// mix->i64, (f32,f32)->f32, anything else->f64.
func widestCompare(a, b value.Type) value.Type {
	if a == value.I32 && b == value.I32 {
		return value.I32
	}
	if a.IsInteger() && b.IsInteger() {
		return value.I64
	}
	if a == value.F32 && b == value.F32 {
		return value.F32
	}
	return value.F64
}

// pushBlock records entry into a plain (non-loop) structured construct: it
// does not push a break frame, since Break/BreakIf always target the
// nearest enclosing loop, but nested Break lowering still needs the depth
// counter incremented so its computed branch operand accounts for this
// extra level of nesting.
func (c *Context) pushBlock() { c.depth++ }
func (c *Context) popBlock()  { c.depth-- }

// pushLoop records entry into a loop's outer-block/inner-loop skeleton and
// pushes a breakFrame for it, which must be popped with popLoop once the
// loop body has been lowered.
func (c *Context) pushLoop() {
	outer := c.depth
	c.depth += 2
	c.breaks = append(c.breaks, breakFrame{outerDepth: outer})
}

// popLoop restores the depth counter and break stack pushed by pushLoop.
func (c *Context) popLoop() {
	c.depth -= 2
	c.breaks = c.breaks[:len(c.breaks)-1]
}

// breakOperand computes the Br/BrIf operand that exits the innermost
// active loop from the current nesting depth, or ok=false if no loop is
// active (Break/BreakIf lower to nothing outside any loop).
func (c *Context) breakOperand() (operand uint32, ok bool) {
	if len(c.breaks) == 0 {
		return 0, false
	}
	top := c.breaks[len(c.breaks)-1]
	return uint32(c.depth - top.outerDepth - 1), true
}
