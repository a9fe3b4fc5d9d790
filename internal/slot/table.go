// Package slot implements the slot table: named numeric storage cells
// addressable by small integers from IR, classified by purpose (parameter,
// return, local, transient) and typed by value.Type.
package slot

import (
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/value"
)

// MaxSlots is the hard ceiling on |parameters| + |returns| + |locals|.
// Transient slots are not counted by that check, but they share the same
// 0-255 index space, so ReserveTransient fails once every index is taken;
// they are compiler bookkeeping, never observable from IR.
const MaxSlots = 256

// Purpose classifies how a slot may be used.
type Purpose uint8

const (
	// Parameter slots hold a caller-supplied value at function entry and
	// are never overwritten by the compiler's own initialization.
	Parameter Purpose = iota
	// Return slots are read, in declaration order, by a Return node. They
	// are zero-initialized at function entry.
	Return
	// Local slots are free for the IR program to use. Zero-initialized.
	Local
	// Transient slots are reserved by the compiler while lowering a single
	// IR node, then released. They are never referenced by IR directly.
	Transient
)

// Budget specifies how many locals of each primitive type to reserve,
// beyond the parameters and returns the entry signature already implies.
type Budget struct {
	I32 uint8
	I64 uint8
	F32 uint8
	F64 uint8
}

// Len returns the total number of local slots the budget describes.
func (b Budget) Len() int {
	return int(b.I32) + int(b.I64) + int(b.F32) + int(b.F64)
}

// Types returns, in slot-id order, the value.Type of each local the budget
// describes: all I32s, then all I64s, then all F32s, then all F64s.
func (b Budget) Types() []value.Type {
	out := make([]value.Type, 0, b.Len())
	for i := uint8(0); i < b.I32; i++ {
		out = append(out, value.I32)
	}
	for i := uint8(0); i < b.I64; i++ {
		out = append(out, value.I64)
	}
	for i := uint8(0); i < b.F32; i++ {
		out = append(out, value.F32)
	}
	for i := uint8(0); i < b.F64; i++ {
		out = append(out, value.F64)
	}
	return out
}

// cell describes one entry of the table.
type cell struct {
	typ     value.Type
	purpose Purpose
	inUse   bool // meaningful only for Transient cells.
}

// Table is the slot table for one compile context. It is constructed once,
// from a function signature and a Budget, and discarded with the context.
type Table struct {
	cells       []cell
	transientAt int // index into cells where transient cells begin.
}

// New builds a Table from the ordered parameter and result types plus the
// local Budget. Returns a configuration error if the total slot count
// exceeds MaxSlots.
func New(params, results []value.Type, locals Budget) (*Table, error) {
	total := len(params) + len(results) + locals.Len()
	if total > MaxSlots {
		return nil, gperrors.Configuration("slot count %d exceeds maximum of %d", total, MaxSlots)
	}

	t := &Table{cells: make([]cell, 0, total)}
	for _, p := range params {
		t.cells = append(t.cells, cell{typ: p, purpose: Parameter, inUse: true})
	}
	for _, r := range results {
		t.cells = append(t.cells, cell{typ: r, purpose: Return, inUse: true})
	}
	for _, l := range locals.Types() {
		t.cells = append(t.cells, cell{typ: l, purpose: Local, inUse: true})
	}
	t.transientAt = len(t.cells)
	return t, nil
}

// TypeOf returns the type of slot s, failing if s is out of range or
// transient: transient slots are invisible to IR.
func (t *Table) TypeOf(s uint8) (value.Type, error) {
	if int(s) >= len(t.cells) {
		return 0, gperrors.Compile("slot %d is out of range", s)
	}
	c := t.cells[s]
	if c.purpose == Transient {
		return 0, gperrors.Compile("slot %d is a transient slot, not addressable from IR", s)
	}
	return c.typ, nil
}

// ReturnSlots returns, in declaration order, the slot ids classified as
// Return.
func (t *Table) ReturnSlots() []uint8 {
	var out []uint8
	for i, c := range t.cells {
		if c.purpose == Return {
			out = append(out, uint8(i))
		}
	}
	return out
}

// LocalDeclTypes returns the types of every non-parameter slot (returns
// first, then locals, then transients that have been reserved so far), in
// slot-id order, matching the order a compiled function declares its
// locals in.
func (t *Table) LocalDeclTypes() []value.Type {
	out := make([]value.Type, 0, len(t.cells))
	for _, c := range t.cells {
		if c.purpose != Parameter {
			out = append(out, c.typ)
		}
	}
	return out
}

// Handle identifies a reserved transient slot. Release must be called
// exactly once, typically via defer, when the IR node that reserved it
// finishes emitting.
type Handle struct {
	table *Table
	index uint8
}

// Slot returns the slot id the handle reserved.
func (h Handle) Slot() uint8 {
	return h.index
}

// Release returns the transient slot to the freelist, partitioned by type,
// so a later reservation of the same type can reuse it. Transient slots
// must never be observable across IR operations; Release enforces that by
// making the index available for reuse once the current node is done with
// it.
func (h Handle) Release() {
	h.table.cells[h.index].inUse = false
}

// ReserveTransient returns a scratch slot of type typ for use while lowering
// a single IR node. It first looks for a released transient cell of the
// same type before allocating a new one past the end of the table.
func (t *Table) ReserveTransient(typ value.Type) (Handle, error) {
	for i := t.transientAt; i < len(t.cells); i++ {
		c := t.cells[i]
		if c.purpose == Transient && !c.inUse && c.typ == typ {
			t.cells[i].inUse = true
			return Handle{table: t, index: uint8(i)}, nil
		}
	}

	index := len(t.cells)
	if index > 0xff {
		return Handle{}, gperrors.Compile("ran out of slot indices while reserving a transient %s", typ)
	}
	t.cells = append(t.cells, cell{typ: typ, purpose: Transient, inUse: true})
	return Handle{table: t, index: uint8(index)}, nil
}
