package genetic

import (
	"math/rand/v2"

	"github.com/hhramberg/gpengine/internal/ir"
)

// RandomProgram builds a flat sequence of length random arithmetic,
// comparison and host-call nodes operating over slots in [0, slotCount),
// for seeding a world's initial population before any breeding has
// happened. Call nodes reference a uniformly chosen import in
// [0, importCount) with empty Args/Results, which lowerCall pads to slots
// 0..n per its short-argument-list rule, so a generated program compiles
// whenever every import takes and returns no more values than the slot
// table holds; a larger arity makes the padded slot index out of range.
func RandomProgram(length, slotCount, importCount int, rng *rand.Rand) []ir.Node {
	if slotCount <= 0 {
		return nil
	}
	out := make([]ir.Node, 0, length)
	randSlot := func() uint8 { return uint8(rng.IntN(slotCount)) }

	for i := 0; i < length; i++ {
		choice := rng.IntN(10)
		switch {
		case choice < 3:
			out = append(out, ir.NewConstI32(randSlot(), int32(rng.IntN(21)-10)))
		case choice < 5:
			out = append(out, ir.NewAdd(randSlot(), randSlot(), randSlot()))
		case choice < 6:
			out = append(out, ir.NewSub(randSlot(), randSlot(), randSlot()))
		case choice < 7:
			out = append(out, ir.NewIsLessThan(randSlot(), randSlot(), randSlot()))
		case choice < 8 && importCount > 0:
			out = append(out, ir.NewCall(uint32(rng.IntN(importCount)), nil, nil))
		default:
			out = append(out, ir.NewCopySlot(randSlot(), randSlot()))
		}
	}
	return out
}
