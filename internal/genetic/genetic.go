// Package genetic implements the two genetic operators §4.10 names but
// the source leaves unimplemented (GeneticOperation exists as a
// configuration value in wasmgp's genetic_operation.rs with no operator
// bodies). Mutation and Crossover here are original work against the
// specification's structural-invariant contract: slot indices stay valid,
// control-flow nodes keep their required child lists, and no transient
// slot ever appears in the result.
package genetic

import (
	"math/rand/v2"

	"github.com/hhramberg/gpengine/internal/ir"
)

// Kind identifies which genetic operator a GeneticOperation applies.
type Kind uint8

const (
	// Mutation perturbs Points randomly chosen nodes in place.
	Mutation Kind = iota
	// Crossover swaps Points randomly chosen, kind-matched subtrees
	// between two parents.
	Crossover
)

// Operation pairs an operator with how many points it applies at.
type Operation struct {
	Kind   Kind
	Points uint8
}

// locator addresses one node within a program tree (possibly nested inside
// If/DoUntil/DoWhile/DoFor/IfElse child bodies), letting Mutate and
// Crossover read and overwrite it in place without otherwise restructuring
// the tree it was found in.
type locator struct {
	kind ir.Kind
	get  func() ir.Node
	set  func(ir.Node)
}

// flatten walks program and every nested child body, returning one locator
// per node encountered. The returned closures alias program's backing
// arrays directly, so callers must have already cloned the tree they want
// to mutate.
func flatten(program []ir.Node) []locator {
	var out []locator
	var walk func([]ir.Node)
	walk = func(nodes []ir.Node) {
		for i := range nodes {
			i := i
			nodes := nodes
			out = append(out, locator{
				kind: nodes[i].Kind,
				get:  func() ir.Node { return nodes[i] },
				set:  func(n ir.Node) { nodes[i] = n },
			})
			walk(nodes[i].Children[0])
			walk(nodes[i].Children[1])
		}
	}
	walk(program)
	return out
}

// Mutate returns a cloned, independently-owned copy of program with
// points randomly chosen nodes perturbed: immediate constants are nudged,
// DoFor counts are redrawn (clamped as ir.NewDoFor would), and slot
// operands are reassigned to a random valid slot in [0, slotCount). Node
// kinds, children, and Args/Results lengths are never touched, so every
// structural invariant §4.10 requires holds automatically.
func Mutate(program []ir.Node, points uint8, slotCount int, rng *rand.Rand) []ir.Node {
	out := ir.CloneProgram(program)
	if slotCount <= 0 {
		return out
	}
	locs := flatten(out)
	if len(locs) == 0 {
		return out
	}

	for p := uint8(0); p < points; p++ {
		loc := locs[rng.IntN(len(locs))]
		mutateOne(loc, slotCount, rng)
	}
	return out
}

func mutateOne(loc locator, slotCount int, rng *rand.Rand) {
	n := loc.get()
	randSlot := func() uint8 { return uint8(rng.IntN(slotCount)) }

	switch n.Kind {
	case ir.ConstI32:
		n.ImmI32 += int32(rng.IntN(7) - 3)
	case ir.ConstI64:
		n.ImmI64 += int64(rng.IntN(7) - 3)
	case ir.ConstF32:
		n.ImmF32 += float32(rng.IntN(7)-3) * 0.5
	case ir.ConstF64:
		n.ImmF64 += float64(rng.IntN(7)-3) * 0.5
	case ir.DoFor:
		n.Count = uint32(rng.IntN(ir.MaxDoForIterations + 1))
	case ir.Call:
		if len(n.Args) > 0 {
			n.Args[rng.IntN(len(n.Args))] = randSlot()
		}
		if len(n.Results) > 0 {
			n.Results[rng.IntN(len(n.Results))] = randSlot()
		}
	}

	// Every other node carries up to three plain slot operands; reassigning
	// one at random is always structurally valid regardless of Kind, since
	// Slot1/Slot2/Slot3 simply go unused by node kinds that don't read them.
	switch rng.IntN(3) {
	case 0:
		n.Slot1 = randSlot()
	case 1:
		n.Slot2 = randSlot()
	case 2:
		n.Slot3 = randSlot()
	}

	loc.set(n)
}

// Crossover returns two cloned children built by swapping points
// kind-matched subtrees between a and b. Matching subtrees by Kind before
// swapping guarantees the swapped nodes have identical operand and child
// shapes, so the result needs no further repair to satisfy §4.10's
// structural invariants.
func Crossover(a, b []ir.Node, points uint8, rng *rand.Rand) ([]ir.Node, []ir.Node) {
	childA := ir.CloneProgram(a)
	childB := ir.CloneProgram(b)

	locsA := flatten(childA)
	locsB := flatten(childB)
	if len(locsA) == 0 || len(locsB) == 0 {
		return childA, childB
	}

	for p := uint8(0); p < points; p++ {
		la, ok := pickMatching(locsA, locsB, rng)
		if !ok {
			continue
		}
		lb := la.match
		na, nb := la.a.get(), lb.get()
		la.a.set(nb)
		lb.set(na)
	}
	return childA, childB
}

type matchedPair struct {
	a     locator
	match locator
}

// pickMatching draws a random locator from locsA and searches locsB (from
// a random rotation, so repeated calls don't always prefer the same
// index) for one of the same Kind. Returns ok=false if no candidate in
// locsB shares a Kind with any attempted pick.
func pickMatching(locsA, locsB []locator, rng *rand.Rand) (matchedPair, bool) {
	startA := rng.IntN(len(locsA))
	startB := rng.IntN(len(locsB))
	for ai := 0; ai < len(locsA); ai++ {
		a := locsA[(startA+ai)%len(locsA)]
		for bi := 0; bi < len(locsB); bi++ {
			b := locsB[(startB+bi)%len(locsB)]
			if a.kind == b.kind {
				return matchedPair{a: a, match: b}, true
			}
		}
	}
	return matchedPair{}, false
}
