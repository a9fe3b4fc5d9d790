package genetic_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hhramberg/gpengine/internal/genetic"
	"github.com/hhramberg/gpengine/internal/ir"
)

func sampleProgram() []ir.Node {
	return []ir.Node{
		ir.NewConstI32(0, 1),
		ir.NewIf(0, []ir.Node{ir.NewConstI32(1, 2)}),
		ir.NewReturn(),
	}
}

func TestMutateDoesNotAliasSource(t *testing.T) {
	original := sampleProgram()
	rng := rand.New(rand.NewPCG(1, 1))

	mutated := genetic.Mutate(original, 5, 4, rng)

	require.Equal(t, ir.ConstI32, original[0].Kind)
	require.Equal(t, int32(1), original[0].ImmI32)
	require.Len(t, mutated, len(original))
}

func TestMutatePreservesNodeKindsAndShape(t *testing.T) {
	original := sampleProgram()
	rng := rand.New(rand.NewPCG(2, 2))

	mutated := genetic.Mutate(original, 3, 4, rng)

	require.Len(t, mutated, len(original))
	for i := range mutated {
		require.Equal(t, original[i].Kind, mutated[i].Kind)
	}
	require.Len(t, mutated[1].Children[0], len(original[1].Children[0]))
}

func TestCrossoverSwapsOnlyMatchingKinds(t *testing.T) {
	a := sampleProgram()
	b := []ir.Node{
		ir.NewConstI32(0, 100),
		ir.NewIf(0, []ir.Node{ir.NewConstI32(1, 200)}),
		ir.NewReturn(),
	}
	rng := rand.New(rand.NewPCG(3, 3))

	childA, childB := genetic.Crossover(a, b, 2, rng)

	require.Len(t, childA, len(a))
	require.Len(t, childB, len(b))
	// Original slices are untouched.
	require.Equal(t, int32(1), a[0].ImmI32)
	require.Equal(t, int32(100), b[0].ImmI32)
	for i := range childA {
		require.Equal(t, a[i].Kind, childA[i].Kind)
	}
}

func TestRandomProgramRespectsSlotCount(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	program := genetic.RandomProgram(50, 4, 1, rng)

	require.Len(t, program, 50)
	for _, n := range program {
		require.Less(t, n.Slot1, uint8(4))
		require.Less(t, n.Slot2, uint8(4))
		require.Less(t, n.Slot3, uint8(4))
	}
}

func TestRandomProgramWithNoSlotsIsEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	require.Empty(t, genetic.RandomProgram(10, 0, 1, rng))
}
