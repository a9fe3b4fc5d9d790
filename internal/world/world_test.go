package world_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hhramberg/gpengine/internal/genetic"
	"github.com/hhramberg/gpengine/internal/individual"
	"github.com/hhramberg/gpengine/internal/ir"
	"github.com/hhramberg/gpengine/internal/migration"
	"github.com/hhramberg/gpengine/internal/selection"
	"github.com/hhramberg/gpengine/internal/slot"
	"github.com/hhramberg/gpengine/internal/world"
)

// host is an empty host state: these tests exercise only the generation,
// breeding and migration bookkeeping in World, never actual wazero
// execution, so no engine needs to be built.
type host struct{}

// taggingRunner scores every individual identically and never touches its
// Code, so the only thing that can move an individual's tagged marker
// between islands is elitism or migration cloning, never a genetic
// operator perturbing it.
type taggingRunner struct{}

func (taggingRunner) RunIndividual(ind *individual.Individual[int]) {
	zero := 0
	ind.Result = &zero
}

func (taggingRunner) ScoreIndividual(*individual.Individual[int]) uint64 { return 0 }

// taggedProgram builds a program whose first node records marker, so a
// test can trace which island's seed an individual descends from after a
// generation of breeding and migration.
func taggedProgram(marker int32, rng *rand.Rand) []ir.Node {
	body := genetic.RandomProgram(4, 4, 0, rng)
	return append([]ir.Node{ir.NewConstI32(0, marker)}, body...)
}

// markerOf returns the synthetic seed marker for island idx.
func markerOf(idx int) int32 { return int32(idx+1) * 1000 }

// markerIn reports the marker tag of code, if it starts with one.
func markerIn(code []ir.Node) (int32, bool) {
	if len(code) == 0 || code[0].Kind != ir.ConstI32 {
		return 0, false
	}
	return code[0].ImmI32, true
}

// newTaggedWorld builds a world of n islands, each seeded with
// individualsPerIsland individuals tagged with that island's marker, with
// elitism wide enough to clone every current individual into the next
// generation verbatim whenever no migrant displaces it. This isolates the
// population-size and migration-landing invariants from the genetic
// operators, which are already covered in internal/genetic's own tests.
func newTaggedWorld(t *testing.T, islands, individualsPerIsland int) *world.World[host, int] {
	t.Helper()

	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	cfg.IndividualsPerIsland = individualsPerIsland
	cfg.EliteIndividualsPerGeneration = individualsPerIsland
	cfg.GenerationsBetweenMigrations = 2
	cfg.NumberOfIndividualsMigrating = 2
	cfg.MigrationAlgorithm = migration.Circular
	cfg.CloneMigratedIndividuals = true
	cfg.SelectForMigration = selection.Fair
	cfg.WorkSlots = slot.Budget{I32: 4}
	require.NoError(t, cfg.Validate())

	var engine *world.Engine[host]
	w := world.NewWorld[host, int](engine, cfg, 1, 2)

	rng := rand.New(rand.NewPCG(99, 7))
	for i := 0; i < islands; i++ {
		w.AddIsland(taggingRunner{})
		seed := make([]*individual.Individual[int], 0, individualsPerIsland)
		for j := 0; j < individualsPerIsland; j++ {
			seed = append(seed, individual.New[int](taggedProgram(markerOf(i), rng), nil))
		}
		require.NoError(t, w.SeedIsland(i, seed...))
	}
	return w
}

func TestRunGenerationPreservesPopulationSize(t *testing.T) {
	w := newTaggedWorld(t, 3, 6)

	for g := 0; g < 5; g++ {
		w.RunGeneration()
		for i, isl := range w.Islands() {
			require.Equal(t, 6, isl.Len(), "island %d after generation %d", i, g)
		}
	}
	require.Equal(t, 5, w.Generation())
}

func TestRunGenerationReportsFittestPerIsland(t *testing.T) {
	w := newTaggedWorld(t, 2, 4)

	w.RunGeneration()
	for i := range w.Islands() {
		require.NotNil(t, w.Fittest(i), "island %d", i)
	}
	require.Nil(t, w.Fittest(-1))
	require.Nil(t, w.Fittest(len(w.Islands())))
}

// Circular migration sends island i's migrants to island (i+1) mod n; once
// a migration cycle runs, a destination island's population must contain
// at least one clone tagged with its upstream source island's marker.
func TestMigrationLandsClonedIndividualsInDestinationIsland(t *testing.T) {
	const n = 3
	w := newTaggedWorld(t, n, 6)

	w.RunGeneration() // generation 0: GenerationsBetweenMigrations=2, no cycle due yet
	w.RunGeneration() // generation 1: a migration cycle runs here

	islands := w.Islands()
	for dest := 0; dest < n; dest++ {
		source := (dest - 1 + n) % n
		wantMarker := markerOf(source)

		found := false
		for i := 0; i < islands[dest].Len(); i++ {
			ind, err := islands[dest].At(i)
			require.NoError(t, err)
			if m, ok := markerIn(ind.Code); ok && m == wantMarker {
				found = true
				break
			}
		}
		require.True(t, found, "island %d should contain a migrant tagged %d", dest, wantMarker)
	}
}

func TestSeedIslandRejectsOutOfRangeIndex(t *testing.T) {
	w := newTaggedWorld(t, 1, 2)
	err := w.SeedIsland(5)
	require.Error(t, err)
}
