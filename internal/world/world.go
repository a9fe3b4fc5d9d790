package world

import (
	"math/rand/v2"

	"github.com/hhramberg/gpengine/internal/genetic"
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/individual"
	"github.com/hhramberg/gpengine/internal/island"
	"github.com/hhramberg/gpengine/internal/migration"
)

// defaultMutationPoints and defaultCrossoverPoints resolve an open question
// SPEC_FULL.md leaves unspecified: how many points each breeding operator
// applies per offspring. One point each matches wasmgp's examples, which
// never compound more than a single mutation or crossover per child.
const (
	defaultMutationPoints  = 1
	defaultCrossoverPoints = 1
)

// World owns one Engine, the island collection it drives, and the
// migration topology connecting them. H is the host state type every
// island's individuals run against; R is the per-individual result type.
// Grounded on wasmgp's genetic_engine.rs, which plays the corresponding
// top-level orchestration role.
type World[H any, R any] struct {
	engine   *Engine[H]
	cfg      Configuration
	migrator *migration.Migrator

	islands     []*island.Island[R]
	rngs        []*rand.Rand
	lastFittest []*individual.Individual[R]

	// rng drives migration-topology randomness (RandomCircular's
	// permutation, CompletelyRandom's per-individual draw), kept separate
	// from every island's own generator per §6's "not shared across
	// islands" rule for population-level randomness.
	rng *rand.Rand

	// islandSeed derives each new island's independent generator in
	// AddIsland.
	islandSeed uint64

	generation int
}

// NewWorld builds a world around an already-Finalized engine. seed sets the
// migration generator; each island added via AddIsland gets its own
// independent generator seeded from islandSeed plus its index.
func NewWorld[H any, R any](engine *Engine[H], cfg Configuration, seed, islandSeed uint64) *World[H, R] {
	return &World[H, R]{
		engine:     engine,
		cfg:        cfg,
		migrator:   migration.New(cfg.MigrationAlgorithm, cfg.MigrationCyclicalK),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		islandSeed: islandSeed,
	}
}

// AddIsland appends a new, empty island driven by callbacks and returns its
// index.
func (w *World[H, R]) AddIsland(callbacks island.Runner[R]) int {
	idx := len(w.islands)
	w.islands = append(w.islands, island.New[R](callbacks))
	seed := w.islandSeed + uint64(idx)
	w.rngs = append(w.rngs, rand.New(rand.NewPCG(seed, seed^0xbf58476d1ce4e5b9)))
	return idx
}

// Islands exposes the island collection for read-only inspection (e.g. a
// driver reporting each island's best individual after a run).
func (w *World[H, R]) Islands() []*island.Island[R] { return w.islands }

// Generation reports how many generations have completed.
func (w *World[H, R]) Generation() int { return w.generation }

// Fittest returns island idx's most fit individual from the generation
// RunGeneration most recently completed, or nil if that island had no
// individuals to sort.
func (w *World[H, R]) Fittest(idx int) *individual.Individual[R] {
	if idx < 0 || idx >= len(w.lastFittest) {
		return nil
	}
	return w.lastFittest[idx]
}

// SeedIsland appends individuals to island idx's current, unsorted
// population.
func (w *World[H, R]) SeedIsland(idx int, individuals ...*individual.Individual[R]) error {
	if idx < 0 || idx >= len(w.islands) {
		return gperrors.Configuration("island index %d out of range for %d islands", idx, len(w.islands))
	}
	w.islands[idx].Seed(individuals...)
	return nil
}

// RunGeneration implements §4.6-§4.9 for one full cycle across every
// island: run and sort each island's population, breed its replacement via
// elitism and genetic draw, fold in any migration cycle due this
// generation, then advance every island to its bred population.
func (w *World[H, R]) RunGeneration() {
	w.lastFittest = make([]*individual.Individual[R], len(w.islands))
	for i, isl := range w.islands {
		isl.RunOneGeneration()
		if best, err := isl.MostFitIndividual(); err == nil {
			w.lastFittest[i] = best
		}
	}

	incoming := w.planMigration()

	for i, isl := range w.islands {
		target := w.cfg.IndividualsPerIsland - len(incoming[i])
		if target < 0 {
			target = 0
		}
		w.breed(isl, w.rngs[i], target)
		for _, migrant := range incoming[i] {
			isl.AddToFuture(migrant)
		}
	}

	for _, isl := range w.islands {
		isl.AdvanceGeneration()
	}
	w.generation++
}

// planMigration reports, per destination island index, the migrants it
// should receive this cycle. It returns nil entries for every island when
// no migration is due, or when fewer than two islands exist.
func (w *World[H, R]) planMigration() [][]*individual.Individual[R] {
	n := len(w.islands)
	result := make([][]*individual.Individual[R], n)
	if n < 2 || w.cfg.GenerationsBetweenMigrations <= 0 || w.cfg.NumberOfIndividualsMigrating <= 0 {
		return result
	}
	if (w.generation+1)%w.cfg.GenerationsBetweenMigrations != 0 {
		return result
	}

	dest := w.migrator.PlanCycle(n, w.rng)
	for src, isl := range w.islands {
		for m := 0; m < w.cfg.NumberOfIndividualsMigrating; m++ {
			ind, err := isl.SelectOne(w.cfg.SelectForMigration, w.rngs[src])
			if err != nil {
				continue
			}
			if w.cfg.CloneMigratedIndividuals {
				ind = ind.Clone()
			}
			d := dest[src]
			if migration.IsPerIndividual(d) {
				d = migration.RandomDestination(src, n, w.rng)
			}
			result[d] = append(result[d], ind)
		}
	}
	return result
}

// breed fills count slots of isl's future population: up to
// EliteIndividualsPerGeneration are the island's most fit individuals,
// cloned verbatim; the remainder are bred from two parents drawn via
// SelectAsParent, combined with one crossover pass and one mutation pass.
func (w *World[H, R]) breed(isl *island.Island[R], rng *rand.Rand, count int) {
	if count <= 0 {
		return
	}

	elite := w.cfg.EliteIndividualsPerGeneration
	if elite > count {
		elite = count
	}
	for i := 0; i < elite && i < isl.Len(); i++ {
		ind, err := isl.At(isl.Len() - 1 - i)
		if err != nil {
			break
		}
		isl.AddToFuture(ind.Clone())
	}

	slotCount := len(w.cfg.MainEntryPoint.Params) + len(w.cfg.MainEntryPoint.Results) + w.cfg.WorkSlots.Len()

	for i := elite; i < count; i++ {
		first, err := isl.SelectOne(w.cfg.SelectAsParent, rng)
		if err != nil {
			return
		}
		second, err := isl.SelectOne(w.cfg.SelectAsParent, rng)
		if err != nil {
			return
		}

		childA, childB := genetic.Crossover(first.Code, second.Code, defaultCrossoverPoints, rng)
		code := childA
		if rng.IntN(2) == 0 {
			code = childB
		}
		code = genetic.Mutate(code, defaultMutationPoints, slotCount, rng)

		isl.AddToFuture(individual.New[R](code, nil))
	}
}
