// Package island implements the per-island evolutionary loop: running a
// generation, sorting by fitness, and selecting individuals for parents,
// elites, or migrants. Grounded on wasmgp's island.rs, island_callbacks.rs
// and run_result.rs.
package island

import (
	"sort"

	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/individual"
	"github.com/hhramberg/gpengine/internal/selection"
)

// Runner is the one callback every island must supply: executing a single
// individual against host state and recording its result. It is the Go
// analogue of IslandCallbacks::run_individual, the sole method without a
// default in the source trait.
type Runner[R any] interface {
	RunIndividual(ind *individual.Individual[R])
}

// Sorter optionally orders two individuals least-fit to most-fit. If a
// Callbacks value does not implement Sorter, the island falls back to
// Scorer, then to treating every individual as equally fit, mirroring the
// source's layered trait defaults (sort_individuals defaults to comparing
// score_individual, which itself defaults to zero).
type Sorter[R any] interface {
	SortIndividuals(a, b *individual.Individual[R]) int
}

// Scorer optionally reduces an individual to a single fitness score, 0
// being the worst. Used as a fallback when Sorter is not implemented, and
// directly by ScoreForIndividual.
type Scorer[R any] interface {
	ScoreIndividual(ind *individual.Individual[R]) uint64
}

// PreGenerationHook optionally configures shared per-generation state
// before any individual runs (for example, fixing a simulation seed).
type PreGenerationHook[R any] interface {
	PreGenerationRun(individuals []*individual.Individual[R])
}

// PostGenerationHook optionally performs cleanup or group analysis after
// every individual has run, before sorting.
type PostGenerationHook[R any] interface {
	PostGenerationRun(individuals []*individual.Individual[R])
}

// Island holds one population subject to a private fitness policy. The
// zero value is not usable; construct with New.
type Island[R any] struct {
	callbacks Runner[R]
	sorter    Sorter[R]
	scorer    Scorer[R]
	pre       PreGenerationHook[R]
	post      PostGenerationHook[R]

	individuals []*individual.Individual[R]
	sorted      bool
	future      []*individual.Individual[R]
}

// New constructs an empty island driven by callbacks. callbacks must
// implement Runner; it may additionally implement any of Sorter, Scorer,
// PreGenerationHook and PostGenerationHook.
func New[R any](callbacks Runner[R]) *Island[R] {
	isl := &Island[R]{callbacks: callbacks}
	isl.sorter, _ = callbacks.(Sorter[R])
	isl.scorer, _ = callbacks.(Scorer[R])
	isl.pre, _ = callbacks.(PreGenerationHook[R])
	isl.post, _ = callbacks.(PostGenerationHook[R])
	return isl
}

// Len returns the current generation's population size.
func (isl *Island[R]) Len() int { return len(isl.individuals) }

// LenFuture returns the accumulated next generation's size.
func (isl *Island[R]) LenFuture() int { return len(isl.future) }

// Clear resets the island to its newly-constructed state.
func (isl *Island[R]) Clear() {
	isl.individuals = nil
	isl.sorted = false
	isl.future = nil
}

// Seed appends individuals to the current, unsorted generation; it is how
// a world populates an island before its first RunOneGeneration.
func (isl *Island[R]) Seed(individuals ...*individual.Individual[R]) {
	isl.individuals = append(isl.individuals, individuals...)
	isl.sorted = false
}

// compare orders a and b least-fit to most-fit using whichever of Sorter or
// Scorer the island's callbacks implement, falling back to treating every
// individual as equally fit.
func (isl *Island[R]) compare(a, b *individual.Individual[R]) int {
	switch {
	case isl.sorter != nil:
		return isl.sorter.SortIndividuals(a, b)
	case isl.scorer != nil:
		sa, sb := isl.scorer.ScoreIndividual(a), isl.scorer.ScoreIndividual(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// RunOneGeneration implements §4.7: pre-hook, run every individual,
// post-hook, then sort least-fit-first.
func (isl *Island[R]) RunOneGeneration() {
	if isl.pre != nil {
		isl.pre.PreGenerationRun(isl.individuals)
	}
	for _, ind := range isl.individuals {
		isl.callbacks.RunIndividual(ind)
	}
	if isl.post != nil {
		isl.post.PostGenerationRun(isl.individuals)
	}
	isl.SortIndividuals()
}

// SortIndividuals sorts the current population least-fit-first and marks
// it sorted. RunOneGeneration calls this already; it is exposed for
// callers that mutate the population out of band.
func (isl *Island[R]) SortIndividuals() {
	sort.SliceStable(isl.individuals, func(i, j int) bool {
		return isl.compare(isl.individuals[i], isl.individuals[j]) < 0
	})
	isl.sorted = true
}

// MostFitIndividual returns the individual sorted to the tail, or an
// island contract error if the population is unsorted.
func (isl *Island[R]) MostFitIndividual() (*individual.Individual[R], error) {
	if !isl.sorted {
		return nil, gperrors.IslandContract("island is not sorted")
	}
	if len(isl.individuals) == 0 {
		return nil, gperrors.IslandContract("island has no individuals")
	}
	return isl.individuals[len(isl.individuals)-1], nil
}

// LeastFitIndividual returns the individual sorted to the head, or an
// island contract error if the population is unsorted.
func (isl *Island[R]) LeastFitIndividual() (*individual.Individual[R], error) {
	if !isl.sorted {
		return nil, gperrors.IslandContract("island is not sorted")
	}
	if len(isl.individuals) == 0 {
		return nil, gperrors.IslandContract("island has no individuals")
	}
	return isl.individuals[0], nil
}

// At returns the individual at index, or an island contract error if index
// is out of range.
func (isl *Island[R]) At(index int) (*individual.Individual[R], error) {
	if index < 0 || index >= len(isl.individuals) {
		return nil, gperrors.IslandContract("index %d out of range for %d individuals", index, len(isl.individuals))
	}
	return isl.individuals[index], nil
}

// ScoreForIndividual reports the score of the individual at index, via
// Scorer if supplied, else 0.
func (isl *Island[R]) ScoreForIndividual(index int) (uint64, error) {
	ind, err := isl.At(index)
	if err != nil {
		return 0, err
	}
	if isl.scorer == nil {
		return 0, nil
	}
	return isl.scorer.ScoreIndividual(ind), nil
}

// SelectOne draws one individual via curve without removing it, requiring
// a sorted, non-empty population.
func (isl *Island[R]) SelectOne(curve selection.Curve, rng selection.Rand) (*individual.Individual[R], error) {
	if !isl.sorted {
		return nil, gperrors.IslandContract("island is not sorted")
	}
	if len(isl.individuals) == 0 {
		return nil, gperrors.IslandContract("island has no individuals")
	}
	return isl.individuals[curve.PickOneIndex(rng, len(isl.individuals))], nil
}

// SelectAndRemoveOne draws one individual via curve and removes it from
// the current population, requiring a sorted, non-empty population.
func (isl *Island[R]) SelectAndRemoveOne(curve selection.Curve, rng selection.Rand) (*individual.Individual[R], error) {
	if !isl.sorted {
		return nil, gperrors.IslandContract("island is not sorted")
	}
	if len(isl.individuals) == 0 {
		return nil, gperrors.IslandContract("island has no individuals")
	}
	idx := curve.PickOneIndex(rng, len(isl.individuals))
	ind := isl.individuals[idx]
	isl.individuals = append(isl.individuals[:idx], isl.individuals[idx+1:]...)
	return ind, nil
}

// AddToFuture appends ind to the next generation's accumulating set.
func (isl *Island[R]) AddToFuture(ind *individual.Individual[R]) {
	isl.future = append(isl.future, ind)
}

// AdvanceGeneration discards the current population, swaps in the future
// set, and clears the sorted flag.
func (isl *Island[R]) AdvanceGeneration() {
	isl.individuals = isl.future
	isl.future = nil
	isl.sorted = false
}
