// Package world owns the engine, imported host functions, and the island
// collection: it orchestrates generations and migrations per §4.6-§4.10.
// Grounded on wasmgp's world_configuration.rs, genetic_engine.rs and
// threading_model.rs.
package world

import (
	"time"

	"github.com/hhramberg/gpengine/internal/compiler"
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/migration"
	"github.com/hhramberg/gpengine/internal/selection"
	"github.com/hhramberg/gpengine/internal/slot"
)

// ThreadingModel selects how the world executes islands. Only None is
// defined; §5 and §9 reserve the slot without specifying PerIsland or
// PerIndividual behavior, so those are deliberately absent rather than
// half-implemented.
type ThreadingModel uint8

// None is the only conformant ThreadingModel.
const None ThreadingModel = 0

// Configuration is the single world-configuration record from §6, with
// defaults matching wasmgp's Default impl for WorldConfiguration.
type Configuration struct {
	// MainEntryPoint is the evolved function's name and normalized
	// parameter/result types.
	EntryName      string
	MainEntryPoint compiler.Signature

	// MemorySize is the linear memory, in bytes, individuals may access.
	// No IR node in this implementation reads or writes linear memory, so
	// this is carried for configuration fidelity and is not passed to the
	// encoder.
	MemorySize uint32

	IndividualsPerIsland          int
	EliteIndividualsPerGeneration int
	GenerationsBetweenMigrations  int
	NumberOfIndividualsMigrating  int
	MigrationAlgorithm            migration.Algorithm
	MigrationCyclicalK            int
	CloneMigratedIndividuals      bool
	SelectForMigration            selection.Curve
	SelectAsParent                selection.Curve

	// SelectAsElite is carried for configuration fidelity but not currently
	// read: breed fills its elite slots with the literal top
	// EliteIndividualsPerGeneration individuals by sort order rather than a
	// curve-biased draw, so setting this field has no effect yet. See
	// DESIGN.md's open-question resolution for elitism.
	SelectAsElite selection.Curve

	// IndividualRunTime bounds one individual's execution; §5's default
	// example budget is 10ms.
	IndividualRunTime time.Duration

	// WorkSlots is the per-type local slot budget beyond the entry
	// point's own parameters and results.
	WorkSlots slot.Budget

	// Signed is the compile context's integer signedness policy.
	Signed bool

	ThreadingModel ThreadingModel
}

// DefaultConfiguration returns the recognized defaults from §6's
// configuration table.
func DefaultConfiguration() Configuration {
	return Configuration{
		IndividualsPerIsland:          100,
		EliteIndividualsPerGeneration: 2,
		GenerationsBetweenMigrations:  10,
		NumberOfIndividualsMigrating:  10,
		MigrationAlgorithm:            migration.Circular,
		CloneMigratedIndividuals:      true,
		SelectForMigration:            selection.PreferenceForFit,
		SelectAsParent:                selection.PreferenceForFit,
		SelectAsElite:                 selection.StrongPreferenceForFit,
		IndividualRunTime:             10 * time.Millisecond,
		ThreadingModel:                None,
	}
}

// CompilerOptions derives the compiler.Options every individual in a world
// built from c is assembled against. Imports is left empty; Engine.Finalize
// fills it in once every host function has been registered.
func (c Configuration) CompilerOptions() compiler.Options {
	return compiler.Options{
		Entry:      c.MainEntryPoint,
		Locals:     c.WorkSlots,
		Signed:     c.Signed,
		ExportName: c.EntryName,
	}
}

// Validate checks the configuration error classes §7 assigns to world
// construction: invalid slot totals, an empty main entry point, or an
// unrecognized option.
func (c Configuration) Validate() error {
	if c.EntryName == "" {
		return gperrors.Configuration("main entry point name must not be empty")
	}
	total := len(c.MainEntryPoint.Params) + len(c.MainEntryPoint.Results) + c.WorkSlots.Len()
	if total > slot.MaxSlots {
		return gperrors.Configuration("slot count %d exceeds maximum of %d", total, slot.MaxSlots)
	}
	if c.IndividualsPerIsland <= 0 {
		return gperrors.Configuration("individuals_per_island must be positive, got %d", c.IndividualsPerIsland)
	}
	if c.EliteIndividualsPerGeneration > c.IndividualsPerIsland {
		return gperrors.Configuration(
			"elite_individuals_per_generation (%d) exceeds individuals_per_island (%d)",
			c.EliteIndividualsPerGeneration, c.IndividualsPerIsland)
	}
	if c.NumberOfIndividualsMigrating < 0 {
		return gperrors.Configuration("number_of_individuals_migrating must not be negative")
	}
	if c.ThreadingModel != None {
		return gperrors.Configuration("unrecognized threading model %d; only ThreadingModel None is defined", c.ThreadingModel)
	}
	return nil
}
