package world_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hhramberg/gpengine/internal/compiler"
	"github.com/hhramberg/gpengine/internal/gperrors"
	"github.com/hhramberg/gpengine/internal/slot"
	"github.com/hhramberg/gpengine/internal/world"
)

func TestDefaultConfigurationIsValidOnceNamed(t *testing.T) {
	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyEntryName(t *testing.T) {
	cfg := world.DefaultConfiguration()
	err := cfg.Validate()
	require.ErrorIs(t, err, gperrors.ErrConfiguration)
}

func TestValidateRejectsOversizedSlotTotal(t *testing.T) {
	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	cfg.WorkSlots = slot.Budget{I32: 255, I64: 255}
	err := cfg.Validate()
	require.ErrorIs(t, err, gperrors.ErrConfiguration)
}

func TestValidateRejectsEliteExceedingPopulation(t *testing.T) {
	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	cfg.IndividualsPerIsland = 1
	cfg.EliteIndividualsPerGeneration = 2
	err := cfg.Validate()
	require.ErrorIs(t, err, gperrors.ErrConfiguration)
}

func TestCompilerOptionsCarriesConfiguredShape(t *testing.T) {
	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	cfg.Signed = true
	cfg.MainEntryPoint = compiler.Signature{}
	cfg.WorkSlots = slot.Budget{I32: 2}

	opts := cfg.CompilerOptions()
	require.Equal(t, "play", opts.ExportName)
	require.True(t, opts.Signed)
	require.Equal(t, 2, opts.Locals.Len())
}
