// Command gpengine runs the solitaire example world for a configurable
// number of generations and reports each island's best score per
// generation. Go analogue of simple-game's run_generations_while loop in
// main.rs, driven through urfave/cli/v3 rather than a single positional
// argument list.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hhramberg/gpengine/examples/solitaire"
	"github.com/hhramberg/gpengine/internal/compiler"
	"github.com/hhramberg/gpengine/internal/genetic"
	"github.com/hhramberg/gpengine/internal/individual"
	"github.com/hhramberg/gpengine/internal/world"
)

func main() {
	cmd := &cli.Command{
		Name:  "gpengine",
		Usage: "evolve solitaire-playing programs across an island model",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "islands", Value: 4, Usage: "number of islands"},
			&cli.IntFlag{Name: "generations", Value: 50, Usage: "generations to run"},
			&cli.IntFlag{Name: "population", Value: 100, Usage: "individuals per island"},
			&cli.IntFlag{Name: "seed", Value: 1, Usage: "base random seed"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Millisecond, Usage: "per-individual run budget"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gpengine: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	islandCount := cmd.Int("islands")
	generations := cmd.Int("generations")
	population := cmd.Int("population")
	seed := uint64(cmd.Int("seed"))
	timeout := cmd.Duration("timeout")

	cfg := world.DefaultConfiguration()
	cfg.EntryName = "play"
	cfg.MainEntryPoint = compiler.Signature{}
	cfg.IndividualsPerIsland = int(population)
	cfg.WorkSlots.I32 = 16
	cfg.IndividualRunTime = timeout
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	engine := world.NewEngine[solitaire.Game](ctx, cfg.CompilerOptions())
	defer func() { _ = engine.Close(ctx) }()

	if err := solitaire.RegisterHostFunctions(engine); err != nil {
		return fmt.Errorf("registering host functions: %w", err)
	}
	if err := engine.Finalize(ctx); err != nil {
		return fmt.Errorf("finalizing engine: %w", err)
	}

	w := world.NewWorld[solitaire.Game, solitaire.Result](engine, cfg, seed, seed+1)

	slotCount := cfg.WorkSlots.Len()
	importCount := 8 // registerHostFunctions's fixed import table
	for i := 0; i < int(islandCount); i++ {
		runner := solitaire.NewRunner(engine, seed+uint64(i)*1_000_000, timeout)
		idx := w.AddIsland(runner)

		rng := rand.New(rand.NewPCG(seed+uint64(i), seed^uint64(i)))
		seedPop := make([]*individual.Individual[solitaire.Result], 0, int(population))
		for j := 0; j < int(population); j++ {
			code := genetic.RandomProgram(20, slotCount, importCount, rng)
			seedPop = append(seedPop, individual.New[solitaire.Result](code, nil))
		}
		if err := w.SeedIsland(idx, seedPop...); err != nil {
			return fmt.Errorf("seeding island %d: %w", idx, err)
		}
	}

	for g := 0; g < int(generations); g++ {
		w.RunGeneration()

		for i := range w.Islands() {
			best := w.Fittest(i)
			if best == nil || best.Result == nil {
				logger.Warn("no fit individual yet", zap.Int("island", i))
				continue
			}
			logger.Info("generation complete",
				zap.Int("generation", g),
				zap.Int("island", i),
				zap.Int("best_score", best.Result.Score))
		}
	}

	return nil
}
