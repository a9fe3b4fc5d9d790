// Package gperrors defines the error taxonomy used across the engine:
// configuration errors, compile errors, instantiation errors, runtime traps,
// timeouts and island contract errors. Independent failures that can
// accumulate (for example registering several host imports) are aggregated
// with go.uber.org/multierr rather than stopping at the first one.
package gperrors

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Sentinel errors identifying the taxonomy class of a returned error.
// Wrap these with fmt.Errorf("...: %w", ErrX) to preserve errors.Is checks
// while adding context.
var (
	// ErrConfiguration marks invalid slot totals, an empty main entry point,
	// or an unrecognized configuration option. Aborts world construction.
	ErrConfiguration = errors.New("configuration error")

	// ErrCompile marks an invalid slot reference, unknown function index, or
	// out-of-range immediate discovered while lowering IR. Aborts the
	// compilation of the individual that produced it.
	ErrCompile = errors.New("compile error")

	// ErrInstantiation marks bytecode the VM rejected; this indicates a
	// compiler bug and is always reported with extra context.
	ErrInstantiation = errors.New("instantiation error")

	// ErrRuntimeTrap marks a VM-level trap during an individual's execution.
	// Division by zero can never produce this (the compiler guards it), but
	// other traps (e.g. an out-of-bounds memory access) terminate only the
	// one individual.
	ErrRuntimeTrap = errors.New("runtime trap")

	// ErrTimeout marks an execution that exceeded its per-individual wall
	// clock budget.
	ErrTimeout = errors.New("execution timeout")

	// ErrIslandContract marks querying most/least-fit on an unsorted island,
	// or selecting from an empty population.
	ErrIslandContract = errors.New("island contract error")
)

// Configuration builds a configuration error from a formatted message.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// Compile builds a compile error from a formatted message.
func Compile(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCompile}, args...)...)
}

// Instantiation wraps err as an instantiation error with added context.
func Instantiation(err error, context string) error {
	return fmt.Errorf("%w: %s: %v", ErrInstantiation, context, err)
}

// IslandContract builds an island contract error from a formatted message.
func IslandContract(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrIslandContract}, args...)...)
}

// Combine aggregates independent errors that may occur while performing a
// batch of otherwise-independent operations (e.g. registering a list of host
// function imports). Returns nil if every element of errs is nil.
func Combine(errs ...error) error {
	return multierr.Combine(errs...)
}
