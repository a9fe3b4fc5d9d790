// Package individual defines the Individual type: an IR program paired
// with the most recent result of executing it, grounded on wasmgp's
// individual.rs.
package individual

import "github.com/hhramberg/gpengine/internal/ir"

// Individual is one IR program plus its last run result, an opaque record
// whose shape is part of the host contract (R), not of the IR itself.
type Individual[R any] struct {
	Code   []ir.Node
	Result *R
}

// New builds an Individual from code with an optional initial result.
func New[R any](code []ir.Node, initial *R) *Individual[R] {
	return &Individual[R]{Code: code, Result: initial}
}

// Clone produces an independent copy whose Code slice can be mutated by a
// genetic operator without aliasing the original, the behavior elitism and
// migration's clone_migrated_individuals option depend on.
func (i *Individual[R]) Clone() *Individual[R] {
	code := ir.CloneProgram(i.Code)
	var result *R
	if i.Result != nil {
		r := *i.Result
		result = &r
	}
	return &Individual[R]{Code: code, Result: result}
}
