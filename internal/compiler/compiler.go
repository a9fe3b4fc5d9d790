package compiler

import (
	"github.com/hhramberg/gpengine/internal/encoder"
	"github.com/hhramberg/gpengine/internal/ir"
	"github.com/hhramberg/gpengine/internal/slot"
	"github.com/hhramberg/gpengine/internal/value"
)

// Signature is the evolved function's declared parameter and result type
// tags, the world's main_entry_point configuration in normalized form.
type Signature struct {
	Params  []value.Type
	Results []value.Type
}

// Options bundles the inputs a single compilation needs beyond the IR
// program itself: the entry signature, the local slot budget, integer
// signedness policy, the name to export the compiled function under, and
// the host imports already registered with the world (in the stable
// index order Call nodes reference).
type Options struct {
	Entry      Signature
	Locals     slot.Budget
	Signed     bool
	ExportName string

	// Imports is the world's host function table in registration order;
	// Call.FuncIndex addresses it positionally, and each entry's Name must
	// match what package vm's linker registers under the "host" namespace
	// so wazero can resolve the import at instantiation.
	Imports []encoder.Import
}

// Assemble implements §4.4: it builds a fresh slot table and compile
// context from opts, lowers program into a single instruction stream,
// and returns the serialized WebAssembly module bytes ready for
// package vm to instantiate.
func Assemble(program []ir.Node, opts Options) ([]byte, error) {
	table, err := slot.New(opts.Entry.Params, opts.Entry.Results, opts.Locals)
	if err != nil {
		return nil, err
	}

	sigs := make([]encoder.Signature, len(opts.Imports))
	for i, imp := range opts.Imports {
		sigs[i] = imp.Sig
	}

	ctx := NewContext(table, opts.Signed, sigs)
	body, err := lowerProgram(ctx, program)
	if err != nil {
		return nil, err
	}

	mod := encoder.NewModule(encoder.Signature{
		Params:  opts.Entry.Params,
		Results: opts.Entry.Results,
	})
	for _, imp := range opts.Imports {
		// Imports were already assigned their stable indices by the world
		// at registration time; AddImport re-derives the same index here
		// since it is called in the same order.
		mod.AddImport(imp.Name, imp.Sig)
	}
	mod.SetLocals(table.LocalDeclTypes())
	mod.SetBody(body)
	mod.SetExport(opts.ExportName)

	return mod.Encode(), nil
}
