package encoder

import "github.com/hhramberg/gpengine/internal/value"

const (
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secExport   byte = 7
	secCode     byte = 10

	externFunc byte = 0x00
	funcForm   byte = 0x60
)

// Signature is a function's parameter and result type list, the unit the
// type section records and both imports and the compiled entry point refer
// to by index.
type Signature struct {
	Params  []value.Type
	Results []value.Type
}

// Import names one host function linked under the fixed "host" module
// namespace, mirroring how package vm registers callbacks with wazero's
// HostModuleBuilder before instantiation.
type Import struct {
	Name string
	Sig  Signature
}

// Module assembles the handful of sections a single compiled entry point
// needs: its imports, its own signature, its locals and instruction stream,
// and the name it is exported under. It does not attempt to be a general
// WebAssembly module builder; package compiler is its only caller.
type Module struct {
	imports    []Import
	entrySig   Signature
	locals     []value.Type
	body       []byte
	exportName string
}

// NewModule begins a module whose single defined function has the given
// signature.
func NewModule(entry Signature) *Module {
	return &Module{entrySig: entry}
}

// AddImport registers a host function import and returns the function index
// it will occupy, suitable for ir.NewCall's functionIndex argument. Imports
// must all be added before the entry function's body is built, since the
// WebAssembly function index space numbers imports before locally defined
// functions.
func (m *Module) AddImport(name string, sig Signature) uint32 {
	m.imports = append(m.imports, Import{Name: name, Sig: sig})
	return uint32(len(m.imports) - 1)
}

// EntryFunctionIndex returns the function index of the module's own defined
// function, i.e. the one instruction index host code should invoke.
func (m *Module) EntryFunctionIndex() uint32 {
	return uint32(len(m.imports))
}

// SetLocals records the non-parameter local declarations (returns, locals,
// and any transients reserved during compilation) in slot-id order, as
// produced by slot.Table.LocalDeclTypes.
func (m *Module) SetLocals(types []value.Type) { m.locals = types }

// SetBody records the entry function's fully-lowered instruction stream, not
// yet terminated with End; Encode appends the terminator.
func (m *Module) SetBody(code []byte) { m.body = code }

// SetExport names the entry function for host lookup after instantiation.
func (m *Module) SetExport(name string) { m.exportName = name }

func encodeFuncType(sig Signature) []byte {
	var b []byte
	b = append(b, funcForm)
	b = putUvarint(b, uint64(len(sig.Params)))
	for _, p := range sig.Params {
		b = append(b, valType(p))
	}
	b = putUvarint(b, uint64(len(sig.Results)))
	for _, r := range sig.Results {
		b = append(b, valType(r))
	}
	return b
}

// localGroups run-length encodes types into the (count, type) pairs the
// local declaration vector of a function body uses, since adjacent
// same-typed locals need not each carry their own entry.
func localGroups(types []value.Type) []byte {
	var b []byte
	groups := make([][2]uint64, 0, len(types))
	for _, t := range types {
		if n := len(groups); n > 0 && value.Type(groups[n-1][1]) == t {
			groups[n-1][0]++
			continue
		}
		groups = append(groups, [2]uint64{1, uint64(t)})
	}
	b = putUvarint(b, uint64(len(groups)))
	for _, g := range groups {
		b = putUvarint(b, g[0])
		b = append(b, valType(value.Type(g[1])))
	}
	return b
}

// Encode serializes the complete WebAssembly binary module: the magic
// header and version, then the type, import, function, export and code
// sections in the order the format requires.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	// Type section: one entry per import, followed by the entry function's
	// own signature, in that index order.
	var types []byte
	types = putUvarint(types, uint64(len(m.imports)+1))
	for _, imp := range m.imports {
		types = append(types, encodeFuncType(imp.Sig)...)
	}
	types = append(types, encodeFuncType(m.entrySig)...)
	out = append(out, secType)
	out = append(out, withSize(types)...)

	// Import section.
	if len(m.imports) > 0 {
		var imp []byte
		imp = putUvarint(imp, uint64(len(m.imports)))
		for i, in := range m.imports {
			imp = putName(imp, "host")
			imp = putName(imp, in.Name)
			imp = append(imp, externFunc)
			imp = putUvarint(imp, uint64(i))
		}
		out = append(out, secImport)
		out = append(out, withSize(imp)...)
	}

	// Function section: the single defined function refers to the type
	// index placed last above.
	var fn []byte
	fn = putUvarint(fn, 1)
	fn = putUvarint(fn, uint64(len(m.imports)))
	out = append(out, secFunction)
	out = append(out, withSize(fn)...)

	// Code section.
	var body []byte
	body = append(body, localGroups(m.locals)...)
	body = append(body, m.body...)
	body = append(body, opEnd)
	var code []byte
	code = putUvarint(code, 1)
	code = append(code, withSize(body)...)

	// Export section: the entry function only.
	if m.exportName != "" {
		var exp []byte
		exp = putUvarint(exp, 1)
		exp = putName(exp, m.exportName)
		exp = append(exp, externFunc)
		exp = putUvarint(exp, uint64(m.EntryFunctionIndex()))
		out = append(out, secExport)
		out = append(out, withSize(exp)...)
	}

	out = append(out, secCode)
	out = append(out, withSize(code)...)

	return out
}
