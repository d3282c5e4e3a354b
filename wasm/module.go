// Package wasm is a minimal WebAssembly 1.0 binary encoder covering what the
// Tier-1 code generator needs: function/memory imports, one or more defined
// functions, exports, and the i32/i64 instruction subset. It produces final
// module bytes directly; there is no IR of its own.
package wasm

import "fmt"

// MaxMemoryPages is the wasm32 linear-memory limit (64 KiB pages).
const MaxMemoryPages = 65536

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i, p := range t.Params {
		if o.Params[i] != p {
			return false
		}
	}
	for i, r := range t.Results {
		if o.Results[i] != r {
			return false
		}
	}
	return true
}

// Limits describe a memory import. Max is ignored unless HasMax. Shared
// memories require HasMax per the threads proposal.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type memImport struct {
	module, name string
	lim          Limits
}

type funcDef struct {
	typeIdx uint32
	body    []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

// Module accumulates sections and assembles the binary. Function index space
// is imports first, defined functions after, in declaration order.
type Module struct {
	types       []FuncType
	funcImports []funcImport
	mem         *memImport
	defMem      *Limits
	funcs       []funcDef
	exports     []export
}

func NewModule() *Module { return &Module{} }

// AddType interns a function type and returns its index.
func (m *Module) AddType(params, results []ValType) uint32 {
	t := FuncType{Params: params, Results: results}
	for i, existing := range m.types {
		if existing.equal(t) {
			return uint32(i)
		}
	}
	m.types = append(m.types, t)
	return uint32(len(m.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
// All function imports must be declared before AddFunc is first called.
func (m *Module) ImportFunc(module, name string, typeIdx uint32) uint32 {
	if len(m.funcs) != 0 {
		panic("wasm: function import after function definition")
	}
	m.funcImports = append(m.funcImports, funcImport{module, name, typeIdx})
	return uint32(len(m.funcImports) - 1)
}

func checkLimits(lim Limits) {
	if lim.Shared && !lim.HasMax {
		panic("wasm: shared memory requires a max page count")
	}
	if lim.HasMax && lim.Min > lim.Max {
		panic(fmt.Sprintf("wasm: memory min %d exceeds max %d", lim.Min, lim.Max))
	}
	if lim.Min > MaxMemoryPages || (lim.HasMax && lim.Max > MaxMemoryPages) {
		panic("wasm: memory limits exceed wasm32 maximum")
	}
}

// ImportMemory declares the single memory import.
func (m *Module) ImportMemory(module, name string, lim Limits) {
	if m.mem != nil || m.defMem != nil {
		panic("wasm: duplicate memory")
	}
	checkLimits(lim)
	m.mem = &memImport{module, name, lim}
}

// AddMemory defines the module's own memory (index 0).
func (m *Module) AddMemory(lim Limits) {
	if m.mem != nil || m.defMem != nil {
		panic("wasm: duplicate memory")
	}
	checkLimits(lim)
	l := lim
	m.defMem = &l
}

// AddFunc defines a function with a complete body (locals + code + end) and
// returns its function index.
func (m *Module) AddFunc(typeIdx uint32, body []byte) uint32 {
	m.funcs = append(m.funcs, funcDef{typeIdx, body})
	return uint32(len(m.funcImports) + len(m.funcs) - 1)
}

// ExportFunc exports function index idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name, extKindFunc, idx})
}

// ExportMemory exports memory 0 under name.
func (m *Module) ExportMemory(name string) {
	if m.mem == nil && m.defMem == nil {
		panic("wasm: export of undeclared memory")
	}
	m.exports = append(m.exports, export{name, extKindMemory, 0})
}

// NumFuncImports reports how many function imports were declared.
func (m *Module) NumFuncImports() int { return len(m.funcImports) }

func appendName(dst []byte, s string) []byte {
	dst = AppendUleb128(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendLimits(dst []byte, lim Limits) []byte {
	switch {
	case lim.Shared:
		dst = append(dst, 0x03)
	case lim.HasMax:
		dst = append(dst, 0x01)
	default:
		dst = append(dst, 0x00)
	}
	dst = AppendUleb128(dst, uint64(lim.Min))
	if lim.HasMax || lim.Shared {
		dst = AppendUleb128(dst, uint64(lim.Max))
	}
	return dst
}

func appendSection(dst []byte, id byte, payload []byte) []byte {
	if len(payload) == 0 {
		return dst
	}
	dst = append(dst, id)
	dst = AppendUleb128(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// Bytes assembles the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section.
	var sec []byte
	if len(m.types) > 0 {
		sec = AppendUleb128(sec, uint64(len(m.types)))
		for _, t := range m.types {
			sec = append(sec, funcTypeForm)
			sec = AppendUleb128(sec, uint64(len(t.Params)))
			for _, p := range t.Params {
				sec = append(sec, byte(p))
			}
			sec = AppendUleb128(sec, uint64(len(t.Results)))
			for _, r := range t.Results {
				sec = append(sec, byte(r))
			}
		}
		out = appendSection(out, secType, sec)
	}

	// Import section: functions in declaration order, then the memory.
	nImports := len(m.funcImports)
	if m.mem != nil {
		nImports++
	}
	if nImports > 0 {
		sec = AppendUleb128(nil, uint64(nImports))
		for _, im := range m.funcImports {
			sec = appendName(sec, im.module)
			sec = appendName(sec, im.name)
			sec = append(sec, extKindFunc)
			sec = AppendUleb128(sec, uint64(im.typeIdx))
		}
		if m.mem != nil {
			sec = appendName(sec, m.mem.module)
			sec = appendName(sec, m.mem.name)
			sec = append(sec, extKindMemory)
			sec = appendLimits(sec, m.mem.lim)
		}
		out = appendSection(out, secImport, sec)
	}

	// Function section.
	if len(m.funcs) > 0 {
		sec = AppendUleb128(nil, uint64(len(m.funcs)))
		for _, f := range m.funcs {
			sec = AppendUleb128(sec, uint64(f.typeIdx))
		}
		out = appendSection(out, secFunction, sec)
	}

	// Memory section.
	if m.defMem != nil {
		sec = AppendUleb128(nil, 1)
		sec = appendLimits(sec, *m.defMem)
		out = appendSection(out, secMemory, sec)
	}

	// Export section.
	if len(m.exports) > 0 {
		sec = AppendUleb128(nil, uint64(len(m.exports)))
		for _, e := range m.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = AppendUleb128(sec, uint64(e.idx))
		}
		out = appendSection(out, secExport, sec)
	}

	// Code section.
	if len(m.funcs) > 0 {
		sec = AppendUleb128(nil, uint64(len(m.funcs)))
		for _, f := range m.funcs {
			sec = AppendUleb128(sec, uint64(len(f.body)))
			sec = append(sec, f.body...)
		}
		out = appendSection(out, secCode, sec)
	}

	return out
}
