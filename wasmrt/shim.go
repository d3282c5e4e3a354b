package wasmrt

import (
	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/wasm"
)

// hostModule is the registration name of the Go host module. Compiled blocks
// import from "env", and wazero host modules cannot export a memory, so a
// tiny shim module owns the linear memory and forwards every helper: it
// imports the host functions, re-exports them under their env names, and
// exports its own memory as "memory".
const hostModule = "aero_host"

// buildEnvShim encodes the shim for a linear memory of exactly pages pages.
func buildEnvShim(pages uint32) []byte {
	m := wasm.NewModule()

	read32 := m.AddType([]wasm.ValType{wasm.I32, wasm.I64}, []wasm.ValType{wasm.I32})
	read64 := m.AddType([]wasm.ValType{wasm.I32, wasm.I64}, []wasm.ValType{wasm.I64})
	write32 := m.AddType([]wasm.ValType{wasm.I32, wasm.I64, wasm.I32}, nil)
	write64 := m.AddType([]wasm.ValType{wasm.I32, wasm.I64, wasm.I64}, nil)
	translate := m.AddType([]wasm.ValType{wasm.I32, wasm.I32, wasm.I64, wasm.I32}, []wasm.ValType{wasm.I64})
	exitMMIO := m.AddType([]wasm.ValType{wasm.I32, wasm.I64, wasm.I32, wasm.I32, wasm.I64, wasm.I64}, []wasm.ValType{wasm.I64})
	exit := m.AddType([]wasm.ValType{wasm.I32, wasm.I64}, []wasm.ValType{wasm.I64})

	forward := func(name string, typeIdx uint32) {
		idx := m.ImportFunc(hostModule, name, typeIdx)
		m.ExportFunc(name, idx)
	}
	forward(abi.ImportMemReadU8, read32)
	forward(abi.ImportMemReadU16, read32)
	forward(abi.ImportMemReadU32, read32)
	forward(abi.ImportMemReadU64, read64)
	forward(abi.ImportMemWriteU8, write32)
	forward(abi.ImportMemWriteU16, write32)
	forward(abi.ImportMemWriteU32, write32)
	forward(abi.ImportMemWriteU64, write64)
	forward(abi.ImportMMUTranslate, translate)
	forward(abi.ImportJitExitMMIO, exitMMIO)
	forward(abi.ImportJitExit, exit)

	m.AddMemory(wasm.Limits{Min: pages, Max: pages, HasMax: true})
	m.ExportMemory(abi.ImportMemory)
	return m.Bytes()
}
