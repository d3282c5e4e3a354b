package tier1

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
)

// encodedName is the wasm name encoding (uleb length, then bytes); all env
// names are short enough for a single length byte. Searching for it instead
// of the raw string keeps "jit_exit" from matching inside "jit_exit_mmio".
func encodedName(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func hasImport(mod []byte, name string) bool {
	return bytes.Contains(mod, encodedName(name))
}

func loadBlock(w ir.Width) *ir.Block {
	b := ir.NewBuilder(0x1000)
	a := b.ConstInt(ir.W64, 0x4000)
	v := b.Load(w, a)
	b.WriteReg(ir.GprReg(ir.RAX, w), v)
	return b.Finish(ir.Jump{Target: 0x1008})
}

func storeBlock(w ir.Width) *ir.Block {
	b := ir.NewBuilder(0x1000)
	a := b.ConstInt(ir.W64, 0x4000)
	v := b.ConstInt(w, 0x42)
	b.Store(w, a, v)
	return b.Finish(ir.Jump{Target: 0x1008})
}

func TestImportsFullFastPath(t *testing.T) {
	mod, err := Compile(loadBlock(ir.W32), DefaultOptions())
	require.NoError(t, err)

	require.True(t, hasImport(mod, abi.ImportMMUTranslate))
	require.True(t, hasImport(mod, abi.ImportJitExitMMIO))
	require.True(t, hasImport(mod, abi.ImportMemory))
	require.False(t, hasImport(mod, abi.ImportMemReadU32), "fast path with MMIO exits needs no slow read")
	require.False(t, hasImport(mod, abi.ImportJitExit))
	require.False(t, hasImport(mod, abi.ImportPageFault), "faults leave via mmu_translate, not a direct import")
}

func TestImportsCrossPageFallback(t *testing.T) {
	opts := DefaultOptions()
	opts.CrossPageFast = false

	mod, err := Compile(loadBlock(ir.W32), opts)
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportMemReadU32), "straddles fall back to the slow helper")
	require.True(t, hasImport(mod, abi.ImportMMUTranslate))
	require.True(t, hasImport(mod, abi.ImportJitExitMMIO))

	// A one-byte access never straddles, so no fallback import.
	mod, err = Compile(loadBlock(ir.W8), opts)
	require.NoError(t, err)
	require.False(t, hasImport(mod, abi.ImportMemReadU8))
}

func TestImportsInlineTLBOff(t *testing.T) {
	opts := DefaultOptions()
	opts.InlineTLB = false

	mod, err := Compile(loadBlock(ir.W64), opts)
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportMemReadU64))
	require.False(t, hasImport(mod, abi.ImportMMUTranslate))
	require.False(t, hasImport(mod, abi.ImportJitExitMMIO))
}

func TestImportsMMIOExitOff(t *testing.T) {
	opts := DefaultOptions()
	opts.MMIOExit = false

	mod, err := Compile(loadBlock(ir.W16), opts)
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportMemReadU16), "non-RAM pages fall back to the slow helper")
	require.True(t, hasImport(mod, abi.ImportMMUTranslate))
	require.False(t, hasImport(mod, abi.ImportJitExitMMIO))
}

func TestImportsSlowStores(t *testing.T) {
	opts := DefaultOptions()
	opts.InlineTLBStores = false

	// A store-only block with slow stores has no eligible inline access at
	// all, so the TLB plumbing disappears with it.
	mod, err := Compile(storeBlock(ir.W64), opts)
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportMemWriteU64))
	require.False(t, hasImport(mod, abi.ImportMMUTranslate))
	require.False(t, hasImport(mod, abi.ImportJitExitMMIO))
}

func TestImportsStoreWidths(t *testing.T) {
	mod, err := Compile(storeBlock(ir.W16), DefaultOptions())
	require.NoError(t, err)
	require.False(t, hasImport(mod, abi.ImportMemWriteU16))
	require.True(t, hasImport(mod, abi.ImportMMUTranslate))
}

func TestImportsHelperCall(t *testing.T) {
	b := ir.NewBuilder(0x1000)
	v := b.ConstInt(ir.W64, 0)
	b.CallHelper("rdtsc", v)
	blk := b.Finish(ir.Jump{Target: 0x1008})

	mod, err := Compile(blk, DefaultOptions())
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportJitExit))
	require.False(t, hasImport(mod, abi.ImportJitExitMMIO))
	require.False(t, hasImport(mod, abi.ImportMMUTranslate))
}

func TestImportsPureRegisterBlock(t *testing.T) {
	b := ir.NewBuilder(0x1000)
	v := b.ReadReg(ir.GprReg(ir.RAX, ir.W64))
	b.WriteReg(ir.GprReg(ir.RBX, ir.W64), v)
	blk := b.Finish(ir.Jump{Target: 0x1008})

	mod, err := Compile(blk, DefaultOptions())
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportMemory), "memory import is unconditional")
	for _, name := range []string{
		abi.ImportMemReadU8, abi.ImportMemReadU16, abi.ImportMemReadU32, abi.ImportMemReadU64,
		abi.ImportMemWriteU8, abi.ImportMemWriteU16, abi.ImportMemWriteU32, abi.ImportMemWriteU64,
		abi.ImportMMUTranslate, abi.ImportJitExitMMIO, abi.ImportJitExit,
	} {
		require.False(t, hasImport(mod, name), name)
	}
}

func TestImportsDeadCodeAfterHelper(t *testing.T) {
	// The load sits behind the helper bailout: it never executes, so
	// its imports must not be declared.
	b := ir.NewBuilder(0x1000)
	v := b.ConstInt(ir.W64, 0)
	b.CallHelper("hlt", v)
	a := b.ConstInt(ir.W64, 0x4000)
	b.Load(ir.W64, a)
	blk := b.Finish(ir.Jump{Target: 0x1008})

	mod, err := Compile(blk, DefaultOptions())
	require.NoError(t, err)
	require.True(t, hasImport(mod, abi.ImportJitExit))
	require.False(t, hasImport(mod, abi.ImportMMUTranslate))
	require.False(t, hasImport(mod, abi.ImportMemReadU64))
}

func TestCompileRejectsInvalidBlock(t *testing.T) {
	blk := &ir.Block{
		Entry: 0x1000,
		Insts: []ir.Inst{ir.WriteReg{Reg: ir.GprReg(ir.RAX, ir.W64), Src: 3}},
		Term:  ir.Jump{Target: 0x1008},
	}
	_, err := Compile(blk, DefaultOptions())
	require.Error(t, err)
}

func TestCompilePanicsOnBadMemoryOptions(t *testing.T) {
	blk := loadBlock(ir.W32)
	opts := DefaultOptions()
	opts.MemoryMinPages = 4
	opts.MemoryMaxPages = 2
	require.Panics(t, func() { Compile(blk, opts) })
}
