package wasmrt

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
)

func newEnv(t *testing.T, cfg Config) *Env {
	t.Helper()
	if cfg.RAMBytes == 0 {
		cfg.RAMBytes = 1 << 20
	}
	env, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })
	return env
}

func TestEnvLayout(t *testing.T) {
	env := newEnv(t, Config{CodeVersionPages: 3})

	require.Equal(t, uint32(0), env.CPUPtr)
	require.Equal(t, uint32(abi.CPUStateSize), env.CtxPtr)
	require.Equal(t, env.CtxPtr+abi.CtxSize, env.CVOff)
	require.Equal(t, uint32(3), env.CVLen)
	require.Equal(t, (env.CVOff+12+7)&^uint32(7), env.RAMOff)

	// Ctx words as written by New.
	rb, _ := env.mem.ReadUint64Le(env.CtxPtr + abi.CtxRAMBaseOff)
	require.Equal(t, uint64(env.RAMOff), rb, "default ram_base is the RAM offset")
	cvPtr, _ := env.mem.ReadUint32Le(env.CtxPtr + abi.CtxCodeVersionPtrOff)
	cvLen, _ := env.mem.ReadUint32Le(env.CtxPtr + abi.CtxCodeVersionLenOff)
	require.Equal(t, env.CVOff, cvPtr)
	require.Equal(t, uint32(3), cvLen)
}

func TestEnvNoVersionTable(t *testing.T) {
	env := newEnv(t, Config{})
	cvPtr, _ := env.mem.ReadUint32Le(env.CtxPtr + abi.CtxCodeVersionPtrOff)
	cvLen, _ := env.mem.ReadUint32Le(env.CtxPtr + abi.CtxCodeVersionLenOff)
	require.Equal(t, uint32(0), cvPtr)
	require.Equal(t, uint32(0), cvLen)
}

func TestCPUStateAccessors(t *testing.T) {
	env := newEnv(t, Config{})
	env.SetGpr(ir.RAX, 0x1122_3344_5566_7788)
	env.SetGpr(ir.R15, 42)
	env.SetRIP(0xfeed)
	env.SetRFlags(abi.RFlagsZF | abi.RFlagsCF)

	require.Equal(t, uint64(0x1122_3344_5566_7788), env.Gpr(ir.RAX))
	require.Equal(t, uint64(42), env.Gpr(ir.R15))
	require.Equal(t, uint64(0xfeed), env.RIP())
	require.Equal(t, uint64(abi.RFlagsZF|abi.RFlagsCF), env.RFlags())
}

func TestRAMRoundTrip(t *testing.T) {
	env := newEnv(t, Config{})
	env.WriteRAM(0x2345, []byte{1, 2, 3, 4})
	require.Equal(t, []byte{1, 2, 3, 4}, env.ReadRAM(0x2345, 4))
	require.Equal(t, []byte{0, 1, 2, 3, 4, 0}, env.ReadRAM(0x2344, 6), "neighbors untouched")

	// Far outside the linear memory: reads come back zero-filled.
	require.Equal(t, make([]byte, 8), env.ReadRAM(0x4000_0000, 8))
}

func TestHighRAMAliasesRemapWindow(t *testing.T) {
	env := newEnv(t, Config{})
	// With this base, both the high address and its remapped low alias land
	// at host offset 0x9010.
	env.SetRAMBase(0x5000_9000)

	env.WriteRAM(abi.HighRAMStart+0x10, []byte{0xca, 0xfe})
	require.Equal(t, []byte{0xca, 0xfe}, env.ReadRAM(abi.HighRAMStart+0x10, 2))
	require.Equal(t, []byte{0xca, 0xfe}, env.ReadRAM(abi.HighRAMRemapBase+0x10, 2),
		"high addresses alias the remap window")
}

func TestTranslateFillsSlot(t *testing.T) {
	env := newEnv(t, Config{TLBSalt: 0xabcd})

	data := env.translate(0x5432)
	require.Equal(t, IdentityData(0x5432, abi.TLBFlagRead|abi.TLBFlagWrite|abi.TLBFlagExec|abi.TLBFlagIsRAM), data)
	require.Equal(t, 1, env.Translates)

	slot := env.CtxPtr + abi.CtxTLBOff + 5*abi.TLBEntrySize
	tag, _ := env.mem.ReadUint64Le(slot + abi.TLBTagOff)
	got, _ := env.mem.ReadUint64Le(slot + abi.TLBDataOff)
	require.Equal(t, uint64(5^0xabcd)|1, tag)
	require.Equal(t, data, got)

	env.ResetCounters()
	require.Equal(t, 0, env.Translates)
}

func TestTranslateHonorsPageMarks(t *testing.T) {
	env := newEnv(t, Config{})
	env.MarkReadOnly(5)
	require.Equal(t, IdentityData(0x5000, abi.TLBFlagRead|abi.TLBFlagExec|abi.TLBFlagIsRAM), env.translate(0x5432))
	env.MarkMMIO(6)
	require.Equal(t, IdentityData(0x6000, abi.TLBFlagRead|abi.TLBFlagWrite|abi.TLBFlagExec), env.translate(0x6000))
}

func TestPrefillTLB(t *testing.T) {
	env := newEnv(t, Config{TLBSalt: 7})
	vpn := uint64(0x123)
	env.PrefillTLB(vpn, 0xb000|uint64(abi.TLBFlagRead))

	slot := env.CtxPtr + abi.CtxTLBOff + uint32(vpn&abi.TLBIndexMask)*abi.TLBEntrySize
	tag, _ := env.mem.ReadUint64Le(slot + abi.TLBTagOff)
	data, _ := env.mem.ReadUint64Le(slot + abi.TLBDataOff)
	require.Equal(t, (vpn^7)|1, tag)
	require.Equal(t, uint64(0xb000|abi.TLBFlagRead), data)
}

func TestRunRejectsGarbage(t *testing.T) {
	env := newEnv(t, Config{})
	_, err := env.Run(context.Background(), []byte{0x00, 0x61, 0x73})
	require.Error(t, err)
}

func TestEnvShimBytes(t *testing.T) {
	shim := buildEnvShim(2)
	require.True(t, bytes.HasPrefix(shim, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}))
	require.True(t, bytes.Contains(shim, []byte(hostModule)))
	for _, name := range []string{
		abi.ImportMemReadU8, abi.ImportMemReadU64, abi.ImportMemWriteU32,
		abi.ImportMMUTranslate, abi.ImportJitExitMMIO, abi.ImportJitExit,
		abi.ImportMemory,
	} {
		require.True(t, bytes.Contains(shim, []byte(name)), name)
	}
	// Memory section: exactly two pages, min == max.
	require.True(t, bytes.Contains(shim, []byte{0x05, 0x04, 0x01, 0x01, 0x02, 0x02}))
}
