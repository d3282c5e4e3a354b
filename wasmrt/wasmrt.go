// Package wasmrt hosts compiled blocks under wazero. It owns the linear
// memory holding the guest CPU state, JIT context, code-version table and
// RAM image, and provides the env helper imports over an identity page
// mapping. It is the execution harness used by the tests and the demo
// command; a real emulator would supply its own env module instead.
package wasmrt

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wilsonzlin/aerojit/abi"
)

// MMIOAccess is one recorded jit_exit_mmio call.
type MMIOAccess struct {
	Vaddr   uint64
	Size    uint32
	IsWrite bool
	Value   uint64
	RIP     uint64
}

// HelperExit is one recorded jit_exit call.
type HelperExit struct {
	Kind uint32
	RIP  uint64
}

// Config sizes the guest image. A zero RAMBase places RAM at its natural
// offset inside the linear memory; overriding it lets tests exercise the
// high-RAM window with a wrapped base.
type Config struct {
	RAMBytes         uint64
	TLBSalt          uint64
	RAMBase          uint64
	CodeVersionPages uint32
}

// Env is a wazero runtime with the env module instantiated. Counters and
// logs record every helper crossing, so tests can assert how often the
// generated code left the fast path.
type Env struct {
	rt  wazero.Runtime
	mem api.Memory

	CPUPtr  uint32
	CtxPtr  uint32
	CVOff   uint32
	CVLen   uint32
	RAMOff  uint32
	RAMSize uint64

	ramBase uint64
	salt    uint64

	noRAM   map[uint64]bool
	noWrite map[uint64]bool

	Translates  int
	SlowReads   int
	SlowWrites  int
	MMIOExits   int
	HelperExits int
	MMIOLog     []MMIOAccess
	HelperLog   []HelperExit
}

// New builds the runtime, host module, and env shim, and initializes the
// JIT context words.
func New(ctx context.Context, cfg Config) (*Env, error) {
	e := &Env{
		CtxPtr:  abi.CPUStateSize,
		salt:    cfg.TLBSalt,
		noRAM:   map[uint64]bool{},
		noWrite: map[uint64]bool{},
	}
	e.CVOff = e.CtxPtr + abi.CtxSize
	e.CVLen = cfg.CodeVersionPages
	e.RAMOff = (e.CVOff + 4*e.CVLen + 7) &^ 7
	e.RAMSize = cfg.RAMBytes
	e.ramBase = uint64(e.RAMOff)
	if cfg.RAMBase != 0 {
		e.ramBase = cfg.RAMBase
	}

	pages := uint32((uint64(e.RAMOff) + cfg.RAMBytes + 65535) / 65536)
	if pages == 0 {
		pages = 1
	}

	e.rt = wazero.NewRuntime(ctx)
	ok := false
	defer func() {
		if !ok {
			e.rt.Close(ctx)
		}
	}()

	if err := e.instantiateHost(ctx); err != nil {
		return nil, err
	}
	envMod, err := e.rt.InstantiateWithConfig(ctx, buildEnvShim(pages),
		wazero.NewModuleConfig().WithName(abi.ImportModule))
	if err != nil {
		return nil, fmt.Errorf("wasmrt: instantiate env: %w", err)
	}
	mem := envMod.ExportedMemory(abi.ImportMemory)
	if mem == nil {
		return nil, fmt.Errorf("wasmrt: env module lacks a %q export", abi.ImportMemory)
	}
	e.mem = mem

	e.mem.WriteUint64Le(e.CtxPtr+abi.CtxRAMBaseOff, e.ramBase)
	e.mem.WriteUint64Le(e.CtxPtr+abi.CtxTLBSaltOff, e.salt)
	var cvPtr uint32
	if e.CVLen > 0 {
		cvPtr = e.CVOff
	}
	e.mem.WriteUint32Le(e.CtxPtr+abi.CtxCodeVersionPtrOff, cvPtr)
	e.mem.WriteUint32Le(e.CtxPtr+abi.CtxCodeVersionLenOff, e.CVLen)

	ok = true
	return e, nil
}

func (e *Env) Close(ctx context.Context) error { return e.rt.Close(ctx) }

// Run instantiates one compiled block module and calls its exported
// function with this env's cpu and ctx pointers. The result is the block's
// return value: the next RIP, or the exit sentinel.
func (e *Env) Run(ctx context.Context, blockWasm []byte) (uint64, error) {
	mod, err := e.rt.InstantiateWithConfig(ctx, blockWasm, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return 0, fmt.Errorf("wasmrt: instantiate block: %w", err)
	}
	defer mod.Close(ctx)
	fn := mod.ExportedFunction(abi.ExportBlockFn)
	if fn == nil {
		return 0, fmt.Errorf("wasmrt: block module lacks a %q export", abi.ExportBlockFn)
	}
	out, err := fn.Call(ctx, uint64(e.CPUPtr), uint64(e.CtxPtr))
	if err != nil {
		return 0, fmt.Errorf("wasmrt: run block: %w", err)
	}
	return out[0], nil
}

func (e *Env) instantiateHost(ctx context.Context) error {
	b := e.rt.NewHostModuleBuilder(hostModule)

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64) uint32 {
		e.SlowReads++
		v, _ := e.mem.ReadByte(e.hostOffset(vaddr))
		return uint32(v)
	}).Export(abi.ImportMemReadU8)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64) uint32 {
		e.SlowReads++
		v, _ := e.mem.ReadUint16Le(e.hostOffset(vaddr))
		return uint32(v)
	}).Export(abi.ImportMemReadU16)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64) uint32 {
		e.SlowReads++
		v, _ := e.mem.ReadUint32Le(e.hostOffset(vaddr))
		return v
	}).Export(abi.ImportMemReadU32)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64) uint64 {
		e.SlowReads++
		v, _ := e.mem.ReadUint64Le(e.hostOffset(vaddr))
		return v
	}).Export(abi.ImportMemReadU64)

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64, v uint32) {
		e.SlowWrites++
		e.mem.WriteByte(e.hostOffset(vaddr), byte(v))
	}).Export(abi.ImportMemWriteU8)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64, v uint32) {
		e.SlowWrites++
		e.mem.WriteUint16Le(e.hostOffset(vaddr), uint16(v))
	}).Export(abi.ImportMemWriteU16)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64, v uint32) {
		e.SlowWrites++
		e.mem.WriteUint32Le(e.hostOffset(vaddr), v)
	}).Export(abi.ImportMemWriteU32)
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64, v uint64) {
		e.SlowWrites++
		e.mem.WriteUint64Le(e.hostOffset(vaddr), v)
	}).Export(abi.ImportMemWriteU64)

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _, _ uint32, vaddr uint64, _ uint32) uint64 {
		return e.translate(vaddr)
	}).Export(abi.ImportMMUTranslate)

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, _ uint32, vaddr uint64, size, isWrite uint32, value, rip uint64) uint64 {
		e.MMIOExits++
		e.MMIOLog = append(e.MMIOLog, MMIOAccess{
			Vaddr:   vaddr,
			Size:    size,
			IsWrite: isWrite != 0,
			Value:   value,
			RIP:     rip,
		})
		return rip
	}).Export(abi.ImportJitExitMMIO)

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, kind uint32, rip uint64) uint64 {
		e.HelperExits++
		e.HelperLog = append(e.HelperLog, HelperExit{Kind: kind, RIP: rip})
		return rip
	}).Export(abi.ImportJitExit)

	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmrt: instantiate host module: %w", err)
	}
	return nil
}

// translate refills the TLB slot for vaddr's page with an identity mapping
// and returns the data word. Page attributes come from the MarkMMIO and
// MarkReadOnly tables.
func (e *Env) translate(vaddr uint64) uint64 {
	e.Translates++
	vpn := vaddr >> abi.PageShift
	flags := uint64(abi.TLBFlagRead | abi.TLBFlagExec)
	if !e.noWrite[vpn] {
		flags |= abi.TLBFlagWrite
	}
	if !e.noRAM[vpn] {
		flags |= abi.TLBFlagIsRAM
	}
	data := (vaddr &^ uint64(abi.PageOffsetMask)) | flags
	slot := e.CtxPtr + abi.CtxTLBOff + uint32(vpn&abi.TLBIndexMask)*abi.TLBEntrySize
	e.mem.WriteUint64Le(slot+abi.TLBTagOff, (vpn^e.salt)|1)
	e.mem.WriteUint64Le(slot+abi.TLBDataOff, data)
	return data
}

// hostOffset maps a guest physical address through the high-RAM window and
// ram_base with the same wrap-around arithmetic the fast path uses.
func (e *Env) hostOffset(paddr uint64) uint32 {
	if paddr >= abi.HighRAMStart {
		paddr = abi.HighRAMRemapBase + (paddr - abi.HighRAMStart)
	}
	return uint32(e.ramBase + paddr)
}
