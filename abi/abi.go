// Package abi pins the binary contract between generated Tier-1 blocks and
// the host runtime: the CpuState and JitContext byte layouts, the inline-TLB
// geometry and tag scheme, the import/export names, and the exit sentinel.
// Hosts implementing mmu_translate must match these values exactly.
package abi

// Guest paging geometry.
const (
	PageShift      = 12
	PageSize       = 1 << PageShift
	PageOffsetMask = PageSize - 1
	// PageBaseMask extracts the physical page base from a TLB data word.
	PageBaseMask = ^uint64(PageOffsetMask)
)

// Inline-TLB table geometry. Each entry is {tag u64, data u64}.
const (
	TLBEntries   = 256
	TLBIndexMask = TLBEntries - 1
	TLBEntrySize = 16
	TLBTagOff    = 0
	TLBDataOff   = 8
)

// TLB data word flags, stored in the low bits of the physical page base.
// A data word of 0 carries no permissions and never satisfies a probe.
const (
	TLBFlagRead  = 1 << 0
	TLBFlagWrite = 1 << 1
	TLBFlagExec  = 1 << 2
	TLBFlagIsRAM = 1 << 3
)

// Access kinds passed to mmu_translate.
const (
	AccessRead  = 0
	AccessWrite = 1
	AccessExec  = 2
)

// ExitSentinel is returned by a block instead of a next RIP when execution
// must resume through the host (MMIO, helper bailout, interpreter exit).
// The real resume RIP is always written to CpuState.rip first.
const ExitSentinel = ^uint64(0)

// jit_exit kinds.
const (
	ExitKindHelperCall = 0
)

// CpuState layout. 16 GPRs in architectural order, then RIP and RFLAGS.
const (
	CPUGprCount  = 16
	CPUGprsOff   = 0
	CPURIPOff    = 128
	CPURFlagsOff = 136
	CPUStateSize = 144
)

// CPUGprOff returns the byte offset of GPR i within CpuState.
func CPUGprOff(i int) uint32 { return CPUGprsOff + uint32(i)*8 }

// JitContext layout. The TLB entry array follows the fixed header fields.
const (
	CtxRAMBaseOff        = 0
	CtxTLBSaltOff        = 8
	CtxCodeVersionPtrOff = 16
	CtxCodeVersionLenOff = 20
	CtxTLBOff            = 24
	CtxSize              = CtxTLBOff + TLBEntries*TLBEntrySize
)

// RFLAGS bit positions used by Tier-1 flag codegen.
const (
	RFlagsCF        = 1 << 0
	RFlagsReserved1 = 1 << 1 // architecturally always set
	RFlagsPF        = 1 << 2
	RFlagsAF        = 1 << 4
	RFlagsZF        = 1 << 6
	RFlagsSF        = 1 << 7
	RFlagsOF        = 1 << 11
)

// Q35 high-RAM remap: physical addresses at or above 4 GiB are backed by RAM
// relocated to HighRAMRemapBase, so paddr maps to
// HighRAMRemapBase + (paddr - HighRAMStart).
const (
	HighRAMStart     = uint64(1) << 32
	HighRAMRemapBase = uint64(0xB000_0000)
)

// Import/export names. All function imports come from ImportModule.
const (
	ImportModule = "env"
	ImportMemory = "memory"

	ImportMemReadU8    = "mem_read_u8"
	ImportMemReadU16   = "mem_read_u16"
	ImportMemReadU32   = "mem_read_u32"
	ImportMemReadU64   = "mem_read_u64"
	ImportMemWriteU8   = "mem_write_u8"
	ImportMemWriteU16  = "mem_write_u16"
	ImportMemWriteU32  = "mem_write_u32"
	ImportMemWriteU64  = "mem_write_u64"
	ImportMMUTranslate = "mmu_translate"
	ImportJitExitMMIO  = "jit_exit_mmio"
	ImportJitExit      = "jit_exit"

	// PageFault is part of the host ABI for other tiers; Tier-1 never
	// references it and therefore never imports it.
	ImportPageFault = "page_fault"

	ExportBlockFn = "block"
)
