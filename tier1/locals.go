package tier1

import "github.com/wilsonzlin/aerojit/ir"

// Local slot assignment. The two i32 parameters come first per wasm
// numbering; everything after is an i64 local. Fixed-purpose slots are
// followed by one dedicated local per IR value, so values never spill.
const (
	localCPUPtr = 0 // i32 param
	localCtxPtr = 1 // i32 param

	localGprBase = 2 // 16 consecutive slots

	localRIP     = 18
	localRFlags  = 19
	localNextRIP = 20
	localRetVal  = 21

	localCVPtr   = 22
	localCVLen   = 23
	localRAMBase = 24
	localTLBSalt = 25

	// Memory-access scratch. Vaddr1/Data1/Bytes0/Addr* serve the cross-page
	// split; Vaddr always holds the access's original address for MMIO
	// reporting.
	localMemVaddr  = 26
	localMemVaddr1 = 27
	localMemVPN    = 28
	localMemData0  = 29
	localMemData1  = 30
	localMemBytes0 = 31
	localMemAddr0  = 32
	localMemAddr1  = 33

	localScratch  = 34
	localScratch2 = 35

	localValueBase = 36
)

func localGpr(g ir.Gpr) uint32 { return localGprBase + uint32(g) }

func localValue(v ir.ValueID) uint32 { return localValueBase + uint32(v) }

// numI64Locals is the local declaration count for a block (excludes params).
func numI64Locals(numValues int) uint32 {
	return uint32(localValueBase - 2 + numValues)
}
