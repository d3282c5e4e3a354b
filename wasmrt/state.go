package wasmrt

import (
	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
)

func (e *Env) Gpr(g ir.Gpr) uint64 {
	v, _ := e.mem.ReadUint64Le(e.CPUPtr + abi.CPUGprOff(int(g)))
	return v
}

func (e *Env) SetGpr(g ir.Gpr, v uint64) {
	e.mem.WriteUint64Le(e.CPUPtr+abi.CPUGprOff(int(g)), v)
}

func (e *Env) RIP() uint64 {
	v, _ := e.mem.ReadUint64Le(e.CPUPtr + abi.CPURIPOff)
	return v
}

func (e *Env) SetRIP(v uint64) {
	e.mem.WriteUint64Le(e.CPUPtr+abi.CPURIPOff, v)
}

func (e *Env) RFlags() uint64 {
	v, _ := e.mem.ReadUint64Le(e.CPUPtr + abi.CPURFlagsOff)
	return v
}

func (e *Env) SetRFlags(v uint64) {
	e.mem.WriteUint64Le(e.CPUPtr+abi.CPURFlagsOff, v)
}

// WriteRAM stores b at guest physical address paddr.
func (e *Env) WriteRAM(paddr uint64, b []byte) {
	e.mem.Write(e.hostOffset(paddr), b)
}

// ReadRAM copies n bytes from guest physical address paddr.
func (e *Env) ReadRAM(paddr uint64, n int) []byte {
	v, ok := e.mem.Read(e.hostOffset(paddr), uint32(n))
	if !ok {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, v)
	return out
}

// CodeVersion reads one entry of the code-version table.
func (e *Env) CodeVersion(page uint32) uint32 {
	v, _ := e.mem.ReadUint32Le(e.CVOff + 4*page)
	return v
}

// SetRAMBase rewrites ctx.ram_base. Tests use a wrapped base to steer the
// high-RAM window into the small linear memory.
func (e *Env) SetRAMBase(v uint64) {
	e.ramBase = v
	e.mem.WriteUint64Le(e.CtxPtr+abi.CtxRAMBaseOff, v)
}

// SetTLBSalt rewrites ctx.tlb_salt, which invalidates every cached TLB tag
// at once.
func (e *Env) SetTLBSalt(v uint64) {
	e.salt = v
	e.mem.WriteUint64Le(e.CtxPtr+abi.CtxTLBSaltOff, v)
}

// PrefillTLB plants a valid tag with the given data word in vpn's slot,
// bypassing the translate helper.
func (e *Env) PrefillTLB(vpn, data uint64) {
	slot := e.CtxPtr + abi.CtxTLBOff + uint32(vpn&abi.TLBIndexMask)*abi.TLBEntrySize
	e.mem.WriteUint64Le(slot+abi.TLBTagOff, (vpn^e.salt)|1)
	e.mem.WriteUint64Le(slot+abi.TLBDataOff, data)
}

// MarkMMIO maps vpn as a device page: translations resolve but carry no
// IS_RAM bit.
func (e *Env) MarkMMIO(vpn uint64) { e.noRAM[vpn] = true }

// MarkReadOnly drops the write permission from vpn's translations.
func (e *Env) MarkReadOnly(vpn uint64) { e.noWrite[vpn] = true }

// ResetCounters clears the helper counters and logs between runs.
func (e *Env) ResetCounters() {
	e.Translates = 0
	e.SlowReads = 0
	e.SlowWrites = 0
	e.MMIOExits = 0
	e.HelperExits = 0
	e.MMIOLog = nil
	e.HelperLog = nil
}

// IdentityData builds a TLB data word mapping a page to itself with the
// given flag bits.
func IdentityData(vaddr, flags uint64) uint64 {
	return (vaddr &^ uint64(abi.PageOffsetMask)) | flags
}
