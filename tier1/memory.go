package tier1

import (
	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/wasm"
)

// ramLoad reads width w from linear memory at the i32 address on the stack,
// zero-extended to i64. Alignment immediates are hints; guest addresses are
// frequently unaligned.
func (e *emitter) ramLoad(w ir.Width) {
	switch w {
	case ir.W8:
		e.f.I64Load8U(0, 0)
	case ir.W16:
		e.f.I64Load16U(1, 0)
	case ir.W32:
		e.f.I64Load32U(2, 0)
	default:
		e.f.I64Load(3, 0)
	}
}

// ramStore writes the i64 value on the stack to the i32 address below it.
func (e *emitter) ramStore(w ir.Width) {
	switch w {
	case ir.W8:
		e.f.I64Store8(0, 0)
	case ir.W16:
		e.f.I64Store16(1, 0)
	case ir.W32:
		e.f.I64Store32(2, 0)
	default:
		e.f.I64Store(3, 0)
	}
}

func (e *emitter) emitLoad(t ir.Load) {
	f := e.f
	dst := localValue(t.Dst)
	f.LocalGet(localValue(t.Addr))
	f.LocalSet(localMemVaddr)

	if !e.inlineTLB {
		e.slowRead(t.Width, dst)
		return
	}
	if t.Width == ir.W8 {
		e.samePageLoad(t.Width, dst)
		return
	}
	e.pushStraddles(t.Width)
	f.If(wasm.BlockTypeEmpty)
	e.crossPageLoad(t.Width, dst)
	f.Else()
	e.samePageLoad(t.Width, dst)
	f.End()
}

func (e *emitter) emitStore(t ir.Store) {
	f := e.f
	val := localValue(t.Val)
	f.LocalGet(localValue(t.Addr))
	f.LocalSet(localMemVaddr)

	if !e.storeFast {
		e.slowWrite(t.Width, val)
		return
	}
	if t.Width == ir.W8 {
		e.samePageStore(t.Width, val)
		return
	}
	e.pushStraddles(t.Width)
	f.If(wasm.BlockTypeEmpty)
	e.crossPageStore(t.Width, val)
	f.Else()
	e.samePageStore(t.Width, val)
	f.End()
}

// pushStraddles pushes an i32 boolean: the access at localMemVaddr crosses a
// page boundary.
func (e *emitter) pushStraddles(w ir.Width) {
	f := e.f
	f.LocalGet(localMemVaddr)
	f.I64Const(abi.PageOffsetMask)
	f.I64And()
	f.I64Const(int64(abi.PageSize - w.Bytes()))
	f.I64GtU()
}

// translate resolves vaddrLocal through the inline TLB into dataLocal.
// A probe miss or a missing permission bit calls out to mmu_translate, which
// refills the slot and returns the fresh data word (it never returns to wasm
// on a fault). The caller still has to check permBit|IS_RAM before touching
// linear memory.
func (e *emitter) translate(vaddrLocal, dataLocal uint32, permBit uint64, accessKind int32) {
	f := e.f

	f.LocalGet(vaddrLocal)
	f.I64Const(abi.PageShift)
	f.I64ShrU()
	f.LocalSet(localMemVPN)

	// slot address: ctx + CtxTLBOff + (vpn & idxmask)*16
	f.LocalGet(localCtxPtr)
	f.I64ExtendI32U()
	f.LocalGet(localMemVPN)
	f.I64Const(abi.TLBIndexMask)
	f.I64And()
	f.I64Const(4)
	f.I64Shl()
	f.I64Add()
	f.LocalSet(localScratch)

	// data := tag match ? slot.data : 0
	f.LocalGet(localScratch)
	f.I32WrapI64()
	f.I64Load(3, abi.CtxTLBOff+abi.TLBDataOff)
	f.I64Const(0)
	f.LocalGet(localScratch)
	f.I32WrapI64()
	f.I64Load(3, abi.CtxTLBOff+abi.TLBTagOff)
	f.LocalGet(localMemVPN)
	f.LocalGet(localTLBSalt)
	f.I64Xor()
	f.I64Const(1)
	f.I64Or()
	f.I64Eq()
	f.Select()
	f.LocalSet(dataLocal)

	f.LocalGet(dataLocal)
	f.I64ConstU(permBit)
	f.I64And()
	f.I64Eqz()
	f.If(wasm.BlockTypeEmpty)
	f.LocalGet(localCPUPtr)
	f.LocalGet(localCtxPtr)
	f.LocalGet(vaddrLocal)
	f.I32Const(accessKind)
	e.callImport(e.imp.mmuTranslate)
	f.LocalSet(dataLocal)
	f.End()
}

// pushDataOK pushes an i32 boolean: dataLocal grants permBit and points at
// RAM.
func (e *emitter) pushDataOK(dataLocal uint32, permBit uint64) {
	f := e.f
	need := permBit | abi.TLBFlagIsRAM
	f.LocalGet(dataLocal)
	f.I64ConstU(need)
	f.I64And()
	f.I64ConstU(need)
	f.I64Eq()
}

// pushRAMAddr64 pushes ram_base plus the host-relative physical address as
// an i64, applying the Q35 high-RAM relocation: paddr at or above 4GiB maps
// to HighRAMRemapBase + (paddr - HighRAMStart), done as a wrapping add.
func (e *emitter) pushRAMAddr64(dataLocal, vaddrLocal uint32) {
	f := e.f
	f.LocalGet(dataLocal)
	f.I64ConstU(abi.PageBaseMask)
	f.I64And()
	f.LocalGet(vaddrLocal)
	f.I64Const(abi.PageOffsetMask)
	f.I64And()
	f.I64Or()
	f.LocalSet(localScratch2)

	f.LocalGet(localScratch2)
	f.I64Const(int64(abi.HighRAMRemapBase) - int64(abi.HighRAMStart))
	f.I64Add()
	f.LocalGet(localScratch2)
	f.LocalGet(localScratch2)
	f.I64ConstU(abi.HighRAMStart)
	f.I64GeU()
	f.Select()
	f.LocalGet(localRAMBase)
	f.I64Add()
}

func (e *emitter) pushRAMAddr32(dataLocal, vaddrLocal uint32) {
	e.pushRAMAddr64(dataLocal, vaddrLocal)
	e.f.I32WrapI64()
}

func (e *emitter) samePageLoad(w ir.Width, dst uint32) {
	f := e.f
	e.translate(localMemVaddr, localMemData0, abi.TLBFlagRead, abi.AccessRead)
	e.pushDataOK(localMemData0, abi.TLBFlagRead)
	f.If(wasm.BlockTypeEmpty)
	e.pushRAMAddr32(localMemData0, localMemVaddr)
	e.ramLoad(w)
	f.LocalSet(dst)
	f.Else()
	if e.opts.MMIOExit {
		e.mmioExit(w, false, -1)
	} else {
		e.slowRead(w, dst)
	}
	f.End()
}

func (e *emitter) samePageStore(w ir.Width, val uint32) {
	f := e.f
	e.translate(localMemVaddr, localMemData0, abi.TLBFlagWrite, abi.AccessWrite)
	e.pushDataOK(localMemData0, abi.TLBFlagWrite)
	f.If(wasm.BlockTypeEmpty)
	e.pushRAMAddr32(localMemData0, localMemVaddr)
	f.LocalGet(val)
	e.ramStore(w)
	e.versionBump(localMemData0)
	f.Else()
	if e.opts.MMIOExit {
		e.mmioExit(w, true, int32(val))
	} else {
		e.slowWrite(w, val)
	}
	f.End()
}

// crossPageSetup computes the split for an access at localMemVaddr that was
// already translated into localMemData0: the byte count on the first page,
// the first page's host address, and the second page's first virtual address
// (which may wrap to 0).
func (e *emitter) crossPageSetup() {
	f := e.f
	f.I64Const(abi.PageSize)
	f.LocalGet(localMemVaddr)
	f.I64Const(abi.PageOffsetMask)
	f.I64And()
	f.I64Sub()
	f.LocalSet(localMemBytes0)

	e.pushRAMAddr64(localMemData0, localMemVaddr)
	f.LocalSet(localMemAddr0)

	f.LocalGet(localMemVaddr)
	f.LocalGet(localMemBytes0)
	f.I64Add()
	f.LocalSet(localMemVaddr1)
}

// pushCrossByteAddr pushes the i32 host address of byte i of a straddling
// access. Byte 0 is always on the first page and byte w-1 always on the
// second; the bytes between select on the split point.
func (e *emitter) pushCrossByteAddr(i int, w ir.Width) {
	f := e.f
	switch {
	case i == 0:
		f.LocalGet(localMemAddr0)
	case i == w.Bytes()-1:
		f.LocalGet(localMemAddr1)
		f.I64Const(int64(i))
		f.I64Add()
		f.LocalGet(localMemBytes0)
		f.I64Sub()
	default:
		f.LocalGet(localMemAddr0)
		f.I64Const(int64(i))
		f.I64Add()
		f.LocalGet(localMemAddr1)
		f.I64Const(int64(i))
		f.I64Add()
		f.LocalGet(localMemBytes0)
		f.I64Sub()
		f.I64Const(int64(i))
		f.LocalGet(localMemBytes0)
		f.I64LtU()
		f.Select()
	}
	f.I32WrapI64()
}

func (e *emitter) crossPageLoad(w ir.Width, dst uint32) {
	f := e.f
	if !e.opts.CrossPageFast {
		e.slowRead(w, dst)
		return
	}
	e.translate(localMemVaddr, localMemData0, abi.TLBFlagRead, abi.AccessRead)
	e.pushDataOK(localMemData0, abi.TLBFlagRead)
	f.If(wasm.BlockTypeEmpty)
	e.crossPageSetup()
	e.translate(localMemVaddr1, localMemData1, abi.TLBFlagRead, abi.AccessRead)
	e.pushDataOK(localMemData1, abi.TLBFlagRead)
	f.If(wasm.BlockTypeEmpty)
	e.pushRAMAddr64(localMemData1, localMemVaddr1)
	f.LocalSet(localMemAddr1)
	for i := 0; i < w.Bytes(); i++ {
		e.pushCrossByteAddr(i, w)
		e.ramLoad(ir.W8)
		if i > 0 {
			f.I64Const(int64(8 * i))
			f.I64Shl()
			f.I64Or()
		}
	}
	f.LocalSet(dst)
	f.Else()
	e.crossPageLoadFallback(w, dst)
	f.End()
	f.Else()
	e.crossPageLoadFallback(w, dst)
	f.End()
}

func (e *emitter) crossPageLoadFallback(w ir.Width, dst uint32) {
	if e.opts.MMIOExit {
		e.mmioExit(w, false, -1)
	} else {
		e.slowRead(w, dst)
	}
}

func (e *emitter) crossPageStore(w ir.Width, val uint32) {
	f := e.f
	if !e.opts.CrossPageFast {
		e.slowWrite(w, val)
		return
	}
	// Both pages must check out before any byte is written, so that an MMIO
	// exit reports the access with no partial effects.
	e.translate(localMemVaddr, localMemData0, abi.TLBFlagWrite, abi.AccessWrite)
	e.pushDataOK(localMemData0, abi.TLBFlagWrite)
	f.If(wasm.BlockTypeEmpty)
	e.crossPageSetup()
	e.translate(localMemVaddr1, localMemData1, abi.TLBFlagWrite, abi.AccessWrite)
	e.pushDataOK(localMemData1, abi.TLBFlagWrite)
	f.If(wasm.BlockTypeEmpty)
	e.pushRAMAddr64(localMemData1, localMemVaddr1)
	f.LocalSet(localMemAddr1)
	for i := 0; i < w.Bytes(); i++ {
		e.pushCrossByteAddr(i, w)
		f.LocalGet(val)
		if i > 0 {
			f.I64Const(int64(8 * i))
			f.I64ShrU()
		}
		e.ramStore(ir.W8)
	}
	e.versionBump(localMemData0)
	e.versionBump(localMemData1)
	f.Else()
	e.crossPageStoreFallback(w, val)
	f.End()
	f.Else()
	e.crossPageStoreFallback(w, val)
	f.End()
}

func (e *emitter) crossPageStoreFallback(w ir.Width, val uint32) {
	if e.opts.MMIOExit {
		e.mmioExit(w, true, int32(val))
	} else {
		e.slowWrite(w, val)
	}
}

// mmioExit calls jit_exit_mmio with the original virtual address and leaves
// through the exit branch with the sentinel return value. valLocal < 0 means
// a read (value reported as zero).
func (e *emitter) mmioExit(w ir.Width, isWrite bool, valLocal int32) {
	f := e.f
	f.LocalGet(localCPUPtr)
	f.LocalGet(localMemVaddr)
	f.I32Const(int32(w.Bytes()))
	if isWrite {
		f.I32Const(1)
	} else {
		f.I32Const(0)
	}
	if valLocal >= 0 {
		f.LocalGet(uint32(valLocal))
	} else {
		f.I64Const(0)
	}
	f.LocalGet(localRIP)
	e.callImport(e.imp.jitExitMMIO)
	f.LocalSet(localNextRIP)
	f.I64ConstU(abi.ExitSentinel)
	f.LocalSet(localRetVal)
	e.brExit()
}

func (e *emitter) slowRead(w ir.Width, dst uint32) {
	f := e.f
	f.LocalGet(localCPUPtr)
	f.LocalGet(localMemVaddr)
	e.callImport(e.imp.memRead[widthIndex(w)])
	if w != ir.W64 {
		f.I64ExtendI32U()
	}
	f.LocalSet(dst)
}

func (e *emitter) slowWrite(w ir.Width, val uint32) {
	f := e.f
	f.LocalGet(localCPUPtr)
	f.LocalGet(localMemVaddr)
	f.LocalGet(val)
	if w != ir.W64 {
		f.I32WrapI64()
	}
	e.callImport(e.imp.memWrite[widthIndex(w)])
}

// versionBump increments the code-version counter of the physical page in
// dataLocal so stale compiled blocks on that page get invalidated.
// Pages outside the table are skipped.
func (e *emitter) versionBump(dataLocal uint32) {
	f := e.f
	f.LocalGet(localCVLen)
	f.I64Const(0)
	f.I64Ne()
	f.If(wasm.BlockTypeEmpty)
	f.LocalGet(dataLocal)
	f.I64ConstU(abi.PageBaseMask)
	f.I64And()
	f.I64Const(abi.PageShift)
	f.I64ShrU()
	f.LocalSet(localScratch)
	f.LocalGet(localScratch)
	f.LocalGet(localCVLen)
	f.I64LtU()
	f.If(wasm.BlockTypeEmpty)
	f.LocalGet(localCVPtr)
	f.LocalGet(localScratch)
	f.I64Const(2)
	f.I64Shl()
	f.I64Add()
	f.LocalSet(localScratch2)
	f.LocalGet(localScratch2)
	f.I32WrapI64()
	f.LocalGet(localScratch2)
	f.I32WrapI64()
	f.I32Load(2, 0)
	f.I32Const(1)
	f.I32Add()
	f.I32Store(2, 0)
	f.End()
	f.End()
}
