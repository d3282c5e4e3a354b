package tier1

import (
	"fmt"

	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/log"
	"github.com/wilsonzlin/aerojit/wasm"
)

// funcNotImported marks an elided import slot.
const funcNotImported = int32(-1)

// imports holds function indices for the declared import subset.
type imports struct {
	memRead      [4]int32
	memWrite     [4]int32
	mmuTranslate int32
	jitExitMMIO  int32
	jitExit      int32
}

func widthIndex(w ir.Width) int {
	switch w {
	case ir.W8:
		return 0
	case ir.W16:
		return 1
	case ir.W32:
		return 2
	default:
		return 3
	}
}

var slowReadNames = [4]string{
	abi.ImportMemReadU8, abi.ImportMemReadU16, abi.ImportMemReadU32, abi.ImportMemReadU64,
}

var slowWriteNames = [4]string{
	abi.ImportMemWriteU8, abi.ImportMemWriteU16, abi.ImportMemWriteU32, abi.ImportMemWriteU64,
}

type emitter struct {
	f     *wasm.Func
	block *ir.Block
	opts  Options
	usage StateUsage
	imp   imports

	// Effective modes: inline TLB turns itself off for blocks with no
	// eligible memory operations.
	inlineTLB bool
	storeFast bool

	anyLoad   bool
	anyStore  bool
	hasHelper bool
	loadW     [4]bool
	storeW    [4]bool
}

// Compile translates one validated block into a complete wasm module with a
// single exported "block" function. Option misconfiguration panics; an
// invalid block returns an error.
func Compile(block *ir.Block, opts Options) ([]byte, error) {
	lim := opts.memoryLimits()
	if err := block.Validate(); err != nil {
		return nil, fmt.Errorf("tier1: compile block %#x: %w", block.Entry, err)
	}

	e := &emitter{block: block, opts: opts}
	e.scanMemOps()
	e.usage = AnalyzeStateUsage(block, opts)

	m := wasm.NewModule()
	e.declareImports(m)
	m.ImportMemory(abi.ImportModule, abi.ImportMemory, lim)
	blockType := m.AddType([]wasm.ValType{wasm.I32, wasm.I32}, []wasm.ValType{wasm.I64})

	f := wasm.NewFunc()
	f.AddLocals(numI64Locals(block.NumValues()), wasm.I64)
	e.f = f

	e.prologue()
	f.Block(wasm.BlockTypeEmpty)
	bailed := false
	for _, inst := range block.Insts {
		e.emitInst(inst)
		if _, ok := inst.(ir.CallHelper); ok {
			// Effective end of live code; the unreachable tail is dropped.
			bailed = true
			break
		}
	}
	if !bailed {
		e.emitTerminator(block.Term)
	}
	f.End()
	e.epilogue()
	f.LocalGet(localRetVal)

	idx := m.AddFunc(blockType, f.Body())
	m.ExportFunc(abi.ExportBlockFn, idx)
	out := m.Bytes()

	log.Trace("tier1 compiled block", "rip", fmt.Sprintf("%#x", block.Entry),
		"insts", len(block.Insts), "values", block.NumValues(), "bytes", len(out))
	return out, nil
}

// scanMemOps collects the live memory-operation profile (a CallHelper ends
// live code) and resolves the effective fast-path modes.
func (e *emitter) scanMemOps() {
	for _, inst := range e.block.Insts {
		switch t := inst.(type) {
		case ir.Load:
			e.anyLoad = true
			e.loadW[widthIndex(t.Width)] = true
		case ir.Store:
			e.anyStore = true
			e.storeW[widthIndex(t.Width)] = true
		case ir.CallHelper:
			e.hasHelper = true
		}
		if e.hasHelper {
			break
		}
	}
	eligible := e.anyLoad || (e.anyStore && e.opts.InlineTLBStores)
	e.inlineTLB = e.opts.InlineTLB && eligible
	e.storeFast = e.inlineTLB && e.opts.InlineTLBStores
}

// declareImports declares, in canonical order, exactly the helpers the
// emission below can reach. The emit paths assert via callImport that the
// two stay in agreement.
func (e *emitter) declareImports(m *wasm.Module) {
	e.imp = imports{
		memRead:      [4]int32{funcNotImported, funcNotImported, funcNotImported, funcNotImported},
		memWrite:     [4]int32{funcNotImported, funcNotImported, funcNotImported, funcNotImported},
		mmuTranslate: funcNotImported,
		jitExitMMIO:  funcNotImported,
		jitExit:      funcNotImported,
	}

	for i := 0; i < 4; i++ {
		if !e.loadW[i] {
			continue
		}
		wide := i > 0
		if !e.inlineTLB || !e.opts.MMIOExit || (wide && !e.opts.CrossPageFast) {
			res := wasm.I32
			if i == 3 {
				res = wasm.I64
			}
			ti := m.AddType([]wasm.ValType{wasm.I32, wasm.I64}, []wasm.ValType{res})
			e.imp.memRead[i] = int32(m.ImportFunc(abi.ImportModule, slowReadNames[i], ti))
		}
	}
	for i := 0; i < 4; i++ {
		if !e.storeW[i] {
			continue
		}
		wide := i > 0
		if !e.storeFast || !e.opts.MMIOExit || (wide && !e.opts.CrossPageFast) {
			val := wasm.I32
			if i == 3 {
				val = wasm.I64
			}
			ti := m.AddType([]wasm.ValType{wasm.I32, wasm.I64, val}, nil)
			e.imp.memWrite[i] = int32(m.ImportFunc(abi.ImportModule, slowWriteNames[i], ti))
		}
	}
	if e.inlineTLB {
		ti := m.AddType([]wasm.ValType{wasm.I32, wasm.I32, wasm.I64, wasm.I32}, []wasm.ValType{wasm.I64})
		e.imp.mmuTranslate = int32(m.ImportFunc(abi.ImportModule, abi.ImportMMUTranslate, ti))
	}
	if e.inlineTLB && e.opts.MMIOExit {
		ti := m.AddType([]wasm.ValType{wasm.I32, wasm.I64, wasm.I32, wasm.I32, wasm.I64, wasm.I64}, []wasm.ValType{wasm.I64})
		e.imp.jitExitMMIO = int32(m.ImportFunc(abi.ImportModule, abi.ImportJitExitMMIO, ti))
	}
	if e.hasHelper {
		ti := m.AddType([]wasm.ValType{wasm.I32, wasm.I64}, []wasm.ValType{wasm.I64})
		e.imp.jitExit = int32(m.ImportFunc(abi.ImportModule, abi.ImportJitExit, ti))
	}
}

func (e *emitter) callImport(idx int32) {
	if idx < 0 {
		panic("tier1: internal error: call to an undeclared import")
	}
	e.f.Call(uint32(idx))
}

// brExit branches out of the instruction region to the epilogue.
func (e *emitter) brExit() {
	e.f.Br(uint32(e.f.Depth() - 1))
}

// prologue loads used architectural state into locals.
func (e *emitter) prologue() {
	f := e.f
	for g := 0; g < ir.GprCount; g++ {
		if !e.usage.GprUsed[g] {
			continue
		}
		f.LocalGet(localCPUPtr)
		f.I64Load(3, abi.CPUGprOff(g))
		f.LocalSet(localGpr(ir.Gpr(g)))
	}
	if e.usage.RIPUsed {
		f.LocalGet(localCPUPtr)
		f.I64Load(3, abi.CPURIPOff)
		f.LocalSet(localRIP)
	}
	if e.usage.FlagsUsed {
		f.LocalGet(localCPUPtr)
		f.I64Load(3, abi.CPURFlagsOff)
		f.LocalSet(localRFlags)
	}
	if e.inlineTLB {
		f.LocalGet(localCtxPtr)
		f.I64Load(3, abi.CtxRAMBaseOff)
		f.LocalSet(localRAMBase)
		f.LocalGet(localCtxPtr)
		f.I64Load(3, abi.CtxTLBSaltOff)
		f.LocalSet(localTLBSalt)
	}
	if e.storeFast && e.anyStore {
		f.LocalGet(localCtxPtr)
		f.I32Load(2, abi.CtxCodeVersionPtrOff)
		f.I64ExtendI32U()
		f.LocalSet(localCVPtr)
		f.LocalGet(localCtxPtr)
		f.I32Load(2, abi.CtxCodeVersionLenOff)
		f.I64ExtendI32U()
		f.LocalSet(localCVLen)
	}
}

// epilogue spills written state and always commits next_rip, then leaves the
// return value to the caller (real next_rip or the exit sentinel).
func (e *emitter) epilogue() {
	f := e.f
	for g := 0; g < ir.GprCount; g++ {
		if !e.usage.GprWritten[g] {
			continue
		}
		f.LocalGet(localCPUPtr)
		f.LocalGet(localGpr(ir.Gpr(g)))
		f.I64Store(3, abi.CPUGprOff(g))
	}
	if e.usage.FlagsWritten {
		f.LocalGet(localCPUPtr)
		f.LocalGet(localRFlags)
		f.I64Const(abi.RFlagsReserved1)
		f.I64Or()
		f.I64Store(3, abi.CPURFlagsOff)
	}
	f.LocalGet(localCPUPtr)
	f.LocalGet(localNextRIP)
	f.I64Store(3, abi.CPURIPOff)
}

func (e *emitter) emitInst(inst ir.Inst) {
	f := e.f
	switch t := inst.(type) {
	case ir.Const:
		f.I64ConstU(t.Imm)
		f.LocalSet(localValue(t.Dst))
	case ir.ReadReg:
		e.emitReadReg(t)
	case ir.WriteReg:
		e.emitWriteReg(t)
	case ir.Trunc:
		f.LocalGet(localValue(t.Src))
		e.maskTo(t.Width)
		f.LocalSet(localValue(t.Dst))
	case ir.Load:
		e.emitLoad(t)
	case ir.Store:
		e.emitStore(t)
	case ir.BinOp:
		e.emitBinOp(t)
	case ir.CmpFlags:
		e.emitCmpFlags(t)
	case ir.TestFlags:
		e.emitTestFlags(t)
	case ir.EvalCond:
		e.emitEvalCond(t.Cond, localValue(t.Dst))
	case ir.Select:
		f.LocalGet(localValue(t.A))
		f.LocalGet(localValue(t.B))
		f.LocalGet(localValue(t.Cond))
		f.I64Const(0)
		f.I64Ne()
		f.Select()
		f.LocalSet(localValue(t.Dst))
	case ir.CallHelper:
		f.I32Const(abi.ExitKindHelperCall)
		f.LocalGet(localRIP)
		e.callImport(e.imp.jitExit)
		f.LocalSet(localNextRIP)
		f.I64ConstU(abi.ExitSentinel)
		f.LocalSet(localRetVal)
		e.brExit()
	}
}

// maskTo truncates the i64 on the stack to w (no-op for W64).
func (e *emitter) maskTo(w ir.Width) {
	if w != ir.W64 {
		e.f.I64ConstU(w.Mask())
		e.f.I64And()
	}
}

func shiftMaskFor(w ir.Width) int64 {
	if w == ir.W64 {
		return 63
	}
	return 31
}

func (e *emitter) emitBinOp(t ir.BinOp) {
	f := e.f
	lhs, rhs, dst := localValue(t.LHS), localValue(t.RHS), localValue(t.Dst)

	switch t.Op {
	case ir.Add:
		f.LocalGet(lhs)
		f.LocalGet(rhs)
		f.I64Add()
		e.maskTo(t.Width)
		f.LocalSet(dst)
	case ir.Sub:
		f.LocalGet(lhs)
		f.LocalGet(rhs)
		f.I64Sub()
		e.maskTo(t.Width)
		f.LocalSet(dst)
	case ir.And:
		f.LocalGet(lhs)
		f.LocalGet(rhs)
		f.I64And()
		f.LocalSet(dst)
	case ir.Or:
		f.LocalGet(lhs)
		f.LocalGet(rhs)
		f.I64Or()
		f.LocalSet(dst)
	case ir.Xor:
		f.LocalGet(lhs)
		f.LocalGet(rhs)
		f.I64Xor()
		f.LocalSet(dst)
	case ir.Shl:
		e.setMaskedShiftAmount(rhs, t.Width)
		f.LocalGet(lhs)
		f.LocalGet(localScratch)
		f.I64Shl()
		e.maskTo(t.Width)
		f.LocalSet(dst)
	case ir.Shr:
		e.setMaskedShiftAmount(rhs, t.Width)
		f.LocalGet(lhs)
		f.LocalGet(localScratch)
		f.I64ShrU()
		f.LocalSet(dst)
	case ir.Sar:
		e.setMaskedShiftAmount(rhs, t.Width)
		f.LocalGet(lhs)
		if t.Width != ir.W64 {
			// sign-extend before the arithmetic shift
			f.I64Const(int64(64 - t.Width.Bits()))
			f.I64Shl()
			f.I64Const(int64(64 - t.Width.Bits()))
			f.I64ShrS()
		}
		f.LocalGet(localScratch)
		f.I64ShrS()
		e.maskTo(t.Width)
		f.LocalSet(dst)
	}

	if t.Flags == ir.FlagSetNone {
		return
	}
	switch {
	case t.Op.IsShift():
		e.emitShiftFlags(t.Op, t.Width, lhs, localScratch, dst, t.Flags)
	case t.Op == ir.Add || t.Op == ir.Sub:
		e.emitAddSubFlags(t.Op, t.Width, lhs, rhs, dst, t.Flags)
	default:
		e.emitLogicFlags(t.Width, dst, t.Flags)
	}
}

// setMaskedShiftAmount stores the x86-masked shift count (5 bits for
// operands up to 32 bits, 6 bits for 64-bit) into the scratch local.
func (e *emitter) setMaskedShiftAmount(rhs uint32, w ir.Width) {
	f := e.f
	f.LocalGet(rhs)
	f.I64Const(shiftMaskFor(w))
	f.I64And()
	f.LocalSet(localScratch)
}

func (e *emitter) emitCmpFlags(t ir.CmpFlags) {
	f := e.f
	lhs, rhs := localValue(t.LHS), localValue(t.RHS)
	f.LocalGet(lhs)
	f.LocalGet(rhs)
	f.I64Sub()
	e.maskTo(t.Width)
	f.LocalSet(localScratch2)
	e.emitAddSubFlags(ir.Sub, t.Width, lhs, rhs, localScratch2, ir.FlagSetArith)
}

func (e *emitter) emitTestFlags(t ir.TestFlags) {
	f := e.f
	f.LocalGet(localValue(t.LHS))
	f.LocalGet(localValue(t.RHS))
	f.I64And()
	f.LocalSet(localScratch2)
	e.emitLogicFlags(t.Width, localScratch2, ir.FlagSetArith)
}

func (e *emitter) emitTerminator(t ir.Terminator) {
	f := e.f
	switch term := t.(type) {
	case ir.Jump:
		f.I64ConstU(term.Target)
		f.LocalTee(localNextRIP)
		f.LocalSet(localRetVal)
	case ir.CondJump:
		f.I64ConstU(term.Target)
		f.I64ConstU(term.Fallthrough)
		f.LocalGet(localValue(term.Cond))
		f.I64Const(0)
		f.I64Ne()
		f.Select()
		f.LocalTee(localNextRIP)
		f.LocalSet(localRetVal)
	case ir.IndirectJump:
		f.LocalGet(localValue(term.Value))
		f.LocalTee(localNextRIP)
		f.LocalSet(localRetVal)
	case ir.ExitToInterpreter:
		f.I64ConstU(term.NextRIP)
		f.LocalSet(localNextRIP)
		f.I64ConstU(abi.ExitSentinel)
		f.LocalSet(localRetVal)
	}
}
