package tier1

import (
	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/wasm"
)

// pushFlag pushes one RFLAGS bit as an i32 boolean.
func (e *emitter) pushFlag(fl ir.Flag) {
	f := e.f
	f.LocalGet(localRFlags)
	f.I64ConstU(rflagsBit(fl))
	f.I64And()
	f.I64Const(0)
	f.I64Ne()
}

// setFlag merges one bit into the RFLAGS local. pushCond must leave an i32
// boolean on the stack.
func (e *emitter) setFlag(bit uint64, pushCond func()) {
	f := e.f
	f.LocalGet(localRFlags)
	f.I64ConstU(bit)
	f.I64Or()
	f.LocalGet(localRFlags)
	f.I64ConstU(^bit)
	f.I64And()
	pushCond()
	f.Select()
	f.LocalSet(localRFlags)
}

func (e *emitter) clearFlag(bit uint64) {
	f := e.f
	f.LocalGet(localRFlags)
	f.I64ConstU(^bit)
	f.I64And()
	f.LocalSet(localRFlags)
}

// pushParityEven pushes an i32 boolean: even population count in the low
// byte of local v. x86 PF looks at the low 8 bits only, at every width.
func (e *emitter) pushParityEven(v uint32) {
	f := e.f
	f.LocalGet(v)
	f.I32WrapI64()
	f.I32Const(0xff)
	f.I32And()
	f.I32Popcnt()
	f.I32Const(1)
	f.I32And()
	f.I32Eqz()
}

func signBitFor(w ir.Width) uint64 { return 1 << (uint(w.Bits()) - 1) }

// emitAddSubFlags materializes the requested arithmetic flags from
// width-masked lhs/rhs/result locals.
func (e *emitter) emitAddSubFlags(op ir.BinOpKind, w ir.Width, lhs, rhs, res uint32, set ir.FlagSet) {
	f := e.f
	if set.Has(ir.CF) {
		e.setFlag(abi.RFlagsCF, func() {
			// add: carry out iff res < lhs; sub: borrow iff lhs < rhs
			if op == ir.Add {
				f.LocalGet(res)
				f.LocalGet(lhs)
			} else {
				f.LocalGet(lhs)
				f.LocalGet(rhs)
			}
			f.I64LtU()
		})
	}
	if set.Has(ir.PF) {
		e.setFlag(abi.RFlagsPF, func() { e.pushParityEven(res) })
	}
	if set.Has(ir.AF) {
		e.setFlag(abi.RFlagsAF, func() {
			f.LocalGet(lhs)
			f.LocalGet(rhs)
			f.I64Xor()
			f.LocalGet(res)
			f.I64Xor()
			f.I64Const(0x10)
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
	}
	if set.Has(ir.ZF) {
		e.setFlag(abi.RFlagsZF, func() {
			f.LocalGet(res)
			f.I64Eqz()
		})
	}
	if set.Has(ir.SF) {
		e.setFlag(abi.RFlagsSF, func() {
			f.LocalGet(res)
			f.I64ConstU(signBitFor(w))
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
	}
	if set.Has(ir.OF) {
		e.setFlag(abi.RFlagsOF, func() {
			if op == ir.Add {
				// signed overflow iff lhs and rhs agree in sign but res differs
				f.LocalGet(lhs)
				f.LocalGet(res)
				f.I64Xor()
				f.LocalGet(rhs)
				f.LocalGet(res)
				f.I64Xor()
			} else {
				f.LocalGet(lhs)
				f.LocalGet(rhs)
				f.I64Xor()
				f.LocalGet(lhs)
				f.LocalGet(res)
				f.I64Xor()
			}
			f.I64And()
			f.I64ConstU(signBitFor(w))
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
	}
}

// emitLogicFlags: CF/OF/AF cleared, ZF/SF/PF from the result.
func (e *emitter) emitLogicFlags(w ir.Width, res uint32, set ir.FlagSet) {
	f := e.f
	if set.Has(ir.CF) {
		e.clearFlag(abi.RFlagsCF)
	}
	if set.Has(ir.OF) {
		e.clearFlag(abi.RFlagsOF)
	}
	if set.Has(ir.AF) {
		e.clearFlag(abi.RFlagsAF)
	}
	if set.Has(ir.PF) {
		e.setFlag(abi.RFlagsPF, func() { e.pushParityEven(res) })
	}
	if set.Has(ir.ZF) {
		e.setFlag(abi.RFlagsZF, func() {
			f.LocalGet(res)
			f.I64Eqz()
		})
	}
	if set.Has(ir.SF) {
		e.setFlag(abi.RFlagsSF, func() {
			f.LocalGet(res)
			f.I64ConstU(signBitFor(w))
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
	}
}

// emitShiftFlags follows the x86 masked-count rules: a masked count of zero
// leaves every flag untouched; CF holds the last bit shifted out only while
// the count is within the operand width; OF is defined only for count 1.
// AF is always left unchanged. amt must hold the masked count.
func (e *emitter) emitShiftFlags(op ir.BinOpKind, w ir.Width, lhs, amt, res uint32, set ir.FlagSet) {
	f := e.f
	f.LocalGet(amt)
	f.I64Eqz()
	f.I32Eqz()
	f.If(wasm.BlockTypeEmpty)
	if set.Has(ir.PF) {
		e.setFlag(abi.RFlagsPF, func() { e.pushParityEven(res) })
	}
	if set.Has(ir.ZF) {
		e.setFlag(abi.RFlagsZF, func() {
			f.LocalGet(res)
			f.I64Eqz()
		})
	}
	if set.Has(ir.SF) {
		e.setFlag(abi.RFlagsSF, func() {
			f.LocalGet(res)
			f.I64ConstU(signBitFor(w))
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
	}
	if set.Has(ir.CF) {
		f.LocalGet(amt)
		f.I64Const(int64(w.Bits()))
		f.I64LeU()
		f.If(wasm.BlockTypeEmpty)
		e.setFlag(abi.RFlagsCF, func() {
			f.LocalGet(lhs)
			if op == ir.Shl {
				f.I64Const(int64(w.Bits()))
				f.LocalGet(amt)
				f.I64Sub()
			} else {
				f.LocalGet(amt)
				f.I64Const(1)
				f.I64Sub()
			}
			f.I64ShrU()
			f.I64Const(1)
			f.I64And()
			f.I64Const(0)
			f.I64Ne()
		})
		f.End()
	}
	if set.Has(ir.OF) {
		f.LocalGet(amt)
		f.I64Const(1)
		f.I64Eq()
		f.If(wasm.BlockTypeEmpty)
		switch op {
		case ir.Shl:
			// set iff the sign bit changed
			e.setFlag(abi.RFlagsOF, func() {
				f.LocalGet(lhs)
				f.LocalGet(res)
				f.I64Xor()
				f.I64ConstU(signBitFor(w))
				f.I64And()
				f.I64Const(0)
				f.I64Ne()
			})
		case ir.Shr:
			// set iff the original sign bit was set
			e.setFlag(abi.RFlagsOF, func() {
				f.LocalGet(lhs)
				f.I64ConstU(signBitFor(w))
				f.I64And()
				f.I64Const(0)
				f.I64Ne()
			})
		default:
			e.clearFlag(abi.RFlagsOF)
		}
		f.End()
	}
	f.End()
}

// emitEvalCond materializes one of the sixteen x86 condition codes from the
// RFLAGS local as a 0/1 value.
func (e *emitter) emitEvalCond(c ir.Cond, dst uint32) {
	f := e.f
	switch c {
	case ir.CondO:
		e.pushFlag(ir.OF)
	case ir.CondNO:
		e.pushFlag(ir.OF)
		f.I32Eqz()
	case ir.CondB:
		e.pushFlag(ir.CF)
	case ir.CondAE:
		e.pushFlag(ir.CF)
		f.I32Eqz()
	case ir.CondE:
		e.pushFlag(ir.ZF)
	case ir.CondNE:
		e.pushFlag(ir.ZF)
		f.I32Eqz()
	case ir.CondBE:
		e.pushFlag(ir.CF)
		e.pushFlag(ir.ZF)
		f.I32Or()
	case ir.CondA:
		e.pushFlag(ir.CF)
		e.pushFlag(ir.ZF)
		f.I32Or()
		f.I32Eqz()
	case ir.CondS:
		e.pushFlag(ir.SF)
	case ir.CondNS:
		e.pushFlag(ir.SF)
		f.I32Eqz()
	case ir.CondP:
		e.pushFlag(ir.PF)
	case ir.CondNP:
		e.pushFlag(ir.PF)
		f.I32Eqz()
	case ir.CondL:
		e.pushFlag(ir.SF)
		e.pushFlag(ir.OF)
		f.I32Ne()
	case ir.CondGE:
		e.pushFlag(ir.SF)
		e.pushFlag(ir.OF)
		f.I32Eq()
	case ir.CondLE:
		e.pushFlag(ir.ZF)
		e.pushFlag(ir.SF)
		e.pushFlag(ir.OF)
		f.I32Ne()
		f.I32Or()
	default: // CondG
		e.pushFlag(ir.ZF)
		e.pushFlag(ir.SF)
		e.pushFlag(ir.OF)
		f.I32Ne()
		f.I32Or()
		f.I32Eqz()
	}
	f.I64ExtendI32U()
	f.LocalSet(dst)
}
