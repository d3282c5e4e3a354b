package tier1

import (
	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
)

// rflagsBit maps a flag to its RFLAGS bit.
func rflagsBit(fl ir.Flag) uint64 {
	switch fl {
	case ir.CF:
		return abi.RFlagsCF
	case ir.PF:
		return abi.RFlagsPF
	case ir.AF:
		return abi.RFlagsAF
	case ir.ZF:
		return abi.RFlagsZF
	case ir.SF:
		return abi.RFlagsSF
	default:
		return abi.RFlagsOF
	}
}

func (e *emitter) emitReadReg(t ir.ReadReg) {
	f := e.f
	dst := localValue(t.Dst)
	switch t.Reg.Kind {
	case ir.RegGpr:
		f.LocalGet(localGpr(t.Reg.Gpr))
		switch {
		case t.Reg.High8:
			f.I64Const(8)
			f.I64ShrU()
			f.I64Const(0xff)
			f.I64And()
		case t.Reg.Width == ir.W64:
			// the local already holds the full register
		default:
			f.I64ConstU(t.Reg.Width.Mask())
			f.I64And()
		}
		f.LocalSet(dst)
	case ir.RegFlag:
		e.pushFlag(t.Reg.Flag)
		f.I64ExtendI32U()
		f.LocalSet(dst)
	default: // RIP
		f.LocalGet(localRIP)
		f.LocalSet(dst)
	}
}

func (e *emitter) emitWriteReg(t ir.WriteReg) {
	f := e.f
	src := localValue(t.Src)
	switch t.Reg.Kind {
	case ir.RegGpr:
		g := localGpr(t.Reg.Gpr)
		switch {
		case t.Reg.High8:
			f.LocalGet(g)
			f.I64ConstU(^uint64(0xff00))
			f.I64And()
			f.LocalGet(src)
			f.I64Const(8)
			f.I64Shl()
			f.I64Or()
			f.LocalSet(g)
		case t.Reg.Width == ir.W64, t.Reg.Width == ir.W32:
			// 32-bit writes zero-extend; value locals are already masked
			f.LocalGet(src)
			f.LocalSet(g)
		default:
			f.LocalGet(g)
			f.I64ConstU(^t.Reg.Width.Mask())
			f.I64And()
			f.LocalGet(src)
			f.I64Or()
			f.LocalSet(g)
		}
	case ir.RegFlag:
		e.setFlag(rflagsBit(t.Reg.Flag), func() {
			f.LocalGet(src)
			f.I64Const(0)
			f.I64Ne()
		})
	default: // RIP
		f.LocalGet(src)
		f.LocalSet(localRIP)
	}
}
