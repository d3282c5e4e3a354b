package tier1

import (
	"context"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aerojit/abi"
	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/wasmrt"
)

func setBit(fl, bit uint64, on bool) uint64 {
	if on {
		return fl | bit
	}
	return fl &^ bit
}

func parityEven(res uint64) bool {
	return bits.OnesCount8(uint8(res))%2 == 0
}

// refAddSub mirrors the hardware rules for ADD/SUB flag production.
func refAddSub(op ir.BinOpKind, w ir.Width, a, b, initial uint64) (uint64, uint64) {
	mask := w.Mask()
	a &= mask
	b &= mask
	sign := signBitFor(w)
	var res uint64
	fl := initial
	if op == ir.Add {
		res = (a + b) & mask
		fl = setBit(fl, abi.RFlagsCF, res < a)
		fl = setBit(fl, abi.RFlagsOF, (a^res)&(b^res)&sign != 0)
	} else {
		res = (a - b) & mask
		fl = setBit(fl, abi.RFlagsCF, a < b)
		fl = setBit(fl, abi.RFlagsOF, (a^b)&(a^res)&sign != 0)
	}
	fl = setBit(fl, abi.RFlagsAF, (a^b^res)&0x10 != 0)
	fl = setBit(fl, abi.RFlagsZF, res == 0)
	fl = setBit(fl, abi.RFlagsSF, res&sign != 0)
	fl = setBit(fl, abi.RFlagsPF, parityEven(res))
	return res, fl
}

func refLogic(w ir.Width, res, initial uint64) uint64 {
	fl := initial &^ (abi.RFlagsCF | abi.RFlagsOF | abi.RFlagsAF)
	fl = setBit(fl, abi.RFlagsZF, res == 0)
	fl = setBit(fl, abi.RFlagsSF, res&signBitFor(w) != 0)
	fl = setBit(fl, abi.RFlagsPF, parityEven(res))
	return fl
}

// refShift mirrors the masked-count shift rules: count 0 touches nothing,
// CF only within the operand width, OF only for count 1, AF never.
func refShift(op ir.BinOpKind, w ir.Width, a, rawAmt, initial uint64) (uint64, uint64) {
	mask := w.Mask()
	a &= mask
	nbits := uint64(w.Bits())
	amtMask := uint64(31)
	if w == ir.W64 {
		amtMask = 63
	}
	amt := rawAmt & amtMask

	var res uint64
	switch op {
	case ir.Shl:
		res = (a << amt) & mask
	case ir.Shr:
		res = a >> amt
	default: // Sar
		se := int64(a<<(64-nbits)) >> (64 - nbits)
		res = uint64(se>>amt) & mask
	}

	fl := initial
	if amt == 0 {
		return res, fl
	}
	fl = setBit(fl, abi.RFlagsZF, res == 0)
	fl = setBit(fl, abi.RFlagsSF, res&signBitFor(w) != 0)
	fl = setBit(fl, abi.RFlagsPF, parityEven(res))
	if amt <= nbits {
		var cf bool
		if op == ir.Shl {
			cf = (a>>(nbits-amt))&1 != 0
		} else {
			cf = (a>>(amt-1))&1 != 0
		}
		fl = setBit(fl, abi.RFlagsCF, cf)
	}
	if amt == 1 {
		switch op {
		case ir.Shl:
			fl = setBit(fl, abi.RFlagsOF, (a^res)&signBitFor(w) != 0)
		case ir.Shr:
			fl = setBit(fl, abi.RFlagsOF, a&signBitFor(w) != 0)
		default:
			fl = setBit(fl, abi.RFlagsOF, false)
		}
	}
	return res, fl
}

// runFlagOp executes one flag-producing BinOp with the given initial RFLAGS
// and returns the committed result register and RFLAGS.
func runFlagOp(t *testing.T, env *wasmrt.Env, op ir.BinOpKind, w ir.Width, a, b, initial uint64) (uint64, uint64) {
	t.Helper()
	env.SetGpr(ir.RSI, a)
	env.SetGpr(ir.RDI, b)
	env.SetGpr(ir.RCX, 0)
	env.SetRFlags(initial)

	bld := ir.NewBuilder(0x1000)
	va := bld.ReadReg(ir.GprReg(ir.RSI, w))
	vb := bld.ReadReg(ir.GprReg(ir.RDI, w))
	vr := bld.BinOp(op, w, va, vb, ir.FlagSetArith)
	bld.WriteReg(ir.GprReg(ir.RCX, w), vr)
	blk := bld.Finish(ir.Jump{Target: 0x1008})

	run(t, env, blk, DefaultOptions())
	return env.Gpr(ir.RCX), env.RFlags()
}

const allArith = abi.RFlagsCF | abi.RFlagsPF | abi.RFlagsAF | abi.RFlagsZF | abi.RFlagsSF | abi.RFlagsOF

func TestAddSubFlags(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})
	cases := []struct {
		op   ir.BinOpKind
		w    ir.Width
		a, b uint64
	}{
		{ir.Add, ir.W8, 0xff, 0x01},
		{ir.Add, ir.W8, 0x7f, 0x01},
		{ir.Add, ir.W8, 0x10, 0x20},
		{ir.Add, ir.W16, 0xffff, 0xffff},
		{ir.Add, ir.W32, 0x8000_0000, 0x8000_0000},
		{ir.Add, ir.W32, 0x0fff_ffff, 0x1},
		{ir.Add, ir.W64, ^uint64(0), 1},
		{ir.Add, ir.W64, 1 << 62, 1 << 62},
		{ir.Sub, ir.W8, 0x00, 0x01},
		{ir.Sub, ir.W16, 5, 7},
		{ir.Sub, ir.W16, 7, 7},
		{ir.Sub, ir.W32, 0x8000_0000, 1},
		{ir.Sub, ir.W64, 3, ^uint64(0)},
		{ir.Sub, ir.W64, 1 << 63, 1},
	}
	for _, tc := range cases {
		for _, initial := range []uint64{0, allArith} {
			wantRes, wantFl := refAddSub(tc.op, tc.w, tc.a, tc.b, initial)
			res, fl := runFlagOp(t, env, tc.op, tc.w, tc.a, tc.b, initial)
			require.Equal(t, wantRes, res, "%v %v %#x,%#x result", tc.op, tc.w, tc.a, tc.b)
			require.Equal(t, wantFl|abi.RFlagsReserved1, fl,
				"%v %v %#x,%#x flags (initial %#x)", tc.op, tc.w, tc.a, tc.b, initial)
		}
	}
}

func TestLogicFlags(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})
	cases := []struct {
		op   ir.BinOpKind
		w    ir.Width
		a, b uint64
	}{
		{ir.And, ir.W8, 0xf0, 0x0f},
		{ir.And, ir.W32, 0xffff_ffff, 0x8000_0001},
		{ir.Or, ir.W16, 0x0f00, 0x00f0},
		{ir.Xor, ir.W64, 0xff, 0xff},
	}
	for _, tc := range cases {
		for _, initial := range []uint64{0, allArith} {
			res, fl := runFlagOp(t, env, tc.op, tc.w, tc.a, tc.b, initial)
			want := refLogic(tc.w, res, initial)
			require.Equal(t, want|abi.RFlagsReserved1, fl,
				"%v %v %#x,%#x (initial %#x)", tc.op, tc.w, tc.a, tc.b, initial)
		}
	}
}

func TestShiftFlags(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})
	ops := []ir.BinOpKind{ir.Shl, ir.Shr, ir.Sar}
	widths := []ir.Width{ir.W8, ir.W32, ir.W64}
	values := []uint64{1, 0x5a, 0x80, 0x8000_0001, 1 << 63, ^uint64(0)}
	amounts := []uint64{0, 1, 7, 8, 12, 31, 32, 63, 64}

	for _, op := range ops {
		for _, w := range widths {
			for _, a := range values {
				for _, amt := range amounts {
					for _, initial := range []uint64{0, allArith} {
						wantRes, wantFl := refShift(op, w, a, amt, initial)
						res, fl := runFlagOp(t, env, op, w, a, amt, initial)
						require.Equal(t, wantRes, res,
							"%v %v a=%#x amt=%d result", op, w, a, amt)
						require.Equal(t, wantFl|abi.RFlagsReserved1, fl,
							"%v %v a=%#x amt=%d initial=%#x flags", op, w, a, amt, initial)
					}
				}
			}
		}
	}
}

func TestCmpAndTest(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})

	t.Run("cmp leaves operands alone", func(t *testing.T) {
		env.SetGpr(ir.RSI, 5)
		env.SetGpr(ir.RDI, 7)
		env.SetRFlags(0)

		b := ir.NewBuilder(0x1000)
		va := b.ReadReg(ir.GprReg(ir.RSI, ir.W16))
		vb := b.ReadReg(ir.GprReg(ir.RDI, ir.W16))
		b.Cmp(ir.W16, va, vb)
		blk := b.Finish(ir.Jump{Target: 0x1008})

		run(t, env, blk, DefaultOptions())
		_, want := refAddSub(ir.Sub, ir.W16, 5, 7, 0)
		require.Equal(t, want|abi.RFlagsReserved1, env.RFlags())
		require.Equal(t, uint64(5), env.Gpr(ir.RSI))
		require.Equal(t, uint64(7), env.Gpr(ir.RDI))
	})

	t.Run("test is non-destructive and", func(t *testing.T) {
		env.SetGpr(ir.RSI, 0x88)
		env.SetGpr(ir.RDI, 0x08)
		env.SetRFlags(allArith)

		b := ir.NewBuilder(0x1000)
		va := b.ReadReg(ir.GprReg(ir.RSI, ir.W8))
		vb := b.ReadReg(ir.GprReg(ir.RDI, ir.W8))
		b.Test(ir.W8, va, vb)
		blk := b.Finish(ir.Jump{Target: 0x1008})

		run(t, env, blk, DefaultOptions())
		want := refLogic(ir.W8, 0x88&0x08, allArith)
		require.Equal(t, want|abi.RFlagsReserved1, env.RFlags())
	})
}

func TestFlagWritePreservesOthers(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})
	env.SetRFlags(abi.RFlagsZF)

	b := ir.NewBuilder(0x1000)
	v := b.ConstInt(ir.W64, 1)
	b.WriteReg(ir.FlagReg(ir.CF), v)
	blk := b.Finish(ir.Jump{Target: 0x1008})

	run(t, env, blk, DefaultOptions())
	require.Equal(t, uint64(abi.RFlagsZF|abi.RFlagsCF|abi.RFlagsReserved1), env.RFlags())
}

func refCond(c ir.Cond, fl uint64) bool {
	cf := fl&abi.RFlagsCF != 0
	pf := fl&abi.RFlagsPF != 0
	zf := fl&abi.RFlagsZF != 0
	sf := fl&abi.RFlagsSF != 0
	of := fl&abi.RFlagsOF != 0
	switch c {
	case ir.CondO:
		return of
	case ir.CondNO:
		return !of
	case ir.CondB:
		return cf
	case ir.CondAE:
		return !cf
	case ir.CondE:
		return zf
	case ir.CondNE:
		return !zf
	case ir.CondBE:
		return cf || zf
	case ir.CondA:
		return !cf && !zf
	case ir.CondS:
		return sf
	case ir.CondNS:
		return !sf
	case ir.CondP:
		return pf
	case ir.CondNP:
		return !pf
	case ir.CondL:
		return sf != of
	case ir.CondGE:
		return sf == of
	case ir.CondLE:
		return zf || sf != of
	default: // CondG
		return !zf && sf == of
	}
}

func TestEvalCondTruthTable(t *testing.T) {
	env := newEnv(t, wasmrt.Config{})

	for c := ir.Cond(0); c < ir.CondCount; c++ {
		b := ir.NewBuilder(0x1000)
		v := b.EvalCond(c)
		b.WriteReg(ir.GprReg(ir.RDX, ir.W8), v)
		blk := b.Finish(ir.Jump{Target: 0x1008})
		code := compile(t, blk, DefaultOptions())

		for combo := 0; combo < 32; combo++ {
			var fl uint64
			if combo&1 != 0 {
				fl |= abi.RFlagsCF
			}
			if combo&2 != 0 {
				fl |= abi.RFlagsZF
			}
			if combo&4 != 0 {
				fl |= abi.RFlagsSF
			}
			if combo&8 != 0 {
				fl |= abi.RFlagsOF
			}
			if combo&16 != 0 {
				fl |= abi.RFlagsPF
			}
			env.SetRFlags(fl)
			env.SetGpr(ir.RDX, 0)

			_, err := env.Run(context.Background(), code)
			require.NoError(t, err)

			want := uint64(0)
			if refCond(c, fl) {
				want = 1
			}
			require.Equal(t, want, env.Gpr(ir.RDX), "%v with rflags %#x", c, fl)
			require.Equal(t, fl, env.RFlags(), "flags are read-only to evalcond")
		}
	}
}
