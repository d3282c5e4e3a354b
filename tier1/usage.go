package tier1

import "github.com/wilsonzlin/aerojit/ir"

// StateUsage reports which architectural state a block touches: used state is
// loaded into locals by the prologue, written state is spilled by the
// epilogue.
type StateUsage struct {
	GprUsed    [ir.GprCount]bool
	GprWritten [ir.GprCount]bool
	// RIPUsed is set when the block reads RIP or can exit early (exits pass
	// the current RIP to the host).
	RIPUsed bool
	// FlagsUsed implies FlagsWritten-safety: flag writes merge bits into
	// RFLAGS, so any flag activity requires the loaded value.
	FlagsUsed    bool
	FlagsWritten bool
}

// AnalyzeStateUsage runs the single forward scan of §state-liveness over the
// live prefix of the block (a CallHelper ends live code).
//
// A partial GPR write (W8, W16, or a high-byte alias) to a register not yet
// accessed in the scan marks it used: the merge needs the register's prior
// value. W32 and W64 writes fully define a register.
//
// After the scan, every GPR that is written but not used and whose first
// write happens after the earliest possible runtime exit is forced used.
// Without this, an early exit would spill a zero-initialized local over the
// register's live value. Exits can occur at a CallHelper, at any load when
// the inline TLB and the MMIO-exit policy are active, and at any store when
// the store fast path is also active.
func AnalyzeStateUsage(b *ir.Block, opts Options) StateUsage {
	var u StateUsage
	var inited [ir.GprCount]bool
	var firstWrite [ir.GprCount]int
	for i := range firstWrite {
		firstWrite[i] = -1
	}
	earliestExit := -1

	exitAt := func(i int) {
		if earliestExit < 0 {
			earliestExit = i
		}
		u.RIPUsed = true
	}
	flagWrite := func() {
		u.FlagsWritten = true
		u.FlagsUsed = true
	}

scan:
	for i, inst := range b.Insts {
		switch t := inst.(type) {
		case ir.ReadReg:
			switch t.Reg.Kind {
			case ir.RegGpr:
				g := t.Reg.Gpr
				if !inited[g] {
					u.GprUsed[g] = true
					inited[g] = true
				}
			case ir.RegFlag:
				u.FlagsUsed = true
			case ir.RegRIP:
				u.RIPUsed = true
			}
		case ir.WriteReg:
			switch t.Reg.Kind {
			case ir.RegGpr:
				g := t.Reg.Gpr
				u.GprWritten[g] = true
				if firstWrite[g] < 0 {
					firstWrite[g] = i
				}
				partial := t.Reg.High8 || t.Reg.Width == ir.W8 || t.Reg.Width == ir.W16
				if partial && !inited[g] {
					u.GprUsed[g] = true
				}
				inited[g] = true
			case ir.RegFlag:
				flagWrite()
			}
		case ir.BinOp:
			if t.Flags != ir.FlagSetNone {
				flagWrite()
			}
		case ir.CmpFlags, ir.TestFlags:
			flagWrite()
		case ir.EvalCond:
			u.FlagsUsed = true
		case ir.Load:
			if opts.InlineTLB && opts.MMIOExit {
				exitAt(i)
			}
		case ir.Store:
			if opts.storeFastPath() && opts.MMIOExit {
				exitAt(i)
			}
		case ir.CallHelper:
			exitAt(i)
			break scan
		}
	}

	if earliestExit >= 0 {
		for g := 0; g < ir.GprCount; g++ {
			if u.GprWritten[g] && !u.GprUsed[g] && firstWrite[g] > earliestExit {
				u.GprUsed[g] = true
			}
		}
	}
	return u
}
