// Package ir models one decoded x86 basic block as a flat SSA-like
// instruction list over integer value ids. Blocks are produced by a decoder
// front-end, validated once, and consumed by the Tier-1 code generator.
package ir

import "fmt"

// ValueID names a temporary produced by exactly one instruction in a block.
// Ids are dense and assigned in production order.
type ValueID uint32

// Width of a value or memory access, in bytes.
type Width uint8

const (
	W8  Width = 1
	W16 Width = 2
	W32 Width = 4
	W64 Width = 8
)

func (w Width) Bytes() int { return int(w) }
func (w Width) Bits() int  { return int(w) * 8 }

// Mask returns the value mask for the width (all ones for W64).
func (w Width) Mask() uint64 {
	if w == W64 {
		return ^uint64(0)
	}
	return 1<<(uint(w)*8) - 1
}

func (w Width) valid() bool {
	return w == W8 || w == W16 || w == W32 || w == W64
}

func (w Width) String() string {
	if !w.valid() {
		return fmt.Sprintf("w?%d", uint8(w))
	}
	return fmt.Sprintf("w%d", w.Bits())
}

// Gpr is an x86-64 general purpose register in architectural encoding order.
type Gpr uint8

const (
	RAX Gpr = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	GprCount = 16
)

var gprNames = [GprCount]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (g Gpr) String() string {
	if int(g) < len(gprNames) {
		return gprNames[g]
	}
	return fmt.Sprintf("gpr?%d", uint8(g))
}

// Flag identifies one x86 status flag.
type Flag uint8

const (
	CF Flag = iota
	PF
	AF
	ZF
	SF
	OF

	FlagCount = 6
)

var flagNames = [FlagCount]string{"cf", "pf", "af", "zf", "sf", "of"}

func (f Flag) String() string {
	if int(f) < len(flagNames) {
		return flagNames[f]
	}
	return fmt.Sprintf("flag?%d", uint8(f))
}

// FlagSet is a bitmask over Flag values selecting which flags an instruction
// updates.
type FlagSet uint8

const (
	FlagSetCF FlagSet = 1 << CF
	FlagSetPF FlagSet = 1 << PF
	FlagSetAF FlagSet = 1 << AF
	FlagSetZF FlagSet = 1 << ZF
	FlagSetSF FlagSet = 1 << SF
	FlagSetOF FlagSet = 1 << OF

	FlagSetNone  FlagSet = 0
	FlagSetArith         = FlagSetCF | FlagSetPF | FlagSetAF | FlagSetZF | FlagSetSF | FlagSetOF
)

// Has reports whether f is in the set.
func (s FlagSet) Has(f Flag) bool { return s&(1<<f) != 0 }

// GuestRegKind discriminates GuestReg.
type GuestRegKind uint8

const (
	RegGpr GuestRegKind = iota
	RegFlag
	RegRIP
)

// GuestReg identifies one piece of architectural state: a (possibly partial)
// GPR, a single flag, or the instruction pointer.
type GuestReg struct {
	Kind  GuestRegKind
	Gpr   Gpr   // RegGpr
	Width Width // RegGpr
	High8 bool  // RegGpr: AH/CH/DH/BH alias (bits 8..15)
	Flag  Flag  // RegFlag
}

// GprReg returns a width-w view of g.
func GprReg(g Gpr, w Width) GuestReg { return GuestReg{Kind: RegGpr, Gpr: g, Width: w} }

// High8Reg returns the high-byte alias of g (AH/CH/DH/BH; g must be RAX..RBX).
func High8Reg(g Gpr) GuestReg {
	return GuestReg{Kind: RegGpr, Gpr: g, Width: W8, High8: true}
}

// FlagReg returns the single-flag register f.
func FlagReg(f Flag) GuestReg { return GuestReg{Kind: RegFlag, Flag: f} }

// RIPReg returns the instruction-pointer register.
func RIPReg() GuestReg { return GuestReg{Kind: RegRIP} }

// valueWidth is the width of a value read from the register.
func (r GuestReg) valueWidth() Width {
	switch r.Kind {
	case RegGpr:
		return r.Width
	case RegFlag:
		return W8
	default:
		return W64
	}
}

func (r GuestReg) String() string {
	switch r.Kind {
	case RegGpr:
		if r.High8 {
			return r.Gpr.String() + ".h8"
		}
		return fmt.Sprintf("%s.%s", r.Gpr, r.Width)
	case RegFlag:
		return r.Flag.String()
	default:
		return "rip"
	}
}

// BinOpKind selects the ALU operation of a BinOp.
type BinOpKind uint8

const (
	Add BinOpKind = iota
	Sub
	And
	Or
	Xor
	Shl
	Shr
	Sar
)

var binOpNames = [...]string{"add", "sub", "and", "or", "xor", "shl", "shr", "sar"}

func (k BinOpKind) String() string {
	if int(k) < len(binOpNames) {
		return binOpNames[k]
	}
	return fmt.Sprintf("binop?%d", uint8(k))
}

// IsShift reports whether k is shl/shr/sar.
func (k BinOpKind) IsShift() bool { return k == Shl || k == Shr || k == Sar }

// Cond is one of the sixteen x86 condition codes.
type Cond uint8

const (
	CondO Cond = iota
	CondNO
	CondB
	CondAE
	CondE
	CondNE
	CondBE
	CondA
	CondS
	CondNS
	CondP
	CondNP
	CondL
	CondGE
	CondLE
	CondG

	CondCount = 16
)

var condNames = [CondCount]string{
	"o", "no", "b", "ae", "e", "ne", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g",
}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond?%d", uint8(c))
}
