package ir

// Inst is one IR instruction. The concrete types below are the only
// implementations; consumers switch exhaustively.
type Inst interface {
	isInst()
}

// Const materializes an immediate, masked to Width.
type Const struct {
	Dst   ValueID
	Width Width
	Imm   uint64
}

// ReadReg reads architectural state into a value.
type ReadReg struct {
	Dst ValueID
	Reg GuestReg
}

// WriteReg commits a value to architectural state. Partial GPR widths merge:
// W32 zero-extends (full definition per x86), W16/W8/high8 preserve the
// untouched bits.
type WriteReg struct {
	Reg GuestReg
	Src ValueID
}

// Trunc narrows a value to Width (zero-extended storage).
type Trunc struct {
	Dst   ValueID
	Src   ValueID
	Width Width
}

// Load reads Width bytes of guest memory at the W64 address Addr.
type Load struct {
	Dst   ValueID
	Width Width
	Addr  ValueID
}

// Store writes the Width-wide value Val to guest memory at Addr.
type Store struct {
	Width Width
	Addr  ValueID
	Val   ValueID
}

// BinOp computes Dst = LHS op RHS at Width and updates the flags in Flags.
type BinOp struct {
	Dst   ValueID
	Op    BinOpKind
	Width Width
	LHS   ValueID
	RHS   ValueID
	Flags FlagSet
}

// CmpFlags updates all six arithmetic flags as x86 CMP (SUB form), producing
// no value.
type CmpFlags struct {
	Width Width
	LHS   ValueID
	RHS   ValueID
}

// TestFlags updates flags as x86 TEST (AND form), producing no value.
type TestFlags struct {
	Width Width
	LHS   ValueID
	RHS   ValueID
}

// EvalCond evaluates an x86 condition code over the current flags into a
// W8 boolean value (0 or 1).
type EvalCond struct {
	Dst  ValueID
	Cond Cond
}

// Select picks A when Cond is nonzero, else B. A and B share a width.
type Select struct {
	Dst  ValueID
	Cond ValueID
	A    ValueID
	B    ValueID
}

// CallHelper bails out to the host interpreter ("no inline-tier support").
// It is the effective end of live code in the block.
type CallHelper struct {
	Name string
	Args []ValueID
}

func (Const) isInst()      {}
func (ReadReg) isInst()    {}
func (WriteReg) isInst()   {}
func (Trunc) isInst()      {}
func (Load) isInst()       {}
func (Store) isInst()      {}
func (BinOp) isInst()      {}
func (CmpFlags) isInst()   {}
func (TestFlags) isInst()  {}
func (EvalCond) isInst()   {}
func (Select) isInst()     {}
func (CallHelper) isInst() {}

// Terminator ends a block.
type Terminator interface {
	isTerminator()
}

// Jump continues at a constant RIP.
type Jump struct {
	Target uint64
}

// CondJump picks Target when Cond is nonzero, else Fallthrough.
type CondJump struct {
	Cond        ValueID
	Target      uint64
	Fallthrough uint64
}

// IndirectJump continues at a computed RIP value.
type IndirectJump struct {
	Value ValueID
}

// ExitToInterpreter returns the exit sentinel with NextRIP committed to
// CpuState.rip.
type ExitToInterpreter struct {
	NextRIP uint64
}

func (Jump) isTerminator()              {}
func (CondJump) isTerminator()          {}
func (IndirectJump) isTerminator()      {}
func (ExitToInterpreter) isTerminator() {}

// Block is one immutable decoded basic block.
type Block struct {
	Entry  uint64
	Insts  []Inst
	Term   Terminator
	widths []Width
}

// NumValues reports how many values the block defines.
func (b *Block) NumValues() int { return len(b.widths) }

// WidthOf returns the width of v.
func (b *Block) WidthOf(v ValueID) Width {
	return b.widths[v]
}
