package ir

// Builder constructs a Block in program order. It hands out dense ValueIDs
// and records the per-value width table; structural checking happens in
// Block.Validate, not here.
type Builder struct {
	entry  uint64
	insts  []Inst
	widths []Width
}

// NewBuilder starts a block at the given entry RIP.
func NewBuilder(entry uint64) *Builder {
	return &Builder{entry: entry}
}

func (b *Builder) newValue(w Width) ValueID {
	b.widths = append(b.widths, w)
	return ValueID(len(b.widths) - 1)
}

// ConstInt materializes imm masked to w.
func (b *Builder) ConstInt(w Width, imm uint64) ValueID {
	dst := b.newValue(w)
	b.insts = append(b.insts, Const{Dst: dst, Width: w, Imm: imm & w.Mask()})
	return dst
}

// ReadReg reads architectural state.
func (b *Builder) ReadReg(r GuestReg) ValueID {
	dst := b.newValue(r.valueWidth())
	b.insts = append(b.insts, ReadReg{Dst: dst, Reg: r})
	return dst
}

// WriteReg commits src to architectural state.
func (b *Builder) WriteReg(r GuestReg, src ValueID) {
	b.insts = append(b.insts, WriteReg{Reg: r, Src: src})
}

// Trunc narrows src to w.
func (b *Builder) Trunc(src ValueID, w Width) ValueID {
	dst := b.newValue(w)
	b.insts = append(b.insts, Trunc{Dst: dst, Src: src, Width: w})
	return dst
}

// Load reads w bytes at addr.
func (b *Builder) Load(w Width, addr ValueID) ValueID {
	dst := b.newValue(w)
	b.insts = append(b.insts, Load{Dst: dst, Width: w, Addr: addr})
	return dst
}

// Store writes val (width w) at addr.
func (b *Builder) Store(w Width, addr, val ValueID) {
	b.insts = append(b.insts, Store{Width: w, Addr: addr, Val: val})
}

// BinOp computes lhs op rhs at width w, updating flags.
func (b *Builder) BinOp(op BinOpKind, w Width, lhs, rhs ValueID, flags FlagSet) ValueID {
	dst := b.newValue(w)
	b.insts = append(b.insts, BinOp{Dst: dst, Op: op, Width: w, LHS: lhs, RHS: rhs, Flags: flags})
	return dst
}

// Cmp updates flags as x86 CMP.
func (b *Builder) Cmp(w Width, lhs, rhs ValueID) {
	b.insts = append(b.insts, CmpFlags{Width: w, LHS: lhs, RHS: rhs})
}

// Test updates flags as x86 TEST.
func (b *Builder) Test(w Width, lhs, rhs ValueID) {
	b.insts = append(b.insts, TestFlags{Width: w, LHS: lhs, RHS: rhs})
}

// EvalCond evaluates cond into a W8 boolean.
func (b *Builder) EvalCond(cond Cond) ValueID {
	dst := b.newValue(W8)
	b.insts = append(b.insts, EvalCond{Dst: dst, Cond: cond})
	return dst
}

// Select picks a when cond is nonzero, else c.
func (b *Builder) Select(cond, a, c ValueID) ValueID {
	dst := b.newValue(b.widths[a])
	b.insts = append(b.insts, Select{Dst: dst, Cond: cond, A: a, B: c})
	return dst
}

// CallHelper records a host-call bailout; nothing after it is live.
func (b *Builder) CallHelper(name string, args ...ValueID) {
	b.insts = append(b.insts, CallHelper{Name: name, Args: args})
}

// Finish attaches the terminator and returns the block.
func (b *Builder) Finish(t Terminator) *Block {
	return &Block{
		Entry:  b.entry,
		Insts:  b.insts,
		Term:   t,
		widths: b.widths,
	}
}
