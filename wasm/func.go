package wasm

type localRun struct {
	count uint32
	typ   ValType
}

// Func assembles one function body: local declarations followed by the
// instruction stream. Structured-control nesting depth is tracked so callers
// can compute br label indices to an outer block from arbitrary nesting.
type Func struct {
	locals []localRun
	code   []byte
	depth  int
}

func NewFunc() *Func { return &Func{} }

// AddLocals declares count locals of type t (appended after any previous
// declarations; parameters are not declared here).
func (f *Func) AddLocals(count uint32, t ValType) {
	if count == 0 {
		return
	}
	if n := len(f.locals); n > 0 && f.locals[n-1].typ == t {
		f.locals[n-1].count += count
		return
	}
	f.locals = append(f.locals, localRun{count, t})
}

// Depth reports how many structured blocks are currently open.
func (f *Func) Depth() int { return f.depth }

// Body returns the encoded body (locals, code, end). It panics if a
// block/if was left open.
func (f *Func) Body() []byte {
	if f.depth != 0 {
		panic("wasm: unbalanced control structure in function body")
	}
	out := AppendUleb128(nil, uint64(len(f.locals)))
	for _, run := range f.locals {
		out = AppendUleb128(out, uint64(run.count))
		out = append(out, byte(run.typ))
	}
	out = append(out, f.code...)
	return append(out, OpEnd)
}

func (f *Func) op(b byte) { f.code = append(f.code, b) }

func (f *Func) opU32(b byte, v uint32) {
	f.code = append(f.code, b)
	f.code = AppendUleb128(f.code, uint64(v))
}

// Control flow.

func (f *Func) Block(blockType byte) {
	f.op(OpBlock)
	f.op(blockType)
	f.depth++
}

func (f *Func) Loop(blockType byte) {
	f.op(OpLoop)
	f.op(blockType)
	f.depth++
}

func (f *Func) If(blockType byte) {
	f.op(OpIf)
	f.op(blockType)
	f.depth++
}

func (f *Func) Else() { f.op(OpElse) }

func (f *Func) End() {
	if f.depth == 0 {
		panic("wasm: End without open block")
	}
	f.op(OpEnd)
	f.depth--
}

func (f *Func) Br(label uint32)   { f.opU32(OpBr, label) }
func (f *Func) BrIf(label uint32) { f.opU32(OpBrIf, label) }
func (f *Func) Return()           { f.op(OpReturn) }
func (f *Func) Unreachable()      { f.op(OpUnreachable) }
func (f *Func) Call(funcIdx uint32) { f.opU32(OpCall, funcIdx) }

// Parametric.

func (f *Func) Drop()   { f.op(OpDrop) }
func (f *Func) Select() { f.op(OpSelect) }

// Locals.

func (f *Func) LocalGet(idx uint32) { f.opU32(OpLocalGet, idx) }
func (f *Func) LocalSet(idx uint32) { f.opU32(OpLocalSet, idx) }
func (f *Func) LocalTee(idx uint32) { f.opU32(OpLocalTee, idx) }

// Constants.

func (f *Func) I32Const(v int32) {
	f.op(OpI32Const)
	f.code = AppendSleb128(f.code, int64(v))
}

func (f *Func) I64Const(v int64) {
	f.op(OpI64Const)
	f.code = AppendSleb128(f.code, v)
}

// I64ConstU emits an i64.const with v's bit pattern.
func (f *Func) I64ConstU(v uint64) { f.I64Const(int64(v)) }

// Memory access. align is the exponent (log2) of the natural alignment.

func (f *Func) mem(op byte, align, offset uint32) {
	f.op(op)
	f.code = AppendUleb128(f.code, uint64(align))
	f.code = AppendUleb128(f.code, uint64(offset))
}

func (f *Func) I32Load(align, offset uint32)    { f.mem(OpI32Load, align, offset) }
func (f *Func) I64Load(align, offset uint32)    { f.mem(OpI64Load, align, offset) }
func (f *Func) I64Load8U(align, offset uint32)  { f.mem(OpI64Load8U, align, offset) }
func (f *Func) I64Load16U(align, offset uint32) { f.mem(OpI64Load16U, align, offset) }
func (f *Func) I64Load32U(align, offset uint32) { f.mem(OpI64Load32U, align, offset) }
func (f *Func) I32Store(align, offset uint32)   { f.mem(OpI32Store, align, offset) }
func (f *Func) I64Store(align, offset uint32)   { f.mem(OpI64Store, align, offset) }
func (f *Func) I64Store8(align, offset uint32)  { f.mem(OpI64Store8, align, offset) }
func (f *Func) I64Store16(align, offset uint32) { f.mem(OpI64Store16, align, offset) }
func (f *Func) I64Store32(align, offset uint32) { f.mem(OpI64Store32, align, offset) }

// Numeric.

func (f *Func) I32Eqz() { f.op(OpI32Eqz) }
func (f *Func) I32Eq()  { f.op(OpI32Eq) }
func (f *Func) I32Ne()  { f.op(OpI32Ne) }

func (f *Func) I64Eqz() { f.op(OpI64Eqz) }
func (f *Func) I64Eq()  { f.op(OpI64Eq) }
func (f *Func) I64Ne()  { f.op(OpI64Ne) }
func (f *Func) I64LtU() { f.op(OpI64LtU) }
func (f *Func) I64GtU() { f.op(OpI64GtU) }
func (f *Func) I64LeU() { f.op(OpI64LeU) }
func (f *Func) I64GeU() { f.op(OpI64GeU) }

func (f *Func) I32Popcnt() { f.op(OpI32Popcnt) }
func (f *Func) I32Add()    { f.op(OpI32Add) }
func (f *Func) I32Sub()    { f.op(OpI32Sub) }
func (f *Func) I32And()    { f.op(OpI32And) }
func (f *Func) I32Or()     { f.op(OpI32Or) }
func (f *Func) I32Xor()    { f.op(OpI32Xor) }
func (f *Func) I32Shl()    { f.op(OpI32Shl) }
func (f *Func) I32ShrU()   { f.op(OpI32ShrU) }

func (f *Func) I64Add()  { f.op(OpI64Add) }
func (f *Func) I64Sub()  { f.op(OpI64Sub) }
func (f *Func) I64Mul()  { f.op(OpI64Mul) }
func (f *Func) I64And()  { f.op(OpI64And) }
func (f *Func) I64Or()   { f.op(OpI64Or) }
func (f *Func) I64Xor()  { f.op(OpI64Xor) }
func (f *Func) I64Shl()  { f.op(OpI64Shl) }
func (f *Func) I64ShrS() { f.op(OpI64ShrS) }
func (f *Func) I64ShrU() { f.op(OpI64ShrU) }

// Conversions.

func (f *Func) I32WrapI64()    { f.op(OpI32WrapI64) }
func (f *Func) I64ExtendI32S() { f.op(OpI64ExtendI32S) }
func (f *Func) I64ExtendI32U() { f.op(OpI64ExtendI32U) }
