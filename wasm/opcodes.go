package wasm

// ValType is a WebAssembly value type byte.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// BlockTypeEmpty marks a block/if with no result value.
const BlockTypeEmpty byte = 0x40

// Section ids.
const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
)

// Import/export descriptor kinds.
const (
	extKindFunc   = 0x00
	extKindTable  = 0x01
	extKindMemory = 0x02
	extKindGlobal = 0x03
)

// funcTypeForm prefixes every entry in the type section.
const funcTypeForm = 0x60

// Opcodes (the subset Tier-1 emits).
const (
	OpUnreachable = 0x00
	OpNop         = 0x01
	OpBlock       = 0x02
	OpLoop        = 0x03
	OpIf          = 0x04
	OpElse        = 0x05
	OpEnd         = 0x0b
	OpBr          = 0x0c
	OpBrIf        = 0x0d
	OpReturn      = 0x0f
	OpCall        = 0x10

	OpDrop   = 0x1a
	OpSelect = 0x1b

	OpLocalGet = 0x20
	OpLocalSet = 0x21
	OpLocalTee = 0x22

	OpI32Load    = 0x28
	OpI64Load    = 0x29
	OpI64Load8U  = 0x31
	OpI64Load16U = 0x33
	OpI64Load32U = 0x35
	OpI32Store   = 0x36
	OpI64Store   = 0x37
	OpI64Store8  = 0x3c
	OpI64Store16 = 0x3d
	OpI64Store32 = 0x3e

	OpI32Const = 0x41
	OpI64Const = 0x42

	OpI32Eqz = 0x45
	OpI32Eq  = 0x46
	OpI32Ne  = 0x47

	OpI64Eqz = 0x50
	OpI64Eq  = 0x51
	OpI64Ne  = 0x52
	OpI64LtS = 0x53
	OpI64LtU = 0x54
	OpI64GtS = 0x55
	OpI64GtU = 0x56
	OpI64LeS = 0x57
	OpI64LeU = 0x58
	OpI64GeS = 0x59
	OpI64GeU = 0x5a

	OpI32Popcnt = 0x69
	OpI32Add    = 0x6a
	OpI32Sub    = 0x6b
	OpI32And    = 0x71
	OpI32Or     = 0x72
	OpI32Xor    = 0x73
	OpI32Shl    = 0x74
	OpI32ShrU   = 0x76

	OpI64Add  = 0x7c
	OpI64Sub  = 0x7d
	OpI64Mul  = 0x7e
	OpI64And  = 0x83
	OpI64Or   = 0x84
	OpI64Xor  = 0x85
	OpI64Shl  = 0x86
	OpI64ShrS = 0x87
	OpI64ShrU = 0x88

	OpI32WrapI64   = 0xa7
	OpI64ExtendI32S = 0xac
	OpI64ExtendI32U = 0xad
)
