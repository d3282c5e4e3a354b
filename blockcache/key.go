package blockcache

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/wilsonzlin/aerojit/ir"
	"github.com/wilsonzlin/aerojit/tier1"
)

// Key is the BLAKE2b-256 content address of one (block, options) input.
type Key [32]byte

// keyVersion tags the encoding. Bump it whenever the instruction encoding
// or the option set changes meaning, so stale persisted modules miss.
const keyVersion = 1

// KeyOf hashes a deterministic binary encoding of the block and options.
// Equal inputs always produce equal keys across processes.
func KeyOf(b *ir.Block, opts tier1.Options) Key {
	buf := append([]byte("aerojit-t1"), keyVersion)
	buf = appendOptions(buf, opts)
	buf = appendBlock(buf, b)
	return blake2b.Sum256(buf)
}

func appendOptions(buf []byte, o tier1.Options) []byte {
	var flags byte
	if o.InlineTLB {
		flags |= 1 << 0
	}
	if o.InlineTLBStores {
		flags |= 1 << 1
	}
	if o.MMIOExit {
		flags |= 1 << 2
	}
	if o.CrossPageFast {
		flags |= 1 << 3
	}
	if o.MemoryShared {
		flags |= 1 << 4
	}
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, o.MemoryMinPages)
	return binary.LittleEndian.AppendUint32(buf, o.MemoryMaxPages)
}

func appendValue(buf []byte, v ir.ValueID) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(v))
}

func appendReg(buf []byte, r ir.GuestReg) []byte {
	var high8 byte
	if r.High8 {
		high8 = 1
	}
	return append(buf, byte(r.Kind), byte(r.Gpr), byte(r.Width), high8, byte(r.Flag))
}

func appendBlock(buf []byte, b *ir.Block) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, b.Entry)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Insts)))
	for _, inst := range b.Insts {
		switch t := inst.(type) {
		case ir.Const:
			buf = append(buf, 1)
			buf = appendValue(buf, t.Dst)
			buf = append(buf, byte(t.Width))
			buf = binary.LittleEndian.AppendUint64(buf, t.Imm)
		case ir.ReadReg:
			buf = append(buf, 2)
			buf = appendValue(buf, t.Dst)
			buf = appendReg(buf, t.Reg)
		case ir.WriteReg:
			buf = append(buf, 3)
			buf = appendReg(buf, t.Reg)
			buf = appendValue(buf, t.Src)
		case ir.Trunc:
			buf = append(buf, 4)
			buf = appendValue(buf, t.Dst)
			buf = appendValue(buf, t.Src)
			buf = append(buf, byte(t.Width))
		case ir.Load:
			buf = append(buf, 5)
			buf = appendValue(buf, t.Dst)
			buf = append(buf, byte(t.Width))
			buf = appendValue(buf, t.Addr)
		case ir.Store:
			buf = append(buf, 6, byte(t.Width))
			buf = appendValue(buf, t.Addr)
			buf = appendValue(buf, t.Val)
		case ir.BinOp:
			buf = append(buf, 7)
			buf = appendValue(buf, t.Dst)
			buf = append(buf, byte(t.Op), byte(t.Width), byte(t.Flags))
			buf = appendValue(buf, t.LHS)
			buf = appendValue(buf, t.RHS)
		case ir.CmpFlags:
			buf = append(buf, 8, byte(t.Width))
			buf = appendValue(buf, t.LHS)
			buf = appendValue(buf, t.RHS)
		case ir.TestFlags:
			buf = append(buf, 9, byte(t.Width))
			buf = appendValue(buf, t.LHS)
			buf = appendValue(buf, t.RHS)
		case ir.EvalCond:
			buf = append(buf, 10)
			buf = appendValue(buf, t.Dst)
			buf = append(buf, byte(t.Cond))
		case ir.Select:
			buf = append(buf, 11)
			buf = appendValue(buf, t.Dst)
			buf = appendValue(buf, t.Cond)
			buf = appendValue(buf, t.A)
			buf = appendValue(buf, t.B)
		case ir.CallHelper:
			buf = append(buf, 12)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Name)))
			buf = append(buf, t.Name...)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Args)))
			for _, a := range t.Args {
				buf = appendValue(buf, a)
			}
		default:
			panic(fmt.Sprintf("blockcache: unhandled instruction %T", inst))
		}
	}
	switch t := b.Term.(type) {
	case ir.Jump:
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, t.Target)
	case ir.CondJump:
		buf = append(buf, 2)
		buf = appendValue(buf, t.Cond)
		buf = binary.LittleEndian.AppendUint64(buf, t.Target)
		buf = binary.LittleEndian.AppendUint64(buf, t.Fallthrough)
	case ir.IndirectJump:
		buf = append(buf, 3)
		buf = appendValue(buf, t.Value)
	case ir.ExitToInterpreter:
		buf = append(buf, 4)
		buf = binary.LittleEndian.AppendUint64(buf, t.NextRIP)
	default:
		panic(fmt.Sprintf("blockcache: unhandled terminator %T", b.Term))
	}
	return buf
}
