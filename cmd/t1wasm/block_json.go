package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/wilsonzlin/aerojit/ir"
)

// u64 accepts JSON numbers and strings ("0x..." or decimal). Guest
// addresses do not survive float64 round-trips, so files should use the
// string form.
type u64 uint64

func (u *u64) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid u64 %q", s)
		}
		*u = u64(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*u = u64(v)
	return nil
}

// blockJSON is the on-disk form of one decoded block. Value-producing
// instructions are numbered in order of appearance; later operands
// reference those numbers.
type blockJSON struct {
	Entry u64        `json:"entry"`
	Insts []instJSON `json:"insts"`
	Term  *termJSON  `json:"term"`
}

type instJSON struct {
	Op    string          `json:"op"`
	Width int             `json:"width,omitempty"` // bits
	Imm   *u64            `json:"imm,omitempty"`
	Reg   string          `json:"reg,omitempty"` // gpr name, flag name, or "rip"
	High8 bool            `json:"high8,omitempty"`
	Src   *uint32         `json:"src,omitempty"`
	Addr  *uint32         `json:"addr,omitempty"`
	Val   *uint32         `json:"val,omitempty"`
	Kind  string          `json:"kind,omitempty"` // binop kind
	LHS   *uint32         `json:"lhs,omitempty"`
	RHS   *uint32         `json:"rhs,omitempty"`
	Flags json.RawMessage `json:"flags,omitempty"` // "none", "arith", or a name list
	Cond  string          `json:"cond,omitempty"`
	CondV *uint32         `json:"cond_value,omitempty"`
	A     *uint32         `json:"a,omitempty"`
	B     *uint32         `json:"b,omitempty"`
	Name  string          `json:"name,omitempty"`
	Args  []uint32        `json:"args,omitempty"`
}

type termJSON struct {
	Kind        string  `json:"kind"`
	Target      u64     `json:"target,omitempty"`
	Fallthrough u64     `json:"fallthrough,omitempty"`
	Cond        *uint32 `json:"cond,omitempty"`
	Value       *uint32 `json:"value,omitempty"`
	NextRIP     u64     `json:"next_rip,omitempty"`
}

var gprByName = map[string]ir.Gpr{
	"rax": ir.RAX, "rcx": ir.RCX, "rdx": ir.RDX, "rbx": ir.RBX,
	"rsp": ir.RSP, "rbp": ir.RBP, "rsi": ir.RSI, "rdi": ir.RDI,
	"r8": ir.R8, "r9": ir.R9, "r10": ir.R10, "r11": ir.R11,
	"r12": ir.R12, "r13": ir.R13, "r14": ir.R14, "r15": ir.R15,
}

var flagByName = map[string]ir.Flag{
	"cf": ir.CF, "pf": ir.PF, "af": ir.AF, "zf": ir.ZF, "sf": ir.SF, "of": ir.OF,
}

var condByName = map[string]ir.Cond{
	"o": ir.CondO, "no": ir.CondNO, "b": ir.CondB, "ae": ir.CondAE,
	"e": ir.CondE, "ne": ir.CondNE, "be": ir.CondBE, "a": ir.CondA,
	"s": ir.CondS, "ns": ir.CondNS, "p": ir.CondP, "np": ir.CondNP,
	"l": ir.CondL, "ge": ir.CondGE, "le": ir.CondLE, "g": ir.CondG,
}

var binOpByName = map[string]ir.BinOpKind{
	"add": ir.Add, "sub": ir.Sub, "and": ir.And, "or": ir.Or,
	"xor": ir.Xor, "shl": ir.Shl, "shr": ir.Shr, "sar": ir.Sar,
}

// decodeBlock parses one blockJSON document into a validated-shape block.
// Structural validation beyond operand scoping happens in the compiler.
func decodeBlock(r io.Reader) (*ir.Block, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var raw blockJSON
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw.Term == nil {
		return nil, fmt.Errorf("missing terminator")
	}

	b := ir.NewBuilder(uint64(raw.Entry))
	produced := 0
	ref := func(i int, op, field string, v *uint32) (ir.ValueID, error) {
		if v == nil {
			return 0, fmt.Errorf("inst %d (%s): missing %q", i, op, field)
		}
		if int(*v) >= produced {
			return 0, fmt.Errorf("inst %d (%s): %s references undefined value %d", i, op, field, *v)
		}
		return ir.ValueID(*v), nil
	}

	for i, in := range raw.Insts {
		switch in.Op {
		case "const":
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			if in.Imm == nil {
				return nil, fmt.Errorf("inst %d (const): missing \"imm\"", i)
			}
			if uint64(*in.Imm)&^w.Mask() != 0 {
				return nil, fmt.Errorf("inst %d (const): %#x exceeds %s", i, uint64(*in.Imm), w)
			}
			b.ConstInt(w, uint64(*in.Imm))
			produced++
		case "read_reg":
			reg, err := parseReg(i, in)
			if err != nil {
				return nil, err
			}
			b.ReadReg(reg)
			produced++
		case "write_reg":
			reg, err := parseReg(i, in)
			if err != nil {
				return nil, err
			}
			src, err := ref(i, in.Op, "src", in.Src)
			if err != nil {
				return nil, err
			}
			b.WriteReg(reg, src)
		case "trunc":
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			src, err := ref(i, in.Op, "src", in.Src)
			if err != nil {
				return nil, err
			}
			b.Trunc(src, w)
			produced++
		case "load":
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			addr, err := ref(i, in.Op, "addr", in.Addr)
			if err != nil {
				return nil, err
			}
			b.Load(w, addr)
			produced++
		case "store":
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			addr, err := ref(i, in.Op, "addr", in.Addr)
			if err != nil {
				return nil, err
			}
			val, err := ref(i, in.Op, "val", in.Val)
			if err != nil {
				return nil, err
			}
			b.Store(w, addr, val)
		case "binop":
			kind, ok := binOpByName[in.Kind]
			if !ok {
				return nil, fmt.Errorf("inst %d (binop): unknown kind %q", i, in.Kind)
			}
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			lhs, err := ref(i, in.Op, "lhs", in.LHS)
			if err != nil {
				return nil, err
			}
			rhs, err := ref(i, in.Op, "rhs", in.RHS)
			if err != nil {
				return nil, err
			}
			flags, err := parseFlags(i, in.Flags)
			if err != nil {
				return nil, err
			}
			b.BinOp(kind, w, lhs, rhs, flags)
			produced++
		case "cmp", "test":
			w, err := parseWidth(i, in)
			if err != nil {
				return nil, err
			}
			lhs, err := ref(i, in.Op, "lhs", in.LHS)
			if err != nil {
				return nil, err
			}
			rhs, err := ref(i, in.Op, "rhs", in.RHS)
			if err != nil {
				return nil, err
			}
			if in.Op == "cmp" {
				b.Cmp(w, lhs, rhs)
			} else {
				b.Test(w, lhs, rhs)
			}
		case "eval_cond":
			cond, ok := condByName[in.Cond]
			if !ok {
				return nil, fmt.Errorf("inst %d (eval_cond): unknown condition %q", i, in.Cond)
			}
			b.EvalCond(cond)
			produced++
		case "select":
			cond, err := ref(i, in.Op, "cond_value", in.CondV)
			if err != nil {
				return nil, err
			}
			a, err := ref(i, in.Op, "a", in.A)
			if err != nil {
				return nil, err
			}
			c, err := ref(i, in.Op, "b", in.B)
			if err != nil {
				return nil, err
			}
			b.Select(cond, a, c)
			produced++
		case "call_helper":
			if in.Name == "" {
				return nil, fmt.Errorf("inst %d (call_helper): missing \"name\"", i)
			}
			args := make([]ir.ValueID, len(in.Args))
			for j, a := range in.Args {
				if int(a) >= produced {
					return nil, fmt.Errorf("inst %d (call_helper): arg %d references undefined value %d", i, j, a)
				}
				args[j] = ir.ValueID(a)
			}
			b.CallHelper(in.Name, args...)
		default:
			return nil, fmt.Errorf("inst %d: unknown op %q", i, in.Op)
		}
	}

	term, err := parseTerm(raw.Term, produced)
	if err != nil {
		return nil, err
	}
	return b.Finish(term), nil
}

func parseWidth(i int, in instJSON) (ir.Width, error) {
	switch in.Width {
	case 8:
		return ir.W8, nil
	case 16:
		return ir.W16, nil
	case 32:
		return ir.W32, nil
	case 64:
		return ir.W64, nil
	case 0:
		return 0, fmt.Errorf("inst %d (%s): missing \"width\"", i, in.Op)
	}
	return 0, fmt.Errorf("inst %d (%s): invalid width %d (want 8, 16, 32 or 64)", i, in.Op, in.Width)
}

func parseReg(i int, in instJSON) (ir.GuestReg, error) {
	switch {
	case in.Reg == "":
		return ir.GuestReg{}, fmt.Errorf("inst %d (%s): missing \"reg\"", i, in.Op)
	case in.Reg == "rip":
		return ir.RIPReg(), nil
	}
	if f, ok := flagByName[in.Reg]; ok {
		return ir.FlagReg(f), nil
	}
	g, ok := gprByName[in.Reg]
	if !ok {
		return ir.GuestReg{}, fmt.Errorf("inst %d (%s): unknown register %q", i, in.Op, in.Reg)
	}
	if in.High8 {
		if g > ir.RBX {
			return ir.GuestReg{}, fmt.Errorf("inst %d (%s): %s has no high-byte alias", i, in.Op, in.Reg)
		}
		return ir.High8Reg(g), nil
	}
	w, err := parseWidth(i, in)
	if err != nil {
		return ir.GuestReg{}, err
	}
	return ir.GprReg(g, w), nil
}

func parseFlags(i int, raw json.RawMessage) (ir.FlagSet, error) {
	if len(raw) == 0 {
		return ir.FlagSetNone, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "none":
			return ir.FlagSetNone, nil
		case "arith":
			return ir.FlagSetArith, nil
		}
		return 0, fmt.Errorf("inst %d: unknown flag set %q", i, s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return 0, fmt.Errorf(`inst %d: flags must be "none", "arith", or a list of flag names`, i)
	}
	var set ir.FlagSet
	for _, name := range list {
		f, ok := flagByName[name]
		if !ok {
			return 0, fmt.Errorf("inst %d: unknown flag %q", i, name)
		}
		set |= 1 << f
	}
	return set, nil
}

func parseTerm(t *termJSON, produced int) (ir.Terminator, error) {
	ref := func(field string, v *uint32) (ir.ValueID, error) {
		if v == nil {
			return 0, fmt.Errorf("terminator (%s): missing %q", t.Kind, field)
		}
		if int(*v) >= produced {
			return 0, fmt.Errorf("terminator (%s): %s references undefined value %d", t.Kind, field, *v)
		}
		return ir.ValueID(*v), nil
	}
	switch t.Kind {
	case "jump":
		return ir.Jump{Target: uint64(t.Target)}, nil
	case "cond_jump":
		cond, err := ref("cond", t.Cond)
		if err != nil {
			return nil, err
		}
		return ir.CondJump{Cond: cond, Target: uint64(t.Target), Fallthrough: uint64(t.Fallthrough)}, nil
	case "indirect_jump":
		v, err := ref("value", t.Value)
		if err != nil {
			return nil, err
		}
		return ir.IndirectJump{Value: v}, nil
	case "exit":
		return ir.ExitToInterpreter{NextRIP: uint64(t.NextRIP)}, nil
	}
	return nil, fmt.Errorf("unknown terminator kind %q", t.Kind)
}
