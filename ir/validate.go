package ir

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("ir: invalid block")

// Validate checks structural well-formedness: dense value ids consistent
// with the width table, def-before-use, register encodings, and operand
// width agreement. Instructions after a CallHelper are unreachable but are
// still checked.
func (b *Block) Validate() error {
	if b.Term == nil {
		return fmt.Errorf("%w: missing terminator", ErrInvalid)
	}

	defined := 0

	use := func(i int, v ValueID) error {
		if int(v) >= defined {
			return fmt.Errorf("%w: inst %d uses undefined value v%d", ErrInvalid, i, v)
		}
		return nil
	}
	useW := func(i int, v ValueID, w Width) error {
		if err := use(i, v); err != nil {
			return err
		}
		if b.widths[v] != w {
			return fmt.Errorf("%w: inst %d operand v%d is %s, want %s", ErrInvalid, i, v, b.widths[v], w)
		}
		return nil
	}
	def := func(i int, v ValueID, w Width) error {
		if int(v) != defined {
			return fmt.Errorf("%w: inst %d defines v%d out of order (want v%d)", ErrInvalid, i, v, defined)
		}
		if int(v) >= len(b.widths) {
			return fmt.Errorf("%w: inst %d defines v%d beyond width table", ErrInvalid, i, v)
		}
		if b.widths[v] != w {
			return fmt.Errorf("%w: inst %d width table has %s for v%d, want %s", ErrInvalid, i, b.widths[v], v, w)
		}
		defined++
		return nil
	}
	checkReg := func(i int, r GuestReg) error {
		switch r.Kind {
		case RegGpr:
			if r.Gpr >= GprCount {
				return fmt.Errorf("%w: inst %d bad gpr %d", ErrInvalid, i, r.Gpr)
			}
			if !r.Width.valid() {
				return fmt.Errorf("%w: inst %d bad gpr width %d", ErrInvalid, i, r.Width)
			}
			if r.High8 && (r.Width != W8 || r.Gpr > RBX) {
				return fmt.Errorf("%w: inst %d invalid high-byte alias of %s", ErrInvalid, i, r.Gpr)
			}
		case RegFlag:
			if r.Flag >= FlagCount {
				return fmt.Errorf("%w: inst %d bad flag %d", ErrInvalid, i, r.Flag)
			}
		case RegRIP:
		default:
			return fmt.Errorf("%w: inst %d bad register kind %d", ErrInvalid, i, r.Kind)
		}
		return nil
	}

	for i, inst := range b.Insts {
		var err error
		switch t := inst.(type) {
		case Const:
			if !t.Width.valid() {
				err = fmt.Errorf("%w: inst %d bad const width", ErrInvalid, i)
				break
			}
			if t.Imm&^t.Width.Mask() != 0 {
				err = fmt.Errorf("%w: inst %d const exceeds %s", ErrInvalid, i, t.Width)
				break
			}
			err = def(i, t.Dst, t.Width)
		case ReadReg:
			if err = checkReg(i, t.Reg); err == nil {
				err = def(i, t.Dst, t.Reg.valueWidth())
			}
		case WriteReg:
			if err = checkReg(i, t.Reg); err != nil {
				break
			}
			if t.Reg.Kind == RegFlag {
				err = use(i, t.Src) // any width; nonzero means set
			} else {
				err = useW(i, t.Src, t.Reg.valueWidth())
			}
		case Trunc:
			if !t.Width.valid() {
				err = fmt.Errorf("%w: inst %d bad trunc width", ErrInvalid, i)
				break
			}
			if err = use(i, t.Src); err != nil {
				break
			}
			if t.Width > b.widths[t.Src] {
				err = fmt.Errorf("%w: inst %d trunc widens %s to %s", ErrInvalid, i, b.widths[t.Src], t.Width)
				break
			}
			err = def(i, t.Dst, t.Width)
		case Load:
			if !t.Width.valid() {
				err = fmt.Errorf("%w: inst %d bad load width", ErrInvalid, i)
				break
			}
			if err = useW(i, t.Addr, W64); err != nil {
				break
			}
			err = def(i, t.Dst, t.Width)
		case Store:
			if !t.Width.valid() {
				err = fmt.Errorf("%w: inst %d bad store width", ErrInvalid, i)
				break
			}
			if err = useW(i, t.Addr, W64); err != nil {
				break
			}
			err = useW(i, t.Val, t.Width)
		case BinOp:
			if !t.Width.valid() {
				err = fmt.Errorf("%w: inst %d bad binop width", ErrInvalid, i)
				break
			}
			if int(t.Op) >= len(binOpNames) {
				err = fmt.Errorf("%w: inst %d bad binop kind %d", ErrInvalid, i, t.Op)
				break
			}
			if err = useW(i, t.LHS, t.Width); err != nil {
				break
			}
			if err = useW(i, t.RHS, t.Width); err != nil {
				break
			}
			err = def(i, t.Dst, t.Width)
		case CmpFlags:
			if err = useW(i, t.LHS, t.Width); err != nil {
				break
			}
			err = useW(i, t.RHS, t.Width)
		case TestFlags:
			if err = useW(i, t.LHS, t.Width); err != nil {
				break
			}
			err = useW(i, t.RHS, t.Width)
		case EvalCond:
			if t.Cond >= CondCount {
				err = fmt.Errorf("%w: inst %d bad condition %d", ErrInvalid, i, t.Cond)
				break
			}
			err = def(i, t.Dst, W8)
		case Select:
			if err = use(i, t.Cond); err != nil {
				break
			}
			if err = use(i, t.A); err != nil {
				break
			}
			if err = use(i, t.B); err != nil {
				break
			}
			if b.widths[t.A] != b.widths[t.B] {
				err = fmt.Errorf("%w: inst %d select arms differ: %s vs %s", ErrInvalid, i, b.widths[t.A], b.widths[t.B])
				break
			}
			err = def(i, t.Dst, b.widths[t.A])
		case CallHelper:
			for _, a := range t.Args {
				if err = use(i, a); err != nil {
					break
				}
			}
		default:
			err = fmt.Errorf("%w: inst %d has unknown type %T", ErrInvalid, i, inst)
		}
		if err != nil {
			return err
		}
	}

	if defined != len(b.widths) {
		return fmt.Errorf("%w: width table has %d entries, block defines %d", ErrInvalid, len(b.widths), defined)
	}

	switch t := b.Term.(type) {
	case Jump, ExitToInterpreter:
	case CondJump:
		if err := use(len(b.Insts), t.Cond); err != nil {
			return err
		}
	case IndirectJump:
		if err := useW(len(b.Insts), t.Value, W64); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown terminator type %T", ErrInvalid, b.Term)
	}
	return nil
}
