package il

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
)

// Instruction is one decoded CIL instruction.
type Instruction struct {
	Imm    any
	Offset uint32
	Opcode Opcode
}

// VarImm holds the argument or local index of ldarg, starg, ldloc and stloc forms.
type VarImm struct {
	Index uint16
}

// I32Imm holds a 32-bit integer operand. Short forms are sign-extended,
// except for the unaligned. and no. prefixes whose byte is unsigned.
type I32Imm struct {
	Value int32
}

// I64Imm holds the operand of ldc.i8.
type I64Imm struct {
	Value int64
}

// F32Imm holds the operand of ldc.r4.
type F32Imm struct {
	Value float32
}

// F64Imm holds the operand of ldc.r8.
type F64Imm struct {
	Value float64
}

// BranchImm holds an absolute branch target offset.
type BranchImm struct {
	Target uint32
}

// SwitchImm holds the absolute targets of a switch.
type SwitchImm struct {
	Targets []uint32
}

// TokenImm holds a metadata token operand: a method, field, type, signature
// or user string.
type TokenImm struct {
	Token image.Token
}

// Size returns the encoded size of the instruction.
func (i Instruction) Size() int {
	n := i.Opcode.Size() + operandSizes[i.Opcode.Operand()]
	if s, ok := i.Imm.(SwitchImm); ok {
		n += 4 * len(s.Targets)
	}
	return n
}

// Token returns the token operand, if any.
func (i Instruction) Token() (image.Token, bool) {
	t, ok := i.Imm.(TokenImm)
	return t.Token, ok
}

// IsBranch reports whether the instruction transfers control to a target offset.
func (i Instruction) IsBranch() bool {
	switch i.Opcode.Operand() {
	case ShortInlineBrTarget, InlineBrTarget, InlineSwitch:
		return true
	}
	return false
}

func (i Instruction) String() string {
	head := fmt.Sprintf("IL_%04x: %s", i.Offset, i.Opcode)
	switch v := i.Imm.(type) {
	case nil:
		return head
	case VarImm:
		return head + " " + strconv.Itoa(int(v.Index))
	case I32Imm:
		return head + " " + strconv.Itoa(int(v.Value))
	case I64Imm:
		return head + " " + strconv.FormatInt(v.Value, 10)
	case F32Imm:
		return head + " " + strconv.FormatFloat(float64(v.Value), 'g', -1, 32)
	case F64Imm:
		return head + " " + strconv.FormatFloat(v.Value, 'g', -1, 64)
	case BranchImm:
		return fmt.Sprintf("%s IL_%04x", head, v.Target)
	case SwitchImm:
		labels := make([]string, len(v.Targets))
		for j, t := range v.Targets {
			labels[j] = fmt.Sprintf("IL_%04x", t)
		}
		return head + " (" + strings.Join(labels, ", ") + ")"
	case TokenImm:
		return head + " " + v.Token.String()
	}
	return head
}

// Decode decodes a method's IL stream. On malformed input it returns the
// instructions decoded so far together with the error.
func Decode(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Len() > 0 {
		offset := uint32(r.Position())
		b, _ := r.ReadByte()
		op := Opcode(b)
		if b == Prefix {
			second, err := r.ReadByte()
			if err != nil {
				return instrs, errors.Truncated(errors.PhaseBody, []string{"IL", fmt.Sprintf("IL_%04x", offset)}, 2, 1)
			}
			op = Opcode(uint16(Prefix)<<8 | uint16(second))
		}
		if !op.Valid() {
			return instrs, errors.InvalidData(errors.PhaseBody, []string{"IL", fmt.Sprintf("IL_%04x", offset)},
				fmt.Sprintf("unknown opcode 0x%X", uint16(op)))
		}

		instr := Instruction{Offset: offset, Opcode: op}
		imm, err := decodeOperand(r, op)
		if err != nil {
			return instrs, errors.New(errors.PhaseBody, errors.KindTruncated).
				Path("IL", fmt.Sprintf("IL_%04x", offset)).
				Detail("operand of %s", op).
				Cause(err).
				Build()
		}
		instr.Imm = imm
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeOperand(r *binary.Reader, op Opcode) (any, error) {
	switch op.Operand() {
	case InlineNone:
		return nil, nil
	case ShortInlineVar:
		b, err := r.ReadByte()
		return VarImm{Index: uint16(b)}, err
	case InlineVar:
		v, err := r.ReadU16()
		return VarImm{Index: v}, err
	case ShortInlineI:
		b, err := r.ReadByte()
		if op == OpUnaligned || op == OpNo {
			return I32Imm{Value: int32(b)}, err
		}
		return I32Imm{Value: int32(int8(b))}, err
	case InlineI:
		v, err := r.ReadU32()
		return I32Imm{Value: int32(v)}, err
	case InlineI8:
		v, err := r.ReadU64()
		return I64Imm{Value: int64(v)}, err
	case ShortInlineR:
		v, err := r.ReadF32()
		return F32Imm{Value: v}, err
	case InlineR:
		v, err := r.ReadF64()
		return F64Imm{Value: v}, err
	case ShortInlineBrTarget:
		b, err := r.ReadByte()
		return BranchImm{Target: uint32(int32(r.Position()) + int32(int8(b)))}, err
	case InlineBrTarget:
		v, err := r.ReadU32()
		return BranchImm{Target: uint32(int32(r.Position()) + int32(v))}, err
	case InlineSwitch:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if uint64(n)*4 > uint64(r.Len()) {
			return nil, errors.Truncated(errors.PhaseBody, []string{"IL", "switch"}, int(n)*4, r.Len())
		}
		base := int32(r.Position()) + int32(n)*4
		targets := make([]uint32, n)
		for i := range targets {
			d, _ := r.ReadU32()
			targets[i] = uint32(base + int32(d))
		}
		return SwitchImm{Targets: targets}, nil
	}
	v, err := r.ReadU32()
	return TokenImm{Token: image.Token(v)}, err
}

// Encode writes instructions back to an IL stream. Offsets are taken from the
// encoding order; branch targets must be absolute offsets of that layout.
func Encode(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	for _, in := range instrs {
		if !in.Opcode.Valid() {
			return nil, errors.InvalidInput(errors.PhaseEncode, "unknown opcode "+in.Opcode.String())
		}
		if in.Opcode > 0xFF {
			w.Byte(Prefix)
		}
		w.Byte(byte(in.Opcode))
		end := int32(w.Len() + operandSizes[in.Opcode.Operand()])
		if err := encodeOperand(w, in, end); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func encodeOperand(w *binary.Writer, in Instruction, end int32) error {
	bad := func() error {
		return errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("operand %T does not fit %s", in.Imm, in.Opcode))
	}
	switch in.Opcode.Operand() {
	case InlineNone:
		return nil
	case ShortInlineVar, InlineVar:
		v, ok := in.Imm.(VarImm)
		if !ok {
			return bad()
		}
		if in.Opcode.Operand() == ShortInlineVar {
			w.Byte(byte(v.Index))
		} else {
			w.WriteU16(v.Index)
		}
	case ShortInlineI, InlineI:
		v, ok := in.Imm.(I32Imm)
		if !ok {
			return bad()
		}
		if in.Opcode.Operand() == ShortInlineI {
			w.Byte(byte(v.Value))
		} else {
			w.WriteU32(uint32(v.Value))
		}
	case InlineI8:
		v, ok := in.Imm.(I64Imm)
		if !ok {
			return bad()
		}
		w.WriteU64(uint64(v.Value))
	case ShortInlineR:
		v, ok := in.Imm.(F32Imm)
		if !ok {
			return bad()
		}
		w.WriteF32(v.Value)
	case InlineR:
		v, ok := in.Imm.(F64Imm)
		if !ok {
			return bad()
		}
		w.WriteF64(v.Value)
	case ShortInlineBrTarget:
		v, ok := in.Imm.(BranchImm)
		if !ok {
			return bad()
		}
		w.Byte(byte(int8(int32(v.Target) - end)))
	case InlineBrTarget:
		v, ok := in.Imm.(BranchImm)
		if !ok {
			return bad()
		}
		w.WriteU32(uint32(int32(v.Target) - end))
	case InlineSwitch:
		v, ok := in.Imm.(SwitchImm)
		if !ok {
			return bad()
		}
		w.WriteU32(uint32(len(v.Targets)))
		base := end + int32(4*len(v.Targets))
		for _, t := range v.Targets {
			w.WriteU32(uint32(int32(t) - base))
		}
	default:
		v, ok := in.Imm.(TokenImm)
		if !ok {
			return bad()
		}
		w.WriteU32(uint32(v.Token))
	}
	return nil
}
