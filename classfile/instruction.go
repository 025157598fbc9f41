package classfile

import (
	"fmt"

	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Instruction represents a decoded JVM instruction.
type Instruction struct {
	Imm    interface{}
	Offset int // byte offset within the method's code array
	Opcode byte
}

// BranchImm holds the relative jump of if*, goto, jsr, goto_w and jsr_w.
type BranchImm struct {
	Delta int32
}

// TableSwitchImm holds the jump table of tableswitch. Offsets are relative
// to the instruction and Offsets[i] is taken for key Low+i.
type TableSwitchImm struct {
	Offsets []int32
	Default int32
	Low     int32
	High    int32
}

// LookupSwitchImm holds the match-offset pairs of lookupswitch.
type LookupSwitchImm struct {
	Keys    []int32
	Offsets []int32
	Default int32
}

// ConstImm holds a constant pool reference. Extra carries the trailing
// operand bytes of invokeinterface, invokedynamic and multianewarray.
type ConstImm struct {
	Extra []byte
	Index uint16
}

// RawImm holds operands the rewriter never interprets: local indices,
// immediates, newarray types and the whole tail of a wide instruction.
type RawImm struct {
	Bytes []byte
}

const (
	operandsVariable = -1
	operandsInvalid  = -2
)

// operandLength returns the fixed operand size of op.
func operandLength(op byte) int {
	switch {
	case op >= OpIload && op <= OpAload,
		op >= OpIstore && op <= OpAstore,
		op == OpBipush, op == OpLdc, op == OpRet, op == OpNewarray:
		return 1
	case op == OpSipush, op == OpLdcW, op == OpLdc2W, op == OpIinc,
		op >= OpIfeq && op <= OpJsr,
		op >= OpGetstatic && op <= OpInvokestatic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof,
		op == OpIfnull, op == OpIfnonnull:
		return 2
	case op == OpMultianewarray:
		return 3
	case op == OpInvokeinterface, op == OpInvokedynamic, op == OpGotoW, op == OpJsrW:
		return 4
	case op == OpTableswitch, op == OpLookupswitch, op == OpWide:
		return operandsVariable
	case op > OpJsrW:
		return operandsInvalid
	default:
		return 0
	}
}

// IsBranch reports whether op carries a single relative jump.
func IsBranch(op byte) bool {
	return op >= OpIfeq && op <= OpJsr || op == OpIfnull || op == OpIfnonnull || IsWideBranch(op)
}

// IsWideBranch reports whether op carries a 32-bit relative jump.
func IsWideBranch(op byte) bool {
	return op == OpGotoW || op == OpJsrW
}

// IsSwitch reports whether op is tableswitch or lookupswitch.
func IsSwitch(op byte) bool {
	return op == OpTableswitch || op == OpLookupswitch
}

// OpcodeName returns the mnemonic of op.
func OpcodeName(op byte) string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("invalid_0x%02x", op)
}

// switchPadding returns the number of alignment bytes after a switch opcode at offset.
func switchPadding(offset int) int {
	return 3 - offset%4
}

// Size returns the encoded size of the instruction at its Offset.
func (i Instruction) Size() int {
	switch imm := i.Imm.(type) {
	case TableSwitchImm:
		return 1 + switchPadding(i.Offset) + 12 + 4*len(imm.Offsets)
	case LookupSwitchImm:
		return 1 + switchPadding(i.Offset) + 8 + 8*len(imm.Keys)
	}
	if i.Opcode == OpWide {
		if raw, ok := i.Imm.(RawImm); ok {
			return 1 + len(raw.Bytes)
		}
	}
	if n := operandLength(i.Opcode); n > 0 {
		return 1 + n
	}
	return 1
}

// DecodeInstructions decodes a method's code array.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	// Pre-allocate based on estimation: roughly 2 bytes per instruction on average
	instrs := make([]Instruction, 0, len(code)/2)

	for r.Len() > 0 {
		offset := r.Position()
		op, _ := r.ReadByte()
		instr, err := decodeOperands(r, op, offset)
		if err != nil {
			return nil, r.WrapError(fmt.Sprintf("%s at offset %d", OpcodeName(op), offset), err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeOperands(r *binary.Reader, op byte, offset int) (Instruction, error) {
	instr := Instruction{Opcode: op, Offset: offset}

	switch {
	case operandLength(op) == operandsInvalid:
		return instr, fmt.Errorf("invalid opcode 0x%02x", op)

	case op == OpTableswitch:
		if err := r.Skip(switchPadding(offset)); err != nil {
			return instr, err
		}
		var imm TableSwitchImm
		var err error
		if imm.Default, err = r.ReadS32(); err != nil {
			return instr, err
		}
		if imm.Low, err = r.ReadS32(); err != nil {
			return instr, err
		}
		if imm.High, err = r.ReadS32(); err != nil {
			return instr, err
		}
		if imm.High < imm.Low {
			return instr, fmt.Errorf("tableswitch high %d below low %d", imm.High, imm.Low)
		}
		n := int64(imm.High) - int64(imm.Low) + 1
		if n*4 > int64(r.Len()) {
			return instr, binary.ErrTruncated
		}
		imm.Offsets = make([]int32, n)
		for i := range imm.Offsets {
			if imm.Offsets[i], err = r.ReadS32(); err != nil {
				return instr, err
			}
		}
		instr.Imm = imm

	case op == OpLookupswitch:
		if err := r.Skip(switchPadding(offset)); err != nil {
			return instr, err
		}
		var imm LookupSwitchImm
		var err error
		if imm.Default, err = r.ReadS32(); err != nil {
			return instr, err
		}
		n, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		if n < 0 || int64(n)*8 > int64(r.Len()) {
			return instr, fmt.Errorf("lookupswitch npairs %d exceeds code length", n)
		}
		imm.Keys = make([]int32, n)
		imm.Offsets = make([]int32, n)
		for i := 0; i < int(n); i++ {
			if imm.Keys[i], err = r.ReadS32(); err != nil {
				return instr, err
			}
			if imm.Offsets[i], err = r.ReadS32(); err != nil {
				return instr, err
			}
		}
		instr.Imm = imm

	case op == OpWide:
		sub, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		n := 2
		switch {
		case sub == OpIinc:
			n = 4
		case sub >= OpIload && sub <= OpAload, sub >= OpIstore && sub <= OpAstore, sub == OpRet:
		default:
			return instr, fmt.Errorf("wide cannot modify %s", OpcodeName(sub))
		}
		rest, err := r.ReadBytes(n)
		if err != nil {
			return instr, err
		}
		instr.Imm = RawImm{Bytes: append([]byte{sub}, rest...)}

	case IsWideBranch(op):
		d, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{Delta: d}

	case IsBranch(op):
		d, err := r.ReadS16()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{Delta: int32(d)}

	case op == OpLdc:
		idx, err := r.ReadU8()
		if err != nil {
			return instr, err
		}
		instr.Imm = ConstImm{Index: uint16(idx)}

	case op == OpLdcW, op == OpLdc2W, op >= OpGetstatic && op <= OpInvokedynamic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof, op == OpMultianewarray:
		idx, err := r.ReadU16()
		if err != nil {
			return instr, err
		}
		imm := ConstImm{Index: idx}
		if extra := operandLength(op) - 2; extra > 0 {
			if imm.Extra, err = r.ReadBytes(extra); err != nil {
				return instr, err
			}
		}
		instr.Imm = imm

	default:
		if n := operandLength(op); n > 0 {
			raw, err := r.ReadBytes(n)
			if err != nil {
				return instr, err
			}
			instr.Imm = RawImm{Bytes: raw}
		}
	}
	return instr, nil
}

// EncodeInstructions encodes instructions back to a code array.
//
// Each instruction is encoded at its position in the output; the Offset
// field is ignored. Branch and switch deltas are written as given and must
// fit their encoding.
func EncodeInstructions(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	for _, instr := range instrs {
		if err := encodeInstruction(w, instr); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func encodeInstruction(w *binary.Writer, instr Instruction) error {
	offset := w.Len()
	w.Byte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case nil:
		if n := operandLength(instr.Opcode); n != 0 {
			return errors.New(errors.PhaseEncode, errors.KindMalformed).
				Detail("%s at offset %d is missing its operands", OpcodeName(instr.Opcode), offset).
				Build()
		}

	case BranchImm:
		if IsWideBranch(instr.Opcode) {
			w.WriteS32(imm.Delta)
			break
		}
		if imm.Delta < -32768 || imm.Delta > 32767 {
			return errors.Overflow(errors.PhaseEncode, []string{OpcodeName(instr.Opcode)}, imm.Delta, "int16 branch offset")
		}
		w.WriteS16(int16(imm.Delta))

	case TableSwitchImm:
		w.Pad(switchPadding(offset))
		w.WriteS32(imm.Default)
		w.WriteS32(imm.Low)
		w.WriteS32(imm.High)
		for _, o := range imm.Offsets {
			w.WriteS32(o)
		}

	case LookupSwitchImm:
		w.Pad(switchPadding(offset))
		w.WriteS32(imm.Default)
		w.WriteS32(int32(len(imm.Keys)))
		for i := range imm.Keys {
			w.WriteS32(imm.Keys[i])
			w.WriteS32(imm.Offsets[i])
		}

	case ConstImm:
		if instr.Opcode == OpLdc {
			if imm.Index > 0xFF {
				return errors.Overflow(errors.PhaseEncode, []string{"ldc"}, imm.Index, "uint8 constant index")
			}
			w.Byte(byte(imm.Index))
			break
		}
		w.WriteU16(imm.Index)
		w.WriteBytes(imm.Extra)

	case RawImm:
		w.WriteBytes(imm.Bytes)

	default:
		return errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("immediate %T", imm))
	}
	return nil
}
