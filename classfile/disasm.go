package classfile

import (
	"fmt"
	"strings"
)

// Disassemble renders a code array in a javap-like listing. pool may be nil,
// in which case constant operands are shown by index only.
func Disassemble(bytecode []byte, pool *ConstantPool) (string, error) {
	instrs, err := DecodeInstructions(bytecode)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, instr := range instrs {
		b.WriteString(FormatInstruction(instr, pool))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// FormatInstruction renders a single instruction with its offset.
func FormatInstruction(instr Instruction, pool *ConstantPool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%5d: %s", instr.Offset, OpcodeName(instr.Opcode))

	switch imm := instr.Imm.(type) {
	case BranchImm:
		fmt.Fprintf(&b, " %d", instr.Offset+int(imm.Delta))
	case TableSwitchImm:
		fmt.Fprintf(&b, " { // %d to %d", imm.Low, imm.High)
		for i, o := range imm.Offsets {
			fmt.Fprintf(&b, "\n%12d: %d", int(imm.Low)+i, instr.Offset+int(o))
		}
		fmt.Fprintf(&b, "\n%12s: %d\n       }", "default", instr.Offset+int(imm.Default))
	case LookupSwitchImm:
		fmt.Fprintf(&b, " { // %d", len(imm.Keys))
		for i, k := range imm.Keys {
			fmt.Fprintf(&b, "\n%12d: %d", k, instr.Offset+int(imm.Offsets[i]))
		}
		fmt.Fprintf(&b, "\n%12s: %d\n       }", "default", instr.Offset+int(imm.Default))
	case ConstImm:
		fmt.Fprintf(&b, " #%d", imm.Index)
		if desc := describeConstant(pool, imm.Index); desc != "" {
			b.WriteString(" // ")
			b.WriteString(desc)
		}
	case RawImm:
		if instr.Opcode == OpWide && len(imm.Bytes) > 0 {
			fmt.Fprintf(&b, " %s", OpcodeName(imm.Bytes[0]))
			imm.Bytes = imm.Bytes[1:]
		}
		for _, v := range imm.Bytes {
			fmt.Fprintf(&b, " %d", v)
		}
	}
	return b.String()
}

func describeConstant(pool *ConstantPool, idx uint16) string {
	if pool == nil {
		return ""
	}
	c, err := pool.Get(idx)
	if err != nil {
		return ""
	}
	switch c.Tag {
	case TagClass:
		name, err := pool.ClassName(idx)
		if err != nil {
			return ""
		}
		return "class " + name
	case TagString:
		s, err := pool.Utf8(uint16(c.Raw[0])<<8 | uint16(c.Raw[1]))
		if err != nil {
			return ""
		}
		return fmt.Sprintf("String %q", s)
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		owner, err := pool.ClassName(uint16(c.Raw[0])<<8 | uint16(c.Raw[1]))
		if err != nil {
			return ""
		}
		return owner + "." + describeNameAndType(pool, uint16(c.Raw[2])<<8|uint16(c.Raw[3]))
	}
	return ""
}

func describeNameAndType(pool *ConstantPool, idx uint16) string {
	c, err := pool.Get(idx)
	if err != nil || c.Tag != TagNameAndType {
		return "?"
	}
	name, _ := pool.Utf8(uint16(c.Raw[0])<<8 | uint16(c.Raw[1]))
	desc, _ := pool.Utf8(uint16(c.Raw[2])<<8 | uint16(c.Raw[3]))
	return name + ":" + desc
}
