// Package classtest assembles small class files for tests.
package classtest

import (
	"github.com/slarse/duplicate-checkcast-remover/classfile"
)

// Method describes a method to add to a class. A nil Code produces a method
// without a Code attribute.
type Method struct {
	Name       string
	Descriptor string
	Code       []byte
	Handlers   []classfile.ExceptionHandler
	Lines      []classfile.LineNumber
	Locals     []classfile.LocalVariable
	LocalTypes []classfile.LocalVariable
	Frames     []classfile.StackMapFrame
	CodeAttrs  []Attr
	Access     uint16
	MaxStack   uint16
	MaxLocals  uint16
}

// Attr is a Code sub-attribute passed through verbatim.
type Attr struct {
	Name string
	Info []byte
}

// Builder accumulates a constant pool and methods.
type Builder struct {
	entries []classfile.Constant
	utf8    map[string]uint16
	classes map[string]uint16
	methods []classfile.Member
	this    uint16
	super   uint16
}

// New starts a class named name (binary form, e.g. "com/example/Foo")
// extending java/lang/Object.
func New(name string) *Builder {
	b := &Builder{
		utf8:    make(map[string]uint16),
		classes: make(map[string]uint16),
	}
	b.this = b.Class(name)
	b.super = b.Class("java/lang/Object")
	return b
}

// Utf8 interns a Utf8 constant and returns its index.
func (b *Builder) Utf8(s string) uint16 {
	if idx, ok := b.utf8[s]; ok {
		return idx
	}
	b.entries = append(b.entries, classfile.Utf8Constant(s))
	idx := uint16(len(b.entries))
	b.utf8[s] = idx
	return idx
}

// Class interns a Class constant and returns its index.
func (b *Builder) Class(name string) uint16 {
	if idx, ok := b.classes[name]; ok {
		return idx
	}
	nameIdx := b.Utf8(name)
	b.entries = append(b.entries, classfile.ClassConstant(nameIdx))
	idx := uint16(len(b.entries))
	b.classes[name] = idx
	return idx
}

// Method adds a method.
func (b *Builder) Method(m Method) *Builder {
	if m.Descriptor == "" {
		m.Descriptor = "(Ljava/lang/Object;)Ljava/lang/Object;"
	}
	if m.MaxStack == 0 {
		m.MaxStack = 2
	}
	if m.MaxLocals == 0 {
		m.MaxLocals = 2
	}
	member := classfile.Member{
		AccessFlags:     m.Access,
		NameIndex:       b.Utf8(m.Name),
		DescriptorIndex: b.Utf8(m.Descriptor),
	}
	if m.Code != nil {
		code := &classfile.Code{
			MaxStack:  m.MaxStack,
			MaxLocals: m.MaxLocals,
			Bytecode:  m.Code,
			Handlers:  m.Handlers,
		}
		if m.Lines != nil {
			code.Attributes = append(code.Attributes, classfile.Attribute{
				NameIndex: b.Utf8(classfile.AttrLineNumberTable),
				Info:      classfile.EncodeLineNumbers(m.Lines),
			})
		}
		if m.Locals != nil {
			code.Attributes = append(code.Attributes, classfile.Attribute{
				NameIndex: b.Utf8(classfile.AttrLocalVariableTable),
				Info:      classfile.EncodeLocalVariables(m.Locals),
			})
		}
		if m.LocalTypes != nil {
			code.Attributes = append(code.Attributes, classfile.Attribute{
				NameIndex: b.Utf8(classfile.AttrLocalVariableTypeTable),
				Info:      classfile.EncodeLocalVariables(m.LocalTypes),
			})
		}
		if m.Frames != nil {
			info, err := classfile.EncodeStackMap(m.Frames)
			if err != nil {
				panic(err)
			}
			code.Attributes = append(code.Attributes, classfile.Attribute{
				NameIndex: b.Utf8(classfile.AttrStackMapTable),
				Info:      info,
			})
		}
		for _, a := range m.CodeAttrs {
			code.Attributes = append(code.Attributes, classfile.Attribute{
				NameIndex: b.Utf8(a.Name),
				Info:      a.Info,
			})
		}
		member.Attributes = []classfile.Attribute{{
			NameIndex: b.Utf8(classfile.AttrCode),
			Info:      code.Encode(),
		}}
	}
	b.methods = append(b.methods, member)
	return b
}

// Build returns the parsed form of the class.
func (b *Builder) Build() *classfile.Class {
	return &classfile.Class{
		Pool:         classfile.NewConstantPool(b.entries...),
		MajorVersion: 52,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    b.this,
		SuperClass:   b.super,
		Methods:      append([]classfile.Member(nil), b.methods...),
	}
}

// Bytes returns the encoded class file.
func (b *Builder) Bytes() []byte {
	return b.Build().Encode()
}

// Asm is a minimal bytecode assembler.
type Asm struct {
	buf []byte
}

// Op appends an opcode with raw operand bytes.
func (a *Asm) Op(op byte, operands ...byte) *Asm {
	a.buf = append(a.buf, op)
	a.buf = append(a.buf, operands...)
	return a
}

// U16 appends an opcode with a two-byte operand, e.g. checkcast #idx.
func (a *Asm) U16(op byte, v uint16) *Asm {
	return a.Op(op, byte(v>>8), byte(v))
}

// Branch appends a 16-bit branch whose target is the absolute offset target.
func (a *Asm) Branch(op byte, target int) *Asm {
	delta := int16(target - len(a.buf))
	return a.Op(op, byte(uint16(delta)>>8), byte(delta))
}

// Raw appends bytes verbatim.
func (a *Asm) Raw(b ...byte) *Asm {
	a.buf = append(a.buf, b...)
	return a
}

// S32 appends a big-endian 32-bit value.
func (a *Asm) S32(v int32) *Asm {
	u := uint32(v)
	return a.Raw(byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// Len returns the current offset.
func (a *Asm) Len() int {
	return len(a.buf)
}

// Bytes returns the assembled code.
func (a *Asm) Bytes() []byte {
	return append([]byte(nil), a.buf...)
}
