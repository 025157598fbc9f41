package classfile

import (
	"strings"
)

// Class represents a parsed class file.
//
// Everything the rewriter does not edit is kept in its raw form so that
// re-encoding an untouched class reproduces the input byte for byte.
type Class struct {
	Pool       *ConstantPool
	Interfaces []uint16
	Fields     []Member
	Methods    []Member
	Attributes []Attribute

	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
}

// Name returns the binary name of the class with '/' separators.
func (c *Class) Name() string {
	name, err := c.Pool.ClassName(c.ThisClass)
	if err != nil {
		return ""
	}
	return name
}

// DottedName returns the class name in source form, e.g. java.lang.String.
func (c *Class) DottedName() string {
	return strings.ReplaceAll(c.Name(), "/", ".")
}

// Member is a field_info or method_info structure.
type Member struct {
	Attributes      []Attribute
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
}

// Method is a method_info structure.
type Method = Member

// Name resolves the member name against pool.
func (m *Member) Name(pool *ConstantPool) string {
	s, _ := pool.Utf8(m.NameIndex)
	return s
}

// Descriptor resolves the member descriptor against pool.
func (m *Member) Descriptor(pool *ConstantPool) string {
	s, _ := pool.Utf8(m.DescriptorIndex)
	return s
}

// IsAbstract reports whether the method is declared abstract.
func (m *Member) IsAbstract() bool {
	return m.AccessFlags&AccAbstract != 0
}

// IsNative reports whether the method is declared native.
func (m *Member) IsNative() bool {
	return m.AccessFlags&AccNative != 0
}

// HasBody reports whether the method can carry a Code attribute.
func (m *Member) HasBody() bool {
	return !m.IsAbstract() && !m.IsNative()
}

// FindAttribute returns the index of the first attribute named name, or -1.
func (m *Member) FindAttribute(pool *ConstantPool, name string) int {
	return findAttribute(m.Attributes, pool, name)
}

// Clone returns a copy of m whose attribute slice can be modified independently.
func (m *Member) Clone() Member {
	cp := *m
	cp.Attributes = append([]Attribute(nil), m.Attributes...)
	return cp
}

// Attribute is an attribute_info structure with its payload left undecoded.
type Attribute struct {
	Info      []byte
	NameIndex uint16
}

// Name resolves the attribute name against pool.
func (a *Attribute) Name(pool *ConstantPool) string {
	s, _ := pool.Utf8(a.NameIndex)
	return s
}

func findAttribute(attrs []Attribute, pool *ConstantPool, name string) int {
	for i := range attrs {
		if attrs[i].Name(pool) == name {
			return i
		}
	}
	return -1
}

// ExceptionHandler is an exception_table entry of a Code attribute.
// EndPC is exclusive.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// LineNumber is a LineNumberTable entry.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LocalVariable is a LocalVariableTable or LocalVariableTypeTable entry.
// The variable is live over [StartPC, StartPC+Length).
type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	NameIndex  uint16
	Descriptor uint16 // descriptor or signature index
	Index      uint16
}
