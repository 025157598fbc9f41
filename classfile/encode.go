package classfile

import (
	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
)

// Encode encodes the class to class file format.
func (c *Class) Encode() []byte {
	w := binary.NewWriter()

	w.WriteU32(Magic)
	w.WriteU16(c.MinorVersion)
	w.WriteU16(c.MajorVersion)

	c.Pool.encode(w)

	w.WriteU16(c.AccessFlags)
	w.WriteU16(c.ThisClass)
	w.WriteU16(c.SuperClass)

	w.WriteU16(uint16(len(c.Interfaces)))
	for _, idx := range c.Interfaces {
		w.WriteU16(idx)
	}

	writeMembers(w, c.Fields)
	writeMembers(w, c.Methods)
	writeAttributes(w, c.Attributes)

	return w.Bytes()
}

func writeMembers(w *binary.Writer, members []Member) {
	w.WriteU16(uint16(len(members)))
	for _, m := range members {
		w.WriteU16(m.AccessFlags)
		w.WriteU16(m.NameIndex)
		w.WriteU16(m.DescriptorIndex)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *binary.Writer, attrs []Attribute) {
	w.WriteU16(uint16(len(attrs)))
	for _, a := range attrs {
		w.WriteU16(a.NameIndex)
		w.WriteU32(uint32(len(a.Info)))
		w.WriteBytes(a.Info)
	}
}
