package classfile

import (
	"fmt"

	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Code is a decoded Code attribute.
//
// Sub-attributes stay raw; the typed decoders below are applied on demand so
// that attributes the rewriter does not touch are written back unchanged.
type Code struct {
	Bytecode   []byte
	Handlers   []ExceptionHandler
	Attributes []Attribute
	MaxStack   uint16
	MaxLocals  uint16
}

// Code returns the method's decoded Code attribute and its index in the
// attribute list. A method without a Code attribute returns (nil, -1, nil).
func (m *Member) Code(pool *ConstantPool) (*Code, int, error) {
	idx := m.FindAttribute(pool, AttrCode)
	if idx < 0 {
		return nil, -1, nil
	}
	code, err := ParseCode(m.Attributes[idx].Info)
	if err != nil {
		return nil, idx, err
	}
	return code, idx, nil
}

// WithCode returns a copy of m whose Code attribute is replaced by code.
func (m *Member) WithCode(pool *ConstantPool, code *Code) (Member, error) {
	idx := m.FindAttribute(pool, AttrCode)
	if idx < 0 {
		return Member{}, errors.New(errors.PhaseEncode, errors.KindMalformed).
			Path(m.Name(pool)).
			Detail("method has no Code attribute").
			Build()
	}
	out := m.Clone()
	out.Attributes[idx].Info = code.Encode()
	return out, nil
}

// ParseCode decodes the payload of a Code attribute.
func ParseCode(info []byte) (*Code, error) {
	r := binary.NewReader(info)
	c, err := parseCode(r)
	if err != nil {
		return nil, errors.Malformed(errors.PhaseParse, []string{AttrCode}, "parse Code attribute", err)
	}
	return c, nil
}

func parseCode(r *binary.Reader) (*Code, error) {
	c := &Code{}
	var err error
	if c.MaxStack, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("max_stack", err)
	}
	if c.MaxLocals, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("max_locals", err)
	}
	length, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("code_length", err)
	}
	if length == 0 || length >= 65536 {
		return nil, r.WrapError("code_length", fmt.Errorf("code length %d outside (0, 65536)", length))
	}
	if c.Bytecode, err = r.ReadBytes(int(length)); err != nil {
		return nil, r.WrapError("code", err)
	}

	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError("exception_table", err)
	}
	c.Handlers = make([]ExceptionHandler, n)
	for i := range c.Handlers {
		h := &c.Handlers[i]
		for _, p := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &h.CatchType} {
			if *p, err = r.ReadU16(); err != nil {
				return nil, r.WrapError("exception_table", err)
			}
		}
	}

	if c.Attributes, err = parseAttributes(r); err != nil {
		return nil, r.WrapError("code attributes", err)
	}
	if r.Len() != 0 {
		return nil, r.WrapError("code", fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return c, nil
}

// Encode encodes the payload of a Code attribute.
func (c *Code) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU16(c.MaxStack)
	w.WriteU16(c.MaxLocals)
	w.WriteU32(uint32(len(c.Bytecode)))
	w.WriteBytes(c.Bytecode)
	w.WriteU16(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.WriteU16(h.StartPC)
		w.WriteU16(h.EndPC)
		w.WriteU16(h.HandlerPC)
		w.WriteU16(h.CatchType)
	}
	writeAttributes(w, c.Attributes)
	return w.Bytes()
}

// DecodeLineNumbers decodes a LineNumberTable payload.
func DecodeLineNumbers(info []byte) ([]LineNumber, error) {
	r := binary.NewReader(info)
	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError(AttrLineNumberTable, err)
	}
	out := make([]LineNumber, n)
	for i := range out {
		if out[i].StartPC, err = r.ReadU16(); err != nil {
			return nil, r.WrapError(AttrLineNumberTable, err)
		}
		if out[i].Line, err = r.ReadU16(); err != nil {
			return nil, r.WrapError(AttrLineNumberTable, err)
		}
	}
	return out, nil
}

// EncodeLineNumbers encodes a LineNumberTable payload.
func EncodeLineNumbers(lines []LineNumber) []byte {
	w := binary.NewWriter()
	w.WriteU16(uint16(len(lines)))
	for _, l := range lines {
		w.WriteU16(l.StartPC)
		w.WriteU16(l.Line)
	}
	return w.Bytes()
}

// DecodeLocalVariables decodes a LocalVariableTable or LocalVariableTypeTable payload.
func DecodeLocalVariables(info []byte) ([]LocalVariable, error) {
	r := binary.NewReader(info)
	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError(AttrLocalVariableTable, err)
	}
	out := make([]LocalVariable, n)
	for i := range out {
		v := &out[i]
		for _, p := range []*uint16{&v.StartPC, &v.Length, &v.NameIndex, &v.Descriptor, &v.Index} {
			if *p, err = r.ReadU16(); err != nil {
				return nil, r.WrapError(AttrLocalVariableTable, err)
			}
		}
	}
	return out, nil
}

// EncodeLocalVariables encodes a LocalVariableTable or LocalVariableTypeTable payload.
func EncodeLocalVariables(vars []LocalVariable) []byte {
	w := binary.NewWriter()
	w.WriteU16(uint16(len(vars)))
	for _, v := range vars {
		w.WriteU16(v.StartPC)
		w.WriteU16(v.Length)
		w.WriteU16(v.NameIndex)
		w.WriteU16(v.Descriptor)
		w.WriteU16(v.Index)
	}
	return w.Bytes()
}
