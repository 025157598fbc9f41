package classfile

import (
	"fmt"
	"unicode/utf16"

	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Constant is a single constant pool entry.
//
// Raw holds the entry bytes after the tag exactly as they appeared in the
// input. Slots following a Long or Double are represented by a zero Constant.
type Constant struct {
	Raw []byte
	Tag byte
}

// ConstantPool is the class's constant pool, indexed from 1.
// The rewriter resolves operands through it but never adds or removes entries.
type ConstantPool struct {
	entries []Constant // entries[0] is unused
}

// Len returns constant_pool_count, i.e. one past the highest valid index.
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) {
		return Constant{}, errors.OutOfBounds(errors.PhaseParse, []string{"constant_pool"}, int(i), len(p.entries))
	}
	c := p.entries[i]
	if c.Tag == 0 {
		return Constant{}, errors.Malformed(errors.PhaseParse, []string{"constant_pool"},
			fmt.Sprintf("index %d is the unusable second slot of a long or double", i), nil)
	}
	return c, nil
}

// Utf8 resolves a CONSTANT_Utf8 entry.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", tagMismatch(i, TagUtf8, c.Tag)
	}
	return decodeModifiedUTF8(c.Raw[2:]), nil
}

// ClassName resolves a CONSTANT_Class entry to its binary name.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != TagClass {
		return "", tagMismatch(i, TagClass, c.Tag)
	}
	return p.Utf8(uint16(c.Raw[0])<<8 | uint16(c.Raw[1]))
}

func tagMismatch(i uint16, want, got byte) error {
	return errors.New(errors.PhaseParse, errors.KindMalformed).
		Path("constant_pool").
		Value(i).
		Detail("index %d: expected tag %d, found %d", i, want, got).
		Build()
}

// constantSize returns the payload size of a fixed-size constant, or -1 for Utf8.
func constantSize(tag byte) (int, bool) {
	switch tag {
	case TagUtf8:
		return -1, true
	case TagInteger, TagFloat, TagFieldref, TagMethodref, TagInterfaceMethodref,
		TagNameAndType, TagDynamic, TagInvokeDynamic:
		return 4, true
	case TagLong, TagDouble:
		return 8, true
	case TagClass, TagString, TagMethodType, TagModule, TagPackage:
		return 2, true
	case TagMethodHandle:
		return 3, true
	default:
		return 0, false
	}
}

func parseConstantPool(r *binary.Reader) (*ConstantPool, error) {
	count, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError("constant pool count", err)
	}
	if count == 0 {
		return nil, r.WrapError("constant pool count", fmt.Errorf("count must be at least 1"))
	}

	p := &ConstantPool{entries: make([]Constant, count)}
	for i := 1; i < int(count); i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("constant pool", err)
		}
		size, ok := constantSize(tag)
		if !ok {
			return nil, r.WrapError("constant pool", fmt.Errorf("entry %d: unknown tag %d", i, tag))
		}
		if size < 0 {
			n, err := r.ReadU16()
			if err != nil {
				return nil, r.WrapError("constant pool", err)
			}
			size = int(n)
			if err := r.Reset(r.Position() - 2); err != nil {
				return nil, err
			}
			size += 2
		}
		raw, err := r.ReadBytes(size)
		if err != nil {
			return nil, r.WrapError("constant pool", err)
		}
		p.entries[i] = Constant{Tag: tag, Raw: raw}
		if tag == TagLong || tag == TagDouble {
			i++
			if i >= int(count) {
				return nil, r.WrapError("constant pool", fmt.Errorf("entry %d: wide constant overruns pool", i-1))
			}
		}
	}
	return p, nil
}

func (p *ConstantPool) encode(w *binary.Writer) {
	w.WriteU16(uint16(len(p.entries)))
	for _, c := range p.entries[1:] {
		if c.Tag == 0 {
			continue
		}
		w.Byte(c.Tag)
		w.WriteBytes(c.Raw)
	}
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8. Malformed sequences
// decode to U+FFFD; names are only used for display and error paths.
func decodeModifiedUTF8(b []byte) string {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}

// NewConstantPool builds a pool from entries, which start at index 1.
// A Long or Double entry must be followed by a zero Constant for its second slot.
func NewConstantPool(entries ...Constant) *ConstantPool {
	p := &ConstantPool{entries: make([]Constant, 1, len(entries)+1)}
	p.entries = append(p.entries, entries...)
	return p
}

// Utf8Constant returns a CONSTANT_Utf8 entry for s. Only ASCII without NUL
// is encoded identically in standard and modified UTF-8, which is all the
// callers in this module need.
func Utf8Constant(s string) Constant {
	raw := make([]byte, 2+len(s))
	raw[0], raw[1] = byte(len(s)>>8), byte(len(s))
	copy(raw[2:], s)
	return Constant{Tag: TagUtf8, Raw: raw}
}

// ClassConstant returns a CONSTANT_Class entry naming the Utf8 at nameIndex.
func ClassConstant(nameIndex uint16) Constant {
	return Constant{Tag: TagClass, Raw: []byte{byte(nameIndex >> 8), byte(nameIndex)}}
}
