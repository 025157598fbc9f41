package classfile

import (
	"fmt"

	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Parse parses a class file.
//
// Structural errors are reported as *errors.Error with KindMalformed in the
// parse phase; they match errors.ErrMalformedClassFile.
func Parse(data []byte) (*Class, error) {
	c, err := parse(binary.NewReader(data))
	if err != nil {
		return nil, errors.Malformed(errors.PhaseParse, nil, "parse class file", err)
	}
	return c, nil
}

func parse(r *binary.Reader) (*Class, error) {
	magic, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, r.WrapError("header", fmt.Errorf("invalid magic 0x%08X", magic))
	}

	c := &Class{}
	if c.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("header", err)
	}
	if c.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("header", err)
	}
	if c.MajorVersion < 45 || c.MajorVersion > MaxMajorVersion {
		return nil, r.WrapError("header", fmt.Errorf("unsupported major version %d", c.MajorVersion))
	}

	if c.Pool, err = parseConstantPool(r); err != nil {
		return nil, err
	}

	if c.AccessFlags, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("access flags", err)
	}
	if c.ThisClass, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("this class", err)
	}
	if _, err := c.Pool.ClassName(c.ThisClass); err != nil {
		return nil, r.WrapError("this class", err)
	}
	if c.SuperClass, err = r.ReadU16(); err != nil {
		return nil, r.WrapError("super class", err)
	}

	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError("interfaces", err)
	}
	c.Interfaces = make([]uint16, n)
	for i := range c.Interfaces {
		if c.Interfaces[i], err = r.ReadU16(); err != nil {
			return nil, r.WrapError("interfaces", err)
		}
	}

	if c.Fields, err = parseMembers(r, "fields"); err != nil {
		return nil, err
	}
	if c.Methods, err = parseMembers(r, "methods"); err != nil {
		return nil, err
	}
	if c.Attributes, err = parseAttributes(r); err != nil {
		return nil, r.WrapError("class attributes", err)
	}

	if r.Len() != 0 {
		return nil, r.WrapError("trailer", fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return c, nil
}

func parseMembers(r *binary.Reader, section string) ([]Member, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError(section, err)
	}
	members := make([]Member, n)
	for i := range members {
		m := &members[i]
		if m.AccessFlags, err = r.ReadU16(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.NameIndex, err = r.ReadU16(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.DescriptorIndex, err = r.ReadU16(); err != nil {
			return nil, r.WrapError(section, err)
		}
		if m.Attributes, err = parseAttributes(r); err != nil {
			return nil, r.WrapError(section, err)
		}
	}
	return members, nil
}

func parseAttributes(r *binary.Reader) ([]Attribute, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, n)
	for i := range attrs {
		if attrs[i].NameIndex, err = r.ReadU16(); err != nil {
			return nil, err
		}
		length, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if attrs[i].Info, err = r.ReadBytes(int(length)); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}
