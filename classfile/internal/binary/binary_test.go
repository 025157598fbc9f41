package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderReadBytes(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	r := NewReader(data)

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}

	got[0] = 0xff
	if data[0] != 0x01 {
		t.Error("ReadBytes should return a copy")
	}

	if _, err := r.ReadBytes(10); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated reading past end, got %v", err)
	}
	if r.Position() != 3 {
		t.Errorf("failed read moved position to %d", r.Position())
	}
}

func TestReaderBigEndian(t *testing.T) {
	r := NewReader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0xFF, 0xFE, 0x80})

	magic, err := r.ReadU32()
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if magic != 0xCAFEBABE {
		t.Errorf("ReadU32: got 0x%08x", magic)
	}

	s16, err := r.ReadS16()
	if err != nil {
		t.Fatalf("ReadS16: %v", err)
	}
	if s16 != -2 {
		t.Errorf("ReadS16: got %d, want -2", s16)
	}

	s8, err := r.ReadS8()
	if err != nil {
		t.Fatalf("ReadS8: %v", err)
	}
	if s8 != -128 {
		t.Errorf("ReadS8: got %d, want -128", s8)
	}

	if _, err := r.ReadU16(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderReset(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04})
	r.Skip(3)

	if err := r.Reset(1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	b, _ := r.ReadByte()
	if b != 0x02 {
		t.Errorf("ReadByte after reset: got 0x%02x, want 0x02", b)
	}
	if err := r.Reset(9); err == nil {
		t.Error("expected error resetting past end")
	}
}

func TestReaderReadRemaining(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	r.Skip(2)

	remaining, err := r.ReadRemaining()
	if err != nil {
		t.Fatalf("ReadRemaining: %v", err)
	}
	if !bytes.Equal(remaining, []byte{0x03, 0x04, 0x05}) {
		t.Errorf("ReadRemaining: got %v, want [3 4 5]", remaining)
	}
}

func TestReaderWrapError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	r.Skip(2)

	err := r.WrapError("constant pool", errors.New("bad tag"))
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Position != 2 {
		t.Errorf("Position: got %d, want 2", pe.Position)
	}
	if got := pe.Error(); got != "classfile: constant pool at position 2: bad tag" {
		t.Errorf("Error(): got %q", got)
	}

	pe = &ParseError{Position: 5, Err: errors.New("some error")}
	if got := pe.Error(); got != "classfile: at position 5: some error" {
		t.Errorf("Error(): got %q", got)
	}
}

func TestWriter(t *testing.T) {
	w := NewWriter()
	w.Byte(0x42)
	w.WriteU16(0xCAFE)
	w.WriteS16(-1)
	w.WriteU32(0xDEADBEEF)
	w.WriteS32(-2)
	w.Pad(2)
	w.WriteBytes([]byte{0x09})

	want := []byte{
		0x42,
		0xCA, 0xFE,
		0xFF, 0xFF,
		0xDE, 0xAD, 0xBE, 0xEF,
		0xFF, 0xFF, 0xFF, 0xFE,
		0x00, 0x00,
		0x09,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes: got % x, want % x", w.Bytes(), want)
	}
	if w.Len() != len(want) {
		t.Errorf("Len: got %d, want %d", w.Len(), len(want))
	}
}

func TestRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU16(513)
	w.WriteS32(-70000)

	r := NewReader(w.Bytes())
	u16, _ := r.ReadU16()
	s32, _ := r.ReadS32()
	if u16 != 513 || s32 != -70000 {
		t.Errorf("round trip: got %d, %d", u16, s32)
	}
	if r.Len() != 0 {
		t.Errorf("unread bytes: %d", r.Len())
	}
}
