package classfile

import (
	"fmt"

	"github.com/slarse/duplicate-checkcast-remover/classfile/internal/binary"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Verification type tags.
const (
	VerifyTop               byte = 0
	VerifyInteger           byte = 1
	VerifyFloat             byte = 2
	VerifyDouble            byte = 3
	VerifyLong              byte = 4
	VerifyNull              byte = 5
	VerifyUninitializedThis byte = 6
	VerifyObject            byte = 7 // followed by a constant pool class index
	VerifyUninitialized     byte = 8 // followed by the offset of a new instruction
)

// Stack map frame type ranges.
const (
	frameSameMax               = 63
	frameSameLocals1Min        = 64
	frameSameLocals1Max        = 127
	frameSameLocals1Extended   = 247
	frameChopMin               = 248
	frameChopMax               = 250
	frameSameExtended          = 251
	frameAppendMin             = 252
	frameAppendMax             = 254
	frameFull                  = 255
	frameReservedMin           = 128
	frameReservedMax           = 246
	frameSameLocals1StackDelta = frameSameLocals1Min
)

// VerificationType is a verification_type_info. Value is the class index for
// VerifyObject and the bytecode offset for VerifyUninitialized.
type VerificationType struct {
	Value uint16
	Tag   byte
}

// StackMapFrame is a stack_map_frame with its position resolved to an
// absolute bytecode offset.
type StackMapFrame struct {
	Locals []VerificationType // appended locals, or all locals of a full frame
	Stack  []VerificationType
	Offset int
	Type   byte
}

// DecodeStackMap decodes a StackMapTable payload.
func DecodeStackMap(info []byte) ([]StackMapFrame, error) {
	r := binary.NewReader(info)
	n, err := r.ReadU16()
	if err != nil {
		return nil, r.WrapError(AttrStackMapTable, err)
	}
	frames := make([]StackMapFrame, n)
	prev := -1
	for i := range frames {
		f, delta, err := decodeFrame(r)
		if err != nil {
			return nil, r.WrapError(fmt.Sprintf("%s frame %d", AttrStackMapTable, i), err)
		}
		f.Offset = prev + 1 + int(delta)
		prev = f.Offset
		frames[i] = f
	}
	if r.Len() != 0 {
		return nil, r.WrapError(AttrStackMapTable, fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return frames, nil
}

func decodeFrame(r *binary.Reader) (StackMapFrame, uint16, error) {
	t, err := r.ReadByte()
	if err != nil {
		return StackMapFrame{}, 0, err
	}
	f := StackMapFrame{Type: t}

	switch {
	case t <= frameSameMax:
		return f, uint16(t), nil

	case t <= frameSameLocals1Max:
		vt, err := decodeVerificationType(r)
		if err != nil {
			return f, 0, err
		}
		f.Stack = []VerificationType{vt}
		return f, uint16(t - frameSameLocals1StackDelta), nil

	case t >= frameReservedMin && t <= frameReservedMax:
		return f, 0, fmt.Errorf("reserved frame type %d", t)
	}

	delta, err := r.ReadU16()
	if err != nil {
		return f, 0, err
	}

	switch {
	case t == frameSameLocals1Extended:
		vt, err := decodeVerificationType(r)
		if err != nil {
			return f, 0, err
		}
		f.Stack = []VerificationType{vt}

	case t >= frameChopMin && t <= frameSameExtended:
		// no payload

	case t >= frameAppendMin && t <= frameAppendMax:
		if f.Locals, err = decodeVerificationTypes(r, int(t-frameSameExtended)); err != nil {
			return f, 0, err
		}

	case t == frameFull:
		n, err := r.ReadU16()
		if err != nil {
			return f, 0, err
		}
		if f.Locals, err = decodeVerificationTypes(r, int(n)); err != nil {
			return f, 0, err
		}
		if n, err = r.ReadU16(); err != nil {
			return f, 0, err
		}
		if f.Stack, err = decodeVerificationTypes(r, int(n)); err != nil {
			return f, 0, err
		}
	}
	return f, delta, nil
}

func decodeVerificationTypes(r *binary.Reader, n int) ([]VerificationType, error) {
	out := make([]VerificationType, n)
	for i := range out {
		vt, err := decodeVerificationType(r)
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

func decodeVerificationType(r *binary.Reader) (VerificationType, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return VerificationType{}, err
	}
	vt := VerificationType{Tag: tag}
	switch {
	case tag == VerifyObject || tag == VerifyUninitialized:
		if vt.Value, err = r.ReadU16(); err != nil {
			return vt, err
		}
	case tag > VerifyUninitialized:
		return vt, fmt.Errorf("unknown verification type tag %d", tag)
	}
	return vt, nil
}

// EncodeStackMap encodes frames, recomputing offset deltas from the
// absolute offsets. A compact frame whose delta no longer fits its type byte
// is promoted to the equivalent extended form. Frames must be in strictly
// increasing offset order.
func EncodeStackMap(frames []StackMapFrame) ([]byte, error) {
	w := binary.NewWriter()
	w.WriteU16(uint16(len(frames)))
	prev := -1
	for i, f := range frames {
		delta := f.Offset - prev - 1
		if delta < 0 || delta > 0xFFFF {
			return nil, errors.New(errors.PhaseEncode, errors.KindMalformed).
				Path(AttrStackMapTable).
				Value(f.Offset).
				Detail("frame %d at offset %d does not follow frame at offset %d", i, f.Offset, prev).
				Build()
		}
		prev = f.Offset

		t := f.Type
		switch {
		case t <= frameSameMax:
			if delta <= frameSameMax {
				w.Byte(byte(delta))
				continue
			}
			t = frameSameExtended
		case t <= frameSameLocals1Max:
			if delta <= frameSameMax {
				w.Byte(byte(frameSameLocals1StackDelta + delta))
				encodeVerificationTypes(w, f.Stack)
				continue
			}
			t = frameSameLocals1Extended
		}

		w.Byte(t)
		w.WriteU16(uint16(delta))
		switch {
		case t == frameSameLocals1Extended:
			encodeVerificationTypes(w, f.Stack)
		case t >= frameAppendMin && t <= frameAppendMax:
			encodeVerificationTypes(w, f.Locals)
		case t == frameFull:
			w.WriteU16(uint16(len(f.Locals)))
			encodeVerificationTypes(w, f.Locals)
			w.WriteU16(uint16(len(f.Stack)))
			encodeVerificationTypes(w, f.Stack)
		}
	}
	return w.Bytes(), nil
}

func encodeVerificationTypes(w *binary.Writer, vts []VerificationType) {
	for _, vt := range vts {
		w.Byte(vt.Tag)
		if vt.Tag == VerifyObject || vt.Tag == VerifyUninitialized {
			w.WriteU16(vt.Value)
		}
	}
}
