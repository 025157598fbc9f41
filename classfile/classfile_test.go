package classfile_test

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
	"github.com/slarse/duplicate-checkcast-remover/internal/classtest"
)

func sample() []byte {
	a := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, 4).
		Op(classfile.OpAreturn)
	return classtest.New("com/example/Sample").
		Method(classtest.Method{Name: "<init>", Descriptor: "()V", Code: []byte{classfile.OpReturn}}).
		Method(classtest.Method{
			Name:  "cast",
			Code:  a.Bytes(),
			Lines: []classfile.LineNumber{{StartPC: 0, Line: 3}},
		}).
		Method(classtest.Method{Name: "shape", Access: classfile.AccAbstract}).
		Bytes()
}

func TestParseEncodeIdentity(t *testing.T) {
	data := sample()
	cls, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cls.DottedName(); got != "com.example.Sample" {
		t.Errorf("DottedName() = %q", got)
	}
	if len(cls.Methods) != 3 {
		t.Fatalf("methods = %d, want 3", len(cls.Methods))
	}
	if name := cls.Methods[1].Name(cls.Pool); name != "cast" {
		t.Errorf("method name = %q", name)
	}
	if cls.Methods[2].HasBody() {
		t.Errorf("abstract method reports a body")
	}
	if out := cls.Encode(); !bytes.Equal(out, data) {
		t.Errorf("Encode() differs from input")
	}
}

func TestWideConstants(t *testing.T) {
	cls := &classfile.Class{
		Pool: classfile.NewConstantPool(
			classfile.Utf8Constant("p/C"),
			classfile.ClassConstant(1),
			classfile.Constant{Tag: classfile.TagLong, Raw: []byte{0, 0, 0, 0, 0, 0, 0, 42}},
			classfile.Constant{},
			classfile.Utf8Constant("java/lang/Object"),
			classfile.ClassConstant(5),
		),
		MajorVersion: 52,
		ThisClass:    2,
		SuperClass:   6,
	}
	data := cls.Encode()

	parsed, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Pool.Len() != 7 {
		t.Errorf("pool Len() = %d, want 7", parsed.Pool.Len())
	}
	if c, err := parsed.Pool.Get(3); err != nil || c.Tag != classfile.TagLong {
		t.Errorf("Get(3) = %+v, %v", c, err)
	}
	if _, err := parsed.Pool.Get(4); err == nil {
		t.Errorf("Get(4) on the second slot of a long succeeded")
	}
	if _, err := parsed.Pool.Get(7); err == nil {
		t.Errorf("Get(7) past the end succeeded")
	}
	if !bytes.Equal(parsed.Encode(), data) {
		t.Errorf("re-encoded class differs")
	}
}

func TestParseMalformed(t *testing.T) {
	data := sample()
	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), data...))
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 0; return b })},
		{"old version", mutate(func(b []byte) []byte { b[6], b[7] = 0, 44; return b })},
		{"future version", mutate(func(b []byte) []byte { b[6], b[7] = 0, 70; return b })},
		{"truncated", data[:len(data)-1]},
		{"trailing bytes", mutate(func(b []byte) []byte { return append(b, 0) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classfile.Parse(tt.data)
			if !stderrors.Is(err, errors.ErrMalformedClassFile) {
				t.Errorf("Parse error = %v, want malformed class file", err)
			}
		})
	}
}

func TestInstructionsRoundTrip(t *testing.T) {
	a := &classtest.Asm{}
	a.Op(classfile.OpIload1)
	a.Op(classfile.OpTableswitch, 0, 0).S32(70).S32(0).S32(1).S32(70).S32(23)
	a.Op(classfile.OpLookupswitch, 0, 0, 0).S32(47).S32(1).S32(7).S32(-20)
	a.Op(classfile.OpWide, classfile.OpIinc, 0, 5, 0, 1)
	a.Op(classfile.OpWide, classfile.OpIload, 0, 5)
	a.Op(classfile.OpGotoW).S32(17)
	a.Op(classfile.OpLdc, 2)
	a.Op(classfile.OpInvokeinterface, 0, 4, 1, 0)
	a.Op(classfile.OpMultianewarray, 0, 4, 2)
	a.Op(classfile.OpNop)
	a.Op(classfile.OpIreturn)
	code := a.Bytes()

	instrs, err := classfile.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	wantOffsets := []int{0, 1, 24, 44, 50, 54, 59, 61, 66, 70, 71}
	var offsets []int
	for _, in := range instrs {
		offsets = append(offsets, in.Offset)
		if next := in.Offset + in.Size(); next > len(code) {
			t.Errorf("%s at %d overruns the code", classfile.OpcodeName(in.Opcode), in.Offset)
		}
	}
	if !reflect.DeepEqual(offsets, wantOffsets) {
		t.Errorf("offsets = %v, want %v", offsets, wantOffsets)
	}
	ts, ok := instrs[1].Imm.(classfile.TableSwitchImm)
	if !ok || ts.Low != 0 || ts.High != 1 || !reflect.DeepEqual(ts.Offsets, []int32{70, 23}) {
		t.Errorf("tableswitch = %+v", instrs[1].Imm)
	}

	out, err := classfile.EncodeInstructions(instrs)
	if err != nil {
		t.Fatalf("EncodeInstructions: %v", err)
	}
	if !bytes.Equal(out, code) {
		t.Errorf("re-encoded code = %x, want %x", out, code)
	}
}

func TestDecodeInstructionsErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"truncated operand", []byte{classfile.OpCheckcast, 0}},
		{"invalid opcode", []byte{0xCB}},
		{"wide of a non local instruction", []byte{classfile.OpWide, classfile.OpNop, 0, 0}},
		{"tableswitch bounds", append([]byte{classfile.OpTableswitch, 0, 0, 0}, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := classfile.DecodeInstructions(tt.code); err == nil {
				t.Errorf("DecodeInstructions(%x) succeeded", tt.code)
			}
		})
	}
}

func TestEncodeBranchOverflow(t *testing.T) {
	instrs := []classfile.Instruction{{Opcode: classfile.OpGoto, Imm: classfile.BranchImm{Delta: 40000}}}
	_, err := classfile.EncodeInstructions(instrs)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindOverflow {
		t.Errorf("error = %v, want overflow", err)
	}
}

func TestStackMapRoundTrip(t *testing.T) {
	frames := []classfile.StackMapFrame{
		{Type: 3, Offset: 3},
		{Type: 64, Offset: 4, Stack: []classfile.VerificationType{{Tag: classfile.VerifyInteger}}},
		{Type: 252, Offset: 10, Locals: []classfile.VerificationType{{Tag: classfile.VerifyObject, Value: 4}}},
		{
			Type:   255,
			Offset: 20,
			Locals: []classfile.VerificationType{{Tag: classfile.VerifyObject, Value: 2}, {Tag: classfile.VerifyLong}},
			Stack:  []classfile.VerificationType{{Tag: classfile.VerifyUninitialized, Value: 7}},
		},
		{Type: 248, Offset: 30},
	}
	info, err := classfile.EncodeStackMap(frames)
	if err != nil {
		t.Fatalf("EncodeStackMap: %v", err)
	}
	got, err := classfile.DecodeStackMap(info)
	if err != nil {
		t.Fatalf("DecodeStackMap: %v", err)
	}
	if !reflect.DeepEqual(got, frames) {
		t.Errorf("frames = %+v, want %+v", got, frames)
	}
}

func TestStackMapPromotion(t *testing.T) {
	tests := []struct {
		name  string
		frame classfile.StackMapFrame
		want  []byte
	}{
		{"same", classfile.StackMapFrame{Type: 0, Offset: 100}, []byte{0, 1, 251, 0, 100}},
		{
			"same locals 1 stack item",
			classfile.StackMapFrame{Type: 64, Offset: 100, Stack: []classfile.VerificationType{{Tag: classfile.VerifyInteger}}},
			[]byte{0, 1, 247, 0, 100, 1},
		},
		{"compact stays compact", classfile.StackMapFrame{Type: 0, Offset: 63}, []byte{0, 1, 63}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := classfile.EncodeStackMap([]classfile.StackMapFrame{tt.frame})
			if err != nil {
				t.Fatalf("EncodeStackMap: %v", err)
			}
			if !bytes.Equal(info, tt.want) {
				t.Errorf("encoded = %v, want %v", info, tt.want)
			}
		})
	}
}

func TestStackMapRejectsCollidingFrames(t *testing.T) {
	_, err := classfile.EncodeStackMap([]classfile.StackMapFrame{{Offset: 5}, {Offset: 5}})
	if err == nil {
		t.Errorf("colliding frames were encoded")
	}
}

func TestCode(t *testing.T) {
	cls, err := classfile.Parse(sample())
	if err != nil {
		t.Fatal(err)
	}
	m := &cls.Methods[1]
	code, idx, err := m.Code(cls.Pool)
	if err != nil || idx != 0 {
		t.Fatalf("Code() = %v, %d, %v", code, idx, err)
	}
	if len(code.Attributes) != 1 || code.Attributes[0].Name(cls.Pool) != classfile.AttrLineNumberTable {
		t.Errorf("code attributes = %+v", code.Attributes)
	}
	if !bytes.Equal(code.Encode(), m.Attributes[0].Info) {
		t.Errorf("Code.Encode() differs from the attribute payload")
	}

	code.Bytecode = []byte{classfile.OpAload1, classfile.OpAreturn}
	out, err := m.WithCode(cls.Pool, code)
	if err != nil {
		t.Fatalf("WithCode: %v", err)
	}
	if bytes.Equal(out.Attributes[0].Info, m.Attributes[0].Info) {
		t.Errorf("WithCode did not replace the attribute")
	}
	if c, _, _ := m.Code(cls.Pool); len(c.Bytecode) != 3 {
		t.Errorf("WithCode modified the original method")
	}

	abstract := &cls.Methods[2]
	if c, idx, err := abstract.Code(cls.Pool); c != nil || idx != -1 || err != nil {
		t.Errorf("abstract Code() = %v, %d, %v", c, idx, err)
	}
	if _, err := abstract.WithCode(cls.Pool, code); err == nil {
		t.Errorf("WithCode on a method without Code succeeded")
	}
}

func TestParseCodeRejectsEmptyCode(t *testing.T) {
	empty := (&classfile.Code{MaxStack: 1, MaxLocals: 1}).Encode()
	if _, err := classfile.ParseCode(empty); !stderrors.Is(err, errors.ErrMalformedClassFile) {
		t.Errorf("ParseCode error = %v, want malformed class file", err)
	}
}

func TestDisassemble(t *testing.T) {
	cls, err := classfile.Parse(sample())
	if err != nil {
		t.Fatal(err)
	}
	code, _, err := cls.Methods[1].Code(cls.Pool)
	if err != nil {
		t.Fatal(err)
	}
	out, err := classfile.Disassemble(code.Bytecode, cls.Pool)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	want := []string{"0: aload_1", "1: checkcast #4 // class java/lang/Object", "4: areturn"}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("disassembly %q does not contain %q", out, w)
		}
	}
}
