package insnlist

import (
	"bytes"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
	"github.com/slarse/duplicate-checkcast-remover/internal/classtest"
)

const castIndex = 4 // java/lang/Object in a classtest pool

func load(t *testing.T, m classtest.Method) (*List, *classfile.ConstantPool) {
	t.Helper()
	if m.Name == "" {
		m.Name = "m"
	}
	cls := classtest.New("p/C").Method(m).Build()
	code, _, err := cls.Methods[0].Code(cls.Pool)
	if err != nil {
		t.Fatalf("Code: %v", err)
	}
	l, err := Load(code, cls.Pool)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l, cls.Pool
}

func kindOf(err error) errors.Kind {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func removeDuplicates(t *testing.T, l *List) int {
	t.Helper()
	n := 0
	for m := range l.Find(DuplicateCheckcast) {
		if err := l.DeleteRetarget(m[1], m[0]); err != nil {
			t.Fatalf("DeleteRetarget: %v", err)
		}
		n++
	}
	return n
}

// branchy: a nullable cast with a duplicate checkcast covered by a handler.
//
//	0: aload_1
//	1: ifnull 12
//	4: aload_1
//	5: checkcast
//	8: checkcast
//	11: areturn
//	12: aconst_null
//	13: areturn
func branchy() classtest.Method {
	a := &classtest.Asm{}
	a.Op(classfile.OpAload1).
		Branch(classfile.OpIfnull, 12).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, castIndex).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn).
		Op(classfile.OpAconstNull).
		Op(classfile.OpAreturn)
	return classtest.Method{
		Code:     a.Bytes(),
		Handlers: []classfile.ExceptionHandler{{StartPC: 4, EndPC: 11, HandlerPC: 12}},
		Lines:    []classfile.LineNumber{{StartPC: 0, Line: 10}, {StartPC: 4, Line: 11}, {StartPC: 8, Line: 12}, {StartPC: 12, Line: 13}},
		Locals:   []classfile.LocalVariable{{StartPC: 0, Length: 14, NameIndex: 1, Descriptor: 3, Index: 1}},
		Frames:   []classfile.StackMapFrame{{Type: 12, Offset: 12}},
	}
}

func TestLoadFinalizeIdentity(t *testing.T) {
	m := branchy()
	l, pool := load(t, m)

	if l.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", l.Len())
	}
	code, err := l.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(code.Bytecode, m.Code) {
		t.Errorf("bytecode = %x, want %x", code.Bytecode, m.Code)
	}
	if !slices.Equal(code.Handlers, m.Handlers) {
		t.Errorf("handlers = %+v, want %+v", code.Handlers, m.Handlers)
	}

	orig := classtest.New("p/C").Method(classtest.Method{Name: "m", Code: m.Code, Handlers: m.Handlers,
		Lines: m.Lines, Locals: m.Locals, Frames: m.Frames}).Build()
	want, _, _ := orig.Methods[0].Code(orig.Pool)
	for i := range want.Attributes {
		if !bytes.Equal(code.Attributes[i].Info, want.Attributes[i].Info) {
			t.Errorf("attribute %s changed: %x, want %x",
				code.Attributes[i].Name(pool), code.Attributes[i].Info, want.Attributes[i].Info)
		}
	}
}

func TestRemoveDuplicateRemapsEverything(t *testing.T) {
	l, pool := load(t, branchy())

	if n := removeDuplicates(t, l); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	code, err := l.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	want := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		Branch(classfile.OpIfnull, 9).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn).
		Op(classfile.OpAconstNull).
		Op(classfile.OpAreturn).
		Bytes()
	if !bytes.Equal(code.Bytecode, want) {
		t.Errorf("bytecode = %x, want %x", code.Bytecode, want)
	}

	wantHandler := classfile.ExceptionHandler{StartPC: 4, EndPC: 8, HandlerPC: 9}
	if len(code.Handlers) != 1 || code.Handlers[0] != wantHandler {
		t.Errorf("handlers = %+v, want [%+v]", code.Handlers, wantHandler)
	}

	for _, attr := range code.Attributes {
		switch attr.Name(pool) {
		case classfile.AttrLineNumberTable:
			lines, err := classfile.DecodeLineNumbers(attr.Info)
			if err != nil {
				t.Fatal(err)
			}
			wantLines := []classfile.LineNumber{{StartPC: 0, Line: 10}, {StartPC: 4, Line: 11}, {StartPC: 5, Line: 12}, {StartPC: 9, Line: 13}}
			if !slices.Equal(lines, wantLines) {
				t.Errorf("lines = %+v, want %+v", lines, wantLines)
			}
		case classfile.AttrLocalVariableTable:
			vars, err := classfile.DecodeLocalVariables(attr.Info)
			if err != nil {
				t.Fatal(err)
			}
			if len(vars) != 1 || vars[0].StartPC != 0 || vars[0].Length != 11 {
				t.Errorf("locals = %+v, want one variable covering [0, 11)", vars)
			}
		case classfile.AttrStackMapTable:
			frames, err := classfile.DecodeStackMap(attr.Info)
			if err != nil {
				t.Fatal(err)
			}
			if len(frames) != 1 || frames[0].Offset != 9 {
				t.Errorf("frames = %+v, want one frame at 9", frames)
			}
		}
	}
}

func TestCollapseRuns(t *testing.T) {
	tests := []struct {
		name    string
		casts   int
		removed int
	}{
		{"single", 1, 0},
		{"pair", 2, 1},
		{"three", 3, 2},
		{"five", 5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := (&classtest.Asm{}).Op(classfile.OpAload1)
			for i := 0; i < tt.casts; i++ {
				a.U16(classfile.OpCheckcast, castIndex)
			}
			a.Op(classfile.OpAreturn)
			l, _ := load(t, classtest.Method{Code: a.Bytes()})

			if n := removeDuplicates(t, l); n != tt.removed {
				t.Errorf("removed %d, want %d", n, tt.removed)
			}
			want := []byte{classfile.OpAload1, classfile.OpCheckcast, classfile.OpAreturn}
			if got := l.Opcodes(); !bytes.Equal(got, want) {
				t.Errorf("opcodes = %v, want %v", got, want)
			}
		})
	}
}

func TestSeparatedCastsAreKept(t *testing.T) {
	a := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpDup).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn)
	l, _ := load(t, classtest.Method{Code: a.Bytes()})
	if n := removeDuplicates(t, l); n != 0 {
		t.Errorf("removed %d, want 0", n)
	}
}

// jumpToSecond has a goto whose target is the second of two casts.
//
//	0: aload_1
//	1: goto 7
//	4: checkcast
//	7: checkcast
//	10: areturn
func jumpToSecond() classtest.Method {
	a := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		Branch(classfile.OpGoto, 7).
		U16(classfile.OpCheckcast, castIndex).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn)
	return classtest.Method{Code: a.Bytes()}
}

func TestBranchRedirectedToRetained(t *testing.T) {
	l, _ := load(t, jumpToSecond())
	if n := removeDuplicates(t, l); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	code, err := l.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	want := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		Branch(classfile.OpGoto, 4).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn).
		Bytes()
	if !bytes.Equal(code.Bytecode, want) {
		t.Errorf("bytecode = %x, want %x", code.Bytecode, want)
	}
}

func TestDeleteRefusesTargetedInstruction(t *testing.T) {
	l, _ := load(t, jumpToSecond())
	second := l.Handles()[3]

	err := l.Delete(second)
	if !stderrors.Is(err, errors.ErrTargetingViolation) {
		t.Fatalf("Delete error = %v, want targeting violation", err)
	}
	if !l.Contains(second) || l.Len() != 5 {
		t.Errorf("list changed after refused delete")
	}

	first := l.Handles()[2]
	if err := l.Delete(first); err != nil {
		t.Errorf("Delete of untargeted instruction: %v", err)
	}
	if l.Contains(first) || l.Len() != 4 {
		t.Errorf("instruction still present after delete")
	}
	if err := l.Delete(first); kindOf(err) != errors.KindNotFound {
		t.Errorf("second Delete error = %v, want not_found", err)
	}
}

func TestPlanDelete(t *testing.T) {
	l, _ := load(t, jumpToSecond())
	hs := l.Handles()
	first, second := hs[2], hs[3]

	if _, err := l.PlanDelete(second, second); !stderrors.Is(err, errors.ErrTargetingViolation) {
		t.Errorf("self redirect error = %v, want targeting violation", err)
	}
	if _, err := l.PlanDelete(second, Handle(99)); kindOf(err) != errors.KindNotFound {
		t.Errorf("unknown replacement error = %v, want not_found", err)
	}

	d, err := l.PlanDelete(second, first)
	if err != nil {
		t.Fatalf("PlanDelete: %v", err)
	}
	if len(d.Targeters()) != 1 {
		t.Fatalf("targeters = %d, want 1", len(d.Targeters()))
	}
	if b, ok := d.Targeters()[0].(*Branch); !ok || b.At != hs[1] {
		t.Errorf("targeter = %#v, want the goto", d.Targeters()[0])
	}
	if l.Len() != 5 {
		t.Errorf("PlanDelete modified the list")
	}

	if err := d.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := l.At(hs[1]).Targets; !slices.Equal(got, []Handle{first}) {
		t.Errorf("goto targets = %v, want [%d]", got, first)
	}
	if len(l.TargetersOf(second)) != 0 {
		t.Errorf("deleted instruction still targeted")
	}
	if err := d.Commit(); err == nil {
		t.Errorf("second Commit succeeded")
	}
}

func TestCommitDetectsStalePlan(t *testing.T) {
	l, _ := load(t, jumpToSecond())
	hs := l.Handles()
	first, second := hs[2], hs[3]

	d, err := l.PlanDelete(second, first)
	if err != nil {
		t.Fatalf("PlanDelete: %v", err)
	}
	for _, tg := range l.TargetersOf(second) {
		Redirect(tg, second, hs[4])
	}
	if err := d.Commit(); !stderrors.Is(err, errors.ErrTargetingViolation) {
		t.Fatalf("Commit error = %v, want targeting violation", err)
	}
	if !l.Contains(second) {
		t.Errorf("stale Commit removed the instruction")
	}
}

func TestRedirectIdempotent(t *testing.T) {
	hr := &HandlerRange{Start: 1, End: 2, Handler: 3}
	Redirect(hr, 2, 1)
	Redirect(hr, 2, 1)
	if *hr != (HandlerRange{Start: 1, End: 1, Handler: 3}) {
		t.Errorf("range = %+v", *hr)
	}
	Redirect(hr, 1, 1)
	if hr.Start != 1 || hr.End != 1 {
		t.Errorf("self redirect changed range: %+v", *hr)
	}
}

func TestFindWithoutEdits(t *testing.T) {
	a := (&classtest.Asm{}).Op(classfile.OpAload1)
	for i := 0; i < 4; i++ {
		a.U16(classfile.OpCheckcast, castIndex)
	}
	a.Op(classfile.OpAreturn)
	l, _ := load(t, classtest.Method{Code: a.Bytes()})

	var got []Match
	for m := range l.Find(DuplicateCheckcast) {
		got = append(got, m)
	}
	want := []Match{{1, 2}, {3, 4}}
	if len(got) != len(want) {
		t.Fatalf("matches = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("match %d = %v, want %v", i, got[i], want[i])
		}
	}

	n := 0
	for range l.Find(DuplicateCheckcast) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("early break yielded %d", n)
	}
}

func TestLoadRejectsBadOffsets(t *testing.T) {
	a := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		Branch(classfile.OpGoto, 5).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpAreturn)
	cls := classtest.New("p/C").Method(classtest.Method{Name: "m", Code: a.Bytes()}).Build()
	code, _, err := cls.Methods[0].Code(cls.Pool)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Load(code, cls.Pool); kindOf(err) != errors.KindMalformed {
		t.Errorf("Load error = %v, want malformed", err)
	}
}

func TestLoadRejectsUntrackedOffsets(t *testing.T) {
	pool := classfile.NewConstantPool(classfile.Utf8Constant("RuntimeVisibleTypeAnnotations"))
	code := &classfile.Code{
		MaxStack:   1,
		MaxLocals:  2,
		Bytecode:   []byte{classfile.OpAload1, classfile.OpAreturn},
		Attributes: []classfile.Attribute{{NameIndex: 1, Info: []byte{0, 0}}},
	}
	if _, err := Load(code, pool); kindOf(err) != errors.KindUnsupported {
		t.Errorf("Load error = %v, want unsupported", err)
	}
}

func tableswitch(a *classtest.Asm, def, case0 int32) *classtest.Asm {
	at := a.Len()
	a.Op(classfile.OpTableswitch)
	a.Raw(make([]byte, 3-at%4)...)
	return a.S32(def).S32(0).S32(0).S32(case0)
}

func TestSwitchRemapped(t *testing.T) {
	a := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, castIndex).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpPop).
		Op(classfile.OpIload1)
	tableswitch(a, 19, 20).Op(classfile.OpAconstNull).Op(classfile.OpAreturn)
	l, _ := load(t, classtest.Method{Code: a.Bytes()})

	if n := removeDuplicates(t, l); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	code, err := l.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	w := (&classtest.Asm{}).
		Op(classfile.OpAload1).
		U16(classfile.OpCheckcast, castIndex).
		Op(classfile.OpPop).
		Op(classfile.OpIload1)
	tableswitch(w, 18, 19).Op(classfile.OpAconstNull).Op(classfile.OpAreturn)
	if !bytes.Equal(code.Bytecode, w.Bytes()) {
		t.Errorf("bytecode = %x, want %x", code.Bytecode, w.Bytes())
	}
}
