package insnlist

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// offsetAttributes are Code sub-attributes that carry bytecode offsets the
// list does not model. Rewriting a method that has one would leave stale
// offsets behind, so Load refuses it.
var offsetAttributes = map[string]bool{
	"RuntimeVisibleTypeAnnotations":   true,
	"RuntimeInvisibleTypeAnnotations": true,
	"CharacterRangeTable":             true,
	"StackMap":                        true,
}

// Load builds a List from a decoded Code attribute. pool is used to
// recognize sub-attributes by name.
//
// Every offset the Code attribute carries is resolved to a handle. An
// offset that is not an instruction boundary is reported as KindMalformed;
// an offset-bearing attribute the list does not model is reported as
// KindUnsupported.
func Load(code *classfile.Code, pool *classfile.ConstantPool) (*List, error) {
	instrs, err := classfile.DecodeInstructions(code.Bytecode)
	if err != nil {
		return nil, errors.Malformed(errors.PhaseLoad, []string{classfile.AttrCode}, "decode instructions", err)
	}

	l := &List{
		code:  code,
		nodes: make([]node, len(instrs)),
		head:  NoHandle,
		tail:  NoHandle,
	}
	r := &resolver{
		list:     l,
		byOffset: make(map[int]Handle, len(instrs)),
		codeLen:  len(code.Bytecode),
	}

	for i, instr := range instrs {
		h := Handle(i)
		l.nodes[i] = node{
			instr:  Instruction{Opcode: instr.Opcode, Imm: instr.Imm},
			offset: instr.Offset,
			prev:   h - 1,
			next:   h + 1,
			live:   true,
		}
		r.byOffset[instr.Offset] = h
	}
	if n := len(l.nodes); n > 0 {
		l.nodes[n-1].next = NoHandle
		l.head, l.tail, l.length = 0, Handle(n-1), n
	}

	for i, instr := range instrs {
		if err := r.resolveBranch(Handle(i), instr); err != nil {
			return nil, err
		}
	}

	for i, h := range code.Handlers {
		hr, err := r.handlerRange(h)
		if err != nil {
			return nil, errors.WithPath(err, "exception_table", fmt.Sprint(i))
		}
		l.handlers = append(l.handlers, hr)
	}

	for idx, attr := range code.Attributes {
		name := attr.Name(pool)
		var err error
		switch name {
		case classfile.AttrLineNumberTable:
			err = r.lineTable(idx, attr.Info)
		case classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable:
			err = r.varTable(idx, attr.Info)
		case classfile.AttrStackMapTable:
			err = r.frameTable(idx, attr.Info)
		default:
			if offsetAttributes[name] {
				err = errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("Code attribute %s carries offsets that cannot be remapped", name))
			}
		}
		if err != nil {
			return nil, errors.WithPath(err, name)
		}
	}

	Logger().Debug("loaded instruction list",
		zap.Int("instructions", l.length),
		zap.Int("handlers", len(l.handlers)),
		zap.Int("attributes", len(code.Attributes)))
	return l, nil
}

type resolver struct {
	list     *List
	byOffset map[int]Handle
	codeLen  int
}

func (r *resolver) at(offset int, what string) (Handle, error) {
	if h, ok := r.byOffset[offset]; ok {
		return h, nil
	}
	return NoHandle, errors.New(errors.PhaseLoad, errors.KindMalformed).
		Value(offset).
		Detail("%s offset %d is not an instruction boundary", what, offset).
		Build()
}

// lastBefore returns the instruction ending at the exclusive offset end.
func (r *resolver) lastBefore(end int, what string) (Handle, error) {
	if end == r.codeLen {
		return r.list.tail, nil
	}
	h, err := r.at(end, what)
	if err != nil {
		return NoHandle, err
	}
	return r.list.nodes[h].prev, nil
}

func (r *resolver) resolveBranch(h Handle, instr classfile.Instruction) error {
	n := &r.list.nodes[h]
	switch imm := instr.Imm.(type) {
	case classfile.BranchImm:
		t, err := r.at(instr.Offset+int(imm.Delta), classfile.OpcodeName(instr.Opcode)+" target")
		if err != nil {
			return err
		}
		n.instr.Targets = []Handle{t}
		n.instr.Imm = nil

	case classfile.TableSwitchImm:
		targets, err := r.switchTargets(instr.Offset, imm.Default, imm.Offsets)
		if err != nil {
			return err
		}
		n.instr.Targets = targets

	case classfile.LookupSwitchImm:
		targets, err := r.switchTargets(instr.Offset, imm.Default, imm.Offsets)
		if err != nil {
			return err
		}
		n.instr.Targets = targets
	}
	return nil
}

func (r *resolver) switchTargets(base int, def int32, offsets []int32) ([]Handle, error) {
	targets := make([]Handle, 0, len(offsets)+1)
	t, err := r.at(base+int(def), "switch default")
	if err != nil {
		return nil, err
	}
	targets = append(targets, t)
	for _, o := range offsets {
		t, err := r.at(base+int(o), "switch case")
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (r *resolver) handlerRange(h classfile.ExceptionHandler) (*HandlerRange, error) {
	if h.StartPC >= h.EndPC {
		return nil, errors.New(errors.PhaseLoad, errors.KindMalformed).
			Detail("handler range [%d, %d) is empty", h.StartPC, h.EndPC).
			Build()
	}
	start, err := r.at(int(h.StartPC), "handler start")
	if err != nil {
		return nil, err
	}
	end, err := r.lastBefore(int(h.EndPC), "handler end")
	if err != nil {
		return nil, err
	}
	handler, err := r.at(int(h.HandlerPC), "handler")
	if err != nil {
		return nil, err
	}
	return &HandlerRange{Start: start, End: end, Handler: handler, CatchType: h.CatchType}, nil
}

func (r *resolver) lineTable(attr int, info []byte) error {
	lines, err := classfile.DecodeLineNumbers(info)
	if err != nil {
		return errors.Malformed(errors.PhaseLoad, nil, "decode", err)
	}
	t := lineTable{attr: attr}
	for _, ln := range lines {
		h, err := r.at(int(ln.StartPC), "line number")
		if err != nil {
			return err
		}
		t.entries = append(t.entries, &LineEntry{Start: h, Line: ln.Line})
	}
	r.list.lines = append(r.list.lines, t)
	return nil
}

func (r *resolver) varTable(attr int, info []byte) error {
	vars, err := classfile.DecodeLocalVariables(info)
	if err != nil {
		return errors.Malformed(errors.PhaseLoad, nil, "decode", err)
	}
	t := varTable{attr: attr}
	for _, v := range vars {
		e := &LocalVariableRange{Var: v, Start: NoHandle, End: NoHandle}
		if int(v.StartPC) != r.codeLen || v.Length != 0 {
			if e.Start, err = r.at(int(v.StartPC), "local variable start"); err != nil {
				return err
			}
		}
		if v.Length != 0 {
			if e.End, err = r.lastBefore(int(v.StartPC)+int(v.Length), "local variable end"); err != nil {
				return err
			}
		}
		t.entries = append(t.entries, e)
	}
	r.list.vars = append(r.list.vars, t)
	return nil
}

func (r *resolver) frameTable(attr int, info []byte) error {
	if r.list.frames != nil {
		return errors.New(errors.PhaseLoad, errors.KindMalformed).
			Detail("more than one %s", classfile.AttrStackMapTable).
			Build()
	}
	frames, err := classfile.DecodeStackMap(info)
	if err != nil {
		return errors.Malformed(errors.PhaseLoad, nil, "decode", err)
	}
	t := &frameTable{attr: attr}
	for _, f := range frames {
		at, err := r.at(f.Offset, "stack map frame")
		if err != nil {
			return err
		}
		fr := &Frame{Frame: f, At: at}
		if fr.LocalRefs, err = r.uninitialized(f.Locals); err != nil {
			return err
		}
		if fr.StackRefs, err = r.uninitialized(f.Stack); err != nil {
			return err
		}
		t.frames = append(t.frames, fr)
	}
	r.list.frames = t
	return nil
}

func (r *resolver) uninitialized(vts []classfile.VerificationType) ([]Handle, error) {
	refs := make([]Handle, len(vts))
	for i, vt := range vts {
		refs[i] = NoHandle
		if vt.Tag != classfile.VerifyUninitialized {
			continue
		}
		h, err := r.at(int(vt.Value), "uninitialized")
		if err != nil {
			return nil, err
		}
		refs[i] = h
	}
	return refs, nil
}
