package insnlist

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

const maxCodeLength = 65535

// Finalize lays out the list and returns the resulting Code attribute.
//
// Instructions are assigned consecutive offsets, switch padding is
// recomputed, and every branch delta, exception table entry, line number,
// local variable range and stack map frame is rewritten from the handles it
// references. Sub-attributes the list does not model are kept verbatim.
// The list itself is not modified.
func (l *List) Finalize() (*classfile.Code, error) {
	if l.length == 0 {
		return nil, errors.New(errors.PhaseFinalize, errors.KindMalformed).
			Detail("instruction list is empty").
			Build()
	}

	lay := &layout{list: l, pc: make([]int, len(l.nodes)), size: make([]int, len(l.nodes))}
	if err := lay.assign(); err != nil {
		return nil, err
	}

	instrs := make([]classfile.Instruction, 0, l.length)
	for h, instr := range l.All() {
		ci, err := lay.resolve(h, instr)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, ci)
	}
	bytecode, err := classfile.EncodeInstructions(instrs)
	if err != nil {
		return nil, errors.WithPath(err, classfile.AttrCode)
	}

	out := &classfile.Code{
		MaxStack:   l.code.MaxStack,
		MaxLocals:  l.code.MaxLocals,
		Bytecode:   bytecode,
		Attributes: append([]classfile.Attribute(nil), l.code.Attributes...),
	}

	for i, hr := range l.handlers {
		eh, err := lay.handler(hr)
		if err != nil {
			return nil, errors.WithPath(err, "exception_table", strconv.Itoa(i))
		}
		out.Handlers = append(out.Handlers, eh)
	}

	for _, lt := range l.lines {
		entries := make([]classfile.LineNumber, len(lt.entries))
		for i, e := range lt.entries {
			pc, err := lay.at(e.Start, "line number")
			if err != nil {
				return nil, errors.WithPath(err, classfile.AttrLineNumberTable)
			}
			entries[i] = classfile.LineNumber{StartPC: uint16(pc), Line: e.Line}
		}
		out.Attributes[lt.attr].Info = classfile.EncodeLineNumbers(entries)
	}

	for _, vt := range l.vars {
		entries := make([]classfile.LocalVariable, len(vt.entries))
		for i, v := range vt.entries {
			lv, err := lay.variable(v)
			if err != nil {
				return nil, errors.WithPath(err, classfile.AttrLocalVariableTable)
			}
			entries[i] = lv
		}
		out.Attributes[vt.attr].Info = classfile.EncodeLocalVariables(entries)
	}

	if l.frames != nil {
		frames := make([]classfile.StackMapFrame, len(l.frames.frames))
		for i, f := range l.frames.frames {
			sf, err := lay.frame(f)
			if err != nil {
				return nil, errors.WithPath(err, classfile.AttrStackMapTable)
			}
			frames[i] = sf
		}
		info, err := classfile.EncodeStackMap(frames)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseFinalize, errors.KindMalformed, err, "re-encode stack map")
		}
		out.Attributes[l.frames.attr].Info = info
	}

	Logger().Debug("finalized instruction list",
		zap.Int("instructions", l.length),
		zap.Int("code_length", len(bytecode)),
		zap.Int("original_code_length", len(l.code.Bytecode)))
	return out, nil
}

type layout struct {
	list   *List
	pc     []int
	size   []int
	length int
}

// assign gives every live instruction its new offset. Instruction sizes
// depend only on the opcode and, for switches, on the offset.
func (lay *layout) assign() error {
	pc := 0
	for h, instr := range lay.list.All() {
		ci := classfile.Instruction{Opcode: instr.Opcode, Offset: pc, Imm: lay.list.nodes[h].sizedImm()}
		lay.pc[h] = pc
		lay.size[h] = ci.Size()
		pc += lay.size[h]
	}
	if pc > maxCodeLength {
		return errors.Overflow(errors.PhaseFinalize, []string{classfile.AttrCode}, pc, "code length")
	}
	lay.length = pc
	return nil
}

// sizedImm returns an immediate with the shape needed to size the
// instruction. Plain branches carry no immediate in the list.
func (n *node) sizedImm() interface{} {
	if n.instr.Imm == nil && n.instr.IsBranch() {
		return classfile.BranchImm{}
	}
	return n.instr.Imm
}

func (lay *layout) at(h Handle, what string) (int, error) {
	if !lay.list.Contains(h) {
		return 0, errors.TargetingViolation("%s references instruction %d, which is not in the list", what, h)
	}
	return lay.pc[h], nil
}

// end returns the exclusive end offset of the range ending at h.
func (lay *layout) end(h Handle, what string) (int, error) {
	pc, err := lay.at(h, what)
	if err != nil {
		return 0, err
	}
	return pc + lay.size[h], nil
}

func (lay *layout) resolve(h Handle, instr Instruction) (classfile.Instruction, error) {
	pc := lay.pc[h]
	ci := classfile.Instruction{Opcode: instr.Opcode, Offset: pc, Imm: instr.Imm}
	if !instr.IsBranch() {
		return ci, nil
	}

	deltas := make([]int32, len(instr.Targets))
	for i, t := range instr.Targets {
		tpc, err := lay.at(t, classfile.OpcodeName(instr.Opcode))
		if err != nil {
			return ci, err
		}
		deltas[i] = int32(tpc - pc)
	}

	switch imm := instr.Imm.(type) {
	case nil:
		d := deltas[0]
		if !classfile.IsWideBranch(instr.Opcode) && (d < -32768 || d > 32767) {
			return ci, errors.Overflow(errors.PhaseFinalize, []string{classfile.AttrCode, classfile.OpcodeName(instr.Opcode)}, d, "int16 branch offset")
		}
		ci.Imm = classfile.BranchImm{Delta: d}
	case classfile.TableSwitchImm:
		imm.Default, imm.Offsets = deltas[0], deltas[1:]
		ci.Imm = imm
	case classfile.LookupSwitchImm:
		imm.Default, imm.Offsets = deltas[0], deltas[1:]
		ci.Imm = imm
	}
	return ci, nil
}

func (lay *layout) handler(hr *HandlerRange) (classfile.ExceptionHandler, error) {
	start, err := lay.at(hr.Start, "handler start")
	if err != nil {
		return classfile.ExceptionHandler{}, err
	}
	end, err := lay.end(hr.End, "handler end")
	if err != nil {
		return classfile.ExceptionHandler{}, err
	}
	handler, err := lay.at(hr.Handler, "handler")
	if err != nil {
		return classfile.ExceptionHandler{}, err
	}
	if end <= start {
		return classfile.ExceptionHandler{}, errors.New(errors.PhaseFinalize, errors.KindMalformed).
			Detail("handler range [%d, %d) is empty", start, end).
			Build()
	}
	return classfile.ExceptionHandler{
		StartPC:   uint16(start),
		EndPC:     uint16(end),
		HandlerPC: uint16(handler),
		CatchType: hr.CatchType,
	}, nil
}

func (lay *layout) variable(v *LocalVariableRange) (classfile.LocalVariable, error) {
	out := v.Var
	out.StartPC, out.Length = uint16(lay.length), 0
	if v.Start == NoHandle {
		return out, nil
	}
	start, err := lay.at(v.Start, "local variable start")
	if err != nil {
		return out, err
	}
	out.StartPC = uint16(start)
	if v.End == NoHandle {
		return out, nil
	}
	end, err := lay.end(v.End, "local variable end")
	if err != nil {
		return out, err
	}
	if end < start {
		return out, errors.New(errors.PhaseFinalize, errors.KindMalformed).
			Detail("local variable range [%d, %d) is inverted", start, end).
			Build()
	}
	out.Length = uint16(end - start)
	return out, nil
}

func (lay *layout) frame(f *Frame) (classfile.StackMapFrame, error) {
	out := f.Frame
	pc, err := lay.at(f.At, "stack map frame")
	if err != nil {
		return out, err
	}
	out.Offset = pc
	if out.Locals, err = lay.verificationTypes(f.Frame.Locals, f.LocalRefs); err != nil {
		return out, err
	}
	if out.Stack, err = lay.verificationTypes(f.Frame.Stack, f.StackRefs); err != nil {
		return out, err
	}
	return out, nil
}

func (lay *layout) verificationTypes(vts []classfile.VerificationType, refs []Handle) ([]classfile.VerificationType, error) {
	if len(vts) == 0 {
		return vts, nil
	}
	out := append([]classfile.VerificationType(nil), vts...)
	for i, ref := range refs {
		if ref == NoHandle {
			continue
		}
		pc, err := lay.at(ref, "uninitialized verification type")
		if err != nil {
			return nil, err
		}
		out[i].Value = uint16(pc)
	}
	return out, nil
}
