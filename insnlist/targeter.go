package insnlist

import (
	"github.com/slarse/duplicate-checkcast-remover/classfile"
)

// Targeter is anything that refers to an instruction by identity: branch
// instructions, exception handler ranges, local variable ranges, line
// number entries and stack map frames.
type Targeter interface {
	// References reports whether the targeter currently refers to h.
	References(h Handle) bool
	// UpdateTarget replaces every reference to from with to. It is a no-op
	// when the targeter does not refer to from.
	UpdateTarget(from, to Handle)
}

// Redirect points t at to instead of from. Redirecting a targeter that
// already points at to is a no-op.
func Redirect(t Targeter, from, to Handle) {
	if from == to || !t.References(from) {
		return
	}
	t.UpdateTarget(from, to)
}

// TargetersOf returns every targeter currently referring to h. The set is
// computed on demand by asking each targeter-bearing structure.
func (l *List) TargetersOf(h Handle) []Targeter {
	var out []Targeter
	for b, instr := range l.All() {
		if !instr.IsBranch() {
			continue
		}
		if t := (&Branch{list: l, At: b}); t.References(h) {
			out = append(out, t)
		}
	}
	for _, hr := range l.handlers {
		if hr.References(h) {
			out = append(out, hr)
		}
	}
	for _, vt := range l.vars {
		for _, v := range vt.entries {
			if v.References(h) {
				out = append(out, v)
			}
		}
	}
	for _, lt := range l.lines {
		for _, e := range lt.entries {
			if e.References(h) {
				out = append(out, e)
			}
		}
	}
	if l.frames != nil {
		for _, f := range l.frames.frames {
			if f.References(h) {
				out = append(out, f)
			}
		}
	}
	return out
}

func replace(p *Handle, from, to Handle) {
	if *p == from {
		*p = to
	}
}

// Branch is a branch or switch instruction seen as a targeter.
type Branch struct {
	list *List
	At   Handle
}

// References implements Targeter.
func (b *Branch) References(h Handle) bool {
	for _, t := range b.list.nodes[b.At].instr.Targets {
		if t == h {
			return true
		}
	}
	return false
}

// UpdateTarget implements Targeter.
func (b *Branch) UpdateTarget(from, to Handle) {
	targets := b.list.nodes[b.At].instr.Targets
	for i := range targets {
		replace(&targets[i], from, to)
	}
}

// HandlerRange is an exception table entry. End is inclusive: the range
// covers Start through End.
type HandlerRange struct {
	Start     Handle
	End       Handle
	Handler   Handle
	CatchType uint16
}

// References implements Targeter.
func (r *HandlerRange) References(h Handle) bool {
	return r.Start == h || r.End == h || r.Handler == h
}

// UpdateTarget implements Targeter.
func (r *HandlerRange) UpdateTarget(from, to Handle) {
	replace(&r.Start, from, to)
	replace(&r.End, from, to)
	replace(&r.Handler, from, to)
}

// LocalVariableRange is a LocalVariableTable or LocalVariableTypeTable
// entry. End is inclusive and NoHandle for an empty range. Start is
// NoHandle for an empty range placed at the end of the code.
type LocalVariableRange struct {
	Var   classfile.LocalVariable
	Start Handle
	End   Handle
}

// References implements Targeter.
func (v *LocalVariableRange) References(h Handle) bool {
	return h != NoHandle && (v.Start == h || v.End == h)
}

// UpdateTarget implements Targeter.
func (v *LocalVariableRange) UpdateTarget(from, to Handle) {
	replace(&v.Start, from, to)
	replace(&v.End, from, to)
}

// LineEntry is a LineNumberTable entry.
type LineEntry struct {
	Start Handle
	Line  uint16
}

// References implements Targeter.
func (e *LineEntry) References(h Handle) bool {
	return e.Start == h
}

// UpdateTarget implements Targeter.
func (e *LineEntry) UpdateTarget(from, to Handle) {
	replace(&e.Start, from, to)
}

// Frame is a StackMapTable frame. It refers to the instruction it
// describes and to the new instruction of every uninitialized(offset)
// verification type it carries. LocalRefs and StackRefs run parallel to
// Frame.Locals and Frame.Stack and hold NoHandle for other entries.
type Frame struct {
	Frame     classfile.StackMapFrame
	LocalRefs []Handle
	StackRefs []Handle
	At        Handle
}

// References implements Targeter.
func (f *Frame) References(h Handle) bool {
	if h == NoHandle {
		return false
	}
	if f.At == h {
		return true
	}
	for _, r := range f.LocalRefs {
		if r == h {
			return true
		}
	}
	for _, r := range f.StackRefs {
		if r == h {
			return true
		}
	}
	return false
}

// UpdateTarget implements Targeter.
func (f *Frame) UpdateTarget(from, to Handle) {
	replace(&f.At, from, to)
	for i := range f.LocalRefs {
		replace(&f.LocalRefs[i], from, to)
	}
	for i := range f.StackRefs {
		replace(&f.StackRefs[i], from, to)
	}
}

type lineTable struct {
	entries []*LineEntry
	attr    int
}

type varTable struct {
	entries []*LocalVariableRange
	attr    int
}

type frameTable struct {
	frames []*Frame
	attr   int
}

// Handlers returns the exception table in order.
func (l *List) Handlers() []*HandlerRange {
	return l.handlers
}

// LineEntries returns the entries of every LineNumberTable in order.
func (l *List) LineEntries() []*LineEntry {
	var out []*LineEntry
	for _, lt := range l.lines {
		out = append(out, lt.entries...)
	}
	return out
}

// LocalVariables returns the entries of every LocalVariableTable and
// LocalVariableTypeTable in order.
func (l *List) LocalVariables() []*LocalVariableRange {
	var out []*LocalVariableRange
	for _, vt := range l.vars {
		out = append(out, vt.entries...)
	}
	return out
}

// Frames returns the stack map frames in order.
func (l *List) Frames() []*Frame {
	if l.frames == nil {
		return nil
	}
	return l.frames.frames
}
