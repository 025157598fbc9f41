package insnlist

import (
	"iter"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Handle is the stable identity of an instruction within one List.
// Handles are arena indices; they are never reused, so a handle of a
// deleted instruction stays invalid for the lifetime of the list.
type Handle int32

// NoHandle marks the absence of an instruction.
const NoHandle Handle = -1

// Instruction is an instruction held by a List.
//
// Branches and switches reference their destinations through Targets
// (a switch stores the default first, then one entry per case). Their Imm
// keeps only what is position independent: nil for plain branches, the
// keys and bounds for switches. Relative offsets are recomputed by Finalize.
type Instruction struct {
	Imm     interface{}
	Targets []Handle
	Opcode  byte
}

// IsBranch reports whether the instruction references other instructions.
func (i Instruction) IsBranch() bool {
	return len(i.Targets) > 0
}

type node struct {
	instr  Instruction
	offset int // offset in the loaded bytecode
	prev   Handle
	next   Handle
	live   bool
}

// List is the editable instruction sequence of one method.
//
// A List is created by Load at the start of a method pass and consumed by
// Finalize at its end. It is not safe for concurrent use; independent
// methods use independent lists.
type List struct {
	code     *classfile.Code
	nodes    []node
	handlers []*HandlerRange
	lines    []lineTable
	vars     []varTable
	frames   *frameTable
	head     Handle
	tail     Handle
	length   int
}

// Len returns the number of instructions in the list.
func (l *List) Len() int {
	return l.length
}

// Head returns the first instruction, or NoHandle for an empty list.
func (l *List) Head() Handle {
	return l.head
}

// Tail returns the last instruction, or NoHandle for an empty list.
func (l *List) Tail() Handle {
	return l.tail
}

// Contains reports whether h is an instruction currently in the list.
func (l *List) Contains(h Handle) bool {
	return h >= 0 && int(h) < len(l.nodes) && l.nodes[h].live
}

// At returns the instruction for h. It panics if h was never issued by l.
func (l *List) At(h Handle) Instruction {
	return l.nodes[h].instr
}

// Next returns the successor of h, or NoHandle.
func (l *List) Next(h Handle) Handle {
	if !l.Contains(h) {
		return NoHandle
	}
	return l.nodes[h].next
}

// Prev returns the predecessor of h, or NoHandle.
func (l *List) Prev(h Handle) Handle {
	if !l.Contains(h) {
		return NoHandle
	}
	return l.nodes[h].prev
}

// Offset returns the offset h had in the loaded bytecode.
func (l *List) Offset(h Handle) int {
	return l.nodes[h].offset
}

// All iterates over the instructions in order. Each call starts a new scan
// from the head. The yielded instruction may be deleted during iteration;
// other structural edits invalidate the scan.
func (l *List) All() iter.Seq2[Handle, Instruction] {
	return func(yield func(Handle, Instruction) bool) {
		for h := l.head; h != NoHandle; {
			next := l.nodes[h].next
			if !yield(h, l.nodes[h].instr) {
				return
			}
			h = next
		}
	}
}

// Handles returns the handles in order.
func (l *List) Handles() []Handle {
	out := make([]Handle, 0, l.length)
	for h := range l.All() {
		out = append(out, h)
	}
	return out
}

// Opcodes returns the opcodes in order.
func (l *List) Opcodes() []byte {
	out := make([]byte, 0, l.length)
	for _, instr := range l.All() {
		out = append(out, instr.Opcode)
	}
	return out
}

// Delete removes h. It fails without changing the list when h is not in
// the list or when any targeter still references h; use DeleteRetarget to
// redirect those targeters first.
func (l *List) Delete(h Handle) error {
	if !l.Contains(h) {
		return notInList(h)
	}
	if ts := l.TargetersOf(h); len(ts) > 0 {
		return errors.TargetingViolation("instruction %d (offset %d) is still referenced by %d targeter(s)",
			h, l.nodes[h].offset, len(ts))
	}
	l.unlink(h)
	return nil
}

func (l *List) unlink(h Handle) {
	n := &l.nodes[h]
	if n.prev != NoHandle {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != NoHandle {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = NoHandle, NoHandle
	n.live = false
	l.length--
}

func notInList(h Handle) error {
	return errors.New(errors.PhaseRewrite, errors.KindNotFound).
		Value(h).
		Detail("instruction %d is not in the list", h).
		Build()
}
