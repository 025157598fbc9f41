package insnlist

import (
	"iter"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
)

// Predicate tests a single instruction.
type Predicate func(Instruction) bool

// Opcode matches instructions with the given opcode.
func Opcode(op byte) Predicate {
	return func(i Instruction) bool { return i.Opcode == op }
}

// Pattern matches a run of adjacent instructions, one predicate each.
type Pattern []Predicate

// DuplicateCheckcast matches two adjacent checkcast instructions. Operands
// are not compared.
var DuplicateCheckcast = Pattern{Opcode(classfile.OpCheckcast), Opcode(classfile.OpCheckcast)}

// Match holds the handles of one match in list order.
type Match []Handle

// Find scans the list left to right and yields non-overlapping matches of p.
//
// The scan is lazy and sees edits the consumer makes between matches. When
// the consumer deletes part of a match, scanning resumes at the earliest
// surviving instruction of that match, so a run of N identical instructions
// matched by a two-element pattern is reduced pairwise to a single one.
// Edits other than deleting matched instructions leave the resume position
// unspecified.
func (l *List) Find(p Pattern) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		if len(p) == 0 {
			return
		}
		for h := l.head; h != NoHandle; {
			m, ok := l.matchAt(h, p)
			if !ok {
				h = l.nodes[h].next
				continue
			}
			anchor := l.nodes[m[0]].prev
			if !yield(m) {
				return
			}
			h = l.resume(m, anchor)
		}
	}
}

func (l *List) matchAt(h Handle, p Pattern) (Match, bool) {
	m := make(Match, 0, len(p))
	for _, pred := range p {
		if h == NoHandle || !pred(l.nodes[h].instr) {
			return nil, false
		}
		m = append(m, h)
		h = l.nodes[h].next
	}
	return m, true
}

func (l *List) resume(m Match, anchor Handle) Handle {
	intact := true
	for _, h := range m {
		if !l.Contains(h) {
			intact = false
			break
		}
	}
	if intact {
		return l.nodes[m[len(m)-1]].next
	}
	for _, h := range m {
		if l.Contains(h) {
			return h
		}
	}
	if l.Contains(anchor) {
		return l.nodes[anchor].next
	}
	return l.head
}
