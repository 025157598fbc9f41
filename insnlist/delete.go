package insnlist

import (
	"go.uber.org/zap"

	"github.com/slarse/duplicate-checkcast-remover/errors"
)

// Deletion is a planned removal of one instruction. It is created by
// PlanDelete and applied by Commit. Between the two the caller may inspect
// the targeters that will be redirected.
type Deletion struct {
	list      *List
	targeters []Targeter
	target    Handle
	to        Handle
	committed bool
}

// PlanDelete prepares the removal of h, redirecting every targeter of h to
// to. Nothing is modified until Commit.
func (l *List) PlanDelete(h, to Handle) (*Deletion, error) {
	if !l.Contains(h) {
		return nil, notInList(h)
	}
	if !l.Contains(to) {
		return nil, notInList(to)
	}
	if h == to {
		return nil, errors.TargetingViolation("cannot redirect instruction %d to itself", h)
	}
	return &Deletion{
		list:      l,
		targeters: l.TargetersOf(h),
		target:    h,
		to:        to,
	}, nil
}

// Target returns the instruction to be removed.
func (d *Deletion) Target() Handle { return d.target }

// Replacement returns the instruction that takes over the references.
func (d *Deletion) Replacement() Handle { return d.to }

// Targeters returns the targeters captured when the deletion was planned.
func (d *Deletion) Targeters() []Targeter { return d.targeters }

// Commit redirects the planned targeters and unlinks the target.
//
// It fails without modifying the list when either instruction has left the
// list or when the set of targeters changed since PlanDelete. A Deletion
// can be committed once.
func (d *Deletion) Commit() error {
	l := d.list
	if d.committed {
		return errors.New(errors.PhaseRewrite, errors.KindTargetingViolation).
			Value(d.target).
			Detail("deletion of instruction %d was already committed", d.target).
			Build()
	}
	if !l.Contains(d.target) {
		return notInList(d.target)
	}
	if !l.Contains(d.to) {
		return notInList(d.to)
	}
	if current := l.TargetersOf(d.target); !sameTargeters(current, d.targeters) {
		return errors.TargetingViolation("targeters of instruction %d changed since the deletion was planned (%d planned, %d now)",
			d.target, len(d.targeters), len(current))
	}

	for _, t := range d.targeters {
		Redirect(t, d.target, d.to)
		if t.References(d.target) {
			return errors.TargetingViolation("%T still references instruction %d after redirection", t, d.target)
		}
	}
	l.unlink(d.target)
	d.committed = true

	Logger().Debug("deleted instruction",
		zap.Int32("handle", int32(d.target)),
		zap.Int32("redirected_to", int32(d.to)),
		zap.Int("offset", l.nodes[d.target].offset),
		zap.Int("targeters", len(d.targeters)))
	return nil
}

// DeleteRetarget removes h after redirecting its targeters to to.
func (l *List) DeleteRetarget(h, to Handle) error {
	d, err := l.PlanDelete(h, to)
	if err != nil {
		return err
	}
	return d.Commit()
}

func sameTargeters(a, b []Targeter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameTargeter(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameTargeter compares identity. Branch views are created per lookup, so
// they are compared by the instruction they wrap.
func sameTargeter(a, b Targeter) bool {
	ba, ok := a.(*Branch)
	if !ok {
		return a == b
	}
	bb, ok := b.(*Branch)
	return ok && ba.list == bb.list && ba.At == bb.At
}
