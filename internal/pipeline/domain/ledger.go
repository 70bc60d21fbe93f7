package domain

import (
	"time"

	"orderflow_backend/platform/apperr"
)

// Marker is one planned/actual pair of a stage ledger. Planned is a date
// meaning "actionable on or after"; Actual is the completion instant.
// Actual may only be set when Planned is set.
type Marker struct {
	Planned *time.Time
	Actual  *time.Time
}

// Ledger is the per-entity record of stage markers, the single source of
// truth for "where is this entity in its pipeline". Index positions match
// the Stage.Index values of the entity kind's stage chain.
type Ledger struct {
	kind    EntityKind
	label   string // human-readable entity reference for error messages
	markers []Marker
}

// NewLedger builds a ledger over the given markers. label identifies the
// entity (e.g. "order DO-104") in every error the ledger produces.
func NewLedger(kind EntityKind, label string, markers []Marker) *Ledger {
	return &Ledger{kind: kind, label: label, markers: markers}
}

// Markers returns a copy of the current marker state.
func (l *Ledger) Markers() []Marker {
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// Marker returns the marker at the given stage index.
func (l *Ledger) Marker(index int) Marker {
	return l.markers[index]
}

// IsPending reports whether the stage is scheduled but not completed.
func (l *Ledger) IsPending(index int) bool {
	m := l.markers[index]
	return m.Planned != nil && m.Actual == nil
}

// IsDone reports whether the stage is completed.
func (l *Ledger) IsDone(index int) bool {
	m := l.markers[index]
	return m.Planned != nil && m.Actual != nil
}

// IsReached reports whether the stage has been scheduled at all.
func (l *Ledger) IsReached(index int) bool {
	return l.markers[index].Planned != nil
}

// CurrentIndex returns the index of the first stage that is not done, or
// the chain length when every stage is complete.
func (l *Ledger) CurrentIndex() int {
	for i := range l.markers {
		if !l.IsDone(i) {
			return i
		}
	}
	return len(l.markers)
}

// Complete reports whether every stage of the chain is done.
func (l *Ledger) Complete() bool {
	return l.CurrentIndex() == len(l.markers)
}

// Schedule sets the planned date of a stage. Re-scheduling an already
// scheduled stage is rejected; silently replacing a planned date would
// lose the audit trail, so corrections must go through a dedicated path.
func (l *Ledger) Schedule(stage Stage, plannedDate time.Time) error {
	if l.markers[stage.Index].Planned != nil {
		return apperr.InvalidTransition("stage %s of %s is already scheduled", stage.Name, l.label)
	}
	if stage.Index > 0 && !l.IsDone(stage.Index-1) {
		prev := StagesFor(l.kind)[stage.Index-1]
		return apperr.InvalidTransition("cannot schedule stage %s of %s: stage %s is not complete", stage.Name, l.label, prev.Name)
	}
	l.markers[stage.Index].Planned = &plannedDate
	return nil
}

// MarkDone sets the actual completion timestamp of a stage. Completing an
// unscheduled stage or completing a stage twice is an invalid transition.
func (l *Ledger) MarkDone(stage Stage, at time.Time) error {
	m := l.markers[stage.Index]
	if m.Planned == nil {
		return apperr.InvalidTransition("stage %s of %s is not scheduled", stage.Name, l.label)
	}
	if m.Actual != nil {
		return apperr.InvalidTransition("stage %s of %s is already complete", stage.Name, l.label)
	}
	l.markers[stage.Index].Actual = &at
	return nil
}

// Validate checks the referential completeness invariant: an actual
// timestamp may only exist where a planned date exists.
func (l *Ledger) Validate() error {
	for i, m := range l.markers {
		if m.Actual != nil && m.Planned == nil {
			stage := StagesFor(l.kind)[i]
			return apperr.Internal("stage " + stage.Name + " of " + l.label + " has an actual timestamp without a planned date")
		}
	}
	return nil
}
