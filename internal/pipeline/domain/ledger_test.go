package domain

import (
	"testing"
	"time"

	"orderflow_backend/platform/apperr"
)

func emptyOrderLedger() *Ledger {
	return NewLedger(KindOrder, "order DO-104", make([]Marker, len(OrderStages())))
}

func mustStage(t *testing.T, kind EntityKind, name string) Stage {
	t.Helper()
	s, ok := StageByName(kind, name)
	if !ok {
		t.Fatalf("unknown stage %s for kind %s", name, kind)
	}
	return s
}

func TestLedgerScheduleAndComplete(t *testing.T) {
	l := emptyOrderLedger()
	stockCheck := mustStage(t, KindOrder, StageStockCheck)

	if l.IsPending(stockCheck.Index) {
		t.Fatalf("unscheduled stage must not be pending")
	}

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := l.Schedule(stockCheck, due); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if !l.IsPending(stockCheck.Index) {
		t.Fatalf("scheduled stage must be pending")
	}
	if l.IsDone(stockCheck.Index) {
		t.Fatalf("scheduled stage must not be done")
	}

	done := due.Add(26 * time.Hour)
	if err := l.MarkDone(stockCheck, done); err != nil {
		t.Fatalf("markDone failed: %v", err)
	}
	if !l.IsDone(stockCheck.Index) {
		t.Fatalf("completed stage must be done")
	}
	if l.IsPending(stockCheck.Index) {
		t.Fatalf("completed stage must not be pending")
	}
	if l.CurrentIndex() != 1 {
		t.Fatalf("expected current index 1, got %d", l.CurrentIndex())
	}
}

func TestLedgerRejectsDoubleSchedule(t *testing.T) {
	l := emptyOrderLedger()
	stockCheck := mustStage(t, KindOrder, StageStockCheck)

	due := time.Now()
	if err := l.Schedule(stockCheck, due); err != nil {
		t.Fatalf("first schedule failed: %v", err)
	}

	err := l.Schedule(stockCheck, due.Add(24*time.Hour))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected InvalidTransition conflict, got %v", err)
	}
	// The original planned date must survive the rejected call.
	if got := l.Marker(stockCheck.Index).Planned; got == nil || !got.Equal(due) {
		t.Fatalf("planned date changed after rejected re-schedule")
	}
}

func TestLedgerRejectsCompletionOfUnscheduledStage(t *testing.T) {
	l := emptyOrderLedger()
	accounts := mustStage(t, KindOrder, StageAccountsReceived)

	err := l.MarkDone(accounts, time.Now())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected InvalidTransition conflict, got %v", err)
	}
	if l.Marker(accounts.Index).Actual != nil {
		t.Fatalf("rejected markDone must not write an actual timestamp")
	}
}

func TestLedgerRejectsDoubleCompletion(t *testing.T) {
	l := emptyOrderLedger()
	stockCheck := mustStage(t, KindOrder, StageStockCheck)

	if err := l.Schedule(stockCheck, time.Now()); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	first := time.Now()
	if err := l.MarkDone(stockCheck, first); err != nil {
		t.Fatalf("first markDone failed: %v", err)
	}

	err := l.MarkDone(stockCheck, first.Add(time.Minute))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected InvalidTransition conflict, got %v", err)
	}
	if got := l.Marker(stockCheck.Index).Actual; got == nil || !got.Equal(first) {
		t.Fatalf("actual timestamp changed after rejected double completion")
	}
}

func TestLedgerScheduleRequiresPreviousStageDone(t *testing.T) {
	l := emptyOrderLedger()
	stockCheck := mustStage(t, KindOrder, StageStockCheck)
	accounts := mustStage(t, KindOrder, StageAccountsReceived)

	err := l.Schedule(accounts, time.Now())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected InvalidTransition for out-of-order schedule, got %v", err)
	}

	if err := l.Schedule(stockCheck, time.Now()); err != nil {
		t.Fatalf("schedule stage 1 failed: %v", err)
	}
	// Still illegal: stage 1 is pending, not done.
	if err := l.Schedule(accounts, time.Now()); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected InvalidTransition while previous stage pending, got %v", err)
	}

	if err := l.MarkDone(stockCheck, time.Now()); err != nil {
		t.Fatalf("markDone failed: %v", err)
	}
	if err := l.Schedule(accounts, time.Now()); err != nil {
		t.Fatalf("schedule after previous done failed: %v", err)
	}
}

func TestLedgerValidateCatchesOrphanActual(t *testing.T) {
	now := time.Now()
	markers := make([]Marker, len(OrderStages()))
	markers[2] = Marker{Actual: &now} // actual without planned

	l := NewLedger(KindOrder, "order DO-77", markers)
	if err := l.Validate(); err == nil {
		t.Fatalf("expected validation error for actual without planned")
	}
}

func TestDispatchChainSpansBothTracks(t *testing.T) {
	stages := DispatchStages()
	if len(stages) != 8 {
		t.Fatalf("expected 8 dispatch-event stages, got %d", len(stages))
	}
	for i, s := range stages {
		if s.Index != i {
			t.Fatalf("stage %s has index %d, want %d", s.Name, s.Index, i)
		}
	}
	if stages[3].Track != TrackDispatch || stages[4].Track != TrackPostDelivery {
		t.Fatalf("post-delivery track must begin after Weighed")
	}
}
