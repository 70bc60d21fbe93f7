package domain

import (
	"strconv"

	"orderflow_backend/platform/apperr"
)

// QtyEpsilon absorbs floating rounding when comparing dispatched and
// ordered quantities.
const QtyEpsilon = 0.01

// QuantityState is the reconciled quantity picture of an order.
// Invariant: Ordered == Dispatched + Pending, with Pending never negative.
type QuantityState struct {
	Ordered    float64
	Dispatched float64
	Pending    float64
}

// ReconcilePolicy carries the over-dispatch policy flag. The guard is ON
// by default; the flag exists because some sites insist on recording more
// than the pending quantity.
type ReconcilePolicy struct {
	AllowOverDispatch bool
}

// Reconcile applies a dispatch of qty units to an order with the given
// ordered and already-dispatched quantities. It returns the new quantity
// state and whether this dispatch exhausts the order (pending reaches
// zero, making the order's final delivery stage complete).
func Reconcile(ordered, dispatched, qty float64, policy ReconcilePolicy) (QuantityState, bool, error) {
	if qty <= 0 {
		return QuantityState{}, false, apperr.Validation("dispatch quantity must be positive, got " + formatQty(qty))
	}

	newDispatched := dispatched + qty
	newPending := ordered - newDispatched

	if newPending < -QtyEpsilon && !policy.AllowOverDispatch {
		return QuantityState{}, false, apperr.OverDispatch(
			"dispatch of %s exceeds pending quantity %s (ordered %s, already dispatched %s)",
			formatQty(qty), formatQty(ordered-dispatched), formatQty(ordered), formatQty(dispatched),
		)
	}

	fulfilled := newPending <= QtyEpsilon
	if fulfilled {
		// Clamp away the residual so the stored pending quantity is exactly
		// zero, never negative. The dispatch event rows keep the true
		// per-event quantities, so nothing is lost for the audit trail.
		newPending = 0
		newDispatched = ordered
	}

	return QuantityState{Ordered: ordered, Dispatched: newDispatched, Pending: newPending}, fulfilled, nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
