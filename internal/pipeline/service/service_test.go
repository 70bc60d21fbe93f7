package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"orderflow_backend/internal/events"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/platform/apperr"
	"orderflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu             sync.Mutex
	orders         map[int64]repository.Order
	dispatches     map[int64]repository.DispatchEvent
	counters       map[string]int64
	nextOrderID    int64
	nextDispatchID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     make(map[int64]repository.Order),
		dispatches: make(map[int64]repository.DispatchEvent),
		counters:   make(map[string]int64),
	}
}

func copyMarkers(in []domain.Marker) []domain.Marker {
	out := make([]domain.Marker, len(in))
	copy(out, in)
	return out
}

func copyOrder(o repository.Order) repository.Order {
	o.Markers = copyMarkers(o.Markers)
	return o
}

func copyDispatch(d repository.DispatchEvent) repository.DispatchEvent {
	d.Markers = copyMarkers(d.Markers)
	return d
}

func (s *fakeStore) draw(series domain.Series) string {
	s.counters[series.Name]++
	return series.Format(s.counters[series.Name])
}

type fakeOrders struct{ store *fakeStore }

func (r *fakeOrders) Create(_ context.Context, p repository.CreateOrderParams) (repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.nextOrderID++
	markers := make([]domain.Marker, len(domain.OrderStages()))
	planned := p.StockCheckPlanned
	markers[0].Planned = &planned

	o := repository.Order{
		ID:              r.store.nextOrderID,
		DeliveryOrderNo: p.DeliveryOrderNo,
		PONumber:        p.PONumber,
		Firm:            p.Firm,
		CustomerName:    p.CustomerName,
		CustomerPhone:   p.CustomerPhone,
		Material:        p.Material,
		OrderedQty:      p.OrderedQty,
		PendingQty:      p.OrderedQty,
		Markers:         markers,
		RowVersion:      1,
	}
	r.store.orders[o.ID] = o
	return copyOrder(o), nil
}

func (r *fakeOrders) GetByID(_ context.Context, id int64) (repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	return copyOrder(o), nil
}

func (r *fakeOrders) GetByDeliveryOrderNo(_ context.Context, no string) (repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, o := range r.store.orders {
		if o.DeliveryOrderNo == no {
			return copyOrder(o), nil
		}
	}
	return repository.Order{}, apperr.NotFound("order not found")
}

func (r *fakeOrders) visible(scope domain.Scope, stage domain.Stage, pending bool) []repository.Order {
	var out []repository.Order
	for _, o := range r.store.orders {
		if !scope.CanSee(o.Firm) {
			continue
		}
		m := o.Markers[stage.Index]
		if pending && (m.Planned == nil || m.Actual != nil) {
			continue
		}
		if !pending && m.Actual == nil {
			continue
		}
		out = append(out, copyOrder(o))
	}
	return out
}

func (r *fakeOrders) ListPendingAtStage(_ context.Context, scope domain.Scope, stage domain.Stage, _ repository.ListParams) (repository.ListResult[repository.Order], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items := r.visible(scope, stage, true)
	return repository.ListResult[repository.Order]{Items: items, Total: len(items), Page: 1, PageSize: 20}, nil
}

func (r *fakeOrders) ListDoneAtStage(_ context.Context, scope domain.Scope, stage domain.Stage, _ repository.ListParams) (repository.ListResult[repository.Order], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items := r.visible(scope, stage, false)
	return repository.ListResult[repository.Order]{Items: items, Total: len(items), Page: 1, PageSize: 20}, nil
}

func (r *fakeOrders) CountPendingAtStage(_ context.Context, scope domain.Scope, stage domain.Stage) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return len(r.visible(scope, stage, true)), nil
}

func (r *fakeOrders) SetStagePlanned(_ context.Context, p repository.SetPlannedParams) (repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[p.ID]
	if !ok || o.RowVersion != p.ExpectedVersion {
		return repository.Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", p.ID))
	}
	o = copyOrder(o)
	planned := p.Planned
	o.Markers[p.Stage.Index].Planned = &planned
	o.RowVersion++
	r.store.orders[o.ID] = o
	return copyOrder(o), nil
}

func (r *fakeOrders) CompleteStage(_ context.Context, p repository.CompleteOrderStageParams) (repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[p.ID]
	if !ok || o.RowVersion != p.ExpectedVersion {
		return repository.Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", p.ID))
	}
	o = copyOrder(o)
	at := p.At
	o.Markers[p.Stage.Index].Actual = &at
	o.RowVersion++
	r.store.orders[o.ID] = o
	return copyOrder(o), nil
}

func (r *fakeOrders) RecordDispatch(_ context.Context, p repository.RecordDispatchParams) (repository.DispatchEvent, repository.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[p.OrderID]
	if !ok || o.RowVersion != p.ExpectedVersion {
		return repository.DispatchEvent{}, repository.Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", p.OrderID))
	}
	o = copyOrder(o)
	o.DispatchedQty = p.NewDispatchedQty
	o.PendingQty = p.NewPendingQty
	if p.MarkDispatchDone {
		at := p.At
		o.Markers[len(o.Markers)-1].Actual = &at
	}
	o.RowVersion++
	r.store.orders[o.ID] = o

	r.store.nextDispatchID++
	markers := make([]domain.Marker, len(domain.DispatchStages()))
	planned := p.LoadedPlanned
	markers[0].Planned = &planned
	d := repository.DispatchEvent{
		ID:              r.store.nextDispatchID,
		OrderID:         o.ID,
		DeliveryOrderNo: o.DeliveryOrderNo,
		Firm:            o.Firm,
		DispatchNo:      r.store.draw(domain.SeriesDispatch),
		VehicleNo:       p.VehicleNo,
		TransporterName: p.TransporterName,
		Quantity:        p.Quantity,
		TrackingToken:   uuid.New(),
		Markers:         markers,
		RowVersion:      1,
	}
	r.store.dispatches[d.ID] = d
	return copyDispatch(d), copyOrder(o), nil
}

type fakeDispatches struct{ store *fakeStore }

func (r *fakeDispatches) GetByID(_ context.Context, id int64) (repository.DispatchEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.dispatches[id]
	if !ok {
		return repository.DispatchEvent{}, apperr.NotFound("dispatch event not found")
	}
	return copyDispatch(d), nil
}

func (r *fakeDispatches) GetByTrackingToken(_ context.Context, token uuid.UUID) (repository.DispatchEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, d := range r.store.dispatches {
		if d.TrackingToken == token {
			return copyDispatch(d), nil
		}
	}
	return repository.DispatchEvent{}, apperr.NotFound("dispatch event not found")
}

func (r *fakeDispatches) ListByOrder(_ context.Context, orderID int64) ([]repository.DispatchEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []repository.DispatchEvent
	for _, d := range r.store.dispatches {
		if d.OrderID == orderID {
			out = append(out, copyDispatch(d))
		}
	}
	return out, nil
}

func (r *fakeDispatches) visible(scope domain.Scope, stage domain.Stage, pending bool) []repository.DispatchEvent {
	var out []repository.DispatchEvent
	for _, d := range r.store.dispatches {
		if !scope.CanSee(d.Firm) {
			continue
		}
		m := d.Markers[stage.Index]
		if pending && (m.Planned == nil || m.Actual != nil) {
			continue
		}
		if !pending && m.Actual == nil {
			continue
		}
		out = append(out, copyDispatch(d))
	}
	return out
}

func (r *fakeDispatches) ListPendingAtStage(_ context.Context, scope domain.Scope, stage domain.Stage, _ repository.ListParams) (repository.ListResult[repository.DispatchEvent], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items := r.visible(scope, stage, true)
	return repository.ListResult[repository.DispatchEvent]{Items: items, Total: len(items), Page: 1, PageSize: 20}, nil
}

func (r *fakeDispatches) ListDoneAtStage(_ context.Context, scope domain.Scope, stage domain.Stage, _ repository.ListParams) (repository.ListResult[repository.DispatchEvent], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items := r.visible(scope, stage, false)
	return repository.ListResult[repository.DispatchEvent]{Items: items, Total: len(items), Page: 1, PageSize: 20}, nil
}

func (r *fakeDispatches) CountPendingAtStage(_ context.Context, scope domain.Scope, stage domain.Stage) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return len(r.visible(scope, stage, true)), nil
}

func (r *fakeDispatches) SetStagePlanned(_ context.Context, p repository.SetPlannedParams) (repository.DispatchEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.dispatches[p.ID]
	if !ok || d.RowVersion != p.ExpectedVersion {
		return repository.DispatchEvent{}, apperr.Conflict(fmt.Sprintf("dispatch event %d was modified concurrently, please retry", p.ID))
	}
	d = copyDispatch(d)
	planned := p.Planned
	d.Markers[p.Stage.Index].Planned = &planned
	d.RowVersion++
	r.store.dispatches[d.ID] = d
	return copyDispatch(d), nil
}

func (r *fakeDispatches) CompleteStage(_ context.Context, p repository.CompleteDispatchStageParams) (repository.DispatchEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	d, ok := r.store.dispatches[p.ID]
	if !ok || d.RowVersion != p.ExpectedVersion {
		return repository.DispatchEvent{}, apperr.Conflict(fmt.Sprintf("dispatch event %d was modified concurrently, please retry", p.ID))
	}
	d = copyDispatch(d)
	at := p.At
	d.Markers[p.Stage.Index].Actual = &at
	if p.MintLogisticsNo {
		no := r.store.draw(domain.SeriesLogistics)
		d.LogisticsNo = &no
	}
	if p.InvoiceNo != nil {
		d.InvoiceNo = p.InvoiceNo
	}
	if p.BiltyNo != nil {
		d.BiltyNo = p.BiltyNo
	}
	if p.GrossWeight != nil {
		d.GrossWeight = p.GrossWeight
	}
	d.RowVersion++
	r.store.dispatches[d.ID] = d
	return copyDispatch(d), nil
}

type fakeCounters struct{ store *fakeStore }

func (r *fakeCounters) Next(_ context.Context, series domain.Series) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.draw(series), nil
}

type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.EventName()
	}
	return out
}

type fakePipelineCfg struct{ allowOverDispatch bool }

func (c fakePipelineCfg) GetAllowOverDispatch() bool { return c.allowOverDispatch }
func (c fakePipelineCfg) GetTrackingBaseURL() string { return "http://track.test" }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc   *Service
	store *fakeStore
	bus   *captureBus
}

func newHarness(t *testing.T, allowOverDispatch bool) *harness {
	t.Helper()
	store := newFakeStore()
	bus := &captureBus{}
	svc := NewService(
		&fakeOrders{store: store},
		&fakeDispatches{store: store},
		&fakeCounters{store: store},
		bus,
		logger.New("development"),
		fakePipelineCfg{allowOverDispatch: allowOverDispatch},
	)
	svc.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	return &harness{svc: svc, store: store, bus: bus}
}

func operator(firms ...string) domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: "operator", Firms: firms}
}

func (h *harness) createOrder(t *testing.T, actor domain.Actor, qty float64) repository.Order {
	t.Helper()
	order, err := h.svc.CreateOrder(context.Background(), actor, CreateOrderInput{
		DeliveryOrderNo:   "DO-104",
		PONumber:          "PO-889",
		Firm:              "Apex Steels",
		CustomerName:      "Sharma Traders",
		CustomerPhone:     "+911234567890",
		Material:          "TMT bars 12mm",
		OrderedQty:        qty,
		StockCheckPlanned: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

// advanceToDispatchPlanned walks the order through the delivery track up
// to a pending DispatchPlanned stage.
func (h *harness) advanceToDispatchPlanned(t *testing.T, actor domain.Actor, orderID int64) repository.Order {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	var (
		order repository.Order
		err   error
	)
	for _, name := range []string{domain.StageStockCheck, domain.StageAccountsReceived, domain.StageDeliveryReady} {
		if name != domain.StageStockCheck {
			if _, err = h.svc.ScheduleOrderStage(ctx, actor, orderID, name, day); err != nil {
				t.Fatalf("schedule %s: %v", name, err)
			}
		}
		if _, err = h.svc.CompleteOrderStage(ctx, actor, orderID, name); err != nil {
			t.Fatalf("complete %s: %v", name, err)
		}
	}
	if order, err = h.svc.ScheduleOrderStage(ctx, actor, orderID, domain.StageDispatchPlanned, day); err != nil {
		t.Fatalf("schedule %s: %v", domain.StageDispatchPlanned, err)
	}
	return order
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateOrderOutsideScopeIsDenied(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.svc.CreateOrder(context.Background(), operator("Borg Alloys"), CreateOrderInput{
		DeliveryOrderNo: "DO-1", Firm: "Apex Steels", CustomerName: "X", OrderedQty: 10,
		StockCheckPlanned: time.Now(),
	})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestGetOrderOutsideScopeIsForbiddenNotHidden(t *testing.T) {
	h := newHarness(t, false)
	order := h.createOrder(t, operator("Apex Steels"), 100)

	_, err := h.svc.GetOrder(context.Background(), operator("Borg Alloys"), order.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("a scope violation must surface as forbidden, got %v", err)
	}
}

func TestScheduleRequiresPreviousStageComplete(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)

	_, err := h.svc.ScheduleOrderStage(context.Background(), actor, order.ID, domain.StageAccountsReceived, time.Now())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("scheduling past an incomplete stage must be rejected, got %v", err)
	}
}

func TestCompleteStageTwiceIsRejected(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	ctx := context.Background()

	if _, err := h.svc.CompleteOrderStage(ctx, actor, order.ID, domain.StageStockCheck); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := h.svc.CompleteOrderStage(ctx, actor, order.ID, domain.StageStockCheck)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second completion must be rejected, got %v", err)
	}
}

func TestFinalOrderStageCannotBeCompletedDirectly(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)

	_, err := h.svc.CompleteOrderStage(context.Background(), actor, order.ID, domain.StageDispatchPlanned)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("direct completion of the dispatch stage must be rejected, got %v", err)
	}
}

func TestRecordDispatchBeforeDispatchStageIsRejected(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)

	_, _, err := h.svc.RecordDispatch(context.Background(), actor, order.ID, RecordDispatchInput{Quantity: 10})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("dispatch before reaching the dispatch stage must be rejected, got %v", err)
	}
}

func TestRecordDispatchPartialThenFull(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)
	ctx := context.Background()

	d1, updated, err := h.svc.RecordDispatch(ctx, actor, order.ID, RecordDispatchInput{Quantity: 40, VehicleNo: "MH12AB1234"})
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if d1.DispatchNo != "D-01" {
		t.Fatalf("first dispatch number = %q, want D-01", d1.DispatchNo)
	}
	if updated.DispatchedQty != 40 || updated.PendingQty != 60 {
		t.Fatalf("after first dispatch: dispatched %v pending %v, want 40/60", updated.DispatchedQty, updated.PendingQty)
	}
	if updated.Ledger().Complete() {
		t.Fatalf("order must not be complete after a partial dispatch")
	}

	d2, updated, err := h.svc.RecordDispatch(ctx, actor, order.ID, RecordDispatchInput{Quantity: 60})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if d2.DispatchNo != "D-02" {
		t.Fatalf("second dispatch number = %q, want D-02", d2.DispatchNo)
	}
	if updated.DispatchedQty != 100 || updated.PendingQty != 0 {
		t.Fatalf("after full dispatch: dispatched %v pending %v, want 100/0", updated.DispatchedQty, updated.PendingQty)
	}
	if !updated.Ledger().Complete() {
		t.Fatalf("exhausting the order must complete its delivery track")
	}

	var sawFulfilled bool
	for _, name := range h.bus.names() {
		if name == (events.OrderFulfilled{}).EventName() {
			sawFulfilled = true
		}
	}
	if !sawFulfilled {
		t.Fatalf("expected an order-fulfilled event, got %v", h.bus.names())
	}
}

func TestOverDispatchIsRejectedAndStateUnchanged(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)
	ctx := context.Background()

	if _, _, err := h.svc.RecordDispatch(ctx, actor, order.ID, RecordDispatchInput{Quantity: 40}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	_, _, err := h.svc.RecordDispatch(ctx, actor, order.ID, RecordDispatchInput{Quantity: 70})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("over-dispatch must be rejected, got %v", err)
	}

	after, err := h.svc.GetOrder(ctx, actor, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if after.DispatchedQty != 40 || after.PendingQty != 60 {
		t.Fatalf("a rejected dispatch must leave quantities unchanged, got %v/%v", after.DispatchedQty, after.PendingQty)
	}
}

func TestOverDispatchPermittedWhenPolicyDisabled(t *testing.T) {
	h := newHarness(t, true)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)

	_, updated, err := h.svc.RecordDispatch(context.Background(), actor, order.ID, RecordDispatchInput{Quantity: 130})
	if err != nil {
		t.Fatalf("over-dispatch with the guard off: %v", err)
	}
	if updated.PendingQty != 0 {
		t.Fatalf("pending must clamp to zero, got %v", updated.PendingQty)
	}
	if !updated.Ledger().Complete() {
		t.Fatalf("an over-dispatch still exhausts the order")
	}
}

func TestDispatchChainPayloadsAndLogisticsNumber(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)
	ctx := context.Background()

	dispatch, _, err := h.svc.RecordDispatch(ctx, actor, order.ID, RecordDispatchInput{Quantity: 100})
	if err != nil {
		t.Fatalf("RecordDispatch: %v", err)
	}

	day := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)

	// Invoicing before logistics assignment jumps the chain.
	if _, err := h.svc.ScheduleDispatchStage(ctx, actor, dispatch.ID, domain.StageInvoiced, day); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("scheduling Invoiced before LogisticsAssigned must be rejected, got %v", err)
	}

	if _, err := h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageLoaded, CompleteDispatchInput{}); err != nil {
		t.Fatalf("complete Loaded: %v", err)
	}
	if _, err := h.svc.ScheduleDispatchStage(ctx, actor, dispatch.ID, domain.StageLogisticsAssigned, day); err != nil {
		t.Fatalf("schedule LogisticsAssigned: %v", err)
	}
	updated, err := h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageLogisticsAssigned, CompleteDispatchInput{})
	if err != nil {
		t.Fatalf("complete LogisticsAssigned: %v", err)
	}
	if updated.LogisticsNo == nil || *updated.LogisticsNo != "LGST-001" {
		t.Fatalf("logistics number = %v, want LGST-001", updated.LogisticsNo)
	}

	if _, err := h.svc.ScheduleDispatchStage(ctx, actor, dispatch.ID, domain.StageInvoiced, day); err != nil {
		t.Fatalf("schedule Invoiced: %v", err)
	}
	if _, err := h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageInvoiced, CompleteDispatchInput{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Invoiced without an invoice number must be rejected, got %v", err)
	}
	if _, err := h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageInvoiced, CompleteDispatchInput{InvoiceNo: "INV-2025-104"}); err != nil {
		t.Fatalf("complete Invoiced: %v", err)
	}

	if _, err := h.svc.ScheduleDispatchStage(ctx, actor, dispatch.ID, domain.StageWeighed, day); err != nil {
		t.Fatalf("schedule Weighed: %v", err)
	}
	if _, err := h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageWeighed, CompleteDispatchInput{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Weighed without a gross weight must be rejected, got %v", err)
	}
	updated, err = h.svc.CompleteDispatchStage(ctx, actor, dispatch.ID, domain.StageWeighed, CompleteDispatchInput{GrossWeight: 18.4})
	if err != nil {
		t.Fatalf("complete Weighed: %v", err)
	}
	if updated.GrossWeight == nil || *updated.GrossWeight != 18.4 {
		t.Fatalf("gross weight not persisted: %v", updated.GrossWeight)
	}
}

func TestTrackDispatchByToken(t *testing.T) {
	h := newHarness(t, false)
	actor := operator("Apex Steels")
	order := h.createOrder(t, actor, 100)
	h.advanceToDispatchPlanned(t, actor, order.ID)

	dispatch, _, err := h.svc.RecordDispatch(context.Background(), actor, order.ID, RecordDispatchInput{Quantity: 100})
	if err != nil {
		t.Fatalf("RecordDispatch: %v", err)
	}

	tracked, err := h.svc.TrackDispatch(context.Background(), dispatch.TrackingToken)
	if err != nil {
		t.Fatalf("TrackDispatch: %v", err)
	}
	if tracked.DispatchNo != dispatch.DispatchNo {
		t.Fatalf("tracked %q, want %q", tracked.DispatchNo, dispatch.DispatchNo)
	}

	url := h.svc.TrackingURL(dispatch)
	want := "http://track.test/track/" + dispatch.TrackingToken.String()
	if url != want {
		t.Fatalf("tracking URL = %q, want %q", url, want)
	}
}
