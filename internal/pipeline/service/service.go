// Package service implements the fulfillment pipeline engine: order
// intake, stage transitions, dispatch recording with quantity
// reconciliation, and tenant-scoped reads.
package service

import (
	"context"
	"time"

	"orderflow_backend/internal/events"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/platform/apperr"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/logger"
	"orderflow_backend/platform/phone"
)

// Service orchestrates pipeline operations. All writes follow the same
// shape: load the entity, check visibility, validate the transition
// against the stage ledger, persist under the row-version guard, publish.
type Service struct {
	orders          repository.OrderRepository
	dispatches      repository.DispatchRepository
	counters        repository.CounterRepository
	bus             events.Bus
	log             *logger.Logger
	policy          domain.ReconcilePolicy
	trackingBaseURL string
	now             func() time.Time
}

// NewService creates the pipeline service.
func NewService(
	orders repository.OrderRepository,
	dispatches repository.DispatchRepository,
	counters repository.CounterRepository,
	bus events.Bus,
	log *logger.Logger,
	cfg config.PipelineConfig,
) *Service {
	return &Service{
		orders:          orders,
		dispatches:      dispatches,
		counters:        counters,
		bus:             bus,
		log:             log,
		policy:          domain.ReconcilePolicy{AllowOverDispatch: cfg.GetAllowOverDispatch()},
		trackingBaseURL: cfg.GetTrackingBaseURL(),
		now:             time.Now,
	}
}

// requireVisible enforces the tenant scope on a loaded entity. Violations
// are logged for audit and reported as authorization failures, never
// flattened into a not-found.
func (s *Service) requireVisible(ctx context.Context, actor domain.Actor, kind domain.EntityKind, id int64, firm string) error {
	if domain.ScopeFor(actor).CanSee(firm) {
		return nil
	}
	s.log.WithContext(ctx).VisibilityDenied(actor.ID.String(), string(kind), id, firm)
	return apperr.NotVisible("%s %d belongs to firm %s, which is outside your visibility", kind, id, firm)
}

// CreateOrderInput is the intake payload for a new customer order.
type CreateOrderInput struct {
	DeliveryOrderNo   string
	PONumber          string
	Firm              string
	CustomerName      string
	CustomerPhone     string
	Material          string
	OrderedQty        float64
	StockCheckPlanned time.Time
}

// CreateOrder registers a new order and schedules its first delivery
// stage. The actor must be able to see the firm the order belongs to.
func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, input CreateOrderInput) (repository.Order, error) {
	if input.OrderedQty <= 0 {
		return repository.Order{}, apperr.Validation("ordered quantity must be positive")
	}
	if !domain.ScopeFor(actor).CanSee(input.Firm) {
		s.log.WithContext(ctx).VisibilityDenied(actor.ID.String(), string(domain.KindOrder), 0, input.Firm)
		return repository.Order{}, apperr.NotVisible("cannot create an order for firm %s, which is outside your visibility", input.Firm)
	}

	order, err := s.orders.Create(ctx, repository.CreateOrderParams{
		DeliveryOrderNo:   input.DeliveryOrderNo,
		PONumber:          input.PONumber,
		Firm:              input.Firm,
		CustomerName:      input.CustomerName,
		CustomerPhone:     phone.NormalizeE164(input.CustomerPhone),
		Material:          input.Material,
		OrderedQty:        input.OrderedQty,
		StockCheckPlanned: input.StockCheckPlanned,
	})
	if err != nil {
		return repository.Order{}, err
	}

	s.bus.Publish(ctx, events.OrderCreated{
		BaseEvent:       events.NewBaseEvent(),
		OrderID:         order.ID,
		DeliveryOrderNo: order.DeliveryOrderNo,
		Firm:            order.Firm,
		CustomerName:    order.CustomerName,
		OrderedQty:      order.OrderedQty,
	})
	s.publishScheduled(ctx, actor, domain.KindOrder, order.ID, order.Firm, domain.StageStockCheck)

	return order, nil
}

// GetOrder retrieves a single order the actor is allowed to see.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, id int64) (repository.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return repository.Order{}, err
	}
	if err := s.requireVisible(ctx, actor, domain.KindOrder, order.ID, order.Firm); err != nil {
		return repository.Order{}, err
	}
	return order, nil
}

// OrderDetail is an order together with its recorded dispatch events.
type OrderDetail struct {
	Order      repository.Order
	Dispatches []repository.DispatchEvent
}

// GetOrderDetail retrieves an order with its full dispatch history.
func (s *Service) GetOrderDetail(ctx context.Context, actor domain.Actor, id int64) (OrderDetail, error) {
	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return OrderDetail{}, err
	}
	dispatches, err := s.dispatches.ListByOrder(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, err
	}
	return OrderDetail{Order: order, Dispatches: dispatches}, nil
}

// ListOrdersAtStage lists visible orders pending or done at a stage.
func (s *Service) ListOrdersAtStage(ctx context.Context, actor domain.Actor, stageName string, pending bool, params repository.ListParams) (repository.ListResult[repository.Order], error) {
	stage, ok := domain.StageByName(domain.KindOrder, stageName)
	if !ok {
		return repository.ListResult[repository.Order]{}, apperr.Validation("unknown order stage: " + stageName)
	}
	scope := domain.ScopeFor(actor)
	if pending {
		return s.orders.ListPendingAtStage(ctx, scope, stage, params)
	}
	return s.orders.ListDoneAtStage(ctx, scope, stage, params)
}

// ScheduleOrderStage sets the planned date of an order stage. The
// transition is validated against the stage ledger before anything is
// written; scheduling out of sequence or re-scheduling is rejected.
func (s *Service) ScheduleOrderStage(ctx context.Context, actor domain.Actor, orderID int64, stageName string, planned time.Time) (repository.Order, error) {
	stage, ok := domain.StageByName(domain.KindOrder, stageName)
	if !ok {
		return repository.Order{}, apperr.Validation("unknown order stage: " + stageName)
	}

	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return repository.Order{}, err
	}
	if err := order.Ledger().Schedule(stage, planned); err != nil {
		return repository.Order{}, err
	}

	updated, err := s.orders.SetStagePlanned(ctx, repository.SetPlannedParams{
		ID:              order.ID,
		Stage:           stage,
		Planned:         planned,
		ExpectedVersion: order.RowVersion,
	})
	if err != nil {
		return repository.Order{}, err
	}

	s.publishScheduled(ctx, actor, domain.KindOrder, updated.ID, updated.Firm, stage.Name)
	return updated, nil
}

// CompleteOrderStage marks an order stage done. The final delivery stage
// is completed only by dispatch recording, when the pending quantity
// reaches zero; completing it by hand would desynchronize the ledger from
// the quantity picture.
func (s *Service) CompleteOrderStage(ctx context.Context, actor domain.Actor, orderID int64, stageName string) (repository.Order, error) {
	stage, ok := domain.StageByName(domain.KindOrder, stageName)
	if !ok {
		return repository.Order{}, apperr.Validation("unknown order stage: " + stageName)
	}
	if stage.Name == domain.StageDispatchPlanned {
		return repository.Order{}, apperr.InvalidTransition("stage %s completes through dispatch recording, not directly", stage.Name)
	}

	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return repository.Order{}, err
	}
	at := s.now()
	if err := order.Ledger().MarkDone(stage, at); err != nil {
		return repository.Order{}, err
	}

	updated, err := s.orders.CompleteStage(ctx, repository.CompleteOrderStageParams{
		ID:              order.ID,
		Stage:           stage,
		At:              at,
		ExpectedVersion: order.RowVersion,
	})
	if err != nil {
		return repository.Order{}, err
	}

	s.publishCompleted(ctx, actor, domain.KindOrder, updated.ID, updated.Firm, stage.Name)
	return updated, nil
}

// RecordDispatchInput is the payload for recording one dispatch against
// an order.
type RecordDispatchInput struct {
	Quantity        float64
	VehicleNo       string
	TransporterName string
	// LoadedPlanned schedules the new dispatch event's first stage. Zero
	// means "now".
	LoadedPlanned time.Time
}

// RecordDispatch records a partial or full shipment against an order.
// The order must be pending at its final delivery stage. The dispatch
// number draw, the event insert and the order's quantity update commit
// in one transaction; when the dispatch exhausts the order, the same
// transaction completes the order's delivery track.
func (s *Service) RecordDispatch(ctx context.Context, actor domain.Actor, orderID int64, input RecordDispatchInput) (repository.DispatchEvent, repository.Order, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return repository.DispatchEvent{}, repository.Order{}, err
	}

	dispatchStage := domain.OrderStages()[len(domain.OrderStages())-1]
	ledger := order.Ledger()
	if !ledger.IsReached(dispatchStage.Index) {
		return repository.DispatchEvent{}, repository.Order{}, apperr.InvalidTransition(
			"order %s has not reached stage %s, cannot record a dispatch", order.DeliveryOrderNo, dispatchStage.Name)
	}
	if ledger.IsDone(dispatchStage.Index) {
		return repository.DispatchEvent{}, repository.Order{}, apperr.InvalidTransition(
			"order %s is fully dispatched, stage %s is complete", order.DeliveryOrderNo, dispatchStage.Name)
	}

	state, fulfilled, err := domain.Reconcile(order.OrderedQty, order.DispatchedQty, input.Quantity, s.policy)
	if err != nil {
		return repository.DispatchEvent{}, repository.Order{}, err
	}

	at := s.now()
	loadedPlanned := input.LoadedPlanned
	if loadedPlanned.IsZero() {
		loadedPlanned = at
	}

	var vehicleNo, transporterName *string
	if input.VehicleNo != "" {
		vehicleNo = &input.VehicleNo
	}
	if input.TransporterName != "" {
		transporterName = &input.TransporterName
	}

	dispatch, updated, err := s.orders.RecordDispatch(ctx, repository.RecordDispatchParams{
		OrderID:          order.ID,
		ExpectedVersion:  order.RowVersion,
		Quantity:         input.Quantity,
		VehicleNo:        vehicleNo,
		TransporterName:  transporterName,
		NewDispatchedQty: state.Dispatched,
		NewPendingQty:    state.Pending,
		MarkDispatchDone: fulfilled,
		At:               at,
		LoadedPlanned:    loadedPlanned,
	})
	if err != nil {
		return repository.DispatchEvent{}, repository.Order{}, err
	}

	s.bus.Publish(ctx, events.DispatchRecorded{
		BaseEvent:       events.NewBaseEvent(),
		OrderID:         updated.ID,
		DispatchEventID: dispatch.ID,
		DeliveryOrderNo: updated.DeliveryOrderNo,
		DispatchNo:      dispatch.DispatchNo,
		Firm:            updated.Firm,
		Quantity:        dispatch.Quantity,
		PendingQty:      updated.PendingQty,
		ActorID:         actor.ID,
	})
	s.publishScheduled(ctx, actor, domain.KindDispatchEvent, dispatch.ID, dispatch.Firm, domain.StageLoaded)
	if fulfilled {
		s.publishCompleted(ctx, actor, domain.KindOrder, updated.ID, updated.Firm, dispatchStage.Name)
		s.bus.Publish(ctx, events.OrderFulfilled{
			BaseEvent:       events.NewBaseEvent(),
			OrderID:         updated.ID,
			DeliveryOrderNo: updated.DeliveryOrderNo,
			Firm:            updated.Firm,
			CustomerName:    updated.CustomerName,
			OrderedQty:      updated.OrderedQty,
		})
	}

	return dispatch, updated, nil
}

func (s *Service) publishScheduled(ctx context.Context, actor domain.Actor, kind domain.EntityKind, id int64, firm, stageName string) {
	s.bus.Publish(ctx, events.StageScheduled{
		BaseEvent:  events.NewBaseEvent(),
		EntityKind: string(kind),
		EntityID:   id,
		Firm:       firm,
		Stage:      stageName,
		ActorID:    actor.ID,
	})
}

func (s *Service) publishCompleted(ctx context.Context, actor domain.Actor, kind domain.EntityKind, id int64, firm, stageName string) {
	s.bus.Publish(ctx, events.StageCompleted{
		BaseEvent:  events.NewBaseEvent(),
		EntityKind: string(kind),
		EntityID:   id,
		Firm:       firm,
		Stage:      stageName,
		ActorID:    actor.ID,
	})
}
