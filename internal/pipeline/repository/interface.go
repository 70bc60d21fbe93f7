package repository

import (
	"context"
	"time"

	"orderflow_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// Order is the database model for a customer order moving through the
// delivery track. Markers holds one planned/actual pair per stage, in
// stage-chain order.
type Order struct {
	ID              int64
	DeliveryOrderNo string
	PONumber        string
	Firm            string
	CustomerName    string
	CustomerPhone   string
	Material        string
	OrderedQty      float64
	DispatchedQty   float64
	PendingQty      float64
	Markers         []domain.Marker
	RowVersion      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ledger builds the stage ledger view of the order.
func (o *Order) Ledger() *domain.Ledger {
	return domain.NewLedger(domain.KindOrder, "order "+o.DeliveryOrderNo, o.Markers)
}

// DispatchEvent is the database model for one partial or full shipment
// against an order. It progresses through the dispatch and post-delivery
// tracks independently of its parent order.
type DispatchEvent struct {
	ID              int64
	OrderID         int64
	DeliveryOrderNo string
	Firm            string
	DispatchNo      string
	LogisticsNo     *string
	InvoiceNo       *string
	BiltyNo         *string
	VehicleNo       *string
	TransporterName *string
	GrossWeight     *float64
	Quantity        float64
	TrackingToken   uuid.UUID
	Markers         []domain.Marker
	RowVersion      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ledger builds the stage ledger view of the dispatch event.
func (d *DispatchEvent) Ledger() *domain.Ledger {
	return domain.NewLedger(domain.KindDispatchEvent, "dispatch "+d.DispatchNo, d.Markers)
}

// CreateOrderParams contains parameters for registering a new order.
type CreateOrderParams struct {
	DeliveryOrderNo string
	PONumber        string
	Firm            string
	CustomerName    string
	CustomerPhone   string
	Material        string
	OrderedQty      float64
	// StockCheckPlanned schedules the first delivery stage at creation.
	StockCheckPlanned time.Time
}

// ListParams contains pagination and search parameters for stage listings.
type ListParams struct {
	Search   string
	Page     int
	PageSize int
}

// ListResult is a paginated stage listing.
type ListResult[T any] struct {
	Items      []T
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// SetPlannedParams schedules a stage on an entity, guarded by the
// entity's row version (optimistic concurrency).
type SetPlannedParams struct {
	ID              int64
	Stage           domain.Stage
	Planned         time.Time
	ExpectedVersion int
}

// CompleteOrderStageParams marks an order stage done, guarded by the row
// version.
type CompleteOrderStageParams struct {
	ID              int64
	Stage           domain.Stage
	At              time.Time
	ExpectedVersion int
}

// CompleteDispatchStageParams marks a dispatch-event stage done. The
// optional fields persist stage-specific payload in the same update;
// MintLogisticsNo asks the repository to atomically draw the next
// logistics number inside the transaction.
type CompleteDispatchStageParams struct {
	ID              int64
	Stage           domain.Stage
	At              time.Time
	ExpectedVersion int
	MintLogisticsNo bool
	InvoiceNo       *string
	BiltyNo         *string
	VehicleNo       *string
	TransporterName *string
	GrossWeight     *float64
}

// RecordDispatchParams persists one dispatch against an order as a single
// transaction: mint the dispatch number, insert the dispatch event, and
// apply the reconciled quantities (and, when the order is exhausted, the
// final-stage completion) to the order row under a row-version check.
type RecordDispatchParams struct {
	OrderID          int64
	ExpectedVersion  int
	Quantity         float64
	VehicleNo        *string
	TransporterName  *string
	NewDispatchedQty float64
	NewPendingQty    float64
	// MarkDispatchDone completes the order's DispatchPlanned stage at At.
	MarkDispatchDone bool
	At               time.Time
	// LoadedPlanned schedules the new dispatch event's first stage.
	LoadedPlanned time.Time
}

// OrderRepository provides persistence for orders.
type OrderRepository interface {
	Create(ctx context.Context, params CreateOrderParams) (Order, error)
	GetByID(ctx context.Context, id int64) (Order, error)
	GetByDeliveryOrderNo(ctx context.Context, deliveryOrderNo string) (Order, error)
	ListPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[Order], error)
	ListDoneAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[Order], error)
	CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error)
	SetStagePlanned(ctx context.Context, params SetPlannedParams) (Order, error)
	CompleteStage(ctx context.Context, params CompleteOrderStageParams) (Order, error)
	RecordDispatch(ctx context.Context, params RecordDispatchParams) (DispatchEvent, Order, error)
}

// DispatchRepository provides persistence for dispatch events.
type DispatchRepository interface {
	GetByID(ctx context.Context, id int64) (DispatchEvent, error)
	GetByTrackingToken(ctx context.Context, token uuid.UUID) (DispatchEvent, error)
	ListByOrder(ctx context.Context, orderID int64) ([]DispatchEvent, error)
	ListPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[DispatchEvent], error)
	ListDoneAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[DispatchEvent], error)
	CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error)
	SetStagePlanned(ctx context.Context, params SetPlannedParams) (DispatchEvent, error)
	CompleteStage(ctx context.Context, params CompleteDispatchStageParams) (DispatchEvent, error)
}

// CounterRepository draws strictly increasing document numbers from named
// series. The increment happens storage-side in a single atomic statement;
// callers never compute the next value from a previous read.
type CounterRepository interface {
	Next(ctx context.Context, series domain.Series) (string, error)
}
