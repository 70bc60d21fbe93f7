// Package transport defines the HTTP request and response shapes of the
// pipeline module.
package transport

import (
	"time"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/pipeline/repository"
)

// CreateOrderRequest registers a new customer order.
type CreateOrderRequest struct {
	DeliveryOrderNo   string    `json:"deliveryOrderNo" validate:"required,max=64"`
	PONumber          string    `json:"poNumber" validate:"max=64"`
	Firm              string    `json:"firm" validate:"required,max=128"`
	CustomerName      string    `json:"customerName" validate:"required,max=255"`
	CustomerPhone     string    `json:"customerPhone" validate:"max=32"`
	Material          string    `json:"material" validate:"max=255"`
	OrderedQty        float64   `json:"orderedQty" validate:"required,gt=0"`
	StockCheckPlanned time.Time `json:"stockCheckPlanned" validate:"required"`
}

// ScheduleStageRequest sets the planned date of a stage.
type ScheduleStageRequest struct {
	Stage   string    `json:"stage" validate:"required"`
	Planned time.Time `json:"planned" validate:"required"`
}

// CompleteStageRequest marks an order stage done.
type CompleteStageRequest struct {
	Stage string `json:"stage" validate:"required"`
}

// RecordDispatchRequest records one dispatch against an order.
type RecordDispatchRequest struct {
	Quantity        float64    `json:"quantity" validate:"required,gt=0"`
	VehicleNo       string     `json:"vehicleNo" validate:"max=32"`
	TransporterName string     `json:"transporterName" validate:"max=255"`
	LoadedPlanned   *time.Time `json:"loadedPlanned"`
}

// CompleteDispatchStageRequest marks a dispatch-event stage done with its
// stage-specific payload.
type CompleteDispatchStageRequest struct {
	Stage           string  `json:"stage" validate:"required"`
	InvoiceNo       string  `json:"invoiceNo" validate:"max=64"`
	BiltyNo         string  `json:"biltyNo" validate:"max=64"`
	VehicleNo       string  `json:"vehicleNo" validate:"max=32"`
	TransporterName string  `json:"transporterName" validate:"max=255"`
	GrossWeight     float64 `json:"grossWeight" validate:"gte=0"`
}

// StageView is one stage of an entity's ledger as presented to clients.
type StageView struct {
	Name    string     `json:"name"`
	Track   string     `json:"track"`
	Planned *time.Time `json:"planned"`
	Actual  *time.Time `json:"actual"`
	Pending bool       `json:"pending"`
	Done    bool       `json:"done"`
}

func stageViews(stages []domain.Stage, markers []domain.Marker) []StageView {
	out := make([]StageView, len(stages))
	for i, s := range stages {
		m := markers[i]
		out[i] = StageView{
			Name:    s.Name,
			Track:   string(s.Track),
			Planned: m.Planned,
			Actual:  m.Actual,
			Pending: m.Planned != nil && m.Actual == nil,
			Done:    m.Planned != nil && m.Actual != nil,
		}
	}
	return out
}

func currentStage(stages []domain.Stage, markers []domain.Marker) string {
	for i := range markers {
		if markers[i].Planned == nil || markers[i].Actual == nil {
			return stages[i].Name
		}
	}
	return ""
}

// OrderResponse is the client view of an order.
type OrderResponse struct {
	ID              int64       `json:"id"`
	DeliveryOrderNo string      `json:"deliveryOrderNo"`
	PONumber        string      `json:"poNumber"`
	Firm            string      `json:"firm"`
	CustomerName    string      `json:"customerName"`
	CustomerPhone   string      `json:"customerPhone"`
	Material        string      `json:"material"`
	OrderedQty      float64     `json:"orderedQty"`
	DispatchedQty   float64     `json:"dispatchedQty"`
	PendingQty      float64     `json:"pendingQty"`
	CurrentStage    string      `json:"currentStage"`
	Stages          []StageView `json:"stages"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// NewOrderResponse maps an order model to its client view.
func NewOrderResponse(o repository.Order) OrderResponse {
	stages := domain.OrderStages()
	return OrderResponse{
		ID:              o.ID,
		DeliveryOrderNo: o.DeliveryOrderNo,
		PONumber:        o.PONumber,
		Firm:            o.Firm,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		Material:        o.Material,
		OrderedQty:      o.OrderedQty,
		DispatchedQty:   o.DispatchedQty,
		PendingQty:      o.PendingQty,
		CurrentStage:    currentStage(stages, o.Markers),
		Stages:          stageViews(stages, o.Markers),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// DispatchResponse is the client view of a dispatch event.
type DispatchResponse struct {
	ID              int64       `json:"id"`
	OrderID         int64       `json:"orderId"`
	DeliveryOrderNo string      `json:"deliveryOrderNo"`
	Firm            string      `json:"firm"`
	DispatchNo      string      `json:"dispatchNo"`
	LogisticsNo     *string     `json:"logisticsNo"`
	InvoiceNo       *string     `json:"invoiceNo"`
	BiltyNo         *string     `json:"biltyNo"`
	VehicleNo       *string     `json:"vehicleNo"`
	TransporterName *string     `json:"transporterName"`
	GrossWeight     *float64    `json:"grossWeight"`
	Quantity        float64     `json:"quantity"`
	TrackingURL     string      `json:"trackingUrl"`
	CurrentStage    string      `json:"currentStage"`
	Stages          []StageView `json:"stages"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// NewDispatchResponse maps a dispatch event to its client view.
func NewDispatchResponse(d repository.DispatchEvent, trackingURL string) DispatchResponse {
	stages := domain.DispatchStages()
	return DispatchResponse{
		ID:              d.ID,
		OrderID:         d.OrderID,
		DeliveryOrderNo: d.DeliveryOrderNo,
		Firm:            d.Firm,
		DispatchNo:      d.DispatchNo,
		LogisticsNo:     d.LogisticsNo,
		InvoiceNo:       d.InvoiceNo,
		BiltyNo:         d.BiltyNo,
		VehicleNo:       d.VehicleNo,
		TransporterName: d.TransporterName,
		GrossWeight:     d.GrossWeight,
		Quantity:        d.Quantity,
		TrackingURL:     trackingURL,
		CurrentStage:    currentStage(stages, d.Markers),
		Stages:          stageViews(stages, d.Markers),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// OrderDetailResponse is an order with its dispatch history.
type OrderDetailResponse struct {
	Order      OrderResponse      `json:"order"`
	Dispatches []DispatchResponse `json:"dispatches"`
}

// ListResponse is a paginated listing.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// NewListResponse maps a repository listing with a per-item mapper.
func NewListResponse[M, T any](res repository.ListResult[M], mapItem func(M) T) ListResponse[T] {
	items := make([]T, len(res.Items))
	for i, m := range res.Items {
		items[i] = mapItem(m)
	}
	return ListResponse[T]{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalPages: res.TotalPages,
	}
}

// TrackingResponse is the public, unauthenticated view of a consignment.
// It deliberately omits the owning firm and commercial details.
type TrackingResponse struct {
	DispatchNo      string      `json:"dispatchNo"`
	DeliveryOrderNo string      `json:"deliveryOrderNo"`
	VehicleNo       *string     `json:"vehicleNo"`
	TransporterName *string     `json:"transporterName"`
	Quantity        float64     `json:"quantity"`
	CurrentStage    string      `json:"currentStage"`
	Stages          []StageView `json:"stages"`
}

// NewTrackingResponse maps a dispatch event to its public tracking view.
func NewTrackingResponse(d repository.DispatchEvent) TrackingResponse {
	stages := domain.DispatchStages()
	return TrackingResponse{
		DispatchNo:      d.DispatchNo,
		DeliveryOrderNo: d.DeliveryOrderNo,
		VehicleNo:       d.VehicleNo,
		TransporterName: d.TransporterName,
		Quantity:        d.Quantity,
		CurrentStage:    currentStage(stages, d.Markers),
		Stages:          stageViews(stages, d.Markers),
	}
}
