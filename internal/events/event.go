// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"orderflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Pipeline Domain Events
// =============================================================================

// OrderCreated is published when intake registers a new customer order.
type OrderCreated struct {
	BaseEvent
	OrderID         int64   `json:"orderId"`
	DeliveryOrderNo string  `json:"deliveryOrderNo"`
	Firm            string  `json:"firm"`
	CustomerName    string  `json:"customerName"`
	OrderedQty      float64 `json:"orderedQty"`
}

func (e OrderCreated) EventName() string { return "pipeline.order.created" }

// StageScheduled is published when a pipeline stage receives its planned date.
type StageScheduled struct {
	BaseEvent
	EntityKind string    `json:"entityKind"`
	EntityID   int64     `json:"entityId"`
	Firm       string    `json:"firm"`
	Stage      string    `json:"stage"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (e StageScheduled) EventName() string { return "pipeline.stage.scheduled" }

// StageCompleted is published when a pipeline stage is marked done. The
// pending-work aggregator invalidates its counts for the stage on this event.
type StageCompleted struct {
	BaseEvent
	EntityKind string    `json:"entityKind"`
	EntityID   int64     `json:"entityId"`
	Firm       string    `json:"firm"`
	Stage      string    `json:"stage"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (e StageCompleted) EventName() string { return "pipeline.stage.completed" }

// DispatchRecorded is published when a dispatch event is created against
// an order, carrying the minted dispatch number and the reconciled
// quantities.
type DispatchRecorded struct {
	BaseEvent
	OrderID         int64     `json:"orderId"`
	DispatchEventID int64     `json:"dispatchEventId"`
	DeliveryOrderNo string    `json:"deliveryOrderNo"`
	DispatchNo      string    `json:"dispatchNo"`
	Firm            string    `json:"firm"`
	Quantity        float64   `json:"quantity"`
	PendingQty      float64   `json:"pendingQty"`
	ActorID         uuid.UUID `json:"actorId"`
}

func (e DispatchRecorded) EventName() string { return "pipeline.dispatch.recorded" }

// OrderFulfilled is published when a dispatch drives an order's pending
// quantity to zero, completing its delivery track.
type OrderFulfilled struct {
	BaseEvent
	OrderID         int64   `json:"orderId"`
	DeliveryOrderNo string  `json:"deliveryOrderNo"`
	Firm            string  `json:"firm"`
	CustomerName    string  `json:"customerName"`
	OrderedQty      float64 `json:"orderedQty"`
}

func (e OrderFulfilled) EventName() string { return "pipeline.order.fulfilled" }
