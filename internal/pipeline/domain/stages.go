// Package domain provides the core business rules for the fulfillment
// pipeline: stage descriptors, the planned/actual stage ledger, quantity
// reconciliation and tenant visibility scoping.
package domain

// EntityKind distinguishes the two trackable entity kinds moving through
// the pipeline. They are linked by a shared delivery-order number but
// progress through independent ledgers.
type EntityKind string

const (
	KindOrder         EntityKind = "order"
	KindDispatchEvent EntityKind = "dispatch_event"
)

// Track labels the ledger a stage belongs to. Orders carry the delivery
// track; dispatch events carry the dispatch track followed by the
// post-delivery track as one sequential chain.
type Track string

const (
	TrackDelivery     Track = "delivery"
	TrackDispatch     Track = "dispatch"
	TrackPostDelivery Track = "post_delivery"
)

// Stage describes one step of an entity's pipeline. The planned/actual
// column names are defined here exactly once; repositories build their
// SQL from these descriptors so no call site ever spells a column name
// by hand.
type Stage struct {
	Name          string
	Kind          EntityKind
	Track         Track
	// Index is the zero-based position in the entity's full stage chain.
	Index         int
	PlannedColumn string
	ActualColumn  string
}

// Order (delivery track) stage names.
const (
	StageStockCheck       = "StockCheck"
	StageAccountsReceived = "AccountsReceived"
	StageDeliveryReady    = "DeliveryReady"
	StageDispatchPlanned  = "DispatchPlanned"
)

// Dispatch event stage names (dispatch track, then post-delivery track).
const (
	StageLoaded                    = "Loaded"
	StageLogisticsAssigned         = "LogisticsAssigned"
	StageInvoiced                  = "Invoiced"
	StageWeighed                   = "Weighed"
	StageBilledKitted              = "BilledKitted"
	StageBiltyDocumented           = "BiltyDocumented"
	StageCRMClosed                 = "CRMClosed"
	StageMaterialReceiptReconciled = "MaterialReceiptReconciled"
)

var orderStages = []Stage{
	{Name: StageStockCheck, Kind: KindOrder, Track: TrackDelivery, Index: 0, PlannedColumn: "stock_check_planned", ActualColumn: "stock_check_actual"},
	{Name: StageAccountsReceived, Kind: KindOrder, Track: TrackDelivery, Index: 1, PlannedColumn: "accounts_received_planned", ActualColumn: "accounts_received_actual"},
	{Name: StageDeliveryReady, Kind: KindOrder, Track: TrackDelivery, Index: 2, PlannedColumn: "delivery_ready_planned", ActualColumn: "delivery_ready_actual"},
	{Name: StageDispatchPlanned, Kind: KindOrder, Track: TrackDelivery, Index: 3, PlannedColumn: "dispatch_planned", ActualColumn: "dispatch_actual"},
}

var dispatchStages = []Stage{
	{Name: StageLoaded, Kind: KindDispatchEvent, Track: TrackDispatch, Index: 0, PlannedColumn: "loaded_planned", ActualColumn: "loaded_actual"},
	{Name: StageLogisticsAssigned, Kind: KindDispatchEvent, Track: TrackDispatch, Index: 1, PlannedColumn: "logistics_planned", ActualColumn: "logistics_actual"},
	{Name: StageInvoiced, Kind: KindDispatchEvent, Track: TrackDispatch, Index: 2, PlannedColumn: "invoiced_planned", ActualColumn: "invoiced_actual"},
	{Name: StageWeighed, Kind: KindDispatchEvent, Track: TrackDispatch, Index: 3, PlannedColumn: "weighed_planned", ActualColumn: "weighed_actual"},
	{Name: StageBilledKitted, Kind: KindDispatchEvent, Track: TrackPostDelivery, Index: 4, PlannedColumn: "billed_kitted_planned", ActualColumn: "billed_kitted_actual"},
	{Name: StageBiltyDocumented, Kind: KindDispatchEvent, Track: TrackPostDelivery, Index: 5, PlannedColumn: "bilty_planned", ActualColumn: "bilty_actual"},
	{Name: StageCRMClosed, Kind: KindDispatchEvent, Track: TrackPostDelivery, Index: 6, PlannedColumn: "crm_closed_planned", ActualColumn: "crm_closed_actual"},
	{Name: StageMaterialReceiptReconciled, Kind: KindDispatchEvent, Track: TrackPostDelivery, Index: 7, PlannedColumn: "mrn_planned", ActualColumn: "mrn_actual"},
}

// OrderStages returns the delivery-track stage chain for orders.
func OrderStages() []Stage {
	return orderStages
}

// DispatchStages returns the full stage chain for dispatch events.
func DispatchStages() []Stage {
	return dispatchStages
}

// StagesFor returns the stage chain for an entity kind.
func StagesFor(kind EntityKind) []Stage {
	if kind == KindOrder {
		return orderStages
	}
	return dispatchStages
}

// StageByName looks up a stage descriptor by entity kind and name.
func StageByName(kind EntityKind, name string) (Stage, bool) {
	for _, s := range StagesFor(kind) {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// IsKnownStage reports whether name is a stage of the given entity kind.
func IsKnownStage(kind EntityKind, name string) bool {
	_, ok := StageByName(kind, name)
	return ok
}
