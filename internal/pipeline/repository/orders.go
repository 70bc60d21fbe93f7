package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderNotFoundMsg = "order not found"

// orderBaseColumns are the non-stage columns of the orders table, in scan order.
const orderBaseColumns = "id, delivery_order_no, po_number, firm, customer_name, customer_phone, material, ordered_qty, dispatched_qty, pending_qty, row_version, created_at, updated_at"

// stageColumnList renders the planned/actual column pairs of a stage chain.
// Every query touching stage markers goes through this, so the column names
// live in exactly one place: the stage descriptors.
func stageColumnList(stages []domain.Stage) string {
	cols := make([]string, 0, len(stages)*2)
	for _, s := range stages {
		cols = append(cols, s.PlannedColumn, s.ActualColumn)
	}
	return strings.Join(cols, ", ")
}

func orderSelectColumns() string {
	return orderBaseColumns + ", " + stageColumnList(domain.OrderStages())
}

// firmFilter renders the tenant visibility clause. Unrestricted scopes see
// every row; everyone else is limited to their normalized firm set.
func firmFilter(scope domain.Scope, argIndex int) (string, []any) {
	if scope.Unrestricted() {
		return "TRUE", nil
	}
	return fmt.Sprintf("lower(trim(firm)) = ANY($%d)", argIndex), []any{scope.Firms()}
}

func searchPattern(search string) *string {
	trimmed := strings.TrimSpace(search)
	if trimmed == "" {
		return nil
	}
	pattern := "%" + trimmed + "%"
	return &pattern
}

// Orders is the pgx implementation of OrderRepository.
type Orders struct {
	pool *pgxpool.Pool
}

// NewOrders creates a new order repository.
func NewOrders(pool *pgxpool.Pool) *Orders {
	return &Orders{pool: pool}
}

func orderScanDest(o *Order) []any {
	o.Markers = make([]domain.Marker, len(domain.OrderStages()))
	dest := []any{
		&o.ID, &o.DeliveryOrderNo, &o.PONumber, &o.Firm, &o.CustomerName, &o.CustomerPhone,
		&o.Material, &o.OrderedQty, &o.DispatchedQty, &o.PendingQty, &o.RowVersion,
		&o.CreatedAt, &o.UpdatedAt,
	}
	for i := range o.Markers {
		dest = append(dest, &o.Markers[i].Planned, &o.Markers[i].Actual)
	}
	return dest
}

// Create inserts a new order with its first delivery stage scheduled.
func (r *Orders) Create(ctx context.Context, params CreateOrderParams) (Order, error) {
	stockCheck := domain.OrderStages()[0]
	query := fmt.Sprintf(`
		INSERT INTO orders (delivery_order_no, po_number, firm, customer_name, customer_phone, material,
			ordered_qty, dispatched_qty, pending_qty, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $7, $8)
		RETURNING %s`, stockCheck.PlannedColumn, orderSelectColumns())

	var o Order
	row := r.pool.QueryRow(ctx, query,
		params.DeliveryOrderNo, params.PONumber, params.Firm, params.CustomerName,
		params.CustomerPhone, params.Material, params.OrderedQty, params.StockCheckPlanned,
	)
	if err := row.Scan(orderScanDest(&o)...); err != nil {
		if isUniqueViolation(err) {
			return Order{}, apperr.Conflict("an order for delivery order " + params.DeliveryOrderNo + " already exists")
		}
		return Order{}, apperr.StorageUnavailable("failed to insert order", err)
	}
	return o, nil
}

// GetByID retrieves an order by its ID. Visibility is checked by the
// service against the returned firm; lookups themselves are unscoped so a
// scope violation can be reported as an authorization failure instead of
// a misleading not-found.
func (r *Orders) GetByID(ctx context.Context, id int64) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderSelectColumns())

	var o Order
	if err := r.pool.QueryRow(ctx, query, id).Scan(orderScanDest(&o)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound(orderNotFoundMsg)
		}
		return Order{}, apperr.StorageUnavailable("failed to load order", err)
	}
	return o, nil
}

// GetByDeliveryOrderNo retrieves an order by the shared delivery-order key.
func (r *Orders) GetByDeliveryOrderNo(ctx context.Context, deliveryOrderNo string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE delivery_order_no = $1`, orderSelectColumns())

	var o Order
	if err := r.pool.QueryRow(ctx, query, deliveryOrderNo).Scan(orderScanDest(&o)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound(orderNotFoundMsg)
		}
		return Order{}, apperr.StorageUnavailable("failed to load order", err)
	}
	return o, nil
}

func (r *Orders) listAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams, pending bool) (ListResult[Order], error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	stageClause := fmt.Sprintf("%s IS NOT NULL AND %s IS NULL", stage.PlannedColumn, stage.ActualColumn)
	orderBy := stage.PlannedColumn + " ASC, id ASC"
	if !pending {
		stageClause = fmt.Sprintf("%s IS NOT NULL", stage.ActualColumn)
		orderBy = stage.ActualColumn + " DESC, id DESC"
	}

	args := []any{searchPattern(params.Search)}
	firmClause, firmArgs := firmFilter(scope, len(args)+1)
	args = append(args, firmArgs...)

	where := fmt.Sprintf(`%s AND %s
		AND ($1::text IS NULL OR delivery_order_no ILIKE $1 OR po_number ILIKE $1 OR customer_name ILIKE $1)`,
		stageClause, firmClause)

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM orders WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult[Order]{}, apperr.StorageUnavailable("failed to count orders at stage "+stage.Name, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		orderSelectColumns(), where, orderBy, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult[Order]{}, apperr.StorageUnavailable("failed to list orders at stage "+stage.Name, err)
	}
	defer rows.Close()

	items := make([]Order, 0, pageSize)
	for rows.Next() {
		var o Order
		if err := rows.Scan(orderScanDest(&o)...); err != nil {
			return ListResult[Order]{}, apperr.StorageUnavailable("failed to scan order row", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return ListResult[Order]{}, apperr.StorageUnavailable("failed to read order rows", err)
	}

	return ListResult[Order]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// ListPendingAtStage lists visible orders awaiting action at the stage.
func (r *Orders) ListPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[Order], error) {
	return r.listAtStage(ctx, scope, stage, params, true)
}

// ListDoneAtStage lists visible orders that completed the stage.
func (r *Orders) ListDoneAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[Order], error) {
	return r.listAtStage(ctx, scope, stage, params, false)
}

// CountPendingAtStage counts visible orders awaiting action at the stage.
func (r *Orders) CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error) {
	args := []any{}
	firmClause, firmArgs := firmFilter(scope, 1)
	args = append(args, firmArgs...)

	query := fmt.Sprintf(`SELECT count(*) FROM orders WHERE %s IS NOT NULL AND %s IS NULL AND %s`,
		stage.PlannedColumn, stage.ActualColumn, firmClause)

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperr.StorageUnavailable("failed to count pending orders at stage "+stage.Name, err)
	}
	return total, nil
}

// SetStagePlanned schedules a stage under the row-version guard. A missed
// guard means the order changed underneath the caller (orders are never
// deleted), so it surfaces as a retryable-by-the-user conflict.
func (r *Orders) SetStagePlanned(ctx context.Context, params SetPlannedParams) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders SET %s = $2, row_version = row_version + 1, updated_at = now()
		WHERE id = $1 AND row_version = $3
		RETURNING %s`, params.Stage.PlannedColumn, orderSelectColumns())

	var o Order
	err := r.pool.QueryRow(ctx, query, params.ID, params.Planned, params.ExpectedVersion).Scan(orderScanDest(&o)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", params.ID))
		}
		return Order{}, apperr.StorageUnavailable("failed to schedule order stage "+params.Stage.Name, err)
	}
	return o, nil
}

// CompleteStage marks a stage done under the row-version guard.
func (r *Orders) CompleteStage(ctx context.Context, params CompleteOrderStageParams) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders SET %s = $2, row_version = row_version + 1, updated_at = now()
		WHERE id = $1 AND row_version = $3
		RETURNING %s`, params.Stage.ActualColumn, orderSelectColumns())

	var o Order
	err := r.pool.QueryRow(ctx, query, params.ID, params.At, params.ExpectedVersion).Scan(orderScanDest(&o)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", params.ID))
		}
		return Order{}, apperr.StorageUnavailable("failed to complete order stage "+params.Stage.Name, err)
	}
	return o, nil
}

// RecordDispatch persists one dispatch as a single transaction: the
// dispatch number is drawn from its counter, the dispatch event row is
// inserted, and the order's quantities (and final-stage completion, when
// the order is exhausted) are applied under the row-version guard. Either
// everything commits or nothing does; a minted number with no event row
// can never be observed.
func (r *Orders) RecordDispatch(ctx context.Context, params RecordDispatchParams) (DispatchEvent, Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DispatchEvent{}, Order{}, apperr.StorageUnavailable("failed to begin dispatch transaction", err)
	}
	defer tx.Rollback(ctx)

	var o Order
	{
		dispatchStage := domain.OrderStages()[len(domain.OrderStages())-1]
		set := "dispatched_qty = $2, pending_qty = $3, row_version = row_version + 1, updated_at = now()"
		args := []any{params.OrderID, params.NewDispatchedQty, params.NewPendingQty, params.ExpectedVersion}
		if params.MarkDispatchDone {
			set += fmt.Sprintf(", %s = $5", dispatchStage.ActualColumn)
			args = append(args, params.At)
		}
		query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1 AND row_version = $4 RETURNING %s`,
			set, orderSelectColumns())

		if err := tx.QueryRow(ctx, query, args...).Scan(orderScanDest(&o)...); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return DispatchEvent{}, Order{}, apperr.Conflict(fmt.Sprintf("order %d was modified concurrently, please retry", params.OrderID))
			}
			return DispatchEvent{}, Order{}, apperr.StorageUnavailable("failed to apply dispatch quantities", err)
		}
	}

	dispatchNo, err := nextNumberTx(ctx, tx, domain.SeriesDispatch)
	if err != nil {
		return DispatchEvent{}, Order{}, err
	}

	loaded := domain.DispatchStages()[0]
	insert := fmt.Sprintf(`
		INSERT INTO dispatch_events (order_id, delivery_order_no, firm, dispatch_no, quantity,
			vehicle_no, transporter_name, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, loaded.PlannedColumn, dispatchSelectColumns())

	var d DispatchEvent
	row := tx.QueryRow(ctx, insert,
		o.ID, o.DeliveryOrderNo, o.Firm, dispatchNo, params.Quantity,
		params.VehicleNo, params.TransporterName, params.LoadedPlanned,
	)
	if err := row.Scan(dispatchScanDest(&d)...); err != nil {
		return DispatchEvent{}, Order{}, apperr.StorageUnavailable("failed to insert dispatch event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return DispatchEvent{}, Order{}, apperr.StorageUnavailable("failed to commit dispatch transaction", err)
	}
	return d, o, nil
}

var _ OrderRepository = (*Orders)(nil)
