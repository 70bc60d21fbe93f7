package repository

import (
	"context"
	"errors"
	"fmt"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dispatchNotFoundMsg = "dispatch event not found"

const dispatchBaseColumns = "id, order_id, delivery_order_no, firm, dispatch_no, logistics_no, invoice_no, bilty_no, vehicle_no, transporter_name, gross_weight, quantity, tracking_token, row_version, created_at, updated_at"

func dispatchSelectColumns() string {
	return dispatchBaseColumns + ", " + stageColumnList(domain.DispatchStages())
}

func dispatchScanDest(d *DispatchEvent) []any {
	d.Markers = make([]domain.Marker, len(domain.DispatchStages()))
	dest := []any{
		&d.ID, &d.OrderID, &d.DeliveryOrderNo, &d.Firm, &d.DispatchNo,
		&d.LogisticsNo, &d.InvoiceNo, &d.BiltyNo, &d.VehicleNo, &d.TransporterName,
		&d.GrossWeight, &d.Quantity, &d.TrackingToken, &d.RowVersion,
		&d.CreatedAt, &d.UpdatedAt,
	}
	for i := range d.Markers {
		dest = append(dest, &d.Markers[i].Planned, &d.Markers[i].Actual)
	}
	return dest
}

// Dispatches is the pgx implementation of DispatchRepository.
type Dispatches struct {
	pool *pgxpool.Pool
}

// NewDispatches creates a new dispatch-event repository.
func NewDispatches(pool *pgxpool.Pool) *Dispatches {
	return &Dispatches{pool: pool}
}

// GetByID retrieves a dispatch event by its ID. Like order lookups, this
// is unscoped so the service can report scope violations honestly.
func (r *Dispatches) GetByID(ctx context.Context, id int64) (DispatchEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_events WHERE id = $1`, dispatchSelectColumns())

	var d DispatchEvent
	if err := r.pool.QueryRow(ctx, query, id).Scan(dispatchScanDest(&d)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DispatchEvent{}, apperr.NotFound(dispatchNotFoundMsg)
		}
		return DispatchEvent{}, apperr.StorageUnavailable("failed to load dispatch event", err)
	}
	return d, nil
}

// GetByTrackingToken retrieves a dispatch event by its public tracking
// token. Tokens are unguessable, so the lookup carries no firm scope.
func (r *Dispatches) GetByTrackingToken(ctx context.Context, token uuid.UUID) (DispatchEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_events WHERE tracking_token = $1`, dispatchSelectColumns())

	var d DispatchEvent
	if err := r.pool.QueryRow(ctx, query, token).Scan(dispatchScanDest(&d)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DispatchEvent{}, apperr.NotFound(dispatchNotFoundMsg)
		}
		return DispatchEvent{}, apperr.StorageUnavailable("failed to load dispatch event", err)
	}
	return d, nil
}

// ListByOrder lists every dispatch event recorded against an order, oldest
// first.
func (r *Dispatches) ListByOrder(ctx context.Context, orderID int64) ([]DispatchEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_events WHERE order_id = $1 ORDER BY id ASC`, dispatchSelectColumns())

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, apperr.StorageUnavailable("failed to list dispatch events", err)
	}
	defer rows.Close()

	var items []DispatchEvent
	for rows.Next() {
		var d DispatchEvent
		if err := rows.Scan(dispatchScanDest(&d)...); err != nil {
			return nil, apperr.StorageUnavailable("failed to scan dispatch event row", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StorageUnavailable("failed to read dispatch event rows", err)
	}
	return items, nil
}

func (r *Dispatches) listAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams, pending bool) (ListResult[DispatchEvent], error) {
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
		AND ($1::text IS NULL OR delivery_order_no ILIKE $1 OR dispatch_no ILIKE $1 OR vehicle_no ILIKE $1)`,
		stageClause, firmClause)

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM dispatch_events WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult[DispatchEvent]{}, apperr.StorageUnavailable("failed to count dispatch events at stage "+stage.Name, err)
	}

	query := fmt.Sprintf(`SELECT %s FROM dispatch_events WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		dispatchSelectColumns(), where, orderBy, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult[DispatchEvent]{}, apperr.StorageUnavailable("failed to list dispatch events at stage "+stage.Name, err)
	}
	defer rows.Close()

	items := make([]DispatchEvent, 0, pageSize)
	for rows.Next() {
		var d DispatchEvent
		if err := rows.Scan(dispatchScanDest(&d)...); err != nil {
			return ListResult[DispatchEvent]{}, apperr.StorageUnavailable("failed to scan dispatch event row", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return ListResult[DispatchEvent]{}, apperr.StorageUnavailable("failed to read dispatch event rows", err)
	}

	return ListResult[DispatchEvent]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// ListPendingAtStage lists visible dispatch events awaiting action at the stage.
func (r *Dispatches) ListPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[DispatchEvent], error) {
	return r.listAtStage(ctx, scope, stage, params, true)
}

// ListDoneAtStage lists visible dispatch events that completed the stage.
func (r *Dispatches) ListDoneAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage, params ListParams) (ListResult[DispatchEvent], error) {
	return r.listAtStage(ctx, scope, stage, params, false)
}

// CountPendingAtStage counts visible dispatch events awaiting action at the stage.
func (r *Dispatches) CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error) {
	args := []any{}
	firmClause, firmArgs := firmFilter(scope, 1)
	args = append(args, firmArgs...)

	query := fmt.Sprintf(`SELECT count(*) FROM dispatch_events WHERE %s IS NOT NULL AND %s IS NULL AND %s`,
		stage.PlannedColumn, stage.ActualColumn, firmClause)

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, apperr.StorageUnavailable("failed to count pending dispatch events at stage "+stage.Name, err)
	}
	return total, nil
}

// SetStagePlanned schedules a stage under the row-version guard.
func (r *Dispatches) SetStagePlanned(ctx context.Context, params SetPlannedParams) (DispatchEvent, error) {
	query := fmt.Sprintf(`
		UPDATE dispatch_events SET %s = $2, row_version = row_version + 1, updated_at = now()
		WHERE id = $1 AND row_version = $3
		RETURNING %s`, params.Stage.PlannedColumn, dispatchSelectColumns())

	var d DispatchEvent
	err := r.pool.QueryRow(ctx, query, params.ID, params.Planned, params.ExpectedVersion).Scan(dispatchScanDest(&d)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DispatchEvent{}, apperr.Conflict(fmt.Sprintf("dispatch event %d was modified concurrently, please retry", params.ID))
		}
		return DispatchEvent{}, apperr.StorageUnavailable("failed to schedule dispatch stage "+params.Stage.Name, err)
	}
	return d, nil
}

// CompleteStage marks a dispatch-event stage done under the row-version
// guard, persisting any stage payload in the same statement. When a
// logistics number must be minted, the draw and the update share one
// transaction so an assigned number always lands on the row.
func (r *Dispatches) CompleteStage(ctx context.Context, params CompleteDispatchStageParams) (DispatchEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DispatchEvent{}, apperr.StorageUnavailable("failed to begin stage transaction", err)
	}
	defer tx.Rollback(ctx)

	set := fmt.Sprintf("%s = $2, row_version = row_version + 1, updated_at = now()", params.Stage.ActualColumn)
	args := []any{params.ID, params.At, params.ExpectedVersion}

	addColumn := func(column string, value any) {
		args = append(args, value)
		set += fmt.Sprintf(", %s = $%d", column, len(args))
	}

	if params.MintLogisticsNo {
		logisticsNo, err := nextNumberTx(ctx, tx, domain.SeriesLogistics)
		if err != nil {
			return DispatchEvent{}, err
		}
		addColumn("logistics_no", logisticsNo)
	}
	if params.InvoiceNo != nil {
		addColumn("invoice_no", *params.InvoiceNo)
	}
	if params.BiltyNo != nil {
		addColumn("bilty_no", *params.BiltyNo)
	}
	if params.VehicleNo != nil {
		addColumn("vehicle_no", *params.VehicleNo)
	}
	if params.TransporterName != nil {
		addColumn("transporter_name", *params.TransporterName)
	}
	if params.GrossWeight != nil {
		addColumn("gross_weight", *params.GrossWeight)
	}

	query := fmt.Sprintf(`UPDATE dispatch_events SET %s WHERE id = $1 AND row_version = $3 RETURNING %s`,
		set, dispatchSelectColumns())

	var d DispatchEvent
	if err := tx.QueryRow(ctx, query, args...).Scan(dispatchScanDest(&d)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DispatchEvent{}, apperr.Conflict(fmt.Sprintf("dispatch event %d was modified concurrently, please retry", params.ID))
		}
		return DispatchEvent{}, apperr.StorageUnavailable("failed to complete dispatch stage "+params.Stage.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return DispatchEvent{}, apperr.StorageUnavailable("failed to commit stage transaction", err)
	}
	return d, nil
}

var _ DispatchRepository = (*Dispatches)(nil)
