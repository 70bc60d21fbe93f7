package attachments

import (
	"context"
	"errors"
	"time"

	"orderflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Attachment is the metadata row for one stored stage document.
type Attachment struct {
	ID          uuid.UUID
	DispatchID  int64
	Stage       string
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	UploadedBy  uuid.UUID
	CreatedAt   time.Time
}

// CreateAttachmentParams contains parameters for recording an upload.
type CreateAttachmentParams struct {
	DispatchID  int64
	Stage       string
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	UploadedBy  uuid.UUID
}

// Repository persists attachment metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new attachment repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = "id, dispatch_id, stage, file_name, content_type, size_bytes, object_key, uploaded_by, created_at"

func scan(row pgx.Row) (Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.DispatchID, &a.Stage, &a.FileName, &a.ContentType,
		&a.SizeBytes, &a.ObjectKey, &a.UploadedBy, &a.CreatedAt)
	return a, err
}

// Create records an uploaded attachment.
func (r *Repository) Create(ctx context.Context, params CreateAttachmentParams) (Attachment, error) {
	query := `
		INSERT INTO stage_attachments (dispatch_id, stage, file_name, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + columns

	a, err := scan(r.pool.QueryRow(ctx, query,
		params.DispatchID, params.Stage, params.FileName, params.ContentType,
		params.SizeBytes, params.ObjectKey, params.UploadedBy))
	if err != nil {
		return Attachment{}, apperr.StorageUnavailable("failed to record attachment", err)
	}
	return a, nil
}

// GetByID retrieves one attachment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Attachment, error) {
	query := `SELECT ` + columns + ` FROM stage_attachments WHERE id = $1`

	a, err := scan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attachment{}, apperr.NotFound("attachment not found")
		}
		return Attachment{}, apperr.StorageUnavailable("failed to load attachment", err)
	}
	return a, nil
}

// ListByDispatch lists the attachments of a dispatch event, oldest first.
func (r *Repository) ListByDispatch(ctx context.Context, dispatchID int64) ([]Attachment, error) {
	query := `SELECT ` + columns + ` FROM stage_attachments WHERE dispatch_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, dispatchID)
	if err != nil {
		return nil, apperr.StorageUnavailable("failed to list attachments", err)
	}
	defer rows.Close()

	var items []Attachment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, apperr.StorageUnavailable("failed to scan attachment row", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StorageUnavailable("failed to read attachment rows", err)
	}
	return items, nil
}
