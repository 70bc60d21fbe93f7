package service

import (
	"context"
	"fmt"
	"time"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/platform/apperr"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// GetDispatch retrieves a single dispatch event the actor is allowed to see.
func (s *Service) GetDispatch(ctx context.Context, actor domain.Actor, id int64) (repository.DispatchEvent, error) {
	dispatch, err := s.dispatches.GetByID(ctx, id)
	if err != nil {
		return repository.DispatchEvent{}, err
	}
	if err := s.requireVisible(ctx, actor, domain.KindDispatchEvent, dispatch.ID, dispatch.Firm); err != nil {
		return repository.DispatchEvent{}, err
	}
	return dispatch, nil
}

// ListDispatchesAtStage lists visible dispatch events pending or done at a stage.
func (s *Service) ListDispatchesAtStage(ctx context.Context, actor domain.Actor, stageName string, pending bool, params repository.ListParams) (repository.ListResult[repository.DispatchEvent], error) {
	stage, ok := domain.StageByName(domain.KindDispatchEvent, stageName)
	if !ok {
		return repository.ListResult[repository.DispatchEvent]{}, apperr.Validation("unknown dispatch stage: " + stageName)
	}
	scope := domain.ScopeFor(actor)
	if pending {
		return s.dispatches.ListPendingAtStage(ctx, scope, stage, params)
	}
	return s.dispatches.ListDoneAtStage(ctx, scope, stage, params)
}

// ScheduleDispatchStage sets the planned date of a dispatch-event stage.
func (s *Service) ScheduleDispatchStage(ctx context.Context, actor domain.Actor, dispatchID int64, stageName string, planned time.Time) (repository.DispatchEvent, error) {
	stage, ok := domain.StageByName(domain.KindDispatchEvent, stageName)
	if !ok {
		return repository.DispatchEvent{}, apperr.Validation("unknown dispatch stage: " + stageName)
	}

	dispatch, err := s.GetDispatch(ctx, actor, dispatchID)
	if err != nil {
		return repository.DispatchEvent{}, err
	}
	if err := dispatch.Ledger().Schedule(stage, planned); err != nil {
		return repository.DispatchEvent{}, err
	}

	updated, err := s.dispatches.SetStagePlanned(ctx, repository.SetPlannedParams{
		ID:              dispatch.ID,
		Stage:           stage,
		Planned:         planned,
		ExpectedVersion: dispatch.RowVersion,
	})
	if err != nil {
		return repository.DispatchEvent{}, err
	}

	s.publishScheduled(ctx, actor, domain.KindDispatchEvent, updated.ID, updated.Firm, stage.Name)
	return updated, nil
}

// CompleteDispatchInput carries the stage-specific payload for completing
// a dispatch-event stage. Which fields are required depends on the stage.
type CompleteDispatchInput struct {
	InvoiceNo       string
	BiltyNo         string
	VehicleNo       string
	TransporterName string
	GrossWeight     float64
}

// CompleteDispatchStage marks a dispatch-event stage done with its
// stage-specific payload: LogisticsAssigned mints the logistics number,
// Invoiced records the invoice number, Weighed records the gross weight,
// BiltyDocumented records the bilty number.
func (s *Service) CompleteDispatchStage(ctx context.Context, actor domain.Actor, dispatchID int64, stageName string, input CompleteDispatchInput) (repository.DispatchEvent, error) {
	stage, ok := domain.StageByName(domain.KindDispatchEvent, stageName)
	if !ok {
		return repository.DispatchEvent{}, apperr.Validation("unknown dispatch stage: " + stageName)
	}

	dispatch, err := s.GetDispatch(ctx, actor, dispatchID)
	if err != nil {
		return repository.DispatchEvent{}, err
	}
	at := s.now()
	if err := dispatch.Ledger().MarkDone(stage, at); err != nil {
		return repository.DispatchEvent{}, err
	}

	params := repository.CompleteDispatchStageParams{
		ID:              dispatch.ID,
		Stage:           stage,
		At:              at,
		ExpectedVersion: dispatch.RowVersion,
	}

	switch stage.Name {
	case domain.StageLogisticsAssigned:
		params.MintLogisticsNo = true
	case domain.StageInvoiced:
		if input.InvoiceNo == "" {
			return repository.DispatchEvent{}, apperr.Validation("an invoice number is required to complete stage " + stage.Name)
		}
		params.InvoiceNo = &input.InvoiceNo
	case domain.StageWeighed:
		if input.GrossWeight <= 0 {
			return repository.DispatchEvent{}, apperr.Validation("a positive gross weight is required to complete stage " + stage.Name)
		}
		params.GrossWeight = &input.GrossWeight
	case domain.StageBiltyDocumented:
		if input.BiltyNo == "" {
			return repository.DispatchEvent{}, apperr.Validation("a bilty number is required to complete stage " + stage.Name)
		}
		params.BiltyNo = &input.BiltyNo
	}
	if input.VehicleNo != "" {
		params.VehicleNo = &input.VehicleNo
	}
	if input.TransporterName != "" {
		params.TransporterName = &input.TransporterName
	}

	updated, err := s.dispatches.CompleteStage(ctx, params)
	if err != nil {
		return repository.DispatchEvent{}, err
	}

	s.publishCompleted(ctx, actor, domain.KindDispatchEvent, updated.ID, updated.Firm, stage.Name)
	return updated, nil
}

// TrackDispatch retrieves a dispatch event by its public tracking token.
// No tenant scope applies; the token itself is the capability.
func (s *Service) TrackDispatch(ctx context.Context, token uuid.UUID) (repository.DispatchEvent, error) {
	return s.dispatches.GetByTrackingToken(ctx, token)
}

// TrackingURL builds the public tracking link for a dispatch event.
func (s *Service) TrackingURL(dispatch repository.DispatchEvent) string {
	return fmt.Sprintf("%s/track/%s", s.trackingBaseURL, dispatch.TrackingToken)
}

// TrackingQR renders the tracking link as a PNG QR code, suitable for
// printing on the bilty.
func (s *Service) TrackingQR(dispatch repository.DispatchEvent) ([]byte, error) {
	png, err := qrcode.Encode(s.TrackingURL(dispatch), qrcode.Medium, 256)
	if err != nil {
		return nil, apperr.Internal("failed to render tracking QR code").WithOp("pipeline.tracking")
	}
	return png, nil
}
