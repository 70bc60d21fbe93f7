// Package handler exposes the pipeline module over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/internal/pipeline/service"
	"orderflow_backend/internal/pipeline/transport"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the pipeline HTTP API.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

// NewHandler creates a new pipeline handler.
func NewHandler(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// RegisterRoutes mounts the authenticated pipeline routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/stage/:stage", h.ListOrdersAtStage)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/schedule", h.ScheduleOrderStage)
		orders.POST("/:id/complete", h.CompleteOrderStage)
		orders.POST("/:id/dispatches", h.RecordDispatch)
	}

	dispatches := rg.Group("/dispatches")
	{
		dispatches.GET("/stage/:stage", h.ListDispatchesAtStage)
		dispatches.GET("/:id", h.GetDispatch)
		dispatches.POST("/:id/schedule", h.ScheduleDispatchStage)
		dispatches.POST("/:id/complete", h.CompleteDispatchStage)
	}
}

// RegisterPublicRoutes mounts the unauthenticated tracking routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/track/:token", h.TrackDispatch)
	rg.GET("/track/:token/qr", h.TrackDispatchQR)
}

func actorFrom(id httpkit.Identity) domain.Actor {
	return domain.Actor{ID: id.UserID(), Role: id.Role(), Firms: id.Firms()}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return 0, false
	}
	return id, true
}

func listParams(c *gin.Context) repository.ListParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return repository.ListParams{
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), actorFrom(identity), service.CreateOrderInput{
		DeliveryOrderNo:   req.DeliveryOrderNo,
		PONumber:          req.PONumber,
		Firm:              req.Firm,
		CustomerName:      req.CustomerName,
		CustomerPhone:     req.CustomerPhone,
		Material:          req.Material,
		OrderedQty:        req.OrderedQty,
		StockCheckPlanned: req.StockCheckPlanned,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.NewOrderResponse(order))
}

// GetOrder handles GET /orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	detail, err := h.svc.GetOrderDetail(c.Request.Context(), actorFrom(identity), id)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.OrderDetailResponse{
		Order:      transport.NewOrderResponse(detail.Order),
		Dispatches: make([]transport.DispatchResponse, len(detail.Dispatches)),
	}
	for i, d := range detail.Dispatches {
		resp.Dispatches[i] = transport.NewDispatchResponse(d, h.svc.TrackingURL(d))
	}
	httpkit.OK(c, resp)
}

// ListOrdersAtStage handles GET /orders/stage/:stage?state=pending|done.
func (h *Handler) ListOrdersAtStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	pending := c.DefaultQuery("state", "pending") != "done"
	res, err := h.svc.ListOrdersAtStage(c.Request.Context(), actorFrom(identity), c.Param("stage"), pending, listParams(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewListResponse(res, transport.NewOrderResponse))
}

// ScheduleOrderStage handles POST /orders/:id/schedule.
func (h *Handler) ScheduleOrderStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req transport.ScheduleStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	order, err := h.svc.ScheduleOrderStage(c.Request.Context(), actorFrom(identity), id, req.Stage, req.Planned)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewOrderResponse(order))
}

// CompleteOrderStage handles POST /orders/:id/complete.
func (h *Handler) CompleteOrderStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req transport.CompleteStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	order, err := h.svc.CompleteOrderStage(c.Request.Context(), actorFrom(identity), id, req.Stage)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewOrderResponse(order))
}

// RecordDispatch handles POST /orders/:id/dispatches.
func (h *Handler) RecordDispatch(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req transport.RecordDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	input := service.RecordDispatchInput{
		Quantity:        req.Quantity,
		VehicleNo:       req.VehicleNo,
		TransporterName: req.TransporterName,
	}
	if req.LoadedPlanned != nil {
		input.LoadedPlanned = *req.LoadedPlanned
	}

	dispatch, order, err := h.svc.RecordDispatch(c.Request.Context(), actorFrom(identity), id, input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, gin.H{
		"dispatch": transport.NewDispatchResponse(dispatch, h.svc.TrackingURL(dispatch)),
		"order":    transport.NewOrderResponse(order),
	})
}

// GetDispatch handles GET /dispatches/:id.
func (h *Handler) GetDispatch(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	dispatch, err := h.svc.GetDispatch(c.Request.Context(), actorFrom(identity), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDispatchResponse(dispatch, h.svc.TrackingURL(dispatch)))
}

// ListDispatchesAtStage handles GET /dispatches/stage/:stage?state=pending|done.
func (h *Handler) ListDispatchesAtStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	pending := c.DefaultQuery("state", "pending") != "done"
	res, err := h.svc.ListDispatchesAtStage(c.Request.Context(), actorFrom(identity), c.Param("stage"), pending, listParams(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewListResponse(res, func(d repository.DispatchEvent) transport.DispatchResponse {
		return transport.NewDispatchResponse(d, h.svc.TrackingURL(d))
	}))
}

// ScheduleDispatchStage handles POST /dispatches/:id/schedule.
func (h *Handler) ScheduleDispatchStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req transport.ScheduleStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	dispatch, err := h.svc.ScheduleDispatchStage(c.Request.Context(), actorFrom(identity), id, req.Stage, req.Planned)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDispatchResponse(dispatch, h.svc.TrackingURL(dispatch)))
}

// CompleteDispatchStage handles POST /dispatches/:id/complete.
func (h *Handler) CompleteDispatchStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req transport.CompleteDispatchStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	dispatch, err := h.svc.CompleteDispatchStage(c.Request.Context(), actorFrom(identity), id, req.Stage, service.CompleteDispatchInput{
		InvoiceNo:       req.InvoiceNo,
		BiltyNo:         req.BiltyNo,
		VehicleNo:       req.VehicleNo,
		TransporterName: req.TransporterName,
		GrossWeight:     req.GrossWeight,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDispatchResponse(dispatch, h.svc.TrackingURL(dispatch)))
}

// TrackDispatch handles GET /track/:token (public).
func (h *Handler) TrackDispatch(c *gin.Context) {
	token, err := uuid.Parse(c.Param("token"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid tracking token", nil)
		return
	}

	dispatch, err := h.svc.TrackDispatch(c.Request.Context(), token)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewTrackingResponse(dispatch))
}

// TrackDispatchQR handles GET /track/:token/qr (public), returning a PNG.
func (h *Handler) TrackDispatchQR(c *gin.Context) {
	token, err := uuid.Parse(c.Param("token"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid tracking token", nil)
		return
	}

	dispatch, err := h.svc.TrackDispatch(c.Request.Context(), token)
	if httpkit.HandleError(c, err) {
		return
	}
	png, err := h.svc.TrackingQR(dispatch)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
