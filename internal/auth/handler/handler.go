// Package handler exposes the auth module over HTTP.
package handler

import (
	"net/http"

	"orderflow_backend/internal/auth/service"
	"orderflow_backend/internal/auth/transport"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler serves the auth HTTP API.
type Handler struct {
	svc      *service.Service
	validate *validator.Validator
	loginRL  *httpkit.AuthRateLimiter
}

// NewHandler creates a new auth handler.
func NewHandler(svc *service.Service, validate *validator.Validator, loginRL *httpkit.AuthRateLimiter) *Handler {
	return &Handler{svc: svc, validate: validate, loginRL: loginRL}
}

// RegisterPublicRoutes mounts the unauthenticated auth routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.loginRL.RateLimit(), h.Login)
}

// RegisterRoutes mounts the authenticated auth routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/me", h.Me)
	rg.POST("/auth/refresh", h.Refresh)
	rg.POST("/auth/users", h.CreateUser)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req transport.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LoginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		User:        transport.NewUserResponse(result.User),
	})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewUserResponse(user))
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Refresh(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LoginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		User:        transport.NewUserResponse(result.User),
	})
}

// CreateUser handles POST /auth/users (master only).
func (h *Handler) CreateUser(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), identity.Role(), service.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		Firms:    req.Firms,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.NewUserResponse(user))
}
