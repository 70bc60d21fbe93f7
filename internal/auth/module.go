// Package auth wires the authentication module.
package auth

import (
	"orderflow_backend/internal/auth/handler"
	"orderflow_backend/internal/auth/repository"
	"orderflow_backend/internal/auth/service"
	apphttp "orderflow_backend/internal/http"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/logger"
	"orderflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the auth feature module.
type Module struct {
	Service *service.Service
	handler *handler.Handler
}

// NewModule assembles the auth module.
func NewModule(pool *pgxpool.Pool, log *logger.Logger, cfg config.AuthServiceConfig, validate *validator.Validator) *Module {
	users := repository.NewUsers(pool)
	svc := service.NewService(users, cfg)
	return &Module{
		Service: svc,
		handler: handler.NewHandler(svc, validate, httpkit.NewAuthRateLimiter(log)),
	}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "auth" }

// RegisterRoutes implements apphttp.Module.
func (m *Module) RegisterRoutes(rc apphttp.RouterContext) {
	m.handler.RegisterPublicRoutes(rc.Public)
	m.handler.RegisterRoutes(rc.API)
}
