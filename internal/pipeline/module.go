// Package pipeline wires the order fulfillment engine: repositories,
// the transition service and the HTTP handler.
package pipeline

import (
	"orderflow_backend/internal/events"
	apphttp "orderflow_backend/internal/http"
	"orderflow_backend/internal/pipeline/handler"
	"orderflow_backend/internal/pipeline/repository"
	"orderflow_backend/internal/pipeline/service"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/logger"
	"orderflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the pipeline feature module.
type Module struct {
	Service *service.Service
	handler *handler.Handler
}

// NewModule assembles the pipeline module.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	log *logger.Logger,
	cfg config.PipelineConfig,
	validate *validator.Validator,
) *Module {
	orders := repository.NewOrders(pool)
	dispatches := repository.NewDispatches(pool)
	counters := repository.NewCounters(pool)

	svc := service.NewService(orders, dispatches, counters, bus, log, cfg)

	return &Module{
		Service: svc,
		handler: handler.NewHandler(svc, validate),
	}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "pipeline" }

// RegisterRoutes implements apphttp.Module.
func (m *Module) RegisterRoutes(rc apphttp.RouterContext) {
	m.handler.RegisterRoutes(rc.API)
	m.handler.RegisterPublicRoutes(rc.Public)
}
