package worklist

import (
	"orderflow_backend/internal/events"
	apphttp "orderflow_backend/internal/http"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Module is the pending-work aggregator feature module.
type Module struct {
	Service *Service
}

// NewModule assembles the worklist module and hooks its cache
// invalidation into the event bus.
func NewModule(
	rdb *redis.Client,
	orders OrderCounter,
	dispatches DispatchCounter,
	bus events.Bus,
	log *logger.Logger,
	cfg config.WorklistConfig,
) *Module {
	svc := NewService(rdb, orders, dispatches, log, cfg.GetWorklistRefreshInterval())
	svc.RegisterEventHandlers(bus)
	return &Module{Service: svc}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "worklist" }

// RegisterRoutes implements apphttp.Module.
func (m *Module) RegisterRoutes(rc apphttp.RouterContext) {
	rc.API.GET("/worklist", m.counts)
}

func (m *Module) counts(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	view, err := m.Service.Counts(c.Request.Context(), domain.Actor{
		ID:    identity.UserID(),
		Role:  identity.Role(),
		Firms: identity.Firms(),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, view)
}
