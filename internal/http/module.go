// Package http assembles the HTTP application: router, middleware and
// module registration.
package http

import (
	"github.com/gin-gonic/gin"
)

// RouterContext hands each module the route groups it may mount on.
type RouterContext struct {
	// API is the authenticated group; AuthRequired already applied.
	API *gin.RouterGroup
	// Public is the unauthenticated group for tracking and health routes.
	Public *gin.RouterGroup
}

// Module is implemented by every feature module that exposes HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(rc RouterContext)
}
