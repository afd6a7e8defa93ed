package api

import (
	routes "parkclash/internal/api/handlers"
	"parkclash/internal/realtime"
	"parkclash/internal/service/anticheat"

	"github.com/gin-gonic/gin"
)

// RouterDeps are the services exposed over HTTP
type RouterDeps struct {
	Matches routes.MatchAPI
	Audit   anticheat.AuditLog
	Tokens  *realtime.TokenValidator
	// WS serves /ws; it authenticates on its own before upgrading
	WS     gin.HandlerFunc
	Health []routes.HealthCheck
	Info   map[string]string
}

// SetupRouter initializes all application routes
func SetupRouter(r *gin.Engine, deps RouterDeps) {
	// Setup main handlers
	routes.SetupMainHandlers(r.Group(""), deps.Info, deps.Health)

	if deps.WS != nil {
		r.GET("/ws", deps.WS)
	}

	// API group
	api := r.Group("/api", routes.RequireAuth(deps.Tokens))

	routes.SetupMatchHandlers(api, deps.Matches)
	if deps.Audit != nil {
		routes.SetupAdminHandlers(api, deps.Audit)
	}
}
