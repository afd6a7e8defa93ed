package routes

import (
	"net/http"
	"strconv"

	"parkclash/internal/service/anticheat"

	"github.com/gin-gonic/gin"
)

const (
	defaultSuspiciousLimit = 50
	maxSuspiciousLimit     = 500
)

// SetupAdminHandlers registers the anti-cheat report
func SetupAdminHandlers(router *gin.RouterGroup, audit anticheat.AuditLog) {
	adminGroup := router.Group("/admin")

	adminGroup.GET("/suspicious", func(c *gin.Context) {
		limit := defaultSuspiciousLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxSuspiciousLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}

		entries, err := audit.Recent(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})
}
