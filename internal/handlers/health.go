package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bakery/internal/middleware"
)

func Health(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "connected"
		code := http.StatusOK
		if err := ensureDBConnection(c.Request.Context(), d.DB); err != nil {
			middleware.RequestLogger(c, d.Log).Warn("health check: database unreachable", zap.Error(err))
			status = "disconnected"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"success":   code == http.StatusOK,
			"message":   "Bakery API is running",
			"database":  status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
