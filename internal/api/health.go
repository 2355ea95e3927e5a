package api

import (
	"homework-helper/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthController serves component health
type HealthController struct {
	checker *health.Checker
}

// NewHealthController creates a new health controller
func NewHealthController(checker *health.Checker) *HealthController {
	return &HealthController{checker: checker}
}

// RegisterRoutes registers /health on router
func (h *HealthController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", gin.WrapF(h.checker.HTTPHandler()))
}
