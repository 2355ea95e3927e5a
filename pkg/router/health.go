package router

import (
	"context"
	"fmt"
	"runtime"

	"homework-helper/backend/internal/api"
	"homework-helper/backend/pkg/health"
)

// setupHealthRoutes adds stream and memory components to the checker and
// serves it on /health; /api/health is registered with the API group
func (r *Router) setupHealthRoutes() {
	r.Container.Health.RegisterCheck("websocket", false, func(context.Context) (health.Status, string, error) {
		return health.StatusUp, fmt.Sprintf("%d active connections", r.Stream.ActiveConnections()), nil
	})
	r.Container.Health.RegisterCheck("memory", false, func(context.Context) (health.Status, string, error) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		return health.StatusUp, fmt.Sprintf("alloc %d MB, sys %d MB, %d GC cycles",
			memStats.Alloc/1024/1024, memStats.Sys/1024/1024, memStats.NumGC), nil
	})

	api.NewHealthController(r.Container.Health).RegisterRoutes(&r.Engine.RouterGroup)
}
