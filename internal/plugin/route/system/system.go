// Package system serves the liveness, readiness and metrics endpoints.
package system

import (
	"net/http"
	"sync/atomic"

	registryroute "github.com/TruongKhoiNguyen/Agora-api/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ready atomic.Bool

// MarkReady flips /ready to 200 once StartServer has wired every subsystem.
func MarkReady() { ready.Store(true) }

// MarkDraining flips /ready back to 503 so balancers stop routing during shutdown.
func MarkDraining() { ready.Store(false) }

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:   "system",
		Type:   registryroute.RouteTypeManagement,
		Loader: func(m registryroute.Mount) error { MountRoutes(m.Router); return nil },
	})
}

func MountRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
