// Package system mounts the health, readiness and metrics endpoints.
package system

import (
	"net/http"
	"sync/atomic"

	registryroute "github.com/chirino/collection-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

var state atomic.Int32

// MarkReady signals that StartServer finished and traffic may be routed here.
func MarkReady() {
	state.Store(stateReady)
}

// MarkDraining flips readiness off while in-flight requests finish.
func MarkDraining() {
	state.Store(stateDraining)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "system",
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine, _ *registryroute.Deps) error {
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			r.GET("/ready", ready)
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))
			return nil
		},
	})
}

func ready(c *gin.Context) {
	switch state.Load() {
	case stateReady:
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	case stateDraining:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
	}
}
