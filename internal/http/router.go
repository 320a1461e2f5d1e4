// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"park/internal/http/handlers"
	"park/internal/http/middleware"
	"park/internal/modules/facility"
)

type RouterDeps struct {
	Facility *facility.Facility
	// Archive is optional; leave nil when receipts are not archived.
	Archive   handlers.ArchiveStats
	Gatherer  prometheus.Gatherer
	GateToken string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	gate := api.Group("", middleware.GateToken(deps.GateToken))
	gateHandler := handlers.NewGateHandler(deps.Facility)
	gate.POST("/entries", gateHandler.Entry)
	gate.POST("/exits", gateHandler.Exit)

	plateHandler := handlers.NewPlateHandler(deps.Facility)
	api.GET("/plates/:plate/receipts", plateHandler.Receipts)
	api.GET("/plates/:plate/session", plateHandler.Session)
	api.GET("/plates/:plate/quote", plateHandler.Quote)

	facilityHandler := handlers.NewFacilityHandler(deps.Facility, deps.Archive)
	api.GET("/status", facilityHandler.Status)
	api.GET("/spots", facilityHandler.Spots)
	api.GET("/traffic", facilityHandler.Traffic)
	r.GET("/debug/invariants", facilityHandler.Invariants)

	return r
}
