package controller

import (
	"net/http"

	"codejudge/internal/judge/scheduler"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the judge endpoints. limit guards the endpoints that start runs.
func RegisterRoutes(r gin.IRouter, h *JudgeController, limit gin.HandlerFunc) {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	r.POST("/execute", limit, h.Execute)
	r.POST("/api/execute", limit, h.Execute)

	v1 := r.Group("/api/v1/judge")
	v1.POST("/execute", limit, h.Execute)
	v1.POST("/runs", limit, h.SubmitRun)
	v1.GET("/runs/:token", h.GetRun)
	v1.GET("/runs/:token/watch", h.WatchRun)
	v1.GET("/verdicts/:id", h.GetVerdict)
}

// Healthz reports liveness together with the current scheduler load.
func Healthz(stats func() scheduler.Stats) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if stats != nil {
			body["scheduler"] = stats()
		}
		c.JSON(http.StatusOK, body)
	}
}
