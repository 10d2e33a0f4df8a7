// Package http exposes an experiment's runner over a small JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/usecase"
)

// Handler handles HTTP requests for one experiment.
type Handler struct {
	runner *usecase.Runner
}

// NewHandler creates a new HTTP handler.
func NewHandler(runner *usecase.Runner) *Handler {
	return &Handler{
		runner: runner,
	}
}

var outputKinds = map[string]bool{
	"":                            true,
	manifest.KindGrid:             true,
	manifest.KindVerticalGrid:     true,
	manifest.KindInitialCondition: true,
	manifest.KindSegment:          true,
	manifest.KindTides:            true,
}

// GetGrid handles GET /v1/grid.
func (h *Handler) GetGrid(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.Info())
}

// GetOutputs handles GET /v1/outputs.
func (h *Handler) GetOutputs(c *gin.Context) {
	kind := c.Query("kind")
	if !outputKinds[kind] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown output kind %q", kind)})
		return
	}
	entries, err := h.runner.Outputs(c.Request.Context(), kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []manifest.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"outputs": entries,
		"count":   len(entries),
	})
}

// RunGrid handles POST /v1/runs/grid.
func (h *Handler) RunGrid(c *gin.Context) { h.run(c, h.runner.Grid) }

// RunInitialCondition handles POST /v1/runs/initial-condition.
func (h *Handler) RunInitialCondition(c *gin.Context) { h.run(c, h.runner.InitialCondition) }

// RunSegments handles POST /v1/runs/segments.
func (h *Handler) RunSegments(c *gin.Context) { h.run(c, h.runner.Segments) }

// RunTides handles POST /v1/runs/tides.
func (h *Handler) RunTides(c *gin.Context) { h.run(c, h.runner.Tides) }

// run executes a stage for the duration of the request.
func (h *Handler) run(c *gin.Context, stage func(context.Context) (*usecase.RunStatus, error)) {
	status, err := stage(c.Request.Context())
	switch {
	case errors.Is(err, usecase.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": status})
	default:
		c.JSON(http.StatusOK, status)
	}
}

// GetLastRun handles GET /v1/runs/last.
func (h *Handler) GetLastRun(c *gin.Context) {
	last := h.runner.Last()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
