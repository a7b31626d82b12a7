package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
	"github.com/noah-isme/voxen-api/pkg/response"
)

type dashboardService interface {
	Stats(ctx context.Context, actor models.Actor) (*models.DashboardStats, bool, error)
	Trend(ctx context.Context, actor models.Actor, months int) ([]models.TrendPoint, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Stats godoc
// @Summary Dashboard figures for the current month
// @Description Active students, paid/pending/overdue counts and approved revenue, scoped to the caller.
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/stats [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if _, ok := meta["processing_time_ms"]; !ok {
		meta["processing_time_ms"] = time.Since(start).Milliseconds()
	}
	response.JSON(c, http.StatusOK, stats, nil, meta)
}

// Trend godoc
// @Summary Enrolled students at the end of each recent month
// @Tags Dashboard
// @Produce json
// @Param months query int false "Number of months (default 12)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/enrollment-trend [get]
func (h *DashboardHandler) Trend(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	months, err := optionalInt(c, "months", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	points, err := h.service.Trend(c.Request.Context(), actor, months)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, points, nil)
}
