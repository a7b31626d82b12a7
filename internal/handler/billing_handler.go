package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/response"
)

type dueTodayLister interface {
	ListStudentsDueToday(ctx context.Context, actor models.Actor) ([]models.DueStudent, error)
}

// BillingHandler serves the due-today notification feed.
type BillingHandler struct {
	billing dueTodayLister
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(billing dueTodayLister) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// DueToday godoc
// @Summary Students whose monthly fee is due today
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /billing/due-today [get]
func (h *BillingHandler) DueToday(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.billing.ListStudentsDueToday(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}
