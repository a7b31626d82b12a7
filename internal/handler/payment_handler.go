package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/service"
	"github.com/noah-isme/voxen-api/pkg/response"
)

type paymentRoster interface {
	ListPayments(ctx context.Context, actor models.Actor, filter models.PaymentFilter) ([]models.PaymentRow, error)
}

type paymentService interface {
	Submit(ctx context.Context, actor models.Actor, req models.SubmitPaymentRequest) (*models.Payment, error)
	Approve(ctx context.Context, actor models.Actor, paymentID string, req models.ReviewPaymentRequest) (*models.ReviewOutcome, error)
	Reject(ctx context.Context, actor models.Actor, paymentID string, req models.ReviewPaymentRequest) (*models.ReviewOutcome, error)
}

type paymentExporter interface {
	Payments(ctx context.Context, actor models.Actor, filter models.PaymentFilter, rawFormat string) (*service.ExportFile, error)
}

// PaymentHandler exposes the payments roster, submission and review endpoints.
type PaymentHandler struct {
	roster   paymentRoster
	payments paymentService
	exporter paymentExporter
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(roster paymentRoster, payments paymentService, exporter paymentExporter) *PaymentHandler {
	return &PaymentHandler{roster: roster, payments: payments, exporter: exporter}
}

// List godoc
// @Summary List payments with derived status
// @Description Without month/year every stored payment is listed. With them, one row per eligible student is derived for that month.
// @Tags Payments
// @Produce json
// @Param status query string false "paid, pending or overdue"
// @Param studentId query string false "Filter by student"
// @Param instructorId query string false "Filter by instructor"
// @Param month query int false "Reference month"
// @Param year query int false "Reference year"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter, err := paymentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.roster.ListPayments(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil, map[string]interface{}{"count": len(rows)})
}

// Submit godoc
// @Summary Submit a payment proof
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body models.SubmitPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Submit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	payment, err := h.payments.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.AuditResource(c, payment.ID)
	response.Created(c, payment)
}

// Approve godoc
// @Summary Approve a pending payment
// @Description Advances the student's due cursor when the payment covers it.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body models.ReviewPaymentRequest false "Reviewer note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/approve [post]
func (h *PaymentHandler) Approve(c *gin.Context) {
	h.review(c, h.payments.Approve)
}

// Reject godoc
// @Summary Reject a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body models.ReviewPaymentRequest false "Reviewer note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/reject [post]
func (h *PaymentHandler) Reject(c *gin.Context) {
	h.review(c, h.payments.Reject)
}

func (h *PaymentHandler) review(c *gin.Context, action func(context.Context, models.Actor, string, models.ReviewPaymentRequest) (*models.ReviewOutcome, error)) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.ReviewPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid payload"))
			return
		}
	}
	outcome, err := action(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Export godoc
// @Summary Export the payments roster
// @Tags Payments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "paid, pending or overdue"
// @Param month query int false "Reference month"
// @Param year query int false "Reference year"
// @Success 200 {file} file
// @Router /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter, err := paymentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.Payments(c.Request.Context(), actor, filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func paymentFilter(c *gin.Context) (models.PaymentFilter, error) {
	filter := models.PaymentFilter{
		Status:       billing.Status(c.Query("status")),
		StudentID:    c.Query("studentId"),
		InstructorID: c.Query("instructorId"),
	}
	var err error
	if filter.Month, err = optionalInt(c, "month", 0); err != nil {
		return filter, err
	}
	if filter.Year, err = optionalInt(c, "year", 0); err != nil {
		return filter, err
	}
	return filter, nil
}
