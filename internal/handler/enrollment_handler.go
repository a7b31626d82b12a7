package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/service"
	"github.com/noah-isme/voxen-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, actor models.Actor, req service.CreateEnrollmentRequest) (*models.Enrollment, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateEnrollmentRequest) (*models.Enrollment, error)
	Close(ctx context.Context, actor models.Actor, id string, req service.CloseRequest) error
}

// EnrollmentHandler exposes the enrollment registry.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param instructorId query string false "Filter by instructor"
// @Param modality query string false "Filter by modality"
// @Param open query bool false "Only enrollments open today"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	open, err := optionalBool(c, "open")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentFilter{
		StudentID:    c.Query("studentId"),
		InstructorID: c.Query("instructorId"),
		Modality:     models.Modality(c.Query("modality")),
		OpenOnly:     open != nil && *open,
	}
	items, err := h.enrollments.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Enroll a student in a modality
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.AuditResource(c, enrollment.ID)
	response.Created(c, enrollment)
}

// Update godoc
// @Summary Update an open enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Close an enrollment
// @Tags Enrollments
// @Accept json
// @Param id path string true "Enrollment ID"
// @Param payload body service.CloseRequest false "Reason and optional date"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := closeRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.enrollments.Close(c.Request.Context(), actor, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
