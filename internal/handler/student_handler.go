package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/service"
	"github.com/noah-isme/voxen-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, actor models.Actor, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, actor models.Actor, req service.CreateStudentRequest) (*models.StudentDetail, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateStudentRequest) (*models.StudentDetail, error)
	Close(ctx context.Context, actor models.Actor, id string, req service.CloseRequest) error
	Reactivate(ctx context.Context, actor models.Actor, id string) (*models.StudentDetail, error)
}

type approvalService interface {
	Approve(ctx context.Context, actor models.Actor, studentID string) (*models.Student, error)
	Effectivate(ctx context.Context, actor models.Actor, studentID string) (*models.Student, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students  studentService
	approvals approvalService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, approvals approvalService) *StudentHandler {
	return &StudentHandler{students: students, approvals: approvals}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name, phone or e-mail"
// @Param instructorId query string false "Filter by instructor"
// @Param active query bool false "Filter by active state"
// @Param approved query bool false "Filter by approval state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (name, created_at, due_anchor_day)"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.InstructorID = c.Query("instructorId")
	if filter.Active, err = optionalBool(c, "active"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Approved, err = optionalBool(c, "approved"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Page, err = optionalInt(c, "page", 1); err != nil {
		response.Error(c, err)
		return
	}
	if filter.PageSize, err = optionalInt(c, "limit", 20); err != nil {
		response.Error(c, err)
		return
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, pagination, err := h.students.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student with enrollments
// @Description Admin-created students are approved immediately; instructor-created ones wait for approval.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.AuditResource(c, student.ID)
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Close student
// @Description Soft-deletes the student and closes every open enrollment with the same date and reason.
// @Tags Students
// @Accept json
// @Param id path string true "Student ID"
// @Param payload body service.CloseRequest false "Reason and optional date"
// @Param reason query string false "Reason when no body is sent"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
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
	if err := h.students.Close(c.Request.Context(), actor, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reactivate godoc
// @Summary Reactivate a closed student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reactivate [post]
func (h *StudentHandler) Reactivate(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Reactivate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Approve godoc
// @Summary Approve a pending student
// @Description Requires at least one complete open enrollment.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/approve [post]
func (h *StudentHandler) Approve(c *gin.Context) {
	h.review(c, h.approvals.Approve)
}

// Effectivate godoc
// @Summary Effectivate an experimental student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/effectivate [post]
func (h *StudentHandler) Effectivate(c *gin.Context) {
	h.review(c, h.approvals.Effectivate)
}

func (h *StudentHandler) review(c *gin.Context, action func(context.Context, models.Actor, string) (*models.Student, error)) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := action(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// closeRequest reads the close reason from the body, falling back to query parameters.
func closeRequest(c *gin.Context) (service.CloseRequest, error) {
	var req service.CloseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, bindError(err, "invalid payload")
		}
		return req, nil
	}
	req.Reason = c.Query("reason")
	req.Date = c.Query("date")
	return req, nil
}
