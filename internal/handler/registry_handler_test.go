package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/service"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	lastFilter models.EnrollmentFilter
	lastCreate service.CreateEnrollmentRequest
	lastClose  service.CloseRequest
	err        error
}

func (f *fakeEnrollmentSrv) List(_ context.Context, _ models.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	f.lastFilter = filter
	return []models.EnrollmentDetail{}, f.err
}

func (f *fakeEnrollmentSrv) Create(_ context.Context, _ models.Actor, req service.CreateEnrollmentRequest) (*models.Enrollment, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Enrollment{ID: "e-new", StudentID: req.StudentID, Modality: req.Modality}, nil
}

func (f *fakeEnrollmentSrv) Update(_ context.Context, _ models.Actor, id string, _ service.UpdateEnrollmentRequest) (*models.Enrollment, error) {
	return &models.Enrollment{ID: id}, f.err
}

func (f *fakeEnrollmentSrv) Close(_ context.Context, _ models.Actor, _ string, req service.CloseRequest) error {
	f.lastClose = req
	return f.err
}

type fakeInstructorSrv struct {
	lastFilter models.InstructorFilter
	created    service.InstructorRequest
}

func (f *fakeInstructorSrv) List(_ context.Context, _ models.Actor, filter models.InstructorFilter) ([]models.Instructor, error) {
	f.lastFilter = filter
	return []models.Instructor{{ID: "i1", FullName: "Ana Lima", Active: true}}, nil
}

func (f *fakeInstructorSrv) Get(_ context.Context, _ models.Actor, id string) (*models.Instructor, error) {
	if id != "i1" {
		return nil, appErrors.ErrNotFound
	}
	return &models.Instructor{ID: id}, nil
}

func (f *fakeInstructorSrv) Create(_ context.Context, actor models.Actor, req service.InstructorRequest) (*models.Instructor, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	f.created = req
	return &models.Instructor{ID: "i-new", FullName: req.FullName}, nil
}

func (f *fakeInstructorSrv) Update(_ context.Context, _ models.Actor, id string, req service.InstructorRequest) (*models.Instructor, error) {
	return &models.Instructor{ID: id, FullName: req.FullName}, nil
}

func TestEnrollmentHandlerListAndCreate(t *testing.T) {
	svc := &fakeEnrollmentSrv{}
	handler := NewEnrollmentHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/enrollments?studentId=s1&modality=locucao&open=true", nil, adminClaims())
	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EnrollmentFilter{StudentID: "s1", Modality: "locucao", OpenOnly: true}, svc.lastFilter)

	body := map[string]interface{}{"student_id": "s1", "instructor_id": "i1", "modality": "musical", "monthly_price": "300"}
	c, rec = newTestContext(http.MethodPost, "/enrollments", body, adminClaims())
	handler.Create(c)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "s1", svc.lastCreate.StudentID)
	assert.Equal(t, "i1", svc.lastCreate.InstructorID)

	svc.err = appErrors.Clone(appErrors.ErrConflict, "student already enrolled in Musical")
	c, rec = newTestContext(http.MethodPost, "/enrollments", body, adminClaims())
	handler.Create(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnrollmentHandlerDelete(t *testing.T) {
	svc := &fakeEnrollmentSrv{}
	handler := NewEnrollmentHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/enrollments/e1", map[string]string{"reason": "schedule conflict"}, instructorClaims("i1"))
	withID(c, "e1")
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "schedule conflict", svc.lastClose.Reason)

	svc.err = errors.New("connection reset")
	c, rec = newTestContext(http.MethodDelete, "/enrollments/e1?reason=x", nil, adminClaims())
	withID(c, "e1")
	handler.Delete(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInstructorHandler(t *testing.T) {
	svc := &fakeInstructorSrv{}
	handler := NewInstructorHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/instructors?active=true&search=ana", nil, instructorClaims("i1"))
	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastFilter.Active)
	assert.Equal(t, "ana", svc.lastFilter.Search)

	c, rec = newTestContext(http.MethodGet, "/instructors/i9", nil, adminClaims())
	withID(c, "i9")
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := map[string]string{"full_name": "Bruno Reis", "phone": "+5511900002222"}
	c, rec = newTestContext(http.MethodPost, "/instructors", body, instructorClaims("i1"))
	handler.Create(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/instructors", body, adminClaims())
	handler.Create(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Bruno Reis", svc.created.FullName)
}
