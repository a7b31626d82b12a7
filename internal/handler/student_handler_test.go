package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/service"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type fakeStudentSrv struct {
	lastActor  models.Actor
	lastFilter models.StudentFilter
	lastCreate service.CreateStudentRequest
	lastClose  service.CloseRequest
	lastID     string
	err        error
}

func (f *fakeStudentSrv) List(_ context.Context, actor models.Actor, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	f.lastActor = actor
	f.lastFilter = filter
	return []models.StudentDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, f.err
}

func (f *fakeStudentSrv) Get(_ context.Context, actor models.Actor, id string) (*models.StudentDetail, error) {
	f.lastActor = actor
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.StudentDetail{Student: models.Student{ID: id}}, nil
}

func (f *fakeStudentSrv) Create(_ context.Context, actor models.Actor, req service.CreateStudentRequest) (*models.StudentDetail, error) {
	f.lastActor = actor
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.StudentDetail{Student: models.Student{ID: "s-new", FullName: req.FullName}}, nil
}

func (f *fakeStudentSrv) Update(_ context.Context, actor models.Actor, id string, _ service.UpdateStudentRequest) (*models.StudentDetail, error) {
	f.lastActor = actor
	f.lastID = id
	return &models.StudentDetail{Student: models.Student{ID: id}}, f.err
}

func (f *fakeStudentSrv) Close(_ context.Context, actor models.Actor, id string, req service.CloseRequest) error {
	f.lastActor = actor
	f.lastID = id
	f.lastClose = req
	return f.err
}

func (f *fakeStudentSrv) Reactivate(_ context.Context, _ models.Actor, id string) (*models.StudentDetail, error) {
	f.lastID = id
	return &models.StudentDetail{Student: models.Student{ID: id, Active: true}}, f.err
}

type fakeApprovalSrv struct {
	approved    []string
	effectivate []string
	err         error
}

func (f *fakeApprovalSrv) Approve(_ context.Context, _ models.Actor, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.approved = append(f.approved, id)
	return &models.Student{ID: id, Approved: true}, nil
}

func (f *fakeApprovalSrv) Effectivate(_ context.Context, _ models.Actor, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.effectivate = append(f.effectivate, id)
	return &models.Student{ID: id}, nil
}

func TestStudentHandlerListParsesFilters(t *testing.T) {
	students := &fakeStudentSrv{}
	handler := NewStudentHandler(students, &fakeApprovalSrv{})

	c, rec := newTestContext(http.MethodGet, "/students?search=%20ana%20&active=true&approved=false&page=2&limit=10&sort=name", nil, instructorClaims("i1"))
	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", students.lastFilter.Search)
	require.NotNil(t, students.lastFilter.Active)
	assert.True(t, *students.lastFilter.Active)
	require.NotNil(t, students.lastFilter.Approved)
	assert.False(t, *students.lastFilter.Approved)
	assert.Equal(t, 2, students.lastFilter.Page)
	assert.Equal(t, 10, students.lastFilter.PageSize)
	assert.Equal(t, "i1", students.lastActor.InstructorID)

	c, rec = newTestContext(http.MethodGet, "/students?active=maybe", nil, adminClaims())
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	students := &fakeStudentSrv{}
	handler := NewStudentHandler(students, &fakeApprovalSrv{})

	body := map[string]interface{}{
		"full_name":      "Marina Costa",
		"phone":          "+5511988887777",
		"due_anchor_day": 10,
		"enrollments":    []map[string]interface{}{{"instructor_id": "i1", "modality": "musical"}},
	}
	c, rec := newTestContext(http.MethodPost, "/students", body, adminClaims())
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Marina Costa", students.lastCreate.FullName)
	require.Len(t, students.lastCreate.Enrollments, 1)
	assert.Equal(t, models.Modality("musical"), students.lastCreate.Enrollments[0].Modality)

	c, rec = newTestContext(http.MethodPost, "/students", "{not json", adminClaims())
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerDeleteReadsReason(t *testing.T) {
	students := &fakeStudentSrv{}
	handler := NewStudentHandler(students, &fakeApprovalSrv{})

	c, rec := newTestContext(http.MethodDelete, "/students/s1?reason=moved", nil, adminClaims())
	withID(c, "s1")
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "s1", students.lastID)
	assert.Equal(t, "moved", students.lastClose.Reason)

	c, rec = newTestContext(http.MethodDelete, "/students/s1", map[string]string{"reason": "schedule", "date": "2024-06-30"}, adminClaims())
	withID(c, "s1")
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, service.CloseRequest{Reason: "schedule", Date: "2024-06-30"}, students.lastClose)
}

func TestStudentHandlerApproveMapsErrors(t *testing.T) {
	approvals := &fakeApprovalSrv{}
	handler := NewStudentHandler(&fakeStudentSrv{}, approvals)

	c, rec := newTestContext(http.MethodPost, "/students/s1/approve", nil, adminClaims())
	withID(c, "s1")
	handler.Approve(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, approvals.approved)

	approvals.err = appErrors.Clone(appErrors.ErrInvalidState, "student is already approved")
	c, rec = newTestContext(http.MethodPost, "/students/s1/approve", nil, adminClaims())
	withID(c, "s1")
	handler.Approve(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", decodeEnvelope(t, rec).Error.Code)

	c, rec = newTestContext(http.MethodPost, "/students/s1/effectivate", nil, nil)
	withID(c, "s1")
	handler.Effectivate(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	students := &fakeStudentSrv{err: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	handler := NewStudentHandler(students, &fakeApprovalSrv{})

	c, rec := newTestContext(http.MethodGet, "/students/s9", nil, studentClaims("s1"))
	withID(c, "s9")
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "s1", students.lastActor.StudentID)
}
