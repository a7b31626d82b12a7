package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/repository"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	student     models.Student
	enrollments map[string]models.Enrollment
	lastFilter  models.EnrollmentFilter
	closed      map[string]models.LifecycleClose
}

func newMockEnrollmentRepo(student models.Student, enrollments ...models.Enrollment) *mockEnrollmentRepo {
	m := &mockEnrollmentRepo{student: student, enrollments: map[string]models.Enrollment{}, closed: map[string]models.LifecycleClose{}}
	for _, e := range enrollments {
		m.enrollments[e.ID] = e
	}
	return m
}

func (m *mockEnrollmentRepo) open(today time.Time) []models.Enrollment {
	var open []models.Enrollment
	for _, e := range m.enrollments {
		if e.OpenOn(today) {
			open = append(open, e)
		}
	}
	return open
}

func (m *mockEnrollmentRepo) List(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	m.lastFilter = filter
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: e, StudentName: m.student.FullName})
	}
	return out, nil
}

func (m *mockEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(_ context.Context, enrollment *models.Enrollment, today time.Time, check repository.EnrollmentCheck) error {
	if enrollment.StudentID != m.student.ID {
		return sql.ErrNoRows
	}
	if err := check(m.student, m.open(today)); err != nil {
		return err
	}
	enrollment.ID = "e-new"
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Update(_ context.Context, enrollment *models.Enrollment, today time.Time, check repository.EnrollmentCheck) error {
	existing, ok := m.enrollments[enrollment.ID]
	if !ok || existing.EndDate != nil {
		return sql.ErrNoRows
	}
	if err := check(m.student, m.open(today)); err != nil {
		return err
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Close(_ context.Context, id string, closure models.LifecycleClose) error {
	e, ok := m.enrollments[id]
	if !ok || e.EndDate != nil {
		return sql.ErrNoRows
	}
	e.EndDate = &closure.Date
	e.EndReason = &closure.Reason
	m.enrollments[id] = e
	m.closed[id] = closure
	return nil
}

func newEnrollmentServiceForTest(repo *mockEnrollmentRepo) *EnrollmentService {
	return NewEnrollmentService(repo, defaultInstructors(), nil, nil, fixedClock(2024, time.June, 20), nil)
}

func TestEnrollmentServiceCreate(t *testing.T) {
	student := studentFixture("s1", 10, june2024)
	repo := newMockEnrollmentRepo(student, completeEnrollment("s1", models.ModalityMusical))
	svc := newEnrollmentServiceForTest(repo)

	req := CreateEnrollmentRequest{StudentID: "s1", EnrollmentInput: completeInput("i2", models.ModalityVoiceOver, "220")}
	enrollment, err := svc.Create(context.Background(), adminActor(), req)
	require.NoError(t, err)
	assert.Equal(t, "e-new", enrollment.ID)
	assert.Equal(t, "s1", enrollment.StudentID)
	assert.Len(t, repo.enrollments, 2)
}

func TestEnrollmentServiceCreateDuplicateModality(t *testing.T) {
	repo := newMockEnrollmentRepo(studentFixture("s1", 10, june2024), completeEnrollment("s1", models.ModalityMusical))
	svc := newEnrollmentServiceForTest(repo)

	req := CreateEnrollmentRequest{StudentID: "s1", EnrollmentInput: completeInput("i1", models.ModalityMusical, "300")}
	_, err := svc.Create(context.Background(), adminActor(), req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestEnrollmentServiceCreateKeepsApprovedStudentsComplete(t *testing.T) {
	repo := newMockEnrollmentRepo(studentFixture("s1", 10, june2024), completeEnrollment("s1", models.ModalityMusical))
	svc := newEnrollmentServiceForTest(repo)

	req := CreateEnrollmentRequest{StudentID: "s1", EnrollmentInput: EnrollmentInput{InstructorID: "i1", Modality: models.ModalityVoiceOver}}
	_, err := svc.Create(context.Background(), adminActor(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	for _, detail := range appErrors.FromError(err).Details {
		assert.Contains(t, detail, "Locução")
	}

	pending := studentFixture("s1", 10, june2024)
	pending.Approved = false
	repo.student = pending
	_, err = svc.Create(context.Background(), adminActor(), req)
	require.NoError(t, err)
}

func TestEnrollmentServiceCreateForInactiveStudent(t *testing.T) {
	inactive := studentFixture("s1", 10, june2024)
	inactive.Active = false
	svc := newEnrollmentServiceForTest(newMockEnrollmentRepo(inactive))

	req := CreateEnrollmentRequest{StudentID: "s1", EnrollmentInput: completeInput("i1", models.ModalityMusical, "300")}
	_, err := svc.Create(context.Background(), adminActor(), req)
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	req.StudentID = "missing"
	_, err = svc.Create(context.Background(), adminActor(), req)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentServiceUpdate(t *testing.T) {
	existing := completeEnrollment("s1", models.ModalityMusical)
	repo := newMockEnrollmentRepo(studentFixture("s1", 10, june2024), existing)
	svc := newEnrollmentServiceForTest(repo)

	weekday := 5
	req := UpdateEnrollmentRequest{InstructorID: "i2", MonthlyPrice: decimal.RequireFromString("320"), Weekday: &weekday, TimeSlot: "20:00", StartDate: "2024-03-01"}
	updated, err := svc.Update(context.Background(), adminActor(), existing.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "i2", updated.InstructorID)
	assert.Equal(t, models.ModalityMusical, updated.Modality)
	assert.True(t, decimal.RequireFromString("320").Equal(repo.enrollments[existing.ID].MonthlyPrice))

	req.MonthlyPrice = decimal.Zero
	_, err = svc.Update(context.Background(), adminActor(), existing.ID, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	instructor := models.Actor{UserID: "u", Role: models.RoleInstructor, InstructorID: "i1"}
	req.MonthlyPrice = decimal.RequireFromString("320")
	_, err = svc.Update(context.Background(), instructor, existing.ID, req)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestEnrollmentServiceClose(t *testing.T) {
	existing := completeEnrollment("s1", models.ModalityMusical)
	repo := newMockEnrollmentRepo(studentFixture("s1", 10, june2024), existing)
	svc := newEnrollmentServiceForTest(repo)

	require.NoError(t, svc.Close(context.Background(), adminActor(), existing.ID, CloseRequest{Reason: "schedule conflict", Date: "2024-06-30"}))
	assert.Equal(t, time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), repo.closed[existing.ID].Date)

	err := svc.Close(context.Background(), adminActor(), existing.ID, CloseRequest{Reason: "again"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = svc.Update(context.Background(), adminActor(), existing.ID, UpdateEnrollmentRequest{InstructorID: "i1"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestEnrollmentServiceListScopesToActor(t *testing.T) {
	repo := newMockEnrollmentRepo(studentFixture("s1", 10, june2024), completeEnrollment("s1", models.ModalityMusical))
	svc := newEnrollmentServiceForTest(repo)

	actor := models.Actor{UserID: "u", Role: models.RoleStudent, StudentID: "s1"}
	items, err := svc.List(context.Background(), actor, models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, models.Scope{StudentID: "s1"}, repo.lastFilter.Scope)

	_, err = svc.List(context.Background(), actor, models.EnrollmentFilter{Modality: "ballet"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
