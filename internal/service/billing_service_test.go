package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type stubActiveStudents struct {
	students  []models.Student
	lastScope models.Scope
}

func (s *stubActiveStudents) ListActive(_ context.Context, scope models.Scope, _ time.Time) ([]models.Student, error) {
	s.lastScope = scope
	if scope.StudentID == "" {
		return s.students, nil
	}
	var out []models.Student
	for _, st := range s.students {
		if st.ID == scope.StudentID {
			out = append(out, st)
		}
	}
	return out, nil
}

type stubOpenEnrollments struct {
	enrollments []models.Enrollment
}

func (s *stubOpenEnrollments) ListOpenByStudents(_ context.Context, ids []string, _ time.Time) ([]models.Enrollment, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if wanted[e.StudentID] {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubPaymentRecords struct {
	records []models.PaymentRecord
	queries []models.PaymentQuery
	count   int
	revenue decimal.Decimal
}

func (s *stubPaymentRecords) List(_ context.Context, q models.PaymentQuery) ([]models.PaymentRecord, error) {
	s.queries = append(s.queries, q)
	var out []models.PaymentRecord
	for _, r := range s.records {
		if q.Period != nil && !r.Period().Equal(*q.Period) {
			continue
		}
		if q.Scope.StudentID != "" && r.StudentID != q.Scope.StudentID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubPaymentRecords) Count(context.Context, models.Scope, time.Time) (int, error) {
	return s.count, nil
}

func (s *stubPaymentRecords) SumApproved(context.Context, models.Scope, billing.Period, time.Time) (decimal.Decimal, error) {
	return s.revenue, nil
}

func fixedClock(year int, month time.Month, day int) Clock {
	now := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return Clock{Location: time.UTC, Now: func() time.Time { return now }}
}

func studentFixture(id string, anchor int, cursor billing.Period) models.Student {
	return models.Student{
		ID:           id,
		FullName:     "Student " + id,
		Phone:        "+5511999990000",
		DueAnchorDay: anchor,
		DueMonth:     cursor.Month,
		DueYear:      cursor.Year,
		Active:       true,
		Approved:     true,
	}
}

func enrollmentFixture(studentID, instructorID string, modality models.Modality, price string) models.Enrollment {
	return models.Enrollment{
		ID:           studentID + "-" + string(modality),
		StudentID:    studentID,
		InstructorID: instructorID,
		Modality:     modality,
		MonthlyPrice: decimal.RequireFromString(price),
	}
}

func paymentFixture(id, studentID string, p billing.Period, status billing.PaymentStatus, anchor int) models.PaymentRecord {
	return models.PaymentRecord{
		Payment: models.Payment{
			ID:          id,
			StudentID:   studentID,
			RefMonth:    p.Month,
			RefYear:     p.Year,
			AmountPaid:  decimal.RequireFromString("250.00"),
			Status:      status,
			SubmittedAt: time.Date(p.Year, time.Month(p.Month), 1, 9, 0, 0, 0, time.UTC),
		},
		StudentName:  "Student " + studentID,
		DueAnchorDay: anchor,
	}
}

var june2024 = billing.Period{Month: 6, Year: 2024}

func adminActor() models.Actor {
	return models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
}

func TestBillingServiceMonthWithoutPaymentPastDueIsOverdue(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 15, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Month: 6, Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, billing.StatusOverdue, rows[0].Status)
	assert.Equal(t, "unpaid:s1:2024-06", rows[0].ID)
	assert.Nil(t, rows[0].PaymentID)
	require.NotNil(t, rows[0].AmountDue)
	assert.True(t, decimal.RequireFromString("300").Equal(*rows[0].AmountDue))
	assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
}

func TestBillingServicePendingBeforeDueDateStaysPending(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 15, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	payments := &stubPaymentRecords{records: []models.PaymentRecord{paymentFixture("p1", "s1", june2024, billing.PaymentPending, 15)}}
	svc := NewBillingService(students, enrollments, payments, fixedClock(2024, time.June, 10), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Month: 6, Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, billing.StatusPending, rows[0].Status)
	require.NotNil(t, rows[0].PaymentID)
	assert.Equal(t, "p1", *rows[0].PaymentID)
}

func TestBillingServiceMonthOmitsStudentsNotYetDue(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 15, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 10), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Month: 6, Year: 2024})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBillingServiceMonthPrefersApprovedPayment(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 5, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	payments := &stubPaymentRecords{records: []models.PaymentRecord{
		paymentFixture("p-rejected", "s1", june2024, billing.PaymentRejected, 5),
		paymentFixture("p-approved", "s1", june2024, billing.PaymentApproved, 5),
	}}
	svc := NewBillingService(students, enrollments, payments, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Month: 6})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p-approved", rows[0].ID)
	assert.Equal(t, billing.StatusPaid, rows[0].Status)
}

func TestBillingServiceStoredListAddsSyntheticOverdueRows(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{
		studentFixture("s1", 5, june2024),
		studentFixture("s2", 5, june2024),
		studentFixture("s3", 25, june2024),
	}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{
		enrollmentFixture("s1", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s2", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s3", "i1", models.ModalityMusical, "300"),
	}}
	payments := &stubPaymentRecords{records: []models.PaymentRecord{
		paymentFixture("p1", "s1", june2024, billing.PaymentRejected, 5),
	}}
	svc := NewBillingService(students, enrollments, payments, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Status: billing.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].ID)
	assert.False(t, rows[0].Synthetic)
	assert.Equal(t, "unpaid:s2:2024-06", rows[1].ID)
	assert.True(t, rows[1].Synthetic)
}

func TestBillingServiceStoredListKeepsPaymentsOfInactiveStudents(t *testing.T) {
	gone := studentFixture("s9", 5, june2024)
	gone.Active = false
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 5, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	may := billing.Period{Month: 5, Year: 2024}
	payments := &stubPaymentRecords{records: []models.PaymentRecord{
		paymentFixture("p1", "s1", june2024, billing.PaymentApproved, 5),
		paymentFixture("p9", gone.ID, may, billing.PaymentApproved, 5),
	}}
	svc := NewBillingService(students, enrollments, payments, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p9", rows[1].ID)
	assert.Equal(t, billing.StatusPaid, rows[1].Status)

	require.Len(t, payments.queries, 1)
	assert.Equal(t, models.PaymentQuery{Today: payments.queries[0].Today}, payments.queries[0])
}

func TestBillingServiceInstructorListIsConfinedToOwnStudents(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s1", 5, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s1", "i1", models.ModalityMusical, "300")}}
	payments := &stubPaymentRecords{}
	svc := NewBillingService(students, enrollments, payments, fixedClock(2024, time.June, 20), nil)
	actor := models.Actor{UserID: "u-i1", Role: models.RoleInstructor, InstructorID: "i1"}

	_, err := svc.ListPayments(context.Background(), actor, models.PaymentFilter{})
	require.NoError(t, err)
	_, err = svc.ListPayments(context.Background(), actor, models.PaymentFilter{Month: 6, Year: 2024})
	require.NoError(t, err)

	require.Len(t, payments.queries, 2)
	for _, q := range payments.queries {
		assert.Equal(t, models.Scope{InstructorID: "i1"}, q.Scope)
	}
	assert.Equal(t, models.Scope{InstructorID: "i1"}, students.lastScope)
}

func TestBillingServiceStoredListWithoutOverdueFilterHasNoSyntheticRows(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{studentFixture("s2", 5, june2024)}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{enrollmentFixture("s2", "i1", models.ModalityMusical, "300")}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBillingServiceStudentSeesOnlyOwnRows(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{
		studentFixture("s1", 5, june2024),
		studentFixture("s2", 5, june2024),
	}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{
		enrollmentFixture("s1", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s2", "i1", models.ModalityMusical, "300"),
	}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	actor := models.Actor{UserID: "u-s1", Role: models.RoleStudent, StudentID: "s1"}
	rows, err := svc.ListPayments(context.Background(), actor, models.PaymentFilter{Month: 6, Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].StudentID)
	assert.Equal(t, models.Scope{StudentID: "s1"}, students.lastScope)
}

func TestBillingServiceInstructorFilterKeepsTaughtStudents(t *testing.T) {
	students := &stubActiveStudents{students: []models.Student{
		studentFixture("s1", 5, june2024),
		studentFixture("s2", 5, june2024),
	}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{
		enrollmentFixture("s1", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s2", "i2", models.ModalityMusical, "300"),
	}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	rows, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{InstructorID: "i2", Month: 6, Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s2", rows[0].StudentID)
}

func TestBillingServiceRejectsInvalidFilter(t *testing.T) {
	svc := NewBillingService(&stubActiveStudents{}, &stubOpenEnrollments{}, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	_, err := svc.ListPayments(context.Background(), adminActor(), models.PaymentFilter{Month: 13, Status: "late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	appErr := appErrors.FromError(err)
	assert.Len(t, appErr.Details, 2)
}

func TestBillingServiceForbidsActorWithoutLink(t *testing.T) {
	svc := NewBillingService(&stubActiveStudents{}, &stubOpenEnrollments{}, &stubPaymentRecords{}, fixedClock(2024, time.June, 20), nil)

	_, err := svc.ListPayments(context.Background(), models.Actor{UserID: "u", Role: models.RoleStudent}, models.PaymentFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBillingServiceDueToday(t *testing.T) {
	july := billing.Period{Month: 7, Year: 2024}
	students := &stubActiveStudents{students: []models.Student{
		studentFixture("s1", 10, june2024),
		studentFixture("s2", 10, july),
		studentFixture("s3", 11, june2024),
	}}
	enrollments := &stubOpenEnrollments{enrollments: []models.Enrollment{
		enrollmentFixture("s1", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s1", "i1", models.ModalityDubbingOnline, "150.50"),
		enrollmentFixture("s2", "i1", models.ModalityMusical, "300"),
		enrollmentFixture("s3", "i1", models.ModalityMusical, "300"),
	}}
	svc := NewBillingService(students, enrollments, &stubPaymentRecords{}, fixedClock(2024, time.June, 10), nil)

	due, err := svc.ListStudentsDueToday(context.Background(), adminActor())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "s1", due[0].Student.ID)
	assert.True(t, decimal.RequireFromString("450.50").Equal(due[0].TotalMonthlyAmount))
	assert.Equal(t, []models.Modality{models.ModalityDubbingOnline, models.ModalityMusical}, due[0].Modalities)

	_, err = svc.ListStudentsDueToday(context.Background(), models.Actor{UserID: "i", Role: models.RoleInstructor, InstructorID: "i1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
