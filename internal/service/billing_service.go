package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type billingStudentReader interface {
	ListActive(ctx context.Context, scope models.Scope, today time.Time) ([]models.Student, error)
}

type billingEnrollmentReader interface {
	ListOpenByStudents(ctx context.Context, studentIDs []string, today time.Time) ([]models.Enrollment, error)
}

type billingPaymentReader interface {
	List(ctx context.Context, q models.PaymentQuery) ([]models.PaymentRecord, error)
}

// BillingService derives effective billing statuses for the payments roster
// and the due-today feed.
type BillingService struct {
	students    billingStudentReader
	enrollments billingEnrollmentReader
	payments    billingPaymentReader
	logger      *zap.Logger
	clock       Clock
}

// NewBillingService constructs a BillingService.
func NewBillingService(students billingStudentReader, enrollments billingEnrollmentReader, payments billingPaymentReader, clock Clock, logger *zap.Logger) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{students: students, enrollments: enrollments, payments: payments, clock: clock, logger: logger}
}

// ListPayments returns the payments roster visible to the actor.
//
// Without a month or year every stored payment is listed with its derived
// status. With one, a single row per eligible student is derived for that
// month; students with no payment whose due date has not passed are omitted.
func (s *BillingService) ListPayments(ctx context.Context, actor models.Actor, filter models.PaymentFilter) ([]models.PaymentRow, error) {
	scope, err := authorize(actor, models.CapReadPayments)
	if err != nil {
		return nil, err
	}
	if err := validatePaymentFilter(filter); err != nil {
		return nil, err
	}

	today := s.clock.Today()
	if !filter.HasPeriod() {
		return s.listStored(ctx, scope, filter, today)
	}
	return s.listForPeriod(ctx, scope, filter, today)
}

func validatePaymentFilter(filter models.PaymentFilter) error {
	var details []string
	if filter.Status != "" && !filter.Status.Valid() {
		details = append(details, fmt.Sprintf("status %q is not one of paid, pending, overdue", filter.Status))
	}
	if filter.Month != 0 && (filter.Month < 1 || filter.Month > 12) {
		details = append(details, "month must be between 1 and 12")
	}
	if filter.Year < 0 {
		details = append(details, "year must be positive")
	}
	if len(details) > 0 {
		return appErrors.Validation("invalid payments filter", details...)
	}
	return nil
}

func (s *BillingService) listStored(ctx context.Context, scope models.Scope, filter models.PaymentFilter, today time.Time) ([]models.PaymentRow, error) {
	records, err := s.payments.List(ctx, models.PaymentQuery{
		Scope:        scope,
		StudentID:    filter.StudentID,
		InstructorID: filter.InstructorID,
		Today:        today,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}

	rows := make([]models.PaymentRow, 0, len(records))
	for _, record := range records {
		due := billing.DueDate(record.DueAnchorDay, record.Period())
		status, _ := billing.ComputeStatus(&record.Status, due, today)
		if filter.Status != "" && status != filter.Status {
			continue
		}
		rows = append(rows, paymentRow(record, due, status))
	}

	if filter.Status != billing.StatusOverdue {
		return rows, nil
	}

	students, err := s.eligibleStudents(ctx, scope, filter, today)
	if err != nil {
		return nil, err
	}
	return append(rows, syntheticOverdueRows(students, records, today)...), nil
}

// syntheticOverdueRows stands in for students who owe the current month but
// have never submitted anything for it. A student with any stored payment for
// the current month is already represented by that row and is skipped.
func syntheticOverdueRows(students []models.Student, records []models.PaymentRecord, today time.Time) []models.PaymentRow {
	current := billing.PeriodOf(today)
	covered := make(map[string]bool)
	for _, record := range records {
		if record.Period().Equal(current) {
			covered[record.StudentID] = true
		}
	}

	var rows []models.PaymentRow
	for _, student := range students {
		if covered[student.ID] {
			continue
		}
		due := student.DueDateFor(current)
		status, ok := billing.ComputeStatus(nil, due, today)
		if !ok || status != billing.StatusOverdue {
			continue
		}
		rows = append(rows, models.PaymentRow{
			ID:          fmt.Sprintf("unpaid:%s:%s", student.ID, current),
			StudentID:   student.ID,
			StudentName: student.FullName,
			RefMonth:    current.Month,
			RefYear:     current.Year,
			DueDate:     due,
			Status:      billing.StatusOverdue,
			Synthetic:   true,
		})
	}
	return rows
}

func (s *BillingService) listForPeriod(ctx context.Context, scope models.Scope, filter models.PaymentFilter, today time.Time) ([]models.PaymentRow, error) {
	current := billing.PeriodOf(today)
	period := billing.Period{Month: filter.Month, Year: filter.Year}
	if period.Month == 0 {
		period.Month = current.Month
	}
	if period.Year == 0 {
		period.Year = current.Year
	}

	students, open, err := s.eligibleWithEnrollments(ctx, scope, filter, today)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return []models.PaymentRow{}, nil
	}

	records, err := s.payments.List(ctx, models.PaymentQuery{
		Scope:      scope,
		Period:     &period,
		StudentIDs: lo.Map(students, func(st models.Student, _ int) string { return st.ID }),
		Today:      today,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}
	chosen := choosePayments(records)

	rows := make([]models.PaymentRow, 0, len(students))
	for _, student := range students {
		due := student.DueDateFor(period)
		var row models.PaymentRow
		var stored *billing.PaymentStatus
		if record, ok := chosen[student.ID]; ok {
			stored = &record.Status
			row = paymentRow(record, due, "")
		} else {
			row = models.PaymentRow{
				ID:          fmt.Sprintf("unpaid:%s:%s", student.ID, period),
				StudentID:   student.ID,
				StudentName: student.FullName,
				RefMonth:    period.Month,
				RefYear:     period.Year,
				DueDate:     due,
			}
		}
		status, ok := billing.ComputeStatus(stored, due, today)
		if !ok {
			continue
		}
		if filter.Status != "" && status != filter.Status {
			continue
		}
		row.Status = status
		total := monthlyTotal(open[student.ID])
		row.AmountDue = &total
		rows = append(rows, row)
	}
	return rows, nil
}

// choosePayments keeps one payment per student: the approved one when present,
// otherwise the latest submission. Records arrive newest submission first.
func choosePayments(records []models.PaymentRecord) map[string]models.PaymentRecord {
	chosen := make(map[string]models.PaymentRecord, len(records))
	for _, record := range records {
		existing, ok := chosen[record.StudentID]
		if !ok || (existing.Status != billing.PaymentApproved && record.Status == billing.PaymentApproved) {
			chosen[record.StudentID] = record
		}
	}
	return chosen
}

func paymentRow(record models.PaymentRecord, due time.Time, status billing.Status) models.PaymentRow {
	id := record.ID
	stored := record.Status
	amount := record.AmountPaid
	paidOn := record.PaidOn
	submitted := record.SubmittedAt
	return models.PaymentRow{
		ID:            record.ID,
		PaymentID:     &id,
		StudentID:     record.StudentID,
		StudentName:   record.StudentName,
		RefMonth:      record.RefMonth,
		RefYear:       record.RefYear,
		DueDate:       due,
		Status:        status,
		PaymentStatus: &stored,
		AmountPaid:    &amount,
		PaidOn:        &paidOn,
		ProofRef:      record.ProofRef,
		ReviewNote:    record.ReviewNote,
		SubmittedAt:   &submitted,
	}
}

// eligibleStudents returns active students with an open enrollment, narrowed
// by the caller's student and instructor filters.
func (s *BillingService) eligibleStudents(ctx context.Context, scope models.Scope, filter models.PaymentFilter, today time.Time) ([]models.Student, error) {
	students, _, err := s.eligibleWithEnrollments(ctx, scope, filter, today)
	return students, err
}

func (s *BillingService) eligibleWithEnrollments(ctx context.Context, scope models.Scope, filter models.PaymentFilter, today time.Time) ([]models.Student, map[string][]models.Enrollment, error) {
	students, err := s.students.ListActive(ctx, scope, today)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list active students")
	}
	if filter.StudentID != "" {
		students = lo.Filter(students, func(st models.Student, _ int) bool { return st.ID == filter.StudentID })
	}
	if len(students) == 0 {
		return students, map[string][]models.Enrollment{}, nil
	}

	ids := lo.Map(students, func(st models.Student, _ int) string { return st.ID })
	enrollments, err := s.enrollments.ListOpenByStudents(ctx, ids, today)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load enrollments")
	}
	open := lo.GroupBy(enrollments, func(e models.Enrollment) string { return e.StudentID })

	if filter.InstructorID != "" {
		students = lo.Filter(students, func(st models.Student, _ int) bool {
			return lo.ContainsBy(open[st.ID], func(e models.Enrollment) bool { return e.InstructorID == filter.InstructorID })
		})
	}
	return students, open, nil
}

// ListStudentsDueToday returns active students whose next due date is today,
// with the total owed across their open enrollments.
func (s *BillingService) ListStudentsDueToday(ctx context.Context, actor models.Actor) ([]models.DueStudent, error) {
	if _, err := authorize(actor, models.CapReadDueToday); err != nil {
		return nil, err
	}
	return s.dueOn(ctx, s.clock.Today())
}

func (s *BillingService) dueOn(ctx context.Context, today time.Time) ([]models.DueStudent, error) {
	students, open, err := s.eligibleWithEnrollments(ctx, models.Scope{}, models.PaymentFilter{}, today)
	if err != nil {
		return nil, err
	}

	due := make([]models.DueStudent, 0)
	for _, student := range students {
		date := student.NextDueDate()
		if !date.Equal(today) {
			continue
		}
		enrollments := open[student.ID]
		due = append(due, models.DueStudent{
			Student:            student,
			DueDate:            date,
			TotalMonthlyAmount: monthlyTotal(enrollments),
			Modalities:         modalitiesOf(enrollments),
		})
	}
	s.logger.Debug("due today resolved", zap.Time("today", today), zap.Int("count", len(due)))
	return due, nil
}

func monthlyTotal(enrollments []models.Enrollment) decimal.Decimal {
	return lo.Reduce(enrollments, func(sum decimal.Decimal, e models.Enrollment, _ int) decimal.Decimal {
		return sum.Add(e.MonthlyPrice)
	}, decimal.Zero)
}

// modalitiesOf lists the distinct modalities in display order.
func modalitiesOf(enrollments []models.Enrollment) []models.Modality {
	seen := lo.SliceToMap(enrollments, func(e models.Enrollment) (models.Modality, bool) { return e.Modality, true })
	modalities := make([]models.Modality, 0, len(seen))
	for _, m := range models.Modalities() {
		if seen[m] {
			modalities = append(modalities, m)
		}
	}
	return modalities
}

func modalityLabels(modalities []models.Modality) string {
	labels := lo.Map(modalities, func(m models.Modality, _ int) string { return m.Label() })
	return strings.Join(labels, ", ")
}
