package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/repository"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type paymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ExistsApproved(ctx context.Context, studentID string, period billing.Period) (bool, error)
	Review(ctx context.Context, review repository.PaymentReview) (*models.ReviewOutcome, error)
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// PaymentService handles tuition submissions and their review.
type PaymentService struct {
	payments  paymentStore
	students  paymentStudentReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Payments  paymentStore
	Students  paymentStudentReader
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Clock     Clock
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:  params.Payments,
		students:  params.Students,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		clock:     params.Clock,
	}
}

// Submit records a pending payment. Students may only submit for themselves.
func (s *PaymentService) Submit(ctx context.Context, actor models.Actor, req models.SubmitPaymentRequest) (*models.Payment, error) {
	scope, err := authorize(actor, models.CapSubmitPayments)
	if err != nil {
		return nil, err
	}
	if scope.StudentID != "" {
		if req.StudentID != "" && req.StudentID != scope.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only submit their own payments")
		}
		req.StudentID = scope.StudentID
	}

	var details []string
	if err := s.validator.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	if strings.TrimSpace(req.StudentID) == "" {
		details = append(details, "student_id is required")
	}
	if !req.AmountPaid.IsPositive() {
		details = append(details, "amount_paid must be greater than zero")
	}
	paidOn := parseDate(req.PaidOn, "paid_on", &details)
	if paidOn == nil && len(details) == 0 {
		details = append(details, "paid_on is required")
	}
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid payment payload", details...)
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is inactive")
	}

	period := billing.Period{Month: req.RefMonth, Year: req.RefYear}
	approved, err := s.payments.ExistsApproved(ctx, student.ID, period)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing payments")
	}
	if approved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an approved payment already exists for this month")
	}

	payment := &models.Payment{
		StudentID:   student.ID,
		RefMonth:    period.Month,
		RefYear:     period.Year,
		AmountPaid:  req.AmountPaid,
		PaidOn:      *paidOn,
		ProofRef:    optionalString(req.ProofRef),
		StudentNote: optionalString(req.StudentNote),
		SubmittedAt: s.clock.now().UTC(),
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Internal(err, "failed to create payment")
	}
	s.invalidateDashboard(ctx)
	return payment, nil
}

// Approve marks a pending payment approved. Approving the current month rolls
// the student's due date to the next month.
func (s *PaymentService) Approve(ctx context.Context, actor models.Actor, paymentID string, req models.ReviewPaymentRequest) (*models.ReviewOutcome, error) {
	return s.review(ctx, actor, paymentID, billing.PaymentApproved, optionalString(req.Note))
}

// Reject marks a pending payment rejected. The note is mandatory.
func (s *PaymentService) Reject(ctx context.Context, actor models.Actor, paymentID string, req models.ReviewPaymentRequest) (*models.ReviewOutcome, error) {
	if _, err := authorize(actor, models.CapReviewPayments); err != nil {
		return nil, err
	}
	note := optionalString(req.Note)
	if note == nil {
		return nil, appErrors.Validation("invalid review payload", "note is required when rejecting a payment")
	}
	return s.review(ctx, actor, paymentID, billing.PaymentRejected, note)
}

func (s *PaymentService) review(ctx context.Context, actor models.Actor, paymentID string, status billing.PaymentStatus, note *string) (*models.ReviewOutcome, error) {
	if _, err := authorize(actor, models.CapReviewPayments); err != nil {
		return nil, err
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, lookupError(err, "payment not found", "failed to load payment")
	}
	if payment.Status != billing.PaymentPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment has already been reviewed")
	}

	outcome, err := s.payments.Review(ctx, repository.PaymentReview{
		PaymentID:  paymentID,
		Status:     status,
		ReviewerID: actor.UserID,
		Note:       note,
		At:         s.clock.now().UTC(),
		Current:    s.clock.Current(),
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment has already been reviewed")
		case errors.Is(err, repository.ErrDuplicateApproval):
			return nil, appErrors.Clone(appErrors.ErrConflict, "an approved payment already exists for this month")
		}
		return nil, appErrors.Internal(err, "failed to review payment")
	}

	s.metrics.RecordPaymentReview(string(status), outcome.RolledOver)
	s.invalidateDashboard(ctx)
	s.logger.Info("payment reviewed",
		zap.String("payment_id", paymentID),
		zap.String("status", string(status)),
		zap.String("reviewer_id", actor.UserID),
		zap.Bool("rolled_over", outcome.RolledOver),
	)
	return outcome, nil
}

func (s *PaymentService) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, DashboardCachePattern()); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return lo.ToPtr(value)
}
