package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/repository"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment, today time.Time, check repository.EnrollmentCheck) error
	Update(ctx context.Context, enrollment *models.Enrollment, today time.Time, check repository.EnrollmentCheck) error
	Close(ctx context.Context, id string, closure models.LifecycleClose) error
}

// CreateEnrollmentRequest adds a modality to an existing student.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	EnrollmentInput
}

// UpdateEnrollmentRequest rewrites the schedule and price of an open enrollment.
type UpdateEnrollmentRequest struct {
	InstructorID string          `json:"instructor_id" validate:"required"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Weekday      *int            `json:"weekday" validate:"omitempty,min=0,max=6"`
	TimeSlot     string          `json:"time_slot"`
	StartDate    string          `json:"start_date"`
}

// EnrollmentService manages the enrollment registry.
type EnrollmentService struct {
	repo        enrollmentRepository
	instructors instructorReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	clock       Clock
}

// NewEnrollmentService creates a new enrollment service.
func NewEnrollmentService(repo enrollmentRepository, instructors instructorReader, cache *CacheService, validate *validator.Validate, clock Clock, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, instructors: instructors, cache: cache, validator: validate, clock: clock, logger: logger}
}

// List returns enrollments visible to the actor, by student or by instructor.
func (s *EnrollmentService) List(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	scope, err := authorize(actor, models.CapReadEnrollments)
	if err != nil {
		return nil, err
	}
	if filter.Modality != "" && !filter.Modality.Valid() {
		return nil, appErrors.Validation("invalid enrollments filter", fmt.Sprintf("unknown modality %q", filter.Modality))
	}
	filter.Scope = scope
	filter.Today = s.clock.Today()

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}

// Create adds an enrollment to a student. Approved students must stay
// billable and no modality may have two open enrollments.
func (s *EnrollmentService) Create(ctx context.Context, actor models.Actor, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	scope, err := authorize(actor, models.CapWriteEnrollments)
	if err != nil {
		return nil, err
	}

	var details []string
	if err := s.validator.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	if req.Modality != "" && !req.Modality.Valid() {
		details = append(details, fmt.Sprintf("unknown modality %q", req.Modality))
	}
	enrollment := enrollmentFromInput(req.EnrollmentInput, "start_date", &details)
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid enrollment payload", details...)
	}
	enrollment.StudentID = req.StudentID

	if scope.InstructorID != "" && enrollment.InstructorID != scope.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "instructors can only enroll students in their own classes")
	}
	if err := ensureInstructors(ctx, s.instructors, []models.Enrollment{enrollment}); err != nil {
		return nil, err
	}

	err = s.repo.Create(ctx, &enrollment, s.clock.Today(), func(student models.Student, open []models.Enrollment) error {
		if !student.Active {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is inactive")
		}
		for _, existing := range open {
			if existing.Modality == enrollment.Modality {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s already has an open enrollment", enrollment.Modality.Label()))
			}
		}
		if student.Approved {
			return requireComplete(append(append([]models.Enrollment{}, open...), enrollment))
		}
		return nil
	})
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to create enrollment")
	}
	s.invalidateDashboard(ctx)
	s.logger.Info("enrollment created", zap.String("enrollment_id", enrollment.ID), zap.String("student_id", enrollment.StudentID))
	return &enrollment, nil
}

// Update changes instructor, price and schedule of an open enrollment.
func (s *EnrollmentService) Update(ctx context.Context, actor models.Actor, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	scope, err := authorize(actor, models.CapWriteEnrollments)
	if err != nil {
		return nil, err
	}

	var details []string
	if err := s.validator.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	updated := enrollmentFromInput(EnrollmentInput{
		InstructorID: req.InstructorID,
		Modality:     existing.Modality,
		MonthlyPrice: req.MonthlyPrice,
		Weekday:      req.Weekday,
		TimeSlot:     req.TimeSlot,
		StartDate:    req.StartDate,
	}, "start_date", &details)
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid enrollment payload", details...)
	}

	if scope.InstructorID != "" && (existing.InstructorID != scope.InstructorID || updated.InstructorID != scope.InstructorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment is outside your scope")
	}
	if existing.EndDate != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "closed enrollments cannot be changed")
	}
	if updated.InstructorID != existing.InstructorID {
		if err := ensureInstructors(ctx, s.instructors, []models.Enrollment{updated}); err != nil {
			return nil, err
		}
	}

	updated.ID = existing.ID
	updated.StudentID = existing.StudentID
	updated.EndDate = existing.EndDate
	updated.EndReason = existing.EndReason
	updated.CreatedAt = existing.CreatedAt

	err = s.repo.Update(ctx, &updated, s.clock.Today(), func(student models.Student, open []models.Enrollment) error {
		if !student.Approved {
			return nil
		}
		next := make([]models.Enrollment, 0, len(open))
		for _, e := range open {
			if e.ID == updated.ID {
				e = updated
			}
			next = append(next, e)
		}
		return requireComplete(next)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "closed enrollments cannot be changed")
		}
		return nil, lookupError(err, "enrollment not found", "failed to update enrollment")
	}
	s.invalidateDashboard(ctx)
	return &updated, nil
}

// Close end-dates an enrollment. It is never deleted.
func (s *EnrollmentService) Close(ctx context.Context, actor models.Actor, id string, req CloseRequest) error {
	scope, err := authorize(actor, models.CapWriteEnrollments)
	if err != nil {
		return err
	}
	closure, err := parseClosure(s.validator, s.clock.Today(), req)
	if err != nil {
		return err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if scope.InstructorID != "" && existing.InstructorID != scope.InstructorID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment is outside your scope")
	}
	if !existing.OpenOn(closure.Date) {
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is already closed")
	}
	if err := s.repo.Close(ctx, id, closure); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is already closed")
		}
		return appErrors.Internal(err, "failed to close enrollment")
	}
	s.invalidateDashboard(ctx)
	s.logger.Info("enrollment closed", zap.String("enrollment_id", id), zap.String("reason", closure.Reason))
	return nil
}

func (s *EnrollmentService) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, DashboardCachePattern()); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func requireComplete(open []models.Enrollment) error {
	if violations := completenessViolations(open); len(violations) > 0 {
		return appErrors.Validation("approved students must keep complete enrollments", violations...)
	}
	return nil
}
