package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/repository"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type approvalStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Approve(ctx context.Context, id string, today time.Time, check repository.EnrollmentCheck) error
	Effectivate(ctx context.Context, id string) error
}

// ApprovalService moves students from pending to approved once every open
// enrollment carries complete billing data.
type ApprovalService struct {
	students approvalStore
	metrics  *MetricsService
	logger   *zap.Logger
	clock    Clock
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(students approvalStore, metrics *MetricsService, clock Clock, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{students: students, metrics: metrics, clock: clock, logger: logger}
}

// Approve validates every open enrollment of the student and sets approved.
// All violations are reported together and nothing changes when any exist.
func (s *ApprovalService) Approve(ctx context.Context, actor models.Actor, studentID string) (*models.Student, error) {
	if _, err := authorize(actor, models.CapApproveStudents); err != nil {
		return nil, err
	}

	err := s.students.Approve(ctx, studentID, s.clock.Today(), func(student models.Student, open []models.Enrollment) error {
		if student.Approved {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is already approved")
		}
		if violations := completenessViolations(open); len(violations) > 0 {
			return appErrors.Validation("student has incomplete enrollments", violations...)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrValidation) {
			s.metrics.RecordApproval(false)
		}
		return nil, lookupError(err, "student not found", "failed to approve student")
	}
	s.metrics.RecordApproval(true)
	s.logger.Info("student approved", zap.String("student_id", studentID), zap.String("actor_id", actor.UserID))
	return s.reload(ctx, studentID)
}

// Effectivate turns an experimental student into a regular one, forcing approval.
func (s *ApprovalService) Effectivate(ctx context.Context, actor models.Actor, studentID string) (*models.Student, error) {
	if _, err := authorize(actor, models.CapApproveStudents); err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if !student.Experimental {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is not experimental")
	}
	if err := s.students.Effectivate(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is not experimental")
		}
		return nil, appErrors.Internal(err, "failed to effectivate student")
	}
	s.logger.Info("student effectivated", zap.String("student_id", studentID), zap.String("actor_id", actor.UserID))
	return s.reload(ctx, studentID)
}

func (s *ApprovalService) reload(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

// completenessViolations lists, per modality, what keeps the open enrollments
// from being billable. An approved student needs at least one enrollment and
// at most one open enrollment per modality.
func completenessViolations(open []models.Enrollment) []string {
	if len(open) == 0 {
		return []string{"at least one open enrollment is required"}
	}
	var violations []string
	seen := make(map[models.Modality]int, len(open))
	for _, enrollment := range open {
		seen[enrollment.Modality]++
		if seen[enrollment.Modality] == 2 {
			violations = append(violations, fmt.Sprintf("%s: more than one open enrollment", enrollment.Modality.Label()))
		}
		for _, gap := range enrollment.Gaps() {
			violations = append(violations, fmt.Sprintf("%s: %s", enrollment.Modality.Label(), gap))
		}
	}
	return violations
}
