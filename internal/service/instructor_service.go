package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type instructorRepository interface {
	List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, error)
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
	Create(ctx context.Context, instructor *models.Instructor) error
	Update(ctx context.Context, instructor *models.Instructor) error
}

// InstructorRequest is the payload for creating or updating instructors.
type InstructorRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Active   *bool  `json:"active"`
}

// InstructorService handles instructor use-cases.
type InstructorService struct {
	repo      instructorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstructorService constructs the instructor service.
func NewInstructorService(repo instructorRepository, validate *validator.Validate, logger *zap.Logger) *InstructorService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{repo: repo, validator: validate, logger: logger}
}

// List returns instructors ordered by name.
func (s *InstructorService) List(ctx context.Context, actor models.Actor, filter models.InstructorFilter) ([]models.Instructor, error) {
	if _, err := authorize(actor, models.CapReadInstructors); err != nil {
		return nil, err
	}
	instructors, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list instructors")
	}
	if instructors == nil {
		instructors = []models.Instructor{}
	}
	return instructors, nil
}

// Get returns one instructor.
func (s *InstructorService) Get(ctx context.Context, actor models.Actor, id string) (*models.Instructor, error) {
	if _, err := authorize(actor, models.CapReadInstructors); err != nil {
		return nil, err
	}
	instructor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "instructor not found", "failed to load instructor")
	}
	return instructor, nil
}

// Create registers an instructor. New instructors are active unless stated otherwise.
func (s *InstructorService) Create(ctx context.Context, actor models.Actor, req InstructorRequest) (*models.Instructor, error) {
	if _, err := authorize(actor, models.CapWriteInstructors); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation("invalid instructor payload", describeValidation(err)...)
	}
	instructor := &models.Instructor{
		FullName: strings.TrimSpace(req.FullName),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    optionalString(req.Email),
		Active:   req.Active == nil || *req.Active,
	}
	if err := s.repo.Create(ctx, instructor); err != nil {
		return nil, appErrors.Internal(err, "failed to create instructor")
	}
	return instructor, nil
}

// Update modifies an instructor's contact data and active flag.
func (s *InstructorService) Update(ctx context.Context, actor models.Actor, id string, req InstructorRequest) (*models.Instructor, error) {
	if _, err := authorize(actor, models.CapWriteInstructors); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation("invalid instructor payload", describeValidation(err)...)
	}
	instructor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "instructor not found", "failed to load instructor")
	}
	instructor.FullName = strings.TrimSpace(req.FullName)
	instructor.Phone = strings.TrimSpace(req.Phone)
	instructor.Email = optionalString(req.Email)
	if req.Active != nil {
		instructor.Active = *req.Active
	}
	if err := s.repo.Update(ctx, instructor); err != nil {
		return nil, lookupError(err, "instructor not found", "failed to update instructor")
	}
	return instructor, nil
}
