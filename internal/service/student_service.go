package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
	"github.com/noah-isme/voxen-api/pkg/response"
)

const dateLayout = "2006-01-02"

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	CreateWithEnrollments(ctx context.Context, student *models.Student, enrollments []models.Enrollment) error
	Update(ctx context.Context, student *models.Student) error
	Close(ctx context.Context, id string, closure models.LifecycleClose) error
	Reactivate(ctx context.Context, id string) error
}

type openEnrollmentReader interface {
	ListOpenByStudents(ctx context.Context, studentIDs []string, today time.Time) ([]models.Enrollment, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

// EnrollmentInput describes one modality a student signs up for.
type EnrollmentInput struct {
	InstructorID string          `json:"instructor_id" validate:"required"`
	Modality     models.Modality `json:"modality" validate:"required"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Weekday      *int            `json:"weekday" validate:"omitempty,min=0,max=6"`
	TimeSlot     string          `json:"time_slot"`
	StartDate    string          `json:"start_date"`
}

// CreateStudentRequest holds payload for registering a student with enrollments.
type CreateStudentRequest struct {
	FullName      string            `json:"full_name" validate:"required"`
	Phone         string            `json:"phone" validate:"required"`
	Email         string            `json:"email" validate:"omitempty,email"`
	GuardianName  string            `json:"guardian_name"`
	GuardianPhone string            `json:"guardian_phone"`
	BirthDate     string            `json:"birth_date" validate:"required"`
	City          string            `json:"city" validate:"required"`
	State         string            `json:"state" validate:"required,len=2"`
	PaymentMethod string            `json:"payment_method" validate:"required"`
	DueAnchorDay  int               `json:"due_anchor_day" validate:"required,min=1,max=31"`
	Experimental  bool              `json:"experimental"`
	Enrollments   []EnrollmentInput `json:"enrollments" validate:"required,min=1,dive"`
}

// UpdateStudentRequest holds profile fields editable after registration.
type UpdateStudentRequest struct {
	FullName      string `json:"full_name" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	BirthDate     string `json:"birth_date" validate:"required"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required,len=2"`
	PaymentMethod string `json:"payment_method" validate:"required"`
	DueAnchorDay  int    `json:"due_anchor_day" validate:"required,min=1,max=31"`
}

// CloseRequest carries the reason for soft-deleting a record.
type CloseRequest struct {
	Reason string `json:"reason" validate:"required"`
	Date   string `json:"date"`
}

// StudentService handles the student directory.
type StudentService struct {
	repo        studentRepository
	enrollments openEnrollmentReader
	instructors instructorReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	clock       Clock
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Students    studentRepository
	Enrollments openEnrollmentReader
	Instructors instructorReader
	Cache       *CacheService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Clock       Clock
}

// NewStudentService constructs the student service.
func NewStudentService(params StudentServiceParams) *StudentService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:        params.Students,
		enrollments: params.Enrollments,
		instructors: params.Instructors,
		cache:       params.Cache,
		validator:   validate,
		logger:      logger,
		clock:       params.Clock,
	}
}

// List returns students visible to the actor with their open enrollments.
func (s *StudentService) List(ctx context.Context, actor models.Actor, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	scope, err := authorize(actor, models.CapReadStudents)
	if err != nil {
		return nil, nil, err
	}
	today := s.clock.Today()
	filter.Scope = scope
	filter.Today = today

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list students")
	}
	details, err := s.decorate(ctx, students, today)
	if err != nil {
		return nil, nil, err
	}
	return details, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one student with the view computed from its open enrollments.
func (s *StudentService) Get(ctx context.Context, actor models.Actor, id string) (*models.StudentDetail, error) {
	scope, err := authorize(actor, models.CapReadStudents)
	if err != nil {
		return nil, err
	}
	student, open, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(scope, id, open) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	detail := buildDetail(*student, open)
	return &detail, nil
}

// Create registers a student together with its enrollments in one transaction.
// Students registered by an administrator are approved immediately and must
// therefore be complete; everyone else starts pending approval.
func (s *StudentService) Create(ctx context.Context, actor models.Actor, req CreateStudentRequest) (*models.StudentDetail, error) {
	scope, err := authorize(actor, models.CapWriteStudents)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()

	var details []string
	if err := s.validator.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	birth := parseDate(req.BirthDate, "birth_date", &details)
	if birth == nil && len(details) == 0 {
		details = append(details, "birth_date is required")
	}
	requireGuardian(birth, today, req.GuardianName, req.GuardianPhone, &details)
	enrollments := buildEnrollments(req.Enrollments, &details)
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid student payload", details...)
	}

	if scope.InstructorID != "" {
		for _, e := range enrollments {
			if e.InstructorID != scope.InstructorID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "instructors can only enroll students in their own classes")
			}
		}
	}
	if err := ensureInstructors(ctx, s.instructors, enrollments); err != nil {
		return nil, err
	}

	approved := actor.IsAdmin()
	if approved {
		if violations := completenessViolations(enrollments); len(violations) > 0 {
			return nil, appErrors.Validation("students created by an administrator must have complete enrollments", violations...)
		}
	}

	student := &models.Student{
		FullName:      strings.TrimSpace(req.FullName),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         optionalString(req.Email),
		GuardianName:  optionalString(req.GuardianName),
		GuardianPhone: optionalString(req.GuardianPhone),
		BirthDate:     *birth,
		City:          strings.TrimSpace(req.City),
		State:         strings.ToUpper(strings.TrimSpace(req.State)),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		DueAnchorDay:  req.DueAnchorDay,
		Active:        true,
		Approved:      approved,
		Experimental:  req.Experimental,
	}
	cursor := firstDueCursor(req.DueAnchorDay, today)
	student.DueMonth, student.DueYear = cursor.Month, cursor.Year

	if err := s.repo.CreateWithEnrollments(ctx, student, enrollments); err != nil {
		return nil, appErrors.Internal(err, "failed to create student")
	}
	s.invalidateDashboard(ctx)
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.Bool("approved", approved), zap.Int("enrollments", len(enrollments)))

	detail := buildDetail(*student, enrollments)
	return &detail, nil
}

// firstDueCursor points at the current month unless its due date already passed.
func firstDueCursor(anchorDay int, today time.Time) billing.Period {
	current := billing.PeriodOf(today)
	if billing.DueDate(anchorDay, current).Before(today) {
		return current.Next()
	}
	return current
}

func buildEnrollments(inputs []EnrollmentInput, details *[]string) []models.Enrollment {
	enrollments := make([]models.Enrollment, 0, len(inputs))
	seen := make(map[models.Modality]bool, len(inputs))
	for i, input := range inputs {
		if !input.Modality.Valid() {
			*details = append(*details, fmt.Sprintf("enrollments[%d]: unknown modality %q", i, input.Modality))
			continue
		}
		if seen[input.Modality] {
			*details = append(*details, fmt.Sprintf("%s: selected more than once", input.Modality.Label()))
			continue
		}
		seen[input.Modality] = true
		enrollments = append(enrollments, enrollmentFromInput(input, fmt.Sprintf("enrollments[%d].start_date", i), details))
	}
	return enrollments
}

func enrollmentFromInput(input EnrollmentInput, startField string, details *[]string) models.Enrollment {
	enrollment := models.Enrollment{
		InstructorID: strings.TrimSpace(input.InstructorID),
		Modality:     input.Modality,
		MonthlyPrice: input.MonthlyPrice,
		Weekday:      input.Weekday,
		TimeSlot:     optionalString(input.TimeSlot),
	}
	if input.MonthlyPrice.IsNegative() {
		*details = append(*details, fmt.Sprintf("%s: monthly price cannot be negative", input.Modality.Label()))
	}
	if strings.TrimSpace(input.StartDate) != "" {
		enrollment.StartDate = parseDate(input.StartDate, startField, details)
	}
	return enrollment
}

func ensureInstructors(ctx context.Context, instructors instructorReader, enrollments []models.Enrollment) error {
	ids := lo.Uniq(lo.Map(enrollments, func(e models.Enrollment, _ int) string { return e.InstructorID }))
	var details []string
	for _, id := range ids {
		instructor, err := instructors.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				details = append(details, fmt.Sprintf("instructor %s does not exist", id))
				continue
			}
			return appErrors.Internal(err, "failed to load instructor")
		}
		if !instructor.Active {
			details = append(details, fmt.Sprintf("instructor %s is inactive", instructor.FullName))
		}
	}
	if len(details) > 0 {
		return appErrors.Validation("invalid enrollments", details...)
	}
	return nil
}

// requireGuardian demands a responsible party for students below the guardian age.
func requireGuardian(birth *time.Time, today time.Time, name, phone string, details *[]string) {
	if birth == nil || models.AgeOn(*birth, today) >= models.GuardianRequiredBelowAge {
		return
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(phone) == "" {
		*details = append(*details, fmt.Sprintf("guardian_name and guardian_phone are required for students under %d", models.GuardianRequiredBelowAge))
	}
}

// Update modifies profile fields. Approval flags and enrollments are managed
// by their own operations.
func (s *StudentService) Update(ctx context.Context, actor models.Actor, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	scope, err := authorize(actor, models.CapWriteStudents)
	if err != nil {
		return nil, err
	}

	var details []string
	if err := s.validator.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	birth := parseDate(req.BirthDate, "birth_date", &details)
	if birth == nil && len(details) == 0 {
		details = append(details, "birth_date is required")
	}
	requireGuardian(birth, s.clock.Today(), req.GuardianName, req.GuardianPhone, &details)
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid student payload", details...)
	}

	student, open, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(scope, id, open) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is outside your scope")
	}

	student.FullName = strings.TrimSpace(req.FullName)
	student.Phone = strings.TrimSpace(req.Phone)
	student.Email = optionalString(req.Email)
	student.GuardianName = optionalString(req.GuardianName)
	student.GuardianPhone = optionalString(req.GuardianPhone)
	student.BirthDate = *birth
	student.City = strings.TrimSpace(req.City)
	student.State = strings.ToUpper(strings.TrimSpace(req.State))
	student.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	student.DueAnchorDay = req.DueAnchorDay

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, lookupError(err, "student not found", "failed to update student")
	}
	s.invalidateDashboard(ctx)
	detail := buildDetail(*student, open)
	return &detail, nil
}

// Close soft-deletes a student and closes its open enrollments with the same stamp.
func (s *StudentService) Close(ctx context.Context, actor models.Actor, id string, req CloseRequest) error {
	if _, err := authorize(actor, models.CapCloseStudents); err != nil {
		return err
	}
	closure, err := parseClosure(s.validator, s.clock.Today(), req)
	if err != nil {
		return err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "student not found", "failed to load student")
	}
	if !student.Active {
		return appErrors.Clone(appErrors.ErrInvalidState, "student is already inactive")
	}
	if err := s.repo.Close(ctx, id, closure); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidState, "student is already inactive")
		}
		return appErrors.Internal(err, "failed to close student")
	}
	s.invalidateDashboard(ctx)
	s.logger.Info("student closed", zap.String("student_id", id), zap.String("reason", closure.Reason))
	return nil
}

// Reactivate clears the deletion stamp. Enrollments closed with the student stay closed.
func (s *StudentService) Reactivate(ctx context.Context, actor models.Actor, id string) (*models.StudentDetail, error) {
	if _, err := authorize(actor, models.CapCloseStudents); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is already active")
	}
	if err := s.repo.Reactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is already active")
		}
		return nil, appErrors.Internal(err, "failed to reactivate student")
	}
	s.invalidateDashboard(ctx)

	student, open, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := buildDetail(*student, open)
	return &detail, nil
}

func parseClosure(validate *validator.Validate, today time.Time, req CloseRequest) (models.LifecycleClose, error) {
	var details []string
	if err := validate.Struct(req); err != nil {
		details = append(details, describeValidation(err)...)
	}
	closure := models.LifecycleClose{Date: today, Reason: strings.TrimSpace(req.Reason)}
	if day := parseDate(req.Date, "date", &details); day != nil {
		closure.Date = *day
	}
	if len(details) > 0 {
		return models.LifecycleClose{}, appErrors.Validation("invalid close payload", details...)
	}
	return closure, nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, []models.Enrollment, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, lookupError(err, "student not found", "failed to load student")
	}
	open, err := s.enrollments.ListOpenByStudents(ctx, []string{id}, s.clock.Today())
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load enrollments")
	}
	return student, open, nil
}

func (s *StudentService) decorate(ctx context.Context, students []models.Student, today time.Time) ([]models.StudentDetail, error) {
	if len(students) == 0 {
		return []models.StudentDetail{}, nil
	}
	ids := lo.Map(students, func(st models.Student, _ int) string { return st.ID })
	enrollments, err := s.enrollments.ListOpenByStudents(ctx, ids, today)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}
	open := lo.GroupBy(enrollments, func(e models.Enrollment) string { return e.StudentID })
	return lo.Map(students, func(st models.Student, _ int) models.StudentDetail {
		return buildDetail(st, open[st.ID])
	}), nil
}

func (s *StudentService) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, DashboardCachePattern()); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

// buildDetail derives the modality set and monthly total from open enrollments.
func buildDetail(student models.Student, open []models.Enrollment) models.StudentDetail {
	if open == nil {
		open = []models.Enrollment{}
	}
	return models.StudentDetail{
		Student:      student,
		Modalities:   modalitiesOf(open),
		Enrollments:  open,
		MonthlyTotal: monthlyTotal(open),
		UpcomingDue:  student.NextDueDate(),
	}
}

// visible reports whether a scoped actor may see the student.
func visible(scope models.Scope, studentID string, open []models.Enrollment) bool {
	switch {
	case scope.StudentID != "":
		return scope.StudentID == studentID
	case scope.InstructorID != "":
		return lo.ContainsBy(open, func(e models.Enrollment) bool { return e.InstructorID == scope.InstructorID })
	default:
		return true
	}
}

func parseDate(value, field string, details *[]string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		*details = append(*details, fmt.Sprintf("%s must be a date formatted as YYYY-MM-DD", field))
		return nil
	}
	return &day
}

func paginate(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return response.Paginate(page, size, total)
}
