package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/database"
)

const studentColumns = `s.id, s.full_name, s.phone, s.email, s.guardian_name, s.guardian_phone, s.birth_date, s.city, s.state,
        s.payment_method, s.due_anchor_day, s.due_month, s.due_year, s.active, s.approved, s.experimental,
        s.deletion_reason, s.deleted_on, s.created_at, s.updated_at`

// EnrollmentCheck inspects a locked student and its open enrollments before a
// write is applied. Returning an error aborts the transaction.
type EnrollmentCheck func(student models.Student, open []models.Enrollment) error

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var args []interface{}
	conditions := scopeConditions(filter.Scope, "s.id", filter.Today, &args)

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = %s", bind(&args, *filter.Active)))
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("s.approved = %s", bind(&args, *filter.Approved)))
	}
	if filter.InstructorID != "" {
		instructor := bind(&args, filter.InstructorID)
		conditions = append(conditions, studentsUnderInstructor("s.id", instructor, bind(&args, dateOnly(filter.Today))))
	}
	if filter.Search != "" {
		term := bind(&args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE %[1]s OR s.phone LIKE %[1]s OR LOWER(COALESCE(s.email, '')) LIKE %[1]s)", term))
	}

	base := "FROM students s" + where(conditions)
	order := sortClause(filter.SortBy, filter.SortOrder, map[string]string{
		"full_name":      "s.full_name",
		"created_at":     "s.created_at",
		"due_anchor_day": "s.due_anchor_day",
	}, "full_name", "ASC")
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", studentColumns, base, order, limit, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if missing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ListActive returns active students inside scope holding at least one
// enrollment still open on today, ordered by name.
func (r *StudentRepository) ListActive(ctx context.Context, scope models.Scope, today time.Time) ([]models.Student, error) {
	var args []interface{}
	conditions := scopeConditions(scope, "s.id", today, &args)
	conditions = append(conditions,
		"s.active = TRUE",
		fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = s.id AND %s)", openEnrollment("e", bind(&args, dateOnly(today)))),
	)

	query := fmt.Sprintf("SELECT %s FROM students s%s ORDER BY s.full_name ASC", studentColumns, where(conditions))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// CreateWithEnrollments stores a student and its enrollments atomically.
func (r *StudentRepository) CreateWithEnrollments(ctx context.Context, student *models.Student, enrollments []models.Enrollment) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now

	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO students (id, full_name, phone, email, guardian_name, guardian_phone, birth_date, city, state, payment_method,
        due_anchor_day, due_month, due_year, active, approved, experimental, created_at, updated_at)
        VALUES (:id, :full_name, :phone, :email, :guardian_name, :guardian_phone, :birth_date, :city, :state, :payment_method,
        :due_anchor_day, :due_month, :due_year, :active, :approved, :experimental, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
			return fmt.Errorf("create student: %w", err)
		}
		for i := range enrollments {
			enrollments[i].StudentID = student.ID
			if err := insertEnrollment(ctx, tx, &enrollments[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update modifies profile fields of an existing student. Approval and
// lifecycle flags are changed through their dedicated methods.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, phone = :phone, email = :email, guardian_name = :guardian_name,
        guardian_phone = :guardian_phone, birth_date = :birth_date, city = :city, state = :state, payment_method = :payment_method,
        due_anchor_day = :due_anchor_day, experimental = :experimental, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return requireAffected(res)
}

// Approve locks the student, runs check against its open enrollments and marks
// it approved when check passes.
func (r *StudentRepository) Approve(ctx context.Context, id string, today time.Time, check EnrollmentCheck) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, open, err := lockStudentWithEnrollments(ctx, tx, id, today)
		if err != nil {
			return err
		}
		if err := check(*student, open); err != nil {
			return err
		}
		const query = `UPDATE students SET approved = TRUE, updated_at = $2 WHERE id = $1 AND approved = FALSE`
		res, err := tx.ExecContext(ctx, query, id, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("approve student: %w", err)
		}
		return requireAffected(res)
	})
}

// Effectivate clears the experimental flag and forces approval. Students that
// are not experimental are left untouched and sql.ErrNoRows is returned.
func (r *StudentRepository) Effectivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET experimental = FALSE, approved = TRUE, updated_at = $2 WHERE id = $1 AND experimental = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("effectivate student: %w", err)
	}
	return requireAffected(res)
}

// Close soft-deletes an active student and stamps the same closure on every
// enrollment still open on the closure date.
func (r *StudentRepository) Close(ctx context.Context, id string, closure models.LifecycleClose) error {
	day := dateOnly(closure.Date)
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const closeStudent = `UPDATE students SET active = FALSE, deletion_reason = $2, deleted_on = $3, updated_at = $4 WHERE id = $1 AND active = TRUE`
		res, err := tx.ExecContext(ctx, closeStudent, id, closure.Reason, day, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("close student: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		const closeEnrollments = `UPDATE enrollments SET end_date = $2, end_reason = $3, updated_at = $4
        WHERE student_id = $1 AND (end_date IS NULL OR end_date > $2)`
		if _, err := tx.ExecContext(ctx, closeEnrollments, id, day, closure.Reason, time.Now().UTC()); err != nil {
			return fmt.Errorf("close student enrollments: %w", err)
		}
		return nil
	})
}

// Reactivate clears the deletion fields of an inactive student. Enrollments
// closed with the student stay closed.
func (r *StudentRepository) Reactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = TRUE, deletion_reason = NULL, deleted_on = NULL, updated_at = $2 WHERE id = $1 AND active = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reactivate student: %w", err)
	}
	return requireAffected(res)
}

func lockStudentWithEnrollments(ctx context.Context, tx *sqlx.Tx, id string, today time.Time) (*models.Student, []models.Enrollment, error) {
	var student models.Student
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1 FOR UPDATE", studentColumns)
	if err := tx.GetContext(ctx, &student, query, id); err != nil {
		if missing(err) {
			return nil, nil, sql.ErrNoRows
		}
		return nil, nil, fmt.Errorf("lock student: %w", err)
	}

	var open []models.Enrollment
	enrollmentsQuery := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.student_id = $1 AND %s ORDER BY e.created_at ASC",
		enrollmentColumns, openEnrollment("e", "$2"))
	if err := tx.SelectContext(ctx, &open, enrollmentsQuery, id, dateOnly(today)); err != nil {
		return nil, nil, fmt.Errorf("load open enrollments: %w", err)
	}
	return &student, open, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
