package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/database"
)

const enrollmentColumns = `e.id, e.student_id, e.instructor_id, e.modality, e.monthly_price, e.weekday, e.time_slot,
        e.start_date, e.end_date, e.end_reason, e.created_at, e.updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments with student and instructor names.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	var args []interface{}
	conditions := scopeConditions(filter.Scope, "e.student_id", filter.Today, &args)

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = %s", bind(&args, filter.StudentID)))
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("e.instructor_id = %s", bind(&args, filter.InstructorID)))
	}
	if filter.Modality != "" {
		conditions = append(conditions, fmt.Sprintf("e.modality = %s", bind(&args, filter.Modality)))
	}
	if filter.OpenOnly {
		conditions = append(conditions, openEnrollment("e", bind(&args, dateOnly(filter.Today))))
	}

	query := fmt.Sprintf(`SELECT %s, s.full_name AS student_name, i.full_name AS instructor_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN instructors i ON i.id = e.instructor_id%s
        ORDER BY s.full_name ASC, e.created_at ASC`, enrollmentColumns, where(conditions))

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns every enrollment of a student, closed ones included.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.student_id = $1 ORDER BY e.created_at ASC", enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListOpenByStudents returns the enrollments of the given students that are
// still open on today.
func (r *EnrollmentRepository) ListOpenByStudents(ctx context.Context, studentIDs []string, today time.Time) ([]models.Enrollment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.student_id = ANY($1) AND %s ORDER BY e.student_id, e.created_at ASC",
		enrollmentColumns, openEnrollment("e", "$2"))
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, pq.Array(studentIDs), dateOnly(today)); err != nil {
		return nil, fmt.Errorf("list open enrollments: %w", err)
	}
	return enrollments, nil
}

// FindByID returns an enrollment by id.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if missing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// Create inserts an enrollment after check approves the locked student state.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment, today time.Time, check EnrollmentCheck) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, open, err := lockStudentWithEnrollments(ctx, tx, enrollment.StudentID, today)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(*student, open); err != nil {
				return err
			}
		}
		return insertEnrollment(ctx, tx, enrollment, time.Now().UTC())
	})
}

// Update rewrites the schedule and price of an open enrollment after check
// approves the locked student state.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment, today time.Time, check EnrollmentCheck) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		student, open, err := lockStudentWithEnrollments(ctx, tx, enrollment.StudentID, today)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(*student, open); err != nil {
				return err
			}
		}
		enrollment.UpdatedAt = time.Now().UTC()
		const query = `UPDATE enrollments SET instructor_id = :instructor_id, monthly_price = :monthly_price, weekday = :weekday,
        time_slot = :time_slot, start_date = :start_date, updated_at = :updated_at
        WHERE id = :id AND end_date IS NULL`
		res, err := tx.NamedExecContext(ctx, query, enrollment)
		if err != nil {
			return fmt.Errorf("update enrollment: %w", err)
		}
		return requireAffected(res)
	})
}

// Close end-dates an open enrollment. Enrollments are never deleted.
func (r *EnrollmentRepository) Close(ctx context.Context, id string, closure models.LifecycleClose) error {
	const query = `UPDATE enrollments SET end_date = $2, end_reason = $3, updated_at = $4 WHERE id = $1 AND (end_date IS NULL OR end_date > $2)`
	res, err := r.db.ExecContext(ctx, query, id, dateOnly(closure.Date), closure.Reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	return requireAffected(res)
}

// Trend counts students with an enrollment open at the end of each of the
// last months, oldest first.
func (r *EnrollmentRepository) Trend(ctx context.Context, scope models.Scope, today time.Time, months int) ([]models.TrendPoint, error) {
	if months <= 0 {
		months = 12
	}
	args := []interface{}{dateOnly(today), months - 1}
	scopeSQL := ""
	if conditions := scopeConditions(scope, "e.student_id", today, &args); len(conditions) > 0 {
		scopeSQL = " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`WITH months AS (
            SELECT (date_trunc('month', $1::date) - make_interval(months => g))::date AS month_start
            FROM generate_series(0, $2::int) AS g
        )
        SELECT to_char(m.month_start, 'YYYY-MM') AS period,
            COUNT(DISTINCT e.student_id) AS active_students
        FROM months m
        LEFT JOIN enrollments e
            ON (e.start_date IS NULL OR e.start_date <= (m.month_start + INTERVAL '1 month - 1 day')::date)
            AND (e.end_date IS NULL OR e.end_date > (m.month_start + INTERVAL '1 month - 1 day')::date)%s
        GROUP BY m.month_start
        ORDER BY m.month_start ASC`, scopeSQL)

	var points []models.TrendPoint
	if err := r.db.SelectContext(ctx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("enrollment trend: %w", err)
	}
	return points, nil
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, now time.Time) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, instructor_id, modality, monthly_price, weekday, time_slot, start_date, created_at, updated_at)
        VALUES (:id, :student_id, :instructor_id, :modality, :monthly_price, :weekday, :time_slot, :start_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}
