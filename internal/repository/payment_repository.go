package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/database"
)

// ErrDuplicateApproval reports a second approved payment for one student and month.
var ErrDuplicateApproval = errors.New("payment already approved for this period")

const paymentColumns = `p.id, p.student_id, p.ref_month, p.ref_year, p.amount_paid, p.paid_on, p.proof_ref, p.student_note,
        p.status, p.reviewed_by, p.reviewed_at, p.review_note, p.submitted_at`

// PaymentReview describes one resolution of a pending payment.
type PaymentReview struct {
	PaymentID  string
	Status     billing.PaymentStatus
	ReviewerID string
	Note       *string
	At         time.Time
	// Current is the calendar month the review happens in; approving a payment
	// for it advances the student's due cursor.
	Current billing.Period
}

// PaymentRepository persists tuition payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create stores a pending payment submission.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.SubmittedAt.IsZero() {
		payment.SubmittedAt = time.Now().UTC()
	}
	payment.Status = billing.PaymentPending
	const query = `INSERT INTO payments (id, student_id, ref_month, ref_year, amount_paid, paid_on, proof_ref, student_note, status, submitted_at)
        VALUES (:id, :student_id, :ref_month, :ref_year, :amount_paid, :paid_on, :proof_ref, :student_note, :status, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID fetches a payment by ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments p WHERE p.id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if missing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &payment, nil
}

// ExistsApproved reports whether the student already has an approved payment for period.
func (r *PaymentRepository) ExistsApproved(ctx context.Context, studentID string, period billing.Period) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM payments WHERE student_id = $1 AND ref_month = $2 AND ref_year = $3 AND status = $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, period.Month, period.Year, billing.PaymentApproved); err != nil {
		return false, fmt.Errorf("check approved payment: %w", err)
	}
	return exists, nil
}

// List returns stored payments joined with their student, newest reference
// month first, then newest submission.
func (r *PaymentRepository) List(ctx context.Context, q models.PaymentQuery) ([]models.PaymentRecord, error) {
	var args []interface{}
	conditions := scopeConditions(q.Scope, "p.student_id", q.Today, &args)

	if q.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("p.student_id = %s", bind(&args, q.StudentID)))
	}
	if q.InstructorID != "" {
		instructor := bind(&args, q.InstructorID)
		conditions = append(conditions, studentsUnderInstructor("p.student_id", instructor, bind(&args, dateOnly(q.Today))))
	}
	if q.Period != nil {
		conditions = append(conditions,
			fmt.Sprintf("p.ref_month = %s", bind(&args, q.Period.Month)),
			fmt.Sprintf("p.ref_year = %s", bind(&args, q.Period.Year)),
		)
	}
	if len(q.StudentIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("p.student_id = ANY(%s)", bind(&args, pq.Array(q.StudentIDs))))
	}

	query := fmt.Sprintf(`SELECT %s, s.full_name AS student_name, s.due_anchor_day
        FROM payments p
        JOIN students s ON s.id = p.student_id%s
        ORDER BY p.ref_year DESC, p.ref_month DESC, p.submitted_at DESC`, paymentColumns, where(conditions))

	var records []models.PaymentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return records, nil
}

// Count returns the number of stored payments inside scope.
func (r *PaymentRepository) Count(ctx context.Context, scope models.Scope, today time.Time) (int, error) {
	var args []interface{}
	query := "SELECT COUNT(*) FROM payments p" + where(scopeConditions(scope, "p.student_id", today, &args))
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return total, nil
}

// SumApproved totals approved payments whose reference month is period.
func (r *PaymentRepository) SumApproved(ctx context.Context, scope models.Scope, period billing.Period, today time.Time) (decimal.Decimal, error) {
	args := []interface{}{period.Month, period.Year, billing.PaymentApproved}
	conditions := append([]string{"p.ref_month = $1", "p.ref_year = $2", "p.status = $3"},
		scopeConditions(scope, "p.student_id", today, &args)...)

	query := "SELECT COALESCE(SUM(p.amount_paid), 0) FROM payments p" + where(conditions)
	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("sum approved payments: %w", err)
	}
	return total, nil
}

// Review resolves a pending payment in one transaction. The conditional update
// makes a second resolution affect no rows, reported as sql.ErrNoRows. When an
// approval covers review.Current the student row is locked and its due cursor
// rolled forward.
func (r *PaymentRepository) Review(ctx context.Context, review PaymentReview) (*models.ReviewOutcome, error) {
	var outcome models.ReviewOutcome
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const resolve = `UPDATE payments p SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5
        WHERE p.id = $1 AND p.status = 'pending'
        RETURNING ` + paymentColumns
		if err := tx.GetContext(ctx, &outcome.Payment, resolve, review.PaymentID, review.Status, review.ReviewerID, review.At, review.Note); err != nil {
			if missing(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("resolve payment: %w", mapUniqueViolation(err))
		}
		if review.Status != billing.PaymentApproved {
			return nil
		}

		payment := outcome.Payment
		const duplicate = `SELECT EXISTS (SELECT 1 FROM payments WHERE student_id = $1 AND ref_month = $2 AND ref_year = $3 AND status = 'approved' AND id <> $4)`
		var exists bool
		if err := tx.GetContext(ctx, &exists, duplicate, payment.StudentID, payment.RefMonth, payment.RefYear, payment.ID); err != nil {
			return fmt.Errorf("check approved payment: %w", err)
		}
		if exists {
			return ErrDuplicateApproval
		}

		if !payment.Period().Equal(review.Current) {
			return nil
		}
		var cursor billing.Period
		const lock = `SELECT due_month AS month, due_year AS year FROM students WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &cursor, lock, payment.StudentID); err != nil {
			return fmt.Errorf("lock student: %w", err)
		}
		next, moved := billing.Rollover(cursor, payment.Period(), review.Current)
		if !moved {
			return nil
		}
		const advance = `UPDATE students SET due_month = $2, due_year = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, advance, payment.StudentID, next.Month, next.Year, review.At); err != nil {
			return fmt.Errorf("advance due cursor: %w", err)
		}
		outcome.RolledOver = true
		outcome.DueCursor = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateApproval
	}
	return err
}
