package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/voxen-api/internal/billing"
)

// Payment is a monthly tuition submission awaiting or holding a review outcome.
type Payment struct {
	ID          string                `db:"id" json:"id"`
	StudentID   string                `db:"student_id" json:"student_id"`
	RefMonth    int                   `db:"ref_month" json:"ref_month"`
	RefYear     int                   `db:"ref_year" json:"ref_year"`
	AmountPaid  decimal.Decimal       `db:"amount_paid" json:"amount_paid"`
	PaidOn      time.Time             `db:"paid_on" json:"paid_on"`
	ProofRef    *string               `db:"proof_ref" json:"proof_ref,omitempty"`
	StudentNote *string               `db:"student_note" json:"student_note,omitempty"`
	Status      billing.PaymentStatus `db:"status" json:"status"`
	ReviewedBy  *string               `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time            `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote  *string               `db:"review_note" json:"review_note,omitempty"`
	SubmittedAt time.Time             `db:"submitted_at" json:"submitted_at"`
}

// Period returns the reference month the payment covers.
func (p Payment) Period() billing.Period {
	return billing.Period{Month: p.RefMonth, Year: p.RefYear}
}

// PaymentRecord is a payment joined with the student data needed to derive its status.
type PaymentRecord struct {
	Payment
	StudentName  string `db:"student_name" json:"student_name"`
	DueAnchorDay int    `db:"due_anchor_day" json:"-"`
}

// PaymentQuery narrows stored payments for roster queries.
type PaymentQuery struct {
	Scope     Scope
	StudentID string
	// InstructorID keeps payments of students with an open enrollment under the instructor.
	InstructorID string
	Period       *billing.Period
	StudentIDs   []string
	Today        time.Time
}

// PaymentFilter is the caller facing roster filter.
type PaymentFilter struct {
	Status       billing.Status
	StudentID    string
	InstructorID string
	Month        int
	Year         int
}

// HasPeriod reports whether the filter targets a single reference month.
func (f PaymentFilter) HasPeriod() bool {
	return f.Month != 0 || f.Year != 0
}

// PaymentRow is one line of the payments roster with its derived status.
type PaymentRow struct {
	ID            string                 `json:"id"`
	PaymentID     *string                `json:"payment_id,omitempty"`
	StudentID     string                 `json:"student_id"`
	StudentName   string                 `json:"student_name"`
	RefMonth      int                    `json:"ref_month"`
	RefYear       int                    `json:"ref_year"`
	DueDate       time.Time              `json:"due_date"`
	Status        billing.Status         `json:"status"`
	PaymentStatus *billing.PaymentStatus `json:"payment_status,omitempty"`
	AmountPaid    *decimal.Decimal       `json:"amount_paid,omitempty"`
	AmountDue     *decimal.Decimal       `json:"amount_due,omitempty"`
	PaidOn        *time.Time             `json:"paid_on,omitempty"`
	ProofRef      *string                `json:"proof_ref,omitempty"`
	ReviewNote    *string                `json:"review_note,omitempty"`
	SubmittedAt   *time.Time             `json:"submitted_at,omitempty"`
	// Synthetic marks rows standing in for a month with no payment at all.
	Synthetic bool `json:"synthetic"`
}

// SubmitPaymentRequest is the payload a student (or admin on their behalf) sends.
type SubmitPaymentRequest struct {
	StudentID   string          `json:"student_id"`
	RefMonth    int             `json:"ref_month" validate:"required,min=1,max=12"`
	RefYear     int             `json:"ref_year" validate:"required,min=2020,max=2100"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	PaidOn      string          `json:"paid_on" validate:"required"`
	ProofRef    string          `json:"proof_ref"`
	StudentNote string          `json:"student_note"`
}

// ReviewPaymentRequest carries the reviewer note for approve/reject.
type ReviewPaymentRequest struct {
	Note string `json:"note"`
}

// ReviewOutcome reports what a review changed.
type ReviewOutcome struct {
	Payment    Payment         `json:"payment"`
	RolledOver bool            `json:"rolled_over"`
	DueCursor  *billing.Period `json:"due_cursor,omitempty"`
}
