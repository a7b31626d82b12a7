package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/voxen-api/internal/billing"
)

// GuardianRequiredBelowAge is the age under which a responsible party is mandatory.
const GuardianRequiredBelowAge = 16

// Student represents a learner registered at the school.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Phone         string    `db:"phone" json:"phone"`
	Email         *string   `db:"email" json:"email,omitempty"`
	GuardianName  *string   `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianPhone *string   `db:"guardian_phone" json:"guardian_phone,omitempty"`
	BirthDate     time.Time `db:"birth_date" json:"birth_date"`
	City          string    `db:"city" json:"city"`
	State         string    `db:"state" json:"state"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`

	// DueAnchorDay is the day-of-month of the recurring due date. Rollover never
	// changes it; DueMonth and DueYear hold the month it currently points to.
	DueAnchorDay int `db:"due_anchor_day" json:"due_anchor_day"`
	DueMonth     int `db:"due_month" json:"-"`
	DueYear      int `db:"due_year" json:"-"`

	Active         bool       `db:"active" json:"active"`
	Approved       bool       `db:"approved" json:"approved"`
	Experimental   bool       `db:"experimental" json:"experimental"`
	DeletionReason *string    `db:"deletion_reason" json:"deletion_reason,omitempty"`
	DeletedOn      *time.Time `db:"deleted_on" json:"deleted_on,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// DueCursor returns the month the next due date falls in.
func (s Student) DueCursor() billing.Period {
	return billing.Period{Month: s.DueMonth, Year: s.DueYear}
}

// NextDueDate is the anchor day applied to the due cursor.
func (s Student) NextDueDate() time.Time {
	return billing.DueDate(s.DueAnchorDay, s.DueCursor())
}

// DueDateFor returns the due date for an arbitrary reference month.
func (s Student) DueDateFor(p billing.Period) time.Time {
	return billing.DueDate(s.DueAnchorDay, p)
}

// Closure returns the deletion stamp when the student was soft-deleted.
func (s Student) Closure() *LifecycleClose {
	if s.DeletedOn == nil {
		return nil
	}
	closure := &LifecycleClose{Date: *s.DeletedOn}
	if s.DeletionReason != nil {
		closure.Reason = *s.DeletionReason
	}
	return closure
}

// ContactPhone prefers the student's phone and falls back to the guardian's.
func (s Student) ContactPhone() string {
	if s.Phone != "" {
		return s.Phone
	}
	if s.GuardianPhone != nil {
		return *s.GuardianPhone
	}
	return ""
}

// AgeOn returns completed years between birth and day.
func AgeOn(birth, day time.Time) int {
	age := day.Year() - birth.Year()
	if day.Month() < birth.Month() || (day.Month() == birth.Month() && day.Day() < birth.Day()) {
		age--
	}
	return age
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search       string
	Active       *bool
	Approved     *bool
	InstructorID string
	Scope        Scope
	Today        time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// StudentDetail decorates a student with the view computed from its open enrollments.
type StudentDetail struct {
	Student
	Modalities   []Modality      `json:"modalities"`
	Enrollments  []Enrollment    `json:"enrollments"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	UpcomingDue  time.Time       `json:"next_due_date"`
}
