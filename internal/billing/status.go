package billing

import "time"

// PaymentStatus is the stored review state of a payment submission.
type PaymentStatus string

// Review states.
const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known review state.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// Status is the effective billing status of a student for one reference month.
// It is derived on read and never persisted.
type Status string

// Effective statuses.
const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
	StatusOverdue Status = "overdue"
)

// Valid reports whether s is a known effective status.
func (s Status) Valid() bool {
	switch s {
	case StatusPaid, StatusPending, StatusOverdue:
		return true
	}
	return false
}

// ComputeStatus derives the effective status from the payment recorded for the
// month (nil when none) and the month's due date.
//
// ok is false when there is no payment and the due date has not passed yet; the
// status is undefined for that pair.
func ComputeStatus(payment *PaymentStatus, dueDate, today time.Time) (status Status, ok bool) {
	pastDue := dueDate.Before(today)
	if payment == nil {
		if pastDue {
			return StatusOverdue, true
		}
		return "", false
	}
	switch *payment {
	case PaymentApproved:
		return StatusPaid, true
	case PaymentRejected:
		return StatusOverdue, true
	default:
		if pastDue {
			return StatusOverdue, true
		}
		return StatusPending, true
	}
}

// Rollover returns the due cursor after approving a payment for ref while today
// falls in current. The cursor only moves when ref is the current month and it
// never moves backwards, so replays cannot double-advance it.
func Rollover(cursor, ref, current Period) (Period, bool) {
	if !ref.Equal(current) {
		return cursor, false
	}
	next := ref.Next()
	if !cursor.Before(next) {
		return cursor, false
	}
	return next, true
}
