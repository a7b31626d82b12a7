package models

import "time"

// LifecycleClose records why and when a record left the active set. The same
// value is stamped on a student and cascaded to its open enrollments.
type LifecycleClose struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}
