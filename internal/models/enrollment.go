package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Modality is a course offering a student enrolls in with one instructor.
type Modality string

// Course modalities offered by the school.
const (
	ModalityDubbingOnline   Modality = "dublagem_online"
	ModalityDubbingInPerson Modality = "dublagem_presencial"
	ModalityTheaterOnline   Modality = "teatro_online"
	ModalityTheaterInPerson Modality = "teatro_presencial"
	ModalityVoiceOver       Modality = "locucao"
	ModalityScreenActing    Modality = "teatro_tv_cinema"
	ModalityMusical         Modality = "musical"
	ModalityPresenterCourse Modality = "curso_apresentador"
)

var modalityLabels = map[Modality]string{
	ModalityDubbingOnline:   "Dublagem Online",
	ModalityDubbingInPerson: "Dublagem Presencial",
	ModalityTheaterOnline:   "Teatro Online",
	ModalityTheaterInPerson: "Teatro Presencial",
	ModalityVoiceOver:       "Locução",
	ModalityScreenActing:    "Teatro TV/Cinema",
	ModalityMusical:         "Musical",
	ModalityPresenterCourse: "Curso de Apresentador",
}

// Modalities lists every known modality in display order.
func Modalities() []Modality {
	return []Modality{
		ModalityDubbingOnline,
		ModalityDubbingInPerson,
		ModalityTheaterOnline,
		ModalityTheaterInPerson,
		ModalityVoiceOver,
		ModalityScreenActing,
		ModalityMusical,
		ModalityPresenterCourse,
	}
}

// Valid reports whether the modality is offered.
func (m Modality) Valid() bool {
	_, ok := modalityLabels[m]
	return ok
}

// Label returns the human readable modality name.
func (m Modality) Label() string {
	if label, ok := modalityLabels[m]; ok {
		return label
	}
	return string(m)
}

// Enrollment binds a student to an instructor for one modality.
type Enrollment struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	InstructorID string          `db:"instructor_id" json:"instructor_id"`
	Modality     Modality        `db:"modality" json:"modality"`
	MonthlyPrice decimal.Decimal `db:"monthly_price" json:"monthly_price"`
	// Weekday follows time.Weekday numbering (0 = Sunday).
	Weekday   *int       `db:"weekday" json:"weekday,omitempty"`
	TimeSlot  *string    `db:"time_slot" json:"time_slot,omitempty"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	EndReason *string    `db:"end_reason" json:"end_reason,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// OpenOn reports whether the enrollment is still running on day. An enrollment
// closed today no longer counts.
func (e Enrollment) OpenOn(day time.Time) bool {
	return e.EndDate == nil || e.EndDate.After(day)
}

// Gaps lists the billing fields still missing on the enrollment.
func (e Enrollment) Gaps() []string {
	var gaps []string
	if !e.MonthlyPrice.IsPositive() {
		gaps = append(gaps, "monthly price must be greater than zero")
	}
	if e.Weekday == nil {
		gaps = append(gaps, "weekday is required")
	} else if *e.Weekday < 0 || *e.Weekday > 6 {
		gaps = append(gaps, fmt.Sprintf("weekday %d is out of range", *e.Weekday))
	}
	if e.TimeSlot == nil || *e.TimeSlot == "" {
		gaps = append(gaps, "time slot is required")
	}
	if e.StartDate == nil {
		gaps = append(gaps, "start date is required")
	}
	return gaps
}

// EnrollmentDetail enriches Enrollment with student and instructor names.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	InstructorID string
	Modality     Modality
	OpenOnly     bool
	Scope        Scope
	Today        time.Time
}
