package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/voxen-api/internal/billing"
)

// DashboardStats summarises billing health for the current reference month.
// Student counts only include students with at least one open enrollment.
type DashboardStats struct {
	Period               billing.Period  `json:"period"`
	TotalActiveStudents  int             `json:"total_active_students"`
	ApprovedCount        int             `json:"approved_count"`
	PendingApprovalCount int             `json:"pending_approval_count"`
	DueTodayCount        int             `json:"due_today_count"`
	OverdueCount         int             `json:"overdue_count"`
	MonthlyRevenue       decimal.Decimal `json:"monthly_revenue"`
	TotalInstructors     int             `json:"total_instructors"`
	TotalPayments        int             `json:"total_payments"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// TrendPoint counts students with an open enrollment at the end of a month.
type TrendPoint struct {
	Period         string `db:"period" json:"period"`
	ActiveStudents int    `db:"active_students" json:"active_students"`
}

// DueStudent is one entry of the due-today feed consumed by the notifier.
type DueStudent struct {
	Student            Student         `json:"student"`
	DueDate            time.Time       `json:"due_date"`
	TotalMonthlyAmount decimal.Decimal `json:"total_monthly_amount"`
	Modalities         []Modality      `json:"modalities"`
}
