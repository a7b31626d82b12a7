package models

import "time"

// Audit actions recorded for authentication and billing mutations.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionTokenRefresh     = "TOKEN_REFRESH"
	AuditActionTokenReuse       = "TOKEN_REUSE"
	AuditActionStudentCreate    = "STUDENT_CREATE"
	AuditActionStudentUpdate    = "STUDENT_UPDATE"
	AuditActionStudentClose     = "STUDENT_CLOSE"
	AuditActionStudentReopen    = "STUDENT_REACTIVATE"
	AuditActionStudentApprove   = "STUDENT_APPROVE"
	AuditActionStudentEffective = "STUDENT_EFFECTIVATE"
	AuditActionEnrollmentCreate = "ENROLLMENT_CREATE"
	AuditActionEnrollmentUpdate = "ENROLLMENT_UPDATE"
	AuditActionEnrollmentClose  = "ENROLLMENT_CLOSE"
	AuditActionInstructorSave   = "INSTRUCTOR_SAVE"
	AuditActionPaymentSubmit    = "PAYMENT_SUBMIT"
	AuditActionPaymentApprove   = "PAYMENT_APPROVE"
	AuditActionPaymentReject    = "PAYMENT_REJECT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
