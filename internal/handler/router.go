package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth        *AuthHandler
	Students    *StudentHandler
	Enrollments *EnrollmentHandler
	Instructors *InstructorHandler
	Payments    *PaymentHandler
	Dashboard   *DashboardHandler
	Billing     *BillingHandler
}

// RouterDeps carries the cross-cutting pieces the routes need.
type RouterDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts the API on the given group. Capability checks here only
// reject roles outright; services apply the record level scope.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, deps RouterDeps) {
	audit := func(action, resource string) gin.HandlerFunc {
		if deps.Audit == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}
	rbac := middleware.RBAC

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/password", h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	students := secured.Group("/students")
	students.GET("", rbac(models.CapReadStudents), h.Students.List)
	students.GET("/:id", rbac(models.CapReadStudents), h.Students.Get)
	students.POST("", rbac(models.CapWriteStudents), audit(models.AuditActionStudentCreate, "student"), h.Students.Create)
	students.PUT("/:id", rbac(models.CapWriteStudents), audit(models.AuditActionStudentUpdate, "student"), h.Students.Update)
	students.DELETE("/:id", rbac(models.CapCloseStudents), audit(models.AuditActionStudentClose, "student"), h.Students.Delete)
	students.POST("/:id/reactivate", rbac(models.CapCloseStudents), audit(models.AuditActionStudentReopen, "student"), h.Students.Reactivate)
	students.POST("/:id/approve", rbac(models.CapApproveStudents), audit(models.AuditActionStudentApprove, "student"), h.Students.Approve)
	students.POST("/:id/effectivate", rbac(models.CapApproveStudents), audit(models.AuditActionStudentEffective, "student"), h.Students.Effectivate)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", rbac(models.CapReadEnrollments), h.Enrollments.List)
	enrollments.POST("", rbac(models.CapWriteEnrollments), audit(models.AuditActionEnrollmentCreate, "enrollment"), h.Enrollments.Create)
	enrollments.PUT("/:id", rbac(models.CapWriteEnrollments), audit(models.AuditActionEnrollmentUpdate, "enrollment"), h.Enrollments.Update)
	enrollments.DELETE("/:id", rbac(models.CapWriteEnrollments), audit(models.AuditActionEnrollmentClose, "enrollment"), h.Enrollments.Delete)

	instructors := secured.Group("/instructors")
	instructors.GET("", rbac(models.CapReadInstructors), h.Instructors.List)
	instructors.GET("/:id", rbac(models.CapReadInstructors), h.Instructors.Get)
	instructors.POST("", rbac(models.CapWriteInstructors), audit(models.AuditActionInstructorSave, "instructor"), h.Instructors.Create)
	instructors.PUT("/:id", rbac(models.CapWriteInstructors), audit(models.AuditActionInstructorSave, "instructor"), h.Instructors.Update)

	payments := secured.Group("/payments")
	payments.GET("", rbac(models.CapReadPayments), h.Payments.List)
	payments.GET("/export", rbac(models.CapExportPayments), h.Payments.Export)
	payments.POST("", rbac(models.CapSubmitPayments), audit(models.AuditActionPaymentSubmit, "payment"), h.Payments.Submit)
	payments.POST("/:id/approve", rbac(models.CapReviewPayments), audit(models.AuditActionPaymentApprove, "payment"), h.Payments.Approve)
	payments.POST("/:id/reject", rbac(models.CapReviewPayments), audit(models.AuditActionPaymentReject, "payment"), h.Payments.Reject)

	dashboard := secured.Group("/dashboard", rbac(models.CapReadDashboard))
	dashboard.GET("/stats", h.Dashboard.Stats)
	dashboard.GET("/enrollment-trend", h.Dashboard.Trend)

	secured.GET("/billing/due-today", rbac(models.CapReadDueToday), h.Billing.DueToday)
}
