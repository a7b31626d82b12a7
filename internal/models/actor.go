package models

// Capability names an operation guarded by the role table.
type Capability string

const (
	CapReadStudents     Capability = "students:read"
	CapWriteStudents    Capability = "students:write"
	CapCloseStudents    Capability = "students:close"
	CapApproveStudents  Capability = "students:approve"
	CapReadEnrollments  Capability = "enrollments:read"
	CapWriteEnrollments Capability = "enrollments:write"
	CapReadInstructors  Capability = "instructors:read"
	CapWriteInstructors Capability = "instructors:write"
	CapReadPayments     Capability = "payments:read"
	CapSubmitPayments   Capability = "payments:submit"
	CapReviewPayments   Capability = "payments:review"
	CapExportPayments   Capability = "payments:export"
	CapReadDashboard    Capability = "dashboard:read"
	CapReadDueToday     Capability = "billing:due-today"
)

// Reach describes which records a capability covers for a role.
type Reach int

const (
	ReachNone Reach = iota
	// ReachSelf limits the actor to its own student record.
	ReachSelf
	// ReachOwnStudents limits the actor to students with an open enrollment under it.
	ReachOwnStudents
	ReachAll
)

// capabilityTable is the single source of role rights. Services consult it once
// per operation before touching any data.
var capabilityTable = map[UserRole]map[Capability]Reach{
	RoleAdmin: {
		CapReadStudents:     ReachAll,
		CapWriteStudents:    ReachAll,
		CapCloseStudents:    ReachAll,
		CapApproveStudents:  ReachAll,
		CapReadEnrollments:  ReachAll,
		CapWriteEnrollments: ReachAll,
		CapReadInstructors:  ReachAll,
		CapWriteInstructors: ReachAll,
		CapReadPayments:     ReachAll,
		CapSubmitPayments:   ReachAll,
		CapReviewPayments:   ReachAll,
		CapExportPayments:   ReachAll,
		CapReadDashboard:    ReachAll,
		CapReadDueToday:     ReachAll,
	},
	RoleManager: {
		CapReadStudents:    ReachAll,
		CapReadEnrollments: ReachAll,
		CapReadInstructors: ReachAll,
		CapReadPayments:    ReachAll,
		CapExportPayments:  ReachAll,
		CapReadDashboard:   ReachAll,
	},
	RoleInstructor: {
		CapReadStudents:     ReachOwnStudents,
		CapWriteStudents:    ReachOwnStudents,
		CapReadEnrollments:  ReachOwnStudents,
		CapWriteEnrollments: ReachOwnStudents,
		CapReadInstructors:  ReachAll,
		CapReadPayments:     ReachOwnStudents,
		CapExportPayments:   ReachOwnStudents,
		CapReadDashboard:    ReachOwnStudents,
	},
	RoleStudent: {
		CapReadStudents:    ReachSelf,
		CapReadEnrollments: ReachSelf,
		CapReadPayments:    ReachSelf,
		CapSubmitPayments:  ReachSelf,
	},
}

// Actor is the pre-resolved caller identity handed to services.
type Actor struct {
	UserID       string
	Role         UserRole
	StudentID    string
	InstructorID string
}

// SystemActor is used by background jobs and the admin CLI.
func SystemActor() Actor {
	return Actor{UserID: "system", Role: RoleAdmin}
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Reach returns how far the capability extends for this actor. Scoped roles
// without the matching link resolve to ReachNone.
func (a Actor) Reach(c Capability) Reach {
	reach := capabilityTable[a.Role][c]
	switch reach {
	case ReachSelf:
		if a.StudentID == "" {
			return ReachNone
		}
	case ReachOwnStudents:
		if a.InstructorID == "" {
			return ReachNone
		}
	}
	return reach
}

// Can reports whether the actor holds the capability at any reach.
func (a Actor) Can(c Capability) bool {
	return a.Reach(c) != ReachNone
}

// Scope returns the record filter implied by the capability and whether the
// capability is granted at all.
func (a Actor) Scope(c Capability) (Scope, bool) {
	switch a.Reach(c) {
	case ReachAll:
		return Scope{}, true
	case ReachOwnStudents:
		return Scope{InstructorID: a.InstructorID}, true
	case ReachSelf:
		return Scope{StudentID: a.StudentID}, true
	default:
		return Scope{}, false
	}
}

// Scope restricts queries to a student or to an instructor's students. The zero
// value is unrestricted.
type Scope struct {
	StudentID    string
	InstructorID string
}

// Global reports whether the scope is unrestricted.
func (s Scope) Global() bool {
	return s.StudentID == "" && s.InstructorID == ""
}
