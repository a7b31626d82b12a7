package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/voxen-api/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// missing reports a lookup that matched nothing. An id that is not a valid
// UUID cannot match a row either, so the driver's syntax error counts too.
func missing(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

// bind appends v to args and returns its positional placeholder.
func bind(args *[]interface{}, v interface{}) string {
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}

// openEnrollment renders the "still running on today" predicate for an
// enrollments alias.
func openEnrollment(alias, todayPlaceholder string) string {
	return fmt.Sprintf("(%[1]s.end_date IS NULL OR %[1]s.end_date > %[2]s)", alias, todayPlaceholder)
}

// studentsUnderInstructor matches a student column against the students with an
// open enrollment under the instructor.
func studentsUnderInstructor(column, instructorPlaceholder, todayPlaceholder string) string {
	return fmt.Sprintf("%s IN (SELECT ie.student_id FROM enrollments ie WHERE ie.instructor_id = %s AND %s)",
		column, instructorPlaceholder, openEnrollment("ie", todayPlaceholder))
}

// scopeConditions translates an actor scope into predicates on a student id column.
func scopeConditions(scope models.Scope, column string, today time.Time, args *[]interface{}) []string {
	var conditions []string
	if scope.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, bind(args, scope.StudentID)))
	}
	if scope.InstructorID != "" {
		instructor := bind(args, scope.InstructorID)
		conditions = append(conditions, studentsUnderInstructor(column, instructor, bind(args, dateOnly(today))))
	}
	return conditions
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// pageWindow normalises pagination input into limit and offset.
func pageWindow(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}

// sortClause resolves a user supplied sort key against an allow list.
func sortClause(sortBy, sortOrder string, allowed map[string]string, fallback, fallbackOrder string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = fallbackOrder
	}
	return column + " " + order
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
