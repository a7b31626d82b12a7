package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/models"
)

var studentRowColumns = []string{"id", "full_name", "phone", "email", "guardian_name", "guardian_phone", "birth_date", "city", "state",
	"payment_method", "due_anchor_day", "due_month", "due_year", "active", "approved", "experimental",
	"deletion_reason", "deleted_on", "created_at", "updated_at"}

var enrollmentRowColumns = []string{"id", "student_id", "instructor_id", "modality", "monthly_price", "weekday", "time_slot",
	"start_date", "end_date", "end_reason", "created_at", "updated_at"}

func studentRow(rows *sqlmock.Rows, id, name string, approved bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, name, "11999990000", nil, nil, nil, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), "São Paulo", "SP",
		"pix", 31, 6, 2024, true, approved, false, nil, nil, now, now)
}

func TestStudentRepositoryListScopedToInstructor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	today := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE s.id IN (SELECT ie.student_id FROM enrollments ie WHERE ie.instructor_id = $1 AND (ie.end_date IS NULL OR ie.end_date > $2)) AND s.active = $3 AND (LOWER(s.full_name) LIKE $4") + ".*" + regexp.QuoteMeta("ORDER BY s.full_name ASC LIMIT 20 OFFSET 0")).
		WithArgs("ins-1", today, true, "%ana%").
		WillReturnRows(studentRow(sqlmock.NewRows(studentRowColumns), "stu-1", "Ana Souza", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE")).
		WithArgs("ins-1", today, true, "%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active := true
	students, total, err := repo.List(context.Background(), models.StudentFilter{
		Scope:  models.Scope{InstructorID: "ins-1"},
		Today:  today,
		Active: &active,
		Search: "Ana",
	})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 31, students[0].DueAnchorDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListActiveRequiresOpenEnrollment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	today := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.active = TRUE AND EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = s.id AND (e.end_date IS NULL OR e.end_date > $1)) ORDER BY s.full_name ASC")).
		WithArgs(today).
		WillReturnRows(studentRow(studentRow(sqlmock.NewRows(studentRowColumns), "stu-1", "Ana", true), "stu-2", "Bruno", false))

	students, err := repo.ListActive(context.Background(), models.Scope{}, today)
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateWithEnrollmentsIsAtomic(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	student := &models.Student{FullName: "Ana", DueAnchorDay: 10, DueMonth: 6, DueYear: 2024, Active: true}
	err := repo.CreateWithEnrollments(context.Background(), student, []models.Enrollment{
		{InstructorID: "ins-1", Modality: models.ModalityMusical},
		{InstructorID: "missing", Modality: models.ModalityVoiceOver},
	})
	require.Error(t, err)
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryApproveRunsCheckUnderLock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	today := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(studentRow(sqlmock.NewRows(studentRowColumns), "stu-1", "Ana", false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e WHERE e.student_id = $1 AND (e.end_date IS NULL OR e.end_date > $2)")).
		WithArgs("stu-1", today).
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "stu-1", "ins-1", "musical", "250.00", 2, "18:00", today, nil, nil, today, today))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET approved = TRUE, updated_at = $2 WHERE id = $1 AND approved = FALSE")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []models.Enrollment
	err := repo.Approve(context.Background(), "stu-1", today, func(_ models.Student, open []models.Enrollment) error {
		seen = open
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "250", seen[0].MonthlyPrice.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryApproveAbortsOnFailedCheck(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	today := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(studentRow(sqlmock.NewRows(studentRowColumns), "stu-1", "Ana", false))
	mock.ExpectQuery("FROM enrollments e").WillReturnRows(sqlmock.NewRows(enrollmentRowColumns))
	mock.ExpectRollback()

	rejected := errors.New("incomplete")
	err := repo.Approve(context.Background(), "stu-1", today, func(models.Student, []models.Enrollment) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryApproveTreatsMalformedIDAsMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	mock.ExpectRollback()

	called := false
	err := repo.Approve(context.Background(), "not-a-uuid", time.Now(), func(models.Student, []models.Enrollment) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryEffectivateGuarded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET experimental = FALSE, approved = TRUE, updated_at = $2 WHERE id = $1 AND experimental = TRUE")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Effectivate(context.Background(), "stu-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCloseCascadesToOpenEnrollments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	closedOn := time.Date(2024, 6, 20, 15, 30, 0, 0, time.UTC)
	day := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET active = FALSE, deletion_reason = $2, deleted_on = $3")).
		WithArgs("stu-1", "mudou de cidade", day, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET end_date = $2, end_reason = $3")).
		WithArgs("stu-1", day, "mudou de cidade", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.Close(context.Background(), "stu-1", models.LifecycleClose{Date: closedOn, Reason: "mudou de cidade"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryReactivateLeavesEnrollmentsClosed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET active = TRUE, deletion_reason = NULL, deleted_on = NULL")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Reactivate(context.Background(), "stu-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
