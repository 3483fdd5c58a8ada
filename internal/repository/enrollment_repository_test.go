package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/acadia-labs/registrar-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsByTuple(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM enrollments WHERE student_id = \$1 AND course_id = \$2 AND semester = \$3 AND academic_year = \$4`).
		WithArgs("stu-1", "crs-1", "Fall 2024", 2024).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByTuple(context.Background(), "stu-1", "crs-1", "Fall 2024", 2024)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", CourseID: "crs-1", Semester: "Fall 2024", AcademicYear: 2024}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.False(t, enrollment.EnrollmentDate.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateGradeAndRecomputeGPA(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectExec(`UPDATE enrollments SET grade = \$2, grade_points = \$3`).
		WithArgs("enr-1", "A", 4.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT grade_points FROM enrollments`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"grade_points"}).AddRow(4.0).AddRow(3.3))
	mock.ExpectExec(`UPDATE students SET gpa = \$2`).
		WithArgs("stu-1", 3.65, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateGradeAndRecomputeGPA(context.Background(), "enr-1", "stu-1", "A", 4.0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRecomputeGPASkipsWithoutGradedRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectExec(`UPDATE enrollments SET grade = \$2, grade_points = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT grade_points FROM enrollments`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"grade_points"}))
	mock.ExpectCommit()

	err := repo.UpdateGradeAndRecomputeGPA(context.Background(), "enr-1", "stu-1", "A", 4.0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMeanGradePoints(t *testing.T) {
	gpa, ok := meanGradePoints([]float64{4.0, 3.3})
	require.True(t, ok)
	require.Equal(t, 3.65, gpa)

	gpa, ok = meanGradePoints([]float64{4.0, 3.0, 3.0})
	require.True(t, ok)
	require.Equal(t, 3.33, gpa)

	_, ok = meanGradePoints(nil)
	require.False(t, ok)
}

func TestEnrollmentRepositoryUpdateGradeRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("stu-1"))
	mock.ExpectExec(`UPDATE enrollments SET grade = \$2, grade_points = \$3`).
		WillReturnError(errors.New("write failed"))
	mock.ExpectRollback()

	err := repo.UpdateGradeAndRecomputeGPA(context.Background(), "enr-1", "stu-1", "A", 4.0)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateBatchRollsBackWhenCourseFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT active FROM courses WHERE id = \$1`).
		WithArgs("crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE course_id = \$1 AND status = \$2`).
		WithArgs("crs-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	enrollments := []models.Enrollment{{StudentID: "stu-1", CourseID: "crs-1", Semester: "Fall 2024", AcademicYear: 2024}}
	err := repo.CreateBatch(context.Background(), enrollments, 30)
	require.ErrorIs(t, err, ErrCourseFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateBatchInsertsAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	for range []int{0, 1} {
		mock.ExpectQuery(`SELECT active FROM courses WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE course_id = \$1 AND status = \$2`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectExec(`INSERT INTO enrollments`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	enrollments := []models.Enrollment{
		{StudentID: "stu-1", CourseID: "crs-1", Semester: "Fall 2024", AcademicYear: 2024},
		{StudentID: "stu-1", CourseID: "crs-2", Semester: "Fall 2024", AcademicYear: 2024},
	}
	err := repo.CreateBatch(context.Background(), enrollments, 30)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryBulkAssignGrades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE enrollments SET\s+grade_points = CASE`).
		WithArgs("Fall 2024", 2024, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("stu-2").AddRow("stu-1").AddRow("stu-2"))
	// Touched students are locked in sorted ID order regardless of the order
	// the graded rows came back in.
	for _, studentID := range []string{"stu-1", "stu-2"} {
		mock.ExpectQuery(`SELECT id FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(studentID))
		mock.ExpectQuery(`SELECT grade_points FROM enrollments`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"grade_points"}).AddRow(4.0))
		mock.ExpectExec(`UPDATE students SET gpa = \$2`).
			WithArgs(studentID, 4.0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	count, err := repo.BulkAssignGrades(context.Background(), "Fall 2024", 2024)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListTranscript(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	points := 4.0
	rows := sqlmock.NewRows([]string{"course_code", "course_title", "credit_hours", "semester", "academic_year", "grade", "grade_points"}).
		AddRow("CS101", "Intro to Computer Science", 3.0, "Fall 2024", 2024, "A", points)
	mock.ExpectQuery(`WHERE e\.student_id = \$1 AND e\.grade IS NOT NULL`).
		WithArgs("stu-1").
		WillReturnRows(rows)

	transcript, err := repo.ListTranscript(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	require.Equal(t, "CS101", transcript[0].CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments SET status = \$2`).
		WithArgs("enr-1", models.EnrollmentStatusDropped, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusDropped)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "enrollment_date", "semester", "academic_year",
		"status", "grade", "grade_points", "attendance_percentage", "created_at", "updated_at"}).
		AddRow("enr-1", "stu-1", "crs-1", now, "Fall 2024", 2024, models.EnrollmentStatusActive, nil, nil, nil, now, now)
	mock.ExpectQuery(`FROM enrollments WHERE id = \$1`).
		WithArgs("enr-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByID(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, "stu-1", enrollment.StudentID)
	require.Nil(t, enrollment.Grade)
	require.NoError(t, mock.ExpectationsWereMet())
}
