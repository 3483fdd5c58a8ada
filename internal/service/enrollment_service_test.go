package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acadia-labs/registrar-api/internal/models"
	"github.com/acadia-labs/registrar-api/internal/repository"
	appErrors "github.com/acadia-labs/registrar-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	tuples      map[string]bool
	created     []models.Enrollment
	batch       []models.Enrollment
	batchErr    error
	createErr   error
	graded      map[string]float64
	status      map[string]models.EnrollmentStatus
	attendance  map[string]float64
	bulkCount   int
	deleted     []string
}

func tupleKey(studentID, courseID, semester string, year int) string {
	return fmt.Sprintf("%s|%s|%s|%d", studentID, courseID, semester, year)
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsByTuple(ctx context.Context, studentID, courseID, semester string, academicYear int) (bool, error) {
	return m.tuples[tupleKey(studentID, courseID, semester, academicYear)], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = fmt.Sprintf("enroll-%d", len(m.enrollments)+1)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = append(m.created, *enrollment)
	return nil
}

func (m *mockEnrollmentRepo) CreateBatch(ctx context.Context, enrollments []models.Enrollment, capacity int) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batch = append(m.batch, enrollments...)
	return nil
}

func (m *mockEnrollmentRepo) UpdateGradeAndRecomputeGPA(ctx context.Context, enrollmentID, studentID, grade string, gradePoints float64) error {
	if m.graded == nil {
		m.graded = make(map[string]float64)
	}
	m.graded[enrollmentID] = gradePoints
	if e, ok := m.enrollments[enrollmentID]; ok {
		e.Grade = &grade
		e.GradePoints = &gradePoints
		if gradePoints > 0 {
			e.Status = models.EnrollmentStatusCompleted
		}
		m.enrollments[enrollmentID] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) BulkAssignGrades(ctx context.Context, semester string, academicYear int) (int, error) {
	return m.bulkCount, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) UpdateAttendance(ctx context.Context, id string, percentage float64) error {
	if m.attendance == nil {
		m.attendance = make(map[string]float64)
	}
	m.attendance[id] = percentage
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.enrollments, id)
	return nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditWriter struct {
	logs []models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockAuditWriter) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{
		"s1": {ID: "s1", Active: true},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"c1": {ID: "c1", Active: true},
		"c2": {ID: "c2", Active: true},
	}}
	audits := &mockAuditWriter{}
	svc := NewEnrollmentService(repo, students, courses, audits, 30, time.Second, validator.New(), zap.NewNop())
	return svc, repo, audits
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.Attendance)
	assert.Zero(t, *enrollment.Attendance)
	assert.Len(t, repo.created, 1)
}

func TestEnrollmentServiceEnrollDuplicateConflict(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.tuples = map[string]bool{tupleKey("s1", "c1", "FALL", 2025): true}

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceEnrollMissingCourse(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", CourseID: "ghost", Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollInactiveStudent(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	students := &mockStudentReader{students: map[string]*models.Student{"s2": {ID: "s2", Active: false}}}
	svc.students = students

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s2", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollMultiple(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	enrollments, err := svc.EnrollMultiple(context.Background(), EnrollBatchRequest{
		StudentID: "s1", CourseIDs: []string{"c1", "c2"}, Semester: "FALL", AcademicYear: 2025,
	})
	require.NoError(t, err)
	assert.Len(t, enrollments, 2)
	assert.Len(t, repo.batch, 2)
}

func TestEnrollmentServiceEnrollMultipleCapacityExceeded(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.batchErr = fmt.Errorf("course c2: %w", repository.ErrCourseFull)

	_, err := svc.EnrollMultiple(context.Background(), EnrollBatchRequest{
		StudentID: "s1", CourseIDs: []string{"c1", "c2"}, Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.batch)
}

func TestEnrollmentServiceEnrollMultipleMissingCourse(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.batchErr = fmt.Errorf("course ghost: %w", sql.ErrNoRows)

	_, err := svc.EnrollMultiple(context.Background(), EnrollBatchRequest{
		StudentID: "s1", CourseIDs: []string{"ghost"}, Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollMultipleRejectsDuplicateCourseIDs(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.EnrollMultiple(context.Background(), EnrollBatchRequest{
		StudentID: "s1", CourseIDs: []string{"c1", "c1"}, Semester: "FALL", AcademicYear: 2025,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServicePostGradeCompletes(t *testing.T) {
	svc, repo, audits := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	updated, err := svc.PostGrade(context.Background(), "e1", PostGradeRequest{Grade: "A", GradePoints: 4.0}, AuditContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
	assert.InDelta(t, 4.0, repo.graded["e1"], 0.001)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionGradePosted, audits.logs[0].Action)
}

func TestEnrollmentServicePostGradeFailingStaysActive(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	updated, err := svc.PostGrade(context.Background(), "e1", PostGradeRequest{Grade: "F", GradePoints: 0}, AuditContext{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
}

func TestEnrollmentServicePostGradeDroppedRejected(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusDropped},
	}

	_, err := svc.PostGrade(context.Background(), "e1", PostGradeRequest{Grade: "A", GradePoints: 4.0}, AuditContext{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServicePostGradeOutOfRange(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	_, err := svc.PostGrade(context.Background(), "e1", PostGradeRequest{Grade: "A", GradePoints: 4.5}, AuditContext{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceDrop(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	dropped, err := svc.Drop(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
	assert.Equal(t, models.EnrollmentStatusDropped, repo.status["e1"])
	// GPA recompute path must not run on a drop
	assert.Empty(t, repo.graded)
}

func TestEnrollmentServiceDropNonActiveRejected(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusCompleted},
	}

	_, err := svc.Drop(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceBulkGradeUpdate(t *testing.T) {
	svc, repo, audits := newEnrollmentFixture()
	repo.bulkCount = 7

	result, err := svc.BulkGradeUpdate(context.Background(), BulkGradeRequest{Semester: "FALL", AcademicYear: 2025}, AuditContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 7, result.GradedCount)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionBulkGrade, audits.logs[0].Action)
}

func TestEnrollmentServiceUpdateAttendance(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	updated, err := svc.UpdateAttendance(context.Background(), "e1", UpdateAttendanceRequest{Attendance: 87.5})
	require.NoError(t, err)
	require.NotNil(t, updated.Attendance)
	assert.InDelta(t, 87.5, *updated.Attendance, 0.001)
	assert.InDelta(t, 87.5, repo.attendance["e1"], 0.001)
}

func TestEnrollmentServiceDelete(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}

	require.NoError(t, svc.Delete(context.Background(), "e1"))
	assert.Contains(t, repo.deleted, "e1")

	err := svc.Delete(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceExportCSV(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	grade := "B"
	points := 3.0
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
			Status: models.EnrollmentStatusCompleted, Grade: &grade, GradePoints: &points},
	}

	data, err := svc.ExportCSV(context.Background(), models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Contains(t, string(data), "FALL")
}
