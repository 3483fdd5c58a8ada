package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acadia-labs/registrar-api/internal/middleware"
	"github.com/acadia-labs/registrar-api/internal/models"
	"github.com/acadia-labs/registrar-api/internal/service"
)

type enrollmentRepoStub struct {
	enrollments map[string]models.Enrollment
	tuples      map[string]bool
	bulkCount   int
}

func (m *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoStub) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoStub) ExistsByTuple(ctx context.Context, studentID, courseID, semester string, academicYear int) (bool, error) {
	return m.tuples[studentID+courseID], nil
}

func (m *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "enroll-1"
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *enrollmentRepoStub) CreateBatch(ctx context.Context, enrollments []models.Enrollment, capacity int) error {
	return nil
}

func (m *enrollmentRepoStub) UpdateGradeAndRecomputeGPA(ctx context.Context, enrollmentID, studentID, grade string, gradePoints float64) error {
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

func (m *enrollmentRepoStub) BulkAssignGrades(ctx context.Context, semester string, academicYear int) (int, error) {
	return m.bulkCount, nil
}

func (m *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

func (m *enrollmentRepoStub) UpdateAttendance(ctx context.Context, id string, percentage float64) error {
	return nil
}

func (m *enrollmentRepoStub) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	return nil
}

type studentReaderStub struct{}

func (studentReaderStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id, Active: true}, nil
}

type courseReaderStub struct{}

func (courseReaderStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Course{ID: id, Active: true}, nil
}

type auditWriterStub struct{ logs []models.AuditLog }

func (m *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newEnrollmentHandlerFixture(repo *enrollmentRepoStub) *EnrollmentHandler {
	svc := service.NewEnrollmentService(repo, studentReaderStub{}, courseReaderStub{}, &auditWriterStub{}, 30, time.Second, nil, zap.NewNop())
	return NewEnrollmentHandler(svc)
}

func postJSON(t *testing.T, method, target string, payload interface{}) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleRegistrar})
	return w, c
}

func TestEnrollmentHandlerEnroll(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{})
	w, c := postJSON(t, http.MethodPost, "/enrollments", service.EnrollRequest{
		StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})

	handler.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "ACTIVE")
}

func TestEnrollmentHandlerEnrollDuplicate(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{tuples: map[string]bool{"s1c1": true}})
	w, c := postJSON(t, http.MethodPost, "/enrollments", service.EnrollRequest{
		StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})

	handler.Enroll(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEnrollmentHandlerEnrollMissingStudent(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{})
	w, c := postJSON(t, http.MethodPost, "/enrollments", service.EnrollRequest{
		StudentID: "missing", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
	})

	handler.Enroll(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerEnrollInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Enroll(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerPostGrade(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}}
	handler := newEnrollmentHandlerFixture(repo)
	w, c := postJSON(t, http.MethodPut, "/enrollments/e1/grade", service.PostGradeRequest{Grade: "A", GradePoints: 4.0})
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.PostGrade(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "COMPLETED")
}

func TestEnrollmentHandlerPostGradeUnknownEnrollment(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{})
	w, c := postJSON(t, http.MethodPut, "/enrollments/ghost/grade", service.PostGradeRequest{Grade: "A", GradePoints: 4.0})
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.PostGrade(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerDrop(t *testing.T) {
	repo := &enrollmentRepoStub{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive},
	}}
	handler := newEnrollmentHandlerFixture(repo)
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments/e1/drop", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.Drop(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DROPPED")
}

func TestEnrollmentHandlerBulkGrade(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollmentRepoStub{bulkCount: 5})
	w, c := postJSON(t, http.MethodPost, "/enrollments/bulk-grade", service.BulkGradeRequest{Semester: "FALL", AcademicYear: 2025})

	handler.BulkGrade(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"graded_count":5`)
}

func TestEnrollmentHandlerExport(t *testing.T) {
	grade := "B"
	repo := &enrollmentRepoStub{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Semester: "FALL", AcademicYear: 2025,
			Status: models.EnrollmentStatusCompleted, Grade: &grade},
	}}
	handler := newEnrollmentHandlerFixture(repo)
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/enrollments/export", nil)
	c.Request = req

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), "enrollment_id")
}
