package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/acadia-labs/registrar-api/internal/models"
	"github.com/acadia-labs/registrar-api/internal/repository"
	appErrors "github.com/acadia-labs/registrar-api/pkg/errors"
	"github.com/acadia-labs/registrar-api/pkg/export"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsByTuple(ctx context.Context, studentID, courseID, semester string, academicYear int) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	CreateBatch(ctx context.Context, enrollments []models.Enrollment, capacity int) error
	UpdateGradeAndRecomputeGPA(ctx context.Context, enrollmentID, studentID, grade string, gradePoints float64) error
	BulkAssignGrades(ctx context.Context, semester string, academicYear int) (int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	UpdateAttendance(ctx context.Context, id string, percentage float64) error
	Delete(ctx context.Context, id string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrollRequest holds payload for a single enrollment.
type EnrollRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	Semester     string `json:"semester" validate:"required"`
	AcademicYear int    `json:"academic_year" validate:"required,min=1900"`
}

// EnrollBatchRequest enrolls one student into several courses at once.
type EnrollBatchRequest struct {
	StudentID    string   `json:"student_id" validate:"required"`
	CourseIDs    []string `json:"course_ids" validate:"required,min=1,dive,required"`
	Semester     string   `json:"semester" validate:"required"`
	AcademicYear int      `json:"academic_year" validate:"required,min=1900"`
}

// PostGradeRequest holds payload for posting a final grade.
type PostGradeRequest struct {
	Grade       string  `json:"grade" validate:"required"`
	GradePoints float64 `json:"grade_points" validate:"min=0,max=4"`
}

// UpdateAttendanceRequest holds payload for attendance updates.
type UpdateAttendanceRequest struct {
	Attendance float64 `json:"attendance_percentage" validate:"min=0,max=100"`
}

// BulkGradeRequest scopes the attendance-based grading sweep to a term.
type BulkGradeRequest struct {
	Semester     string `json:"semester" validate:"required"`
	AcademicYear int    `json:"academic_year" validate:"required,min=1900"`
}

// BulkGradeResult reports the outcome of a grading sweep.
type BulkGradeResult struct {
	GradedCount int `json:"graded_count"`
}

// AuditContext carries request identity into audit rows.
type AuditContext struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// EnrollmentService orchestrates enrollment, grading and GPA flows.
type EnrollmentService struct {
	enrollments    enrollmentRepository
	students       studentReader
	courses        courseReader
	audits         auditWriter
	exporter       *export.RosterCSV
	metrics        *MetricsService
	courseCapacity int
	bulkTimeout    time.Duration
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(enrollments enrollmentRepository, students studentReader, courses courseReader, audits auditWriter, courseCapacity int, bulkTimeout time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if courseCapacity <= 0 {
		courseCapacity = 30
	}
	if bulkTimeout <= 0 {
		bulkTimeout = 30 * time.Second
	}
	return &EnrollmentService{
		enrollments:    enrollments,
		students:       students,
		courses:        courses,
		audits:         audits,
		exporter:       export.NewRosterCSV(),
		courseCapacity: courseCapacity,
		bulkTimeout:    bulkTimeout,
		validator:      validate,
		logger:         logger,
	}
}

// WithMetrics attaches a metrics recorder. Safe to skip; all recording is a
// no-op without it.
func (s *EnrollmentService) WithMetrics(m *MetricsService) *EnrollmentService {
	s.metrics = m
	return s
}

// List returns enrollments with student and course context.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll registers a student into a course for a term. The unique constraint on
// (student, course, semester, academic_year) is the authoritative duplicate
// check; the pre-check only gives a friendlier error for the common case.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is inactive")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course is inactive")
	}
	exists, err := s.enrollments.ExistsByTuple(ctx, req.StudentID, req.CourseID, req.Semester, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		s.metrics.RecordEnrollment("conflict")
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this course for the term")
	}
	zero := 0.0
	enrollment := &models.Enrollment{
		StudentID:    req.StudentID,
		CourseID:     req.CourseID,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		Status:       models.EnrollmentStatusActive,
		Attendance:   &zero,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			s.metrics.RecordEnrollment("conflict")
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this course for the term")
		}
		s.metrics.RecordEnrollment("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.metrics.RecordEnrollment("created")
	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID),
		zap.String("course_id", req.CourseID),
		zap.String("semester", req.Semester),
		zap.Int("academic_year", req.AcademicYear))
	return enrollment, nil
}

// EnrollMultiple enrolls one student into several courses in a single
// all-or-nothing unit of work. A missing or inactive course, a full course, or
// a duplicate tuple fails the entire batch.
func (s *EnrollmentService) EnrollMultiple(ctx context.Context, req EnrollBatchRequest) ([]models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is inactive")
	}
	seen := make(map[string]struct{}, len(req.CourseIDs))
	enrollments := make([]models.Enrollment, 0, len(req.CourseIDs))
	zero := 0.0
	for _, courseID := range req.CourseIDs {
		if _, ok := seen[courseID]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course %s listed more than once", courseID))
		}
		seen[courseID] = struct{}{}
		attendance := zero
		enrollments = append(enrollments, models.Enrollment{
			StudentID:    req.StudentID,
			CourseID:     courseID,
			Semester:     req.Semester,
			AcademicYear: req.AcademicYear,
			Status:       models.EnrollmentStatusActive,
			Attendance:   &attendance,
		})
	}
	if err := s.enrollments.CreateBatch(ctx, enrollments, s.courseCapacity); err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseFull):
			s.metrics.RecordEnrollment("capacity")
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "one or more courses are at capacity")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more courses do not exist or are inactive")
		case repository.IsUniqueViolation(err):
			s.metrics.RecordEnrollment("conflict")
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in one of the courses for the term")
		}
		s.metrics.RecordEnrollment("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollments")
	}
	for range enrollments {
		s.metrics.RecordEnrollment("created")
	}
	s.logger.Info("student batch enrolled",
		zap.String("student_id", req.StudentID),
		zap.Int("course_count", len(req.CourseIDs)))
	return enrollments, nil
}

// PostGrade records a final grade on an enrollment and recomputes the owning
// student's GPA in the same transaction. The enrollment moves to COMPLETED only
// for a passing grade (points > 0). An audit row is written afterwards in its
// own unit of work so it survives regardless of later failures.
func (s *EnrollmentService) PostGrade(ctx context.Context, id string, req PostGradeRequest, audit AuditContext) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusDropped || enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot grade a dropped or withdrawn enrollment")
	}
	if err := s.enrollments.UpdateGradeAndRecomputeGPA(ctx, id, enrollment.StudentID, req.Grade, req.GradePoints); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post grade")
	}
	s.metrics.RecordGradePosted()
	s.writeAudit(ctx, audit, models.AuditActionGradePosted, "enrollment", id, map[string]interface{}{
		"grade":        req.Grade,
		"grade_points": req.GradePoints,
	})
	updated, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}
	return updated, nil
}

// Drop marks an enrollment DROPPED. The student's GPA is intentionally left
// untouched.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only active enrollments can be dropped")
	}
	if err := s.enrollments.UpdateStatus(ctx, id, models.EnrollmentStatusDropped); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	enrollment.Status = models.EnrollmentStatusDropped
	return enrollment, nil
}

// BulkGradeUpdate grades every ungraded enrollment of a term from its
// attendance percentage and recomputes the affected students' GPAs. The sweep
// runs under its own deadline and is all-or-nothing.
func (s *EnrollmentService) BulkGradeUpdate(ctx context.Context, req BulkGradeRequest, audit AuditContext) (*BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	sweepCtx, cancel := context.WithTimeout(ctx, s.bulkTimeout)
	defer cancel()

	count, err := s.enrollments.BulkAssignGrades(sweepCtx, req.Semester, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk grade update failed")
	}
	s.metrics.RecordGPARecomputations(count)
	s.writeAudit(ctx, audit, models.AuditActionBulkGrade, "enrollment", "", map[string]interface{}{
		"semester":      req.Semester,
		"academic_year": req.AcademicYear,
		"graded_count":  count,
	})
	s.logger.Info("bulk grade sweep completed",
		zap.String("semester", req.Semester),
		zap.Int("academic_year", req.AcademicYear),
		zap.Int("graded_count", count))
	return &BulkGradeResult{GradedCount: count}, nil
}

// UpdateAttendance sets the attendance percentage on an enrollment.
func (s *EnrollmentService) UpdateAttendance(ctx context.Context, id string, req UpdateAttendanceRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.enrollments.UpdateAttendance(ctx, id, req.Attendance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	enrollment.Attendance = &req.Attendance
	return enrollment, nil
}

// Delete removes an enrollment record permanently.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.enrollments.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.enrollments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// ExportCSV renders the filtered enrollment roster as CSV.
func (s *EnrollmentService) ExportCSV(ctx context.Context, filter models.EnrollmentFilter) ([]byte, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	enrollments, _, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	data, err := s.exporter.Render(enrollments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return data, nil
}

// writeAudit records an audit row on a best-effort basis. Failures are logged,
// never surfaced to the caller.
func (s *EnrollmentService) writeAudit(ctx context.Context, audit AuditContext, action, resource, resourceID string, values map[string]interface{}) {
	if s.audits == nil {
		return
	}
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	log := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		NewValues: payload,
		IPAddress: audit.IPAddress,
		UserAgent: audit.UserAgent,
	}
	if audit.UserID != "" {
		log.UserID = &audit.UserID
	}
	if resourceID != "" {
		log.ResourceID = &resourceID
	}
	if err := s.audits.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
