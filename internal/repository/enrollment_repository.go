package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadia-labs/registrar-api/internal/models"
)

// ErrCourseFull signals that a course reached its active enrollment capacity.
var ErrCourseFull = errors.New("course is at capacity")

// EnrollmentRepository handles persistence of enrollments and the GPA
// recomputation that accompanies grade writes.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, enrollment_date, semester, academic_year, status,
        grade, grade_points, attendance_percentage, created_at, updated_at`

// List returns enrollments with student and course context.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN courses c ON c.id = e.course_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != 0 {
		conditions = append(conditions, fmt.Sprintf("e.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"student_name":    "s.last_name",
		"course_code":     "c.code",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "e.enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.enrollment_date, e.semester, e.academic_year,
        e.status, e.grade, e.grade_points, e.attendance_percentage, e.created_at, e.updated_at,
        s.first_name || ' ' || s.last_name AS student_name, s.student_number, c.title AS course_title, c.code AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.enrollment_date, e.semester, e.academic_year,
        e.status, e.grade, e.grade_points, e.attendance_percentage, e.created_at, e.updated_at,
        s.first_name || ' ' || s.last_name AS student_name, s.student_number, c.title AS course_title, c.code AS course_code
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByTuple checks whether an enrollment exists for the unique tuple.
func (r *EnrollmentRepository) ExistsByTuple(ctx context.Context, studentID, courseID, semester string, academicYear int) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND semester = $3 AND academic_year = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, semester, academicYear); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment tuple: %w", err)
	}
	return true, nil
}

// ListTranscript returns the graded enrollments of a student for transcript rendering.
func (r *EnrollmentRepository) ListTranscript(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT c.code AS course_code, c.title AS course_title, c.credit_hours, e.semester, e.academic_year,
        e.grade, e.grade_points
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.grade IS NOT NULL
        ORDER BY e.academic_year, e.semester, c.code`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list transcript rows: %w", err)
	}
	return rows, nil
}

// Create persists a new enrollment record. A violated unique constraint on the
// (student, course, semester, academic_year) tuple surfaces through
// IsUniqueViolation so callers can map it to a conflict.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	prepareEnrollment(enrollment)
	const query = `INSERT INTO enrollments (id, student_id, course_id, enrollment_date, semester, academic_year,
        status, grade, grade_points, attendance_percentage, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :enrollment_date, :semester, :academic_year,
        :status, :grade, :grade_points, :attendance_percentage, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// CreateBatch inserts all enrollments in one transaction, enforcing per-course
// existence and the active-enrollment capacity ceiling. Any failure rolls the
// whole batch back.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, enrollments []models.Enrollment, capacity int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch enrollment: %w", err)
	}
	for i := range enrollments {
		courseID := enrollments[i].CourseID

		var active bool
		if err := tx.GetContext(ctx, &active, "SELECT active FROM courses WHERE id = $1", courseID); err != nil {
			tx.Rollback() //nolint:errcheck
			if err == sql.ErrNoRows {
				return fmt.Errorf("course %s: %w", courseID, sql.ErrNoRows)
			}
			return fmt.Errorf("load course %s: %w", courseID, err)
		}
		if !active {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("course %s: %w", courseID, sql.ErrNoRows)
		}

		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2",
			courseID, models.EnrollmentStatusActive); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("count enrollments for %s: %w", courseID, err)
		}
		if capacity > 0 && count >= capacity {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("course %s: %w", courseID, ErrCourseFull)
		}

		prepareEnrollment(&enrollments[i])
		const query = `INSERT INTO enrollments (id, student_id, course_id, enrollment_date, semester, academic_year,
            status, grade, grade_points, attendance_percentage, created_at, updated_at)
            VALUES (:id, :student_id, :course_id, :enrollment_date, :semester, :academic_year,
            :status, :grade, :grade_points, :attendance_percentage, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, enrollments[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			if IsUniqueViolation(err) {
				return err
			}
			return fmt.Errorf("insert enrollment for %s: %w", courseID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("commit batch enrollment: %w", err)
	}
	return nil
}

// UpdateGradeAndRecomputeGPA writes the grade and grade points in one
// transaction with the owning student's GPA recomputation. The student row is
// locked first so concurrent grade posts for the same student serialize and
// cannot overwrite each other's average with a stale one.
func (r *EnrollmentRepository) UpdateGradeAndRecomputeGPA(ctx context.Context, enrollmentID, studentID, grade string, gradePoints float64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade update: %w", err)
	}
	if err := lockStudent(ctx, tx, studentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	const updateQuery = `UPDATE enrollments SET grade = $2, grade_points = $3,
        status = CASE WHEN $3 > 0 THEN 'COMPLETED' ELSE status END, updated_at = $4
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, enrollmentID, grade, gradePoints, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update grade: %w", err)
	}

	if err := recomputeGPA(ctx, tx, studentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade update: %w", err)
	}
	return nil
}

// BulkAssignGrades grades every ungraded enrollment of the given term from its
// attendance percentage, then recomputes the GPA of each touched student. The
// whole sweep is one transaction. Returns the number of enrollments graded.
func (r *EnrollmentRepository) BulkAssignGrades(ctx context.Context, semester string, academicYear int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk grade: %w", err)
	}

	const gradeQuery = `UPDATE enrollments SET
        grade_points = CASE
            WHEN attendance_percentage IS NULL THEN 2.0
            WHEN attendance_percentage >= 90 THEN 4.0
            WHEN attendance_percentage >= 80 THEN 3.0
            WHEN attendance_percentage >= 70 THEN 2.0
            WHEN attendance_percentage >= 60 THEN 1.0
            ELSE 0.0
        END,
        grade = CASE
            WHEN attendance_percentage IS NULL THEN 'C'
            WHEN attendance_percentage >= 90 THEN 'A'
            WHEN attendance_percentage >= 80 THEN 'B'
            WHEN attendance_percentage >= 70 THEN 'C'
            WHEN attendance_percentage >= 60 THEN 'D'
            ELSE 'F'
        END,
        status = CASE
            WHEN attendance_percentage IS NULL OR attendance_percentage >= 60 THEN 'COMPLETED'
            ELSE status
        END,
        updated_at = $3
        WHERE semester = $1 AND academic_year = $2 AND grade IS NULL
        RETURNING student_id`

	rows, err := tx.QueryxContext(ctx, gradeQuery, semester, academicYear, time.Now().UTC())
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("bulk assign grades: %w", err)
	}
	students := make(map[string]struct{})
	count := 0
	for rows.Next() {
		var studentID string
		if err := rows.Scan(&studentID); err != nil {
			rows.Close()
			tx.Rollback() //nolint:errcheck
			return 0, fmt.Errorf("scan graded student: %w", err)
		}
		students[studentID] = struct{}{}
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("iterate graded enrollments: %w", err)
	}

	// Lock students in a stable order so concurrent sweeps and grade posts
	// cannot deadlock on crossed FOR UPDATE acquisitions.
	studentIDs := make([]string, 0, len(students))
	for studentID := range students {
		studentIDs = append(studentIDs, studentID)
	}
	sort.Strings(studentIDs)

	for _, studentID := range studentIDs {
		if err := lockStudent(ctx, tx, studentID); err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, err
		}
		if err := recomputeGPA(ctx, tx, studentID); err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk grade: %w", err)
	}
	return count, nil
}

// UpdateStatus sets the lifecycle status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateAttendance records the attendance percentage for an enrollment.
func (r *EnrollmentRepository) UpdateAttendance(ctx context.Context, id string, percentage float64) error {
	const query = `UPDATE enrollments SET attendance_percentage = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, percentage, time.Now().UTC()); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// Delete removes an enrollment record. Administrative cleanup only; regular
// workflows use status transitions instead.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

func prepareEnrollment(enrollment *models.Enrollment) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
}

func lockStudent(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, "SELECT id FROM students WHERE id = $1 FOR UPDATE", studentID); err != nil {
		return fmt.Errorf("lock student %s: %w", studentID, err)
	}
	return nil
}

// recomputeGPA persists the mean of grade points over the student's graded
// enrollments, rounded to two decimals. With no graded enrollments the stored
// GPA is left untouched.
func recomputeGPA(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	const selectQuery = `SELECT grade_points FROM enrollments
        WHERE student_id = $1 AND grade IS NOT NULL AND grade_points IS NOT NULL`
	var points []float64
	if err := tx.SelectContext(ctx, &points, selectQuery, studentID); err != nil {
		return fmt.Errorf("load grade points for %s: %w", studentID, err)
	}
	gpa, ok := meanGradePoints(points)
	if !ok {
		return nil
	}
	const updateQuery = `UPDATE students SET gpa = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, studentID, gpa, time.Now().UTC()); err != nil {
		return fmt.Errorf("recompute gpa for %s: %w", studentID, err)
	}
	return nil
}

// meanGradePoints averages the given grade points rounded to two decimals.
// The second return is false when there is nothing to average.
func meanGradePoints(points []float64) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range points {
		sum += p
	}
	return math.Round(sum/float64(len(points))*100) / 100, true
}
