package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. ACTIVE is the initial state; the others are
// terminal for grading purposes.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// ValidEnrollmentStatus reports whether the status is a known value.
func ValidEnrollmentStatus(s EnrollmentStatus) bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusCompleted, EnrollmentStatusDropped,
		EnrollmentStatusWithdrawn, EnrollmentStatusFailed:
		return true
	}
	return false
}

// Enrollment captures a student's registration to a course for a given
// semester and academic year. The tuple (student_id, course_id, semester,
// academic_year) is unique.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Semester       string           `db:"semester" json:"semester"`
	AcademicYear   int              `db:"academic_year" json:"academic_year"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	Grade          *string          `db:"grade" json:"grade,omitempty"`
	GradePoints    *float64         `db:"grade_points" json:"grade_points,omitempty"`
	Attendance     *float64         `db:"attendance_percentage" json:"attendance_percentage,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course context.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	CourseTitle   string `db:"course_title" json:"course_title"`
	CourseCode    string `db:"course_code" json:"course_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	CourseID     string
	Semester     string
	AcademicYear int
	Status       EnrollmentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// TranscriptRow is a graded enrollment projected for transcript rendering.
type TranscriptRow struct {
	CourseCode   string   `db:"course_code" json:"course_code"`
	CourseTitle  string   `db:"course_title" json:"course_title"`
	CreditHours  float64  `db:"credit_hours" json:"credit_hours"`
	Semester     string   `db:"semester" json:"semester"`
	AcademicYear int      `db:"academic_year" json:"academic_year"`
	Grade        string   `db:"grade" json:"grade"`
	GradePoints  *float64 `db:"grade_points" json:"grade_points,omitempty"`
}
