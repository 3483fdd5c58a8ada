package models

import "time"

// CourseLevel indicates the difficulty tier of a course.
type CourseLevel string

// Supported course levels.
const (
	CourseLevelBeginner     CourseLevel = "BEGINNER"
	CourseLevelIntermediate CourseLevel = "INTERMEDIATE"
	CourseLevelAdvanced     CourseLevel = "ADVANCED"
	CourseLevelExpert       CourseLevel = "EXPERT"
)

// ValidCourseLevel reports whether the level is a known value.
func ValidCourseLevel(l CourseLevel) bool {
	switch l {
	case CourseLevelBeginner, CourseLevelIntermediate, CourseLevelAdvanced, CourseLevelExpert:
		return true
	}
	return false
}

// Course represents a course offered by a department.
type Course struct {
	ID           string      `db:"id" json:"id"`
	Title        string      `db:"title" json:"title"`
	Code         string      `db:"code" json:"code"`
	Description  string      `db:"description" json:"description"`
	CreditHours  float64     `db:"credit_hours" json:"credit_hours"`
	Level        CourseLevel `db:"level" json:"level"`
	Active       bool        `db:"active" json:"active"`
	DepartmentID string      `db:"department_id" json:"department_id"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with department context for list views.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
	DepartmentCode string `db:"department_code" json:"department_code"`
}

// CourseFilter captures search parameters for listing courses.
type CourseFilter struct {
	Search       string
	DepartmentID string
	Level        CourseLevel
	Active       *bool
	MinCredits   *float64
	MaxCredits   *float64
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
