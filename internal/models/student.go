package models

import "time"

// StudentStatus represents the academic standing of a student.
type StudentStatus string

// Supported student statuses.
const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusInactive  StudentStatus = "INACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusSuspended StudentStatus = "SUSPENDED"
	StudentStatusExpelled  StudentStatus = "EXPELLED"
)

// ValidStudentStatus reports whether the status is a known value.
func ValidStudentStatus(s StudentStatus) bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated,
		StudentStatusSuspended, StudentStatusExpelled:
		return true
	}
	return false
}

// Guardian is a value object embedded in Student. It has no identity of its
// own and is always written together with its owning student row.
type Guardian struct {
	Name   string `db:"guardian_name" json:"guardian_name"`
	Email  string `db:"guardian_email" json:"guardian_email"`
	Mobile string `db:"guardian_mobile" json:"guardian_mobile"`
}

// Student represents a learner registered with the institution.
type Student struct {
	ID            string        `db:"id" json:"id"`
	FirstName     string        `db:"first_name" json:"first_name"`
	LastName      string        `db:"last_name" json:"last_name"`
	Email         string        `db:"email" json:"email"`
	StudentNumber string        `db:"student_number" json:"student_number"`
	DateOfBirth   *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	AdmissionDate *time.Time    `db:"admission_date" json:"admission_date,omitempty"`
	Status        StudentStatus `db:"status" json:"status"`
	GPA           *float64      `db:"gpa" json:"gpa,omitempty"`
	Active        bool          `db:"active" json:"active"`
	Guardian
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Active    *bool
	MinGPA    *float64
	MaxGPA    *float64
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
