package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/acadia-labs/registrar-api/internal/models"
)

// RosterCSV renders enrollment listings into CSV bytes.
type RosterCSV struct{}

// NewRosterCSV builds a roster exporter.
func NewRosterCSV() *RosterCSV {
	return &RosterCSV{}
}

var rosterHeaders = []string{
	"enrollment_id", "student_number", "student_name", "course_code", "course_title",
	"semester", "academic_year", "status", "grade", "grade_points", "attendance",
}

// Render produces CSV encoded bytes for the enrollment roster.
func (e *RosterCSV) Render(enrollments []models.EnrollmentDetail) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(rosterHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, e := range enrollments {
		grade := ""
		if e.Grade != nil {
			grade = *e.Grade
		}
		points := ""
		if e.GradePoints != nil {
			points = strconv.FormatFloat(*e.GradePoints, 'f', 2, 64)
		}
		attendance := ""
		if e.Attendance != nil {
			attendance = strconv.FormatFloat(*e.Attendance, 'f', 2, 64)
		}
		record := []string{
			e.ID,
			e.StudentNumber,
			e.StudentName,
			e.CourseCode,
			e.CourseTitle,
			e.Semester,
			strconv.Itoa(e.AcademicYear),
			string(e.Status),
			grade,
			points,
			attendance,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
