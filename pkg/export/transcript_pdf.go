package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"github.com/acadia-labs/registrar-api/internal/models"
)

// TranscriptPDF renders a student's graded enrollments as a PDF transcript.
type TranscriptPDF struct{}

// NewTranscriptPDF constructs the transcript renderer.
func NewTranscriptPDF() *TranscriptPDF {
	return &TranscriptPDF{}
}

// Render produces the transcript document for the given student.
func (e *TranscriptPDF) Render(student *models.Student, rows []models.TranscriptRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ACADEMIC TRANSCRIPT", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Student: %s %s (%s)", student.FirstName, student.LastName, student.StudentNumber), "", 1, "", false, 0, "")
	gpa := "N/A"
	if student.GPA != nil {
		gpa = strconv.FormatFloat(*student.GPA, 'f', 2, 64)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Cumulative GPA: %s", gpa), "", 1, "", false, 0, "")
	pdf.Ln(5)

	headers := []string{"Code", "Course", "Credits", "Semester", "Year", "Grade", "Points"}
	widths := []float64{22, 68, 18, 30, 16, 16, 20}

	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		points := ""
		if row.GradePoints != nil {
			points = strconv.FormatFloat(*row.GradePoints, 'f', 2, 64)
		}
		cells := []string{
			row.CourseCode,
			row.CourseTitle,
			strconv.FormatFloat(row.CreditHours, 'f', 1, 64),
			row.Semester,
			strconv.Itoa(row.AcademicYear),
			row.Grade,
			points,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}
