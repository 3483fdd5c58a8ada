package models

import "time"

// DepartmentCategory classifies a department's academic field.
type DepartmentCategory string

// Supported department categories.
const (
	DepartmentCategoryScience     DepartmentCategory = "SCIENCE"
	DepartmentCategoryArts        DepartmentCategory = "ARTS"
	DepartmentCategoryCommerce    DepartmentCategory = "COMMERCE"
	DepartmentCategoryEngineering DepartmentCategory = "ENGINEERING"
	DepartmentCategoryMedical     DepartmentCategory = "MEDICAL"
	DepartmentCategoryLaw         DepartmentCategory = "LAW"
)

// ValidDepartmentCategory reports whether the category is a known value.
func ValidDepartmentCategory(c DepartmentCategory) bool {
	switch c {
	case DepartmentCategoryScience, DepartmentCategoryArts, DepartmentCategoryCommerce,
		DepartmentCategoryEngineering, DepartmentCategoryMedical, DepartmentCategoryLaw:
		return true
	}
	return false
}

// Department represents an academic department owning zero or more courses.
type Department struct {
	ID        string             `db:"id" json:"id"`
	Name      string             `db:"name" json:"name"`
	Code      string             `db:"code" json:"code"`
	Address   string             `db:"address" json:"address"`
	Head      string             `db:"head_of_department" json:"head_of_department"`
	Category  DepartmentCategory `db:"category" json:"category"`
	Active    bool               `db:"active" json:"active"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// DepartmentFilter captures search parameters for listing departments.
type DepartmentFilter struct {
	Search    string
	Category  DepartmentCategory
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
