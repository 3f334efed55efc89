package models

import "time"

// CatalogueStatus marks whether a course or company is in use.
type CatalogueStatus string

const (
	CatalogueStatusActive   CatalogueStatus = "ACTIVE"
	CatalogueStatusInactive CatalogueStatus = "INACTIVE"
)

// Course is a training programme that batches are scheduled against.
type Course struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    *string         `db:"description" json:"description,omitempty"`
	DurationMonths int             `db:"duration_months" json:"duration_months"`
	Fees           float64         `db:"fees" json:"fees"`
	Status         CatalogueStatus `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Status   *CatalogueStatus
	Search   string
	Page     int
	PageSize int
}
