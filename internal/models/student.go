package models

import (
	"database/sql/driver"
	"time"
)

// StudentStatus enumerates student lifecycle states.
type StudentStatus string

const (
	StudentStatusActive     StudentStatus = "ACTIVE"
	StudentStatusInactive   StudentStatus = "INACTIVE"
	StudentStatusGraduated  StudentStatus = "GRADUATED"
	StudentStatusDroppedOut StudentStatus = "DROPPED_OUT"
	StudentStatusSuspended  StudentStatus = "SUSPENDED"
)

// Valid reports whether the status is a known student status.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated, StudentStatusDroppedOut, StudentStatusSuspended:
		return true
	}
	return false
}

// StatusHistoryEntry records a single status change.
type StatusHistoryEntry struct {
	Status    StudentStatus `json:"status"`
	ChangedAt time.Time     `json:"changed_at"`
	Notes     string        `json:"notes"`
}

// StatusHistory is the append-only status log stored as jsonb.
type StatusHistory []StatusHistoryEntry

// Value implements driver.Valuer.
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StatusHistory{}
	}
	return jsonbValue(h)
}

// Scan implements sql.Scanner.
func (h *StatusHistory) Scan(src interface{}) error {
	return scanJSONB(src, h)
}

// Student represents an enrolled learner.
type Student struct {
	ID               string        `db:"id" json:"id"`
	EnrollmentNumber string        `db:"enrollment_number" json:"enrollment_number"`
	FirstName        string        `db:"first_name" json:"first_name"`
	LastName         string        `db:"last_name" json:"last_name"`
	Email            *string       `db:"email" json:"email,omitempty"`
	Phone            string        `db:"phone" json:"phone"`
	DateOfBirth      *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address          *string       `db:"address" json:"address,omitempty"`
	BatchID          *string       `db:"batch_id" json:"batch_id,omitempty"`
	LeadID           *string       `db:"lead_id" json:"lead_id,omitempty"`
	Status           StudentStatus `db:"status" json:"status"`
	EnrollmentDate   time.Time     `db:"enrollment_date" json:"enrollment_date"`
	GraduationDate   *time.Time    `db:"graduation_date" json:"graduation_date,omitempty"`
	FinalGrade       *string       `db:"final_grade" json:"final_grade,omitempty"`
	StatusHistory    StatusHistory `db:"status_history" json:"status_history"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Status       *StudentStatus
	BatchID      string
	WithoutBatch bool
	CourseID     string
	EnrolledFrom *time.Time
	EnrolledTo   *time.Time
	Search       string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
