package models

import (
	"database/sql/driver"
	"time"
)

// LeadStatus enumerates the states of the lead lifecycle.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "NEW"
	LeadStatusContacted     LeadStatus = "CONTACTED"
	LeadStatusInterested    LeadStatus = "INTERESTED"
	LeadStatusNotInterested LeadStatus = "NOT_INTERESTED"
	LeadStatusConverted     LeadStatus = "CONVERTED"
	LeadStatusLost          LeadStatus = "LOST"
)

// Valid reports whether the status is a known lead status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusInterested, LeadStatusNotInterested, LeadStatusConverted, LeadStatusLost:
		return true
	}
	return false
}

// IsTerminal reports whether no transitions leave this status.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusConverted || s == LeadStatusLost
}

// CanTransitionTo reports whether an edit may move a lead from s to next. Terminal
// statuses have no way out and CONVERTED is reached only by conversion.
func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	return next != s && next != LeadStatusConverted
}

// Convertible reports whether a lead in this status may become a student.
func (s LeadStatus) Convertible() bool {
	switch s {
	case LeadStatusConverted, LeadStatusNotInterested, LeadStatusLost:
		return false
	}
	return s.Valid()
}

// FollowUp is a single counsellor contact record.
type FollowUp struct {
	Date       time.Time `json:"date"`
	Notes      string    `json:"notes"`
	NextAction string    `json:"next_action"`
}

// FollowUps is the append-only follow-up log stored as jsonb.
type FollowUps []FollowUp

// Value implements driver.Valuer.
func (f FollowUps) Value() (driver.Value, error) {
	if f == nil {
		f = FollowUps{}
	}
	return jsonbValue(f)
}

// Scan implements sql.Scanner.
func (f *FollowUps) Scan(src interface{}) error {
	return scanJSONB(src, f)
}

// Lead is a prospective student tracked by counsellors.
type Lead struct {
	ID                   string     `db:"id" json:"id"`
	FirstName            string     `db:"first_name" json:"first_name"`
	LastName             string     `db:"last_name" json:"last_name"`
	Email                *string    `db:"email" json:"email,omitempty"`
	Phone                string     `db:"phone" json:"phone"`
	CourseInterest       *string    `db:"course_interest" json:"course_interest,omitempty"`
	Source               *string    `db:"source" json:"source,omitempty"`
	Status               LeadStatus `db:"status" json:"status"`
	AssignedCounsellorID *string    `db:"assigned_counsellor_id" json:"assigned_counsellor_id,omitempty"`
	ConvertedAt          *time.Time `db:"converted_at" json:"converted_at,omitempty"`
	Notes                *string    `db:"notes" json:"notes,omitempty"`
	NextFollowUpAt       *time.Time `db:"next_follow_up_at" json:"next_follow_up_at,omitempty"`
	FollowUps            FollowUps  `db:"follow_ups" json:"follow_ups"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// LeadFilter captures filtering criteria for listing leads.
type LeadFilter struct {
	Status       *LeadStatus
	CounsellorID string
	Source       string
	Search       string
	FollowUpDue  *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
