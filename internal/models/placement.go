package models

import "time"

// PlacementStatus enumerates placement outcomes.
type PlacementStatus string

const (
	PlacementStatusPlaced     PlacementStatus = "PLACED"
	PlacementStatusResigned   PlacementStatus = "RESIGNED"
	PlacementStatusTerminated PlacementStatus = "TERMINATED"
	PlacementStatusCompleted  PlacementStatus = "COMPLETED"
)

// Valid reports whether the status is a known placement status.
func (s PlacementStatus) Valid() bool {
	switch s {
	case PlacementStatusPlaced, PlacementStatusResigned, PlacementStatusTerminated, PlacementStatusCompleted:
		return true
	}
	return false
}

// JobType describes the nature of the position.
type JobType string

const (
	JobTypeFullTime   JobType = "FULL_TIME"
	JobTypePartTime   JobType = "PART_TIME"
	JobTypeContract   JobType = "CONTRACT"
	JobTypeInternship JobType = "INTERNSHIP"
	JobTypeFreelance  JobType = "FREELANCE"
)

// Valid reports whether the job type is known.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship, JobTypeFreelance:
		return true
	}
	return false
}

// EmploymentType describes the contractual arrangement.
type EmploymentType string

const (
	EmploymentTypePermanent  EmploymentType = "PERMANENT"
	EmploymentTypeTemporary  EmploymentType = "TEMPORARY"
	EmploymentTypeProbation  EmploymentType = "PROBATION"
	EmploymentTypeConsultant EmploymentType = "CONSULTANT"
)

// Valid reports whether the employment type is known.
func (t EmploymentType) Valid() bool {
	switch t {
	case EmploymentTypePermanent, EmploymentTypeTemporary, EmploymentTypeProbation, EmploymentTypeConsultant:
		return true
	}
	return false
}

// MaxProbationMonths bounds the probation period.
const MaxProbationMonths = 24

// Placement records a student's job placement at a partner company.
type Placement struct {
	ID                    string          `db:"id" json:"id"`
	StudentID             string          `db:"student_id" json:"student_id"`
	CompanyID             string          `db:"company_id" json:"company_id"`
	Position              string          `db:"position" json:"position"`
	Salary                *float64        `db:"salary" json:"salary,omitempty"`
	PlacementDate         time.Time       `db:"placement_date" json:"placement_date"`
	Status                PlacementStatus `db:"status" json:"status"`
	JobType               *JobType        `db:"job_type" json:"job_type,omitempty"`
	WorkLocation          *string         `db:"work_location" json:"work_location,omitempty"`
	EmploymentType        *EmploymentType `db:"employment_type" json:"employment_type,omitempty"`
	ProbationPeriodMonths *int            `db:"probation_period_months" json:"probation_period_months,omitempty"`
	JoiningDate           *time.Time      `db:"joining_date" json:"joining_date,omitempty"`
	EndDate               *time.Time      `db:"end_date" json:"end_date,omitempty"`
	Notes                 *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the placement is PLACED and has not ended as of now.
func (p *Placement) IsActive(now time.Time) bool {
	if p.Status != PlacementStatusPlaced {
		return false
	}
	return p.EndDate == nil || p.EndDate.After(truncateDay(now))
}

// IsInProbation reports whether now falls before joining date plus the probation period.
func (p *Placement) IsInProbation(now time.Time) bool {
	if p.JoiningDate == nil || p.ProbationPeriodMonths == nil {
		return false
	}
	probationEnd := p.JoiningDate.AddDate(0, *p.ProbationPeriodMonths, 0)
	return truncateDay(now).Before(probationEnd)
}

// TenureInMonths counts whole months between joining and the end date, or now when still employed.
func (p *Placement) TenureInMonths(now time.Time) int {
	if p.JoiningDate == nil {
		return 0
	}
	end := truncateDay(now)
	if p.EndDate != nil {
		end = *p.EndDate
	}
	return monthsBetween(*p.JoiningDate, end)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func monthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return -monthsBetween(to, from)
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	return months
}

// PlacementView is a placement with its read-time derived facts.
type PlacementView struct {
	Placement
	Active       bool `json:"active"`
	InProbation  bool `json:"in_probation"`
	TenureMonths int  `json:"tenure_months"`
}

// NewPlacementView evaluates the derived fields of p at now.
func NewPlacementView(p Placement, now time.Time) PlacementView {
	return PlacementView{
		Placement:    p,
		Active:       p.IsActive(now),
		InProbation:  p.IsInProbation(now),
		TenureMonths: p.TenureInMonths(now),
	}
}

// PlacementFilter captures filtering criteria for listing placements.
type PlacementFilter struct {
	Status    *PlacementStatus
	StudentID string
	CompanyID string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
