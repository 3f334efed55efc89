package models

import "time"

// BatchStatus enumerates the lifecycle states of a batch.
type BatchStatus string

const (
	BatchStatusPlanned   BatchStatus = "PLANNED"
	BatchStatusActive    BatchStatus = "ACTIVE"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

// Valid reports whether the status is a known batch status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPlanned, BatchStatusActive, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}

const (
	MinBatchCapacity = 1
	MaxBatchCapacity = 100
)

// Batch is a cohort following one course offering with a fixed seat capacity.
type Batch struct {
	ID                string      `db:"id" json:"id"`
	Name              string      `db:"name" json:"name"`
	CourseID          string      `db:"course_id" json:"course_id"`
	StartDate         time.Time   `db:"start_date" json:"start_date"`
	EndDate           *time.Time  `db:"end_date" json:"end_date,omitempty"`
	Capacity          int         `db:"capacity" json:"capacity"`
	CurrentEnrollment int         `db:"current_enrollment" json:"current_enrollment"`
	Status            BatchStatus `db:"status" json:"status"`
	InstructorID      *string     `db:"instructor_id" json:"instructor_id,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// AvailableSlots returns the number of seats still open.
func (b *Batch) AvailableSlots() int {
	if b == nil {
		return 0
	}
	if free := b.Capacity - b.CurrentEnrollment; free > 0 {
		return free
	}
	return 0
}

// HasAvailableSlots reports whether at least one seat is open.
func (b *Batch) HasAvailableSlots() bool {
	return b.AvailableSlots() > 0
}

// UtilizationPercentage returns enrollment as a percentage of capacity.
func (b *Batch) UtilizationPercentage() float64 {
	if b == nil || b.Capacity <= 0 {
		return 0
	}
	return float64(b.CurrentEnrollment) * 100 / float64(b.Capacity)
}

// AcceptsEnrollment reports whether the batch is open and has a free seat.
// Enrollment itself only enforces capacity.
func (b *Batch) AcceptsEnrollment() bool {
	if b == nil {
		return false
	}
	return (b.Status == BatchStatusPlanned || b.Status == BatchStatusActive) && b.HasAvailableSlots()
}

// BatchFilter captures filtering criteria for listing batches.
type BatchFilter struct {
	Status            *BatchStatus
	CourseID          string
	InstructorID      string
	HasAvailableSlots *bool
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
