package models

import "time"

// EmployeeRole represents the staff roles known to the authorization gate.
type EmployeeRole string

const (
	RoleAdmin            EmployeeRole = "ADMIN"
	RoleCounsellor       EmployeeRole = "COUNSELLOR"
	RoleFaculty          EmployeeRole = "FACULTY"
	RolePlacementOfficer EmployeeRole = "PLACEMENT_OFFICER"
	RoleOperations       EmployeeRole = "OPERATIONS"
)

// AllRoles lists every staff role.
var AllRoles = []EmployeeRole{RoleAdmin, RoleCounsellor, RoleFaculty, RolePlacementOfficer, RoleOperations}

// Valid reports whether the role is a known staff role.
func (r EmployeeRole) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// EmployeeStatus enumerates employment states.
type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "ACTIVE"
	EmployeeStatusInactive   EmployeeStatus = "INACTIVE"
	EmployeeStatusTerminated EmployeeStatus = "TERMINATED"
)

// Valid reports whether the status is a known employee status.
func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusTerminated:
		return true
	}
	return false
}

// Employee is a staff member acting on the system.
type Employee struct {
	ID           string         `db:"id" json:"id"`
	EmployeeCode string         `db:"employee_code" json:"employee_code"`
	FirstName    string         `db:"first_name" json:"first_name"`
	LastName     string         `db:"last_name" json:"last_name"`
	Email        string         `db:"email" json:"email"`
	Phone        *string        `db:"phone" json:"phone,omitempty"`
	Department   *string        `db:"department" json:"department,omitempty"`
	Role         EmployeeRole   `db:"role" json:"role"`
	HireDate     time.Time      `db:"hire_date" json:"hire_date"`
	Status       EmployeeStatus `db:"status" json:"status"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// EmployeeFilter captures filtering criteria for listing employees.
type EmployeeFilter struct {
	Role      *EmployeeRole
	Status    *EmployeeStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
