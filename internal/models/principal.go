package models

// Principal identifies the staff member on whose behalf an operation runs.
// A nil principal or one without a role is unauthenticated.
type Principal struct {
	EmployeeID string       `json:"employee_id"`
	Role       EmployeeRole `json:"role"`
}

// Authenticated reports whether the principal carries an identity.
func (p *Principal) Authenticated() bool {
	return p != nil && p.EmployeeID != "" && p.Role != ""
}
