package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/pkg/database"
)

const employeeColumns = `id, employee_code, first_name, last_name, email, phone, department, role, hire_date, status, created_at, updated_at`

// EmployeeRepository manages persistence for staff members.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs an EmployeeRepository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// List returns employees matching the filter.
func (r *EmployeeRepository) List(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error) {
	var cond conditions
	if filter.Role != nil {
		cond.add("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		cond.add("(LOWER(first_name || ' ' || last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(employee_code) LIKE ?)", likePattern(filter.Search))
	}

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"employee_code": "employee_code",
		"last_name":     "last_name",
		"hire_date":     "hire_date",
		"created_at":    "created_at",
	}, "created_at")

	query := fmt.Sprintf(`SELECT %s FROM employees %s ORDER BY %s LIMIT %d OFFSET %d`, employeeColumns, cond.where(), order, size, offset)
	conn := database.Conn(ctx, r.db)
	var employees []models.Employee
	if err := conn.SelectContext(ctx, &employees, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list employees: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM employees `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count employees: %w", err)
	}
	return employees, total, nil
}

// FindByID fetches an employee by ID.
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	var employee models.Employee
	if err := database.Conn(ctx, r.db).GetContext(ctx, &employee, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &employee, nil
}

// ExistsByCode checks whether the employee code is taken, optionally excluding an ID.
func (r *EmployeeRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "employees", "employee_code = $1", code, excludeID)
}

// ExistsByEmail checks whether the email is taken, optionally excluding an ID.
func (r *EmployeeRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "employees", "LOWER(email) = LOWER($1)", email, excludeID)
}

// Create inserts a new employee.
func (r *EmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	if employee.ID == "" {
		employee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = now
	}
	employee.UpdatedAt = now
	const query = `INSERT INTO employees (id, employee_code, first_name, last_name, email, phone, department, role, hire_date, status, created_at, updated_at)
        VALUES (:id, :employee_code, :first_name, :last_name, :email, :phone, :department, :role, :hire_date, :status, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, employee); err != nil {
		return classifyWriteError("create employee", err)
	}
	return nil
}

// Update persists every mutable employee column.
func (r *EmployeeRepository) Update(ctx context.Context, employee *models.Employee) error {
	employee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE employees SET employee_code = :employee_code, first_name = :first_name, last_name = :last_name,
        email = :email, phone = :phone, department = :department, role = :role, hire_date = :hire_date,
        status = :status, updated_at = :updated_at
        WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, employee)
	if err != nil {
		return classifyWriteError("update employee", err)
	}
	return requireAffected(res, "update employee")
}
