package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/authz"
	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

type employeeRepository interface {
	List(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error)
	FindByID(ctx context.Context, id string) (*models.Employee, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, employee *models.Employee) error
	Update(ctx context.Context, employee *models.Employee) error
}

type principalInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// CreateEmployeeRequest holds payload for onboarding staff.
type CreateEmployeeRequest struct {
	EmployeeCode string              `json:"employee_code" validate:"required,max=20"`
	FirstName    string              `json:"first_name" validate:"required,max=50"`
	LastName     string              `json:"last_name" validate:"required,max=50"`
	Email        string              `json:"email" validate:"required,email,max=100"`
	Phone        *string             `json:"phone" validate:"omitempty,max=15"`
	Department   *string             `json:"department" validate:"omitempty,max=50"`
	Role         models.EmployeeRole `json:"role" validate:"required"`
	HireDate     time.Time           `json:"hire_date" validate:"required"`
}

// UpdateEmployeeRequest carries a partial change set.
type UpdateEmployeeRequest struct {
	EmployeeCode *string              `json:"employee_code" validate:"omitempty,min=1,max=20"`
	FirstName    *string              `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName     *string              `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email        *string              `json:"email" validate:"omitempty,email,max=100"`
	Phone        *string              `json:"phone" validate:"omitempty,max=15"`
	Department   *string              `json:"department" validate:"omitempty,max=50"`
	Role         *models.EmployeeRole `json:"role"`
	HireDate     *time.Time           `json:"hire_date"`
}

// EmployeeService manages the staff directory.
type EmployeeService struct {
	repo       employeeRepository
	principals principalInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEmployeeService constructs the employee service.
func NewEmployeeService(repo employeeRepository, principals principalInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EmployeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmployeeService{repo: repo, principals: principals, metrics: metrics, validator: validate, logger: logger}
}

// List returns employees and pagination metadata.
func (s *EmployeeService) List(ctx context.Context, p *models.Principal, filter models.EmployeeFilter) ([]models.Employee, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceEmployee); err != nil {
		return nil, nil, err
	}
	employees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list employees")
	}
	return employees, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an employee by ID.
func (s *EmployeeService) Get(ctx context.Context, p *models.Principal, id string) (*models.Employee, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceEmployee); err != nil {
		return nil, err
	}
	employee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "employee")
	}
	return employee, nil
}

// Create onboards an ACTIVE employee.
func (s *EmployeeService) Create(ctx context.Context, p *models.Principal, req CreateEmployeeRequest) (*models.Employee, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceEmployee); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid employee payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid employee role")
	}
	code := strings.TrimSpace(req.EmployeeCode)
	email := strings.TrimSpace(req.Email)
	if err := s.checkUnique(ctx, code, email, ""); err != nil {
		return nil, err
	}
	employee := &models.Employee{
		EmployeeCode: code,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		Phone:        req.Phone,
		Department:   req.Department,
		Role:         req.Role,
		HireDate:     req.HireDate,
		Status:       models.EmployeeStatusActive,
	}
	if err := s.repo.Create(ctx, employee); err != nil {
		return nil, persistError(err, "employee", "failed to create employee")
	}
	s.logger.Info("employee created", zap.String("employee_id", employee.ID), zap.String("role", string(employee.Role)))
	return employee, nil
}

// Update applies a partial change set and drops the cached principal on a role change.
func (s *EmployeeService) Update(ctx context.Context, p *models.Principal, id string, req UpdateEmployeeRequest) (*models.Employee, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceEmployee); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid employee payload")
	}
	if req.Role != nil && !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid employee role")
	}
	employee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "employee")
	}

	code, email := "", ""
	if req.EmployeeCode != nil && strings.TrimSpace(*req.EmployeeCode) != employee.EmployeeCode {
		code = strings.TrimSpace(*req.EmployeeCode)
	}
	if req.Email != nil && !strings.EqualFold(strings.TrimSpace(*req.Email), employee.Email) {
		email = strings.TrimSpace(*req.Email)
	}
	if err := s.checkUnique(ctx, code, email, employee.ID); err != nil {
		return nil, err
	}
	if code != "" {
		employee.EmployeeCode = code
	}
	if email != "" {
		employee.Email = email
	}
	if req.FirstName != nil {
		employee.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		employee.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		employee.Phone = req.Phone
	}
	if req.Department != nil {
		employee.Department = req.Department
	}
	if req.HireDate != nil {
		employee.HireDate = *req.HireDate
	}
	roleChanged := req.Role != nil && *req.Role != employee.Role
	if req.Role != nil {
		employee.Role = *req.Role
	}
	if err := s.repo.Update(ctx, employee); err != nil {
		return nil, persistError(err, "employee", "failed to update employee")
	}
	if roleChanged {
		s.invalidate(ctx, employee.ID)
	}
	return employee, nil
}

// UpdateStatus changes the employment status. Non-ACTIVE employees can no longer authenticate.
func (s *EmployeeService) UpdateStatus(ctx context.Context, p *models.Principal, id string, status models.EmployeeStatus) (*models.Employee, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateStatus, authz.ResourceEmployee); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid employee status")
	}
	employee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "employee")
	}
	if employee.Status == status {
		return employee, nil
	}
	employee.Status = status
	if err := s.repo.Update(ctx, employee); err != nil {
		return nil, persistError(err, "employee", "failed to update employee status")
	}
	s.invalidate(ctx, employee.ID)
	s.logger.Info("employee status changed", zap.String("employee_id", employee.ID), zap.String("status", string(status)))
	return employee, nil
}

func (s *EmployeeService) invalidate(ctx context.Context, employeeID string) {
	if s.principals == nil {
		return
	}
	if err := s.principals.Invalidate(ctx, PrincipalCacheKey(employeeID)); err != nil {
		s.logger.Warn("failed to invalidate cached principal", zap.String("employee_id", employeeID), zap.Error(err))
	}
}

func (s *EmployeeService) checkUnique(ctx context.Context, code, email, excludeID string) error {
	if code != "" {
		taken, err := s.repo.ExistsByCode(ctx, code, excludeID)
		if err != nil {
			return internalError(err, "failed to validate employee code")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "employee code already used")
		}
	}
	if email != "" {
		taken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
		if err != nil {
			return internalError(err, "failed to validate email")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "email already used by another employee")
		}
	}
	return nil
}
