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

type placementRepository interface {
	List(ctx context.Context, filter models.PlacementFilter) ([]models.Placement, int, error)
	FindByID(ctx context.Context, id string) (*models.Placement, error)
	Create(ctx context.Context, placement *models.Placement) error
	Update(ctx context.Context, placement *models.Placement) error
	UpdateStatus(ctx context.Context, id string, status models.PlacementStatus) error
	Delete(ctx context.Context, id string) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type companyReader interface {
	FindByID(ctx context.Context, id string) (*models.Company, error)
}

// PlacementDetails holds the optional placement attributes shared by create and update.
type PlacementDetails struct {
	Salary                *float64                `json:"salary" validate:"omitempty,gt=0"`
	JobType               *models.JobType         `json:"job_type"`
	WorkLocation          *string                 `json:"work_location" validate:"omitempty,max=100"`
	EmploymentType        *models.EmploymentType  `json:"employment_type"`
	ProbationPeriodMonths *int                    `json:"probation_period_months" validate:"omitempty,min=0,max=24"`
	JoiningDate           *time.Time              `json:"joining_date"`
	EndDate               *time.Time              `json:"end_date"`
	Notes                 *string                 `json:"notes"`
	Status                *models.PlacementStatus `json:"status"`
}

// CreatePlacementRequest holds payload for recording a placement.
type CreatePlacementRequest struct {
	StudentID     string    `json:"student_id" validate:"required"`
	CompanyID     string    `json:"company_id" validate:"required"`
	Position      string    `json:"position" validate:"required,max=100"`
	PlacementDate time.Time `json:"placement_date" validate:"required"`
	PlacementDetails
}

// UpdatePlacementRequest carries a partial change set.
type UpdatePlacementRequest struct {
	CompanyID     *string    `json:"company_id" validate:"omitempty,min=1"`
	Position      *string    `json:"position" validate:"omitempty,max=100"`
	PlacementDate *time.Time `json:"placement_date"`
	PlacementDetails
}

// PlacementService manages placements and derives their tenure facts on read.
type PlacementService struct {
	repo      placementRepository
	students  studentReader
	companies companyReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPlacementService constructs the placement service.
func NewPlacementService(repo placementRepository, students studentReader, companies companyReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PlacementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlacementService{repo: repo, students: students, companies: companies, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// List returns placement views and pagination metadata.
func (s *PlacementService) List(ctx context.Context, p *models.Principal, filter models.PlacementFilter) ([]models.PlacementView, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourcePlacement); err != nil {
		return nil, nil, err
	}
	placements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list placements")
	}
	now := s.now()
	views := make([]models.PlacementView, 0, len(placements))
	for _, placement := range placements {
		views = append(views, models.NewPlacementView(placement, now))
	}
	return views, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a placement view by ID.
func (s *PlacementService) Get(ctx context.Context, p *models.Principal, id string) (*models.PlacementView, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourcePlacement); err != nil {
		return nil, err
	}
	placement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	return s.view(placement), nil
}

// Create records a placement for an existing student at an existing company.
func (s *PlacementService) Create(ctx context.Context, p *models.Principal, req CreatePlacementRequest) (*models.PlacementView, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourcePlacement); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid placement payload")
	}
	position := strings.TrimSpace(req.Position)
	if position == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "position is required")
	}
	if err := validateDetails(req.PlacementDetails); err != nil {
		return nil, err
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		return nil, lookupError(err, "student")
	}
	if _, err := s.companies.FindByID(ctx, req.CompanyID); err != nil {
		return nil, lookupError(err, "company")
	}

	placement := &models.Placement{
		StudentID:     req.StudentID,
		CompanyID:     req.CompanyID,
		Position:      position,
		PlacementDate: req.PlacementDate,
		Status:        models.PlacementStatusPlaced,
	}
	applyDetails(placement, req.PlacementDetails)
	if err := s.repo.Create(ctx, placement); err != nil {
		return nil, persistError(err, "placement", "failed to create placement")
	}
	s.logger.Info("placement recorded", zap.String("placement_id", placement.ID), zap.String("student_id", placement.StudentID))
	return s.view(placement), nil
}

// Update applies a partial change set. Any status may follow any other.
func (s *PlacementService) Update(ctx context.Context, p *models.Principal, id string, req UpdatePlacementRequest) (*models.PlacementView, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourcePlacement); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid placement payload")
	}
	if err := validateDetails(req.PlacementDetails); err != nil {
		return nil, err
	}
	placement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	if req.Position != nil {
		position := strings.TrimSpace(*req.Position)
		if position == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "position is required")
		}
		placement.Position = position
	}
	if req.CompanyID != nil && *req.CompanyID != placement.CompanyID {
		if _, err := s.companies.FindByID(ctx, *req.CompanyID); err != nil {
			return nil, lookupError(err, "company")
		}
		placement.CompanyID = *req.CompanyID
	}
	if req.PlacementDate != nil {
		placement.PlacementDate = *req.PlacementDate
	}
	applyDetails(placement, req.PlacementDetails)
	if err := s.repo.Update(ctx, placement); err != nil {
		return nil, persistError(err, "placement", "failed to update placement")
	}
	return s.view(placement), nil
}

// UpdateStatus sets the placement status.
func (s *PlacementService) UpdateStatus(ctx context.Context, p *models.Principal, id string, status models.PlacementStatus) (*models.PlacementView, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateStatus, authz.ResourcePlacement); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid placement status")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, lookupError(err, "placement")
	}
	placement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	return s.view(placement), nil
}

// Delete removes a placement.
func (s *PlacementService) Delete(ctx context.Context, p *models.Principal, id string) error {
	if err := authorize(s.metrics, p, authz.ActionDelete, authz.ResourcePlacement); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "placement")
	}
	return nil
}

func (s *PlacementService) view(placement *models.Placement) *models.PlacementView {
	view := models.NewPlacementView(*placement, s.now())
	return &view
}

func validateDetails(d PlacementDetails) error {
	if d.Status != nil && !d.Status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid placement status")
	}
	if d.JobType != nil && !d.JobType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid job type")
	}
	if d.EmploymentType != nil && !d.EmploymentType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid employment type")
	}
	if d.Salary != nil && *d.Salary <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "salary must be positive")
	}
	if d.ProbationPeriodMonths != nil && (*d.ProbationPeriodMonths < 0 || *d.ProbationPeriodMonths > models.MaxProbationMonths) {
		return appErrors.Clone(appErrors.ErrValidation, "probation period must be between 0 and 24 months")
	}
	return nil
}

func applyDetails(placement *models.Placement, d PlacementDetails) {
	if d.Salary != nil {
		placement.Salary = d.Salary
	}
	if d.JobType != nil {
		placement.JobType = d.JobType
	}
	if d.WorkLocation != nil {
		placement.WorkLocation = d.WorkLocation
	}
	if d.EmploymentType != nil {
		placement.EmploymentType = d.EmploymentType
	}
	if d.ProbationPeriodMonths != nil {
		placement.ProbationPeriodMonths = d.ProbationPeriodMonths
	}
	if d.JoiningDate != nil {
		placement.JoiningDate = d.JoiningDate
	}
	if d.EndDate != nil {
		placement.EndDate = d.EndDate
	}
	if d.Notes != nil {
		placement.Notes = d.Notes
	}
	if d.Status != nil {
		placement.Status = *d.Status
	}
}
