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

type companyRepository interface {
	List(ctx context.Context, filter models.CompanyFilter) ([]models.Company, int, error)
	FindByID(ctx context.Context, id string) (*models.Company, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, company *models.Company) error
	Update(ctx context.Context, company *models.Company) error
}

// CompanyRequest holds payload for creating or replacing a hiring partner.
type CompanyRequest struct {
	Name            string                  `json:"name" validate:"required,max=100"`
	Industry        *string                 `json:"industry" validate:"omitempty,max=50"`
	ContactPerson   *string                 `json:"contact_person" validate:"omitempty,max=100"`
	Email           *string                 `json:"email" validate:"omitempty,email,max=100"`
	Phone           *string                 `json:"phone" validate:"omitempty,max=15"`
	Address         *string                 `json:"address"`
	PartnershipDate *time.Time              `json:"partnership_date"`
	Status          *models.CatalogueStatus `json:"status"`
}

// CompanyService manages hiring partners.
type CompanyService struct {
	repo      companyRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCompanyService constructs the company service.
func NewCompanyService(repo companyRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CompanyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyService{repo: repo, metrics: metrics, validator: validate, logger: logger}
}

// List returns companies and pagination metadata.
func (s *CompanyService) List(ctx context.Context, p *models.Principal, filter models.CompanyFilter) ([]models.Company, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceCompany); err != nil {
		return nil, nil, err
	}
	companies, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list companies")
	}
	return companies, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a company by ID.
func (s *CompanyService) Get(ctx context.Context, p *models.Principal, id string) (*models.Company, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceCompany); err != nil {
		return nil, err
	}
	company, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "company")
	}
	return company, nil
}

// Create registers a hiring partner.
func (s *CompanyService) Create(ctx context.Context, p *models.Principal, req CompanyRequest) (*models.Company, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceCompany); err != nil {
		return nil, err
	}
	company := &models.Company{Status: models.CatalogueStatusActive}
	if err := s.apply(ctx, company, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, company); err != nil {
		return nil, persistError(err, "company", "failed to create company")
	}
	return company, nil
}

// Update replaces a company's attributes.
func (s *CompanyService) Update(ctx context.Context, p *models.Principal, id string, req CompanyRequest) (*models.Company, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceCompany); err != nil {
		return nil, err
	}
	company, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "company")
	}
	if err := s.apply(ctx, company, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, company); err != nil {
		return nil, persistError(err, "company", "failed to update company")
	}
	return company, nil
}

func (s *CompanyService) apply(ctx context.Context, company *models.Company, req CompanyRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid company payload")
	}
	if req.Status != nil && *req.Status != models.CatalogueStatusActive && *req.Status != models.CatalogueStatusInactive {
		return appErrors.Clone(appErrors.ErrValidation, "invalid company status")
	}
	name := strings.TrimSpace(req.Name)
	taken, err := s.repo.ExistsByName(ctx, name, company.ID)
	if err != nil {
		return internalError(err, "failed to validate company name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrDuplicateResource, "company name already used")
	}
	company.Name = name
	company.Industry = req.Industry
	company.ContactPerson = req.ContactPerson
	company.Email = req.Email
	company.Phone = req.Phone
	company.Address = req.Address
	company.PartnershipDate = req.PartnershipDate
	if req.Status != nil {
		company.Status = *req.Status
	}
	return nil
}
