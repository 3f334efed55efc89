package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/authz"
	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

// CourseRequest holds payload for creating or replacing a course.
type CourseRequest struct {
	Name           string                  `json:"name" validate:"required,max=100"`
	Description    *string                 `json:"description"`
	DurationMonths int                     `json:"duration_months" validate:"required,gt=0"`
	Fees           float64                 `json:"fees" validate:"gte=0"`
	Status         *models.CatalogueStatus `json:"status"`
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo      courseRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, metrics: metrics, validator: validate, logger: logger}
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, p *models.Principal, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceCourse); err != nil {
		return nil, nil, err
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	return courses, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, p *models.Principal, id string) (*models.Course, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceCourse); err != nil {
		return nil, err
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	return course, nil
}

// Create adds a course to the catalogue.
func (s *CourseService) Create(ctx context.Context, p *models.Principal, req CourseRequest) (*models.Course, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceCourse); err != nil {
		return nil, err
	}
	course := &models.Course{Status: models.CatalogueStatusActive}
	if err := s.apply(ctx, course, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, persistError(err, "course", "failed to create course")
	}
	return course, nil
}

// Update replaces a course's attributes. Existing batches keep their end dates.
func (s *CourseService) Update(ctx context.Context, p *models.Principal, id string, req CourseRequest) (*models.Course, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceCourse); err != nil {
		return nil, err
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if err := s.apply(ctx, course, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, persistError(err, "course", "failed to update course")
	}
	return course, nil
}

func (s *CourseService) apply(ctx context.Context, course *models.Course, req CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid course payload")
	}
	if req.Status != nil && *req.Status != models.CatalogueStatusActive && *req.Status != models.CatalogueStatusInactive {
		return appErrors.Clone(appErrors.ErrValidation, "invalid course status")
	}
	name := strings.TrimSpace(req.Name)
	taken, err := s.repo.ExistsByName(ctx, name, course.ID)
	if err != nil {
		return internalError(err, "failed to validate course name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrDuplicateResource, "course name already used")
	}
	course.Name = name
	course.Description = req.Description
	course.DurationMonths = req.DurationMonths
	course.Fees = req.Fees
	if req.Status != nil {
		course.Status = *req.Status
	}
	return nil
}
