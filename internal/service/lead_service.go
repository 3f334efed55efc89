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

type leadRepository interface {
	List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)
	FindByID(ctx context.Context, id string) (*models.Lead, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.Lead, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error)
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	Delete(ctx context.Context, id string) error
}

type studentEnroller interface {
	enroll(ctx context.Context, in enrollmentInput) (*models.Student, error)
}

const (
	followUpDateLayout = "2006-01-02"
	noFurtherAction    = "No further action"
)

// CreateLeadRequest holds payload for registering a lead.
type CreateLeadRequest struct {
	FirstName            string     `json:"first_name" validate:"required,max=50"`
	LastName             string     `json:"last_name" validate:"required,max=50"`
	Email                *string    `json:"email" validate:"omitempty,email,max=100"`
	Phone                string     `json:"phone" validate:"required,max=15"`
	CourseInterest       *string    `json:"course_interest" validate:"omitempty,max=100"`
	Source               *string    `json:"source" validate:"omitempty,max=50"`
	AssignedCounsellorID *string    `json:"assigned_counsellor_id"`
	Notes                *string    `json:"notes"`
	NextFollowUpAt       *time.Time `json:"next_follow_up_at"`
}

// UpdateLeadRequest carries a partial change set.
type UpdateLeadRequest struct {
	FirstName            *string            `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName             *string            `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email                *string            `json:"email" validate:"omitempty,email,max=100"`
	Phone                *string            `json:"phone" validate:"omitempty,min=1,max=15"`
	CourseInterest       *string            `json:"course_interest" validate:"omitempty,max=100"`
	Source               *string            `json:"source" validate:"omitempty,max=50"`
	Status               *models.LeadStatus `json:"status"`
	AssignedCounsellorID *string            `json:"assigned_counsellor_id"`
	Notes                *string            `json:"notes"`
	NextFollowUpAt       *time.Time         `json:"next_follow_up_at"`
}

// AddFollowUpRequest records one counsellor contact.
type AddFollowUpRequest struct {
	Notes          string     `json:"notes" validate:"required"`
	NextFollowUpAt *time.Time `json:"next_follow_up_at"`
}

// ConvertLeadRequest carries the enrollment details a lead lacks.
type ConvertLeadRequest struct {
	EnrollmentDate time.Time  `json:"enrollment_date" validate:"required"`
	BatchID        *string    `json:"batch_id"`
	Address        *string    `json:"address"`
	DateOfBirth    *time.Time `json:"date_of_birth"`
}

// LeadService drives the lead lifecycle and conversion into students.
type LeadService struct {
	repo      leadRepository
	employees employeeReader
	students  studentEnroller
	tx        transactor
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLeadService constructs the lead service.
func NewLeadService(repo leadRepository, employees employeeReader, students studentEnroller, tx transactor, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LeadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadService{repo: repo, employees: employees, students: students, tx: tx, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// List returns leads and pagination metadata.
func (s *LeadService) List(ctx context.Context, p *models.Principal, filter models.LeadFilter) ([]models.Lead, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceLead); err != nil {
		return nil, nil, err
	}
	leads, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list leads")
	}
	return leads, pagination(filter.Page, filter.PageSize, total), nil
}

// ListRequiringFollowUp returns open leads whose next follow-up is due.
func (s *LeadService) ListRequiringFollowUp(ctx context.Context, p *models.Principal, page, size int) ([]models.Lead, *models.Pagination, error) {
	due := s.now()
	return s.List(ctx, p, models.LeadFilter{
		FollowUpDue: &due,
		Page:        page,
		PageSize:    size,
		SortBy:      "next_follow_up_at",
		SortOrder:   "ASC",
	})
}

// Get returns a lead by ID.
func (s *LeadService) Get(ctx context.Context, p *models.Principal, id string) (*models.Lead, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceLead); err != nil {
		return nil, err
	}
	lead, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "lead")
	}
	return lead, nil
}

// Create registers a NEW lead.
func (s *LeadService) Create(ctx context.Context, p *models.Principal, req CreateLeadRequest) (*models.Lead, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceLead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid lead payload")
	}
	email := normalizeOptional(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if err := s.checkContactUnique(ctx, email, phone, ""); err != nil {
		return nil, err
	}
	counsellorID := normalizeOptional(req.AssignedCounsellorID)
	if err := s.checkCounsellor(ctx, counsellorID); err != nil {
		return nil, err
	}

	lead := &models.Lead{
		FirstName:            strings.TrimSpace(req.FirstName),
		LastName:             strings.TrimSpace(req.LastName),
		Email:                email,
		Phone:                phone,
		CourseInterest:       req.CourseInterest,
		Source:               req.Source,
		Status:               models.LeadStatusNew,
		AssignedCounsellorID: counsellorID,
		Notes:                req.Notes,
		NextFollowUpAt:       req.NextFollowUpAt,
		FollowUps:            models.FollowUps{},
	}
	if err := s.repo.Create(ctx, lead); err != nil {
		return nil, persistError(err, "lead", "failed to create lead")
	}
	s.logger.Info("lead created", zap.String("lead_id", lead.ID), zap.Stringp("counsellor_id", counsellorID))
	return lead, nil
}

// Update applies a partial change set. Converted leads are immutable and status changes
// must follow the lifecycle; CONVERTED is reachable only through conversion.
func (s *LeadService) Update(ctx context.Context, p *models.Principal, id string, req UpdateLeadRequest) (*models.Lead, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceLead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid lead payload")
	}

	var updated *models.Lead
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lead, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if lead.Status == models.LeadStatusConverted {
			return appErrors.Clone(appErrors.ErrValidation, "converted leads cannot be modified")
		}
		if req.Status != nil && *req.Status != lead.Status {
			switch {
			case !req.Status.Valid():
				return appErrors.Clone(appErrors.ErrValidation, "invalid lead status")
			case *req.Status == models.LeadStatusConverted:
				return appErrors.Clone(appErrors.ErrValidation, "leads become CONVERTED only through conversion")
			case !lead.Status.CanTransitionTo(*req.Status):
				return appErrors.Clone(appErrors.ErrValidation, "lead cannot move from "+string(lead.Status)+" to "+string(*req.Status))
			}
		}

		email := lead.Email
		if req.Email != nil {
			email = normalizeOptional(req.Email)
		}
		phone := lead.Phone
		if req.Phone != nil {
			phone = strings.TrimSpace(*req.Phone)
		}
		if err := s.checkContactUnique(ctx, changedOnly(email, lead.Email), changedPhone(phone, lead.Phone), lead.ID); err != nil {
			return err
		}
		if req.AssignedCounsellorID != nil {
			counsellorID := normalizeOptional(req.AssignedCounsellorID)
			if err := s.checkCounsellor(ctx, counsellorID); err != nil {
				return err
			}
			lead.AssignedCounsellorID = counsellorID
		}

		lead.Email = email
		lead.Phone = phone
		if req.FirstName != nil {
			lead.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			lead.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.CourseInterest != nil {
			lead.CourseInterest = req.CourseInterest
		}
		if req.Source != nil {
			lead.Source = req.Source
		}
		if req.Notes != nil {
			lead.Notes = req.Notes
		}
		if req.NextFollowUpAt != nil {
			lead.NextFollowUpAt = req.NextFollowUpAt
		}
		if req.Status != nil {
			lead.Status = *req.Status
		}
		if err := s.repo.Update(ctx, lead); err != nil {
			return persistError(err, "lead", "failed to update lead")
		}
		updated = lead
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update lead")
	}
	return updated, nil
}

// AddFollowUp appends a follow-up entry stamped now and reschedules the next contact.
func (s *LeadService) AddFollowUp(ctx context.Context, p *models.Principal, id string, req AddFollowUpRequest) (*models.Lead, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceLead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid follow-up payload")
	}

	var updated *models.Lead
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lead, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if lead.Status == models.LeadStatusConverted {
			return appErrors.Clone(appErrors.ErrValidation, "cannot add follow-ups to a converted lead")
		}
		nextAction := noFurtherAction
		if req.NextFollowUpAt != nil {
			nextAction = "Follow up on " + req.NextFollowUpAt.Format(followUpDateLayout)
		}
		lead.FollowUps = append(lead.FollowUps, models.FollowUp{
			Date:       s.now(),
			Notes:      strings.TrimSpace(req.Notes),
			NextAction: nextAction,
		})
		lead.NextFollowUpAt = req.NextFollowUpAt
		if err := s.repo.Update(ctx, lead); err != nil {
			return persistError(err, "lead", "failed to update lead")
		}
		updated = lead
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to add follow-up")
	}
	return updated, nil
}

// ConvertToStudent turns an eligible lead into a student. The lead row stays locked for
// the whole transaction, so a concurrent second conversion sees CONVERTED and fails.
func (s *LeadService) ConvertToStudent(ctx context.Context, p *models.Principal, id string, req ConvertLeadRequest) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionConvert, authz.ResourceLead); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid conversion payload")
	}

	var student *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lead, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if !lead.Status.Convertible() {
			return appErrors.Clone(appErrors.ErrLeadConversion, "lead in status "+string(lead.Status)+" cannot be converted")
		}
		student, err = s.students.enroll(ctx, enrollmentInput{
			FirstName:      lead.FirstName,
			LastName:       lead.LastName,
			Email:          lead.Email,
			Phone:          lead.Phone,
			DateOfBirth:    req.DateOfBirth,
			Address:        req.Address,
			EnrollmentDate: req.EnrollmentDate,
			BatchID:        req.BatchID,
			LeadID:         &lead.ID,
		})
		if err != nil {
			return err
		}
		convertedAt := s.now()
		lead.Status = models.LeadStatusConverted
		lead.ConvertedAt = &convertedAt
		if err := s.repo.Update(ctx, lead); err != nil {
			return persistError(err, "lead", "failed to update lead")
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordLeadConversion(false)
		s.logger.Warn("lead conversion failed", zap.String("lead_id", id), zap.Error(err))
		return nil, passThrough(err, "failed to convert lead")
	}
	s.metrics.RecordLeadConversion(true)
	s.logger.Info("lead converted",
		zap.String("lead_id", id),
		zap.String("student_id", student.ID),
		zap.String("enrollment_number", student.EnrollmentNumber),
	)
	return student, nil
}

// Delete removes a lead that has not been converted.
func (s *LeadService) Delete(ctx context.Context, p *models.Principal, id string) error {
	if err := authorize(s.metrics, p, authz.ActionDelete, authz.ResourceLead); err != nil {
		return err
	}
	lead, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "lead")
	}
	if lead.Status == models.LeadStatusConverted {
		return appErrors.Clone(appErrors.ErrValidation, "converted leads cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "lead")
	}
	return nil
}

func (s *LeadService) lock(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := s.repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, lookupError(err, "lead")
	}
	return lead, nil
}

func (s *LeadService) checkCounsellor(ctx context.Context, counsellorID *string) error {
	if counsellorID == nil {
		return nil
	}
	employee, err := s.employees.FindByID(ctx, *counsellorID)
	if err != nil {
		return lookupError(err, "counsellor")
	}
	if employee.Role != models.RoleCounsellor {
		return appErrors.Clone(appErrors.ErrValidation, "assigned employee is not a counsellor")
	}
	return nil
}

func (s *LeadService) checkContactUnique(ctx context.Context, email *string, phone, excludeID string) error {
	if email != nil {
		taken, err := s.repo.ExistsByEmail(ctx, *email, excludeID)
		if err != nil {
			return internalError(err, "failed to validate email")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "email already used by another lead")
		}
	}
	if phone != "" {
		taken, err := s.repo.ExistsByPhone(ctx, phone, excludeID)
		if err != nil {
			return internalError(err, "failed to validate phone")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "phone already used by another lead")
		}
	}
	return nil
}
