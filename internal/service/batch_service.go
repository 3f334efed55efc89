package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/authz"
	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/internal/repository"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

type batchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	UpdateCapacity(ctx context.Context, id string, capacity int) error
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error
	Delete(ctx context.Context, id string) error
	AdjustEnrollment(ctx context.Context, id string, delta int) (*models.Batch, error)
	LockByIDs(ctx context.Context, ids []string) ([]models.Batch, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type employeeReader interface {
	FindByID(ctx context.Context, id string) (*models.Employee, error)
}

// CreateBatchRequest holds payload for creating batches.
type CreateBatchRequest struct {
	Name         string              `json:"name" validate:"required,max=100"`
	CourseID     string              `json:"course_id" validate:"required"`
	StartDate    time.Time           `json:"start_date" validate:"required"`
	Capacity     int                 `json:"capacity" validate:"required,min=1,max=100"`
	Status       *models.BatchStatus `json:"status"`
	InstructorID *string             `json:"instructor_id"`
}

// UpdateBatchRequest carries a partial change set; nil fields are left untouched.
type UpdateBatchRequest struct {
	Name         *string             `json:"name" validate:"omitempty,min=1,max=100"`
	CourseID     *string             `json:"course_id" validate:"omitempty,min=1"`
	StartDate    *time.Time          `json:"start_date"`
	Capacity     *int                `json:"capacity" validate:"omitempty,min=1,max=100"`
	Status       *models.BatchStatus `json:"status"`
	InstructorID *string             `json:"instructor_id"`
}

// BatchService owns batch capacity and the enrollment counter.
type BatchService struct {
	repo      batchRepository
	courses   courseReader
	employees employeeReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs the batch service.
func NewBatchService(repo batchRepository, courses courseReader, employees employeeReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, courses: courses, employees: employees, metrics: metrics, validator: validate, logger: logger}
}

// List returns batches and pagination metadata.
func (s *BatchService) List(ctx context.Context, p *models.Principal, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceBatch); err != nil {
		return nil, nil, err
	}
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list batches")
	}
	return batches, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a batch by ID.
func (s *BatchService) Get(ctx context.Context, p *models.Principal, id string) (*models.Batch, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceBatch); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Create registers a batch with an empty roster.
func (s *BatchService) Create(ctx context.Context, p *models.Principal, req CreateBatchRequest) (*models.Batch, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceBatch); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid batch payload")
	}
	status := models.BatchStatusPlanned
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid batch status")
		}
		status = *req.Status
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if err := s.checkInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}

	batch := &models.Batch{
		Name:              strings.TrimSpace(req.Name),
		CourseID:          course.ID,
		StartDate:         req.StartDate,
		EndDate:           endDate(req.StartDate, course),
		Capacity:          req.Capacity,
		CurrentEnrollment: 0,
		Status:            status,
		InstructorID:      req.InstructorID,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, internalError(err, "failed to create batch")
	}
	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.Int("capacity", batch.Capacity))
	return batch, nil
}

// Update applies a partial change set. A capacity below the current enrollment is rejected.
func (s *BatchService) Update(ctx context.Context, p *models.Principal, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceBatch); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid batch payload")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid batch status")
	}
	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	scheduleChanged := false
	if req.Name != nil {
		batch.Name = strings.TrimSpace(*req.Name)
	}
	if req.CourseID != nil && *req.CourseID != batch.CourseID {
		batch.CourseID = *req.CourseID
		scheduleChanged = true
	}
	if req.StartDate != nil && !req.StartDate.Equal(batch.StartDate) {
		batch.StartDate = *req.StartDate
		scheduleChanged = true
	}
	if scheduleChanged {
		course, err := s.courses.FindByID(ctx, batch.CourseID)
		if err != nil {
			return nil, lookupError(err, "course")
		}
		batch.EndDate = endDate(batch.StartDate, course)
	}
	if req.InstructorID != nil {
		if *req.InstructorID == "" {
			batch.InstructorID = nil
		} else {
			if err := s.checkInstructor(ctx, req.InstructorID); err != nil {
				return nil, err
			}
			batch.InstructorID = req.InstructorID
		}
	}
	if req.Status != nil {
		batch.Status = *req.Status
	}
	if req.Capacity != nil {
		if *req.Capacity < batch.CurrentEnrollment {
			return nil, s.capacityRejected("update", batch.ID, zap.Int("capacity", *req.Capacity), zap.Int("current_enrollment", batch.CurrentEnrollment))
		}
		batch.Capacity = *req.Capacity
	}

	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, s.writeError(err, "update", batch.ID, batch.Capacity, "failed to update batch")
	}
	return batch, nil
}

// UpdateCapacity changes the seat count. It fails with CapacityExceeded when n is below
// the current enrollment and leaves the stored capacity unchanged.
func (s *BatchService) UpdateCapacity(ctx context.Context, p *models.Principal, id string, capacity int) (*models.Batch, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateCapacity, authz.ResourceBatch); err != nil {
		return nil, err
	}
	if capacity < models.MinBatchCapacity || capacity > models.MaxBatchCapacity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must be between 1 and 100")
	}
	if err := s.repo.UpdateCapacity(ctx, id, capacity); err != nil {
		return nil, s.writeError(err, "update_capacity", id, capacity, "failed to update batch capacity")
	}
	return s.load(ctx, id)
}

// UpdateStatus changes the batch lifecycle status.
func (s *BatchService) UpdateStatus(ctx context.Context, p *models.Principal, id string, status models.BatchStatus) (*models.Batch, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateStatus, authz.ResourceBatch); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid batch status")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, lookupError(err, "batch")
	}
	return s.load(ctx, id)
}

// Delete removes a batch that has no enrolled students.
func (s *BatchService) Delete(ctx context.Context, p *models.Principal, id string) error {
	if err := authorize(s.metrics, p, authz.ActionDelete, authz.ResourceBatch); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrBatchNotEmpty) {
			return appErrors.Clone(appErrors.ErrValidation, "cannot delete a batch with enrolled students")
		}
		return lookupError(err, "batch")
	}
	s.logger.Info("batch deleted", zap.String("batch_id", id))
	return nil
}

// HasAvailableCapacity reports whether the batch has at least one free seat.
func (s *BatchService) HasAvailableCapacity(ctx context.Context, p *models.Principal, id string) (bool, error) {
	slots, err := s.AvailableSlots(ctx, p, id)
	if err != nil {
		return false, err
	}
	return slots > 0, nil
}

// AvailableSlots returns capacity minus current enrollment.
func (s *BatchService) AvailableSlots(ctx context.Context, p *models.Principal, id string) (int, error) {
	err := authz.AuthorizeAny(p,
		authz.Check{Action: authz.ActionView, Resource: authz.ResourceBatch},
		authz.Check{Action: authz.ActionCreate, Resource: authz.ResourceStudent},
	)
	s.metrics.RecordAuthorization(string(authz.ResourceBatch), "availability", err == nil)
	if err != nil {
		return 0, err
	}
	batch, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return batch.AvailableSlots(), nil
}

// adjustEnrollment moves the enrollment counter by delta in one conditional write.
// It carries no principal: callers authorize the enclosing operation.
func (s *BatchService) adjustEnrollment(ctx context.Context, id string, delta int) (*models.Batch, error) {
	if delta == 0 {
		return s.load(ctx, id)
	}
	batch, err := s.repo.AdjustEnrollment(ctx, id, delta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityExceeded):
			s.metrics.RecordCapacityRejection("enroll")
			s.logger.Warn("batch capacity rejected", zap.String("batch_id", id), zap.Int("delta", delta))
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "batch has no available slots")
		case errors.Is(err, repository.ErrEnrollmentUnderflow):
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch enrollment cannot drop below zero")
		default:
			return nil, lookupError(err, "batch")
		}
	}
	return batch, nil
}

// transfer moves one seat from fromID to toID. Either id may be empty. Both rows are
// locked in id order and the new seat is taken before the old one is released, so a
// full target leaves both counters unchanged. Must run inside a transaction.
func (s *BatchService) transfer(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return nil
	}
	ids := make([]string, 0, 2)
	for _, id := range []string{fromID, toID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	locked, err := s.repo.LockByIDs(ctx, ids)
	if err != nil {
		return internalError(err, "failed to lock batches")
	}
	if len(locked) != len(ids) {
		return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	if toID != "" {
		if _, err := s.adjustEnrollment(ctx, toID, 1); err != nil {
			return err
		}
	}
	if fromID != "" {
		if _, err := s.adjustEnrollment(ctx, fromID, -1); err != nil {
			return err
		}
	}
	return nil
}

func (s *BatchService) load(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "batch")
	}
	return batch, nil
}

func (s *BatchService) checkInstructor(ctx context.Context, instructorID *string) error {
	if instructorID == nil || *instructorID == "" {
		return nil
	}
	if _, err := s.employees.FindByID(ctx, *instructorID); err != nil {
		return lookupError(err, "instructor")
	}
	return nil
}

func (s *BatchService) capacityRejected(operation, id string, fields ...zap.Field) error {
	s.metrics.RecordCapacityRejection(operation)
	s.logger.Warn("batch capacity rejected", append([]zap.Field{zap.String("batch_id", id), zap.String("operation", operation)}, fields...)...)
	return appErrors.Clone(appErrors.ErrCapacityExceeded, "capacity cannot be lower than current enrollment")
}

func (s *BatchService) writeError(err error, operation, id string, capacity int, message string) error {
	switch {
	case errors.Is(err, repository.ErrCapacityExceeded):
		return s.capacityRejected(operation, id, zap.Int("capacity", capacity))
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return internalError(err, message)
}

func endDate(start time.Time, course *models.Course) *time.Time {
	if course == nil || course.DurationMonths <= 0 {
		return nil
	}
	end := start.AddDate(0, course.DurationMonths, 0)
	return &end
}
