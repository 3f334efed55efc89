package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/authz"
	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/internal/repository"
	"github.com/noah-isme/institute-admin-api/pkg/config"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error)
	ExistsByLeadID(ctx context.Context, leadID string) (bool, error)
	MaxEnrollmentSequence(ctx context.Context, prefix string) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type leadReader interface {
	FindByID(ctx context.Context, id string) (*models.Lead, error)
}

type seatManager interface {
	transfer(ctx context.Context, fromID, toID string) error
}

const (
	noteStudentEnrolled  = "Student enrolled"
	noteStudentGraduated = "Student graduated with grade: %s"
	noteStatusChanged    = "Status changed from %s to %s"
)

// CreateStudentRequest holds payload for direct enrollment.
type CreateStudentRequest struct {
	FirstName      string     `json:"first_name" validate:"required,max=50"`
	LastName       string     `json:"last_name" validate:"required,max=50"`
	Email          *string    `json:"email" validate:"omitempty,email,max=100"`
	Phone          string     `json:"phone" validate:"required,max=15"`
	DateOfBirth    *time.Time `json:"date_of_birth"`
	Address        *string    `json:"address"`
	EnrollmentDate time.Time  `json:"enrollment_date" validate:"required"`
	BatchID        *string    `json:"batch_id"`
	LeadID         *string    `json:"lead_id"`
}

// UpdateStudentRequest carries a partial change set. An empty BatchID removes the
// student from its batch.
type UpdateStudentRequest struct {
	FirstName   *string               `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName    *string               `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email       *string               `json:"email" validate:"omitempty,email,max=100"`
	Phone       *string               `json:"phone" validate:"omitempty,min=1,max=15"`
	DateOfBirth *time.Time            `json:"date_of_birth"`
	Address     *string               `json:"address"`
	BatchID     *string               `json:"batch_id"`
	Status      *models.StudentStatus `json:"status"`
}

// enrollmentInput is the validated data needed to register a student. It is shared by
// direct enrollment and lead conversion.
type enrollmentInput struct {
	FirstName      string
	LastName       string
	Email          *string
	Phone          string
	DateOfBirth    *time.Time
	Address        *string
	EnrollmentDate time.Time
	BatchID        *string
	LeadID         *string
}

// StudentService coordinates the student lifecycle and batch assignment.
type StudentService struct {
	repo      studentRepository
	leads     leadReader
	seats     seatManager
	tx        transactor
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	prefix    string
	attempts  int
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, leads leadReader, seats seatManager, tx transactor, cfg config.EnrollmentConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.NumberPrefix
	if prefix == "" {
		prefix = "ENR"
	}
	attempts := cfg.NumberAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &StudentService{
		repo:      repo,
		leads:     leads,
		seats:     seats,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		prefix:    prefix,
		attempts:  attempts,
		now:       time.Now,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, p *models.Principal, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceStudent); err != nil {
		return nil, nil, err
	}
	if filter.WithoutBatch && filter.BatchID != "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "batch and without-batch filters are exclusive")
	}
	if filter.EnrolledFrom != nil && filter.EnrolledTo != nil && filter.EnrolledTo.Before(*filter.EnrolledFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "enrollment date range is inverted")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, p *models.Principal, id string) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionView, authz.ResourceStudent); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// Create registers a student directly, optionally into a batch.
func (s *StudentService) Create(ctx context.Context, p *models.Principal, req CreateStudentRequest) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionCreate, authz.ResourceStudent); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	if req.LeadID != nil && *req.LeadID != "" {
		if _, err := s.leads.FindByID(ctx, *req.LeadID); err != nil {
			return nil, lookupError(err, "lead")
		}
	}
	return s.enroll(ctx, enrollmentInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		DateOfBirth:    req.DateOfBirth,
		Address:        req.Address,
		EnrollmentDate: req.EnrollmentDate,
		BatchID:        req.BatchID,
		LeadID:         req.LeadID,
	})
}

// enroll persists a new student, issues its enrollment number and takes a batch seat in
// one transaction. It carries no principal: callers authorize the enclosing operation.
func (s *StudentService) enroll(ctx context.Context, in enrollmentInput) (*models.Student, error) {
	email := normalizeOptional(in.Email)
	if err := s.checkContactUnique(ctx, email, in.Phone, ""); err != nil {
		return nil, err
	}
	leadID := normalizeOptional(in.LeadID)
	if leadID != nil {
		taken, err := s.repo.ExistsByLeadID(ctx, *leadID)
		if err != nil {
			return nil, internalError(err, "failed to check lead conversion")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrDuplicateResource, "lead already has a student")
		}
	}
	batchID := normalizeOptional(in.BatchID)

	now := s.now()
	student := &models.Student{
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          email,
		Phone:          strings.TrimSpace(in.Phone),
		DateOfBirth:    in.DateOfBirth,
		Address:        in.Address,
		BatchID:        batchID,
		LeadID:         leadID,
		Status:         models.StudentStatusActive,
		EnrollmentDate: in.EnrollmentDate,
		StatusHistory: models.StatusHistory{{
			Status:    models.StudentStatusActive,
			ChangedAt: now,
			Notes:     noteStudentEnrolled,
		}},
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if batchID != nil {
			if err := s.seats.transfer(ctx, "", *batchID); err != nil {
				return err
			}
		}
		return s.insertWithNumber(ctx, student, now.Year())
	})
	if err != nil {
		return nil, passThrough(err, "failed to create student")
	}
	s.metrics.RecordStudentStatusChange(string(student.Status))
	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("enrollment_number", student.EnrollmentNumber),
		zap.Stringp("batch_id", student.BatchID),
		zap.Stringp("lead_id", student.LeadID),
	)
	return student, nil
}

// insertWithNumber assigns the next enrollment number and retries on a number collision.
func (s *StudentService) insertWithNumber(ctx context.Context, student *models.Student, year int) error {
	prefix := s.prefix + strconv.Itoa(year)
	for attempt := 1; ; attempt++ {
		seq, err := s.repo.MaxEnrollmentSequence(ctx, prefix)
		if err != nil {
			return internalError(err, "failed to generate enrollment number")
		}
		student.EnrollmentNumber = fmt.Sprintf("%s%04d", prefix, seq+1)

		err = s.repo.Create(ctx, student)
		if err == nil {
			return nil
		}
		if constraint, ok := repository.ViolatedConstraint(err); ok && constraint == repository.ConstraintStudentEnrollmentNumber && attempt < s.attempts {
			s.logger.Debug("enrollment number collision, retrying", zap.String("enrollment_number", student.EnrollmentNumber), zap.Int("attempt", attempt))
			continue
		}
		return persistError(err, "student", "failed to create student")
	}
}

// Update applies a partial change set. A batch change moves the seat atomically and a
// status change appends one history entry.
func (s *StudentService) Update(ctx context.Context, p *models.Principal, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceStudent); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student status")
	}

	var updated *models.Student
	var previousStatus models.StudentStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		previousStatus = student.Status

		email := student.Email
		if req.Email != nil {
			email = normalizeOptional(req.Email)
		}
		phone := student.Phone
		if req.Phone != nil {
			phone = strings.TrimSpace(*req.Phone)
		}
		if err := s.checkContactUnique(ctx, changedOnly(email, student.Email), changedPhone(phone, student.Phone), student.ID); err != nil {
			return err
		}
		student.Email = email
		student.Phone = phone
		if req.FirstName != nil {
			student.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			student.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.DateOfBirth != nil {
			student.DateOfBirth = req.DateOfBirth
		}
		if req.Address != nil {
			student.Address = req.Address
		}
		if req.Status != nil {
			s.changeStatus(student, *req.Status, "")
		}
		if req.BatchID != nil {
			if err := s.move(ctx, student, normalizeOptional(req.BatchID)); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, student); err != nil {
			return persistError(err, "student", "failed to update student")
		}
		updated = student
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update student")
	}
	if updated.Status != previousStatus {
		s.metrics.RecordStudentStatusChange(string(updated.Status))
	}
	return updated, nil
}

// AssignToBatch moves the student into batchID, releasing any previous seat.
func (s *StudentService) AssignToBatch(ctx context.Context, p *models.Principal, id, batchID string) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceStudent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(batchID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch id is required")
	}
	return s.reassign(ctx, id, &batchID)
}

// RemoveFromBatch releases the student's seat.
func (s *StudentService) RemoveFromBatch(ctx context.Context, p *models.Principal, id string) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdate, authz.ResourceStudent); err != nil {
		return nil, err
	}
	return s.reassign(ctx, id, nil)
}

func (s *StudentService) reassign(ctx context.Context, id string, batchID *string) (*models.Student, error) {
	var updated *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if stringValue(student.BatchID) == stringValue(batchID) {
			updated = student
			return nil
		}
		if err := s.move(ctx, student, batchID); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, student); err != nil {
			return persistError(err, "student", "failed to update student")
		}
		updated = student
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to reassign student")
	}
	return updated, nil
}

// UpdateStatus changes the student status and appends a history entry on an actual change.
func (s *StudentService) UpdateStatus(ctx context.Context, p *models.Principal, id string, status models.StudentStatus) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateStatus, authz.ResourceStudent); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student status")
	}
	changed := false
	var updated *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		updated = student
		if !s.changeStatus(student, status, "") {
			return nil
		}
		changed = true
		if err := s.repo.Update(ctx, student); err != nil {
			return persistError(err, "student", "failed to update student")
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to update student status")
	}
	if changed {
		s.metrics.RecordStudentStatusChange(string(status))
	}
	return updated, nil
}

// Graduate marks the student GRADUATED today with the given final grade.
func (s *StudentService) Graduate(ctx context.Context, p *models.Principal, id, finalGrade string) (*models.Student, error) {
	if err := authorize(s.metrics, p, authz.ActionUpdateStatus, authz.ResourceStudent); err != nil {
		return nil, err
	}
	grade := strings.TrimSpace(finalGrade)
	if grade == "" || len(grade) > 10 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "final grade is required and at most 10 characters")
	}
	var updated *models.Student
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if student.Status == models.StudentStatusGraduated {
			return appErrors.Clone(appErrors.ErrValidation, "student has already graduated")
		}
		today := truncateToDay(s.now())
		student.GraduationDate = &today
		student.FinalGrade = &grade
		s.changeStatus(student, models.StudentStatusGraduated, fmt.Sprintf(noteStudentGraduated, grade))
		if err := s.repo.Update(ctx, student); err != nil {
			return persistError(err, "student", "failed to update student")
		}
		updated = student
		return nil
	})
	if err != nil {
		return nil, passThrough(err, "failed to graduate student")
	}
	s.metrics.RecordStudentStatusChange(string(models.StudentStatusGraduated))
	s.logger.Info("student graduated", zap.String("student_id", id), zap.String("final_grade", grade))
	return updated, nil
}

// Delete releases the student's batch seat and removes the record.
func (s *StudentService) Delete(ctx context.Context, p *models.Principal, id string) error {
	if err := authorize(s.metrics, p, authz.ActionDelete, authz.ResourceStudent); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if student.BatchID != nil {
			if err := s.seats.transfer(ctx, *student.BatchID, ""); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return lookupError(err, "student")
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

func (s *StudentService) lock(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	return student, nil
}

// move transfers the seat and updates the student's batch reference in memory.
func (s *StudentService) move(ctx context.Context, student *models.Student, batchID *string) error {
	from, to := stringValue(student.BatchID), stringValue(batchID)
	if from == to {
		return nil
	}
	if err := s.seats.transfer(ctx, from, to); err != nil {
		return err
	}
	student.BatchID = batchID
	s.logger.Info("student moved between batches",
		zap.String("student_id", student.ID),
		zap.String("from_batch_id", from),
		zap.String("to_batch_id", to),
	)
	return nil
}

// changeStatus appends a history entry when status differs. It reports whether it did.
func (s *StudentService) changeStatus(student *models.Student, status models.StudentStatus, note string) bool {
	if student.Status == status {
		return false
	}
	if note == "" {
		note = fmt.Sprintf(noteStatusChanged, student.Status, status)
	}
	student.StatusHistory = append(student.StatusHistory, models.StatusHistoryEntry{
		Status:    status,
		ChangedAt: s.now(),
		Notes:     note,
	})
	student.Status = status
	return true
}

func (s *StudentService) checkContactUnique(ctx context.Context, email *string, phone, excludeID string) error {
	if email != nil {
		taken, err := s.repo.ExistsByEmail(ctx, *email, excludeID)
		if err != nil {
			return internalError(err, "failed to validate email")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "email already used by another student")
		}
	}
	if phone != "" {
		taken, err := s.repo.ExistsByPhone(ctx, phone, excludeID)
		if err != nil {
			return internalError(err, "failed to validate phone")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrDuplicateResource, "phone already used by another student")
		}
	}
	return nil
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// changedOnly returns next when it differs from current, so unchanged values skip the uniqueness check.
func changedOnly(next, current *string) *string {
	if next == nil || (current != nil && strings.EqualFold(*next, *current)) {
		return nil
	}
	return next
}

func changedPhone(next, current string) string {
	if next == current {
		return ""
	}
	return next
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
