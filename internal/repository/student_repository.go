package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/pkg/database"
)

const studentColumns = `id, enrollment_number, first_name, last_name, email, phone, date_of_birth, address, batch_id, lead_id,
        status, enrollment_date, graduation_date, final_grade, status_history, created_at, updated_at`

// Constraint names used to tell enrollment number collisions apart from contact duplicates.
const (
	ConstraintStudentEnrollmentNumber = "students_enrollment_number_key"
	ConstraintStudentEmail            = "idx_students_email_lower"
	ConstraintStudentPhone            = "students_phone_key"
	ConstraintStudentLead             = "idx_students_lead_id"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.BatchID != "" {
		cond.add("batch_id = ?", filter.BatchID)
	}
	if filter.WithoutBatch {
		cond.clauses = append(cond.clauses, "batch_id IS NULL")
	}
	if filter.CourseID != "" {
		cond.add("batch_id IN (SELECT id FROM batches WHERE course_id = ?)", filter.CourseID)
	}
	if filter.EnrolledFrom != nil {
		cond.add("enrollment_date >= ?", *filter.EnrolledFrom)
	}
	if filter.EnrolledTo != nil {
		cond.add("enrollment_date <= ?", *filter.EnrolledTo)
	}
	if filter.Search != "" {
		cond.add("(LOWER(first_name || ' ' || last_name) LIKE ? OR LOWER(enrollment_number) LIKE ?)", likePattern(filter.Search))
	}

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"enrollment_number": "enrollment_number",
		"last_name":         "last_name",
		"enrollment_date":   "enrollment_date",
		"created_at":        "created_at",
	}, "created_at")

	query := fmt.Sprintf(`SELECT %s FROM students %s ORDER BY %s LIMIT %d OFFSET %d`, studentColumns, cond.where(), order, size, offset)
	conn := database.Conn(ctx, r.db)
	var students []models.Student
	if err := conn.SelectContext(ctx, &students, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM students `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.find(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

// FindByIDForUpdate fetches and row-locks a student inside the surrounding transaction.
func (r *StudentRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Student, error) {
	return r.find(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
}

func (r *StudentRepository) find(ctx context.Context, query, id string) (*models.Student, error) {
	var student models.Student
	if err := database.Conn(ctx, r.db).GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByEmail checks whether a student uses the email, optionally excluding an ID.
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "students", "LOWER(email) = LOWER($1)", email, excludeID)
}

// ExistsByPhone checks whether a student uses the phone, optionally excluding an ID.
func (r *StudentRepository) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "students", "phone = $1", phone, excludeID)
}

// ExistsByLeadID reports whether a student was already created from the lead.
func (r *StudentRepository) ExistsByLeadID(ctx context.Context, leadID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "students", "lead_id = $1", leadID, "")
}

// MaxEnrollmentSequence returns the highest numeric suffix issued under prefix, or 0.
func (r *StudentRepository) MaxEnrollmentSequence(ctx context.Context, prefix string) (int, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(enrollment_number FROM $2::int) AS INTEGER)), 0)
        FROM students WHERE enrollment_number ~ $1`
	pattern := "^" + regexp.QuoteMeta(prefix) + "[0-9]+$"
	var seq int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &seq, query, pattern, len(prefix)+1); err != nil {
		return 0, fmt.Errorf("max enrollment sequence: %w", err)
	}
	return seq, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, enrollment_number, first_name, last_name, email, phone, date_of_birth, address, batch_id, lead_id,
        status, enrollment_date, graduation_date, final_grade, status_history, created_at, updated_at)
        VALUES (:id, :enrollment_number, :first_name, :last_name, :email, :phone, :date_of_birth, :address, :batch_id, :lead_id,
        :status, :enrollment_date, :graduation_date, :final_grade, :status_history, :created_at, :updated_at)`
	return database.Savepoint(ctx, "create_student", func(ctx context.Context) error {
		if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, student); err != nil {
			return classifyWriteError("create student", err)
		}
		return nil
	})
}

// Update persists every mutable student column, batch reference and history included.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone,
        date_of_birth = :date_of_birth, address = :address, batch_id = :batch_id, status = :status,
        graduation_date = :graduation_date, final_grade = :final_grade, status_history = :status_history, updated_at = :updated_at
        WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, student)
	if err != nil {
		return classifyWriteError("update student", err)
	}
	return requireAffected(res, "update student")
}

// Delete removes a student record.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return requireAffected(res, "delete student")
}
