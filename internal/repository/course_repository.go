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

const courseColumns = `id, name, description, duration_months, fees, status, created_at, updated_at`

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the filter.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		cond.add("LOWER(name) LIKE ?", likePattern(filter.Search))
	}
	_, size, offset := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM courses %s ORDER BY name ASC LIMIT %d OFFSET %d`, courseColumns, cond.where(), size, offset)
	conn := database.Conn(ctx, r.db)
	var courses []models.Course
	if err := conn.SelectContext(ctx, &courses, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := database.Conn(ctx, r.db).GetContext(ctx, &course, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ExistsByName checks whether the course name is taken, optionally excluding an ID.
func (r *CourseRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "courses", "LOWER(name) = LOWER($1)", name, excludeID)
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, description, duration_months, fees, status, created_at, updated_at)
        VALUES (:id, :name, :description, :duration_months, :fees, :status, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, course); err != nil {
		return classifyWriteError("create course", err)
	}
	return nil
}

// Update persists every mutable course column.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, duration_months = :duration_months,
        fees = :fees, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, course)
	if err != nil {
		return classifyWriteError("update course", err)
	}
	return requireAffected(res, "update course")
}
