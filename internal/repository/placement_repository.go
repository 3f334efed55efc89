package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/pkg/database"
)

const placementColumns = `id, student_id, company_id, position, salary, placement_date, status, job_type, work_location,
        employment_type, probation_period_months, joining_date, end_date, notes, created_at, updated_at`

// PlacementRepository manages persistence for placements.
type PlacementRepository struct {
	db *sqlx.DB
}

// NewPlacementRepository constructs a PlacementRepository.
func NewPlacementRepository(db *sqlx.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

// List returns placements matching the filter.
func (r *PlacementRepository) List(ctx context.Context, filter models.PlacementFilter) ([]models.Placement, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.StudentID != "" {
		cond.add("student_id = ?", filter.StudentID)
	}
	if filter.CompanyID != "" {
		cond.add("company_id = ?", filter.CompanyID)
	}

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"placement_date": "placement_date",
		"salary":         "salary",
		"created_at":     "created_at",
	}, "placement_date")

	query := fmt.Sprintf(`SELECT %s FROM placements %s ORDER BY %s LIMIT %d OFFSET %d`, placementColumns, cond.where(), order, size, offset)
	conn := database.Conn(ctx, r.db)
	var placements []models.Placement
	if err := conn.SelectContext(ctx, &placements, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list placements: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM placements `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count placements: %w", err)
	}
	return placements, total, nil
}

// FindByID fetches a placement by ID.
func (r *PlacementRepository) FindByID(ctx context.Context, id string) (*models.Placement, error) {
	var placement models.Placement
	if err := database.Conn(ctx, r.db).GetContext(ctx, &placement, `SELECT `+placementColumns+` FROM placements WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &placement, nil
}

// Create inserts a new placement.
func (r *PlacementRepository) Create(ctx context.Context, placement *models.Placement) error {
	if placement.ID == "" {
		placement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if placement.CreatedAt.IsZero() {
		placement.CreatedAt = now
	}
	placement.UpdatedAt = now
	const query = `INSERT INTO placements (id, student_id, company_id, position, salary, placement_date, status, job_type, work_location,
        employment_type, probation_period_months, joining_date, end_date, notes, created_at, updated_at)
        VALUES (:id, :student_id, :company_id, :position, :salary, :placement_date, :status, :job_type, :work_location,
        :employment_type, :probation_period_months, :joining_date, :end_date, :notes, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, placement); err != nil {
		return classifyWriteError("create placement", err)
	}
	return nil
}

// Update persists every mutable placement column.
func (r *PlacementRepository) Update(ctx context.Context, placement *models.Placement) error {
	placement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE placements SET company_id = :company_id, position = :position, salary = :salary,
        placement_date = :placement_date, status = :status, job_type = :job_type, work_location = :work_location,
        employment_type = :employment_type, probation_period_months = :probation_period_months,
        joining_date = :joining_date, end_date = :end_date, notes = :notes, updated_at = :updated_at
        WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, placement)
	if err != nil {
		return classifyWriteError("update placement", err)
	}
	return requireAffected(res, "update placement")
}

// UpdateStatus sets the placement status.
func (r *PlacementRepository) UpdateStatus(ctx context.Context, id string, status models.PlacementStatus) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `UPDATE placements SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update placement status: %w", err)
	}
	return requireAffected(res, "update placement status")
}

// Delete removes a placement.
func (r *PlacementRepository) Delete(ctx context.Context, id string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM placements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete placement: %w", err)
	}
	return requireAffected(res, "delete placement")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
