package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/pkg/database"
)

const batchColumns = `id, name, course_id, start_date, end_date, capacity, current_enrollment, status, instructor_id, created_at, updated_at`

// BatchRepository manages persistence for batches and their enrollment counters.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs a BatchRepository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID fetches a batch by ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	if err := database.Conn(ctx, r.db).GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// List returns batches matching the filter together with the total count.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.CourseID != "" {
		cond.add("course_id = ?", filter.CourseID)
	}
	if filter.InstructorID != "" {
		cond.add("instructor_id = ?", filter.InstructorID)
	}
	if filter.HasAvailableSlots != nil {
		if *filter.HasAvailableSlots {
			cond.clauses = append(cond.clauses, "current_enrollment < capacity")
		} else {
			cond.clauses = append(cond.clauses, "current_enrollment >= capacity")
		}
	}
	if filter.Search != "" {
		cond.add("LOWER(name) LIKE ?", likePattern(filter.Search))
	}

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	}, "start_date")

	query := fmt.Sprintf(`SELECT %s FROM batches %s ORDER BY %s LIMIT %d OFFSET %d`, batchColumns, cond.where(), order, size, offset)
	conn := database.Conn(ctx, r.db)
	var batches []models.Batch
	if err := conn.SelectContext(ctx, &batches, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM batches `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// Create inserts a new batch.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, name, course_id, start_date, end_date, capacity, current_enrollment, status, instructor_id, created_at, updated_at)
        VALUES (:id, :name, :course_id, :start_date, :end_date, :capacity, :current_enrollment, :status, :instructor_id, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, batch); err != nil {
		return classifyWriteError("create batch", err)
	}
	return nil
}

// Update persists descriptive fields and capacity. The write only applies while the
// stored enrollment still fits the new capacity; otherwise ErrCapacityExceeded is returned.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET name = :name, course_id = :course_id, start_date = :start_date, end_date = :end_date,
        capacity = :capacity, status = :status, instructor_id = :instructor_id, updated_at = :updated_at
        WHERE id = :id AND current_enrollment <= :capacity`
	conn := database.Conn(ctx, r.db)
	res, err := conn.NamedExecContext(ctx, query, batch)
	if err != nil {
		return classifyWriteError("update batch", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update batch: %w", err)
	} else if affected == 0 {
		return r.missReason(ctx, conn, batch.ID, ErrCapacityExceeded)
	}
	return nil
}

// UpdateCapacity sets the capacity when current enrollment does not exceed it.
func (r *BatchRepository) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	const query = `UPDATE batches SET capacity = $2, updated_at = $3 WHERE id = $1 AND current_enrollment <= $2`
	conn := database.Conn(ctx, r.db)
	res, err := conn.ExecContext(ctx, query, id, capacity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch capacity: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update batch capacity: %w", err)
	} else if affected == 0 {
		return r.missReason(ctx, conn, id, ErrCapacityExceeded)
	}
	return nil
}

// UpdateStatus sets the batch status.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	const query = `UPDATE batches SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update batch status: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an empty batch. A batch with enrolled students yields ErrBatchNotEmpty.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM batches WHERE id = $1 AND current_enrollment = 0`
	conn := database.Conn(ctx, r.db)
	res, err := conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	} else if affected == 0 {
		return r.missReason(ctx, conn, id, ErrBatchNotEmpty)
	}
	return nil
}

// AdjustEnrollment adds delta to the enrollment counter in a single conditional statement.
// Nothing changes when the result would leave [0, capacity].
func (r *BatchRepository) AdjustEnrollment(ctx context.Context, id string, delta int) (*models.Batch, error) {
	query := `UPDATE batches SET current_enrollment = current_enrollment + $2, updated_at = $3
        WHERE id = $1 AND current_enrollment + $2 BETWEEN 0 AND capacity
        RETURNING ` + batchColumns
	conn := database.Conn(ctx, r.db)
	var batch models.Batch
	if err := conn.GetContext(ctx, &batch, query, id, delta, time.Now().UTC()); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("adjust batch enrollment: %w", err)
		}
		reason := ErrCapacityExceeded
		if delta < 0 {
			reason = ErrEnrollmentUnderflow
		}
		return nil, r.missReason(ctx, conn, id, reason)
	}
	return &batch, nil
}

// LockByIDs locks the given batch rows in ascending id order for the surrounding transaction.
func (r *BatchRepository) LockByIDs(ctx context.Context, ids []string) ([]models.Batch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var batches []models.Batch
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &batches, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock batches: %w", err)
	}
	return batches, nil
}

// missReason distinguishes a missing row from a rejected conditional write.
func (r *BatchRepository) missReason(ctx context.Context, conn database.Queryer, id string, reason error) error {
	var exists int
	if err := conn.GetContext(ctx, &exists, `SELECT 1 FROM batches WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("check batch: %w", err)
	}
	return reason
}
