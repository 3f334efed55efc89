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

const leadColumns = `id, first_name, last_name, email, phone, course_interest, source, status, assigned_counsellor_id,
        converted_at, notes, next_follow_up_at, follow_ups, created_at, updated_at`

// LeadRepository manages persistence for leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs a LeadRepository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// List returns leads matching the filter.
func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.CounsellorID != "" {
		cond.add("assigned_counsellor_id = ?", filter.CounsellorID)
	}
	if filter.Source != "" {
		cond.add("source = ?", filter.Source)
	}
	if filter.FollowUpDue != nil {
		cond.add("next_follow_up_at <= ?", *filter.FollowUpDue)
		cond.clauses = append(cond.clauses, "status NOT IN ('CONVERTED', 'LOST', 'NOT_INTERESTED')")
	}
	if filter.Search != "" {
		cond.add("(LOWER(first_name || ' ' || last_name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ? OR phone LIKE ?)", likePattern(filter.Search))
	}

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	order := orderBy(filter.SortBy, filter.SortOrder, map[string]string{
		"created_at":        "created_at",
		"last_name":         "last_name",
		"next_follow_up_at": "next_follow_up_at",
	}, "created_at")

	query := fmt.Sprintf(`SELECT %s FROM leads %s ORDER BY %s LIMIT %d OFFSET %d`, leadColumns, cond.where(), order, size, offset)
	conn := database.Conn(ctx, r.db)
	var leads []models.Lead
	if err := conn.SelectContext(ctx, &leads, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM leads `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	return leads, total, nil
}

// FindByID fetches a lead by ID.
func (r *LeadRepository) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	return r.find(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
}

// FindByIDForUpdate fetches and row-locks a lead inside the surrounding transaction.
func (r *LeadRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Lead, error) {
	return r.find(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id)
}

func (r *LeadRepository) find(ctx context.Context, query, id string) (*models.Lead, error) {
	var lead models.Lead
	if err := database.Conn(ctx, r.db).GetContext(ctx, &lead, query, id); err != nil {
		return nil, err
	}
	return &lead, nil
}

// ExistsByEmail checks whether a lead uses the email, optionally excluding an ID.
func (r *LeadRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "leads", "LOWER(email) = LOWER($1)", email, excludeID)
}

// ExistsByPhone checks whether a lead uses the phone, optionally excluding an ID.
func (r *LeadRepository) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "leads", "phone = $1", phone, excludeID)
}

// Create inserts a new lead.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	const query = `INSERT INTO leads (id, first_name, last_name, email, phone, course_interest, source, status, assigned_counsellor_id,
        converted_at, notes, next_follow_up_at, follow_ups, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :email, :phone, :course_interest, :source, :status, :assigned_counsellor_id,
        :converted_at, :notes, :next_follow_up_at, :follow_ups, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, lead); err != nil {
		return classifyWriteError("create lead", err)
	}
	return nil
}

// Update persists every mutable lead column, including the follow-up log.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leads SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone,
        course_interest = :course_interest, source = :source, status = :status, assigned_counsellor_id = :assigned_counsellor_id,
        converted_at = :converted_at, notes = :notes, next_follow_up_at = :next_follow_up_at, follow_ups = :follow_ups,
        updated_at = :updated_at
        WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, lead)
	if err != nil {
		return classifyWriteError("update lead", err)
	}
	return requireAffected(res, "update lead")
}

// Delete removes a lead that has not been converted.
func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM leads WHERE id = $1 AND status <> 'CONVERTED'`, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return requireAffected(res, "delete lead")
}
