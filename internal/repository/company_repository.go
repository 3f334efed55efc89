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

const companyColumns = `id, name, industry, contact_person, email, phone, address, partnership_date, status, created_at, updated_at`

// CompanyRepository manages persistence for hiring partners.
type CompanyRepository struct {
	db *sqlx.DB
}

// NewCompanyRepository constructs a CompanyRepository.
func NewCompanyRepository(db *sqlx.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// List returns companies matching the filter.
func (r *CompanyRepository) List(ctx context.Context, filter models.CompanyFilter) ([]models.Company, int, error) {
	var cond conditions
	if filter.Status != nil {
		cond.add("status = ?", *filter.Status)
	}
	if filter.Industry != "" {
		cond.add("industry = ?", filter.Industry)
	}
	if filter.Search != "" {
		cond.add("LOWER(name) LIKE ?", likePattern(filter.Search))
	}
	_, size, offset := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM companies %s ORDER BY name ASC LIMIT %d OFFSET %d`, companyColumns, cond.where(), size, offset)
	conn := database.Conn(ctx, r.db)
	var companies []models.Company
	if err := conn.SelectContext(ctx, &companies, query, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM companies `+cond.where(), cond.args...); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}
	return companies, total, nil
}

// FindByID fetches a company by ID.
func (r *CompanyRepository) FindByID(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	if err := database.Conn(ctx, r.db).GetContext(ctx, &company, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &company, nil
}

// ExistsByName checks whether the company name is taken, optionally excluding an ID.
func (r *CompanyRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return exists(ctx, database.Conn(ctx, r.db), "companies", "LOWER(name) = LOWER($1)", name, excludeID)
}

// Create inserts a new company.
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if company.CreatedAt.IsZero() {
		company.CreatedAt = now
	}
	company.UpdatedAt = now
	const query = `INSERT INTO companies (id, name, industry, contact_person, email, phone, address, partnership_date, status, created_at, updated_at)
        VALUES (:id, :name, :industry, :contact_person, :email, :phone, :address, :partnership_date, :status, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, company); err != nil {
		return classifyWriteError("create company", err)
	}
	return nil
}

// Update persists every mutable company column.
func (r *CompanyRepository) Update(ctx context.Context, company *models.Company) error {
	company.UpdatedAt = time.Now().UTC()
	const query = `UPDATE companies SET name = :name, industry = :industry, contact_person = :contact_person, email = :email,
        phone = :phone, address = :address, partnership_date = :partnership_date, status = :status, updated_at = :updated_at
        WHERE id = :id`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, company)
	if err != nil {
		return classifyWriteError("update company", err)
	}
	return requireAffected(res, "update company")
}
