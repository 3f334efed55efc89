package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-admin-api/internal/models"
)

func TestLeadRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(1, 1))

	lead := &models.Lead{FirstName: "Ravi", LastName: "K", Phone: "9000000002", Status: models.LeadStatusNew}
	require.NoError(t, repo.Create(context.Background(), lead))
	assert.NotEmpty(t, lead.ID)
	assert.False(t, lead.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryDeleteSkipsConverted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM leads WHERE id = $1 AND status <> 'CONVERTED'")).
		WithArgs("lead-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "lead-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadRepositoryListFollowUpDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeadRepository(db)

	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM leads WHERE next_follow_up_at <= $1 AND status NOT IN ('CONVERTED', 'LOST', 'NOT_INTERESTED') ORDER BY next_follow_up_at ASC LIMIT 50 OFFSET 0")).
		WithArgs(due).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leads WHERE next_follow_up_at <= $1")).
		WithArgs(due).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	leads, total, err := repo.List(context.Background(), models.LeadFilter{FollowUpDue: &due, PageSize: 50, SortBy: "next_follow_up_at", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
