package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

func seedPlacementParties(t *testing.T, env *testEnv) (*models.Student, *models.Company) {
	t.Helper()
	ctx := context.Background()
	student, err := env.students.Create(ctx, adminPrincipal, newStudentRequest("+628200", nil))
	require.NoError(t, err)
	company, err := env.companies.Create(ctx, placementPrincipal, CompanyRequest{Name: "Tokopedia", Industry: strPtr("E-commerce")})
	require.NoError(t, err)
	return student, company
}

func TestPlacementServiceCreateDerivesTenure(t *testing.T) {
	env := newTestEnv(t)
	student, company := seedPlacementParties(t, env)
	joining := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	probation := 6
	salary := 8500000.0
	permanent := models.EmploymentTypePermanent

	view, err := env.placements.Create(context.Background(), placementPrincipal, CreatePlacementRequest{
		StudentID:     student.ID,
		CompanyID:     company.ID,
		Position:      " Backend Engineer ",
		PlacementDate: joining,
		PlacementDetails: PlacementDetails{
			Salary:                &salary,
			EmploymentType:        &permanent,
			ProbationPeriodMonths: &probation,
			JoiningDate:           &joining,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", view.Position)
	assert.Equal(t, models.PlacementStatusPlaced, view.Status)
	assert.True(t, view.Active)
	assert.True(t, view.InProbation)
	assert.Equal(t, 3, view.TenureMonths)
}

func TestPlacementServiceValidation(t *testing.T) {
	env := newTestEnv(t)
	student, company := seedPlacementParties(t, env)
	ctx := context.Background()
	tooLong := 25
	negative := -100.0
	badJob := models.JobType("GIG")

	cases := []struct {
		name     string
		req      CreatePlacementRequest
		expected *appErrors.Error
	}{
		{"probation above limit", CreatePlacementRequest{StudentID: student.ID, CompanyID: company.ID, Position: "Dev", PlacementDate: fixedNow, PlacementDetails: PlacementDetails{ProbationPeriodMonths: &tooLong}}, appErrors.ErrValidation},
		{"non positive salary", CreatePlacementRequest{StudentID: student.ID, CompanyID: company.ID, Position: "Dev", PlacementDate: fixedNow, PlacementDetails: PlacementDetails{Salary: &negative}}, appErrors.ErrValidation},
		{"unknown job type", CreatePlacementRequest{StudentID: student.ID, CompanyID: company.ID, Position: "Dev", PlacementDate: fixedNow, PlacementDetails: PlacementDetails{JobType: &badJob}}, appErrors.ErrValidation},
		{"blank position", CreatePlacementRequest{StudentID: student.ID, CompanyID: company.ID, Position: "   ", PlacementDate: fixedNow}, appErrors.ErrValidation},
		{"unknown student", CreatePlacementRequest{StudentID: "student-missing", CompanyID: company.ID, Position: "Dev", PlacementDate: fixedNow}, appErrors.ErrNotFound},
		{"unknown company", CreatePlacementRequest{StudentID: student.ID, CompanyID: "company-missing", Position: "Dev", PlacementDate: fixedNow}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.placements.Create(ctx, adminPrincipal, tc.req)
			assertAppError(t, err, tc.expected)
		})
	}
}

func TestPlacementServiceStatusAndEndDate(t *testing.T) {
	env := newTestEnv(t)
	student, company := seedPlacementParties(t, env)
	ctx := context.Background()
	joining := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	created, err := env.placements.Create(ctx, placementPrincipal, CreatePlacementRequest{
		StudentID: student.ID, CompanyID: company.ID, Position: "QA", PlacementDate: joining,
		PlacementDetails: PlacementDetails{JoiningDate: &joining},
	})
	require.NoError(t, err)

	ended := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC)
	updated, err := env.placements.Update(ctx, placementPrincipal, created.ID, UpdatePlacementRequest{PlacementDetails: PlacementDetails{EndDate: &ended}})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 2, updated.TenureMonths)

	resigned, err := env.placements.UpdateStatus(ctx, placementPrincipal, created.ID, models.PlacementStatusResigned)
	require.NoError(t, err)
	assert.Equal(t, models.PlacementStatusResigned, resigned.Status)

	replaced, err := env.placements.UpdateStatus(ctx, placementPrincipal, created.ID, models.PlacementStatusPlaced)
	require.NoError(t, err)
	assert.Equal(t, models.PlacementStatusPlaced, replaced.Status)

	assertAppError(t, env.placements.Delete(ctx, placementPrincipal, created.ID), appErrors.ErrForbidden)
	require.NoError(t, env.placements.Delete(ctx, adminPrincipal, created.ID))
}

func TestPlacementServiceAuthorization(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.placements.List(context.Background(), counsellorPrincipal, models.PlacementFilter{})

	assertAppError(t, err, appErrors.ErrForbidden)
}
