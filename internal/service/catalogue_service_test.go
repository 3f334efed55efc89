package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

func TestCourseServiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	course, err := env.courses.Create(ctx, opsPrincipal, CourseRequest{Name: "Data Engineering", DurationMonths: 4, Fees: 7500000})
	require.NoError(t, err)
	assert.Equal(t, models.CatalogueStatusActive, course.Status)

	_, err = env.courses.Create(ctx, adminPrincipal, CourseRequest{Name: "data engineering", DurationMonths: 3})
	assertAppError(t, err, appErrors.ErrDuplicateResource)

	_, err = env.courses.Create(ctx, adminPrincipal, CourseRequest{Name: "Cloud", DurationMonths: 0})
	assertAppError(t, err, appErrors.ErrValidation)

	_, err = env.courses.Create(ctx, counsellorPrincipal, CourseRequest{Name: "Cloud", DurationMonths: 2})
	assertAppError(t, err, appErrors.ErrForbidden)

	inactive := models.CatalogueStatusInactive
	updated, err := env.courses.Update(ctx, adminPrincipal, course.ID, CourseRequest{Name: "Data Engineering", DurationMonths: 5, Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.DurationMonths)
	assert.Equal(t, models.CatalogueStatusInactive, updated.Status)

	fetched, err := env.courses.Get(ctx, facultyPrincipal, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Data Engineering", fetched.Name)
}

func TestCompanyServiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	company, err := env.companies.Create(ctx, placementPrincipal, CompanyRequest{Name: "Gojek", Email: strPtr("hr@gojek.test")})
	require.NoError(t, err)

	_, err = env.companies.Create(ctx, placementPrincipal, CompanyRequest{Name: "Gojek"})
	assertAppError(t, err, appErrors.ErrDuplicateResource)

	_, err = env.companies.Create(ctx, placementPrincipal, CompanyRequest{Name: "Bad Mail", Email: strPtr("not-an-email")})
	assertAppError(t, err, appErrors.ErrValidation)

	updated, err := env.companies.Update(ctx, adminPrincipal, company.ID, CompanyRequest{Name: "Gojek", Industry: strPtr("Mobility")})
	require.NoError(t, err)
	assert.Equal(t, "Mobility", *updated.Industry)

	_, _, err = env.companies.List(ctx, opsPrincipal, models.CompanyFilter{})
	assertAppError(t, err, appErrors.ErrForbidden)
}
