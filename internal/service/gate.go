package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/institute-admin-api/internal/authz"
	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/internal/repository"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

// transactor runs fn in a unit of work shared by every repository call made with its context.
type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

func authorize(metrics *MetricsService, p *models.Principal, action authz.Action, resource authz.Resource) error {
	err := authz.Authorize(p, action, resource)
	metrics.RecordAuthorization(string(resource), string(action), err == nil)
	return err
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// lookupError maps a repository read failure to NotFound or Internal.
func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, "failed to load "+entity)
}

// persistError maps a repository write failure to Duplicate, NotFound or Internal.
func persistError(err error, entity, message string) error {
	switch {
	case errors.Is(err, repository.ErrUniqueViolation):
		return appErrors.Wrap(err, appErrors.ErrDuplicateResource.Code, appErrors.ErrDuplicateResource.Status, entity+" already exists")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, message)
}

// passThrough keeps typed domain errors raised inside a transaction intact.
func passThrough(err error, message string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return internalError(err, message)
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
