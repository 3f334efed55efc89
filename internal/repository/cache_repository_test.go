package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "principal:1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "principal:1", map[string]string{"role": "ADMIN"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "principal:1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "principal:*"))
}
