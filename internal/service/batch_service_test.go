package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

func assertAppError(t *testing.T, err error, expected *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, expected.Code, appErr.Code, appErr.Message)
}

func TestBatchServiceCreateDeniedForFaculty(t *testing.T) {
	env := newTestEnv(t)
	before := env.store.callCount()

	_, err := env.batches.Create(context.Background(), facultyPrincipal, CreateBatchRequest{
		Name:      "Go Fundamentals",
		CourseID:  "course-go",
		StartDate: fixedNow,
		Capacity:  30,
	})

	assertAppError(t, err, appErrors.ErrForbidden)
	assert.Equal(t, before, env.store.callCount(), "denied calls must not touch the store")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.authzDecisions.WithLabelValues("batch", "create", "denied")))
}

func TestBatchServiceCreateRequiresPrincipal(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.batches.Create(context.Background(), nil, CreateBatchRequest{Name: "x", CourseID: "course-go", StartDate: fixedNow, Capacity: 10})

	assertAppError(t, err, appErrors.ErrUnauthorized)
}

func TestBatchServiceCreateDerivesEndDate(t *testing.T) {
	env := newTestEnv(t)

	batch, err := env.batches.Create(context.Background(), opsPrincipal, CreateBatchRequest{
		Name:         "  Go Fundamentals  ",
		CourseID:     "course-go",
		StartDate:    time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
		Capacity:     30,
		InstructorID: strPtr("emp-faculty"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Go Fundamentals", batch.Name)
	assert.Equal(t, models.BatchStatusPlanned, batch.Status)
	assert.Equal(t, 0, batch.CurrentEnrollment)
	require.NotNil(t, batch.EndDate)
	assert.Equal(t, time.Date(2024, time.July, 8, 0, 0, 0, 0, time.UTC), *batch.EndDate)
}

func TestBatchServiceCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		req      CreateBatchRequest
		expected *appErrors.Error
	}{
		{"capacity above maximum", CreateBatchRequest{Name: "A", CourseID: "course-go", StartDate: fixedNow, Capacity: 101}, appErrors.ErrValidation},
		{"capacity zero", CreateBatchRequest{Name: "A", CourseID: "course-go", StartDate: fixedNow, Capacity: 0}, appErrors.ErrValidation},
		{"unknown course", CreateBatchRequest{Name: "A", CourseID: "course-missing", StartDate: fixedNow, Capacity: 10}, appErrors.ErrNotFound},
		{"unknown instructor", CreateBatchRequest{Name: "A", CourseID: "course-go", StartDate: fixedNow, Capacity: 10, InstructorID: strPtr("emp-missing")}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.batches.Create(ctx, adminPrincipal, tc.req)
			assertAppError(t, err, tc.expected)
		})
	}
}

func TestBatchServiceUpdateCapacityBelowEnrollment(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 25)

	_, err := env.batches.UpdateCapacity(context.Background(), opsPrincipal, "batch-a", 20)

	assertAppError(t, err, appErrors.ErrCapacityExceeded)
	stored := env.store.batch(t, "batch-a")
	assert.Equal(t, 30, stored.Capacity)
	assert.Equal(t, 25, stored.CurrentEnrollment)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.capacityRejections.WithLabelValues("update_capacity")))
}

func TestBatchServiceUpdateCapacityToEnrollment(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 25)

	batch, err := env.batches.UpdateCapacity(context.Background(), adminPrincipal, "batch-a", 25)

	require.NoError(t, err)
	assert.Equal(t, 25, batch.Capacity)
	assert.Equal(t, 0, batch.AvailableSlots())
}

func TestBatchServiceUpdateRejectsCapacityBelowEnrollment(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 12)
	capacity := 10

	_, err := env.batches.Update(context.Background(), adminPrincipal, "batch-a", UpdateBatchRequest{Capacity: &capacity, Name: strPtr("Renamed")})

	assertAppError(t, err, appErrors.ErrCapacityExceeded)
	stored := env.store.batch(t, "batch-a")
	assert.Equal(t, "Morning", stored.Name)
	assert.Equal(t, 30, stored.Capacity)
}

func TestBatchServiceUpdateRecomputesEndDate(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 0)
	env.store.putCourse("course-long", 12)

	batch, err := env.batches.Update(context.Background(), opsPrincipal, "batch-a", UpdateBatchRequest{CourseID: strPtr("course-long")})

	require.NoError(t, err)
	require.NotNil(t, batch.EndDate)
	assert.Equal(t, fixedNow.AddDate(1, 0, 0), *batch.EndDate)
}

func TestBatchServiceUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 12)
	ctx := context.Background()

	batch, err := env.batches.UpdateStatus(ctx, opsPrincipal, "batch-a", models.BatchStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	assert.Equal(t, 12, batch.CurrentEnrollment)

	_, err = env.batches.UpdateStatus(ctx, opsPrincipal, "batch-a", models.BatchStatus("ARCHIVED"))
	assertAppError(t, err, appErrors.ErrValidation)

	_, err = env.batches.UpdateStatus(ctx, counsellorPrincipal, "batch-a", models.BatchStatusCompleted)
	assertAppError(t, err, appErrors.ErrForbidden)

	_, err = env.batches.UpdateStatus(ctx, adminPrincipal, "batch-missing", models.BatchStatusCompleted)
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestBatchServiceDelete(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-full", "Full", 30, 3)
	env.store.putBatch("batch-empty", "Empty", 30, 0)
	ctx := context.Background()

	assertAppError(t, env.batches.Delete(ctx, opsPrincipal, "batch-empty"), appErrors.ErrForbidden)
	assertAppError(t, env.batches.Delete(ctx, adminPrincipal, "batch-full"), appErrors.ErrValidation)
	assertAppError(t, env.batches.Delete(ctx, adminPrincipal, "batch-missing"), appErrors.ErrNotFound)
	require.NoError(t, env.batches.Delete(ctx, adminPrincipal, "batch-empty"))

	_, err := env.batches.Get(ctx, adminPrincipal, "batch-empty")
	assertAppError(t, err, appErrors.ErrNotFound)
}

func TestBatchServiceAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 28)
	ctx := context.Background()

	slots, err := env.batches.AvailableSlots(ctx, counsellorPrincipal, "batch-a")
	require.NoError(t, err)
	assert.Equal(t, 2, slots)

	ok, err := env.batches.HasAvailableCapacity(ctx, facultyPrincipal, "batch-a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.batches.AvailableSlots(ctx, placementPrincipal, "batch-a")
	assertAppError(t, err, appErrors.ErrForbidden)
}

func TestBatchServiceAdjustEnrollmentBounds(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 2, 0)
	ctx := context.Background()

	_, err := env.batches.adjustEnrollment(ctx, "batch-a", -1)
	assertAppError(t, err, appErrors.ErrValidation)

	_, err = env.batches.adjustEnrollment(ctx, "batch-a", 2)
	require.NoError(t, err)

	_, err = env.batches.adjustEnrollment(ctx, "batch-a", 1)
	assertAppError(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, 2, env.store.batch(t, "batch-a").CurrentEnrollment)
}

func TestBatchServiceConcurrentEnrollmentNeverOverbooks(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "Morning", 30, 25)

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.batches.adjustEnrollment(context.Background(), "batch-a", 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if appErrors.FromError(err).Code == appErrors.ErrCapacityExceeded.Code {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, workers-5, rejected)
	assert.Equal(t, 30, env.store.batch(t, "batch-a").CurrentEnrollment)
}

func TestBatchServiceTransferFullTargetLeavesBothUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "A", 30, 20)
	env.store.putBatch("batch-b", "B", 30, 30)

	err := env.tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return env.batches.transfer(ctx, "batch-a", "batch-b")
	})

	assertAppError(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, 20, env.store.batch(t, "batch-a").CurrentEnrollment)
	assert.Equal(t, 30, env.store.batch(t, "batch-b").CurrentEnrollment)
}

func TestBatchServiceTransferMovesSeat(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "A", 30, 20)
	env.store.putBatch("batch-b", "B", 30, 10)

	err := env.tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return env.batches.transfer(ctx, "batch-b", "batch-a")
	})

	require.NoError(t, err)
	assert.Equal(t, 21, env.store.batch(t, "batch-a").CurrentEnrollment)
	assert.Equal(t, 9, env.store.batch(t, "batch-b").CurrentEnrollment)
}

func TestBatchServiceTransferUnknownBatch(t *testing.T) {
	env := newTestEnv(t)
	env.store.putBatch("batch-a", "A", 30, 20)

	err := env.tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return env.batches.transfer(ctx, "batch-a", "batch-missing")
	})

	assertAppError(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 20, env.store.batch(t, "batch-a").CurrentEnrollment)
}
