package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/verification"
)

// TestCardKeyLocking exercises the optimistic lock against a real
// database: concurrent lock attempts on one single-use key must produce
// exactly one winner.
func TestCardKeyLocking(t *testing.T, keys *cardkey.Store) {
	ctx := context.Background()

	codes, err := keys.Generate(ctx, 1, cardkey.GenerateOptions{BatchNo: "locking"})
	require.NoError(t, err)
	code := codes[0]

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = keys.Lock(ctx, code, fmt.Sprintf("job-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, cardkey.ErrKeyUnavailable)
		}
	}
	assert.Equal(t, 1, winners)

	key, err := keys.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, cardkey.StatusLocked, key.Status)

	t.Run("consume releases to consumed", func(t *testing.T) {
		require.NoError(t, keys.Consume(ctx, code))
		key, err := keys.Get(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, cardkey.StatusConsumed, key.Status)
		assert.Equal(t, 1, key.UsedCount)
		assert.Nil(t, key.LockJobID)
	})

	t.Run("consumed key cannot be locked again", func(t *testing.T) {
		err := keys.Lock(ctx, code, "job-late")
		assert.ErrorIs(t, err, cardkey.ErrKeyExhausted)
	})
}

// TestJobLifecycle walks one job from creation through settlement using
// the persistent store.
func TestJobLifecycle(t *testing.T, keys *cardkey.Store, jobs verification.JobStore) {
	ctx := context.Background()
	const verificationID = "6a000000000000000000d0d0"

	codes, err := keys.Generate(ctx, 1, cardkey.GenerateOptions{BatchNo: "lifecycle"})
	require.NoError(t, err)
	code := codes[0]

	job, err := jobs.CreateWithLock(ctx, "https://verify.example.com/verify?verificationId="+verificationID, code, verificationID)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusQueued, job.Status)
	assert.Equal(t, code, job.CardKeyCode)

	t.Run("lock and insert are atomic", func(t *testing.T) {
		key, err := keys.Get(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, cardkey.StatusLocked, key.Status)
		require.NotNil(t, key.LockJobID)
		assert.Equal(t, job.ID, *key.LockJobID)
	})

	t.Run("second job on a locked key fails without a row", func(t *testing.T) {
		_, err := jobs.CreateWithLock(ctx, "https://verify.example.com/verify?verificationId="+verificationID, code, verificationID)
		assert.ErrorIs(t, err, cardkey.ErrKeyUnavailable)
	})

	t.Run("find active sees the queued job", func(t *testing.T) {
		found, err := jobs.FindActive(ctx, verificationID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, job.ID, found.ID)
	})

	t.Run("settle records outcome and duration", func(t *testing.T) {
		require.NoError(t, jobs.MarkProcessing(ctx, job.ID, job.CreatedAt, verificationID))
		require.NoError(t, jobs.Settle(ctx, job.ID, verification.Result{
			Status:    verification.StatusSuccess,
			ResultURL: "https://verify.example.com/r/1",
		}))
		require.NoError(t, keys.Consume(ctx, code))

		settled, err := jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, verification.StatusSuccess, settled.Status)
		assert.Equal(t, "https://verify.example.com/r/1", settled.ResultURL)
		require.NotNil(t, settled.FinishedAt)
		require.NotNil(t, settled.DurationMs)
	})

	t.Run("referenced key cannot be deleted", func(t *testing.T) {
		err := keys.Delete(ctx, code)
		assert.ErrorIs(t, err, cardkey.ErrKeyReferenced)
	})

	t.Run("find latest by card key", func(t *testing.T) {
		found, err := jobs.FindLatest(ctx, code, "")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, job.ID, found.ID)
	})
}
