package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker()
	locker.clock = func() time.Time { return current }

	release, err := locker.TryLock(ctx, "digest:p", time.Minute)
	require.NoError(t, err)
	_, err = locker.TryLock(ctx, "digest:p", time.Minute)
	require.ErrorIs(t, err, ErrLocked)
	_, err = locker.TryLock(ctx, "digest:q", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = locker.TryLock(ctx, "digest:p", time.Minute)
	require.NoError(t, err)
}

func TestMemoryLockerExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker()
	locker.clock = func() time.Time { return current }

	staleRelease, err := locker.TryLock(ctx, "digest:p", time.Minute)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = locker.TryLock(ctx, "digest:p", time.Minute)
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))
	_, err = locker.TryLock(ctx, "digest:p", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
}
