package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
)

// memStore is an in-memory KeyUsageStore for pool tests.
type memStore struct {
	records   map[int]model.KeyUsage
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int]model.KeyUsage)}
}

func (s *memStore) Get(_ context.Context, index int) (*model.KeyUsage, error) {
	usage, ok := s.records[index]
	if !ok {
		return nil, nil
	}
	return &usage, nil
}

func (s *memStore) Upsert(_ context.Context, usage model.KeyUsage) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.records[usage.Index] = usage
	return nil
}

func (s *memStore) ListAll(_ context.Context) ([]model.KeyUsage, error) {
	all := make([]model.KeyUsage, 0, len(s.records))
	for i := 0; i < len(s.records); i++ {
		if usage, ok := s.records[i]; ok {
			all = append(all, usage)
		}
	}
	return all, nil
}

var testLimits = Thresholds{DailyLimit: 10000, Warn: 8000, Emergency: 9500}

func newTestPool(t *testing.T, keys []string, limits Thresholds) (*KeyPool, *memStore) {
	t.Helper()

	store := newMemStore()
	pool := NewKeyPool(store, keys, limits)
	pool.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, pool.Init(context.Background()))
	return pool, store
}

func TestKeyPool_InitCreatesRecords(t *testing.T) {
	pool, store := newTestPool(t, []string{"secret-alpha-111111", "secret-beta-222222"}, testLimits)
	ctx := context.Background()

	usage, secret, err := pool.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Index)
	assert.Equal(t, "secret-alpha-111111", secret)
	assert.Equal(t, "111111", usage.Identifier, "identifier is the key tail, not the secret")
	assert.True(t, usage.IsActive)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), usage.LastReset)

	assert.Len(t, store.records, 2)
}

func TestKeyPool_EmptyPool(t *testing.T) {
	pool := NewKeyPool(newMemStore(), nil, testLimits)
	ctx := context.Background()

	assert.ErrorIs(t, pool.Init(ctx), ErrNoKeysConfigured)

	_, _, err := pool.Current(ctx)
	assert.ErrorIs(t, err, ErrNoKeysConfigured)
}

func TestKeyPool_ChargeBelowWarnKeepsActiveIndex(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, pool.ChargeUsage(ctx, 1000))
		if i < 7 {
			assert.Equal(t, 0, pool.ActiveIndex(), "charge %d", i)
		}
	}

	// The 8000th unit crossed the warn threshold; the next call goes to key 1.
	assert.Equal(t, 1, pool.ActiveIndex())

	usage, _, err := pool.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Index)
}

func TestKeyPool_ChargeResetsErrorCount(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa"}, testLimits)
	ctx := context.Background()

	_, err := pool.RecordFailure(ctx, model.KindTransient)
	require.NoError(t, err)
	assert.Equal(t, 1, store.records[0].ErrorCount)

	require.NoError(t, pool.ChargeUsage(ctx, 5))
	assert.Equal(t, 0, store.records[0].ErrorCount)
	assert.Equal(t, 5, store.records[0].QuotaUsed)
	assert.False(t, store.records[0].LastUsed.IsZero())
}

func TestKeyPool_LazyDailyReset(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa"}, testLimits)
	ctx := context.Background()

	require.NoError(t, pool.ChargeUsage(ctx, 500))
	_, err := pool.RecordFailure(ctx, model.KindTransient)
	require.NoError(t, err)

	// Disable manually, then cross a day boundary: counters reset but the
	// key stays disabled.
	record := store.records[0]
	record.IsActive = false
	store.records[0] = record

	pool.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC) }

	usage, _, err := pool.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.QuotaUsed)
	assert.Equal(t, 0, usage.ErrorCount)
	assert.False(t, usage.IsActive, "reset never touches IsActive")
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), usage.LastReset)
}

func TestKeyPool_RotateAllInactive(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb", "key-three-cccccc"}, testLimits)
	ctx := context.Background()

	for i, record := range store.records {
		record.IsActive = false
		store.records[i] = record
	}

	rotated, err := pool.Rotate(ctx, false)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, 0, pool.ActiveIndex(), "failed rotation leaves the pointer unchanged")

	rotated, err = pool.Rotate(ctx, true)
	require.NoError(t, err)
	assert.False(t, rotated, "force does not resurrect disabled keys")
}

func TestKeyPool_ForceRotateBypassesEmergency(t *testing.T) {
	// Pool of 2, limit 10000, warn 8000, emergency 9500. Charge key 0 with
	// 8000 -> next call is key 1. Charge key 1 with 9600, force-rotate ->
	// back to key 0, which is over warn but under emergency.
	pool, _ := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	require.NoError(t, pool.ChargeUsage(ctx, 8000))
	assert.Equal(t, 1, pool.ActiveIndex())

	require.NoError(t, pool.ChargeUsage(ctx, 9600))
	// The preemptive rotation after that charge finds nothing under
	// emergency besides key 0? Key 0 is at 8000 (< 9500), so it is chosen.
	assert.Equal(t, 0, pool.ActiveIndex())

	// Move back onto the overdrawn key and force-rotate away again.
	rotated, err := pool.Rotate(ctx, true)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, 1, pool.ActiveIndex(), "force admits the over-emergency key")

	rotated, err = pool.Rotate(ctx, false)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, 0, pool.ActiveIndex(), "non-forced selection skips the over-emergency key")
}

func TestKeyPool_RecordFailureQuotaExceeded(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb", "key-three-cccccc"}, testLimits)
	ctx := context.Background()

	usable, err := pool.RecordFailure(ctx, model.KindQuotaExceeded)
	require.NoError(t, err)
	assert.True(t, usable)

	assert.Equal(t, testLimits.DailyLimit, store.records[0].QuotaUsed, "usage pinned to the daily limit")
	assert.Equal(t, 1, pool.ActiveIndex())

	// The next UTC day restores the pinned key.
	pool.now = func() time.Time { return time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC) }
	statuses, err := pool.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, statuses[0].QuotaUsed)
	assert.Equal(t, testLimits.DailyLimit, statuses[0].QuotaRemaining)
}

func TestKeyPool_RecordFailureInvalidKey(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	usable, err := pool.RecordFailure(ctx, model.KindInvalidKey)
	require.NoError(t, err)
	assert.True(t, usable)
	assert.False(t, store.records[0].IsActive)
	assert.Equal(t, 1, pool.ActiveIndex())

	// The disabled key survives a daily reset disabled.
	pool.now = func() time.Time { return time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC) }
	statuses, err := pool.Status(ctx)
	require.NoError(t, err)
	assert.False(t, statuses[0].IsActive)
}

func TestKeyPool_RecordFailureTransientRotatesAtThreshold(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	// Two failures stay on the same key.
	for i := 0; i < 2; i++ {
		usable, err := pool.RecordFailure(ctx, model.KindTransient)
		require.NoError(t, err)
		assert.True(t, usable)
		assert.Equal(t, 0, pool.ActiveIndex())
	}
	assert.Equal(t, 2, store.records[0].ErrorCount)

	// The third consecutive failure rotates away immediately, without
	// waiting for a successful charge.
	usable, err := pool.RecordFailure(ctx, model.KindTransient)
	require.NoError(t, err)
	assert.True(t, usable)
	assert.Equal(t, 1, pool.ActiveIndex())
	assert.False(t, store.records[0].LastError.IsZero())
}

func TestKeyPool_RecordFailureSurfacesStoreErrors(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa"}, testLimits)
	ctx := context.Background()

	store.upsertErr = errors.New("disk full")
	_, err := pool.RecordFailure(ctx, model.KindTransient)
	assert.ErrorContains(t, err, "disk full")

	err = pool.ChargeUsage(ctx, 1)
	assert.ErrorContains(t, err, "disk full")
}

func TestKeyPool_SetActive(t *testing.T) {
	pool, store := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	err := pool.SetActive(ctx, 5, false)
	assert.ErrorIs(t, err, ErrUnknownKey)

	// Disabling the active key rotates off it.
	require.NoError(t, pool.SetActive(ctx, 0, false))
	assert.False(t, store.records[0].IsActive)
	assert.Equal(t, 1, pool.ActiveIndex())

	require.NoError(t, pool.SetActive(ctx, 0, true))
	assert.True(t, store.records[0].IsActive)
}

func TestKeyPool_Status(t *testing.T) {
	pool, _ := newTestPool(t, []string{"key-one-aaaaaa", "key-two-bbbbbb"}, testLimits)
	ctx := context.Background()

	require.NoError(t, pool.ChargeUsage(ctx, 1200))

	statuses, err := pool.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, 0, statuses[0].Index)
	assert.Equal(t, "aaaaaa", statuses[0].Identifier)
	assert.Equal(t, 1200, statuses[0].QuotaUsed)
	assert.Equal(t, 8800, statuses[0].QuotaRemaining)
	assert.True(t, statuses[0].Current)
	assert.False(t, statuses[1].Current)
}
