package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
	"github.com/ericfisherdev/quotapool/internal/domain/port/driven"
)

// ErrNoKeysConfigured is returned when the pool was constructed with an
// empty key list. This is a startup misconfiguration, not a runtime state.
var ErrNoKeysConfigured = errors.New("no API keys configured")

// ErrUnknownKey is returned when an operation names a key index outside the
// configured pool.
var ErrUnknownKey = errors.New("unknown key index")

// Thresholds holds the three quota levels governing the pool, all expressed
// in the same abstract units as call costs.
type Thresholds struct {
	// DailyLimit is the hard per-key daily quota.
	DailyLimit int
	// Warn is the usage level at which the pool preemptively rotates away
	// from a key after a successful charge.
	Warn int
	// Emergency is the usage level above which a key is excluded from
	// non-forced selection.
	Emergency int
}

// KeyPool owns the active-key pointer and is the only component that mutates
// KeyUsage records. All operations run under a single mutex spanning the
// whole read-decide-mutate-persist sequence, so concurrent callers cannot
// interleave between a threshold check and the charge that follows it.
//
// The active index is process-lifetime state: it starts at 0 and is not
// persisted. Quota counters are durable and lazily reset at UTC day
// boundaries on every read path.
type KeyPool struct {
	mu     sync.Mutex
	store  driven.KeyUsageStore
	keys   []string
	limits Thresholds
	active int

	// now is swapped out in tests to cross day boundaries deterministically.
	now func() time.Time
}

// NewKeyPool creates a pool over the given ordered key secrets. Key indexes
// are assigned in slice order and remain stable for the process lifetime.
func NewKeyPool(store driven.KeyUsageStore, keys []string, limits Thresholds) *KeyPool {
	return &KeyPool{
		store:  store,
		keys:   keys,
		limits: limits,
		now:    time.Now,
	}
}

// Size returns the number of configured keys.
func (p *KeyPool) Size() int {
	return len(p.keys)
}

// ActiveIndex returns the index new calls are currently issued against.
func (p *KeyPool) ActiveIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Init creates a usage record for every configured key that does not have
// one yet, and applies any pending daily reset to the ones that do. Called
// once at startup. Records for keys no longer configured are left in place
// and ignored.
func (p *KeyPool) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return ErrNoKeysConfigured
	}

	for i := range p.keys {
		if _, err := p.usageLocked(ctx, i); err != nil {
			return err
		}
	}

	slog.Info("key pool initialized",
		"keys", len(p.keys),
		"daily_limit", p.limits.DailyLimit,
		"warn_threshold", p.limits.Warn,
		"emergency_threshold", p.limits.Emergency,
	)
	return nil
}

// Current returns the usage record for the active key together with its
// secret, applying a lazy daily reset first. The record is a copy; callers
// never mutate pool state directly.
func (p *KeyPool) Current(ctx context.Context) (model.KeyUsage, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return model.KeyUsage{}, "", ErrNoKeysConfigured
	}

	usage, err := p.usageLocked(ctx, p.active)
	if err != nil {
		return model.KeyUsage{}, "", err
	}
	return usage, p.keys[p.active], nil
}

// ChargeUsage charges the active key for a successful call: usage grows by
// units, LastUsed is stamped, and the consecutive-error counter resets.
// Afterwards the preemptive rotation check runs; crossing the warn threshold
// moves the pool to another key for the next call, without affecting the
// call just charged.
func (p *KeyPool) ChargeUsage(ctx context.Context, units int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return ErrNoKeysConfigured
	}

	usage, err := p.usageLocked(ctx, p.active)
	if err != nil {
		return err
	}

	usage.QuotaUsed += units
	usage.LastUsed = p.now()
	usage.ErrorCount = 0
	if err := p.store.Upsert(ctx, usage); err != nil {
		return fmt.Errorf("charge key %d: %w", usage.Index, err)
	}

	slog.Info("quota charged",
		"key", usage.Identifier,
		"units", units,
		"used", usage.QuotaUsed,
		"limit", p.limits.DailyLimit,
	)

	if shouldRotateAway(usage, p.limits.Warn) {
		slog.Info("preemptive rotation", "key", usage.Identifier, "used", usage.QuotaUsed)
		if _, err := p.rotateLocked(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// Rotate moves the active pointer to the next usable key. With force set,
// keys over the emergency threshold become eligible again; inactive keys
// never are. Returns false, leaving the pointer unchanged, when the full
// scan finds nothing usable -- the caller's signal that the pool is
// exhausted.
func (p *KeyPool) Rotate(ctx context.Context, force bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotateLocked(ctx, force)
}

// RecordFailure applies the consequences of a failed call on the active key,
// according to the already-classified kind:
//
//   - KindQuotaExceeded: usage is pinned to the daily limit so the key is
//     excluded from selection until the next UTC reset, then rotate.
//   - KindInvalidKey: the key is disabled until manually re-enabled, then
//     rotate.
//   - KindTransient: the consecutive-error counter grows; once it crosses
//     the rotation threshold the pool rotates away immediately, without
//     waiting for a success-path check.
//
// The returned bool reports whether the pool still has a usable key: false
// means a rotation was needed and the full scan found nothing.
func (p *KeyPool) RecordFailure(ctx context.Context, kind model.ErrorKind) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return false, ErrNoKeysConfigured
	}

	usage, err := p.usageLocked(ctx, p.active)
	if err != nil {
		return false, err
	}

	usage.ErrorCount++
	usage.LastError = p.now()

	switch kind {
	case model.KindQuotaExceeded:
		slog.Warn("daily quota exceeded", "key", usage.Identifier)
		usage.QuotaUsed = p.limits.DailyLimit
		if err := p.store.Upsert(ctx, usage); err != nil {
			return false, fmt.Errorf("record quota failure for key %d: %w", usage.Index, err)
		}
		return p.rotateLocked(ctx, false)

	case model.KindInvalidKey:
		slog.Error("API key rejected, disabling", "key", usage.Identifier)
		usage.IsActive = false
		if err := p.store.Upsert(ctx, usage); err != nil {
			return false, fmt.Errorf("record invalid-key failure for key %d: %w", usage.Index, err)
		}
		return p.rotateLocked(ctx, false)

	default:
		slog.Warn("transient failure", "key", usage.Identifier, "consecutive_errors", usage.ErrorCount)
		if err := p.store.Upsert(ctx, usage); err != nil {
			return false, fmt.Errorf("record failure for key %d: %w", usage.Index, err)
		}
		if shouldRotateAway(usage, p.limits.Warn) {
			return p.rotateLocked(ctx, false)
		}
		return true, nil
	}
}

// SetActive enables or disables a key by index. Disabling is how operators
// retire a bad credential; a disabled key is never selected until re-enabled
// here. Disabling the currently active key also triggers a rotation attempt
// so the next call does not land on it.
func (p *KeyPool) SetActive(ctx context.Context, index int, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.keys) {
		return fmt.Errorf("%w: %d", ErrUnknownKey, index)
	}

	usage, err := p.usageLocked(ctx, index)
	if err != nil {
		return err
	}

	usage.IsActive = active
	if err := p.store.Upsert(ctx, usage); err != nil {
		return fmt.Errorf("set key %d active=%t: %w", index, active, err)
	}
	slog.Info("key activation changed", "key", usage.Identifier, "is_active", active)

	if !active && index == p.active {
		if _, err := p.rotateLocked(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// Status returns a read-only snapshot of every configured key, applying lazy
// resets first. This is the sole read surface for reporting layers; it
// exposes display identifiers only, never secrets.
func (p *KeyPool) Status(ctx context.Context) ([]model.KeyStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool, err := p.loadAllLocked(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]model.KeyStatus, 0, len(pool))
	for _, usage := range pool {
		statuses = append(statuses, model.KeyStatus{
			Index:          usage.Index,
			Identifier:     usage.Identifier,
			QuotaUsed:      usage.QuotaUsed,
			QuotaRemaining: usage.Remaining(p.limits.DailyLimit),
			IsActive:       usage.IsActive,
			ErrorCount:     usage.ErrorCount,
			LastUsed:       usage.LastUsed,
			Current:        usage.Index == p.active,
		})
	}
	return statuses, nil
}

// rotateLocked scans for the next usable key and moves the active pointer.
// Callers must hold p.mu.
func (p *KeyPool) rotateLocked(ctx context.Context, force bool) (bool, error) {
	pool, err := p.loadAllLocked(ctx)
	if err != nil {
		return false, err
	}

	next, ok := selectNext(pool, p.active, p.limits.Emergency, force)
	if !ok {
		slog.Error("no usable API key in pool", "keys", len(p.keys), "force", force)
		return false, nil
	}

	if next != p.active {
		slog.Info("rotated API key",
			"from", pool[p.active].Identifier,
			"to", pool[next].Identifier,
			"used", pool[next].QuotaUsed,
			"limit", p.limits.DailyLimit,
		)
	}
	p.active = next
	return true, nil
}

// loadAllLocked returns the usage record for every configured key in index
// order, applying lazy resets. Orphaned records for keys no longer
// configured are ignored. Callers must hold p.mu.
func (p *KeyPool) loadAllLocked(ctx context.Context) ([]model.KeyUsage, error) {
	pool := make([]model.KeyUsage, 0, len(p.keys))
	for i := range p.keys {
		usage, err := p.usageLocked(ctx, i)
		if err != nil {
			return nil, err
		}
		pool = append(pool, usage)
	}
	return pool, nil
}

// usageLocked loads the record for one key, creating it if absent and
// resetting it if a UTC day boundary has passed since its last reset. A
// reset zeroes usage and the error counter but never touches IsActive, so a
// manually disabled key stays disabled across days. Callers must hold p.mu.
func (p *KeyPool) usageLocked(ctx context.Context, index int) (model.KeyUsage, error) {
	now := p.now()

	usage, err := p.store.Get(ctx, index)
	if err != nil {
		return model.KeyUsage{}, fmt.Errorf("load key %d: %w", index, err)
	}

	if usage == nil {
		created := model.KeyUsage{
			Index:      index,
			Identifier: model.KeyIdentifier(p.keys[index]),
			IsActive:   true,
			LastReset:  startOfDayUTC(now),
		}
		if err := p.store.Upsert(ctx, created); err != nil {
			return model.KeyUsage{}, fmt.Errorf("create key %d: %w", index, err)
		}
		return created, nil
	}

	if resetDue(usage.LastReset, now) {
		usage.QuotaUsed = 0
		usage.ErrorCount = 0
		usage.LastReset = startOfDayUTC(now)
		if err := p.store.Upsert(ctx, *usage); err != nil {
			return model.KeyUsage{}, fmt.Errorf("reset key %d: %w", index, err)
		}
		slog.Info("daily quota reset", "key", usage.Identifier)
	}

	return *usage, nil
}
