package application

import "github.com/ericfisherdev/quotapool/internal/domain/model"

// consecutiveErrorLimit is the number of consecutive failures after which a
// key is rotated away from even though its quota is not spent.
const consecutiveErrorLimit = 3

// shouldRotateAway reports whether the pool should preemptively move off the
// given key: its usage has crossed the warn threshold, or it has failed too
// many times in a row. Checked after every successful charge and after every
// transient failure, so a key stuck in a failure loop rotates away without
// needing an intervening success.
func shouldRotateAway(usage model.KeyUsage, warnThreshold int) bool {
	if usage.QuotaUsed >= warnThreshold {
		return true
	}
	return usage.ErrorCount >= consecutiveErrorLimit
}

// selectNext scans the pool for the next usable key, starting at
// (startIndex+1) mod len(pool) and wrapping at most once around the full
// pool. Inactive keys are always skipped; keys at or above the emergency
// threshold are skipped unless force is set. The first index surviving both
// filters wins -- selection is strictly scan order, with no load ranking.
// Returns (0, false) when the full scan finds nothing usable.
//
// pool must be ordered by key index so that positions and indexes coincide.
func selectNext(pool []model.KeyUsage, startIndex, emergencyThreshold int, force bool) (int, bool) {
	n := len(pool)
	if n == 0 {
		return 0, false
	}

	for i := 1; i <= n; i++ {
		idx := (startIndex + i) % n
		candidate := pool[idx]

		if !candidate.IsActive {
			continue
		}
		if !force && candidate.QuotaUsed >= emergencyThreshold {
			continue
		}
		return idx, true
	}

	return 0, false
}
