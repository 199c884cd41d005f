// Package application contains the key pool manager and request executor.
package application

import "time"

// resetDue reports whether a daily quota reset is due: true iff the UTC
// calendar date of now is strictly later than the UTC calendar date of
// lastReset. Resets are applied lazily on every record read, so no
// background timer is needed and a record is never stale by more than the
// caller's own check cadence.
func resetDue(lastReset, now time.Time) bool {
	lr := lastReset.UTC()
	n := now.UTC()

	ly, lm, ld := lr.Date()
	ny, nm, nd := n.Date()

	if ny != ly {
		return ny > ly
	}
	if nm != lm {
		return nm > lm
	}
	return nd > ld
}

// startOfDayUTC truncates t to midnight UTC. Used as the LastReset value so
// a reset timestamp always falls on the day boundary it represents.
func startOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
