package model

import "time"

// identifierLen is how many trailing characters of a secret are kept as its
// display identifier. Enough to tell keys apart in logs without exposing them.
const identifierLen = 6

// KeyUsage tracks daily quota consumption and failure state for one API key
// in the pool. Keys are identified by their position in the configured key
// list; the position is stable for the process lifetime. The full secret is
// never stored -- only the trailing characters as a display identifier.
type KeyUsage struct {
	Index      int
	Identifier string
	QuotaUsed  int
	LastReset  time.Time
	LastUsed   time.Time // zero when the key has never been charged
	IsActive   bool
	ErrorCount int       // consecutive failures; reset to 0 on any successful charge
	LastError  time.Time // zero when the key has never failed
}

// Remaining returns the quota units left before the daily limit.
// Never negative, even when QuotaUsed has been pinned to the limit.
func (k KeyUsage) Remaining(dailyLimit int) int {
	if k.QuotaUsed >= dailyLimit {
		return 0
	}
	return dailyLimit - k.QuotaUsed
}

// KeyIdentifier derives the display identifier for a secret: its last few
// characters, or the whole string when the secret is shorter than that.
func KeyIdentifier(secret string) string {
	if len(secret) <= identifierLen {
		return secret
	}
	return secret[len(secret)-identifierLen:]
}

// KeyStatus is the read-only observability view of one pool entry, as
// returned by the pool status snapshot. It carries the display identifier,
// never the secret.
type KeyStatus struct {
	Index          int
	Identifier     string
	QuotaUsed      int
	QuotaRemaining int
	IsActive       bool
	ErrorCount     int
	LastUsed       time.Time
	Current        bool // true for the key new calls are issued against
}
