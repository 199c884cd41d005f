package model

// ErrorKind classifies a failed remote call into the categories the pool
// manager understands. Classification happens once, at the transport
// boundary; the core never inspects vendor-specific error shapes.
type ErrorKind int

const (
	// KindQuotaExceeded means the key's daily quota is spent. Recoverable by
	// rotating to another key; the offending key is pinned to the daily
	// limit until the next UTC reset.
	KindQuotaExceeded ErrorKind = iota
	// KindInvalidKey means the credential itself was rejected. Recoverable
	// by rotation; the offending key is disabled until manually re-enabled.
	KindInvalidKey
	// KindTransient covers server-side and rate-limit failures that may
	// clear on retry. Rotation is triggered only after the consecutive
	// failure threshold is crossed.
	KindTransient
	// KindNonRetryable covers everything rotation cannot fix (malformed
	// request, caller cancellation). Propagated immediately.
	KindNonRetryable
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindInvalidKey:
		return "invalid_key"
	case KindTransient:
		return "transient"
	case KindNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}
