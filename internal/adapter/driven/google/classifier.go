// Package google adapts Google-API-style transport errors and probing to the
// driven ports the pool core understands.
package google

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"google.golang.org/api/googleapi"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
	"github.com/ericfisherdev/quotapool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ErrorClassifier = (*Classifier)(nil)

// Error reasons the Google API attaches to structured error items. These are
// stable, typed identifiers -- classification never matches on message text.
const (
	reasonQuotaExceeded      = "quotaExceeded"
	reasonDailyLimitExceeded = "dailyLimitExceeded"
	reasonRateLimitExceeded  = "rateLimitExceeded"
	reasonUserRateLimit      = "userRateLimitExceeded"
	reasonKeyInvalid         = "keyInvalid"
	reasonKeyExpired         = "keyExpired"
)

// Classifier maps Google API transport errors into the pool's four-kind
// taxonomy using the typed *googleapi.Error structure.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps err to an ErrorKind:
//
//   - quotaExceeded / dailyLimitExceeded reasons -> KindQuotaExceeded
//   - keyInvalid / keyExpired reasons or HTTP 401 -> KindInvalidKey
//   - rate-limit reasons and HTTP 5xx -> KindTransient
//   - caller cancellation, network failures, and everything else ->
//     KindNonRetryable (rotating keys cannot fix them)
func (Classifier) Classify(err error) model.ErrorKind {
	if err == nil {
		return model.KindNonRetryable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.KindNonRetryable
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if hasReason(apiErr, reasonQuotaExceeded, reasonDailyLimitExceeded) {
			return model.KindQuotaExceeded
		}
		if apiErr.Code == http.StatusUnauthorized || hasReason(apiErr, reasonKeyInvalid, reasonKeyExpired) {
			return model.KindInvalidKey
		}
		if apiErr.Code >= 500 || hasReason(apiErr, reasonRateLimitExceeded, reasonUserRateLimit) {
			return model.KindTransient
		}
		return model.KindNonRetryable
	}

	// Connection-level failures are not credential problems; retrying on a
	// different key would mask the true failure.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.KindNonRetryable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return model.KindNonRetryable
	}

	return model.KindNonRetryable
}

// hasReason reports whether any structured error item carries one of the
// given reasons.
func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
