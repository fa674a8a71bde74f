package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// FailureKind classifies an origin API failure for propagation decisions.
type FailureKind string

const (
	// KindAuth indicates an expired or invalid credential.
	KindAuth FailureKind = "auth"
	// KindRateLimited indicates the request budget is exhausted.
	KindRateLimited FailureKind = "rate_limited"
	// KindNotFound indicates the resource is absent or inaccessible.
	KindNotFound FailureKind = "not_found"
	// KindTransient indicates a network or service-side failure.
	KindTransient FailureKind = "transient"
)

// APIError is a classified origin API failure.
type APIError struct {
	Kind    FailureKind
	Op      string
	Status  int
	ResetAt time.Time
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the failure kind of err, or empty when err is not classified.
func KindOf(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsFatal reports whether err must abort a whole report request. Auth and
// exhausted rate-limit failures cannot succeed for any repository, so per-repo
// retries would only waste budget.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindRateLimited:
		return true
	}
	return false
}

// ResetTime reports the rate-limit reset time carried by err, if any.
func ResetTime(err error) (time.Time, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.ResetAt.IsZero() {
		return apiErr.ResetAt, true
	}
	return time.Time{}, false
}

func classifyStatus(op string, statusCode int, rate RateInfo) *APIError {
	switch {
	case statusCode == http.StatusUnauthorized:
		return &APIError{Kind: KindAuth, Op: op, Status: statusCode}
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusForbidden && rate.Remaining == 0 && rate.ResetUnix > 0:
		return &APIError{
			Kind:    KindRateLimited,
			Op:      op,
			Status:  statusCode,
			ResetAt: time.Unix(rate.ResetUnix, 0).UTC(),
		}
	case statusCode == http.StatusForbidden, statusCode == http.StatusNotFound:
		// A 403 without an exhausted budget is a permission wall; callers
		// treat it the same as an absent resource.
		return &APIError{Kind: KindNotFound, Op: op, Status: statusCode}
	case statusCode >= 500:
		return &APIError{Kind: KindTransient, Op: op, Status: statusCode}
	default:
		return &APIError{Kind: KindTransient, Op: op, Status: statusCode}
	}
}

func transientError(op string, err error) *APIError {
	return &APIError{Kind: KindTransient, Op: op, Err: err}
}
