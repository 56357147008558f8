// internal/domain/entity/errors.go
package entity

import "fmt"

// AuthError means the token refresh exchange failed. No device call can
// proceed without a token, so the remaining device work for the current
// tick is abandoned.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// FeedError means the calendar feed could not be fetched or parsed. The
// tick is skipped, not failed.
type FeedError struct {
	Err error
}

func (e *FeedError) Error() string { return fmt.Sprintf("calendar feed: %v", e.Err) }
func (e *FeedError) Unwrap() error { return e.Err }

// DeviceAPIError is a device-management API failure after retries were
// exhausted or for a non-retryable response. StatusCode is zero for
// connection-level failures.
type DeviceAPIError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeviceAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("device api %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("device api %s: %v", e.Operation, e.Err)
}

func (e *DeviceAPIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class can self-resolve: connection
// failures and transient HTTP responses are retried, malformed-request and
// auth-rejection responses are not.
func (e *DeviceAPIError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch e.StatusCode {
	case 408, 429:
		return true
	}
	return e.StatusCode >= 500
}

// PolicyError marks a single malformed calendar entry. The entry is
// skipped with a warning; sibling entries are still processed.
type PolicyError struct {
	Summary string
	Err     error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("calendar entry %q: %v", e.Summary, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }
