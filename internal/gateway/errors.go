package gateway

import (
	"errors"
	"fmt"
)

// maxErrorBody caps stored upstream bodies so sheet/log columns stay readable
const maxErrorBody = 500

// ErrQuotaExhausted means the local hourly quota is spent. The request was
// rejected before any network traffic.
var ErrQuotaExhausted = errors.New("hourly call quota exhausted")

// ErrUpstreamRateLimited means the remote API reported a rate limit (HTTP
// 429 or a rate-limit error code in the body). Batch loops must stop sending
// when they see this.
var ErrUpstreamRateLimited = errors.New("upstream rate limited")

// UpstreamError is any other non-200 or malformed upstream response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// TransportError wraps a network-level failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Truncate caps s at n bytes for storage and display.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
