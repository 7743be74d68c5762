package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// TimeoutError covers connect and read timeouts.
type TimeoutError struct{ Cause error }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Cause) }
func (e *TimeoutError) Unwrap() error { return e.Cause }

// ConnectionResetError covers the peer tearing down the TCP connection.
type ConnectionResetError struct{ Cause error }

func (e *ConnectionResetError) Error() string { return fmt.Sprintf("connection reset: %v", e.Cause) }
func (e *ConnectionResetError) Unwrap() error { return e.Cause }

// HTTPStatusError is returned for any non-200 response.
type HTTPStatusError struct{ Status int }

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("http %d", e.Status) }

// Retryable reports whether the worker pool should retry this status per
// §4.5: 5xx and 429 are transient, other 4xx are not.
func (e *HTTPStatusError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// TLSError covers certificate verification failures. Other handshake
// failures are classified as TimeoutError, ConnectionResetError or
// AbortedError by classify.
type TLSError struct{ Cause error }

func (e *TLSError) Error() string { return fmt.Sprintf("tls: %v", e.Cause) }
func (e *TLSError) Unwrap() error { return e.Cause }

// DNSError covers resolution failures.
type DNSError struct{ Cause error }

func (e *DNSError) Error() string { return fmt.Sprintf("dns: %v", e.Cause) }
func (e *DNSError) Unwrap() error { return e.Cause }

// AbortedError covers context cancellation and request construction failures.
type AbortedError struct{ Cause error }

func (e *AbortedError) Error() string { return fmt.Sprintf("aborted: %v", e.Cause) }
func (e *AbortedError) Unwrap() error { return e.Cause }

// classify maps an error from http.Client.Do/io into one of the types
// above. There is no third-party HTTP error-classification library in the
// dependency pack, and no component needs more than these five buckets, so
// this walks the stdlib net/net-url/crypto-tls error hierarchy directly —
// the same hierarchy the teacher's own http.Client construction already
// relies on implicitly.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortedError{Cause: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &TimeoutError{Cause: err}
		}
		err = urlErr.Err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DNSError{Cause: err}
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &TLSError{Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "read" || opErr.Op == "write" {
			return &ConnectionResetError{Cause: err}
		}
	}

	return &AbortedError{Cause: err}
}

// IsRetryable reports whether err belongs to a class §4.5 retries:
// NetworkError (timeout/DNS/TLS/reset) or a retryable HTTP status.
func IsRetryable(err error) bool {
	var t *TimeoutError
	var c *ConnectionResetError
	var d *DNSError
	var tl *TLSError
	var h *HTTPStatusError
	switch {
	case errors.As(err, &t), errors.As(err, &c), errors.As(err, &d), errors.As(err, &tl):
		return true
	case errors.As(err, &h):
		return h.Retryable()
	}
	return false
}
