package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Class is the single source of truth for whether a remote failure may be
// retried. The executor consumes it; it never classifies on its own.
type Class string

const (
	// ClassToken is an invalid or expired credential. Never retried.
	ClassToken Class = "TOKEN_ERROR"
	// ClassRateLimit is upstream throttling. Retryable with backoff.
	ClassRateLimit Class = "RATE_LIMIT"
	// ClassPermission is an insufficient scope or grant. Never retried.
	ClassPermission Class = "PERMISSION_ERROR"
	// ClassTransient is an upstream server error or network blip. Retryable.
	ClassTransient Class = "TRANSIENT"
	// ClassUnknown is unclassified and treated as fatal; an unknown failure
	// is never retried indefinitely.
	ClassUnknown Class = "UNKNOWN"
)

// Transient reports whether the class is retryable.
func (c Class) Transient() bool {
	return c == ClassRateLimit || c == ClassTransient
}

// Suggestion returns a remediation hint surfaced on terminal failures.
func (c Class) Suggestion() string {
	switch c {
	case ClassToken:
		return "the access token is invalid or expired; set AD_LIBRARY_ACCESS_TOKEN to a fresh token"
	case ClassRateLimit:
		return "the upstream is throttling requests; lower the request rate or retry later"
	case ClassPermission:
		return "the credential lacks the required scope; re-grant access in the source platform"
	case ClassTransient:
		return "the upstream failed transiently; retrying usually succeeds"
	default:
		return "inspect the underlying error before retrying"
	}
}

// Error attaches a Class to an underlying error. Producers (API client,
// browser session) wrap their failures; Classify recovers the class anywhere
// up the call chain.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return string(e.Class) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Classified wraps err with the given class.
func Classified(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Classify recovers the class of err. Unwrapped context deadline and network
// timeout failures are transient (a single-operation timeout is retryable up
// to the ceiling); anything else unclassified is unknown, which is fatal.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassUnknown
}

// ClassifyStatus maps an HTTP response status to a class. 401 is a
// credential problem, 403 a grant problem, 429 throttling, and 5xx a
// transient upstream fault.
func ClassifyStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized:
		return ClassToken
	case status == http.StatusForbidden:
		return ClassPermission
	case status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status >= 500:
		return ClassTransient
	default:
		return ClassUnknown
	}
}
