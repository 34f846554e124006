package index

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes. Every error returned by a Client or Transport wraps
// exactly one of these.
var (
	// ErrNotFound means the index does not know the project (404/410).
	ErrNotFound = errors.New("not found on index")
	// ErrRestricted means the index refused access: an authentication or
	// permission status, or a host outside the allowlist.
	ErrRestricted = errors.New("access to index restricted")
	// ErrUnavailable covers transport failures, timeouts, exhausted
	// retries, server errors and unparsable responses.
	ErrUnavailable = errors.New("index unavailable")
)

// ErrDigestMismatch is returned when downloaded content does not match
// the digest the index published for it.
var ErrDigestMismatch = errors.New("content digest mismatch")

// FetchError reports a failed request against an index.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Class      error
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Class.Error() + ": " + e.URL
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the failure class and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Class, e.Err}
	}
	return []error{e.Class}
}

// classifyStatus maps a non-2xx HTTP status to a failure class.
func classifyStatus(status int) error {
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusProxyAuthRequired, http.StatusUnavailableForLegalReasons:
		return ErrRestricted
	default:
		return ErrUnavailable
	}
}

// IsFallbackable reports whether err is one of the index failure classes,
// as opposed to a caller error such as a cancelled context.
func IsFallbackable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRestricted) || errors.Is(err, ErrUnavailable)
}
