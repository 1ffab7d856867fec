package syncano

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidState is returned by [PollSession.Start] when the session is
	// not idle. Stopped sessions cannot be restarted; create a new one.
	ErrInvalidState = errors.New("syncano: invalid poll session state")

	// ErrOrderingViolation matches any [OrderingViolationError].
	ErrOrderingViolation = errors.New("syncano: event ordering violation")

	// ErrMalformedResponse is wrapped by errors raised for response bodies
	// that cannot be interpreted.
	ErrMalformedResponse = errors.New("syncano: malformed response")

	// ErrUnknownEvent is returned by [PollSession.On] for names other than
	// message, create, update and delete.
	ErrUnknownEvent = errors.New("syncano: unknown event name")

	// ErrNotFound is returned by First when a query matches nothing. It also
	// matches any *HTTPError with status 404.
	ErrNotFound = errors.New("syncano: not found")
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	CallID     string
	Method     string
	Path       string
	StatusCode int

	// Detail is the "detail" field of a JSON error body, if any.
	Detail string

	// Body is the raw response body.
	Body []byte
}

func (e *HTTPError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "syncano: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Detail != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Detail)
	} else if len(e.Body) > 0 {
		buf.WriteString(": ")
		if utf8.Valid(e.Body) && len(e.Body) <= 512 {
			buf.Write(e.Body)
		} else {
			fmt.Fprintf(&buf, "<%d bytes>", len(e.Body))
		}
	}
	if e.CallID != "" {
		buf.WriteString(" [call ")
		buf.WriteString(e.CallID)
		buf.WriteString("]")
	}
	return buf.String()
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Transient reports whether retrying the same request may succeed.
func (e *HTTPError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return true
	default:
		return false
	}
}

// Fields decodes a JSON error body of the {"field": ["message"]} form that
// the API returns for rejected input. It returns nil if the body has a
// different shape.
func (e *HTTPError) Fields() map[string][]string {
	var fields map[string][]string
	if err := json.Unmarshal(e.Body, &fields); err != nil {
		return nil
	}
	return fields
}

func newHTTPError(callID, method, path string, status int, body []byte) *HTTPError {
	e := &HTTPError{
		CallID:     callID,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       body,
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil {
		e.Detail = detail.Detail
	}
	return e
}

// TransportError is returned when no HTTP response was received, or the
// response could not be read.
type TransportError struct {
	CallID   string
	Method   string
	Path     string
	TimedOut bool
	Cause    error
}

func (e *TransportError) Error() string {
	kind := "network"
	if e.TimedOut {
		kind = "timeout"
	}
	return fmt.Sprintf("syncano: %s %s: %s: %v [call %s]", e.Method, e.Path, kind, e.Cause, e.CallID)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// OrderingViolationError reports an event id that does not move the cursor
// forward.
type OrderingViolationError struct {
	LastID int64
	GotID  int64
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("syncano: event id %d is not greater than last id %d", e.GotID, e.LastID)
}

func (e *OrderingViolationError) Is(target error) bool {
	return target == ErrOrderingViolation
}

// ValidationError is returned when a model fails local validation. It wraps
// the per-field errors produced by the validation rules.
type ValidationError struct {
	Model string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("syncano: invalid %s: %v", e.Model, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is worth retrying: network failures,
// client-side timeouts, HTTP 408, 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Transient()
	}
	return false
}
