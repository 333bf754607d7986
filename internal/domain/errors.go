package domain

import (
	"errors"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNetwork           = errors.New("network error")
	ErrAuthentication    = errors.New("bad API key")
	ErrRequestRejected   = errors.New("capture request rejected")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRemoteJob         = errors.New("capture job failed")
	ErrDownload          = errors.New("download failed")
	ErrPollLimit         = errors.New("poll limit reached")

	ErrCaptureNotFound = errors.New("capture not found")
)

// Error carries an error kind together with diagnostic text and the
// underlying cause, if any.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

// NewError builds an *Error of the given kind.
func NewError(kind error, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrAuthentication, "authentication"},
	{ErrRequestRejected, "request_rejected"},
	{ErrMalformedResponse, "malformed_response"},
	{ErrRemoteJob, "remote_job"},
	{ErrDownload, "download"},
	{ErrPollLimit, "poll_limit"},
	{ErrNetwork, "network"},
}

// KindOf returns a short name for the kind of err, or "" if err carries none.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return ""
}

// DetailOf returns the diagnostic text attached to err, if any.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}
