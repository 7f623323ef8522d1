package acquire

import (
	"context"
	"errors"
	"fmt"
)

// Sentinels returned (wrapped) by platform adapters so failures can be
// classified without string matching here.
var (
	ErrNotFound  = errors.New("remote file not found")
	ErrTooBig    = errors.New("remote file exceeds download limit")
	ErrMalformed = errors.New("malformed file metadata")
	ErrEmpty     = errors.New("downloaded file is empty")
	// ErrUnavailable means the unrestricted path is not configured or connected.
	ErrUnavailable = errors.New("unrestricted download path unavailable")
)

// StatusError is a non-2xx HTTP response from a file endpoint.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected HTTP status %s", e.Status) }

type Kind string

const (
	KindNetwork      Kind = "network"
	KindNotFound     Kind = "not_found"
	KindStatus       Kind = "http_status"
	KindMalformed    Kind = "malformed_metadata"
	KindSizeExceeded Kind = "size_exceeded"
	KindEmpty        Kind = "empty_result"
	KindCanceled     Kind = "canceled"
)

// Error is the AcquisitionError: the failure of the last attempted path,
// plus the primary failure when a fallback was tried.
type Error struct {
	Kind    Kind
	Via     Path
	Err     error
	Primary error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("acquire via %s: %s: %v", e.Via, e.Kind, e.Err)
	if e.Primary != nil {
		msg += fmt.Sprintf(" (primary: %v)", e.Primary)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func classify(err error) Kind {
	var se *StatusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTooBig):
		return KindSizeExceeded
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrEmpty):
		return KindEmpty
	case errors.As(err, &se):
		if se.Code == 404 {
			return KindNotFound
		}
		return KindStatus
	default:
		return KindNetwork
	}
}
