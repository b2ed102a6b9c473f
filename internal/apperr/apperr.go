// Package apperr defines the failure taxonomy shared by the status, capture
// and log flows. Every failure returned to a caller carries a Kind so that
// "offline" can be told apart from "live but unparseable" and so on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates failure reasons.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindNoLiveRoom          Kind = "no_live_room"
	KindManifestUnavailable Kind = "manifest_unavailable"
	KindNoStreamVariant     Kind = "no_stream_variant"
	KindProcessFailure      Kind = "process_failure"
	KindProcessTimeout      Kind = "process_timeout"
	KindFilesystemFailure   Kind = "filesystem_failure"
	KindNotFound            Kind = "not_found"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Message: "upstream fetch failed"}
	ErrNoLiveRoom          = &Error{Kind: KindNoLiveRoom, Message: "not live"}
	ErrManifestUnavailable = &Error{Kind: KindManifestUnavailable, Message: "manifest unavailable"}
	ErrNoStreamVariant     = &Error{Kind: KindNoStreamVariant, Message: "no stream variant available"}
	ErrProcessFailure      = &Error{Kind: KindProcessFailure, Message: "process failed"}
	ErrProcessTimeout      = &Error{Kind: KindProcessTimeout, Message: "process timed out"}
	ErrFilesystemFailure   = &Error{Kind: KindFilesystemFailure, Message: "filesystem failure"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
)

// Error is a classified failure. Status is the upstream HTTP status when the
// failure came from a page fetch, zero otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Upstream returns an UpstreamUnavailable error carrying the response status.
func Upstream(status int, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: "upstream fetch failed", Status: status, Cause: cause}
}

// KindOf extracts the Kind from err's chain. Unclassified errors report "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a failure to the status code served by the HTTP adapter.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindNoLiveRoom, KindNotFound:
		return http.StatusNotFound
	case KindManifestUnavailable, KindNoStreamVariant:
		return http.StatusUnprocessableEntity
	case KindProcessTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
