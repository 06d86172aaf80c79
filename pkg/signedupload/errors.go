package signedupload

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the signed upload protocol.
type Kind string

const (
	// Server side
	KindUnauthenticated  Kind = "Unauthenticated"
	KindConfiguration    Kind = "ConfigurationError"
	KindMalformedRequest Kind = "MalformedRequest"
	KindInternal         Kind = "InternalError"

	// Client side
	KindInvalidCredential Kind = "InvalidCredential"
	KindUploadRejected    Kind = "UploadRejected"
	KindNetwork           Kind = "NetworkError"
	KindEncoding          Kind = "EncodingError"
)

// Error types
var (
	// ErrUnauthenticated indicates a missing, invalid or expired bearer token
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "authentication required"}

	// ErrConfiguration indicates the issuance service is missing signing configuration
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "upload signing is not configured"}

	// ErrMalformedRequest indicates a request body that could not be parsed
	ErrMalformedRequest = &Error{Kind: KindMalformedRequest, Message: "malformed request"}

	// ErrInternal indicates an unexpected failure
	ErrInternal = &Error{Kind: KindInternal, Message: "internal error"}

	// ErrInvalidCredential indicates an incomplete credential bundle
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "invalid upload credential"}

	// ErrUploadRejected indicates the storage API refused the upload
	ErrUploadRejected = &Error{Kind: KindUploadRejected, Message: "upload rejected"}

	// ErrNetwork indicates a transport failure, including timeouts and cancellation
	ErrNetwork = &Error{Kind: KindNetwork, Message: "network error"}

	// ErrEncoding indicates a parameter value that cannot be stringified for signing
	ErrEncoding = &Error{Kind: KindEncoding, Message: "parameter encoding failed"}
)

// Error is the error type returned across the protocol. Message is safe to show to end users
// and never carries secret material.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status reported by the remote side, when there was one.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels above work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of err, or "" when err is not a protocol error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry. A retry must start over from credential
// issuance; authentication and configuration failures are never retryable.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}
