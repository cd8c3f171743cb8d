// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"net"

	"golang.org/x/text/encoding"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat backend client.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int // HTTP status for transport errors, 0 otherwise
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota

	// ErrTypeConfiguration: the request cannot be sent as configured.
	// Raised before any network activity.
	ErrTypeConfiguration

	// ErrTypeTransport: the backend could not be reached or answered
	// with a non-success status.
	ErrTypeTransport

	// ErrTypeStream: reading or decoding the response body failed.
	ErrTypeStream
)

// String returns the name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConfiguration:
		return "configuration"
	case ErrTypeTransport:
		return "transport"
	case ErrTypeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNoCredential = &ClientError{Type: ErrTypeConfiguration, Message: "API key is required"}
	ErrNoContent    = &ClientError{Type: ErrTypeConfiguration, Message: "message or attachment is required"}
	ErrUnknownModel = &ClientError{Type: ErrTypeConfiguration, Message: "model is not supported"}

	// ErrInvalidUTF8 is the cause of every decode error.
	ErrInvalidUTF8 = encoding.ErrInvalidUTF8
)

// Fallback details used when the backend gives no usable error body.
const (
	DetailUnparsable = "An unknown error occurred."
	DetailMissing    = "Something went wrong with the API request."
)

// =============================================================================
// HELPERS
// =============================================================================

// TypeOf returns the ErrorType of err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ErrTypeUnknown
}

// IsConfiguration returns true if err was raised before sending.
func IsConfiguration(err error) bool {
	return TypeOf(err) == ErrTypeConfiguration
}

// IsTransport returns true if err is a transport failure.
func IsTransport(err error) bool {
	return TypeOf(err) == ErrTypeTransport
}

// IsStream returns true if err occurred while reading the response stream.
// Decode errors are stream errors.
func IsStream(err error) bool {
	return TypeOf(err) == ErrTypeStream
}

// IsDecode returns true if err is a stream decode error.
func IsDecode(err error) bool {
	return IsStream(err) && errors.Is(err, ErrInvalidUTF8)
}

// IsTimeout returns true if err was caused by a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Reason returns the user-facing part of err: the backend detail for
// transport errors, the full message otherwise.
func Reason(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.Type == ErrTypeTransport && clientErr.Status != 0 {
		return clientErr.Message
	}
	return err.Error()
}

func decodeError(cause error) error {
	return &ClientError{Type: ErrTypeStream, Message: "failed to decode response", Cause: cause}
}

func readError(cause error) error {
	return &ClientError{Type: ErrTypeStream, Message: "stream interrupted", Cause: cause}
}
