package core

import (
	"errors"
	"fmt"
)

// Error kinds map to HTTP status codes at the server boundary:
// validation, connectivity and unsupported-type errors are client errors,
// not-found is 404, driver-unavailable and everything else are 500.

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing instance (scoped lookup miss).
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// NotFoundf builds a NotFoundError from a format string.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConnectivityError reports a failed probe or execution against a target
// database. It carries the driver's message.
type ConnectivityError struct {
	Msg string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Connectivityf builds a ConnectivityError wrapping err.
func Connectivityf(err error, format string, args ...any) error {
	return &ConnectivityError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ErrUnsupportedType is returned when a MySQL-only feature is requested
// for a non-MySQL instance.
var ErrUnsupportedType = errors.New("only MySQL instances are supported")

// ErrDriverUnavailable is returned when the driver for a database type is
// not available in this build.
var ErrDriverUnavailable = errors.New("database driver unavailable")

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConnectivity reports whether err is a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
