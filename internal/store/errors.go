// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of domain-store failures (spec §4.3,
// §7). The wire prefix a gateway command handler attaches to Error()'s
// message is derived from Kind, not duplicated here.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not-found"
	KindAlreadyExists      ErrorKind = "already-exists"
	KindInvalidArgument    ErrorKind = "invalid-argument"
	KindConflict           ErrorKind = "conflict"
	KindPreconditionFailed ErrorKind = "precondition-failed"
	KindUnauthorized       ErrorKind = "unauthorized"
)

// Error is a store failure tagged with a stable ErrorKind so callers
// (the gateway command dispatcher) can map it to the correct wire
// prefix without string sniffing.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if !errors.As(err, &se) {
		return "", false
	}
	return se.Kind, true
}
