// Package apperr defines the typed failures returned across the analysis
// state machine boundary.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a failure so callers can decide how to surface it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindServer     Kind = "server"
	KindTimeout    Kind = "timeout"
	KindChatSend   Kind = "chat_send"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Error is the structured failure every orchestrator operation resolves to.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "submit"
	Message string // safe to show to the user
	Status  int    // HTTP status for server errors
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a failed precondition. It never reaches the network.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Server reports a non-success response from the backend.
func Server(op string, status int, message string) *Error {
	return &Error{Kind: KindServer, Op: op, Status: status, Message: message}
}

// NotFound reports an unknown analysis or chat.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Timeout reports a deadline or an exhausted poll ceiling.
func Timeout(op, message string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: message, Err: err}
}

// ChatSend wraps the reason a chat message could not be delivered.
func ChatSend(op string, err error) *Error {
	return &Error{Kind: KindChatSend, Op: op, Message: "message not delivered", Err: err}
}

// Transport classifies an error from an HTTP round trip. Deadlines become
// timeouts, everything else is a network failure.
func Transport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Message: "request timed out", Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: urlErr.Err}
	}
	return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: err}
}

// Wrap converts an arbitrary error into an *Error, keeping an existing
// classification when there is one.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
