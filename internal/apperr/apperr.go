// Package apperr defines the errors returned to API clients.
//
// Every business rule failure is an *Error carrying a Kind. Sentinels such as
// ErrNotFound match any *Error of the same kind through errors.Is, so callers
// can test the kind without caring about the exact message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindInvalidDate           Kind = "invalid_date"
	KindNotFound              Kind = "not_found"
	KindForbidden             Kind = "forbidden"
	KindAlreadyEnded          Kind = "already_ended"
	KindSelfSubscription      Kind = "self_subscription"
	KindDuplicateSubscription Kind = "duplicate_subscription"
	KindConflictingDate       Kind = "conflicting_date"
	KindConflict              Kind = "conflict"
	KindUnauthorized          Kind = "unauthorized"
	KindUnexpected            Kind = "unexpected"
)

// Client-facing messages.
const (
	MsgValidation       = "Validation fails"
	MsgInvalidDate      = "Meetup date must be equal to or greater current date"
	MsgMeetupNotFound   = "Meetup not found"
	MsgBannerNotFound   = "Banner not found"
	MsgUserNotFound     = "User not found"
	MsgNotOrganizer     = "User must be meetup organizer"
	MsgAlreadyEnded     = "Meetup already ended."
	MsgSelfSubscription = "User must not be meetup organizer"
	MsgAlreadySubscribe = "User already subscribed"
	MsgConflictingDate  = "User cannot subscribe to two meetups with the same date."
	MsgUserExists       = "User already exists"
	MsgPasswordMismatch = "Password does not match"
	MsgBadCredentials   = "Invalid email or password"
	MsgFileNotFound     = "File not found"
	MsgUnexpected       = "An unexpected error has occurred. Try again"
)

var (
	ErrValidation            = &Error{Kind: KindValidation, Message: MsgValidation}
	ErrInvalidDate           = &Error{Kind: KindInvalidDate, Message: MsgInvalidDate}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrForbidden             = &Error{Kind: KindForbidden, Message: MsgNotOrganizer}
	ErrAlreadyEnded          = &Error{Kind: KindAlreadyEnded, Message: MsgAlreadyEnded}
	ErrSelfSubscription      = &Error{Kind: KindSelfSubscription, Message: MsgSelfSubscription}
	ErrDuplicateSubscription = &Error{Kind: KindDuplicateSubscription, Message: MsgAlreadySubscribe}
	ErrConflictingDate       = &Error{Kind: KindConflictingDate, Message: MsgConflictingDate}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrUnexpected            = &Error{Kind: KindUnexpected, Message: MsgUnexpected}
)

// Error is a classified, client-safe error.
type Error struct {
	Kind    Kind
	Message string

	// Fields holds per-field validation messages, keyed by JSON field name.
	Fields map[string]string

	// Err is the underlying cause. It is logged, never sent to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NotFound returns a not_found error with the given message.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation returns a validation error listing the offending fields.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidation, Fields: fields}
}

// Conflict returns a conflict error with the given message.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Unauthorized returns an unauthorized error with the given message.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Unexpected wraps a persistence or infrastructure failure.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: MsgUnexpected, Err: err}
}

// From returns err as an *Error, classifying anything else as unexpected.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Unexpected(err)
}
