package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure in the retrieval and delivery pipeline.
type ErrorCode string

const (
	ErrAuthRequired    ErrorCode = "AUTH_REQUIRED"     // no credential available
	ErrAuthExpired     ErrorCode = "AUTH_EXPIRED"      // 401 from the mail API
	ErrNoMessagesFound ErrorCode = "NO_MESSAGES_FOUND" // empty search
	ErrNoCodeFound     ErrorCode = "NO_CODE_FOUND"     // messages present, nothing matched
	ErrRemoteAPI       ErrorCode = "REMOTE_API_ERROR"  // any other non-2xx
	ErrInjection       ErrorCode = "INJECTION_ERROR"   // bridge could not be installed
	ErrClipboard       ErrorCode = "CLIPBOARD_ERROR"   // clipboard write failed
)

// Error is a classified pipeline error. Status is the HTTP status for
// ErrRemoteAPI and ErrAuthExpired, zero otherwise.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewAuthRequired is returned when no credential could be obtained.
func NewAuthRequired(err error) *Error {
	return &Error{Code: ErrAuthRequired, Message: "authentication required", Err: err}
}

// NewAuthExpired is returned when the mail API rejects the bearer token.
func NewAuthExpired() *Error {
	return &Error{Code: ErrAuthExpired, Status: 401, Message: "authentication expired, please try again"}
}

// NewNoMessagesFound is returned when a search for domain comes back empty.
func NewNoMessagesFound(domain string) *Error {
	return &Error{Code: ErrNoMessagesFound, Message: fmt.Sprintf("no recent emails found for %s", domain)}
}

// NewNoCodeFound is returned when none of the scanned messages held a code.
func NewNoCodeFound() *Error {
	return &Error{Code: ErrNoCodeFound, Message: "no OTP found in recent emails"}
}

// NewRemoteAPI wraps a non-2xx response from the mail API.
func NewRemoteAPI(status int, err error) *Error {
	return &Error{Code: ErrRemoteAPI, Status: status, Message: fmt.Sprintf("mail API returned status %d", status), Err: err}
}

// NewInjection is returned when the host refuses to run the page agent.
func NewInjection(reason string) *Error {
	return &Error{Code: ErrInjection, Message: fmt.Sprintf("cannot inject bridge: %s", reason)}
}

// NewClipboard wraps a failed clipboard write.
func NewClipboard(err error) *Error {
	return &Error{Code: ErrClipboard, Message: "clipboard write failed", Err: err}
}

// Is checks if err, or anything it wraps, is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return 0
}
