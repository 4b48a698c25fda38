package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCodeTaken is returned by stores when a session code is already in use.
	ErrCodeTaken = errors.New("quiz session code already in use")
	// ErrDuplicateResponse is returned when a participant already answered a question.
	ErrDuplicateResponse = errors.New("question already answered by participant")
	// ErrVersionConflict is returned when a session changed since it was read.
	ErrVersionConflict = errors.New("quiz session was modified concurrently")
)

// ErrorKind classifies client-visible failures.
type ErrorKind int

const (
	KindInvalid ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// ErrorCode is the machine-readable code sent in error envelopes.
type ErrorCode string

const (
	CodeInvalidFormData     ErrorCode = "InvalidFormData"
	CodeInvalidStatus       ErrorCode = "InvalidStatus"
	CodeNoQuestions         ErrorCode = "NoQuestions"
	CodeInvalidQuestion     ErrorCode = "InvalidQuestion"
	CodeQuestionOver        ErrorCode = "QuestionOver"
	CodeInvalidAnswer       ErrorCode = "InvalidAnswer"
	CodeQuizSessionComplete ErrorCode = "QuizSessionComplete"
	CodeQuizSessionCanceled ErrorCode = "QuizSessionCanceled"
	CodeQuizSessionCode     ErrorCode = "QuizSessionCode"
	CodeDuplicateResponse   ErrorCode = "DuplicateResponse"
	CodeInvalidAuth         ErrorCode = "InvalidAuth"
	CodeUnauthorized        ErrorCode = "Unauthorized"
	CodeNone                ErrorCode = "None"
)

// Error is a failure that is reported to the caller as-is.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Invalid builds a 400-class error with a specific code.
func Invalid(code ErrorCode, message string) *Error {
	return &Error{Kind: KindInvalid, Code: code, Message: message}
}

// InvalidForm reports a malformed or disallowed request field.
func InvalidForm(message string) *Error {
	return Invalid(CodeInvalidFormData, message)
}

// Unauthorized is returned when no usable credential was presented.
func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: "Unauthorized"}
}

// InvalidAuth is returned when a bearer token could not be verified.
func InvalidAuth() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeInvalidAuth, Message: "Invalid auth token"}
}

// Forbidden is returned when an authenticated caller may not act on a resource.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Code: CodeNone, Message: "Forbidden"}
}

// IsCode reports whether err is a domain error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Code == code
}
