package media

import (
	"errors"
	"fmt"
)

// ErrorKind is the provider-agnostic failure vocabulary shared by every adapter.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION_FAILED"
	KindNoFile       ErrorKind = "NO_FILE"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindFileTooLarge ErrorKind = "FILE_TOO_LARGE"
	KindRateLimit    ErrorKind = "RATE_LIMIT"
	KindUploadFailed ErrorKind = "UPLOAD_FAILED"
	KindNoURL        ErrorKind = "NO_URL"
	KindTimeout      ErrorKind = "TIMEOUT"
	KindCanceled     ErrorKind = "CANCELED"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindInternal     ErrorKind = "INTERNAL_ERROR"
)

func (k ErrorKind) String() string { return string(k) }

// Sentinels for errors.Is matching against a normalized *Error.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNoFile       = &Error{Kind: KindNoFile}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrFileTooLarge = &Error{Kind: KindFileTooLarge}
	ErrRateLimit    = &Error{Kind: KindRateLimit}
	ErrUploadFailed = &Error{Kind: KindUploadFailed}
	ErrNoURL        = &Error{Kind: KindNoURL}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrCanceled     = &Error{Kind: KindCanceled}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInternal     = &Error{Kind: KindInternal}
)

// Configuration errors returned by constructors.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
	ErrInvalidPolicy      = errors.New("invalid upload policy")
)

// Error is a normalized upload failure.
// RawCode keeps the provider's own code for diagnostics only; callers branch on Kind.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Provider Provider  `json:"provider,omitempty"`
	RawCode  string    `json:"raw_code,omitempty"`
	// Constraint is set for validation failures.
	Constraint Constraint `json:"constraint,omitempty"`
	Err        error      `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	if e.RawCode != "" {
		msg = fmt.Sprintf("%s (code: %s)", msg, e.RawCode)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so sentinels such as ErrTimeout match any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, provider Provider, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a normalized error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
