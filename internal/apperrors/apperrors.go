// Package apperrors defines the closed set of domain errors returned by
// services and translated to HTTP responses by the controllers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Status is the HTTP status every error of this kind maps to unless the
// error overrides it.
func (k Kind) Status() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeConflict           = "CONFLICT"
	CodeNoPhotos           = "ANALYSIS_NO_PHOTOS"
	CodeAlreadyRunning     = "ANALYSIS_ALREADY_RUNNING"
	CodeTriggerFailed      = "N8N_TRIGGER_FAILED"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeNoFiles            = "NO_FILES"
	CodeInternal           = "INTERNAL_ERROR"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details interface{}
	status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	return e.Kind.Status()
}

// WithCause attaches an underlying error for logging; it is never rendered to clients.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.cause = err
	return &cp
}

// As returns the *Error wrapped anywhere in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindAuthentication, Code: CodeInvalidCredentials, Message: "Invalid email or password"}
}

func TokenExpired(message string) *Error {
	if message == "" {
		message = "Token has expired"
	}
	return &Error{Kind: KindAuthentication, Code: CodeTokenExpired, Message: message}
}

func TokenInvalid(message string) *Error {
	if message == "" {
		message = "Invalid token"
	}
	return &Error{Kind: KindAuthentication, Code: CodeTokenInvalid, Message: message}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Access denied"
	}
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: message}
}

// NotFound builds a <RESOURCE>_NOT_FOUND error. An empty id produces the bare
// "<Resource> not found" message.
func NotFound(resource, id string) *Error {
	message := resource + " not found"
	if id != "" {
		message = fmt.Sprintf("%s with id '%s' not found", resource, id)
	}
	return &Error{
		Kind:    KindNotFound,
		Code:    strings.ToUpper(strings.ReplaceAll(resource, " ", "")) + "_NOT_FOUND",
		Message: message,
	}
}

func Validation(message string, details interface{}) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Details: details}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: message}
}

func NoPhotos() *Error {
	return &Error{Kind: KindValidation, Code: CodeNoPhotos, Message: "Project has no photos to analyze"}
}

func AlreadyRunning() *Error {
	return &Error{Kind: KindConflict, Code: CodeAlreadyRunning, Message: "An analysis is already running for this project"}
}

func TriggerFailed(message string) *Error {
	return &Error{Kind: KindUpstream, Code: CodeTriggerFailed, Message: message}
}

func UploadFailed(message string) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUploadFailed, Message: message, status: http.StatusInternalServerError}
}

func NoFiles() *Error {
	return &Error{Kind: KindValidation, Code: CodeNoFiles, Message: "No files uploaded"}
}

func Internal(message string) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message}
}
