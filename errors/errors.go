package errors

import (
	"errors"
	"fmt"
)

// Handshake errors. NotFound deliberately carries no hint about whether the
// session ever existed.
var (
	ErrSessionNotFound  = errors.New("login session not found")
	ErrSessionExpired   = errors.New("login session expired")
	ErrSessionReplayed  = errors.New("login session already consumed")
	ErrSessionCodeTaken = errors.New("session code already in use")
)

// Credential errors. Expiry and tampering are kept distinct: an expired
// token means the client should re-authenticate, a bad signature means the
// client should be treated as hostile.
var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenMalformed        = errors.New("token malformed")
)

var (
	ErrChannelUnauthorized = errors.New("channel subscription unauthorized")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
)

// APIError is the JSON error body returned by the HTTP surface.
type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Stable error codes for the HTTP surface.
const (
	CodeNotFound        = "not_found"
	CodeExpired         = "expired"
	CodeAlreadyConsumed = "already_consumed"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeInvalidRequest  = "invalid_request"
	CodeServerError     = "server_error"
)

func NewNotFound(description string) *APIError {
	return &APIError{Code: CodeNotFound, Description: description}
}

func NewExpired(description string) *APIError {
	return &APIError{Code: CodeExpired, Description: description}
}

func NewAlreadyConsumed(description string) *APIError {
	return &APIError{Code: CodeAlreadyConsumed, Description: description}
}

func NewUnauthenticated(description string) *APIError {
	return &APIError{Code: CodeUnauthenticated, Description: description}
}

func NewForbidden(description string) *APIError {
	return &APIError{Code: CodeForbidden, Description: description}
}

func NewInvalidRequest(description string) *APIError {
	return &APIError{Code: CodeInvalidRequest, Description: description}
}

func NewServerError(description string) *APIError {
	return &APIError{Code: CodeServerError, Description: description}
}
