package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/identity"
	pkgerrors "github.com/pkg/errors"
)

// Error kinds. Every error returned by the Manager matches exactly one of
// these with errors.Is.
var (
	// ErrInvalidResponse means the exchange response lacked required token fields.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrInvalidCredentials means the identity service reported unauthorized.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccessDenied means the identity service reported forbidden.
	ErrAccessDenied = errors.New("access denied")
	// ErrNetworkUnavailable means the identity service could not be reached.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrNoRefreshToken means refresh was requested without a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrNoAccessToken means an authorized call was requested without an access token.
	ErrNoAccessToken = errors.New("no access token")
	// ErrRefreshFailed means the identity service rejected the refresh or
	// returned a malformed response.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrUnknown is the fallback kind.
	ErrUnknown = errors.New("unknown error")
)

// User facing messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgAccessDenied       = "Access denied - account may be inactive"
	MsgNetworkUnavailable = "Unable to connect to server. Please check your connection."
	MsgNotFound           = "The requested resource was not found."
	MsgServerError        = "Server error. Please try again later."
	MsgLoginFailed        = "Login failed"
)

var kinds = []error{
	ErrInvalidResponse,
	ErrInvalidCredentials,
	ErrAccessDenied,
	ErrNetworkUnavailable,
	ErrNoRefreshToken,
	ErrNoAccessToken,
	ErrRefreshFailed,
	ErrUnknown,
}

// Error is a classified session error. Message is safe to show to a user;
// Err keeps the underlying cause for logs and errors.Is/As.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Classify maps any error into the session taxonomy. Errors that already
// carry a kind keep it and their message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return &Error{Kind: kind, Message: messageFor(kind, err), Err: err}
		}
	}

	kind := ErrUnknown
	lower := strings.ToLower(causeMessage(err))
	code := identity.ErrorCode(err)
	status := identity.StatusCode(err)

	switch {
	case status == http.StatusUnauthorized, code == "INVALID_CREDENTIALS", code == "invalid_grant", strings.Contains(lower, "invalid"):
		kind = ErrInvalidCredentials
	case status == http.StatusForbidden:
		kind = ErrAccessDenied
	case errors.Is(err, identity.ErrUnreachable), networkShaped(lower):
		kind = ErrNetworkUnavailable
	}
	return &Error{Kind: kind, Message: messageFor(kind, err), Err: err}
}

// UserMessage returns the message to display for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err).Error()
}

func messageFor(kind error, err error) string {
	switch kind {
	case ErrInvalidCredentials:
		return MsgInvalidCredentials
	case ErrAccessDenied:
		return MsgAccessDenied
	case ErrNetworkUnavailable:
		return MsgNetworkUnavailable
	}
	switch identity.StatusCode(err) {
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusInternalServerError:
		return MsgServerError
	}
	if msg := causeMessage(err); msg != "" {
		return msg
	}
	return MsgLoginFailed
}

// causeMessage prefers the service supplied message over wrapped context. It
// follows both pkg/errors and fmt %w chains to the innermost error.
func causeMessage(err error) string {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	for {
		next := errors.Unwrap(pkgerrors.Cause(err))
		if next == nil {
			return pkgerrors.Cause(err).Error()
		}
		err = next
	}
}

func networkShaped(msg string) bool {
	for _, s := range []string{"network", "connection", "fetch", "timeout", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// refreshError classifies a failed refresh exchange. Anything that is not a
// connectivity problem is a rejected refresh.
func refreshError(err error) *Error {
	classified := Classify(err)
	if errors.Is(classified, ErrNetworkUnavailable) {
		return classified
	}
	return &Error{Kind: ErrRefreshFailed, Message: "Token refresh failed", Err: err}
}
