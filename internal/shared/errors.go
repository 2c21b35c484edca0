package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionMissing occurs when a handler runs outside the session middleware.
	ErrSessionMissing = errors.New("session missing")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SafeMessager is implemented by errors whose message may be shown to end users.
type SafeMessager interface {
	SafeMessage() string
}

// UserSafeMessage returns a message suitable for display. Errors that do not
// opt in via SafeMessager collapse to a generic text.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe SafeMessager
	if errors.As(err, &safe) {
		return safe.SafeMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials."
	}
	return "Something went wrong. Please try again."
}
