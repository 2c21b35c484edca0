// Package auth resolves logins by email or username, verifies passwords and
// serves the login, logout and change-password flows.
package auth

import "errors"

// Failure codes.
const (
	CodeEmptyUsername = "empty_username"
	CodeEmptyPassword = "empty_password"
	CodeUnknownUser   = "unknown_user"
	CodeWrongPassword = "wrong_password"
)

// Failure is a user-correctable authentication failure. Failures compare
// equal under errors.Is when their codes match.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string { return f.Message }

// SafeMessage lets failures be shown to the user verbatim.
func (f *Failure) SafeMessage() string { return f.Message }

// Is matches failures by code.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Code == f.Code
}

// Sentinel failures for errors.Is checks.
var (
	ErrEmptyUsername = &Failure{Code: CodeEmptyUsername, Message: "Email/Username field is empty."}
	ErrEmptyPassword = &Failure{Code: CodeEmptyPassword, Message: "Password field is empty."}
	ErrUnknownUser   = &Failure{Code: CodeUnknownUser, Message: "Either the email/username or password you entered is invalid."}
	ErrWrongPassword = &Failure{Code: CodeWrongPassword, Message: "The password you entered is invalid."}
)

func unknownUser(login string) *Failure {
	return &Failure{
		Code:    CodeUnknownUser,
		Message: "Either the email/username or password you entered is invalid. The email you entered was: " + login,
	}
}

// Failures lists every Failure carried by err, including those joined with
// errors.Join. It returns nil when err holds no failures.
func Failures(err error) []*Failure {
	var out []*Failure
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if f, ok := e.(*Failure); ok {
			out = append(out, f)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// IsFailure reports whether err carries at least one Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
