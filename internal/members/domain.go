// Package members holds the member record view, the custom field catalog,
// the filter engine and the CSV export built on top of them.
package members

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Built-in field names always resolvable on a Member.
const (
	FieldID          = "id"
	FieldUsername    = "username"
	FieldEmail       = "email"
	FieldDisplayName = "display_name"
	FieldRole        = "role"
)

// MetaProfilePicture is the meta key holding the member's avatar URL.
const MetaProfilePicture = "profile_picture"

// Role names.
const (
	RoleMember        = "member"
	RoleBoard         = "board"
	RoleAdministrator = "administrator"
)

var (
	// ErrNotFound indicates the member does not exist.
	ErrNotFound = errors.New("members: not found")
	// ErrDuplicate indicates the username or email is taken.
	ErrDuplicate error = duplicateError{}
	// ErrDuplicateField indicates a catalog field name appears twice.
	ErrDuplicateField = errors.New("members: duplicate field name")
	// ErrReservedField indicates a catalog field name shadows a built-in.
	ErrReservedField = errors.New("members: reserved field name")
)

// ReservedFieldError names a catalog field that collides with a built-in
// field. It matches ErrReservedField.
type ReservedFieldError struct {
	Name string
}

func (e *ReservedFieldError) Error() string {
	return fmt.Sprintf("members: field name %q is reserved", e.Name)
}

func (e *ReservedFieldError) Is(target error) bool { return target == ErrReservedField }

// SafeMessage is shown to admins editing the catalog.
func (e *ReservedFieldError) SafeMessage() string {
	return fmt.Sprintf("%q is a built-in field and cannot be used as a custom field.", e.Name)
}

// IsBuiltinField reports whether name resolves to a record column rather
// than a custom field.
func IsBuiltinField(name string) bool {
	switch name {
	case FieldID, FieldUsername, FieldEmail, FieldDisplayName, FieldRole:
		return true
	}
	return false
}

// NormalizeLogin trims s and puts it in Unicode NFC so stored and typed
// logins compare equal regardless of how the client composed them.
func NormalizeLogin(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

type duplicateError struct{}

func (duplicateError) Error() string       { return "members: username or email already registered" }
func (duplicateError) SafeMessage() string { return "Username or email already registered" }

// Member is a read-through view over one user record and its meta values.
type Member struct {
	ID           int64
	Login        string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	Registered   time.Time
	Fields       map[string]string
}

// MemberID lets a Member act as an avatar identifier.
func (m *Member) MemberID() int64 {
	if m == nil {
		return 0
	}
	return m.ID
}

// Value returns the value of field, checking built-ins before custom
// fields. Missing fields are "".
func (m *Member) Value(field string) string {
	if m == nil {
		return ""
	}
	switch field {
	case FieldID:
		return strconv.FormatInt(m.ID, 10)
	case FieldUsername:
		return m.Login
	case FieldEmail:
		return m.Email
	case FieldDisplayName:
		return m.DisplayName
	case FieldRole:
		return m.Role
	}
	return m.Fields[field]
}

// FullName joins first_name and last_name, falling back to the display name.
func (m *Member) FullName() string {
	first, last := m.Value("first_name"), m.Value("last_name")
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Login
}

// FilterSpec maps a field name to a substring its value must contain.
type FilterSpec map[string]string

// ExportRequest selects columns and filters for an export.
type ExportRequest struct {
	// Fields is the ordered column selection. It is only honoured when
	// FieldsSupplied is set; otherwise the persisted selection is used.
	Fields         []string
	FieldsSupplied bool
	Filter         FilterSpec
}

// Registration carries a new member's credentials and field values.
type Registration struct {
	Login        string
	Email        string
	PasswordHash string
	Fields       map[string]string
}
