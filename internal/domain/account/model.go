package account

import (
	"errors"
	"strings"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength = 254
	MaxNameLength  = 120
)

// Role constants
const (
	RoleUser    = "user"
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// DefaultRole and DefaultDepartment apply to registrations that leave them blank.
const (
	DefaultRole       = RoleStudent
	DefaultDepartment = "CSE"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleUser, RoleStudent, RoleFaculty, RoleAdmin}

// SelfServiceRoles are the roles a visitor may pick when registering.
// Faculty and admin accounts are granted by the backend, never requested.
var SelfServiceRoles = []string{RoleStudent, RoleUser}

// Domain errors
var (
	ErrEmptyEmail   = errors.New("email cannot be empty")
	ErrInvalidEmail = errors.New("email must contain '@'")
	ErrEmptyUID     = errors.New("identity uid cannot be empty")
	ErrInvalidRole  = errors.New("role must be one of: user, student, faculty, admin")
)

// User is the application user record held for an authenticated browser session.
// Token is the identity-provider credential; it lives only in process memory.
type User struct {
	UID        string `json:"firebase_uid"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	IsActive   bool   `json:"is_active"`
	Token      string `json:"-"`
}

// Validate checks if the User has valid data.
// PRE: User struct is populated
// POST: Returns nil if valid, error otherwise
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	if !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	if u.Role != "" && !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAuthor reports whether the user should be offered notice authoring controls.
// The backend still enforces authorization.
func (u User) CanAuthor() bool {
	return u.Role == RoleAdmin || u.Role == RoleFaculty
}

// DisplayName returns Name, falling back to the local part of the email.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return LocalPart(u.Email)
}

// Registration is the profile payload sent to the backend when a new identity
// is registered.
type Registration struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	UID        string `json:"firebase_uid"`
	IsActive   bool   `json:"is_active"`
}

// NewRegistration builds a Registration, applying the default name, role and department.
// PRE: email and uid are non-empty
// POST: Name, Role and Department are never empty; IsActive is true
func NewRegistration(email, uid, name, role, department string) (Registration, error) {
	if strings.TrimSpace(email) == "" {
		return Registration{}, ErrEmptyEmail
	}
	if uid == "" {
		return Registration{}, ErrEmptyUID
	}
	if strings.TrimSpace(name) == "" {
		name = LocalPart(email)
	}
	if role == "" {
		role = DefaultRole
	}
	if !IsValidRole(role) {
		return Registration{}, ErrInvalidRole
	}
	if department == "" {
		department = DefaultDepartment
	}
	return Registration{
		Email:      email,
		Name:       name,
		Role:       role,
		Department: department,
		UID:        uid,
		IsActive:   true,
	}, nil
}

// IsValidRole reports whether role is one of ValidRoles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// LocalPart returns the part of an email address before '@'.
func LocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
