package domain

import "time"

// UserRole enumerates portal roles.
type UserRole string

const (
	RoleArtist   UserRole = "artist"
	RoleManager  UserRole = "manager"
	RoleDirector UserRole = "director"
)

// IsStaff reports whether the role has cross-thread visibility and
// status-change rights.
func (r UserRole) IsStaff() bool {
	return r == RoleManager || r == RoleDirector
}

// User is the portal account referenced by threads and messages.
type User struct {
	ID        int64
	Username  string
	FullName  string
	Role      UserRole
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
