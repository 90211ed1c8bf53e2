// Package domain holds the read-only snapshots that broadcast events are built from.
// Snapshots arrive fully loaded; nothing here performs I/O.
package domain

// UserRef is the minimal identity view of a user.
type UserRef struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required"`
}

// User is a user snapshot with role names.
type User struct {
	ID    int64    `json:"id" validate:"required,gt=0"`
	Name  string   `json:"name" validate:"required"`
	Roles []string `json:"roles"`
}

// Ref reduces the user to its identity view.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name}
}

// HasRole reports whether the user carries role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Role names used by the platform.
const (
	RoleAdmin     = "admin"
	RoleTherapist = "therapist"
	RoleGuardian  = "guardian"
	RoleChild     = "child"
)
