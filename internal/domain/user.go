package domain

import (
	"context"
	"time"
)

// User represents a managed user record
type User struct {
	ID           string    `json:"id"`             // UUID, server-assigned
	Name         string    `json:"name"`           // Trimmed, non-empty
	Email        string    `json:"email"`          // Unique, lower-cased
	Age          int       `json:"age"`            // 1..120
	Role         string    `json:"role,omitempty"` // Owned by the auth layer
	PasswordHash string    `json:"-"`              // Bcrypt hash, never serialized
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserInput is a user-supplied record as decoded from a request body.
// Each member remembers whether it was absent, null, or carried a value.
type UserInput struct {
	Name     Field `json:"name"`
	Email    Field `json:"email"`
	Age      Field `json:"age"`
	Password Field `json:"password"`
	Role     Field `json:"role"`
}

// UserPatch is a validated, normalized set of fields.
// A nil pointer means "keep the stored value".
type UserPatch struct {
	Name         *string
	Email        *string
	Age          *int
	Role         *string // pointer to "" clears the role
	Password     *string // plaintext, hashed by the service before it reaches a repository
	PasswordHash *string
}

// Apply merges the patch onto u.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
}

// Empty reports whether the patch would change nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Age == nil && p.Role == nil && p.PasswordHash == nil
}

// UserRepository defines data access for users.
// Create and Update return an error wrapping ErrConflict when the email is
// already taken; GetByID, GetByEmail and Update wrap ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, patch UserPatch) (*User, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*User, error)
}
