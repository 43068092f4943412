package models

import (
	"time"
)

// User represents a user record in the database
type User struct {
	ID             int64     `json:"id" db:"id"`                     // Primary key, assigned by the store
	Username       string    `json:"username" db:"username"`         // Unique username
	Email          string    `json:"email" db:"email"`               // Unique email
	FullName       *string   `json:"full_name" db:"full_name"`       // Optional display name
	HashedPassword string    `json:"-" db:"hashed_password"`         // Opaque credential, never serialized
	IsActive       bool      `json:"is_active" db:"is_active"`       // Defaults to true
	IsSuperuser    bool      `json:"is_superuser" db:"is_superuser"` // Defaults to false
	CreatedAt      time.Time `json:"created_at" db:"created_at"`     // Creation timestamp
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`     // Last update timestamp
}

// UserCreate holds the fields accepted when creating a user.
type UserCreate struct {
	Username    string  `json:"username" validate:"required,min=3,max=255"`
	Email       string  `json:"email" validate:"required,email,max=255"`
	FullName    *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
	Password    string  `json:"password" validate:"required,maxbytes=72"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

// UserUpdate holds the fields that can be changed on an existing user.
// A nil field is left untouched.
type UserUpdate struct {
	Username    *string `json:"username,omitempty" validate:"omitempty,min=3,max=255"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	FullName    *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
	Password    *string `json:"password,omitempty" validate:"omitempty,min=1,maxbytes=72"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

// NewUser builds an unsaved user from creation input and an already encoded credential.
func NewUser(in UserCreate, hashedPassword string) *User {
	u := &User{
		Username:       in.Username,
		Email:          in.Email,
		FullName:       in.FullName,
		HashedPassword: hashedPassword,
		IsActive:       true,
		IsSuperuser:    false,
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.IsSuperuser != nil {
		u.IsSuperuser = *in.IsSuperuser
	}
	return u
}

// IsEmpty reports whether the update carries no fields.
func (p UserUpdate) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.FullName == nil &&
		p.Password == nil && p.IsActive == nil && p.IsSuperuser == nil
}

// ChangesIdentity reports whether the update would change the username or email of u.
func (p UserUpdate) ChangesIdentity(u *User) bool {
	if p.Username != nil && *p.Username != u.Username {
		return true
	}
	return p.Email != nil && *p.Email != u.Email
}

// Apply merges the non-nil fields of p onto u. The password is not applied here:
// it must be encoded first and assigned to HashedPassword by the caller.
func (p UserUpdate) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FullName != nil {
		name := *p.FullName
		u.FullName = &name
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.IsSuperuser != nil {
		u.IsSuperuser = *p.IsSuperuser
	}
}
