package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity that can log in. A user belongs to at most one tenant.
type User struct {
	UserID       uuid.UUID  `json:"id"` // UUIDv7
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone,omitempty"`
	Role         Role       `json:"role"`
	TenantID     *uuid.UUID `json:"tenantId,omitempty"` // nil until the user creates or joins a tenant
	IsActive     bool       `json:"isActive"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InTenant reports whether the user is bound to the given tenant.
func (u *User) InTenant(tenantID uuid.UUID) bool {
	return u.TenantID != nil && *u.TenantID == tenantID
}
