package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore persists users. Users are never hard-deleted.
type UserStore interface {
	// Create stores a new user.
	// Returns ErrUserAlreadyExists if the ID or email is taken.
	Create(ctx context.Context, user *models.User) error

	// Get returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail looks a user up by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update persists the user if user.Version matches the stored version,
	// then increments user.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, user *models.User) error

	// ListByTenant returns the users bound to a tenant, oldest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)

	// CountByTenant returns the number of users bound to a tenant.
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)

	// ClearTenant unbinds every user from the tenant and returns how many
	// users were changed.
	ClearTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}
