package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
)

// TenantStore persists agencies. Tenants are soft-deleted through Update.
type TenantStore interface {
	// Create returns ErrTenantAlreadyExists if the ID or business ID is taken.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Get returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetByBusinessID looks a tenant up by its registration number.
	GetByBusinessID(ctx context.Context, businessID string) (*models.Tenant, error)

	// Update persists the tenant with an optimistic version check.
	Update(ctx context.Context, tenant *models.Tenant) error

	// List returns tenants, newest first.
	List(ctx context.Context, includeInactive bool, page Page) ([]*models.Tenant, error)
}
