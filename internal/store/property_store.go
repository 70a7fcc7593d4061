package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var ErrPropertyNotFound = errors.New("property not found")

// PropertyFilter selects properties for listing. Zero values match everything.
type PropertyFilter struct {
	Scope       Scope
	Status      models.PropertyStatus
	Type        models.PropertyType
	Purpose     models.PropertyPurpose
	City        string
	MinPrice    float64
	MaxPrice    float64
	MinBedrooms int
	Search      string // case-insensitive match on title, description and neighborhood
	Page        Page
}

type PropertyStore interface {
	Create(ctx context.Context, property *models.Property) error

	// Get returns soft-deleted properties too; callers decide visibility.
	Get(ctx context.Context, propertyID uuid.UUID) (*models.Property, error)

	Update(ctx context.Context, property *models.Property) error

	// List returns active properties matching the filter, newest first.
	List(ctx context.Context, filter PropertyFilter) ([]*models.Property, error)

	// Count returns the number of active properties of a tenant.
	Count(ctx context.Context, tenantID uuid.UUID) (int, error)
}
