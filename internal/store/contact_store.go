package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var ErrContactNotFound = errors.New("contact not found")

// ContactFilter selects contacts for listing. Zero values match everything.
type ContactFilter struct {
	Scope    Scope
	IDs      []uuid.UUID            // restrict to these contacts
	Statuses []models.ContactStatus // any of
	Tags     []string               // any of
	Search   string                 // case-insensitive match on name, email and phone
	HasPhone bool
	Page     Page
}

type ContactStore interface {
	Create(ctx context.Context, contact *models.Contact) error
	Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error

	// List returns active contacts matching the filter, oldest first so that
	// campaign audiences are resolved in a stable order.
	List(ctx context.Context, filter ContactFilter) ([]*models.Contact, error)

	Count(ctx context.Context, tenantID uuid.UUID) (int, error)
}
