package campaign

import (
	"context"
	"fmt"

	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// ResolveAudience returns the active contacts with a phone number that the
// campaign targets, in stable order. Explicit contact ids win over the filter.
// Contacts outside the campaign's tenant are never included.
func ResolveAudience(ctx context.Context, contacts store.ContactStore, c *models.Campaign) ([]*models.Contact, error) {
	filter := store.ContactFilter{
		Scope:    store.TenantScope(c.TenantID),
		HasPhone: true,
		Page:     store.Page{Limit: store.MaxLimit},
	}
	if c.Audience.Explicit() {
		filter.IDs = c.Audience.ContactIDs
	} else {
		filter.Statuses = c.Audience.Filter.Statuses
		filter.Tags = c.Audience.Filter.Tags
	}

	var audience []*models.Contact
	for {
		page, err := contacts.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve audience: %w", err)
		}
		audience = append(audience, page...)
		if len(page) < filter.Page.Limit {
			return audience, nil
		}
		filter.Page.Offset += len(page)
	}
}
