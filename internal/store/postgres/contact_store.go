package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactStore implements store.ContactStore using PostgreSQL. Interactions
// live inside the JSONB document.
type ContactStore struct {
	pool *pgxpool.Pool
}

func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{pool: pool}
}

func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	contact.Version = 1

	doc, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to encode contact: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO contacts (
			contact_id, tenant_id, created_by, assigned_to, is_active, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		contact.ContactID,
		contact.TenantID,
		contact.CreatedBy,
		contact.AssignedTo,
		contact.IsActive,
		doc,
		contact.Version,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", mapPostgresError(err, store.ErrDuplicateID))
	}
	return nil
}

func (s *ContactStore) Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error) {
	return getDoc[models.Contact](ctx, s.pool, store.ErrContactNotFound,
		`SELECT doc FROM contacts WHERE contact_id = $1`, contactID)
}

func (s *ContactStore) Update(ctx context.Context, contact *models.Contact) error {
	expected := contact.Version
	next := *contact
	next.Version++
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode contact: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE contacts SET
			tenant_id = $3,
			assigned_to = $4,
			is_active = $5,
			doc = $6,
			version = $7,
			updated_at = $8
		WHERE contact_id = $1 AND version = $2
	`,
		contact.ContactID,
		expected,
		next.TenantID,
		next.AssignedTo,
		next.IsActive,
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "contacts", "contact_id", contact.ContactID, store.ErrContactNotFound)
	}

	contact.Version = next.Version
	contact.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *ContactStore) List(ctx context.Context, filter store.ContactFilter) ([]*models.Contact, error) {
	var conds conditions
	conds.raw("is_active")
	conds.scope(filter.Scope, "assigned_to")

	if len(filter.IDs) > 0 {
		conds.add("contact_id = ANY(%s)", filter.IDs)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conds.add("doc->>'status' = ANY(%s)", statuses)
	}
	if len(filter.Tags) > 0 {
		conds.add("doc->'tags' ?| %s", filter.Tags)
	}
	if filter.HasPhone {
		conds.raw("COALESCE(doc->>'phone', '') <> ''")
	}
	if filter.Search != "" {
		conds.add(`(doc->>'name' ILIKE %[1]s OR doc->>'email' ILIKE %[1]s OR doc->>'phone' ILIKE %[1]s)`,
			likePattern(filter.Search))
	}

	query := `SELECT doc FROM contacts` + conds.where() + ` ORDER BY created_at, contact_id` + conds.page(filter.Page)
	return queryDocs[models.Contact](ctx, s.pool, query, conds.args...)
}

func (s *ContactStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return count(ctx, s.pool, `SELECT COUNT(*) FROM contacts WHERE tenant_id = $1 AND is_active`, tenantID)
}
