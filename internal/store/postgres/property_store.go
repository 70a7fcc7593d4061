package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PropertyStore implements store.PropertyStore using PostgreSQL.
type PropertyStore struct {
	pool *pgxpool.Pool
}

func NewPropertyStore(pool *pgxpool.Pool) *PropertyStore {
	return &PropertyStore{pool: pool}
}

func (s *PropertyStore) Create(ctx context.Context, property *models.Property) error {
	property.Version = 1

	doc, err := json.Marshal(property)
	if err != nil {
		return fmt.Errorf("failed to encode property: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO properties (
			property_id, tenant_id, created_by, assigned_to, is_active, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		property.PropertyID,
		property.TenantID,
		property.CreatedBy,
		property.AssignedTo,
		property.IsActive,
		doc,
		property.Version,
		property.CreatedAt,
		property.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", mapPostgresError(err, store.ErrDuplicateID))
	}
	return nil
}

func (s *PropertyStore) Get(ctx context.Context, propertyID uuid.UUID) (*models.Property, error) {
	return getDoc[models.Property](ctx, s.pool, store.ErrPropertyNotFound,
		`SELECT doc FROM properties WHERE property_id = $1`, propertyID)
}

func (s *PropertyStore) Update(ctx context.Context, property *models.Property) error {
	expected := property.Version
	next := *property
	next.Version++
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode property: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE properties SET
			assigned_to = $3,
			is_active = $4,
			doc = $5,
			version = $6,
			updated_at = $7
		WHERE property_id = $1 AND version = $2
	`,
		property.PropertyID,
		expected,
		next.AssignedTo,
		next.IsActive,
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update property: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "properties", "property_id", property.PropertyID, store.ErrPropertyNotFound)
	}

	property.Version = next.Version
	property.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *PropertyStore) List(ctx context.Context, filter store.PropertyFilter) ([]*models.Property, error) {
	var conds conditions
	conds.raw("is_active")
	conds.scope(filter.Scope, "assigned_to")

	if filter.Status != "" {
		conds.add("doc->>'status' = %s", string(filter.Status))
	}
	if filter.Type != "" {
		conds.add("doc->>'type' = %s", string(filter.Type))
	}
	if filter.Purpose != "" {
		conds.add("doc->>'purpose' = %s", string(filter.Purpose))
	}
	if filter.City != "" {
		conds.add("lower(doc->'address'->>'city') = %s", strings.ToLower(filter.City))
	}
	if filter.MinPrice > 0 {
		conds.add("(doc->>'price')::numeric >= %s", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		conds.add("(doc->>'price')::numeric <= %s", filter.MaxPrice)
	}
	if filter.MinBedrooms > 0 {
		conds.add("COALESCE((doc->>'bedrooms')::int, 0) >= %s", filter.MinBedrooms)
	}
	if filter.Search != "" {
		conds.add(`(doc->>'title' ILIKE %[1]s OR doc->>'description' ILIKE %[1]s OR doc->'address'->>'neighborhood' ILIKE %[1]s)`,
			likePattern(filter.Search))
	}

	query := `SELECT doc FROM properties` + conds.where() + ` ORDER BY created_at DESC` + conds.page(filter.Page)
	return queryDocs[models.Property](ctx, s.pool, query, conds.args...)
}

func (s *PropertyStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return count(ctx, s.pool, `SELECT COUNT(*) FROM properties WHERE tenant_id = $1 AND is_active`, tenantID)
}
