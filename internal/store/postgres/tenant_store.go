package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// TenantStore implements store.TenantStore using PostgreSQL. The AI API key
// is kept out of the JSONB document in its own column.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a new PostgreSQL-backed tenant store.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	tenant.Version = 1

	doc, err := json.Marshal(tenant)
	if err != nil {
		return fmt.Errorf("failed to encode tenant: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenants (
			tenant_id, business_id, is_active, ai_api_key, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		tenant.TenantID,
		tenant.BusinessID,
		tenant.IsActive,
		tenant.AI.APIKey,
		doc,
		tenant.Version,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", mapPostgresError(err, nil))
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Str("business_id", tenant.BusinessID).
		Msg("Created tenant")

	return nil
}

func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	return s.getOne(ctx, `SELECT doc, ai_api_key FROM tenants WHERE tenant_id = $1`, tenantID)
}

func (s *TenantStore) GetByBusinessID(ctx context.Context, businessID string) (*models.Tenant, error) {
	return s.getOne(ctx, `SELECT doc, ai_api_key FROM tenants WHERE business_id = $1`, businessID)
}

func (s *TenantStore) getOne(ctx context.Context, query string, args ...any) (*models.Tenant, error) {
	tenant, err := scanTenant(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", mapPostgresError(err, nil))
	}
	return tenant, nil
}

func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	expected := tenant.Version
	next := *tenant
	next.Version++
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode tenant: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE tenants SET
			business_id = $3,
			is_active = $4,
			ai_api_key = $5,
			doc = $6,
			version = $7,
			updated_at = $8
		WHERE tenant_id = $1 AND version = $2
	`,
		tenant.TenantID,
		expected,
		next.BusinessID,
		next.IsActive,
		next.AI.APIKey,
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to update tenant: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "tenants", "tenant_id", tenant.TenantID, store.ErrTenantNotFound)
	}

	tenant.Version = next.Version
	tenant.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *TenantStore) List(ctx context.Context, includeInactive bool, page store.Page) ([]*models.Tenant, error) {
	var conds conditions
	if !includeInactive {
		conds.raw("is_active")
	}
	query := `SELECT doc, ai_api_key FROM tenants` + conds.where() + ` ORDER BY created_at DESC` + conds.page(page)

	rows, err := s.pool.Query(ctx, query, conds.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", mapPostgresError(err, nil))
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var (
		raw    []byte
		apiKey string
	)
	if err := row.Scan(&raw, &apiKey); err != nil {
		return nil, err
	}
	var tenant models.Tenant
	if err := json.Unmarshal(raw, &tenant); err != nil {
		return nil, fmt.Errorf("failed to decode tenant: %w", err)
	}
	tenant.AI.APIKey = apiKey
	return &tenant, nil
}
