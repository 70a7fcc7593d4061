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

// CampaignStore implements store.CampaignStore using PostgreSQL.
type CampaignStore struct {
	pool *pgxpool.Pool
}

func NewCampaignStore(pool *pgxpool.Pool) *CampaignStore {
	return &CampaignStore{pool: pool}
}

func (s *CampaignStore) Create(ctx context.Context, campaign *models.Campaign) error {
	campaign.Version = 1

	doc, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode campaign: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO campaigns (
			campaign_id, tenant_id, created_by, is_active, status, start_date, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		campaign.CampaignID,
		campaign.TenantID,
		campaign.CreatedBy,
		campaign.IsActive,
		string(campaign.Status),
		campaign.Schedule.StartDate,
		doc,
		campaign.Version,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", mapPostgresError(err, store.ErrDuplicateID))
	}
	return nil
}

func (s *CampaignStore) Get(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	return getDoc[models.Campaign](ctx, s.pool, store.ErrCampaignNotFound,
		`SELECT doc FROM campaigns WHERE campaign_id = $1`, campaignID)
}

func (s *CampaignStore) Update(ctx context.Context, campaign *models.Campaign) error {
	expected := campaign.Version
	next := *campaign
	next.Version++
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode campaign: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET
			is_active = $3,
			status = $4,
			start_date = $5,
			doc = $6,
			version = $7,
			updated_at = $8
		WHERE campaign_id = $1 AND version = $2
	`,
		campaign.CampaignID,
		expected,
		next.IsActive,
		string(next.Status),
		next.Schedule.StartDate,
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "campaigns", "campaign_id", campaign.CampaignID, store.ErrCampaignNotFound)
	}

	campaign.Version = next.Version
	campaign.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *CampaignStore) List(ctx context.Context, filter store.CampaignFilter) ([]*models.Campaign, error) {
	var conds conditions
	conds.raw("is_active")
	conds.scope(filter.Scope, "")
	if filter.Status != "" {
		conds.add("status = %s", string(filter.Status))
	}

	query := `SELECT doc FROM campaigns` + conds.where() + ` ORDER BY created_at DESC` + conds.page(filter.Page)
	return queryDocs[models.Campaign](ctx, s.pool, query, conds.args...)
}

func (s *CampaignStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return count(ctx, s.pool, `SELECT COUNT(*) FROM campaigns WHERE tenant_id = $1 AND is_active`, tenantID)
}

func (s *CampaignStore) ListDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	return queryDocs[models.Campaign](ctx, s.pool, `
		SELECT doc FROM campaigns
		WHERE is_active AND status = 'scheduled' AND start_date <= $1
		ORDER BY start_date
	`, now)
}
