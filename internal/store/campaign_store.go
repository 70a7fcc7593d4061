package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type CampaignFilter struct {
	Scope  Scope
	Status models.CampaignStatus
	Page   Page
}

type CampaignStore interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	Get(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	List(ctx context.Context, filter CampaignFilter) ([]*models.Campaign, error)
	Count(ctx context.Context, tenantID uuid.UUID) (int, error)

	// ListDue returns active scheduled campaigns whose start date is not after now.
	ListDue(ctx context.Context, now time.Time) ([]*models.Campaign, error)
}
