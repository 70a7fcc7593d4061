package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// CampaignStore is an in-memory implementation of store.CampaignStore.
type CampaignStore struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]*models.Campaign
}

// NewCampaignStore creates a new in-memory campaign store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{
		campaigns: make(map[uuid.UUID]*models.Campaign),
	}
}

func (s *CampaignStore) Create(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.campaigns[campaign.CampaignID]; exists {
		return store.ErrDuplicateID
	}

	campaign.Version = 1
	s.campaigns[campaign.CampaignID] = cloneCampaign(campaign)
	return nil
}

func (s *CampaignStore) Get(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, exists := s.campaigns[campaignID]
	if !exists {
		return nil, store.ErrCampaignNotFound
	}
	return cloneCampaign(campaign), nil
}

func (s *CampaignStore) Update(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.campaigns[campaign.CampaignID]
	if !exists {
		return store.ErrCampaignNotFound
	}
	if existing.Version != campaign.Version {
		return store.ErrVersionConflict
	}

	campaign.Version++
	campaign.UpdatedAt = time.Now()
	s.campaigns[campaign.CampaignID] = cloneCampaign(campaign)
	return nil
}

func (s *CampaignStore) List(ctx context.Context, filter store.CampaignFilter) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Campaign
	for _, c := range s.campaigns {
		if !c.IsActive || !filter.Scope.Matches(&c.TenantID, c.CreatedBy, nil) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b *models.Campaign) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	var out []*models.Campaign
	for _, c := range paginate(result, filter.Page) {
		out = append(out, cloneCampaign(c))
	}
	return out, nil
}

func (s *CampaignStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.campaigns {
		if c.IsActive && c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *CampaignStore) ListDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Campaign
	for _, c := range s.campaigns {
		if !c.IsActive || c.Status != models.CampaignStatusScheduled {
			continue
		}
		if c.Schedule.StartDate == nil || c.Schedule.StartDate.After(now) {
			continue
		}
		result = append(result, cloneCampaign(c))
	}
	slices.SortFunc(result, func(a, b *models.Campaign) int {
		return a.Schedule.StartDate.Compare(*b.Schedule.StartDate)
	})
	return result, nil
}
