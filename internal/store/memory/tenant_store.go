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

// TenantStore is an in-memory implementation of store.TenantStore.
type TenantStore struct {
	mu         sync.RWMutex
	tenants    map[uuid.UUID]*models.Tenant
	byBusiness map[string]uuid.UUID
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants:    make(map[uuid.UUID]*models.Tenant),
		byBusiness: make(map[string]uuid.UUID),
	}
}

func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}
	if _, exists := s.byBusiness[tenant.BusinessID]; exists {
		return store.ErrTenantAlreadyExists
	}

	tenant.Version = 1
	s.tenants[tenant.TenantID] = cloneTenant(tenant)
	s.byBusiness[tenant.BusinessID] = tenant.TenantID
	return nil
}

func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}
	return cloneTenant(tenant), nil
}

func (s *TenantStore) GetByBusinessID(ctx context.Context, businessID string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byBusiness[businessID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}
	return cloneTenant(s.tenants[id]), nil
}

func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tenants[tenant.TenantID]
	if !exists {
		return store.ErrTenantNotFound
	}
	if existing.Version != tenant.Version {
		return store.ErrVersionConflict
	}
	if tenant.BusinessID != existing.BusinessID {
		if _, taken := s.byBusiness[tenant.BusinessID]; taken {
			return store.ErrTenantAlreadyExists
		}
		delete(s.byBusiness, existing.BusinessID)
		s.byBusiness[tenant.BusinessID] = tenant.TenantID
	}

	tenant.Version++
	tenant.UpdatedAt = time.Now()
	s.tenants[tenant.TenantID] = cloneTenant(tenant)
	return nil
}

func (s *TenantStore) List(ctx context.Context, includeInactive bool, page store.Page) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Tenant
	for _, tenant := range s.tenants {
		if !includeInactive && !tenant.IsActive {
			continue
		}
		result = append(result, tenant)
	}
	slices.SortFunc(result, func(a, b *models.Tenant) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	page = page.Normalize()
	out := make([]*models.Tenant, 0, min(page.Limit, len(result)))
	for _, tenant := range paginate(result, page) {
		out = append(out, cloneTenant(tenant))
	}
	return out, nil
}
