package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// PropertyStore is an in-memory implementation of store.PropertyStore.
type PropertyStore struct {
	mu         sync.RWMutex
	properties map[uuid.UUID]*models.Property
}

// NewPropertyStore creates a new in-memory property store.
func NewPropertyStore() *PropertyStore {
	return &PropertyStore{
		properties: make(map[uuid.UUID]*models.Property),
	}
}

func (s *PropertyStore) Create(ctx context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.properties[property.PropertyID]; exists {
		return store.ErrDuplicateID
	}

	property.Version = 1
	s.properties[property.PropertyID] = cloneProperty(property)
	return nil
}

func (s *PropertyStore) Get(ctx context.Context, propertyID uuid.UUID) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	property, exists := s.properties[propertyID]
	if !exists {
		return nil, store.ErrPropertyNotFound
	}
	return cloneProperty(property), nil
}

func (s *PropertyStore) Update(ctx context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.properties[property.PropertyID]
	if !exists {
		return store.ErrPropertyNotFound
	}
	if existing.Version != property.Version {
		return store.ErrVersionConflict
	}

	property.Version++
	property.UpdatedAt = time.Now()
	s.properties[property.PropertyID] = cloneProperty(property)
	return nil
}

func (s *PropertyStore) List(ctx context.Context, filter store.PropertyFilter) ([]*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Property
	for _, p := range s.properties {
		if matchProperty(p, filter) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b *models.Property) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	var out []*models.Property
	for _, p := range paginate(result, filter.Page) {
		out = append(out, cloneProperty(p))
	}
	return out, nil
}

func (s *PropertyStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.properties {
		if p.IsActive && p.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func matchProperty(p *models.Property, f store.PropertyFilter) bool {
	if !p.IsActive {
		return false
	}
	if !f.Scope.Matches(&p.TenantID, p.CreatedBy, p.AssignedTo) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Purpose != "" && p.Purpose != f.Purpose {
		return false
	}
	if f.City != "" && !strings.EqualFold(p.Address.City, f.City) {
		return false
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if f.MinBedrooms > 0 && p.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !containsFold(q, p.Title, p.Description, p.Address.Neighborhood) {
			return false
		}
	}
	return true
}

// containsFold reports whether any of fields contains the lower-cased query.
func containsFold(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
