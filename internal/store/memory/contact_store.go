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

// ContactStore is an in-memory implementation of store.ContactStore.
type ContactStore struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*models.Contact
}

// NewContactStore creates a new in-memory contact store.
func NewContactStore() *ContactStore {
	return &ContactStore{
		contacts: make(map[uuid.UUID]*models.Contact),
	}
}

func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contacts[contact.ContactID]; exists {
		return store.ErrDuplicateID
	}

	contact.Version = 1
	s.contacts[contact.ContactID] = cloneContact(contact)
	return nil
}

func (s *ContactStore) Get(ctx context.Context, contactID uuid.UUID) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, exists := s.contacts[contactID]
	if !exists {
		return nil, store.ErrContactNotFound
	}
	return cloneContact(contact), nil
}

func (s *ContactStore) Update(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.contacts[contact.ContactID]
	if !exists {
		return store.ErrContactNotFound
	}
	if existing.Version != contact.Version {
		return store.ErrVersionConflict
	}

	contact.Version++
	contact.UpdatedAt = time.Now()
	s.contacts[contact.ContactID] = cloneContact(contact)
	return nil
}

func (s *ContactStore) List(ctx context.Context, filter store.ContactFilter) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Contact
	for _, c := range s.contacts {
		if matchContact(c, filter) {
			result = append(result, c)
		}
	}
	slices.SortFunc(result, func(a, b *models.Contact) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ContactID.String(), b.ContactID.String())
	})

	var out []*models.Contact
	for _, c := range paginate(result, filter.Page) {
		out = append(out, cloneContact(c))
	}
	return out, nil
}

func (s *ContactStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.contacts {
		if c.IsActive && c.TenantID != nil && *c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func matchContact(c *models.Contact, f store.ContactFilter) bool {
	if !c.IsActive {
		return false
	}
	if !f.Scope.Matches(c.TenantID, c.CreatedBy, c.AssignedTo) {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, c.ContactID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(c.Tags, func(tag string) bool {
		return slices.Contains(f.Tags, tag)
	}) {
		return false
	}
	if f.HasPhone && c.Phone == "" {
		return false
	}
	if f.Search != "" && !containsFold(strings.ToLower(f.Search), c.Name, c.Email, c.Phone) {
		return false
	}
	return true
}
