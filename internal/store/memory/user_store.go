package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// UserStore is an in-memory implementation of store.UserStore.
type UserStore struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.byEmail[email]; exists {
		return store.ErrUserAlreadyExists
	}

	user.Email = email
	user.Version = 1
	s.users[user.UserID] = cloneUser(user)
	s.byEmail[email] = user.UserID
	return nil
}

func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[user.UserID]
	if !exists {
		return store.ErrUserNotFound
	}
	if existing.Version != user.Version {
		return store.ErrVersionConflict
	}

	// email is the login key and is immutable after registration
	user.Email = existing.Email
	user.Version++
	user.UpdatedAt = time.Now()
	s.users[user.UserID] = cloneUser(user)
	return nil
}

func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.User
	for _, user := range s.users {
		if user.InTenant(tenantID) {
			result = append(result, cloneUser(user))
		}
	}
	slices.SortFunc(result, func(a, b *models.User) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.UserID.String(), b.UserID.String()))
	})
	return result, nil
}

func (s *UserStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, user := range s.users {
		if user.InTenant(tenantID) {
			n++
		}
	}
	return n, nil
}

func (s *UserStore) ClearTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleared := 0
	for _, user := range s.users {
		if !user.InTenant(tenantID) {
			continue
		}
		user.TenantID = nil
		user.Version++
		user.UpdatedAt = now
		cleared++
	}
	return cleared, nil
}
