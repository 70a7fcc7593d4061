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

// AgentSessionStore is an in-memory implementation of store.AgentSessionStore.
type AgentSessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.AgentSession
}

// NewAgentSessionStore creates a new in-memory agent session store.
func NewAgentSessionStore() *AgentSessionStore {
	return &AgentSessionStore{
		sessions: make(map[uuid.UUID]*models.AgentSession),
	}
}

func (s *AgentSessionStore) Create(ctx context.Context, session *models.AgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return store.ErrDuplicateID
	}

	session.Version = 1
	session.MessageCount = len(session.Messages)
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *AgentSessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *AgentSessionStore) Update(ctx context.Context, session *models.AgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[session.SessionID]
	if !exists {
		return store.ErrSessionNotFound
	}
	if existing.Version != session.Version {
		return store.ErrVersionConflict
	}

	session.Version++
	session.MessageCount = len(session.Messages)
	session.UpdatedAt = time.Now()
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *AgentSessionStore) List(ctx context.Context, userID, tenantID uuid.UUID, page store.Page) ([]*models.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AgentSession
	for _, session := range s.sessions {
		if session.UserID == userID && session.TenantID == tenantID {
			result = append(result, session)
		}
	}
	slices.SortFunc(result, func(a, b *models.AgentSession) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	var out []*models.AgentSession
	for _, session := range paginate(result, page) {
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (s *AgentSessionStore) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, session := range s.sessions {
		if session.TenantID == tenantID && session.Status != models.SessionStatusArchived {
			n++
		}
	}
	return n, nil
}
