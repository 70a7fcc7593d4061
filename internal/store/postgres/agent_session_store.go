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

// AgentSessionStore implements store.AgentSessionStore using PostgreSQL. The
// transcript is stored inside the JSONB document.
type AgentSessionStore struct {
	pool *pgxpool.Pool
}

func NewAgentSessionStore(pool *pgxpool.Pool) *AgentSessionStore {
	return &AgentSessionStore{pool: pool}
}

func (s *AgentSessionStore) Create(ctx context.Context, session *models.AgentSession) error {
	session.Version = 1
	session.MessageCount = len(session.Messages)

	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode agent session: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_sessions (
			session_id, user_id, tenant_id, status, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.SessionID,
		session.UserID,
		session.TenantID,
		string(session.Status),
		doc,
		session.Version,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create agent session: %w", mapPostgresError(err, store.ErrDuplicateID))
	}
	return nil
}

func (s *AgentSessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.AgentSession, error) {
	return getDoc[models.AgentSession](ctx, s.pool, store.ErrSessionNotFound,
		`SELECT doc FROM agent_sessions WHERE session_id = $1`, sessionID)
}

func (s *AgentSessionStore) Update(ctx context.Context, session *models.AgentSession) error {
	expected := session.Version
	next := *session
	next.Version++
	next.MessageCount = len(next.Messages)
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode agent session: %w", err)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE agent_sessions SET
			status = $3,
			doc = $4,
			version = $5,
			updated_at = $6
		WHERE session_id = $1 AND version = $2
	`,
		session.SessionID,
		expected,
		string(next.Status),
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent session: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "agent_sessions", "session_id", session.SessionID, store.ErrSessionNotFound)
	}

	session.Version = next.Version
	session.MessageCount = next.MessageCount
	session.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *AgentSessionStore) List(ctx context.Context, userID, tenantID uuid.UUID, page store.Page) ([]*models.AgentSession, error) {
	var conds conditions
	conds.add("user_id = %s", userID)
	conds.add("tenant_id = %s", tenantID)

	query := `SELECT doc FROM agent_sessions` + conds.where() + ` ORDER BY updated_at DESC` + conds.page(page)
	return queryDocs[models.AgentSession](ctx, s.pool, query, conds.args...)
}

func (s *AgentSessionStore) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return count(ctx, s.pool,
		`SELECT COUNT(*) FROM agent_sessions WHERE tenant_id = $1 AND status <> 'archived'`, tenantID)
}
