package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
)

var ErrSessionNotFound = errors.New("agent session not found")

type AgentSessionStore interface {
	Create(ctx context.Context, session *models.AgentSession) error
	Get(ctx context.Context, sessionID uuid.UUID) (*models.AgentSession, error)

	// Update persists the session with an optimistic version check.
	Update(ctx context.Context, session *models.AgentSession) error

	// List returns the user's sessions in a tenant, most recently updated first.
	List(ctx context.Context, userID, tenantID uuid.UUID, page Page) ([]*models.AgentSession, error)

	// CountActive returns non-archived sessions of a tenant.
	CountActive(ctx context.Context, tenantID uuid.UUID) (int, error)
}
