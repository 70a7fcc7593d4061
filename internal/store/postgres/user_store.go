package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
// It shares the connection pool with other stores.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `doc, password_hash`

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	user.Version = 1

	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (
			user_id, email, password_hash, tenant_id, doc, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.UserID,
		user.Email,
		user.PasswordHash,
		user.TenantID,
		doc,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err, store.ErrUserAlreadyExists))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("email", user.Email).
		Msg("Created user")

	return nil
}

func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (s *UserStore) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err, nil))
	}
	return user, nil
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	expected := user.Version
	next := *user
	next.Version++
	next.UpdatedAt = time.Now()

	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	// email is immutable; the doc column keeps whatever was registered
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET
			password_hash = $3,
			tenant_id = $4,
			doc = jsonb_set($5::jsonb, '{email}', to_jsonb(email)),
			version = $6,
			updated_at = $7
		WHERE user_id = $1 AND version = $2
	`,
		user.UserID,
		expected,
		next.PasswordHash,
		next.TenantID,
		doc,
		next.Version,
		next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err, nil))
	}
	if result.RowsAffected() == 0 {
		return missedUpdate(ctx, s.pool, "users", "user_id", user.UserID, store.ErrUserNotFound)
	}

	user.Version = next.Version
	user.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE tenant_id = $1
		ORDER BY created_at, user_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err, nil))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (s *UserStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return count(ctx, s.pool, `SELECT COUNT(*) FROM users WHERE tenant_id = $1`, tenantID)
}

func (s *UserStore) ClearTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET
			tenant_id = NULL,
			doc = (doc - 'tenantId') || jsonb_build_object('version', version + 1, 'updatedAt', now()),
			version = version + 1,
			updated_at = now()
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tenant: %w", mapPostgresError(err, nil))
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Int64("users", result.RowsAffected()).
		Msg("Unbound users from tenant")

	return int(result.RowsAffected()), nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		raw  []byte
		hash string
	)
	if err := row.Scan(&raw, &hash); err != nil {
		return nil, err
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	user.PasswordHash = hash
	return &user, nil
}
