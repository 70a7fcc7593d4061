//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*DB, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(ctx, &Config{
		Pool: PoolConfig{
			ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		},
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		_ = container.Terminate(ctx)
	}

	return db, cleanup
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// migrations are idempotent
	require.NoError(t, RunMigrations(ctx, db.Pool()))

	users := NewUserStore(db.Pool())
	tenants := NewTenantStore(db.Pool())
	properties := NewPropertyStore(db.Pool())
	contacts := NewContactStore(db.Pool())
	campaigns := NewCampaignStore(db.Pool())
	sessions := NewAgentSessionStore(db.Pool())

	now := time.Now().UTC().Truncate(time.Microsecond)
	ownerID := uuid.Must(uuid.NewV7())
	tenantID := uuid.Must(uuid.NewV7())

	t.Run("users", func(t *testing.T) {
		user := &models.User{
			UserID:       ownerID,
			Email:        "Owner@Example.com",
			PasswordHash: "hash",
			Name:         "Owner",
			Role:         models.RoleManager,
			TenantID:     &tenantID,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, users.Create(ctx, user))
		require.ErrorIs(t, users.Create(ctx, &models.User{UserID: uuid.New(), Email: "owner@example.com"}), store.ErrUserAlreadyExists)

		got, err := users.GetByEmail(ctx, "OWNER@example.com")
		require.NoError(t, err)
		require.Equal(t, "hash", got.PasswordHash)
		require.Equal(t, tenantID, *got.TenantID)

		stale := *got
		got.Name = "Renamed"
		require.NoError(t, users.Update(ctx, got))
		require.Equal(t, int64(2), got.Version)
		require.ErrorIs(t, users.Update(ctx, &stale), store.ErrVersionConflict)

		n, err := users.CountByTenant(ctx, tenantID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("tenants keep the api key out of the document", func(t *testing.T) {
		tenant := &models.Tenant{
			TenantID:    tenantID,
			Name:        "Imobiliária Central",
			BusinessID:  "12345678000190",
			OwnerUserID: ownerID,
			MemberIDs:   []uuid.UUID{ownerID},
			Quotas:      models.DefaultQuotas(),
			AI:          models.AIConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, tenants.Create(ctx, tenant))

		var raw string
		require.NoError(t, db.Pool().QueryRow(ctx, `SELECT doc::text FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&raw))
		require.NotContains(t, raw, "sk-test")

		got, err := tenants.GetByBusinessID(ctx, "12345678000190")
		require.NoError(t, err)
		require.Equal(t, "sk-test", got.AI.APIKey)

		list, err := tenants.List(ctx, false, store.Page{})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("properties filter", func(t *testing.T) {
		for i, price := range []float64{250000, 900000} {
			p := &models.Property{
				PropertyID: uuid.Must(uuid.NewV7()),
				TenantID:   tenantID,
				CreatedBy:  ownerID,
				Title:      fmt.Sprintf("Apartamento %d", i),
				Type:       models.PropertyTypeApartment,
				Purpose:    models.PropertyPurposeSale,
				Status:     models.PropertyStatusAvailable,
				Price:      price,
				Bedrooms:   i + 1,
				Address:    models.Address{City: "Campinas"},
				IsActive:   true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			require.NoError(t, properties.Create(ctx, p))
		}

		got, err := properties.List(ctx, store.PropertyFilter{
			Scope:       store.TenantScope(tenantID),
			City:        "CAMPINAS",
			MinPrice:    300000,
			MinBedrooms: 2,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Apartamento 1", got[0].Title)

		n, err := properties.Count(ctx, tenantID)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("contacts by tags and phone", func(t *testing.T) {
		mk := func(name, phone string, tags ...string) {
			require.NoError(t, contacts.Create(ctx, &models.Contact{
				ContactID: uuid.Must(uuid.NewV7()),
				TenantID:  &tenantID,
				CreatedBy: ownerID,
				Name:      name,
				Phone:     phone,
				Status:    models.ContactStatusLead,
				Tags:      tags,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}))
		}
		mk("Maria", "11999990001", "vip")
		mk("João", "", "vip")
		mk("Pedro", "11999990003")

		got, err := contacts.List(ctx, store.ContactFilter{
			Scope:    store.TenantScope(tenantID),
			Tags:     []string{"vip"},
			HasPhone: true,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Maria", got[0].Name)
	})

	t.Run("due campaigns", func(t *testing.T) {
		start := now.Add(-time.Minute)
		c := &models.Campaign{
			CampaignID: uuid.Must(uuid.NewV7()),
			TenantID:   tenantID,
			CreatedBy:  ownerID,
			Name:       "Lançamento",
			Status:     models.CampaignStatusScheduled,
			Template:   models.MessageTemplate{Text: "Olá {{contact.firstName}}"},
			Schedule:   models.Schedule{StartDate: &start},
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, campaigns.Create(ctx, c))

		due, err := campaigns.ListDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, due, 1)

		c.Status = models.CampaignStatusRunning
		require.NoError(t, campaigns.Update(ctx, c))

		due, err = campaigns.ListDue(ctx, now)
		require.NoError(t, err)
		require.Empty(t, due)
	})

	t.Run("agent sessions", func(t *testing.T) {
		session := &models.AgentSession{
			SessionID:   uuid.Must(uuid.NewV7()),
			UserID:      ownerID,
			TenantID:    tenantID,
			AgentType:   models.AgentTypeGeneral,
			Status:      models.SessionStatusActive,
			AgentStatus: models.AgentStatusIdle,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, sessions.Create(ctx, session))

		session.Append(models.AgentMessage{Role: models.MessageRoleUser, Content: "oi", Timestamp: now})
		require.NoError(t, sessions.Update(ctx, session))

		got, err := sessions.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, 1, got.MessageCount)
		require.Equal(t, int64(2), got.Version)

		n, err := sessions.CountActive(ctx, tenantID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("clear tenant", func(t *testing.T) {
		n, err := users.ClearTenant(ctx, tenantID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		got, err := users.Get(ctx, ownerID)
		require.NoError(t, err)
		require.Nil(t, got.TenantID)
		require.Equal(t, int64(3), got.Version)
	})
}
