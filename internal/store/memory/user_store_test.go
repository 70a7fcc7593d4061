package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/stretchr/testify/require"
)

func newUser(email string) *models.User {
	now := time.Now()
	return &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		Email:     email,
		Name:      "Test User",
		Role:      models.RoleViewer,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserStore_Create(t *testing.T) {
	t.Run("lower-cases email and sets version", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		user := newUser("Ana@Example.com")
		require.NoError(t, st.Create(ctx, user))
		require.Equal(t, int64(1), user.Version)

		got, err := st.GetByEmail(ctx, "ANA@example.com")
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
		require.Equal(t, "ana@example.com", got.Email)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newUser("ana@example.com")))
		err := st.Create(ctx, newUser("ana@example.com"))
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		st := NewUserStore()
		_, err := st.Get(context.Background(), uuid.New())
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestUserStore_Update(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	user := newUser("ana@example.com")
	require.NoError(t, st.Create(ctx, user))

	stale, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)

	user.Name = "Ana Souza"
	require.NoError(t, st.Update(ctx, user))
	require.Equal(t, int64(2), user.Version)

	stale.Name = "Lost write"
	err = st.Update(ctx, stale)
	require.ErrorIs(t, err, store.ErrVersionConflict)

	got, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, "Ana Souza", got.Name)
}

func TestUserStore_ReturnsCopies(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	tenantID := uuid.New()
	user := newUser("ana@example.com")
	user.TenantID = &tenantID
	require.NoError(t, st.Create(ctx, user))

	got, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)
	*got.TenantID = uuid.New()

	again, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, tenantID, *again.TenantID)
}

func TestUserStore_ClearTenant(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	tenantID := uuid.New()
	other := uuid.New()

	a := newUser("a@example.com")
	a.TenantID = &tenantID
	b := newUser("b@example.com")
	b.TenantID = &tenantID
	c := newUser("c@example.com")
	c.TenantID = &other
	for _, u := range []*models.User{a, b, c} {
		require.NoError(t, st.Create(ctx, u))
	}

	members, err := st.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	count, err := st.CountByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	n, err := st.ClearTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	members, err = st.ListByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, members)

	got, err := st.Get(ctx, a.UserID)
	require.NoError(t, err)
	require.Nil(t, got.TenantID)
	require.Equal(t, int64(2), got.Version)

	got, err = st.Get(ctx, c.UserID)
	require.NoError(t, err)
	require.Equal(t, other, *got.TenantID)
}
