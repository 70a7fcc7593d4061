package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/campaign"
	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/store/memory"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	users      *memory.UserStore
	tenantsDB  *memory.TenantStore
	campaignDB *memory.CampaignStore

	Users      *UserService
	Tenants    *TenantService
	Properties *PropertyService
	Contacts   *ContactService
	Campaigns  *CampaignService
	pool       *worker.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)

	users := memory.NewUserStore()
	tenants := memory.NewTenantStore()
	properties := memory.NewPropertyStore()
	contacts := memory.NewContactStore()
	campaigns := memory.NewCampaignStore()
	sessions := memory.NewAgentSessionStore()
	pool := worker.NewPool(2)
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	executor := campaign.NewExecutor(campaign.ExecutorConfig{}, campaigns, contacts, tenants, messaging.NewLogBridge(), pool)

	return &testEnv{
		users:      users,
		tenantsDB:  tenants,
		campaignDB: campaigns,
		Users:      NewUserService(users, tenants, tokens),
		Tenants:    NewTenantService(tenants, users, properties, contacts, campaigns, sessions),
		Properties: NewPropertyService(properties, users),
		Contacts:   NewContactService(contacts, users),
		Campaigns:  NewCampaignService(campaigns, contacts, executor),
		pool:       pool,
	}
}

// actor reloads the user so role and tenant reflect the latest writes.
func (e *testEnv) actor(t *testing.T, userID uuid.UUID) auth.Actor {
	t.Helper()
	u, err := e.users.Get(context.Background(), userID)
	require.NoError(t, err)
	return auth.ActorFromUser(u)
}

func (e *testEnv) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.Users.Register(context.Background(), RegisterInput{Email: email, Password: "correct-horse", Name: email})
	require.NoError(t, err)
	return u
}

func (e *testEnv) admin(t *testing.T) auth.Actor {
	t.Helper()
	u, created, err := e.Users.EnsureAdmin(context.Background(), RegisterInput{Email: "admin@x.com", Password: "correct-horse", Name: "Admin"})
	require.NoError(t, err)
	require.True(t, created)
	return e.actor(t, u.UserID)
}

// tenantWithManager creates a tenant owned by a fresh manager.
func (e *testEnv) tenantWithManager(t *testing.T, email, businessID string) (*models.Tenant, auth.Actor) {
	t.Helper()
	owner := e.register(t, email)
	tenant, err := e.Tenants.Create(context.Background(), e.actor(t, owner.UserID), CreateTenantInput{Name: "Agency " + businessID, BusinessID: businessID})
	require.NoError(t, err)
	return tenant, e.actor(t, owner.UserID)
}

func (e *testEnv) addMember(t *testing.T, owner auth.Actor, tenantID uuid.UUID, email string, role models.Role) auth.Actor {
	t.Helper()
	u := e.register(t, email)
	_, err := e.Tenants.AddMember(context.Background(), owner, tenantID, AddMemberInput{UserID: u.UserID, Role: role})
	require.NoError(t, err)
	return e.actor(t, u.UserID)
}

func requireCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, connect.CodeOf(err), "error: %v", err)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.Users.Register(ctx, RegisterInput{Email: " Ana@Example.com ", Password: "correct-horse", Name: "Ana"})
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", u.Email)
	require.Equal(t, models.RoleViewer, u.Role)
	require.Nil(t, u.TenantID)

	_, err = env.Users.Register(ctx, RegisterInput{Email: "ana@example.com", Password: "correct-horse", Name: "Ana"})
	requireCode(t, err, connect.CodeAlreadyExists)

	_, err = env.Users.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "short", Name: "Bob"})
	requireCode(t, err, connect.CodeInvalidArgument)

	_, err = env.Users.Register(ctx, RegisterInput{Email: "not-an-email", Password: "correct-horse", Name: "X"})
	requireCode(t, err, connect.CodeInvalidArgument)

	res, err := env.Users.Login(ctx, "ANA@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.User.LastSeenAt)

	_, err = env.Users.Login(ctx, "ana@example.com", "wrong-password")
	requireCode(t, err, connect.CodeUnauthenticated)
	_, err = env.Users.Login(ctx, "nobody@example.com", "correct-horse")
	requireCode(t, err, connect.CodeUnauthenticated)
}

func TestLoginRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)
	u := env.register(t, "ana@example.com")

	_, err := env.Users.Deactivate(ctx, admin, u.UserID)
	require.NoError(t, err)

	_, err = env.Users.Login(ctx, "ana@example.com", "correct-horse")
	requireCode(t, err, connect.CodeUnauthenticated)

	_, err = env.Users.Deactivate(ctx, admin, admin.UserID)
	requireCode(t, err, connect.CodeInvalidArgument)
}

func TestEnsureAdminPromotes(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "boss@example.com")

	promoted, created, err := env.Users.EnsureAdmin(context.Background(), RegisterInput{Email: "boss@example.com", Name: "Boss"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, u.UserID, promoted.UserID)
	require.Equal(t, models.RoleAdmin, promoted.Role)
}

func TestCrossTenantPropertyReadIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	tenantT, err := env.Tenants.Create(ctx, admin, CreateTenantInput{Name: "T", BusinessID: "123"})
	require.NoError(t, err)
	admin = env.actor(t, admin.UserID)

	p, err := env.Properties.Create(ctx, admin, CreatePropertyInput{
		Title: "Casa", Type: models.PropertyTypeHouse, Purpose: models.PropertyPurposeSale, Price: 100,
	})
	require.NoError(t, err)
	require.Equal(t, tenantT.TenantID, p.TenantID)

	_, manager2 := env.tenantWithManager(t, "m2@example.com", "456")
	_, err = env.Properties.Get(ctx, manager2, p.PropertyID)
	requireCode(t, err, connect.CodePermissionDenied)
	require.ErrorIs(t, err, auth.ErrCrossTenant)
}

func TestAgentCanOnlyEditOwnContacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	a1 := env.addMember(t, owner, tenant.TenantID, "a1@example.com", models.RoleAgent)
	a2 := env.addMember(t, owner, tenant.TenantID, "a2@example.com", models.RoleAgent)

	c, err := env.Contacts.Create(ctx, a1, CreateContactInput{Name: "Lead", Phone: "11987654321"})
	require.NoError(t, err)
	require.NotNil(t, c.AssignedTo)
	require.Equal(t, a1.UserID, *c.AssignedTo)

	name := "Lead renamed"
	_, err = env.Contacts.Update(ctx, a2, c.ContactID, UpdateContactInput{Name: &name})
	requireCode(t, err, connect.CodePermissionDenied)

	updated, err := env.Contacts.Update(ctx, a1, c.ContactID, UpdateContactInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)

	// listing is pre-filtered to the agent's own contacts
	list, err := env.Contacts.List(ctx, a2, store.ContactFilter{})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = env.Contacts.List(ctx, owner, store.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReassignmentMovesOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	a1 := env.addMember(t, owner, tenant.TenantID, "a1@example.com", models.RoleAgent)
	a2 := env.addMember(t, owner, tenant.TenantID, "a2@example.com", models.RoleAgent)

	c, err := env.Contacts.Create(ctx, a1, CreateContactInput{Name: "Lead", Phone: "11987654321"})
	require.NoError(t, err)

	_, err = env.Contacts.Update(ctx, owner, c.ContactID, UpdateContactInput{AssignedTo: &a2.UserID})
	require.NoError(t, err)

	// the creator keeps no access once someone else is assigned
	list, err := env.Contacts.List(ctx, a1, store.ContactFilter{})
	require.NoError(t, err)
	require.Empty(t, list)

	name := "Stolen"
	_, err = env.Contacts.Update(ctx, a1, c.ContactID, UpdateContactInput{Name: &name})
	requireCode(t, err, connect.CodePermissionDenied)
	requireCode(t, env.Contacts.Delete(ctx, a1, c.ContactID), connect.CodePermissionDenied)

	list, err = env.Contacts.List(ctx, a2, store.ContactFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, env.Contacts.Delete(ctx, a2, c.ContactID))

	p, err := env.Properties.Create(ctx, a1, CreatePropertyInput{Title: "Flat", Type: models.PropertyTypeApartment, Purpose: models.PropertyPurposeSale})
	require.NoError(t, err)
	_, err = env.Properties.Update(ctx, owner, p.PropertyID, UpdatePropertyInput{AssignedTo: &a2.UserID})
	require.NoError(t, err)
	_, err = env.Properties.Get(ctx, a1, p.PropertyID)
	requireCode(t, err, connect.CodePermissionDenied)
}

func TestAssigneeMustBelongToTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	other, otherOwner := env.tenantWithManager(t, "other@example.com", "222")
	agent := env.addMember(t, owner, tenant.TenantID, "agent@example.com", models.RoleAgent)
	foreign := env.addMember(t, otherOwner, other.TenantID, "foreign@example.com", models.RoleAgent)
	unbound := env.register(t, "unbound@example.com")
	missing := uuid.New()

	c, err := env.Contacts.Create(ctx, owner, CreateContactInput{Name: "Lead"})
	require.NoError(t, err)

	for _, assignee := range []uuid.UUID{missing, foreign.UserID, unbound.UserID} {
		_, err = env.Contacts.Update(ctx, owner, c.ContactID, UpdateContactInput{AssignedTo: &assignee})
		requireCode(t, err, connect.CodeInvalidArgument)

		_, err = env.Contacts.Create(ctx, owner, CreateContactInput{Name: "Lead", AssignedTo: &assignee})
		requireCode(t, err, connect.CodeInvalidArgument)

		_, err = env.Properties.Create(ctx, owner, CreatePropertyInput{
			Title: "Flat", Type: models.PropertyTypeApartment, Purpose: models.PropertyPurposeSale, AssignedTo: &assignee,
		})
		requireCode(t, err, connect.CodeInvalidArgument)
	}

	updated, err := env.Contacts.Update(ctx, owner, c.ContactID, UpdateContactInput{AssignedTo: &agent.UserID})
	require.NoError(t, err)
	require.Equal(t, agent.UserID, *updated.AssignedTo)
}

func TestListingNeverCrossesTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t1, m1 := env.tenantWithManager(t, "m1@example.com", "111")
	_, m2 := env.tenantWithManager(t, "m2@example.com", "222")
	viewer := env.addMember(t, m1, t1.TenantID, "v1@example.com", models.RoleViewer)

	for i := range 3 {
		_, err := env.Properties.Create(ctx, m1, CreatePropertyInput{Title: "P1", Type: models.PropertyTypeApartment, Purpose: models.PropertyPurposeRent, Price: float64(i)})
		require.NoError(t, err)
	}
	_, err := env.Properties.Create(ctx, m2, CreatePropertyInput{Title: "P2", Type: models.PropertyTypeLand, Purpose: models.PropertyPurposeSale})
	require.NoError(t, err)

	for _, actor := range []auth.Actor{m1, viewer} {
		list, err := env.Properties.List(ctx, actor, store.PropertyFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		for _, p := range list {
			require.Equal(t, t1.TenantID, p.TenantID)
		}
	}

	// a scope smuggled in by the caller is replaced
	list, err := env.Properties.List(ctx, m2, store.PropertyFilter{Scope: store.TenantScope(t1.TenantID)})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// viewers cannot write
	_, err = env.Properties.Create(ctx, viewer, CreatePropertyInput{Title: "x", Type: models.PropertyTypeHouse, Purpose: models.PropertyPurposeSale})
	requireCode(t, err, connect.CodePermissionDenied)
}

func TestDuplicateBusinessIDConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tenantWithManager(t, "first@example.com", "12.345.678/0001-90")

	for _, email := range []string{"second@example.com", "third@example.com"} {
		u := env.register(t, email)
		_, err := env.Tenants.Create(ctx, env.actor(t, u.UserID), CreateTenantInput{Name: "Copy", BusinessID: "12345678000190"})
		requireCode(t, err, connect.CodeAlreadyExists)
	}
}

func TestCreateTenantBindsCreator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, owner := env.tenantWithManager(t, "owner@example.com", "111")
	require.Equal(t, models.RoleManager, owner.Role)
	require.True(t, owner.InTenant(first.TenantID))
	require.Equal(t, []uuid.UUID{owner.UserID}, first.MemberIDs)

	// a second tenant silently replaces the binding to the first one
	second, err := env.Tenants.Create(ctx, owner, CreateTenantInput{Name: "Second", BusinessID: "222"})
	require.NoError(t, err)
	owner = env.actor(t, owner.UserID)
	require.True(t, owner.InTenant(second.TenantID))

	_, err = env.Tenants.Get(ctx, owner, first.TenantID)
	requireCode(t, err, connect.CodePermissionDenied)
}

func TestRemoveOwnerAlwaysFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	for _, actor := range []auth.Actor{owner, admin} {
		_, err := env.Tenants.RemoveMember(ctx, actor, tenant.TenantID, owner.UserID)
		requireCode(t, err, connect.CodeInvalidArgument)
	}
}

func TestMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	agent := env.addMember(t, owner, tenant.TenantID, "agent@example.com", "")
	require.Equal(t, models.RoleAgent, agent.Role)
	require.True(t, agent.InTenant(tenant.TenantID))

	// already a member
	_, err := env.Tenants.AddMember(ctx, owner, tenant.TenantID, AddMemberInput{UserID: agent.UserID})
	requireCode(t, err, connect.CodeAlreadyExists)

	// members cannot manage membership
	other := env.register(t, "other@example.com")
	_, err = env.Tenants.AddMember(ctx, agent, tenant.TenantID, AddMemberInput{UserID: other.UserID})
	requireCode(t, err, connect.CodePermissionDenied)

	// admin cannot be granted through membership
	_, err = env.Tenants.AddMember(ctx, owner, tenant.TenantID, AddMemberInput{UserID: other.UserID, Role: models.RoleAdmin})
	requireCode(t, err, connect.CodeInvalidArgument)

	// user bound elsewhere
	_, elsewhere := env.tenantWithManager(t, "elsewhere@example.com", "999")
	_, err = env.Tenants.AddMember(ctx, owner, tenant.TenantID, AddMemberInput{UserID: elsewhere.UserID})
	requireCode(t, err, connect.CodeAlreadyExists)

	stats, err := env.Tenants.Stats(ctx, owner, tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Members)

	_, err = env.Tenants.RemoveMember(ctx, owner, tenant.TenantID, agent.UserID)
	require.NoError(t, err)
	agent = env.actor(t, agent.UserID)
	require.Nil(t, agent.TenantID)

	_, err = env.Tenants.RemoveMember(ctx, owner, tenant.TenantID, agent.UserID)
	requireCode(t, err, connect.CodeNotFound)
}

// failingTenants rejects tenant writes while fail is set.
type failingTenants struct {
	*memory.TenantStore
	fail bool
}

func (s *failingTenants) Update(ctx context.Context, tenant *models.Tenant) error {
	if s.fail {
		return store.ErrVersionConflict
	}
	return s.TenantStore.Update(ctx, tenant)
}

func TestMembershipChangeIsUndoneWhenTenantWriteFails(t *testing.T) {
	tests := []struct {
		name   string
		change func(svc *TenantService, owner auth.Actor, tenantID, userID uuid.UUID) error
		member bool // membership before the change
	}{
		{
			name: "add",
			change: func(svc *TenantService, owner auth.Actor, tenantID, userID uuid.UUID) error {
				_, err := svc.AddMember(context.Background(), owner, tenantID, AddMemberInput{UserID: userID, Role: models.RoleAgent})
				return err
			},
		},
		{
			name: "remove",
			change: func(svc *TenantService, owner auth.Actor, tenantID, userID uuid.UUID) error {
				_, err := svc.RemoveMember(context.Background(), owner, tenantID, userID)
				return err
			},
			member: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")

			var user *models.User
			if tt.member {
				user, _ = env.users.Get(ctx, env.addMember(t, owner, tenant.TenantID, "agent@example.com", models.RoleAgent).UserID)
			} else {
				user = env.register(t, "agent@example.com")
			}

			tenants := &failingTenants{TenantStore: env.tenantsDB, fail: true}
			svc := NewTenantService(tenants, env.users, memory.NewPropertyStore(), memory.NewContactStore(), env.campaignDB, memory.NewAgentSessionStore())
			requireCode(t, tt.change(svc, owner, tenant.TenantID, user.UserID), connect.CodeAborted)

			got, err := env.users.Get(ctx, user.UserID)
			require.NoError(t, err)
			require.Equal(t, user.TenantID, got.TenantID)
			require.Equal(t, user.Role, got.Role)

			stored, err := env.tenantsDB.Get(ctx, tenant.TenantID)
			require.NoError(t, err)
			require.Equal(t, tt.member, stored.IsMember(user.UserID))
		})
	}
}

func TestMemberQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.register(t, "owner@example.com")
	tenant, err := env.Tenants.Create(ctx, env.actor(t, owner.UserID), CreateTenantInput{
		Name: "Small", BusinessID: "1", Quotas: &models.Quotas{MaxUsers: 2},
	})
	require.NoError(t, err)
	ownerActor := env.actor(t, owner.UserID)

	env.addMember(t, ownerActor, tenant.TenantID, "one@example.com", models.RoleAgent)
	extra := env.register(t, "two@example.com")
	_, err = env.Tenants.AddMember(ctx, ownerActor, tenant.TenantID, AddMemberInput{UserID: extra.UserID})
	requireCode(t, err, connect.CodeFailedPrecondition)
}

func TestDeleteTenantCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	env.addMember(t, owner, tenant.TenantID, "agent@example.com", models.RoleAgent)

	err := env.Tenants.Delete(ctx, owner, tenant.TenantID)
	requireCode(t, err, connect.CodePermissionDenied)

	require.NoError(t, env.Tenants.Delete(ctx, admin, tenant.TenantID))

	n, err := env.users.CountByTenant(ctx, tenant.TenantID)
	require.NoError(t, err)
	require.Zero(t, n)

	owner = env.actor(t, owner.UserID)
	_, err = env.Tenants.Get(ctx, owner, tenant.TenantID)
	requireCode(t, err, connect.CodeNotFound)
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	agent := env.addMember(t, owner, tenant.TenantID, "agent@example.com", models.RoleAgent)

	_, err := env.Tenants.TransferOwnership(ctx, owner, tenant.TenantID, agent.UserID)
	requireCode(t, err, connect.CodePermissionDenied)

	outsider := env.register(t, "outsider@example.com")
	_, err = env.Tenants.TransferOwnership(ctx, admin, tenant.TenantID, outsider.UserID)
	requireCode(t, err, connect.CodeInvalidArgument)

	updated, err := env.Tenants.TransferOwnership(ctx, admin, tenant.TenantID, agent.UserID)
	require.NoError(t, err)
	require.Equal(t, agent.UserID, updated.OwnerUserID)
	require.Equal(t, models.RoleManager, env.actor(t, agent.UserID).Role)

	// the previous owner can now be removed
	_, err = env.Tenants.RemoveMember(ctx, admin, tenant.TenantID, owner.UserID)
	require.NoError(t, err)
}

func TestTenantUpdateOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	manager := env.addMember(t, owner, tenant.TenantID, "manager@example.com", models.RoleManager)

	name := "Renamed"
	_, err := env.Tenants.Update(ctx, manager, tenant.TenantID, UpdateTenantInput{Name: &name})
	requireCode(t, err, connect.CodePermissionDenied)
	require.ErrorIs(t, err, auth.ErrOwnerOnly)

	updated, err := env.Tenants.Update(ctx, owner, tenant.TenantID, UpdateTenantInput{
		Name: &name,
		AI:   &AIConfigInput{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
	})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
	require.True(t, updated.AI.Configured())

	// changing the model keeps the stored key
	updated, err = env.Tenants.Update(ctx, owner, tenant.TenantID, UpdateTenantInput{
		AI: &AIConfigInput{Provider: "openai", Model: "gpt-4o"},
	})
	require.NoError(t, err)
	require.Equal(t, "sk-test", updated.AI.APIKey)

	_, err = env.Tenants.Update(ctx, owner, tenant.TenantID, UpdateTenantInput{AI: &AIConfigInput{Provider: "acme", APIKey: "k"}})
	requireCode(t, err, connect.CodeInvalidArgument)
}

func TestStaleVersionConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, manager := env.tenantWithManager(t, "owner@example.com", "111")

	p, err := env.Properties.Create(ctx, manager, CreatePropertyInput{Title: "Casa", Type: models.PropertyTypeHouse, Purpose: models.PropertyPurposeSale})
	require.NoError(t, err)

	price := 200.0
	updated, err := env.Properties.Update(ctx, manager, p.PropertyID, UpdatePropertyInput{Price: &price, Version: p.Version})
	require.NoError(t, err)
	require.Equal(t, p.Version+1, updated.Version)

	// the client still holds the first version
	_, err = env.Properties.Update(ctx, manager, p.PropertyID, UpdatePropertyInput{Price: &price, Version: p.Version})
	requireCode(t, err, connect.CodeAborted)
}

func TestSoftDeletedIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, manager := env.tenantWithManager(t, "owner@example.com", "111")

	p, err := env.Properties.Create(ctx, manager, CreatePropertyInput{Title: "Casa", Type: models.PropertyTypeHouse, Purpose: models.PropertyPurposeSale})
	require.NoError(t, err)
	require.NoError(t, env.Properties.Delete(ctx, manager, p.PropertyID))

	_, err = env.Properties.Get(ctx, manager, p.PropertyID)
	requireCode(t, err, connect.CodeNotFound)

	list, err := env.Properties.List(ctx, manager, store.PropertyFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestContactInteractionsAppend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, manager := env.tenantWithManager(t, "owner@example.com", "111")

	c, err := env.Contacts.Create(ctx, manager, CreateContactInput{Name: "Lead", Tags: []string{" VIP ", "vip", "praia"}})
	require.NoError(t, err)
	require.Equal(t, []string{"vip", "praia"}, c.Tags)

	_, err = env.Contacts.AddInteraction(ctx, manager, c.ContactID, InteractionInput{Type: models.InteractionCall, Description: "first call"})
	require.NoError(t, err)
	updated, err := env.Contacts.AddInteraction(ctx, manager, c.ContactID, InteractionInput{Type: models.InteractionVisit, Description: "visited"})
	require.NoError(t, err)
	require.Len(t, updated.Interactions, 2)
	require.Equal(t, "first call", updated.Interactions[0].Description)

	_, err = env.Contacts.AddInteraction(ctx, manager, c.ContactID, InteractionInput{Type: "fax", Description: "x"})
	requireCode(t, err, connect.CodeInvalidArgument)
}

func TestAdminBootstrapContact(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t)

	c, err := env.Contacts.Create(context.Background(), admin, CreateContactInput{Name: "Seed"})
	require.NoError(t, err)
	require.Nil(t, c.TenantID)
}

func TestCampaignLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, manager := env.tenantWithManager(t, "owner@example.com", "111")

	_, err := env.Contacts.Create(ctx, manager, CreateContactInput{Name: "Ana", Phone: "11987654321", Tags: []string{"vip"}})
	require.NoError(t, err)

	draft, err := env.Campaigns.Create(ctx, manager, CreateCampaignInput{
		Name:     "Draft",
		Template: models.MessageTemplate{Text: "Oi {{contact.name}}"},
		Audience: models.Audience{Filter: models.AudienceFilter{Tags: []string{"VIP"}}},
	})
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusDraft, draft.Status)
	require.Equal(t, 1, draft.Stats.AudienceSize)

	scheduled, err := env.Campaigns.Create(ctx, manager, CreateCampaignInput{
		Name:     "Now",
		Template: models.MessageTemplate{Text: "Oi"},
		Schedule: models.Schedule{SendImmediately: true},
	})
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.Schedule.StartDate)

	// pause is only allowed from scheduled
	_, err = env.Campaigns.Pause(ctx, manager, draft.CampaignID)
	requireCode(t, err, connect.CodeFailedPrecondition)
	paused, err := env.Campaigns.Pause(ctx, manager, scheduled.CampaignID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusPaused, paused.Status)

	cancelled, err := env.Campaigns.Cancel(ctx, manager, draft.CampaignID)
	require.NoError(t, err)
	require.Equal(t, models.CampaignStatusCancelled, cancelled.Status)
	_, err = env.Campaigns.Execute(ctx, manager, draft.CampaignID)
	requireCode(t, err, connect.CodeFailedPrecondition)
}

func TestCampaignRunningIsLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, manager := env.tenantWithManager(t, "owner@example.com", "111")

	c, err := env.Campaigns.Create(ctx, manager, CreateCampaignInput{Name: "C", Template: models.MessageTemplate{Text: "Oi"}})
	require.NoError(t, err)

	stored, err := env.campaignDB.Get(ctx, c.CampaignID)
	require.NoError(t, err)
	stored.Status = models.CampaignStatusRunning
	require.NoError(t, env.campaignDB.Update(ctx, stored))

	name := "renamed"
	_, err = env.Campaigns.Update(ctx, manager, c.CampaignID, UpdateCampaignInput{Name: &name})
	requireCode(t, err, connect.CodeFailedPrecondition)

	err = env.Campaigns.Delete(ctx, manager, c.CampaignID)
	requireCode(t, err, connect.CodeFailedPrecondition)
}

func TestUpdateRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.admin(t)

	tenant, owner := env.tenantWithManager(t, "owner@example.com", "111")
	agent := env.addMember(t, owner, tenant.TenantID, "agent@example.com", models.RoleAgent)

	u, err := env.Users.UpdateRole(ctx, owner, agent.UserID, models.RoleViewer)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, u.Role)

	_, err = env.Users.UpdateRole(ctx, owner, agent.UserID, models.RoleAdmin)
	requireCode(t, err, connect.CodePermissionDenied)

	_, err = env.Users.UpdateRole(ctx, agent, owner.UserID, models.RoleViewer)
	requireCode(t, err, connect.CodePermissionDenied)

	u, err = env.Users.UpdateRole(ctx, admin, agent.UserID, models.RoleManager)
	require.NoError(t, err)
	require.Equal(t, models.RoleManager, u.Role)

	_, err = env.Users.UpdateRole(ctx, admin, agent.UserID, "root")
	requireCode(t, err, connect.CodeInvalidArgument)
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lonely := env.register(t, "lonely@example.com")
	lonelyActor := env.actor(t, lonely.UserID)

	// self reads work without a tenant
	me, err := env.Users.Get(ctx, lonelyActor, lonely.UserID)
	require.NoError(t, err)
	require.Equal(t, lonely.Email, me.Email)

	_, owner := env.tenantWithManager(t, "owner@example.com", "111")
	_, err = env.Users.Get(ctx, lonelyActor, owner.UserID)
	requireCode(t, err, connect.CodePermissionDenied)

	users, err := env.Users.ListTenantUsers(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
}
