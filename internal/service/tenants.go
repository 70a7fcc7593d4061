package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
)

// TenantService manages agencies and their membership.
type TenantService struct {
	tenants    store.TenantStore
	users      store.UserStore
	properties store.PropertyStore
	contacts   store.ContactStore
	campaigns  store.CampaignStore
	sessions   store.AgentSessionStore
}

func NewTenantService(
	tenants store.TenantStore,
	users store.UserStore,
	properties store.PropertyStore,
	contacts store.ContactStore,
	campaigns store.CampaignStore,
	sessions store.AgentSessionStore,
) *TenantService {
	return &TenantService{
		tenants:    tenants,
		users:      users,
		properties: properties,
		contacts:   contacts,
		campaigns:  campaigns,
		sessions:   sessions,
	}
}

type CreateTenantInput struct {
	Name       string         `json:"name"`
	BusinessID string         `json:"businessId"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Quotas     *models.Quotas `json:"quotas,omitempty"`
}

// UpdateTenantInput is a partial update; nil fields are left unchanged.
type UpdateTenantInput struct {
	Name              *string        `json:"name,omitempty"`
	Email             *string        `json:"email,omitempty"`
	Phone             *string        `json:"phone,omitempty"`
	Quotas            *models.Quotas `json:"quotas,omitempty"`
	WhatsAppChannelID *string        `json:"whatsappChannelId,omitempty"`
	AI                *AIConfigInput `json:"ai,omitempty"`
	Version           int64          `json:"-"`
}

// AIConfigInput carries provider credentials; the API key is write-only.
type AIConfigInput struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	BaseURL  string `json:"baseUrl,omitempty"`
}

type AddMemberInput struct {
	UserID uuid.UUID   `json:"userId"`
	Role   models.Role `json:"role,omitempty"`
}

// TenantStats are live counts, recomputed on every call.
type TenantStats struct {
	TenantID       uuid.UUID `json:"tenantId"`
	Properties     int       `json:"properties"`
	Contacts       int       `json:"contacts"`
	Campaigns      int       `json:"campaigns"`
	Members        int       `json:"members"`
	ActiveSessions int       `json:"activeSessions"`
}

// NormalizeBusinessID keeps only the digits of a registration number.
func NormalizeBusinessID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, id)
}

// Create registers a tenant owned by the actor and binds the actor to it.
// A previous tenant binding of the actor is overwritten.
func (s *TenantService) Create(ctx context.Context, actor auth.Actor, in CreateTenantInput) (*models.Tenant, error) {
	if err := auth.Authorize(ctx, actor, auth.ActionCreate, auth.NewResource(auth.KindTenant, nil)); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidArgument("name is required")
	}
	businessID := NormalizeBusinessID(in.BusinessID)
	if businessID == "" {
		return nil, invalidArgument("business id is required")
	}

	if _, err := s.tenants.GetByBusinessID(ctx, businessID); err == nil {
		return nil, alreadyExists("business id %s is already registered", businessID)
	} else if !errors.Is(err, store.ErrTenantNotFound) {
		return nil, storeError(ctx, "tenant", err)
	}

	quotas := models.DefaultQuotas()
	if in.Quotas != nil {
		if err := validateQuotas(*in.Quotas); err != nil {
			return nil, err
		}
		quotas = *in.Quotas
	}

	owner, err := s.users.Get(ctx, actor.UserID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}

	now := time.Now().UTC()
	tenant := &models.Tenant{
		TenantID:    uuid.Must(uuid.NewV7()),
		Name:        name,
		BusinessID:  businessID,
		OwnerUserID: actor.UserID,
		MemberIDs:   []uuid.UUID{actor.UserID},
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Quotas:      quotas,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, storeError(ctx, "tenant", err)
	}

	logger := zerolog.Ctx(ctx).With().
		Str("tenant_id", tenant.TenantID.String()).
		Str("user_id", owner.UserID.String()).
		Logger()

	if owner.TenantID != nil {
		logger.Warn().
			Str("previous_tenant_id", owner.TenantID.String()).
			Msg("Tenant binding replaced by new tenant")
	}

	id := tenant.TenantID
	owner.TenantID = &id
	if owner.Role == models.RoleViewer {
		owner.Role = models.RoleManager
	}
	if err := s.users.Update(ctx, owner); err != nil {
		return nil, storeError(ctx, "user", err)
	}

	logger.Info().Str("business_id", businessID).Msg("Tenant created")
	return tenant, nil
}

// load fetches a tenant, hiding deleted tenants from everyone but admins.
func (s *TenantService) load(ctx context.Context, actor auth.Actor, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, storeError(ctx, "tenant", err)
	}
	if !tenant.IsActive && !actor.IsAdmin() {
		return nil, notFound("tenant not found")
	}
	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, actor auth.Actor, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.TenantResource(tenant)); err != nil {
		return nil, err
	}
	return tenant, nil
}

// List returns every tenant. Admin only.
func (s *TenantService) List(ctx context.Context, actor auth.Actor, includeInactive bool, page store.Page) ([]*models.Tenant, error) {
	if err := auth.Authorize(ctx, actor, auth.ActionList, auth.NewResource(auth.KindTenant, nil)); err != nil {
		return nil, err
	}
	tenants, err := s.tenants.List(ctx, includeInactive, page)
	if err != nil {
		return nil, storeError(ctx, "tenant", err)
	}
	return tenants, nil
}

func validateQuotas(q models.Quotas) error {
	if q.MaxChannels < 0 || q.MaxUsers < 0 || q.MaxAgentSessions < 0 {
		return invalidArgument("quotas must not be negative")
	}
	return nil
}

// Update changes tenant settings. Allowed for the owner and admins.
func (s *TenantService) Update(ctx context.Context, actor auth.Actor, tenantID uuid.UUID, in UpdateTenantInput) (*models.Tenant, error) {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.TenantResource(tenant)); err != nil {
		return nil, err
	}
	if err := checkVersion(ctx, "tenant", in.Version, tenant.Version); err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalidArgument("name must not be empty")
		}
		tenant.Name = name
	}
	if in.Email != nil {
		tenant.Email = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		tenant.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Quotas != nil {
		if err := validateQuotas(*in.Quotas); err != nil {
			return nil, err
		}
		tenant.Quotas = *in.Quotas
	}
	if in.WhatsAppChannelID != nil {
		tenant.WhatsApp.ChannelID = strings.TrimSpace(*in.WhatsAppChannelID)
	}
	if in.AI != nil {
		ai, err := aiConfig(*in.AI, tenant.AI)
		if err != nil {
			return nil, err
		}
		tenant.AI = ai
	}

	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, storeError(ctx, "tenant", err)
	}
	return tenant, nil
}

// aiConfig validates new provider settings. An empty API key keeps the
// current key so clients can change the model without resending secrets.
func aiConfig(in AIConfigInput, current models.AIConfig) (models.AIConfig, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	switch provider {
	case "":
		// clearing the provider returns the tenant to demo mode
		return models.AIConfig{}, nil
	case "openai", "openrouter":
	default:
		return models.AIConfig{}, invalidArgument("unsupported ai provider %q", in.Provider)
	}

	cfg := models.AIConfig{
		Provider: provider,
		Model:    strings.TrimSpace(in.Model),
		APIKey:   in.APIKey,
		BaseURL:  strings.TrimSpace(in.BaseURL),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = current.APIKey
	}
	if cfg.APIKey == "" {
		return models.AIConfig{}, invalidArgument("ai api key is required")
	}
	return cfg, nil
}

// Delete soft-deletes the tenant and unbinds all of its users. Admin only.
func (s *TenantService) Delete(ctx context.Context, actor auth.Actor, tenantID uuid.UUID) error {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionDelete, auth.TenantResource(tenant)); err != nil {
		return err
	}
	if !tenant.IsActive {
		return notFound("tenant not found")
	}

	now := time.Now().UTC()
	tenant.IsActive = false
	tenant.DeletedAt = &now
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return storeError(ctx, "tenant", err)
	}

	cleared, err := s.users.ClearTenant(ctx, tenantID)
	if err != nil {
		return storeError(ctx, "user", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Int("users_unbound", cleared).
		Msg("Tenant deleted")

	return nil
}

// TransferOwnership makes an existing member the owner. Admin only.
func (s *TenantService) TransferOwnership(ctx context.Context, actor auth.Actor, tenantID, newOwnerID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionTransferOwnership, auth.TenantResource(tenant)); err != nil {
		return nil, err
	}
	if tenant.OwnerUserID == newOwnerID {
		return tenant, nil
	}

	user, err := s.users.Get(ctx, newOwnerID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	if !user.InTenant(tenantID) || !tenant.IsMember(newOwnerID) {
		return nil, invalidArgument("new owner must be a member of the tenant")
	}

	previous := tenant.OwnerUserID
	tenant.OwnerUserID = newOwnerID
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, storeError(ctx, "tenant", err)
	}

	if user.Role.Rank() < models.RoleManager.Rank() {
		user.Role = models.RoleManager
		if err := s.users.Update(ctx, user); err != nil {
			return nil, storeError(ctx, "user", err)
		}
	}

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Str("previous_owner_id", previous.String()).
		Str("owner_id", newOwnerID.String()).
		Msg("Tenant ownership transferred")

	return tenant, nil
}

// AddMember binds a user to the tenant with the given role (agent by default).
func (s *TenantService) AddMember(ctx context.Context, actor auth.Actor, tenantID uuid.UUID, in AddMemberInput) (*models.Tenant, error) {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionManageMembers, auth.TenantResource(tenant)); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleAgent
	}
	if !role.Valid() || role == models.RoleAdmin {
		return nil, invalidArgument("members cannot be given role %q", role)
	}

	if tenant.IsMember(in.UserID) {
		return nil, alreadyExists("user is already a member of the tenant")
	}

	user, err := s.users.Get(ctx, in.UserID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	if user.TenantID != nil && *user.TenantID != tenantID {
		return nil, alreadyExists("user belongs to another tenant")
	}

	if tenant.Quotas.MaxUsers > 0 {
		members, err := s.users.CountByTenant(ctx, tenantID)
		if err != nil {
			return nil, storeError(ctx, "user", err)
		}
		if members >= tenant.Quotas.MaxUsers {
			return nil, failedPrecondition("tenant has reached its limit of %d users", tenant.Quotas.MaxUsers)
		}
	}

	// The user is bound first so a failed tenant write can be undone on
	// the user alone.
	prevTenant, prevRole := user.TenantID, user.Role
	id := tenantID
	user.TenantID = &id
	if user.Role != models.RoleAdmin {
		user.Role = role
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError(ctx, "user", err)
	}

	tenant.AddMember(in.UserID)
	if err := s.tenants.Update(ctx, tenant); err != nil {
		s.restoreUser(ctx, user, prevTenant, prevRole)
		return nil, storeError(ctx, "tenant", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Str("member_id", user.UserID.String()).
		Str("role", string(user.Role)).
		Msg("Member added")

	return tenant, nil
}

// RemoveMember unbinds a user from the tenant. The owner can never be
// removed, whoever asks.
func (s *TenantService) RemoveMember(ctx context.Context, actor auth.Actor, tenantID, userID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.load(ctx, actor, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.OwnerUserID == userID {
		return nil, invalidArgument("cannot remove the tenant owner, transfer ownership first")
	}
	if err := auth.Authorize(ctx, actor, auth.ActionManageMembers, auth.TenantResource(tenant)); err != nil {
		return nil, err
	}
	if !tenant.RemoveMember(userID) {
		return nil, notFound("user is not a member of the tenant")
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return nil, storeError(ctx, "user", err)
	}
	unbound := err == nil && user.InTenant(tenantID)
	var prevTenant *uuid.UUID
	var prevRole models.Role
	if unbound {
		prevTenant, prevRole = user.TenantID, user.Role
		user.TenantID = nil
		if user.Role != models.RoleAdmin {
			user.Role = models.RoleViewer
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, storeError(ctx, "user", err)
		}
	}

	if err := s.tenants.Update(ctx, tenant); err != nil {
		if unbound {
			s.restoreUser(ctx, user, prevTenant, prevRole)
		}
		return nil, storeError(ctx, "tenant", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Str("member_id", userID.String()).
		Msg("Member removed")

	return tenant, nil
}

// restoreUser undoes a membership change on the user after the tenant write
// failed.
func (s *TenantService) restoreUser(ctx context.Context, user *models.User, tenantID *uuid.UUID, role models.Role) {
	user.TenantID = tenantID
	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("member_id", user.UserID.String()).
			Msg("Failed to restore user after tenant update failed")
	}
}

// Stats aggregates live counts for the tenant.
func (s *TenantService) Stats(ctx context.Context, actor auth.Actor, tenantID uuid.UUID) (*TenantStats, error) {
	if _, err := s.Get(ctx, actor, tenantID); err != nil {
		return nil, err
	}

	stats := &TenantStats{TenantID: tenantID}
	var err error
	if stats.Properties, err = s.properties.Count(ctx, tenantID); err != nil {
		return nil, storeError(ctx, "property", err)
	}
	if stats.Contacts, err = s.contacts.Count(ctx, tenantID); err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	if stats.Campaigns, err = s.campaigns.Count(ctx, tenantID); err != nil {
		return nil, storeError(ctx, "campaign", err)
	}
	if stats.Members, err = s.users.CountByTenant(ctx, tenantID); err != nil {
		return nil, storeError(ctx, "user", err)
	}
	if stats.ActiveSessions, err = s.sessions.CountActive(ctx, tenantID); err != nil {
		return nil, storeError(ctx, "agent session", err)
	}
	return stats, nil
}
