package auth

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Action is an operation an actor attempts on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionList    Action = "list"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"

	// Tenant-level actions.
	ActionManageMembers     Action = "manage_members"
	ActionTransferOwnership Action = "transfer_ownership"
)

// Kind identifies the type of resource being accessed.
type Kind string

const (
	KindTenant       Kind = "tenant"
	KindUser         Kind = "user"
	KindProperty     Kind = "property"
	KindContact      Kind = "contact"
	KindCampaign     Kind = "campaign"
	KindAgentSession Kind = "agent_session"
)

// Denial reasons.
var (
	ErrNoTenant     = errors.New("no tenant associated")
	ErrCrossTenant  = errors.New("cross-tenant access")
	ErrAdminOnly    = errors.New("requires global admin")
	ErrOwnerOnly    = errors.New("requires the tenant owner")
	ErrNotAssigned  = errors.New("resource is not assigned to you")
	ErrReadOnly     = errors.New("read-only role")
	ErrUnknownRole  = errors.New("unknown role")
	ErrNotSessionOf = errors.New("session belongs to another user")
)

// Actor is the authenticated identity performing an operation. Role and
// tenant binding are always loaded fresh from the user store.
type Actor struct {
	UserID   uuid.UUID
	Role     models.Role
	TenantID *uuid.UUID
}

// ActorFromUser builds the actor for a stored user.
func ActorFromUser(u *models.User) Actor {
	a := Actor{UserID: u.UserID, Role: u.Role}
	if u.TenantID != nil {
		id := *u.TenantID
		a.TenantID = &id
	}
	return a
}

// IsAdmin reports whether the actor is a global administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// InTenant reports whether the actor is bound to tenantID.
func (a Actor) InTenant(tenantID uuid.UUID) bool {
	return a.TenantID != nil && *a.TenantID == tenantID
}

// Resource describes the target of an authorization decision.
type Resource struct {
	Kind       Kind
	ID         uuid.UUID
	TenantID   *uuid.UUID
	CreatedBy  uuid.UUID
	AssignedTo *uuid.UUID
	OwnerID    uuid.UUID // tenant owner, KindTenant only
}

// TenantResource describes a tenant for tenant-level decisions.
func TenantResource(t *models.Tenant) Resource {
	id := t.TenantID
	return Resource{Kind: KindTenant, ID: t.TenantID, TenantID: &id, OwnerID: t.OwnerUserID}
}

// UserResource describes a user profile.
func UserResource(u *models.User) Resource {
	return Resource{Kind: KindUser, ID: u.UserID, TenantID: u.TenantID, CreatedBy: u.UserID}
}

func PropertyResource(p *models.Property) Resource {
	id := p.TenantID
	return Resource{Kind: KindProperty, ID: p.PropertyID, TenantID: &id, CreatedBy: p.CreatedBy, AssignedTo: p.AssignedTo}
}

func ContactResource(c *models.Contact) Resource {
	return Resource{Kind: KindContact, ID: c.ContactID, TenantID: c.TenantID, CreatedBy: c.CreatedBy, AssignedTo: c.AssignedTo}
}

func CampaignResource(c *models.Campaign) Resource {
	id := c.TenantID
	return Resource{Kind: KindCampaign, ID: c.CampaignID, TenantID: &id, CreatedBy: c.CreatedBy}
}

func SessionResource(s *models.AgentSession) Resource {
	id := s.TenantID
	return Resource{Kind: KindAgentSession, ID: s.SessionID, TenantID: &id, CreatedBy: s.UserID}
}

// NewResource describes a resource about to be created in the actor's
// tenant. tenantID may be nil for admin bootstrap contacts.
func NewResource(kind Kind, tenantID *uuid.UUID) Resource {
	return Resource{Kind: kind, TenantID: tenantID}
}

// Authorize decides whether actor may perform action on res. It returns nil
// or a connect.CodePermissionDenied error carrying the denial reason.
func Authorize(ctx context.Context, actor Actor, action Action, res Resource) error {
	reason := decide(actor, action, res)
	if reason == nil {
		return nil
	}

	telemetry.GetMetrics().AuthzDeniedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(res.Kind)),
		attribute.String("action", string(action)),
		attribute.String("role", string(actor.Role)),
	))

	return connect.NewError(connect.CodePermissionDenied, fmt.Errorf("%s %s: %w", action, res.Kind, reason))
}

// decide applies the rules in precedence order: admin, tenant binding,
// tenant match, then role narrowing.
func decide(actor Actor, action Action, res Resource) error {
	if actor.IsAdmin() {
		return nil
	}

	// Profile reads of oneself are not tenant-scoped.
	if res.Kind == KindUser && action == ActionRead && res.ID == actor.UserID {
		return nil
	}

	if res.Kind == KindTenant {
		return decideTenant(actor, action, res)
	}

	if actor.TenantID == nil {
		return ErrNoTenant
	}
	if res.TenantID == nil || *res.TenantID != *actor.TenantID {
		return ErrCrossTenant
	}

	switch res.Kind {
	case KindUser:
		// listing and reading colleagues; account changes go through admin
		// or tenant-level membership actions
		if action == ActionRead || action == ActionList {
			return nil
		}
		return ErrAdminOnly
	case KindAgentSession:
		if action == ActionCreate || action == ActionList || res.CreatedBy == actor.UserID {
			return nil
		}
		return ErrNotSessionOf
	}

	return decideRole(actor, action, res)
}

func decideTenant(actor Actor, action Action, res Resource) error {
	switch action {
	case ActionCreate:
		return nil
	case ActionList, ActionDelete, ActionTransferOwnership:
		return ErrAdminOnly
	}

	if actor.TenantID == nil {
		return ErrNoTenant
	}
	if res.TenantID == nil || *res.TenantID != *actor.TenantID {
		return ErrCrossTenant
	}

	switch action {
	case ActionRead:
		return nil
	case ActionUpdate, ActionManageMembers:
		if res.OwnerID == actor.UserID {
			return nil
		}
		return ErrOwnerOnly
	default:
		return ErrAdminOnly
	}
}

func decideRole(actor Actor, action Action, res Resource) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleManager:
		return nil
	case models.RoleAgent:
		switch action {
		case ActionCreate, ActionList:
			return nil
		default:
			if store.Owns(actor.UserID, res.CreatedBy, res.AssignedTo) {
				return nil
			}
			return ErrNotAssigned
		}
	case models.RoleViewer:
		if action == ActionRead || action == ActionList {
			return nil
		}
		return ErrReadOnly
	default:
		return ErrUnknownRole
	}
}

// ListScope returns the pre-filter applied to resource listings for actor.
// Admins see every tenant, agents only their own resources, everyone else
// their whole tenant.
func ListScope(ctx context.Context, actor Actor) (store.Scope, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return store.Scope{}, nil
	case models.RoleManager, models.RoleViewer, models.RoleAgent:
	default:
		return store.Scope{}, connect.NewError(connect.CodePermissionDenied, ErrUnknownRole)
	}

	if actor.TenantID == nil {
		telemetry.GetMetrics().AuthzDeniedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(ActionList)),
			attribute.String("role", string(actor.Role)),
		))
		return store.Scope{}, connect.NewError(connect.CodePermissionDenied, ErrNoTenant)
	}

	scope := store.TenantScope(*actor.TenantID)
	if actor.Role == models.RoleAgent {
		owner := actor.UserID
		scope.OwnerID = &owner
	}
	return scope, nil
}
