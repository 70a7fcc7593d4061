package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
)

// UserService handles registration, login and account administration.
type UserService struct {
	users   store.UserStore
	tenants store.TenantStore
	tokens  *auth.TokenIssuer
}

func NewUserService(users store.UserStore, tenants store.TenantStore, tokens *auth.TokenIssuer) *UserService {
	return &UserService{users: users, tenants: tenants, tokens: tokens}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidArgument("invalid email address %q", email)
	}
	return email, nil
}

// Register creates a user with the default role and no tenant.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.create(ctx, in, models.DefaultRole)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidArgument("name is required")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, alreadyExists("email %s is already registered", email)
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, storeError(ctx, "user", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeError(ctx, "user", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("user_id", user.UserID.String()).
		Str("role", string(role)).
		Msg("User registered")

	return user, nil
}

// Login checks credentials and issues a token. Unknown emails, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	unauthenticated := connect.NewError(connect.CodeUnauthenticated, errors.New("invalid email or password"))

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, unauthenticated
		}
		return nil, storeError(ctx, "user", err)
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, unauthenticated
	}

	token, expiresAt, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	now := time.Now().UTC()
	user.LastSeenAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		// a concurrent profile change only costs us the last-seen stamp
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", user.UserID.String()).Msg("Failed to record last seen")
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the actor's own profile.
func (s *UserService) Me(ctx context.Context, actor auth.Actor) (*models.User, error) {
	user, err := s.users.Get(ctx, actor.UserID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, actor auth.Actor, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.UserResource(user)); err != nil {
		return nil, err
	}
	return user, nil
}

// ListTenantUsers lists the users of tenantID, or of the actor's tenant
// when tenantID is nil.
func (s *UserService) ListTenantUsers(ctx context.Context, actor auth.Actor, tenantID *uuid.UUID) ([]*models.User, error) {
	if tenantID == nil {
		tenantID = actor.TenantID
	}
	if err := auth.Authorize(ctx, actor, auth.ActionList, auth.NewResource(auth.KindUser, tenantID)); err != nil {
		return nil, err
	}
	if tenantID == nil {
		return nil, invalidArgument("tenant is required")
	}

	users, err := s.users.ListByTenant(ctx, *tenantID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	return users, nil
}

// UpdateRole changes a user's role. Admins may set any role; a tenant owner
// may change the role of members of their own tenant but never grant admin.
func (s *UserService) UpdateRole(ctx context.Context, actor auth.Actor, userID uuid.UUID, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, invalidArgument("unknown role %q", role)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}

	if !actor.IsAdmin() {
		if err := s.authorizeOwnerOf(ctx, actor, user); err != nil {
			return nil, err
		}
		if role == models.RoleAdmin {
			return nil, connect.NewError(connect.CodePermissionDenied, auth.ErrAdminOnly)
		}
		if user.UserID == actor.UserID {
			return nil, invalidArgument("the tenant owner cannot change their own role")
		}
	}

	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError(ctx, "user", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("user_id", user.UserID.String()).
		Str("role", string(role)).
		Msg("User role updated")

	return user, nil
}

// authorizeOwnerOf allows the owner of the tenant the user belongs to.
func (s *UserService) authorizeOwnerOf(ctx context.Context, actor auth.Actor, user *models.User) error {
	if user.TenantID == nil {
		return auth.Authorize(ctx, actor, auth.ActionUpdate, auth.UserResource(user))
	}
	tenant, err := s.tenants.Get(ctx, *user.TenantID)
	if err != nil {
		return storeError(ctx, "tenant", err)
	}
	return auth.Authorize(ctx, actor, auth.ActionManageMembers, auth.TenantResource(tenant))
}

// Deactivate disables a user account. Admin only.
func (s *UserService) Deactivate(ctx context.Context, actor auth.Actor, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, storeError(ctx, "user", err)
	}
	if err := auth.Authorize(ctx, actor, auth.ActionDelete, auth.UserResource(user)); err != nil {
		return nil, err
	}
	if user.UserID == actor.UserID {
		return nil, invalidArgument("cannot deactivate your own account")
	}
	if !user.IsActive {
		return user, nil
	}

	user.IsActive = false
	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError(ctx, "user", err)
	}
	return user, nil
}

// EnsureAdmin creates the global admin account or promotes an existing user
// with the same email. The password is only set on creation.
func (s *UserService) EnsureAdmin(ctx context.Context, in RegisterInput) (*models.User, bool, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, false, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		user, err := s.create(ctx, in, models.RoleAdmin)
		return user, true, err
	case err != nil:
		return nil, false, storeError(ctx, "user", err)
	}

	if user.Role == models.RoleAdmin && user.IsActive {
		return user, false, nil
	}
	user.Role = models.RoleAdmin
	user.IsActive = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, false, storeError(ctx, "user", err)
	}
	return user, false, nil
}
