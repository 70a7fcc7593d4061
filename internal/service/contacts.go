package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// ContactService manages leads and clients and their interaction history.
type ContactService struct {
	contacts store.ContactStore
	users    store.UserStore
}

func NewContactService(contacts store.ContactStore, users store.UserStore) *ContactService {
	return &ContactService{contacts: contacts, users: users}
}

type CreateContactInput struct {
	TenantID   *uuid.UUID           `json:"tenantId,omitempty"`
	AssignedTo *uuid.UUID           `json:"assignedTo,omitempty"`
	Name       string               `json:"name"`
	Email      string               `json:"email,omitempty"`
	Phone      string               `json:"phone,omitempty"`
	Status     models.ContactStatus `json:"status,omitempty"`
	Source     string               `json:"source,omitempty"`
	Tags       []string             `json:"tags,omitempty"`
	Notes      string               `json:"notes,omitempty"`
}

// UpdateContactInput is a partial update; nil fields are left unchanged.
type UpdateContactInput struct {
	AssignedTo *uuid.UUID            `json:"assignedTo,omitempty"`
	Name       *string               `json:"name,omitempty"`
	Email      *string               `json:"email,omitempty"`
	Phone      *string               `json:"phone,omitempty"`
	Status     *models.ContactStatus `json:"status,omitempty"`
	Source     *string               `json:"source,omitempty"`
	Tags       []string              `json:"tags,omitempty"`
	Notes      *string               `json:"notes,omitempty"`
	Version    int64                 `json:"-"`
}

type InteractionInput struct {
	Type        models.InteractionType `json:"type"`
	Description string                 `json:"description"`
	PropertyID  *uuid.UUID             `json:"propertyId,omitempty"`
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func validateContact(c *models.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalidArgument("name is required")
	}
	if !c.Status.Valid() {
		return invalidArgument("invalid contact status %q", c.Status)
	}
	if c.Email != "" {
		if _, err := normalizeEmail(c.Email); err != nil {
			return err
		}
	}
	return nil
}

// Create stores a contact. Admins without a tenant may create tenant-less
// bootstrap contacts; agents are always assigned their own contacts.
func (s *ContactService) Create(ctx context.Context, actor auth.Actor, in CreateContactInput) (*models.Contact, error) {
	tenantID := resolveTenant(actor, in.TenantID)
	if err := auth.Authorize(ctx, actor, auth.ActionCreate, auth.NewResource(auth.KindContact, tenantID)); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.ContactStatusLead
	}

	now := time.Now().UTC()
	contact := &models.Contact{
		ContactID:    uuid.Must(uuid.NewV7()),
		TenantID:     tenantID,
		CreatedBy:    actor.UserID,
		AssignedTo:   defaultAssignee(actor, in.AssignedTo),
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		Status:       status,
		Source:       in.Source,
		Tags:         normalizeTags(in.Tags),
		Notes:        in.Notes,
		Interactions: []models.Interaction{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateContact(contact); err != nil {
		return nil, err
	}
	if err := checkAssignee(ctx, s.users, actor, contact.AssignedTo, tenantID); err != nil {
		return nil, err
	}

	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	return contact, nil
}

func (s *ContactService) load(ctx context.Context, contactID uuid.UUID) (*models.Contact, error) {
	contact, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	if !contact.IsActive {
		return nil, notFound("contact not found")
	}
	return contact, nil
}

func (s *ContactService) Get(ctx context.Context, actor auth.Actor, contactID uuid.UUID) (*models.Contact, error) {
	contact, err := s.load(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.ContactResource(contact)); err != nil {
		return nil, err
	}
	return contact, nil
}

// List returns the contacts visible to the actor that match filter.
func (s *ContactService) List(ctx context.Context, actor auth.Actor, filter store.ContactFilter) ([]*models.Contact, error) {
	scope, err := auth.ListScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter.Scope = scope
	filter.Tags = normalizeTags(filter.Tags)

	contacts, err := s.contacts.List(ctx, filter)
	if err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	return contacts, nil
}

func (s *ContactService) Update(ctx context.Context, actor auth.Actor, contactID uuid.UUID, in UpdateContactInput) (*models.Contact, error) {
	contact, err := s.load(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.ContactResource(contact)); err != nil {
		return nil, err
	}
	if err := checkVersion(ctx, "contact", in.Version, contact.Version); err != nil {
		return nil, err
	}

	if in.AssignedTo != nil {
		if actor.Role == models.RoleAgent && *in.AssignedTo != actor.UserID {
			return nil, invalidArgument("agents cannot reassign contacts")
		}
		if err := checkAssignee(ctx, s.users, actor, in.AssignedTo, contact.TenantID); err != nil {
			return nil, err
		}
		contact.AssignedTo = in.AssignedTo
	}
	if in.Name != nil {
		contact.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		contact.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		contact.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Status != nil {
		contact.Status = *in.Status
	}
	if in.Source != nil {
		contact.Source = *in.Source
	}
	if in.Tags != nil {
		contact.Tags = normalizeTags(in.Tags)
	}
	if in.Notes != nil {
		contact.Notes = *in.Notes
	}
	if err := validateContact(contact); err != nil {
		return nil, err
	}

	if err := s.contacts.Update(ctx, contact); err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	return contact, nil
}

func (s *ContactService) Delete(ctx context.Context, actor auth.Actor, contactID uuid.UUID) error {
	contact, err := s.load(ctx, contactID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionDelete, auth.ContactResource(contact)); err != nil {
		return err
	}

	contact.IsActive = false
	if err := s.contacts.Update(ctx, contact); err != nil {
		return storeError(ctx, "contact", err)
	}
	return nil
}

// AddInteraction appends an entry to the contact's history. Entries are
// never edited or removed.
func (s *ContactService) AddInteraction(ctx context.Context, actor auth.Actor, contactID uuid.UUID, in InteractionInput) (*models.Contact, error) {
	if !in.Type.Valid() {
		return nil, invalidArgument("invalid interaction type %q", in.Type)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, invalidArgument("description is required")
	}

	contact, err := s.load(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.ContactResource(contact)); err != nil {
		return nil, err
	}

	contact.Interactions = append(contact.Interactions, models.Interaction{
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		Timestamp:   time.Now().UTC(),
		PropertyID:  in.PropertyID,
		CreatedBy:   actor.UserID,
	})
	if err := s.contacts.Update(ctx, contact); err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	return contact, nil
}
