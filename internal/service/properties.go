package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// PropertyService manages listings.
type PropertyService struct {
	properties store.PropertyStore
	users      store.UserStore
}

func NewPropertyService(properties store.PropertyStore, users store.UserStore) *PropertyService {
	return &PropertyService{properties: properties, users: users}
}

type CreatePropertyInput struct {
	TenantID     *uuid.UUID             `json:"tenantId,omitempty"` // admins only; others use their own tenant
	AssignedTo   *uuid.UUID             `json:"assignedTo,omitempty"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description,omitempty"`
	Type         models.PropertyType    `json:"type"`
	Purpose      models.PropertyPurpose `json:"purpose"`
	Status       models.PropertyStatus  `json:"status,omitempty"`
	Price        float64                `json:"price"`
	Area         float64                `json:"area,omitempty"`
	Bedrooms     int                    `json:"bedrooms,omitempty"`
	Bathrooms    int                    `json:"bathrooms,omitempty"`
	ParkingSpots int                    `json:"parkingSpots,omitempty"`
	Address      models.Address         `json:"address"`
	Features     []string               `json:"features,omitempty"`
}

// UpdatePropertyInput is a partial update; nil fields are left unchanged.
type UpdatePropertyInput struct {
	AssignedTo   *uuid.UUID              `json:"assignedTo,omitempty"`
	Title        *string                 `json:"title,omitempty"`
	Description  *string                 `json:"description,omitempty"`
	Type         *models.PropertyType    `json:"type,omitempty"`
	Purpose      *models.PropertyPurpose `json:"purpose,omitempty"`
	Status       *models.PropertyStatus  `json:"status,omitempty"`
	Price        *float64                `json:"price,omitempty"`
	Area         *float64                `json:"area,omitempty"`
	Bedrooms     *int                    `json:"bedrooms,omitempty"`
	Bathrooms    *int                    `json:"bathrooms,omitempty"`
	ParkingSpots *int                    `json:"parkingSpots,omitempty"`
	Address      *models.Address         `json:"address,omitempty"`
	Features     []string                `json:"features,omitempty"`
	Version      int64                   `json:"-"`
}

// resolveTenant picks the tenant a new document is created in. Only admins
// may name a tenant explicitly.
func resolveTenant(actor auth.Actor, requested *uuid.UUID) *uuid.UUID {
	if actor.IsAdmin() && requested != nil {
		id := *requested
		return &id
	}
	return actor.TenantID
}

// defaultAssignee assigns documents created by agents to themselves.
func defaultAssignee(actor auth.Actor, requested *uuid.UUID) *uuid.UUID {
	if actor.Role == models.RoleAgent {
		id := actor.UserID
		return &id
	}
	return requested
}

// checkAssignee requires the assignee to be an active user bound to the
// document's tenant.
func checkAssignee(ctx context.Context, users store.UserStore, actor auth.Actor, assignee, tenantID *uuid.UUID) error {
	if assignee == nil || *assignee == actor.UserID {
		return nil
	}
	user, err := users.Get(ctx, *assignee)
	if errors.Is(err, store.ErrUserNotFound) {
		return invalidArgument("assignee %s does not exist", *assignee)
	}
	if err != nil {
		return storeError(ctx, "user", err)
	}
	if !user.IsActive {
		return invalidArgument("assignee %s is deactivated", *assignee)
	}
	if tenantID != nil && !user.InTenant(*tenantID) {
		return invalidArgument("assignee %s is not a member of the tenant", *assignee)
	}
	return nil
}

func validateProperty(p *models.Property) error {
	if strings.TrimSpace(p.Title) == "" {
		return invalidArgument("title is required")
	}
	if !p.Type.Valid() {
		return invalidArgument("invalid property type %q", p.Type)
	}
	if !p.Purpose.Valid() {
		return invalidArgument("invalid property purpose %q", p.Purpose)
	}
	if !p.Status.Valid() {
		return invalidArgument("invalid property status %q", p.Status)
	}
	if p.Price < 0 || p.Area < 0 || p.Bedrooms < 0 || p.Bathrooms < 0 || p.ParkingSpots < 0 {
		return invalidArgument("numeric fields must not be negative")
	}
	return nil
}

func (s *PropertyService) Create(ctx context.Context, actor auth.Actor, in CreatePropertyInput) (*models.Property, error) {
	tenantID := resolveTenant(actor, in.TenantID)
	if err := auth.Authorize(ctx, actor, auth.ActionCreate, auth.NewResource(auth.KindProperty, tenantID)); err != nil {
		return nil, err
	}
	if tenantID == nil {
		return nil, invalidArgument("tenant is required")
	}

	status := in.Status
	if status == "" {
		status = models.PropertyStatusAvailable
	}

	now := time.Now().UTC()
	property := &models.Property{
		PropertyID:   uuid.Must(uuid.NewV7()),
		TenantID:     *tenantID,
		CreatedBy:    actor.UserID,
		AssignedTo:   defaultAssignee(actor, in.AssignedTo),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Type:         in.Type,
		Purpose:      in.Purpose,
		Status:       status,
		Price:        in.Price,
		Area:         in.Area,
		Bedrooms:     in.Bedrooms,
		Bathrooms:    in.Bathrooms,
		ParkingSpots: in.ParkingSpots,
		Address:      in.Address,
		Features:     in.Features,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateProperty(property); err != nil {
		return nil, err
	}
	if err := checkAssignee(ctx, s.users, actor, property.AssignedTo, tenantID); err != nil {
		return nil, err
	}

	if err := s.properties.Create(ctx, property); err != nil {
		return nil, storeError(ctx, "property", err)
	}
	return property, nil
}

// load returns an active property; soft-deleted ones are reported as not found.
func (s *PropertyService) load(ctx context.Context, propertyID uuid.UUID) (*models.Property, error) {
	property, err := s.properties.Get(ctx, propertyID)
	if err != nil {
		return nil, storeError(ctx, "property", err)
	}
	if !property.IsActive {
		return nil, notFound("property not found")
	}
	return property, nil
}

func (s *PropertyService) Get(ctx context.Context, actor auth.Actor, propertyID uuid.UUID) (*models.Property, error) {
	property, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.PropertyResource(property)); err != nil {
		return nil, err
	}
	return property, nil
}

// List returns the properties visible to the actor that match filter.
// The filter's scope is always replaced by the actor's list scope.
func (s *PropertyService) List(ctx context.Context, actor auth.Actor, filter store.PropertyFilter) ([]*models.Property, error) {
	scope, err := auth.ListScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter.Scope = scope

	properties, err := s.properties.List(ctx, filter)
	if err != nil {
		return nil, storeError(ctx, "property", err)
	}
	return properties, nil
}

func (s *PropertyService) Update(ctx context.Context, actor auth.Actor, propertyID uuid.UUID, in UpdatePropertyInput) (*models.Property, error) {
	property, err := s.load(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.PropertyResource(property)); err != nil {
		return nil, err
	}
	if err := checkVersion(ctx, "property", in.Version, property.Version); err != nil {
		return nil, err
	}

	if in.AssignedTo != nil {
		if actor.Role == models.RoleAgent && *in.AssignedTo != actor.UserID {
			return nil, invalidArgument("agents cannot reassign properties")
		}
		if err := checkAssignee(ctx, s.users, actor, in.AssignedTo, &property.TenantID); err != nil {
			return nil, err
		}
		property.AssignedTo = in.AssignedTo
	}
	if in.Title != nil {
		property.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		property.Description = *in.Description
	}
	if in.Type != nil {
		property.Type = *in.Type
	}
	if in.Purpose != nil {
		property.Purpose = *in.Purpose
	}
	if in.Status != nil {
		property.Status = *in.Status
	}
	if in.Price != nil {
		property.Price = *in.Price
	}
	if in.Area != nil {
		property.Area = *in.Area
	}
	if in.Bedrooms != nil {
		property.Bedrooms = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		property.Bathrooms = *in.Bathrooms
	}
	if in.ParkingSpots != nil {
		property.ParkingSpots = *in.ParkingSpots
	}
	if in.Address != nil {
		property.Address = *in.Address
	}
	if in.Features != nil {
		property.Features = in.Features
	}
	if err := validateProperty(property); err != nil {
		return nil, err
	}

	if err := s.properties.Update(ctx, property); err != nil {
		return nil, storeError(ctx, "property", err)
	}
	return property, nil
}

// Delete soft-deletes a property.
func (s *PropertyService) Delete(ctx context.Context, actor auth.Actor, propertyID uuid.UUID) error {
	property, err := s.load(ctx, propertyID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionDelete, auth.PropertyResource(property)); err != nil {
		return err
	}

	property.IsActive = false
	if err := s.properties.Update(ctx, property); err != nil {
		return storeError(ctx, "property", err)
	}
	return nil
}
