package models

import (
	"time"

	"github.com/google/uuid"
)

type ContactStatus string

const (
	ContactStatusLead     ContactStatus = "lead"
	ContactStatusProspect ContactStatus = "prospect"
	ContactStatusClient   ContactStatus = "client"
	ContactStatusInactive ContactStatus = "inactive"
)

func (s ContactStatus) Valid() bool {
	switch s {
	case ContactStatusLead, ContactStatusProspect, ContactStatusClient, ContactStatusInactive:
		return true
	}
	return false
}

type InteractionType string

const (
	InteractionCall     InteractionType = "call"
	InteractionEmail    InteractionType = "email"
	InteractionWhatsApp InteractionType = "whatsapp"
	InteractionMeeting  InteractionType = "meeting"
	InteractionVisit    InteractionType = "visit"
	InteractionNote     InteractionType = "note"
)

func (t InteractionType) Valid() bool {
	switch t {
	case InteractionCall, InteractionEmail, InteractionWhatsApp, InteractionMeeting, InteractionVisit, InteractionNote:
		return true
	}
	return false
}

// Interaction is an immutable entry in a contact's history.
type Interaction struct {
	Type        InteractionType `json:"type"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	PropertyID  *uuid.UUID      `json:"propertyId,omitempty"`
	CreatedBy   uuid.UUID       `json:"createdBy"`
}

// Contact is a lead or client of a tenant.
type Contact struct {
	ContactID  uuid.UUID  `json:"id"`
	TenantID   *uuid.UUID `json:"tenantId,omitempty"` // nil only for bootstrap contacts created by an admin
	CreatedBy  uuid.UUID  `json:"createdBy"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`

	Name   string        `json:"name"`
	Email  string        `json:"email,omitempty"`
	Phone  string        `json:"phone,omitempty"`
	Status ContactStatus `json:"status"`
	Source string        `json:"source,omitempty"`
	Tags   []string      `json:"tags,omitempty"`
	Notes  string        `json:"notes,omitempty"`

	Interactions []Interaction `json:"interactions"`

	IsActive  bool      `json:"isActive"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
