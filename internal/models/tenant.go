package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Tenant is an agency: the isolation boundary for properties, contacts and campaigns.
type Tenant struct {
	TenantID    uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	BusinessID  string      `json:"businessId"` // registration number (CNPJ), digits only, unique
	OwnerUserID uuid.UUID   `json:"ownerId"`
	MemberIDs   []uuid.UUID `json:"memberIds"` // always contains the owner
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`

	Quotas   Quotas         `json:"quotas"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	AI       AIConfig       `json:"ai"`

	IsActive  bool       `json:"isActive"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Quotas bound what a tenant may provision.
type Quotas struct {
	MaxChannels      int `json:"maxChannels"`
	MaxUsers         int `json:"maxUsers"`
	MaxAgentSessions int `json:"maxAgentSessions"`
}

// DefaultQuotas are applied to new tenants.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxChannels:      1,
		MaxUsers:         10,
		MaxAgentSessions: 100,
	}
}

// WhatsAppConfig identifies the messaging gateway instance used by the tenant.
type WhatsAppConfig struct {
	ChannelID string `json:"channelId,omitempty"`
}

// AIConfig holds the tenant's AI provider credentials. An empty APIKey means
// the agent runs in demo mode.
type AIConfig struct {
	Provider string `json:"provider,omitempty"` // "openai" or "openrouter"
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"-"`
	BaseURL  string `json:"baseUrl,omitempty"`
}

// Configured reports whether a provider can be built from the config.
func (c AIConfig) Configured() bool {
	return c.APIKey != ""
}

// IsMember reports whether userID is the owner or a member.
func (t *Tenant) IsMember(userID uuid.UUID) bool {
	return t.OwnerUserID == userID || slices.Contains(t.MemberIDs, userID)
}

// AddMember appends userID to the member list if absent. It reports whether
// the list changed.
func (t *Tenant) AddMember(userID uuid.UUID) bool {
	if slices.Contains(t.MemberIDs, userID) {
		return false
	}
	t.MemberIDs = append(t.MemberIDs, userID)
	return true
}

// RemoveMember drops userID from the member list. It reports whether the
// list changed.
func (t *Tenant) RemoveMember(userID uuid.UUID) bool {
	idx := slices.Index(t.MemberIDs, userID)
	if idx < 0 {
		return false
	}
	t.MemberIDs = slices.Delete(t.MemberIDs, idx, idx+1)
	return true
}
