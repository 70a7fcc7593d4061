package models

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// MessageTemplate is the body sent to every contact of the audience.
// Text may reference {{variable}} and {{contact.field}} placeholders.
type MessageTemplate struct {
	Text      string            `json:"text" yaml:"text"`
	MediaType string            `json:"mediaType,omitempty" yaml:"mediaType"` // image, video, document, audio
	MediaURL  string            `json:"mediaUrl,omitempty" yaml:"mediaUrl"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables"`
}

// HasMedia reports whether the template carries an attachment.
func (t MessageTemplate) HasMedia() bool {
	return t.MediaURL != ""
}

// AudienceFilter selects tenant contacts by status and tags.
type AudienceFilter struct {
	Statuses []ContactStatus `json:"statuses,omitempty" yaml:"statuses"`
	Tags     []string        `json:"tags,omitempty" yaml:"tags"`
}

// Audience is either an explicit contact list or a filter over the tenant's contacts.
type Audience struct {
	ContactIDs []uuid.UUID    `json:"contactIds,omitempty" yaml:"contactIds"`
	Filter     AudienceFilter `json:"filter" yaml:"filter"`
}

// Explicit reports whether the audience is a fixed list of contacts.
func (a Audience) Explicit() bool {
	return len(a.ContactIDs) > 0
}

type Schedule struct {
	SendImmediately bool       `json:"sendImmediately" yaml:"sendImmediately"`
	StartDate       *time.Time `json:"startDate,omitempty" yaml:"startDate"`
}

// CampaignStats records delivery outcomes. AudienceSize is computed at
// creation and is informational; Targeted is the audience resolved at
// execution time.
type CampaignStats struct {
	AudienceSize int        `json:"audienceSize"`
	Targeted     int        `json:"targeted"`
	Sent         int        `json:"sent"`
	Failed       int        `json:"failed"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Campaign is a WhatsApp broadcast to an audience of contacts.
type Campaign struct {
	CampaignID  uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenantId"`
	CreatedBy   uuid.UUID      `json:"createdBy"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      CampaignStatus `json:"status"`
	ChannelID   string         `json:"channelId,omitempty"`

	Template    MessageTemplate `json:"template"`
	Audience    Audience        `json:"audience"`
	Schedule    Schedule        `json:"schedule"`
	RateLimitMS int             `json:"rateLimitMs"`

	Stats     CampaignStats `json:"stats"`
	LastError string        `json:"lastError,omitempty"`

	IsActive  bool      `json:"isActive"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
