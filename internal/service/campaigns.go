package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/campaign"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
)

// CampaignService manages campaign definitions and their lifecycle. Delivery
// itself is delegated to the campaign executor.
type CampaignService struct {
	campaigns store.CampaignStore
	contacts  store.ContactStore
	executor  *campaign.Executor
}

func NewCampaignService(campaigns store.CampaignStore, contacts store.ContactStore, executor *campaign.Executor) *CampaignService {
	return &CampaignService{campaigns: campaigns, contacts: contacts, executor: executor}
}

type CreateCampaignInput struct {
	TenantID    *uuid.UUID             `json:"tenantId,omitempty"`
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description"`
	ChannelID   string                 `json:"channelId,omitempty" yaml:"channelId"`
	Template    models.MessageTemplate `json:"template" yaml:"template"`
	Audience    models.Audience        `json:"audience" yaml:"audience"`
	Schedule    models.Schedule        `json:"schedule" yaml:"schedule"`
	RateLimitMS int                    `json:"rateLimitMs" yaml:"rateLimitMs"`
}

// UpdateCampaignInput is a partial update; nil fields are left unchanged.
type UpdateCampaignInput struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	ChannelID   *string                 `json:"channelId,omitempty"`
	Template    *models.MessageTemplate `json:"template,omitempty"`
	Audience    *models.Audience        `json:"audience,omitempty"`
	Schedule    *models.Schedule        `json:"schedule,omitempty"`
	RateLimitMS *int                    `json:"rateLimitMs,omitempty"`
	Version     int64                   `json:"-"`
}

func validateCampaign(c *models.Campaign) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalidArgument("name is required")
	}
	if strings.TrimSpace(c.Template.Text) == "" && !c.Template.HasMedia() {
		return invalidArgument("template text or media is required")
	}
	if c.Template.HasMedia() {
		switch c.Template.MediaType {
		case "image", "video", "document", "audio":
		default:
			return invalidArgument("invalid media type %q", c.Template.MediaType)
		}
	}
	for _, s := range c.Audience.Filter.Statuses {
		if !s.Valid() {
			return invalidArgument("invalid contact status %q in audience", s)
		}
	}
	if c.RateLimitMS < 0 {
		return invalidArgument("rate limit must not be negative")
	}
	return nil
}

// applySchedule moves a draft to scheduled when it has somewhere to go.
// Immediate campaigns get a start date of now so the scheduler picks them up.
func applySchedule(c *models.Campaign, now time.Time) {
	if c.Status != models.CampaignStatusDraft && c.Status != models.CampaignStatusScheduled {
		return
	}
	if c.Schedule.SendImmediately && c.Schedule.StartDate == nil {
		c.Schedule.StartDate = &now
	}
	if c.Schedule.StartDate != nil {
		c.Status = models.CampaignStatusScheduled
	} else {
		c.Status = models.CampaignStatusDraft
	}
}

func (s *CampaignService) Create(ctx context.Context, actor auth.Actor, in CreateCampaignInput) (*models.Campaign, error) {
	tenantID := resolveTenant(actor, in.TenantID)
	if err := auth.Authorize(ctx, actor, auth.ActionCreate, auth.NewResource(auth.KindCampaign, tenantID)); err != nil {
		return nil, err
	}
	if tenantID == nil {
		return nil, invalidArgument("tenant is required")
	}

	now := time.Now().UTC()
	c := &models.Campaign{
		CampaignID:  uuid.Must(uuid.NewV7()),
		TenantID:    *tenantID,
		CreatedBy:   actor.UserID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Status:      models.CampaignStatusDraft,
		ChannelID:   strings.TrimSpace(in.ChannelID),
		Template:    in.Template,
		Audience:    in.Audience,
		Schedule:    in.Schedule,
		RateLimitMS: in.RateLimitMS,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Audience.Filter.Tags = normalizeTags(c.Audience.Filter.Tags)
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	applySchedule(c, now)

	// informational only; the executor resolves the audience again at run time
	audience, err := campaign.ResolveAudience(ctx, s.contacts, c)
	if err != nil {
		return nil, storeError(ctx, "contact", err)
	}
	c.Stats.AudienceSize = len(audience)

	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, storeError(ctx, "campaign", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("campaign_id", c.CampaignID.String()).
		Str("tenant_id", c.TenantID.String()).
		Str("status", string(c.Status)).
		Int("audience_size", c.Stats.AudienceSize).
		Msg("Campaign created")

	return c, nil
}

func (s *CampaignService) load(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, storeError(ctx, "campaign", err)
	}
	if !c.IsActive {
		return nil, notFound("campaign not found")
	}
	return c, nil
}

func (s *CampaignService) Get(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, error) {
	c, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.CampaignResource(c)); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) List(ctx context.Context, actor auth.Actor, filter store.CampaignFilter) ([]*models.Campaign, error) {
	scope, err := auth.ListScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter.Scope = scope

	campaigns, err := s.campaigns.List(ctx, filter)
	if err != nil {
		return nil, storeError(ctx, "campaign", err)
	}
	return campaigns, nil
}

// Update edits a campaign that is not running.
func (s *CampaignService) Update(ctx context.Context, actor auth.Actor, campaignID uuid.UUID, in UpdateCampaignInput) (*models.Campaign, error) {
	c, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.CampaignResource(c)); err != nil {
		return nil, err
	}
	if err := checkVersion(ctx, "campaign", in.Version, c.Version); err != nil {
		return nil, err
	}
	if c.Status == models.CampaignStatusRunning {
		return nil, failedPrecondition("campaign is running and cannot be edited")
	}

	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.ChannelID != nil {
		c.ChannelID = strings.TrimSpace(*in.ChannelID)
	}
	if in.Template != nil {
		c.Template = *in.Template
	}
	if in.Audience != nil {
		c.Audience = *in.Audience
		c.Audience.Filter.Tags = normalizeTags(c.Audience.Filter.Tags)
	}
	if in.Schedule != nil {
		c.Schedule = *in.Schedule
		applySchedule(c, time.Now().UTC())
	}
	if in.RateLimitMS != nil {
		c.RateLimitMS = *in.RateLimitMS
	}
	if err := validateCampaign(c); err != nil {
		return nil, err
	}

	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, storeError(ctx, "campaign", err)
	}
	return c, nil
}

// Delete soft-deletes a campaign that is not running.
func (s *CampaignService) Delete(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) error {
	c, err := s.load(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionDelete, auth.CampaignResource(c)); err != nil {
		return err
	}
	if c.Status == models.CampaignStatusRunning {
		return failedPrecondition("campaign is running and cannot be deleted")
	}

	c.IsActive = false
	if err := s.campaigns.Update(ctx, c); err != nil {
		return storeError(ctx, "campaign", err)
	}
	return nil
}

// Pause holds a scheduled campaign. Executing it later resumes delivery.
func (s *CampaignService) Pause(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, error) {
	return s.transition(ctx, actor, campaignID, models.CampaignStatusPaused, models.CampaignStatusScheduled)
}

// Cancel ends a campaign that has not started.
func (s *CampaignService) Cancel(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, error) {
	return s.transition(ctx, actor, campaignID, models.CampaignStatusCancelled,
		models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusPaused)
}

func (s *CampaignService) transition(ctx context.Context, actor auth.Actor, campaignID uuid.UUID, to models.CampaignStatus, from ...models.CampaignStatus) (*models.Campaign, error) {
	c, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.CampaignResource(c)); err != nil {
		return nil, err
	}

	if !slices.Contains(from, c.Status) {
		return nil, failedPrecondition("cannot move campaign from %s to %s", c.Status, to)
	}

	c.Status = to
	if err := s.campaigns.Update(ctx, c); err != nil {
		return nil, storeError(ctx, "campaign", err)
	}
	return c, nil
}

// Execute starts delivery in the background and returns the running campaign.
func (s *CampaignService) Execute(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, error) {
	return s.executor.Start(ctx, actor, campaignID)
}
