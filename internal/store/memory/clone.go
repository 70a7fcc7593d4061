package memory

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
)

// Documents are deep-copied on the way in and out so callers can never
// mutate stored state without going through Update.

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.TenantID = cloneUUIDPtr(u.TenantID)
	c.LastSeenAt = cloneTimePtr(u.LastSeenAt)
	return &c
}

func cloneTenant(t *models.Tenant) *models.Tenant {
	c := *t
	c.MemberIDs = slices.Clone(t.MemberIDs)
	c.DeletedAt = cloneTimePtr(t.DeletedAt)
	return &c
}

func cloneProperty(p *models.Property) *models.Property {
	c := *p
	c.AssignedTo = cloneUUIDPtr(p.AssignedTo)
	c.Features = slices.Clone(p.Features)
	return &c
}

func cloneContact(ct *models.Contact) *models.Contact {
	c := *ct
	c.TenantID = cloneUUIDPtr(ct.TenantID)
	c.AssignedTo = cloneUUIDPtr(ct.AssignedTo)
	c.Tags = slices.Clone(ct.Tags)
	c.Interactions = make([]models.Interaction, len(ct.Interactions))
	for i, in := range ct.Interactions {
		in.PropertyID = cloneUUIDPtr(in.PropertyID)
		c.Interactions[i] = in
	}
	return &c
}

func cloneCampaign(cp *models.Campaign) *models.Campaign {
	c := *cp
	c.Template.Variables = maps.Clone(cp.Template.Variables)
	c.Audience.ContactIDs = slices.Clone(cp.Audience.ContactIDs)
	c.Audience.Filter.Statuses = slices.Clone(cp.Audience.Filter.Statuses)
	c.Audience.Filter.Tags = slices.Clone(cp.Audience.Filter.Tags)
	c.Schedule.StartDate = cloneTimePtr(cp.Schedule.StartDate)
	c.Stats.StartedAt = cloneTimePtr(cp.Stats.StartedAt)
	c.Stats.CompletedAt = cloneTimePtr(cp.Stats.CompletedAt)
	return &c
}

func cloneSession(s *models.AgentSession) *models.AgentSession {
	c := *s
	c.Messages = make([]models.AgentMessage, len(s.Messages))
	for i, m := range s.Messages {
		if m.Tool != nil {
			tool := *m.Tool
			tool.Arguments = maps.Clone(m.Tool.Arguments)
			m.Tool = &tool
		}
		c.Messages[i] = m
	}
	return &c
}

// paginate applies a normalized page to an already sorted slice.
func paginate[T any](items []T, page store.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return nil
	}
	end := min(page.Offset+page.Limit, len(items))
	return items[page.Offset:end]
}
