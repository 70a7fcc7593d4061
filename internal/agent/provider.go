// Package agent runs AI assistant sessions that can call CRM tools.
package agent

import (
	"context"
	"errors"

	"github.com/imobflow/imobflow/internal/agent/tools"
	"github.com/imobflow/imobflow/internal/models"
)

// Provider is an AI chat completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest is one round trip to the model.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []models.AgentMessage
	Tools        []tools.Schema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Completion is the model's answer: either final text or tool calls.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

var (
	ErrEmptyCompletion     = errors.New("provider returned neither text nor tool calls")
	ErrAmbiguousCompletion = errors.New("provider returned both text and tool calls")
)

// Validate enforces that exactly one of Text and ToolCalls is set.
func (c *Completion) Validate() error {
	hasText := c.Text != ""
	hasCalls := len(c.ToolCalls) > 0
	switch {
	case hasText && hasCalls:
		return ErrAmbiguousCompletion
	case !hasText && !hasCalls:
		return ErrEmptyCompletion
	}
	return nil
}

// ProviderFactory builds a provider from a tenant's AI configuration.
type ProviderFactory func(cfg models.AIConfig) (Provider, error)
