package models

import (
	"time"

	"github.com/google/uuid"
)

type AgentType string

const (
	AgentTypeGeneral         AgentType = "general"
	AgentTypeLeadQualifier   AgentType = "lead_qualifier"
	AgentTypePropertyAdvisor AgentType = "property_advisor"
)

func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeGeneral, AgentTypeLeadQualifier, AgentTypePropertyAdvisor:
		return true
	}
	return false
}

// SessionStatus is the lifecycle of the conversation.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusArchived  SessionStatus = "archived"
	SessionStatusError     SessionStatus = "error"
)

// AgentStatus is the execution phase of the orchestrator for a session.
type AgentStatus string

const (
	AgentStatusIdle             AgentStatus = "idle"
	AgentStatusThinking         AgentStatus = "thinking"
	AgentStatusExecuting        AgentStatus = "executing"
	AgentStatusWaiting          AgentStatus = "waiting"
	AgentStatusCompleted        AgentStatus = "completed"
	AgentStatusError            AgentStatus = "error"
	AgentStatusMaxTurnsExceeded AgentStatus = "max_turns_exceeded"
)

// Busy reports whether a turn is in flight.
func (s AgentStatus) Busy() bool {
	return s == AgentStatusThinking || s == AgentStatusExecuting
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ToolMetadata tags a transcript entry produced by a tool execution.
type ToolMetadata struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Success   bool           `json:"success"`
}

// AgentMessage is one transcript entry.
type AgentMessage struct {
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Tool      *ToolMetadata `json:"tool,omitempty"`
}

// AgentSession is the persisted conversation between a user and the agent.
type AgentSession struct {
	SessionID uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	TenantID  uuid.UUID `json:"tenantId"`
	AgentType AgentType `json:"agentType"`
	Title     string    `json:"title"`
	Goal      string    `json:"goal"`

	Status       SessionStatus  `json:"status"`
	AgentStatus  AgentStatus    `json:"agentStatus"`
	Messages     []AgentMessage `json:"messages"`
	MessageCount int            `json:"messageCount"`
	TurnCount    int            `json:"turnCount"`
	LastError    string         `json:"lastError,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Append adds a message to the transcript and keeps MessageCount in sync.
func (s *AgentSession) Append(msgs ...AgentMessage) {
	s.Messages = append(s.Messages, msgs...)
	s.MessageCount = len(s.Messages)
}

// Frozen reports whether the transcript can no longer change.
func (s *AgentSession) Frozen() bool {
	return s.Status == SessionStatusArchived
}
