package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/client"
	"github.com/imobflow/imobflow/internal/models"
)

type AgentCmd struct {
	Chat AgentChatCmd `cmd:"" help:"Talk to the assistant"`
}

type AgentChatCmd struct {
	Message  []string      `arg:"" help:"Message to send"`
	Session  string        `help:"Continue an existing session instead of starting one"`
	Type     string        `help:"Agent type for new sessions (general, lead_qualifier, property_advisor)" default:"general"`
	Timeout  time.Duration `help:"How long to wait for the answer" default:"2m"`
	Interval time.Duration `help:"Polling interval" default:"1s"`
}

func (a *AgentChatCmd) Run(ctx context.Context, globals *Globals) error {
	message := strings.TrimSpace(strings.Join(a.Message, " "))
	if message == "" {
		return fmt.Errorf("message is required")
	}

	api, _, err := globals.connect()
	if err != nil {
		return err
	}

	var session *models.AgentSession
	if a.Session == "" {
		session, err = api.StartSession(ctx, client.StartSessionRequest{
			AgentType: models.AgentType(a.Type),
			Goal:      message,
		})
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		fmt.Fprintf(globals.out(), "Session %s\n", session.SessionID)
	} else {
		id, err := uuid.Parse(a.Session)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", a.Session, err)
		}
		session, err = api.Chat(ctx, id, message)
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	seen := len(session.Messages)

	waitCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	done, err := api.WaitSession(waitCtx, session.SessionID, a.Interval)
	if err != nil {
		return fmt.Errorf("waiting for the assistant: %w", err)
	}

	printTranscript(globals, done.Messages[min(seen, len(done.Messages)):])
	if done.LastError != "" {
		return fmt.Errorf("assistant failed: %s", done.LastError)
	}
	return nil
}

func printTranscript(globals *Globals, messages []models.AgentMessage) {
	out := globals.out()
	for _, m := range messages {
		if m.Tool != nil {
			status := "ok"
			if !m.Tool.Success {
				status = "failed"
			}
			fmt.Fprintf(out, "  [%s: %s]\n", m.Tool.Name, status)
			continue
		}
		if m.Role == models.MessageRoleAssistant {
			fmt.Fprintf(out, "\n%s\n", m.Content)
		}
	}
}
