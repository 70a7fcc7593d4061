package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/agent/tools"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/store/memory"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays completions in order and records requests.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []func(req CompletionRequest) (*Completion, error)
	requests []CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	next := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return next(req)
}

func text(s string) func(CompletionRequest) (*Completion, error) {
	return func(CompletionRequest) (*Completion, error) { return &Completion{Text: s}, nil }
}

func calls(names ...string) func(CompletionRequest) (*Completion, error) {
	return func(CompletionRequest) (*Completion, error) {
		c := &Completion{}
		for i, n := range names {
			c.ToolCalls = append(c.ToolCalls, ToolCall{ID: string(rune('a' + i)), Name: n, Arguments: map[string]any{"n": i}})
		}
		return c, nil
	}
}

type fixture struct {
	orch     *Orchestrator
	sessions *memory.AgentSessionStore
	tenants  *memory.TenantStore
	pool     *worker.Pool
	provider *scriptedProvider
	built    int
	tenant   *models.Tenant
	actor    auth.Actor
	executed []string
}

func newFixture(t *testing.T, configured bool, cfg OrchestratorConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		sessions: memory.NewAgentSessionStore(),
		tenants:  memory.NewTenantStore(),
		pool:     worker.NewPool(4),
		provider: &scriptedProvider{},
	}
	users := memory.NewUserStore()

	tenantID := uuid.Must(uuid.NewV7())
	user := &models.User{
		UserID:   uuid.Must(uuid.NewV7()),
		Email:    "corretor@example.com",
		Name:     "Corretor",
		Role:     models.RoleAgent,
		TenantID: &tenantID,
		IsActive: true,
	}
	require.NoError(t, users.Create(ctx, user))

	f.tenant = &models.Tenant{
		TenantID:    tenantID,
		Name:        "Imobiliária",
		BusinessID:  "123",
		OwnerUserID: user.UserID,
		Quotas:      models.DefaultQuotas(),
		IsActive:    true,
	}
	if configured {
		f.tenant.AI = models.AIConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"}
	}
	require.NoError(t, f.tenants.Create(ctx, f.tenant))
	f.actor = auth.ActorFromUser(user)

	echo := tools.Tool{
		Name:        "echo",
		Description: "echo",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(_ context.Context, _ auth.Actor, args map[string]any) (any, error) {
			f.executed = append(f.executed, "echo")
			return args, nil
		},
	}
	broken := tools.Tool{
		Name:        "broken",
		Description: "always fails",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(context.Context, auth.Actor, map[string]any) (any, error) {
			f.executed = append(f.executed, "broken")
			return nil, errors.New("boom")
		},
	}

	factory := func(models.AIConfig) (Provider, error) {
		f.built++
		return f.provider, nil
	}
	f.orch = NewOrchestrator(cfg, f.sessions, f.tenants, users, tools.NewRegistry(echo, broken), factory, f.pool)
	return f
}

// session stores a thinking session with one user message, bypassing the pool.
func (f *fixture) session(t *testing.T, msg string) *models.AgentSession {
	t.Helper()
	s := &models.AgentSession{
		SessionID:   uuid.Must(uuid.NewV7()),
		UserID:      f.actor.UserID,
		TenantID:    f.tenant.TenantID,
		AgentType:   models.AgentTypeGeneral,
		Title:       msg,
		Goal:        msg,
		Status:      models.SessionStatusActive,
		AgentStatus: models.AgentStatusThinking,
		UpdatedAt:   time.Now().UTC(),
	}
	s.Append(models.AgentMessage{Role: models.MessageRoleUser, Content: msg, Timestamp: time.Now()})
	require.NoError(t, f.sessions.Create(context.Background(), s))
	return s
}

func TestRunTurnTextAnswer(t *testing.T) {
	f := newFixture(t, true, OrchestratorConfig{})
	f.provider.replies = append(f.provider.replies, text("Olá! Como posso ajudar?"))
	s := f.session(t, "oi")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	require.Len(t, got.Messages, 2)
	require.Equal(t, models.MessageRoleAssistant, got.Messages[1].Role)
	require.Equal(t, "Olá! Como posso ajudar?", got.Messages[1].Content)
	require.Nil(t, got.Messages[1].Tool)
	require.Equal(t, 1, got.TurnCount)
	require.Equal(t, 2, got.MessageCount)

	stored, err := f.sessions.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, got.Messages, stored.Messages)

	require.Len(t, f.provider.requests, 1)
	req := f.provider.requests[0]
	require.Equal(t, SystemPrompt(models.AgentTypeGeneral), req.SystemPrompt)
	require.Len(t, req.Tools, 2)
}

func TestRunTurnToolCalls(t *testing.T) {
	f := newFixture(t, true, OrchestratorConfig{})
	f.provider.replies = append(f.provider.replies, calls("echo", "broken", "missing"), text("Pronto."))
	s := f.session(t, "procure imóveis")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)

	// user, three tool results, final answer
	require.Len(t, got.Messages, 5)
	toolEntries := got.Messages[1:4]
	require.Equal(t, "echo", toolEntries[0].Tool.Name)
	require.True(t, toolEntries[0].Tool.Success)
	require.Equal(t, "broken", toolEntries[1].Tool.Name)
	require.False(t, toolEntries[1].Tool.Success)
	require.Contains(t, toolEntries[1].Content, "boom")
	require.Equal(t, "missing", toolEntries[2].Tool.Name)
	require.False(t, toolEntries[2].Tool.Success)
	require.Equal(t, "Pronto.", got.Messages[4].Content)

	require.Equal(t, []string{"echo", "broken"}, f.executed)
	require.Equal(t, 2, got.TurnCount)

	// second request sees the tool results
	require.Len(t, f.provider.requests, 2)
	require.Len(t, f.provider.requests[1].Messages, 4)
}

func TestRunTurnMaxTurns(t *testing.T) {
	f := newFixture(t, true, OrchestratorConfig{MaxTurns: 3})
	f.provider.replies = append(f.provider.replies, calls("echo"))
	s := f.session(t, "loop")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.AgentStatusMaxTurnsExceeded, got.AgentStatus)
	require.Len(t, f.provider.requests, 3)
	require.Len(t, got.Messages, 1+3+1)
	require.Equal(t, maxTurnsReply, got.Messages[len(got.Messages)-1].Content)
	require.Equal(t, 3, got.TurnCount)
}

func TestRunTurnDemoMode(t *testing.T) {
	f := newFixture(t, false, OrchestratorConfig{})
	s := f.session(t, "oi")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCompleted, got.Status)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	require.Len(t, got.Messages, 2)
	require.Equal(t, demoReply, got.Messages[1].Content)
	require.Zero(t, f.built)
	require.Empty(t, f.provider.requests)
}

func TestRunTurnProviderFailure(t *testing.T) {
	f := newFixture(t, true, OrchestratorConfig{})
	f.provider.replies = append(f.provider.replies, func(CompletionRequest) (*Completion, error) {
		return nil, errors.New("rate limited")
	})
	s := f.session(t, "oi")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.Error(t, err)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	require.Contains(t, got.LastError, "rate limited")
	require.Len(t, got.Messages, 1)

	stored, err := f.sessions.Get(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.AgentStatusIdle, stored.AgentStatus)
	require.Contains(t, stored.LastError, "rate limited")
}

func TestRunTurnInvalidCompletion(t *testing.T) {
	f := newFixture(t, true, OrchestratorConfig{})
	f.provider.replies = append(f.provider.replies, func(CompletionRequest) (*Completion, error) {
		return &Completion{Text: "both", ToolCalls: []ToolCall{{Name: "echo"}}}, nil
	})
	s := f.session(t, "oi")

	got, err := f.orch.RunTurn(context.Background(), s.SessionID)
	require.ErrorIs(t, err, ErrAmbiguousCompletion)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	require.Empty(t, f.executed)
}

func TestStartSessionAndChat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, OrchestratorConfig{})
	f.provider.replies = append(f.provider.replies, text("resposta"))

	s, err := f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: "  encontrar um apartamento  "})
	require.NoError(t, err)
	require.Equal(t, models.AgentTypeGeneral, s.AgentType)
	require.Equal(t, "encontrar um apartamento", s.Title)
	require.Equal(t, models.AgentStatusThinking, s.AgentStatus)
	f.pool.Wait()

	got, err := f.orch.Get(ctx, f.actor, s.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	require.Len(t, got.Messages, 2)

	_, err = f.orch.Chat(ctx, f.actor, s.SessionID, "e casas?")
	require.NoError(t, err)
	f.pool.Wait()

	got, err = f.orch.Get(ctx, f.actor, s.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "e casas?", got.Messages[2].Content)

	list, err := f.orch.List(ctx, f.actor, store.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestChatRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, OrchestratorConfig{})
	s := f.session(t, "oi")

	_, err := f.orch.Chat(ctx, f.actor, s.SessionID, "   ")
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	// still thinking on the first message
	_, err = f.orch.Chat(ctx, f.actor, s.SessionID, "de novo")
	require.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	require.ErrorIs(t, err, ErrAgentBusy)

	other := f.actor
	other.UserID = uuid.Must(uuid.NewV7())
	_, err = f.orch.Chat(ctx, other, s.SessionID, "olá")
	require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	archived, err := f.orch.Archive(ctx, f.actor, s.SessionID)
	require.NoError(t, err)
	require.True(t, archived.Frozen())

	_, err = f.orch.Chat(ctx, f.actor, s.SessionID, "olá")
	require.ErrorIs(t, err, ErrSessionArchived)

	_, err = f.orch.Get(ctx, f.actor, uuid.Must(uuid.NewV7()))
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestStartSessionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, OrchestratorConfig{})

	_, err := f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: ""})
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: "x", AgentType: "unknown"})
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	noTenant := auth.Actor{UserID: uuid.Must(uuid.NewV7()), Role: models.RoleViewer}
	_, err = f.orch.StartSession(ctx, noTenant, StartSessionInput{Goal: "x"})
	require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
}

func TestStartSessionQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, OrchestratorConfig{})
	f.tenant.Quotas.MaxAgentSessions = 1
	require.NoError(t, f.tenants.Update(ctx, f.tenant))

	_, err := f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: "primeira"})
	require.NoError(t, err)
	f.pool.Wait()

	_, err = f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: "segunda"})
	require.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestStartSessionPoolStopped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, OrchestratorConfig{})
	require.NoError(t, f.pool.Stop(ctx))

	_, err := f.orch.StartSession(ctx, f.actor, StartSessionInput{Goal: "oi"})
	require.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestCompletionValidate(t *testing.T) {
	require.ErrorIs(t, (&Completion{}).Validate(), ErrEmptyCompletion)
	require.ErrorIs(t, (&Completion{Text: "a", ToolCalls: []ToolCall{{Name: "x"}}}).Validate(), ErrAmbiguousCompletion)
	require.NoError(t, (&Completion{Text: "a"}).Validate())
	require.NoError(t, (&Completion{ToolCalls: []ToolCall{{Name: "x"}}}).Validate())
}
