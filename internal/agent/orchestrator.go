package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/agent/tools"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrSessionArchived = errors.New("session is archived")
	ErrAgentBusy       = errors.New("agent is still working on the previous message")
)

// OrchestratorConfig tunes the agent loop.
type OrchestratorConfig struct {
	// MaxTurns caps provider calls per chat message.
	MaxTurns int

	// CacheSize bounds the number of tenant providers kept.
	CacheSize int

	// ProviderTimeout applies to each provider request.
	ProviderTimeout time.Duration

	// StaleAfter lets a new message through when a session has been
	// thinking for longer than this, e.g. after a restart.
	StaleAfter time.Duration

	// SaveAttempts bounds retries of transcript writes on version conflicts.
	SaveAttempts uint
}

func (c *OrchestratorConfig) Validate() error {
	if c.MaxTurns < 1 {
		return errors.New("max turns must be at least 1")
	}
	if c.CacheSize < 1 {
		return errors.New("provider cache size must be at least 1")
	}
	return nil
}

func (c *OrchestratorConfig) ApplyDefaults() {
	if c.MaxTurns == 0 {
		c.MaxTurns = 8
	}
	if c.CacheSize == 0 {
		c.CacheSize = 64
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 60 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.SaveAttempts == 0 {
		c.SaveAttempts = 5
	}
}

// Orchestrator runs agent sessions: it feeds the transcript to the tenant's
// AI provider, executes requested tools one at a time and records the results.
type Orchestrator struct {
	cfg       OrchestratorConfig
	sessions  store.AgentSessionStore
	tenants   store.TenantStore
	users     store.UserStore
	registry  *tools.Registry
	providers *ProviderCache
	pool      *worker.Pool
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil factory builds OpenAI
// compatible providers.
func NewOrchestrator(
	cfg OrchestratorConfig,
	sessions store.AgentSessionStore,
	tenants store.TenantStore,
	users store.UserStore,
	registry *tools.Registry,
	factory ProviderFactory,
	pool *worker.Pool,
) *Orchestrator {
	cfg.ApplyDefaults()
	if factory == nil {
		timeout := cfg.ProviderTimeout
		factory = func(ai models.AIConfig) (Provider, error) {
			return NewOpenAIProvider(ai, timeout)
		}
	}
	return &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		tenants:   tenants,
		users:     users,
		registry:  registry,
		providers: NewProviderCache(cfg.CacheSize, factory),
		pool:      pool,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type StartSessionInput struct {
	AgentType models.AgentType `json:"agentType,omitempty"`
	Title     string           `json:"title,omitempty"`
	Goal      string           `json:"goal"`
}

// Tools describes the tools available to the agent.
func (o *Orchestrator) Tools() []tools.Schema {
	return o.registry.Schemas()
}

// StartSession creates a session whose first message is the goal and starts
// working on it in the background.
func (o *Orchestrator) StartSession(ctx context.Context, actor auth.Actor, in StartSessionInput) (*models.AgentSession, error) {
	if err := auth.Authorize(ctx, actor, auth.ActionCreate, auth.NewResource(auth.KindAgentSession, actor.TenantID)); err != nil {
		return nil, err
	}
	if actor.TenantID == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("join a tenant before starting an agent session"))
	}

	agentType := in.AgentType
	if agentType == "" {
		agentType = models.AgentTypeGeneral
	}
	if !agentType.Valid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown agent type %q", agentType))
	}
	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("goal is required"))
	}

	tenant, err := o.tenants.Get(ctx, *actor.TenantID)
	if err != nil {
		return nil, sessionError(ctx, err)
	}
	if limit := tenant.Quotas.MaxAgentSessions; limit > 0 {
		active, err := o.sessions.CountActive(ctx, tenant.TenantID)
		if err != nil {
			return nil, sessionError(ctx, err)
		}
		if active >= limit {
			return nil, connect.NewError(connect.CodeFailedPrecondition,
				fmt.Errorf("tenant has reached its limit of %d agent sessions, archive old sessions first", limit))
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = truncate(goal, 60)
	}

	now := o.now()
	session := &models.AgentSession{
		SessionID:   uuid.Must(uuid.NewV7()),
		UserID:      actor.UserID,
		TenantID:    tenant.TenantID,
		AgentType:   agentType,
		Title:       title,
		Goal:        goal,
		Status:      models.SessionStatusActive,
		AgentStatus: models.AgentStatusThinking,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	session.Append(models.AgentMessage{Role: models.MessageRoleUser, Content: goal, Timestamp: now})

	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, sessionError(ctx, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.SessionID.String()).
		Str("agent_type", string(agentType)).
		Msg("Agent session started")

	return o.schedule(ctx, session)
}

// Chat appends a user message and runs a turn in the background. The
// returned session is in the thinking state; callers poll Get for the answer.
func (o *Orchestrator) Chat(ctx context.Context, actor auth.Actor, sessionID uuid.UUID, message string) (*models.AgentSession, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("message is required"))
	}

	session, err := o.Get(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.SessionResource(session)); err != nil {
		return nil, err
	}
	if session.Frozen() {
		return nil, connect.NewError(connect.CodeFailedPrecondition, ErrSessionArchived)
	}
	if session.AgentStatus.Busy() && o.now().Sub(session.UpdatedAt) < o.cfg.StaleAfter {
		return nil, connect.NewError(connect.CodeFailedPrecondition, ErrAgentBusy)
	}

	session.Append(models.AgentMessage{Role: models.MessageRoleUser, Content: message, Timestamp: o.now()})
	session.Status = models.SessionStatusActive
	session.AgentStatus = models.AgentStatusThinking
	session.LastError = ""
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, sessionError(ctx, err)
	}

	return o.schedule(ctx, session)
}

func (o *Orchestrator) schedule(ctx context.Context, session *models.AgentSession) (*models.AgentSession, error) {
	sessionID := session.SessionID
	err := o.pool.Submit(ctx, "agent:"+sessionID.String(), func(ctx context.Context) error {
		_, err := o.RunTurn(ctx, sessionID)
		return err
	})
	if err == nil {
		return session, nil
	}

	session.AgentStatus = models.AgentStatusIdle
	session.LastError = err.Error()
	if uerr := o.sessions.Update(context.WithoutCancel(ctx), session); uerr != nil {
		zerolog.Ctx(ctx).Error().Err(uerr).Str("session_id", sessionID.String()).Msg("Failed to reset session")
	}
	return nil, connect.NewError(connect.CodeUnavailable, err)
}

// Get returns a session owned by the actor.
func (o *Orchestrator) Get(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*models.AgentSession, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, sessionError(ctx, err)
	}
	if err := auth.Authorize(ctx, actor, auth.ActionRead, auth.SessionResource(session)); err != nil {
		return nil, err
	}
	return session, nil
}

// List returns the actor's sessions in their tenant.
func (o *Orchestrator) List(ctx context.Context, actor auth.Actor, page store.Page) ([]*models.AgentSession, error) {
	if err := auth.Authorize(ctx, actor, auth.ActionList, auth.NewResource(auth.KindAgentSession, actor.TenantID)); err != nil {
		return nil, err
	}
	if actor.TenantID == nil {
		return []*models.AgentSession{}, nil
	}
	sessions, err := o.sessions.List(ctx, actor.UserID, *actor.TenantID, page)
	if err != nil {
		return nil, sessionError(ctx, err)
	}
	return sessions, nil
}

// Archive freezes the transcript.
func (o *Orchestrator) Archive(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*models.AgentSession, error) {
	session, err := o.Get(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(ctx, actor, auth.ActionUpdate, auth.SessionResource(session)); err != nil {
		return nil, err
	}
	if session.Frozen() {
		return session, nil
	}

	session.Status = models.SessionStatusArchived
	session.AgentStatus = models.AgentStatusIdle
	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, sessionError(ctx, err)
	}
	return session, nil
}

// RunTurn answers the latest message of a session synchronously. Failures
// are recorded on the session, which is left idle so the user can retry
// with a new message.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID uuid.UUID) (*models.AgentSession, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("session_id", session.SessionID.String()).
		Str("tenant_id", session.TenantID.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	metrics := telemetry.GetMetrics()
	t := &turn{o: o, session: session}
	outcome, err := t.run(ctx)
	if err != nil {
		metrics.AgentTurnErrorsTotal.Add(ctx, 1)
		logger.Error().Err(err).Msg("Agent turn failed")
		if ferr := t.fail(context.WithoutCancel(ctx), err); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to record agent error")
		}
		return t.session, err
	}

	metrics.AgentTurnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	logger.Debug().
		Str("outcome", outcome).
		Int("turns", t.session.TurnCount).
		Int("messages", t.session.MessageCount).
		Msg("Agent turn finished")

	return t.session, nil
}

// turn is one chat invocation. pending holds the messages appended since the
// last successful write so they can be replayed onto a fresher copy.
type turn struct {
	o       *Orchestrator
	session *models.AgentSession
	pending []models.AgentMessage
	turns   int
}

func (t *turn) append(msgs ...models.AgentMessage) {
	t.session.Append(msgs...)
	t.pending = append(t.pending, msgs...)
}

func (t *turn) assistant(text string) {
	t.append(models.AgentMessage{Role: models.MessageRoleAssistant, Content: text, Timestamp: t.o.now()})
}

func (t *turn) run(ctx context.Context) (string, error) {
	o := t.o
	if t.session.Frozen() {
		return "", ErrSessionArchived
	}

	tenant, err := o.tenants.Get(ctx, t.session.TenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load tenant: %w", err)
	}

	if !tenant.AI.Configured() {
		t.assistant(demoReply)
		t.session.Status = models.SessionStatusCompleted
		t.session.AgentStatus = models.AgentStatusIdle
		t.session.LastError = ""
		return "demo", t.commit(ctx)
	}

	user, err := o.users.Get(ctx, t.session.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load session owner: %w", err)
	}
	if !user.IsActive {
		return "", errors.New("session owner is deactivated")
	}
	actor := auth.ActorFromUser(user)

	provider, err := o.providers.Get(ctx, tenant.TenantID, tenant.AI)
	if err != nil {
		return "", fmt.Errorf("failed to create ai provider: %w", err)
	}
	schemas := o.registry.Schemas()

	for range o.cfg.MaxTurns {
		completion, err := t.complete(ctx, provider, schemas)
		if err != nil {
			return "", err
		}
		t.turns++
		t.session.TurnCount++

		if len(completion.ToolCalls) == 0 {
			t.assistant(completion.Text)
			t.session.AgentStatus = models.AgentStatusIdle
			t.session.LastError = ""
			return "answered", t.commit(ctx)
		}

		t.session.AgentStatus = models.AgentStatusExecuting
		if err := t.commit(ctx); err != nil {
			return "", err
		}

		for _, call := range completion.ToolCalls {
			res := o.registry.Execute(ctx, actor, call.Name, call.Arguments)
			t.append(models.AgentMessage{
				Role:      models.MessageRoleAssistant,
				Content:   res.String(),
				Timestamp: o.now(),
				Tool:      &models.ToolMetadata{Name: call.Name, Arguments: call.Arguments, Success: res.Success},
			})
		}

		t.session.AgentStatus = models.AgentStatusThinking
		if err := t.commit(ctx); err != nil {
			return "", err
		}
	}

	telemetry.GetMetrics().AgentMaxTurnsTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Warn().Int("max_turns", o.cfg.MaxTurns).Msg("Agent stopped after too many turns")

	t.assistant(maxTurnsReply)
	t.session.AgentStatus = models.AgentStatusMaxTurnsExceeded
	return "max_turns_exceeded", t.commit(ctx)
}

func (t *turn) complete(ctx context.Context, provider Provider, schemas []tools.Schema) (*Completion, error) {
	start := time.Now()
	completion, err := provider.Complete(ctx, CompletionRequest{
		SystemPrompt: SystemPrompt(t.session.AgentType),
		Messages:     t.session.Messages,
		Tools:        schemas,
	})
	telemetry.GetMetrics().ProviderCallDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	if err := completion.Validate(); err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	return completion, nil
}

func (t *turn) fail(ctx context.Context, cause error) error {
	t.session.LastError = cause.Error()
	t.session.AgentStatus = models.AgentStatusIdle
	return t.commit(ctx)
}

// commit writes the session. On a version conflict the latest copy is
// reloaded and this turn's appends and status are applied on top of it.
func (t *turn) commit(ctx context.Context) error {
	op := func() (*models.AgentSession, error) {
		err := t.o.sessions.Update(ctx, t.session)
		if err == nil {
			return t.session, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, backoff.Permanent(err)
		}

		telemetry.GetMetrics().VersionConflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "agent_session")))

		fresh, gerr := t.o.sessions.Get(ctx, t.session.SessionID)
		if gerr != nil {
			return nil, backoff.Permanent(gerr)
		}
		if fresh.Frozen() {
			return nil, backoff.Permanent(ErrSessionArchived)
		}
		fresh.Append(t.pending...)
		fresh.Status = t.session.Status
		fresh.AgentStatus = t.session.AgentStatus
		fresh.LastError = t.session.LastError
		fresh.TurnCount += t.turns
		t.session = fresh
		return nil, err
	}

	saved, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(t.o.cfg.SaveAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	t.session = saved
	t.pending = nil
	t.turns = 0
	return nil
}

func sessionError(ctx context.Context, err error) error {
	var cerr *connect.Error
	switch {
	case errors.As(err, &cerr):
		return err
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrTenantNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrVersionConflict):
		telemetry.GetMetrics().VersionConflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "agent_session")))
		return connect.NewError(connect.CodeAborted, errors.New("session was modified concurrently, reload and retry"))
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Agent session store operation failed")
		return connect.NewError(connect.CodeInternal, errors.New("agent session: internal error"))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
