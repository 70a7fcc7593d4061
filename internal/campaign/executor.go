// Package campaign runs WhatsApp broadcast campaigns.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"connectrpc.com/connect"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrEmptyAudience is returned when a campaign resolves to no contacts.
var ErrEmptyAudience = errors.New("empty audience")

// ExecutorConfig tunes campaign execution.
type ExecutorConfig struct {
	// MaxRateLimit caps the per-message delay a campaign may request.
	MaxRateLimit time.Duration

	// SchedulerInterval is how often due campaigns are polled.
	SchedulerInterval time.Duration

	// FinalizeAttempts bounds the retries of the final stats write.
	FinalizeAttempts uint

	// ProgressInterval is how often a running campaign persists its
	// counters. Each write also serves as a liveness heartbeat.
	ProgressInterval time.Duration

	// StaleAfter is how long a running campaign may go without a heartbeat
	// before RecoverStale completes it.
	StaleAfter time.Duration
}

func (c *ExecutorConfig) Validate() error {
	if c.MaxRateLimit < 0 {
		return errors.New("max rate limit must not be negative")
	}
	if c.SchedulerInterval < time.Second {
		return errors.New("scheduler interval must be at least 1s")
	}
	if c.StaleAfter != 0 && c.StaleAfter < 2*(c.MaxRateLimit+c.ProgressInterval) {
		return errors.New("stale after must be at least twice the max rate limit plus progress interval")
	}
	return nil
}

func (c *ExecutorConfig) ApplyDefaults() {
	if c.MaxRateLimit == 0 {
		c.MaxRateLimit = time.Minute
	}
	if c.SchedulerInterval == 0 {
		c.SchedulerInterval = 30 * time.Second
	}
	if c.FinalizeAttempts == 0 {
		c.FinalizeAttempts = 5
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = 15 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 10 * time.Minute
	}
}

// Executor moves campaigns from scheduled to completed, sending one message
// per audience contact. Delivery is best effort and at most once: a failed
// send is counted and the loop moves on.
type Executor struct {
	cfg       ExecutorConfig
	campaigns store.CampaignStore
	contacts  store.ContactStore
	tenants   store.TenantStore
	bridge    messaging.Bridge
	pool      *worker.Pool
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

func NewExecutor(
	cfg ExecutorConfig,
	campaigns store.CampaignStore,
	contacts store.ContactStore,
	tenants store.TenantStore,
	bridge messaging.Bridge,
	pool *worker.Pool,
) *Executor {
	cfg.ApplyDefaults()
	return &Executor{
		cfg:       cfg,
		campaigns: campaigns,
		contacts:  contacts,
		tenants:   tenants,
		bridge:    bridge,
		pool:      pool,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start validates and resolves the campaign, marks it running and hands the
// send loop to the worker pool. It returns the running campaign without
// waiting for delivery.
func (e *Executor) Start(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, error) {
	c, audience, err := e.prepare(ctx, actor, campaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.Status = models.CampaignStatusRunning
	c.LastError = ""
	c.Stats.Targeted = len(audience)
	c.Stats.Sent = 0
	c.Stats.Failed = 0
	c.Stats.StartedAt = &now
	c.Stats.CompletedAt = nil
	if err := e.campaigns.Update(ctx, c); err != nil {
		return nil, storeError(ctx, err)
	}

	running := *c
	campaignID := c.CampaignID
	if err := e.pool.Submit(ctx, "campaign:"+campaignID.String(), func(ctx context.Context) error {
		_, err := e.Run(ctx, &running, audience)
		return err
	}, worker.OnDrop(func(ctx context.Context) {
		e.abort(ctx, campaignID, errors.New("run dropped before sending, server shutting down"))
	})); err != nil {
		e.abort(ctx, campaignID, err)
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("campaign_id", c.CampaignID.String()).
		Str("tenant_id", c.TenantID.String()).
		Int("audience", len(audience)).
		Msg("Campaign started")

	return c, nil
}

// prepare loads and checks the campaign and resolves its audience. An empty
// audience completes the campaign and is reported as a bad request.
func (e *Executor) prepare(ctx context.Context, actor auth.Actor, campaignID uuid.UUID) (*models.Campaign, []*models.Contact, error) {
	c, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, nil, storeError(ctx, err)
	}
	if !c.IsActive {
		return nil, nil, connect.NewError(connect.CodeNotFound, store.ErrCampaignNotFound)
	}
	if err := auth.Authorize(ctx, actor, auth.ActionExecute, auth.CampaignResource(c)); err != nil {
		return nil, nil, err
	}

	switch c.Status {
	case models.CampaignStatusRunning, models.CampaignStatusCompleted, models.CampaignStatusCancelled:
		return nil, nil, connect.NewError(connect.CodeFailedPrecondition,
			fmt.Errorf("campaign is %s and cannot be executed", c.Status))
	}

	audience, err := ResolveAudience(ctx, e.contacts, c)
	if err != nil {
		return nil, nil, storeError(ctx, err)
	}

	if len(audience) == 0 {
		now := time.Now().UTC()
		c.Status = models.CampaignStatusCompleted
		c.Stats.Targeted = 0
		c.Stats.CompletedAt = &now
		if err := e.campaigns.Update(ctx, c); err != nil {
			return nil, nil, storeError(ctx, err)
		}
		return nil, nil, connect.NewError(connect.CodeInvalidArgument, ErrEmptyAudience)
	}

	if c.ChannelID == "" {
		tenant, err := e.tenants.Get(ctx, c.TenantID)
		if err != nil {
			return nil, nil, storeError(ctx, err)
		}
		c.ChannelID = tenant.WhatsApp.ChannelID
	}
	if c.ChannelID == "" {
		return nil, nil, connect.NewError(connect.CodeFailedPrecondition, messaging.ErrNoChannel)
	}

	return c, audience, nil
}

// Run sends the campaign to every contact of the audience in order and
// persists the final statistics. Sent + Failed always equals the audience
// size, including when ctx is cancelled part way through or a send panics.
func (e *Executor) Run(ctx context.Context, c *models.Campaign, audience []*models.Contact) (final *models.Campaign, err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("campaign_id", c.CampaignID.String()).
		Str("tenant_id", c.TenantID.String()).
		Logger()

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("tenant_id", c.TenantID.String()))
	start := time.Now()

	delay := time.Duration(c.RateLimitMS) * time.Millisecond
	if delay > e.cfg.MaxRateLimit {
		delay = e.cfg.MaxRateLimit
	}

	var sent, failed int
	var loopErr error

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error().Str("stack", string(debug.Stack())).Interface("panic", r).Msg("Campaign send loop panicked")
		cause := fmt.Errorf("send loop panicked after %d of %d messages: %v", sent+failed, len(audience), r)
		metrics.CampaignRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "panicked")))
		final, err = e.finish(context.WithoutCancel(ctx), c.CampaignID, sent, len(audience)-sent, cause)
		if err == nil {
			err = cause
		}
	}()

	lastProgress := e.now()
	for i, contact := range audience {
		if i > 0 && delay > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				loopErr = fmt.Errorf("interrupted after %d of %d messages: %w", i, len(audience), err)
				failed += len(audience) - i
				break
			}
		}

		if err := e.send(ctx, c, contact); err != nil {
			failed++
			metrics.CampaignMessagesFailed.Add(ctx, 1, attrs)
			logger.Warn().Err(err).Str("contact_id", contact.ContactID.String()).Msg("Campaign message failed")
		} else {
			sent++
			metrics.CampaignMessagesSentTotal.Add(ctx, 1, attrs)
		}

		if e.now().Sub(lastProgress) >= e.cfg.ProgressInterval {
			e.checkpoint(ctx, c.CampaignID, sent, failed)
			lastProgress = e.now()
		}
	}

	final, err = e.finish(context.WithoutCancel(ctx), c.CampaignID, sent, failed, loopErr)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist campaign results")
		return nil, err
	}

	status := "completed"
	if loopErr != nil {
		status = "interrupted"
	}
	metrics.CampaignRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	metrics.CampaignRunDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	logger.Info().
		Int("sent", sent).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Campaign completed")

	return final, nil
}

func (e *Executor) send(ctx context.Context, c *models.Campaign, contact *models.Contact) error {
	text := Render(c.Template.Text, contact, c.Template.Variables)
	if c.Template.HasMedia() {
		_, err := e.bridge.SendMedia(ctx, c.ChannelID, messaging.MediaMessage{
			Recipient: contact.Phone,
			MediaType: c.Template.MediaType,
			MediaRef:  c.Template.MediaURL,
			Caption:   text,
		})
		return err
	}
	_, err := e.bridge.SendText(ctx, c.ChannelID, messaging.TextMessage{
		Recipient: contact.Phone,
		Text:      text,
	})
	return err
}

// finish writes the final statistics, reloading and reapplying them when the
// document moved underneath the run.
func (e *Executor) finish(ctx context.Context, campaignID uuid.UUID, sent, failed int, loopErr error) (*models.Campaign, error) {
	return e.finalize(ctx, campaignID, func(c *models.Campaign) bool {
		now := time.Now().UTC()
		c.Status = models.CampaignStatusCompleted
		c.Stats.Sent = sent
		c.Stats.Failed = failed
		c.Stats.CompletedAt = &now
		if loopErr != nil {
			c.LastError = loopErr.Error()
		}
		return true
	})
}

// finalize applies a change to the latest version of the campaign, retrying
// on version conflicts. apply returns false to leave the document alone, in
// which case finalize returns the loaded campaign unchanged.
func (e *Executor) finalize(ctx context.Context, campaignID uuid.UUID, apply func(c *models.Campaign) bool) (*models.Campaign, error) {
	op := func() (*models.Campaign, error) {
		c, err := e.campaigns.Get(ctx, campaignID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !apply(c) {
			return c, nil
		}
		if err := e.campaigns.Update(ctx, c); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return c, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(e.cfg.FinalizeAttempts),
	)
}

// checkpoint persists progress of a running campaign. Failures are only
// logged; the final write carries the authoritative counters.
func (e *Executor) checkpoint(ctx context.Context, campaignID uuid.UUID, sent, failed int) {
	ctx = context.WithoutCancel(ctx)
	c, err := e.campaigns.Get(ctx, campaignID)
	if err == nil && c.Status == models.CampaignStatusRunning {
		c.Stats.Sent = sent
		c.Stats.Failed = failed
		err = e.campaigns.Update(ctx, c)
	}
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("campaign_id", campaignID.String()).Msg("Campaign progress not recorded")
	}
}

// abort returns a campaign that was marked running but never sent anything
// to scheduled, recording why. It can then be executed again.
func (e *Executor) abort(ctx context.Context, campaignID uuid.UUID, cause error) {
	_, err := e.finalize(context.WithoutCancel(ctx), campaignID, func(c *models.Campaign) bool {
		if c.Status != models.CampaignStatusRunning {
			return false
		}
		c.Status = models.CampaignStatusScheduled
		c.LastError = cause.Error()
		c.Stats.StartedAt = nil
		return true
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("campaign_id", campaignID.String()).Msg("Failed to roll back campaign start")
		return
	}
	zerolog.Ctx(ctx).Warn().Err(cause).Str("campaign_id", campaignID.String()).Msg("Campaign start rolled back")
}

// RecoverStale completes running campaigns whose last heartbeat is older
// than StaleAfter, e.g. after a crash or a final write that ran out of
// retries. Messages not recorded as sent are counted as failed.
func (e *Executor) RecoverStale(ctx context.Context) int {
	logger := zerolog.Ctx(ctx)
	cutoff := e.now().Add(-e.cfg.StaleAfter)

	filter := store.CampaignFilter{Status: models.CampaignStatusRunning, Page: store.Page{Limit: store.MaxLimit}}
	var stale []uuid.UUID
	for {
		page, err := e.campaigns.List(ctx, filter)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list running campaigns")
			return 0
		}
		for _, c := range page {
			if c.UpdatedAt.Before(cutoff) {
				stale = append(stale, c.CampaignID)
			}
		}
		if len(page) < filter.Page.Limit {
			break
		}
		filter.Page.Offset += len(page)
	}

	recovered := 0
	for _, id := range stale {
		var changed bool
		_, err := e.finalize(ctx, id, func(c *models.Campaign) bool {
			changed = c.Status == models.CampaignStatusRunning && c.UpdatedAt.Before(cutoff)
			if !changed {
				return false
			}
			now := time.Now().UTC()
			c.Status = models.CampaignStatusCompleted
			c.Stats.Failed = max(c.Stats.Targeted-c.Stats.Sent, 0)
			c.Stats.CompletedAt = &now
			c.LastError = fmt.Sprintf("run abandoned, no progress since %s", c.UpdatedAt.UTC().Format(time.RFC3339))
			return true
		})
		if err != nil {
			logger.Error().Err(err).Str("campaign_id", id.String()).Msg("Failed to recover stale campaign")
			continue
		}
		if changed {
			telemetry.GetMetrics().CampaignRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "abandoned")))
			logger.Warn().Str("campaign_id", id.String()).Msg("Recovered stale running campaign")
			recovered++
		}
	}
	return recovered
}

func storeError(ctx context.Context, err error) error {
	var cerr *connect.Error
	switch {
	case errors.As(err, &cerr):
		return err
	case errors.Is(err, store.ErrCampaignNotFound), errors.Is(err, store.ErrTenantNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrVersionConflict):
		telemetry.GetMetrics().VersionConflictsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "campaign")))
		return connect.NewError(connect.CodeAborted, errors.New("campaign was modified concurrently, reload and retry"))
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Campaign store operation failed")
		return connect.NewError(connect.CodeInternal, errors.New("campaign: internal error"))
	}
}
