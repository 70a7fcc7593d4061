package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler starts scheduled campaigns once their start date has passed.
// Each campaign is started on behalf of its creator, so a creator who lost
// access can no longer trigger delivery.
type Scheduler struct {
	executor  *Executor
	campaigns store.CampaignStore
	users     store.UserStore
	interval  time.Duration
	now       func() time.Time
}

func NewScheduler(executor *Executor, campaigns store.CampaignStore, users store.UserStore) *Scheduler {
	return &Scheduler{
		executor:  executor,
		campaigns: campaigns,
		users:     users,
		interval:  executor.cfg.SchedulerInterval,
		now:       time.Now,
	}
}

// Run ticks once immediately, which also recovers runs orphaned by a
// restart, then polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Campaign scheduler started")
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Campaign scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick recovers stale runs, then starts every due campaign and returns how
// many were started.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.executor.RecoverStale(ctx)

	due, err := s.campaigns.ListDue(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due campaigns")
		return 0
	}

	started := 0
	for _, c := range due {
		logger := log.With().
			Str("campaign_id", c.CampaignID.String()).
			Str("tenant_id", c.TenantID.String()).
			Logger()
		cctx := logger.WithContext(ctx)

		creator, err := s.users.Get(cctx, c.CreatedBy)
		switch {
		case errors.Is(err, store.ErrUserNotFound):
			s.hold(cctx, c, errors.New("creator not found"))
			continue
		case err != nil:
			logger.Warn().Err(err).Msg("Skipping campaign, creator lookup failed")
			continue
		case !creator.IsActive:
			s.hold(cctx, c, errors.New("creator is deactivated"))
			continue
		}

		if _, err := s.executor.Start(cctx, auth.ActorFromUser(creator), c.CampaignID); err != nil {
			if permanent(err) {
				s.hold(cctx, c, err)
			} else {
				zerolog.Ctx(cctx).Warn().Err(err).Msg("Scheduled campaign did not start, retrying next tick")
			}
			continue
		}
		started++
	}
	return started
}

// permanent reports whether a start failure will repeat on every tick until
// someone changes the campaign, its tenant or its creator.
func permanent(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeFailedPrecondition, connect.CodePermissionDenied, connect.CodeNotFound:
		return true
	}
	return false
}

// hold pauses a due campaign the scheduler cannot start and records why. It
// runs again once executed manually.
func (s *Scheduler) hold(ctx context.Context, c *models.Campaign, cause error) {
	_, err := s.executor.finalize(ctx, c.CampaignID, func(c *models.Campaign) bool {
		if c.Status != models.CampaignStatusScheduled {
			return false
		}
		c.Status = models.CampaignStatusPaused
		c.LastError = fmt.Sprintf("scheduled start refused: %v", cause)
		return true
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to pause unstartable campaign")
		return
	}
	zerolog.Ctx(ctx).Warn().Err(cause).Msg("Scheduled campaign paused")
}
