package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/imobflow/imobflow/internal/agent"
	"github.com/imobflow/imobflow/internal/agent/tools"
	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/campaign"
	"github.com/imobflow/imobflow/internal/logger"
	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/imobflow/imobflow/internal/server"
	"github.com/imobflow/imobflow/internal/service"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/imobflow/imobflow/internal/worker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServeCmd struct {
	Listen          string        `help:"listen address" default:"0.0.0.0:8080" env:"IMOBFLOW_LISTEN"`
	Cert            string        `help:"path to TLS certificate file, plain HTTP when empty" env:"IMOBFLOW_TLS_CERT"`
	Key             string        `help:"path to TLS key file" env:"IMOBFLOW_TLS_KEY"`
	CORSOrigins     []string      `help:"allowed browser origins" env:"IMOBFLOW_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight work on shutdown" default:"30s"`

	JWT struct {
		Secret string        `help:"HMAC secret for access tokens, at least 32 bytes" env:"IMOBFLOW_JWT_SECRET" required:""`
		TTL    time.Duration `help:"access token lifetime" default:"24h" env:"IMOBFLOW_JWT_TTL"`
	} `embed:"" prefix:"jwt-"`

	StoreType string             `help:"store backend" default:"memory" enum:"memory,postgres" env:"IMOBFLOW_STORE_TYPE"`
	Postgres  PostgresStoreFlags `embed:"" prefix:"postgres-"`

	WhatsApp struct {
		BaseURL string        `help:"WhatsApp gateway base URL, messages are only logged when empty" env:"IMOBFLOW_WHATSAPP_URL"`
		APIKey  string        `help:"WhatsApp gateway API key" env:"IMOBFLOW_WHATSAPP_API_KEY"`
		Timeout time.Duration `help:"gateway request timeout" default:"15s"`
	} `embed:"" prefix:"whatsapp-"`

	Workers int `help:"number of background workers for campaigns and agent turns" default:"8" env:"IMOBFLOW_WORKERS"`

	Campaign struct {
		MaxRateLimit      time.Duration `help:"largest per-message delay a campaign may request" default:"1m"`
		SchedulerInterval time.Duration `help:"how often due campaigns are polled" default:"30s"`
		ProgressInterval  time.Duration `help:"how often a running campaign records its counters" default:"15s"`
		StaleAfter        time.Duration `help:"complete running campaigns without progress for this long" default:"10m"`
	} `embed:"" prefix:"campaign-"`

	Agent struct {
		MaxTurns        int           `help:"provider calls allowed per chat message" default:"8"`
		ProviderTimeout time.Duration `help:"timeout for each model request" default:"60s"`
		CacheSize       int           `help:"number of tenant model clients to keep" default:"64"`
	} `embed:"" prefix:"agent-"`

	AdminEmail    string `help:"create this admin on startup if missing" env:"IMOBFLOW_ADMIN_EMAIL"`
	AdminPassword string `help:"password for the startup admin" env:"IMOBFLOW_ADMIN_PASSWORD"`

	Telemetry        bool    `help:"export metrics and traces over OTLP" default:"false" env:"IMOBFLOW_TELEMETRY"`
	TraceSampleRatio float64 `help:"fraction of traces kept" default:"1.0"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	l := logger.Setup(globals.Debug)
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	ctx = l.WithContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "imobflow-server",
			Version:     globals.Version,
			SampleRatio: s.TraceSampleRatio,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	issuer, err := auth.NewTokenIssuer(s.JWT.Secret, s.JWT.TTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	stores, closeStores, err := openStores(ctx, s.StoreType, &s.Postgres)
	if err != nil {
		return err
	}
	defer closeStores()

	bridge, err := s.bridge()
	if err != nil {
		return err
	}

	pool := worker.NewPool(s.Workers)

	execCfg := campaign.ExecutorConfig{
		MaxRateLimit:      s.Campaign.MaxRateLimit,
		SchedulerInterval: s.Campaign.SchedulerInterval,
		ProgressInterval:  s.Campaign.ProgressInterval,
		StaleAfter:        s.Campaign.StaleAfter,
	}
	if err := execCfg.Validate(); err != nil {
		return err
	}
	executor := campaign.NewExecutor(execCfg, stores.Campaigns, stores.Contacts, stores.Tenants, bridge, pool)

	orchCfg := agent.OrchestratorConfig{
		MaxTurns:        s.Agent.MaxTurns,
		ProviderTimeout: s.Agent.ProviderTimeout,
		CacheSize:       s.Agent.CacheSize,
	}
	if err := orchCfg.Validate(); err != nil {
		return err
	}
	registry := tools.NewRegistry(tools.CRMTools(tools.Deps{
		Properties: stores.Properties,
		Contacts:   stores.Contacts,
		Tenants:    stores.Tenants,
		Bridge:     bridge,
	})...)
	orchestrator := agent.NewOrchestrator(orchCfg, stores.Sessions, stores.Tenants, stores.Users, registry, nil, pool)

	users := service.NewUserService(stores.Users, stores.Tenants, issuer)
	if s.AdminEmail != "" {
		if err := ensureAdmin(ctx, users, s.AdminEmail, s.AdminPassword); err != nil {
			return err
		}
	}

	svc := server.Services{
		Users:      users,
		Tenants:    service.NewTenantService(stores.Tenants, stores.Users, stores.Properties, stores.Contacts, stores.Campaigns, stores.Sessions),
		Properties: service.NewPropertyService(stores.Properties, stores.Users),
		Contacts:   service.NewContactService(stores.Contacts, stores.Users),
		Campaigns:  service.NewCampaignService(stores.Campaigns, stores.Contacts, executor),
		Agent:      orchestrator,
	}

	handler := server.New(server.Config{CORSOrigins: s.CORSOrigins}, svc, issuer, stores.Users).Handler(l)
	srv := configureHTTPServer(s.Listen, handler)

	go campaign.NewScheduler(executor, stores.Campaigns, stores.Users).Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.Listen).
			Str("store", s.StoreType).
			Int("workers", s.Workers).
			Bool("tls", s.Cert != "").
			Msg("Starting imobflow server")

		var err error
		if s.Cert != "" {
			err = srv.ListenAndServeTLS(s.Cert, s.Key)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Background tasks did not finish before shutdown deadline")
	}

	return nil
}

func (s *ServeCmd) bridge() (messaging.Bridge, error) {
	if s.WhatsApp.BaseURL == "" {
		log.Warn().Msg("No WhatsApp gateway configured, outbound messages are only logged")
		return messaging.NewLogBridge(), nil
	}
	gw, err := messaging.NewGateway(messaging.GatewayConfig{
		BaseURL: s.WhatsApp.BaseURL,
		APIKey:  s.WhatsApp.APIKey,
		Timeout: s.WhatsApp.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure gateway: %w", err)
	}
	return gw, nil
}

func ensureAdmin(ctx context.Context, users *service.UserService, email, password string) error {
	user, created, err := users.EnsureAdmin(ctx, service.RegisterInput{
		Email:    email,
		Password: password,
		Name:     "Administrator",
	})
	if err != nil {
		return fmt.Errorf("failed to ensure admin: %w", err)
	}
	log.Info().Str("user_id", user.UserID.String()).Str("email", user.Email).Bool("created", created).Msg("Admin account ready")
	return nil
}
