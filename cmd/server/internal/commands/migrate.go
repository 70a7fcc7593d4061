package commands

import (
	"context"
	"fmt"

	"github.com/imobflow/imobflow/internal/logger"
	"github.com/imobflow/imobflow/internal/service"
	postgresstore "github.com/imobflow/imobflow/internal/store/postgres"
	"github.com/rs/zerolog/log"
)

// MigrateCmd applies the embedded schema migrations and exits.
type MigrateCmd struct {
	Postgres PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	if err := m.Postgres.Validate(); err != nil {
		return err
	}

	db, err := postgresstore.Open(ctx, m.Postgres.config(true))
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	defer db.Close()

	log.Info().Msg("Database migrations applied")
	return nil
}

// BootstrapAdminCmd creates the platform admin in a postgres store.
type BootstrapAdminCmd struct {
	Email    string             `help:"admin email" required:"" env:"IMOBFLOW_ADMIN_EMAIL"`
	Password string             `help:"admin password" required:"" env:"IMOBFLOW_ADMIN_PASSWORD"`
	Postgres PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (b *BootstrapAdminCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	stores, closeStores, err := openStores(ctx, "postgres", &b.Postgres)
	if err != nil {
		return err
	}
	defer closeStores()

	// tokens are not issued here
	users := service.NewUserService(stores.Users, stores.Tenants, nil)
	return ensureAdmin(ctx, users, b.Email, b.Password)
}
