package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/imobflow/imobflow/internal/store"
	memorystore "github.com/imobflow/imobflow/internal/store/memory"
	postgresstore "github.com/imobflow/imobflow/internal/store/postgres"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"IMOBFLOW_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) config(autoMigrate bool) *postgresstore.Config {
	return &postgresstore.Config{
		Pool: postgresstore.PoolConfig{
			ConnString:      s.ConnString,
			MaxConns:        s.MaxConns,
			MinConns:        s.MinConns,
			MaxConnLifetime: s.MaxConnLifetime,
			MaxConnIdleTime: s.MaxConnIdleTime,
		},
		AutoMigrate: autoMigrate,
	}
}

// Stores groups the persistence backends used by the services.
type Stores struct {
	Users      store.UserStore
	Tenants    store.TenantStore
	Properties store.PropertyStore
	Contacts   store.ContactStore
	Campaigns  store.CampaignStore
	Sessions   store.AgentSessionStore
}

// openStores builds the stores for storeType. The returned func releases
// any connections.
func openStores(ctx context.Context, storeType string, pg *PostgresStoreFlags) (*Stores, func(), error) {
	switch storeType {
	case "postgres":
		if err := pg.Validate(); err != nil {
			return nil, nil, err
		}
		db, err := postgresstore.Open(ctx, pg.config(pg.AutoMigrate))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		pool := db.Pool()
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return &Stores{
			Users:      postgresstore.NewUserStore(pool),
			Tenants:    postgresstore.NewTenantStore(pool),
			Properties: postgresstore.NewPropertyStore(pool),
			Contacts:   postgresstore.NewContactStore(pool),
			Campaigns:  postgresstore.NewCampaignStore(pool),
			Sessions:   postgresstore.NewAgentSessionStore(pool),
		}, db.Close, nil

	default:
		log.Info().Msg("Using in-memory stores, data is lost on restart")
		return &Stores{
			Users:      memorystore.NewUserStore(),
			Tenants:    memorystore.NewTenantStore(),
			Properties: memorystore.NewPropertyStore(),
			Contacts:   memorystore.NewContactStore(),
			Campaigns:  memorystore.NewCampaignStore(),
			Sessions:   memorystore.NewAgentSessionStore(),
		}, func() {}, nil
	}
}
