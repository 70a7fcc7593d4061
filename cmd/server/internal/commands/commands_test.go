package commands

import (
	"context"
	"testing"

	"github.com/imobflow/imobflow/internal/messaging"
	"github.com/stretchr/testify/require"
)

func TestOpenStoresMemory(t *testing.T) {
	stores, closeStores, err := openStores(context.Background(), "memory", &PostgresStoreFlags{})
	require.NoError(t, err)
	defer closeStores()

	require.NotNil(t, stores.Users)
	require.NotNil(t, stores.Tenants)
	require.NotNil(t, stores.Properties)
	require.NotNil(t, stores.Contacts)
	require.NotNil(t, stores.Campaigns)
	require.NotNil(t, stores.Sessions)
}

func TestOpenStoresPostgresRequiresConnString(t *testing.T) {
	_, _, err := openStores(context.Background(), "postgres", &PostgresStoreFlags{})
	require.ErrorContains(t, err, "connection string is required")
}

func TestServeBridgeSelection(t *testing.T) {
	s := &ServeCmd{}
	bridge, err := s.bridge()
	require.NoError(t, err)
	require.IsType(t, &messaging.LogBridge{}, bridge)

	s.WhatsApp.BaseURL = "https://gateway.example.com"
	s.WhatsApp.APIKey = "key"
	bridge, err = s.bridge()
	require.NoError(t, err)
	require.IsType(t, &messaging.Gateway{}, bridge)
}

func TestPostgresFlagsConfig(t *testing.T) {
	flags := PostgresStoreFlags{ConnString: "postgres://localhost/imobflow", MaxConns: 10, MinConns: 2}
	cfg := flags.config(true)
	require.True(t, cfg.AutoMigrate)
	require.Equal(t, "postgres://localhost/imobflow", cfg.Pool.ConnString)
	require.Equal(t, int32(10), cfg.Pool.MaxConns)
}
