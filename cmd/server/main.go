package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/imobflow/imobflow/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug          bool                       `help:"Enable debug mode."`
		Version        kong.VersionFlag
		Serve          commands.ServeCmd          `cmd:"" default:"withargs" help:"Start the API server"`
		Migrate        commands.MigrateCmd        `cmd:"" help:"Apply database migrations"`
		BootstrapAdmin commands.BootstrapAdminCmd `cmd:"" name:"bootstrap-admin" help:"Create the platform admin account"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("imobflow-server"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
