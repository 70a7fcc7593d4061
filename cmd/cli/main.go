package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/imobflow/imobflow/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Login      commands.LoginCmd      `cmd:"" help:"Log in and save a profile"`
		Whoami     commands.WhoamiCmd     `cmd:"" help:"Show the logged in user"`
		Profiles   commands.ProfilesCmd   `cmd:"" help:"Manage saved profiles"`
		Properties commands.PropertiesCmd `cmd:"" help:"Browse properties"`
		Campaign   commands.CampaignCmd   `cmd:"" help:"Manage WhatsApp campaigns"`
		Agent      commands.AgentCmd      `cmd:"" help:"Talk to the AI assistant"`
		Profile    string                 `help:"Profile to use (defaults to the default profile)" env:"IMOBFLOW_PROFILE"`
		ConfigDir  string                 `help:"Directory for profiles and cache (default ~/.imobflow)" env:"IMOBFLOW_CONFIG_DIR"`
		Debug      bool                   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("imobflow"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Version:   version,
		Profile:   cli.Profile,
		ConfigDir: cli.ConfigDir,
	})
	cmd.FatalIfErrorf(err)
}
