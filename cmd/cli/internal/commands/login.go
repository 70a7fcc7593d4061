package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imobflow/imobflow/cmd/cli/internal/credentials"
	"github.com/imobflow/imobflow/internal/client"
	"github.com/rs/zerolog/log"
)

type LoginCmd struct {
	Server   string `help:"Server URL" default:"http://localhost:8080" env:"IMOBFLOW_SERVER"`
	Email    string `help:"Account email" required:""`
	Password string `help:"Account password, read from stdin when omitted" env:"IMOBFLOW_PASSWORD"`
	Name     string `help:"Profile name" default:"default"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password := l.Password
	if password == "" {
		fmt.Fprint(globals.out(), "Password: ")
		line, err := bufio.NewReader(globals.in()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		return errors.New("password is required")
	}

	cfg := client.DefaultConfig()
	cfg.ServerURL = l.Server
	cfg.Debug = globals.Debug
	res, err := client.New(cfg).Login(ctx, l.Email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	expiresAt := res.ExpiresAt
	if exp, err := credentials.TokenExpiry(res.Token); err == nil {
		expiresAt = exp
	} else {
		log.Debug().Err(err).Msg("Could not read token expiry, using server value")
	}

	profile := credentials.Profile{
		Name:      l.Name,
		Server:    l.Server,
		Email:     res.User.Email,
		UserID:    res.User.UserID.String(),
		Token:     res.Token,
		ExpiresAt: expiresAt,
	}
	if res.User.TenantID != nil {
		profile.TenantID = res.User.TenantID.String()
	}

	store, err := credentials.NewStore(globals.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if err := store.Save(profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	fmt.Fprintf(globals.out(), "Logged in as %s (%s), session valid until %s\n",
		res.User.Name, res.User.Role, expiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

type WhoamiCmd struct{}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	c, profile, err := globals.connect()
	if err != nil {
		return err
	}

	user, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	out := globals.out()
	fmt.Fprintf(out, "Name:    %s\n", user.Name)
	fmt.Fprintf(out, "Email:   %s\n", user.Email)
	fmt.Fprintf(out, "Role:    %s\n", user.Role)
	if user.TenantID != nil {
		fmt.Fprintf(out, "Tenant:  %s\n", user.TenantID)
	} else {
		fmt.Fprintln(out, "Tenant:  (none)")
	}
	fmt.Fprintf(out, "Server:  %s\n", profile.Server)
	return nil
}
