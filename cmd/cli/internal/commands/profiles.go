package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/imobflow/imobflow/cmd/cli/internal/credentials"
)

// ProfilesCmd manages saved logins.
type ProfilesCmd struct {
	List   ProfilesListCmd   `cmd:"" help:"List saved profiles"`
	Use    ProfilesUseCmd    `cmd:"" help:"Set the default profile"`
	Delete ProfilesDeleteCmd `cmd:"" help:"Delete a profile"`
}

type ProfilesListCmd struct{}

func (c *ProfilesListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	profiles, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	out := globals.out()
	if len(profiles) == 0 {
		fmt.Fprintln(out, "No profiles found.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To log in:")
		fmt.Fprintln(out, "  imobflow login --email <email>")
		return nil
	}

	defaultName := ""
	if def, err := store.GetDefault(); err == nil {
		defaultName = def.Name
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tSERVER\tSTATUS\tDEFAULT")
	now := time.Now()
	for _, p := range profiles {
		status := "active"
		if p.Expired(now) {
			status = "expired"
		}
		isDefault := ""
		if p.Name == defaultName {
			isDefault = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Email, p.Server, status, isDefault)
	}
	return w.Flush()
}

type ProfilesUseCmd struct {
	Name string `arg:"" help:"Profile name"`
}

func (c *ProfilesUseCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if err := store.SetDefault(c.Name); err != nil {
		return fmt.Errorf("failed to set default profile %q: %w", c.Name, err)
	}
	fmt.Fprintf(globals.out(), "Default profile set to %s\n", c.Name)
	return nil
}

type ProfilesDeleteCmd struct {
	Name string `arg:"" help:"Profile name"`
}

func (c *ProfilesDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if err := store.Delete(c.Name); err != nil {
		return fmt.Errorf("failed to delete profile %q: %w", c.Name, err)
	}
	fmt.Fprintf(globals.out(), "Deleted profile %s\n", c.Name)
	return nil
}
