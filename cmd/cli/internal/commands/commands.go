package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/imobflow/imobflow/cmd/cli/internal/credentials"
	"github.com/imobflow/imobflow/internal/client"
)

type Globals struct {
	Debug     bool
	Version   string
	Profile   string
	ConfigDir string
	Stdout    io.Writer
	Stdin     io.Reader
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) in() io.Reader {
	if g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

// connect loads the active profile and returns a client authenticated as it.
func (g *Globals) connect() (*client.Client, *credentials.Profile, error) {
	store, err := credentials.NewStore(g.ConfigDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	profile, err := store.Resolve(g.Profile, time.Now())
	if err != nil {
		if errors.Is(err, credentials.ErrNoDefaultProfile) || errors.Is(err, credentials.ErrProfileNotFound) {
			return nil, nil, fmt.Errorf("%w\n\nLog in first:\n  imobflow login --email <email>", err)
		}
		return nil, nil, err
	}

	cfg := client.DefaultConfig()
	cfg.ServerURL = profile.Server
	cfg.Token = profile.Token
	cfg.CacheDir = store.CacheDir()
	cfg.Debug = g.Debug
	return client.New(cfg), profile, nil
}
