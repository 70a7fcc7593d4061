package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrProfileNotFound is returned when a profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNoDefaultProfile is returned when no default is set.
	ErrNoDefaultProfile = errors.New("no default profile set")

	// ErrTokenExpired is returned when the stored session has expired.
	ErrTokenExpired = errors.New("session expired")
)

// Profile is a saved login against one server.
type Profile struct {
	Name      string    `json:"name"`
	Server    string    `json:"server"`
	Email     string    `json:"email"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the profile's token is no longer usable.
func (p *Profile) Expired(now time.Time) bool {
	return p.Token == "" || !now.Before(p.ExpiresAt)
}

// Config represents the credentials file.
type Config struct {
	Version        int                `json:"version"`
	DefaultProfile string             `json:"default_profile,omitempty"`
	Profiles       map[string]Profile `json:"profiles"`
}

// Store keeps login profiles in a JSON file readable only by the user.
type Store struct {
	baseDir string
}

// NewStore creates a new credential store.
// If baseDir is empty, uses ~/.imobflow/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".imobflow")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	store := &Store{baseDir: baseDir}
	if err := store.ensureConfig(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return store, nil
}

// CacheDir is where HTTP responses are cached between invocations.
func (s *Store) CacheDir() string {
	return filepath.Join(s.baseDir, "cache")
}

// Save stores p, making it the default when it is the first profile.
func (s *Store) Save(p Profile) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	cfg.Profiles[p.Name] = p
	if len(cfg.Profiles) == 1 || cfg.DefaultProfile == "" {
		cfg.DefaultProfile = p.Name
	}

	return s.saveConfig(cfg)
}

// Get retrieves a profile by name.
func (s *Store) Get(name string) (*Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	p, ok := cfg.Profiles[name]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

// GetDefault returns the default profile.
func (s *Store) GetDefault() (*Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DefaultProfile == "" {
		return nil, ErrNoDefaultProfile
	}
	return s.Get(cfg.DefaultProfile)
}

// Resolve returns the named profile, or the default when name is empty,
// and rejects profiles whose token has expired.
func (s *Store) Resolve(name string, now time.Time) (*Profile, error) {
	var (
		p   *Profile
		err error
	)
	if name == "" {
		p, err = s.GetDefault()
	} else {
		p, err = s.Get(name)
	}
	if err != nil {
		return nil, err
	}
	if p.Expired(now) {
		return nil, fmt.Errorf("%w for %s, run login again", ErrTokenExpired, p.Email)
	}
	return p, nil
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// SetDefault sets the default profile.
func (s *Store) SetDefault(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return ErrProfileNotFound
	}
	cfg.DefaultProfile = name
	return s.saveConfig(cfg)
}

// Delete removes a profile, clearing the default if it pointed at it.
func (s *Store) Delete(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return ErrProfileNotFound
	}
	delete(cfg.Profiles, name)
	if cfg.DefaultProfile == name {
		cfg.DefaultProfile = ""
	}
	return s.saveConfig(cfg)
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, "credentials.json")
}

// ensureConfig creates an empty config if it doesn't exist.
func (s *Store) ensureConfig() error {
	if _, err := os.Stat(s.configPath()); err == nil {
		return nil
	}

	return s.saveConfig(&Config{
		Version:  1,
		Profiles: make(map[string]Profile),
	})
}

// loadConfig reads the config file.
func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}

	return &cfg, nil
}

// saveConfig writes the config file atomically.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temp file first
	tempPath := s.configPath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.configPath()); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}
