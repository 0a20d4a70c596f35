// Package warehouse resolves named connection profiles and opens bulk loaders.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
)

var (
	// ErrProfileNotFound is returned when the connections file has no table for the profile.
	ErrProfileNotFound = errors.New("connection profile not found")
	// ErrUnknownDriver is returned when a profile names a driver that is not registered.
	ErrUnknownDriver = errors.New("unknown warehouse driver")
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]*$`)

// Target names the destination table.
type Target struct {
	Database  string `json:"database,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	Table     string `json:"table"`
}

// Validate checks that every set identifier is safe to splice into SQL.
func (t Target) Validate() error {
	if t.Table == "" {
		return fmt.Errorf("warehouse.table is required")
	}
	for key, v := range map[string]string{
		"warehouse.database": t.Database,
		"warehouse.schema":   t.Schema,
		"warehouse.table":    t.Table,
	} {
		if v != "" && !validIdentifier.MatchString(v) {
			return fmt.Errorf("%s must be a plain identifier, got %q", key, v)
		}
	}
	return nil
}

// String renders the fully qualified name, skipping empty parts.
func (t Target) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Database, t.Schema, t.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Profile is one named entry of the connections file.
type Profile struct {
	Name            string `mapstructure:"-"`
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Project         string `mapstructure:"project"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// LoadProfile reads the TOML connections file at path and returns the table named name.
func LoadProfile(path, name string) (Profile, error) {
	if strings.TrimSpace(name) == "" {
		return Profile{}, fmt.Errorf("warehouse.profile is required")
	}
	resolved, err := expandHome(path)
	if err != nil {
		return Profile{}, err
	}

	v := viper.New()
	v.SetConfigFile(resolved)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Profile{}, fmt.Errorf("read connections file %s: %w", resolved, err)
	}
	sub := v.Sub(name)
	if sub == nil {
		return Profile{}, fmt.Errorf("%w: %q in %s", ErrProfileNotFound, name, resolved)
	}

	var p Profile
	if err := sub.Unmarshal(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %q: %w", name, err)
	}
	p.Name = name
	p.Driver = strings.ToLower(strings.TrimSpace(p.Driver))
	if p.Driver == "" {
		return Profile{}, fmt.Errorf("profile %q: driver is required", name)
	}
	return p, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Loader is an open warehouse connection that appends rows to a table.
type Loader interface {
	// Load appends every row of table to target and returns the number of rows written.
	// It never creates or truncates the table.
	Load(ctx context.Context, target Target, table award.Table) (int64, error)
	Close() error
}

// Opener opens a Loader for a profile.
type Opener func(ctx context.Context, profile Profile, target Target) (Loader, error)

// Registry maps driver names to openers.
type Registry map[string]Opener

// Connector resolves the configured profile and opens a connection for it.
type Connector struct {
	ConnectionsFile string
	Profile         string
	Drivers         Registry
}

// Connect loads the profile and opens a Loader using its driver.
func (c Connector) Connect(ctx context.Context, target Target) (Loader, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	profile, err := LoadProfile(c.ConnectionsFile, c.Profile)
	if err != nil {
		return nil, err
	}
	open, ok := c.Drivers[profile.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q (profile %q)", ErrUnknownDriver, profile.Driver, profile.Name)
	}
	loader, err := open(ctx, profile, target)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", profile.Driver, err)
	}
	return loader, nil
}
