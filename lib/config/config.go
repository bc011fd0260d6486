// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/inviter/lib/directory"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/lib/sealed"
	"github.com/bureau-foundation/inviter/lib/secret"
)

// MinActionDelay is the smallest permitted gap between two membership
// actions against one room. Homeservers rate-limit invites and kicks;
// a rejected action leaves the room half-reconciled until the next
// pass.
const MinActionDelay = 3400 * time.Millisecond

// Config is the complete inviter configuration.
type Config struct {
	// ServerName is the server the controller's account, the directory
	// users, and creatable rooms live on. It defaults to the server of
	// homeserver.user_id and must match it when set.
	ServerName ref.ServerName `yaml:"server_name"`

	Homeserver HomeserverConfig `yaml:"homeserver"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Sync       SyncConfig       `yaml:"sync"`
	Rooms      RoomsConfig      `yaml:"rooms"`

	// AdministrationRoom receives a report after every automatic pass.
	// Either a room ID or an alias. Empty disables reports.
	AdministrationRoom string `yaml:"administration_room"`

	// RenamedUsers maps a directory username to the localpart of the
	// Matrix account that user actually has.
	RenamedUsers map[string]string `yaml:"renamed_users"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`

	// accessToken is set from INVITER_ACCESS_TOKEN and takes precedence
	// over Homeserver.AccessTokenFile.
	accessToken string
}

// HomeserverConfig locates the homeserver and the controller's account.
type HomeserverConfig struct {
	URL             string        `yaml:"url"`
	UserID          ref.UserID    `yaml:"user_id"`
	AccessTokenFile string        `yaml:"access_token_file"`

	// AccessTokenIdentityFile, when set, names an age identity file
	// and AccessTokenFile holds the token sealed to its recipient.
	AccessTokenIdentityFile string `yaml:"access_token_identity_file"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DirectoryConfig selects the desired-state source: a listing file, or
// the rooms inlined under Listing when Path is empty.
type DirectoryConfig struct {
	Path    string            `yaml:"path"`
	Format  string            `yaml:"format"`
	Listing directory.Listing `yaml:",inline"`
}

// SyncConfig controls automatic passes and action pacing.
type SyncConfig struct {
	// Interval between automatic passes.
	Interval time.Duration `yaml:"interval"`

	// ActionDelay separates consecutive invites and kicks in one room.
	ActionDelay time.Duration `yaml:"action_delay"`

	// Cautious automatic passes invite but never kick.
	Cautious bool `yaml:"cautious"`

	// CreateRooms allows creating home server rooms whose alias does
	// not resolve.
	CreateRooms bool `yaml:"create_rooms"`
}

// RoomsConfig is the policy applied to every managed room.
type RoomsConfig struct {
	EncryptOnCreate   bool        `yaml:"encryption_on_room_creation"`
	HistoryVisibility string      `yaml:"history_visibility"`
	Permissions       Permissions `yaml:"permissions"`
}

// Permissions are power level thresholds enforced on home server rooms.
// Unset fields are left as the room has them.
type Permissions struct {
	UsersDefault  *int           `yaml:"users_default"`
	EventsDefault *int           `yaml:"events_default"`
	StateDefault  *int           `yaml:"state_default"`
	Invite        *int           `yaml:"invite"`
	Kick          *int           `yaml:"kick"`
	Ban           *int           `yaml:"ban"`
	Redact        *int           `yaml:"redact"`
	Events        map[string]int `yaml:"events"`
}

// PowerLevels returns the thresholds as power level content with no
// user entries.
func (p Permissions) PowerLevels() schema.PowerLevels {
	powerLevels := schema.PowerLevels{
		UsersDefault:  p.UsersDefault,
		EventsDefault: p.EventsDefault,
		StateDefault:  p.StateDefault,
		Invite:        p.Invite,
		Kick:          p.Kick,
		Ban:           p.Ban,
		Redact:        p.Redact,
	}
	for eventType, level := range p.Events {
		powerLevels.SetEventLevel(ref.EventType(eventType), level)
	}
	return powerLevels
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal).
	Format string `yaml:"format"`
}

// MetricsConfig exposes Prometheus metrics over HTTP.
type MetricsConfig struct {
	// Listen is the address for the /metrics endpoint. Empty disables.
	Listen string `yaml:"listen"`
}

// TracingConfig exports reconcile spans over OTLP/HTTP.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables export.
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// environment holds the variables that override file values.
type environment struct {
	AccessToken     string `env:"INVITER_ACCESS_TOKEN"`
	HomeserverURL   string `env:"INVITER_HOMESERVER_URL"`
	MetricsListen   string `env:"INVITER_METRICS_LISTEN"`
	TracingEndpoint string `env:"INVITER_OTLP_ENDPOINT"`
	LogLevel        string `env:"INVITER_LOG_LEVEL"`
}

// Default returns the configuration that file values are merged onto.
func Default() *Config {
	return &Config{
		Homeserver: HomeserverConfig{
			RequestTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:    30 * time.Minute,
			ActionDelay: MinActionDelay,
			Cautious:    true,
			CreateRooms: true,
		},
		Rooms: RoomsConfig{
			EncryptOnCreate:   true,
			HistoryVisibility: schema.HistoryVisibilityShared,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Tracing: TracingConfig{
			ServiceName: "inviter",
		},
	}
}

// Load loads configuration from the file named by INVITER_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("INVITER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("INVITER_CONFIG environment variable not set; " +
			"set it to the path of your inviter.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads, overrides from the environment, and validates the
// configuration at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	if cfg.ServerName.IsZero() && !cfg.Homeserver.UserID.IsZero() {
		cfg.ServerName = cfg.Homeserver.UserID.Server()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() error {
	var overrides environment
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.accessToken = overrides.AccessToken
	if overrides.HomeserverURL != "" {
		c.Homeserver.URL = overrides.HomeserverURL
	}
	if overrides.MetricsListen != "" {
		c.Metrics.Listen = overrides.MetricsListen
	}
	if overrides.TracingEndpoint != "" {
		c.Tracing.Endpoint = overrides.TracingEndpoint
	}
	if overrides.LogLevel != "" {
		c.Logging.Level = overrides.LogLevel
	}
	return nil
}

// ErrIncomplete is matched (errors.Is) by every *IncompleteError.
var ErrIncomplete = errors.New("configuration incomplete")

// IncompleteError lists every missing or invalid setting found by
// Validate.
type IncompleteError struct {
	Problems []error
}

func (e *IncompleteError) Error() string {
	messages := make([]string, len(e.Problems))
	for index, problem := range e.Problems {
		messages[index] = problem.Error()
	}
	return ErrIncomplete.Error() + ": " + strings.Join(messages, "; ")
}

// Is reports whether target is ErrIncomplete.
func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }

// Unwrap returns the individual problems.
func (e *IncompleteError) Unwrap() []error { return e.Problems }

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []error
	missing := func(field string) {
		errs = append(errs, fmt.Errorf("%s is required", field))
	}

	if c.ServerName.IsZero() {
		missing("server_name")
	} else if !c.Homeserver.UserID.IsZero() && c.Homeserver.UserID.Server() != c.ServerName {
		errs = append(errs, fmt.Errorf("server_name %s does not match the server of homeserver.user_id %s", c.ServerName, c.Homeserver.UserID))
	}
	if c.Homeserver.URL == "" {
		missing("homeserver.url")
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver.url %q is not an absolute URL", c.Homeserver.URL))
	}
	if c.Homeserver.UserID.IsZero() {
		missing("homeserver.user_id")
	}
	if c.Homeserver.AccessTokenFile == "" && c.accessToken == "" {
		errs = append(errs, fmt.Errorf("homeserver.access_token_file or INVITER_ACCESS_TOKEN is required"))
	}
	if c.Homeserver.AccessTokenIdentityFile != "" && c.Homeserver.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("homeserver.access_token_identity_file requires homeserver.access_token_file"))
	}
	if c.Homeserver.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("homeserver.request_timeout must be positive"))
	}

	if c.Directory.Path == "" && len(c.Directory.Listing.Rooms) == 0 {
		errs = append(errs, fmt.Errorf("directory.path or directory.rooms is required"))
	}
	switch c.Directory.Format {
	case "", directory.FormatYAML, directory.FormatJSONC:
	default:
		errs = append(errs, fmt.Errorf("directory.format must be %s or %s", directory.FormatYAML, directory.FormatJSONC))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive"))
	}
	if c.Sync.ActionDelay < MinActionDelay {
		errs = append(errs, fmt.Errorf("sync.action_delay must be at least %v", MinActionDelay))
	}
	if !schema.ValidHistoryVisibility(c.Rooms.HistoryVisibility) {
		errs = append(errs, fmt.Errorf("rooms.history_visibility %q is not a Matrix history visibility", c.Rooms.HistoryVisibility))
	}

	if c.AdministrationRoom != "" {
		if _, err := ref.ParseRoomAlias(c.AdministrationRoom); err != nil {
			if _, err := ref.ParseRoomID(c.AdministrationRoom); err != nil {
				errs = append(errs, fmt.Errorf("administration_room %q is neither a room alias nor a room ID", c.AdministrationRoom))
			}
		}
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, text, or json"))
	}

	if len(errs) > 0 {
		return &IncompleteError{Problems: errs}
	}
	return nil
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level %q: %w", c.Logging.Level, err)
	}
	return level, nil
}

// AccessToken returns the homeserver access token in protected memory,
// from INVITER_ACCESS_TOKEN if set, otherwise from the token file. The
// caller must Close the buffer.
func (c *Config) AccessToken() (*secret.Buffer, error) {
	if c.accessToken != "" {
		return secret.NewFromString(c.accessToken)
	}
	if c.Homeserver.AccessTokenIdentityFile != "" {
		return c.unsealAccessToken()
	}
	buffer, err := secret.ReadFromPath(c.Homeserver.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}
	return buffer, nil
}

func (c *Config) unsealAccessToken() (*secret.Buffer, error) {
	ciphertext, err := os.ReadFile(c.Homeserver.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading sealed access token: %w", err)
	}
	identity, err := secret.ReadFromPath(c.Homeserver.AccessTokenIdentityFile)
	if err != nil {
		return nil, fmt.Errorf("reading access token identity: %w", err)
	}
	defer identity.Close()
	buffer, err := sealed.Unseal(ciphertext, identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", c.Homeserver.AccessTokenFile, err)
	}
	return buffer, nil
}

// DirectoryProvider builds the desired-state provider the configuration
// selects.
func (c *Config) DirectoryProvider(logger *slog.Logger) directory.Provider {
	options := directory.Options{
		HomeServer:   c.ServerName,
		RenamedUsers: c.RenamedUsers,
		Logger:       logger,
	}
	if c.Directory.Path != "" {
		return &directory.FileProvider{
			Path:    c.Directory.Path,
			Format:  c.Directory.Format,
			Options: options,
		}
	}
	return &directory.StaticProvider{Listing: c.Directory.Listing, Options: options}
}
