package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values read from the config file.
const (
	EnvSubsonicURL      = "SUBCORD_SUBSONIC_URL"
	EnvSubsonicUsername = "SUBCORD_SUBSONIC_USERNAME"
	EnvSubsonicPassword = "SUBCORD_SUBSONIC_PASSWORD"
	EnvListener         = "SUBCORD_LISTENER"
	EnvDiscordClientID  = "SUBCORD_DISCORD_CLIENT_ID"

	// EnvConfigPath selects the config file when --config is not given.
	EnvConfigPath = "SUBCORD_CONFIG"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Subsonic SubsonicConfig `toml:"subsonic"`
	Discord  DiscordConfig  `toml:"discord"`
	Presence PresenceConfig `toml:"presence"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
}

// SubsonicConfig contains the upstream server address and credentials.
type SubsonicConfig struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Listener       string `toml:"listener"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DiscordConfig contains the Discord application used for Rich Presence.
type DiscordConfig struct {
	ClientID string `toml:"client_id"`
}

// PresenceConfig contains reconciliation loop timings and artwork fallbacks.
type PresenceConfig struct {
	PollIntervalSeconds     int    `toml:"poll_interval_seconds"`
	IdleIntervalSeconds     int    `toml:"idle_interval_seconds"`
	MinUpdateSpacingSeconds int    `toml:"min_update_spacing_seconds"`
	SessionTimeoutSeconds   int    `toml:"session_timeout_seconds"`
	FallbackImageURL        string `toml:"fallback_image_url"`
	NotFoundMarker          string `toml:"not_found_marker"`
}

// CacheConfig contains album cache database settings.
type CacheConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	TTLSeconds   int    `toml:"ttl_seconds"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads a .env file (when present) into the process environment without overriding existing variables.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials with SUBCORD_* environment variables when they are set.
func (c *Config) ApplyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	override(&c.Subsonic.URL, EnvSubsonicURL)
	override(&c.Subsonic.Username, EnvSubsonicUsername)
	override(&c.Subsonic.Password, EnvSubsonicPassword)
	override(&c.Subsonic.Listener, EnvListener)
	override(&c.Discord.ClientID, EnvDiscordClientID)
}

// Validate checks required fields and normalizes timings.
//
// The poll interval is never allowed below the minimum update spacing so the
// steady-state cadence alone stays under Discord's rate ceiling.
func (c *Config) Validate() error {
	var missing []string
	if c.Subsonic.URL == "" {
		missing = append(missing, "subsonic.url")
	}
	if c.Subsonic.Username == "" {
		missing = append(missing, "subsonic.username")
	}
	if c.Subsonic.Password == "" {
		missing = append(missing, "subsonic.password")
	}
	if c.Discord.ClientID == "" {
		missing = append(missing, "discord.client_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrMissingCredentials, strings.Join(missing, ", "))
	}

	c.Subsonic.URL = strings.TrimRight(c.Subsonic.URL, "/")
	if c.Subsonic.Listener == "" {
		c.Subsonic.Listener = c.Subsonic.Username
	}

	if c.Subsonic.TimeoutSeconds <= 0 {
		c.Subsonic.TimeoutSeconds = 10
	}

	p := &c.Presence
	if p.MinUpdateSpacingSeconds <= 0 {
		p.MinUpdateSpacingSeconds = 4
	}
	if p.PollIntervalSeconds <= p.MinUpdateSpacingSeconds {
		p.PollIntervalSeconds = p.MinUpdateSpacingSeconds + 1
	}
	if p.IdleIntervalSeconds <= 0 {
		p.IdleIntervalSeconds = 5
	}
	if p.SessionTimeoutSeconds <= 0 {
		p.SessionTimeoutSeconds = 30
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 600
	}

	return nil
}

// Timeout bounds every request made to the Subsonic server.
func (s SubsonicConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// PollInterval is the steady-state sleep between cycles while a track is displayed.
func (p PresenceConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// IdleInterval is the sleep between cycles while nothing is playing.
func (p PresenceConfig) IdleInterval() time.Duration {
	return time.Duration(p.IdleIntervalSeconds) * time.Second
}

// MinUpdateSpacing is the minimum time between two presence updates.
func (p PresenceConfig) MinUpdateSpacing() time.Duration {
	return time.Duration(p.MinUpdateSpacingSeconds) * time.Second
}

// SessionTimeout bounds the wait for the Discord session to report ready.
func (p PresenceConfig) SessionTimeout() time.Duration {
	return time.Duration(p.SessionTimeoutSeconds) * time.Second
}

// TTL is how long cached album lookups stay fresh.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
