// ABOUTME: Configuration loading and parsing for relaypressd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/relay"
)

// DefaultSyncInterval is used when sync.interval is not configured.
const DefaultSyncInterval = 5 * time.Minute

// Config represents the complete relaypressd configuration
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Relays    RelaysConfig    `yaml:"relays"`
	Identity  IdentityConfig  `yaml:"identity"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Publish   PublishConfig   `yaml:"publish"`
	Sync      SyncConfig      `yaml:"sync"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the site this daemon serves.
type SiteConfig struct {
	// ControllerPubkey is the key whose site-config events are trusted.
	// Accepts hex or npub; normalized to hex on load.
	ControllerPubkey string `yaml:"controller_pubkey"`
	// PreferredRelay, when set, overrides any default relay arriving in
	// remote configuration.
	PreferredRelay string `yaml:"preferred_relay"`
}

// RelaysConfig holds the relay sets used before and beside the synced
// relay list.
type RelaysConfig struct {
	// Bootstrap relays are read from until the identity's own relay
	// list has been fetched.
	Bootstrap []string `yaml:"bootstrap"`
	// PublishFallback replaces the built-in fallback targets used when
	// no publish relays are configured anywhere.
	PublishFallback []string `yaml:"publish_fallback"`
}

// IdentityConfig controls how the daemon obtains its signing key.
type IdentityConfig struct {
	KeystorePath string `yaml:"keystore_path"`
	// SecretKey is a hex or nsec key used directly, bypassing the
	// keystore. Meant for development; use ${VAR} expansion rather
	// than a literal.
	SecretKey string `yaml:"secret_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the local API address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`
	Funnel    bool   `yaml:"funnel"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SchedulerConfig points at the optional companion scheduling service.
type SchedulerConfig struct {
	URL string `yaml:"url"`
}

// PublishConfig tunes the relay fan-out publisher.
type PublishConfig struct {
	// DisableClientTag suppresses the client attribution tag that is
	// otherwise appended to outgoing events.
	DisableClientTag bool `yaml:"disable_client_tag"`

	TargetTimeout    time.Duration `yaml:"-"`
	TargetTimeoutRaw string        `yaml:"target_timeout"`
}

// SyncConfig tunes the remote configuration sync loop.
type SyncConfig struct {
	Interval        time.Duration `yaml:"-"`
	EndpointTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IntervalRaw        string `yaml:"interval"`
	EndpointTimeoutRaw string `yaml:"endpoint_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish runs the post-unmarshal steps shared by Load and tests:
// duration parsing, key and URL normalization, then validation.
func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.normalize(); err != nil {
		return fmt.Errorf("normalizing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// normalize rewrites keys to hex and relay addresses to canonical form,
// rejecting values that cannot be parsed.
func (c *Config) normalize() error {
	if c.Site.ControllerPubkey != "" {
		hex, err := identity.NormalizePubKey(c.Site.ControllerPubkey)
		if err != nil {
			return fmt.Errorf("site.controller_pubkey: %w", err)
		}
		c.Site.ControllerPubkey = hex
	}

	if c.Site.PreferredRelay != "" {
		u, err := relay.NormalizeURL(c.Site.PreferredRelay)
		if err != nil {
			return fmt.Errorf("site.preferred_relay: %w", err)
		}
		c.Site.PreferredRelay = u
	}

	for i, raw := range c.Relays.Bootstrap {
		u, err := relay.NormalizeURL(raw)
		if err != nil {
			return fmt.Errorf("relays.bootstrap[%d]: %w", i, err)
		}
		c.Relays.Bootstrap[i] = u
	}
	for i, raw := range c.Relays.PublishFallback {
		u, err := relay.NormalizeURL(raw)
		if err != nil {
			return fmt.Errorf("relays.publish_fallback[%d]: %w", i, err)
		}
		c.Relays.PublishFallback[i] = u
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale carries the API
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Identity.KeystorePath != "" && c.Identity.SecretKey != "" {
		return fmt.Errorf("identity.keystore_path and identity.secret_key are mutually exclusive")
	}

	if c.Scheduler.URL != "" {
		u, err := url.Parse(c.Scheduler.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("scheduler.url must be an http(s) URL")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.IntervalRaw != "" {
		cfg.Sync.Interval, err = time.ParseDuration(cfg.Sync.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.interval %q: %w", cfg.Sync.IntervalRaw, err)
		}
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = DefaultSyncInterval
	}

	if cfg.Sync.EndpointTimeoutRaw != "" {
		cfg.Sync.EndpointTimeout, err = time.ParseDuration(cfg.Sync.EndpointTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.endpoint_timeout %q: %w", cfg.Sync.EndpointTimeoutRaw, err)
		}
	}

	if cfg.Publish.TargetTimeoutRaw != "" {
		cfg.Publish.TargetTimeout, err = time.ParseDuration(cfg.Publish.TargetTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing publish.target_timeout %q: %w", cfg.Publish.TargetTimeoutRaw, err)
		}
	}

	return nil
}
