// ABOUTME: Profile loading for the admin CLI
// ABOUTME: Loads TOML from the XDG config path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Profile holds the CLI's connection settings. Every field can be left
// empty; flags and environment variables fill the gaps.
type Profile struct {
	Server ServerProfile `toml:"server"`
	Auth   AuthProfile   `toml:"auth"`
}

type ServerProfile struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type AuthProfile struct {
	// JWTSecret lets the CLI mint tokens locally. Keep it in sync with
	// the daemon's auth.jwt_secret.
	JWTSecret string `toml:"jwt_secret"`
}

// profilePath returns the path to the admin profile file.
// Priority: RELAYPRESS_ADMIN_CONFIG env var > XDG_CONFIG_HOME/relaypress/admin.toml > ~/.config/relaypress/admin.toml
func profilePath() string {
	if envPath := os.Getenv("RELAYPRESS_ADMIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "admin.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relaypress", "admin.toml")
}

// loadProfile reads the profile from the given path, expanding environment
// variables. A missing file is not an error; it yields an empty profile.
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var p Profile
	if _, err := toml.Decode(expanded, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating profile: %w", err)
	}

	return &p, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks the fields that are present.
func (p *Profile) Validate() error {
	if p.Server.URL != "" {
		u, err := url.Parse(p.Server.URL)
		if err != nil {
			return fmt.Errorf("server.url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server.url must use http or https scheme")
		}
	}
	return nil
}

// resolveServerURL picks the daemon URL: env > profile > default.
func resolveServerURL(p *Profile) string {
	if v := os.Getenv("RELAYPRESS_URL"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	if p.Server.URL != "" {
		return strings.TrimSuffix(p.Server.URL, "/")
	}
	return "http://localhost:8080"
}

// resolveToken picks the bearer token: env > profile > token file written
// by "relaypressd bootstrap". Empty means unauthenticated.
func resolveToken(p *Profile) string {
	if v := os.Getenv("RELAYPRESS_TOKEN"); v != "" {
		return v
	}
	if p.Server.Token != "" {
		return p.Server.Token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "relaypress", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// resolveJWTSecret picks the signing secret for local token minting:
// env > profile.
func resolveJWTSecret(p *Profile) string {
	if v := os.Getenv("RELAYPRESS_JWT_SECRET"); v != "" {
		return v
	}
	return p.Auth.JWTSecret
}
