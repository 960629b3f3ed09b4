// ABOUTME: Entry point for the relaypress daemon
// ABOUTME: Syncs site state from relays and serves the admin HTTP API

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/relaypress/relaypress/internal/config"
	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/engine"
	"github.com/relaypress/relaypress/internal/httpapi"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/relaypool"
	"github.com/relaypress/relaypress/internal/schedule"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _
  _ __ ___| | __ _ _   _ _ __  _ __ ___  ___ ___
 | '__/ _ \ |/ _' | | | | '_ \| '__/ _ \/ __/ __|
 | | |  __/ | (_| | |_| | |_) | | |  __/\__ \__ \
 |_|  \___|_|\__,_|\__, | .__/|_|  \___||___/___/
                   |___/|_|
`

// getConfigPath returns the path to the daemon config file.
// Priority: RELAYPRESS_CONFIG env var > XDG_CONFIG_HOME/relaypress/config.yaml > ~/.config/relaypress/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAYPRESS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relaypress", "config.yaml")
}

// getDataPath returns the path to the relaypress data directory.
// Priority: XDG_DATA_HOME/relaypress > ~/.local/share/relaypress
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "relaypress")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: relaypressd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve          Start the daemon")
		fmt.Println("  init           Create a new config file interactively")
		fmt.Println("  bootstrap      Generate keys, config, and an admin token")
		fmt.Println("  health         Check daemon health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	if cfg.Server.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Site.ControllerPubkey != "" {
		green.Print("    ▶ ")
		fmt.Printf("Controller: %s\n", shortKey(cfg.Site.ControllerPubkey))
	}
	if len(cfg.Relays.Bootstrap) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Bootstrap:  %s\n", strings.Join(cfg.Relays.Bootstrap, ", "))
	}
	if cfg.Scheduler.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Scheduler:  %s\n", cfg.Scheduler.URL)
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting relaypressd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)

	store, err := configstore.NewSQLite(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}
	defer store.Close()

	pool := relaypool.New(logger)
	defer pool.Close()

	eng := engine.New(cfg, store, pool, logger)
	if _, err := eng.LoadIdentity(); err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	var scheduler httpapi.Scheduler
	if cfg.Scheduler.URL != "" {
		scheduler = schedule.NewClient(cfg.Scheduler.URL, eng.Signer(), logger)
	}

	srv := httpapi.New(cfg, eng, scheduler, logger)

	// The sync loop and the HTTP server run until the first failure or
	// signal; either one failing tears the other down.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- eng.Run(runCtx) }()
	go func() { errCh <- srv.Run(runCtx) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// shortKey abbreviates a 64-char hex key for terminal display.
func shortKey(hex string) string {
	if len(hex) <= 16 {
		return hex
	}
	return hex[:8] + "…" + hex[len(hex)-8:]
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("health check requires server.http_addr")
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runBootstrap performs first-time setup of the daemon:
// 1. Generates a signing keypair (keystore if RELAYPRESS_PASSPHRASE is set)
// 2. Creates a config file with a random JWT secret (if not exists)
// 3. Generates an admin API token
//
// This is a one-command setup: relaypressd bootstrap
func runBootstrap() error {
	// Parse args with explicit error handling
	// Supports both "--relay value" and "--relay=value" formats
	var bootstrapRelays []string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--relay" || arg == "-r":
			if i+1 >= len(args) {
				return fmt.Errorf("--relay requires a value")
			}
			bootstrapRelays = append(bootstrapRelays, args[i+1])
			i++
		case strings.HasPrefix(arg, "--relay="):
			bootstrapRelays = append(bootstrapRelays, strings.TrimPrefix(arg, "--relay="))
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if len(bootstrapRelays) == 0 {
		bootstrapRelays = []string{"wss://relay.damus.io", "wss://nos.lol"}
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "relaypress.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	var cfg *config.Config
	var jwtSecret string
	var npub string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)

		// Generate the signing keypair; it is also the controller key,
		// so the daemon trusts its own site-config events.
		signer, err := identity.Generate()
		if err != nil {
			return fmt.Errorf("generating keypair: %w", err)
		}
		npub, err = signer.Npub()
		if err != nil {
			return fmt.Errorf("encoding public key: %w", err)
		}

		// Create config directory
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// With a passphrase the secret key goes into an encrypted
		// keystore; without one it lands in the config file itself.
		var identitySection string
		passphrase := os.Getenv("RELAYPRESS_PASSPHRASE")
		if passphrase != "" {
			keystorePath := filepath.Join(dataPath, "key.json")
			if err := identity.SaveKey(keystorePath, signer.SecretKeyHex(), passphrase); err != nil {
				return fmt.Errorf("writing keystore: %w", err)
			}
			identitySection = fmt.Sprintf("identity:\n  keystore_path: \"%s\"\n", keystorePath)
			green.Printf("  ✓ Saved keystore: %s\n", keystorePath)
		} else {
			nsec, err := identity.EncodeNsec(signer.SecretKeyHex())
			if err != nil {
				return fmt.Errorf("encoding secret key: %w", err)
			}
			identitySection = fmt.Sprintf("identity:\n  secret_key: \"%s\"\n", nsec)
			yellow.Println("  ! RELAYPRESS_PASSPHRASE not set - secret key stored in config file")
		}

		var relayLines strings.Builder
		for _, r := range bootstrapRelays {
			relayLines.WriteString(fmt.Sprintf("    - \"%s\"\n", r))
		}

		// Write config file
		configContent := fmt.Sprintf(`# relaypress configuration
# Generated by relaypressd bootstrap

site:
  controller_pubkey: "%s"

relays:
  bootstrap:
%s
%s
database:
  path: "%s"

server:
  http_addr: "localhost:8080"

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`, npub, relayLines.String(), identitySection, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Check JWT secret is configured
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("jwt_secret not configured in %s (required for bootstrap)", configPath)
		}
		jwtSecret = cfg.Auth.JWTSecret

		if cfg.Site.ControllerPubkey != "" {
			npub, _ = identity.EncodeNpub(cfg.Site.ControllerPubkey)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	// Generate admin API token
	verifier := httpapi.NewJWTVerifier([]byte(jwtSecret))

	// Default TTL: 30 days
	tokenTTL := 30 * 24 * time.Hour
	expiresAt := time.Now().Add(tokenTTL).UTC()

	token, err := verifier.Generate("admin", tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for CLI tools to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	// Print results
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Site Identity")
	cyan.Println("  -------------")
	if npub != "" {
		fmt.Printf("  Public key: %s\n", npub)
	}
	fmt.Printf("  Relays:     %s\n", strings.Join(cfg.Relays.Bootstrap, ", "))
	fmt.Printf("  Database:   %s\n", cfg.Database.Path)
	fmt.Printf("  Token:      %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    relaypressd serve        # start the daemon")
	fmt.Println("    relaypress-admin status  # verify the API")
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("relaypress configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "relaypress.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Site configuration
	fmt.Println("\n--- Site Configuration ---")
	controller := prompt(reader, "Controller public key (npub or hex, empty for own key)", "")
	preferredRelay := prompt(reader, "Preferred relay (empty for none)", "")

	// Relays
	fmt.Println("\n--- Relay Configuration ---")
	relayList := prompt(reader, "Bootstrap relays (comma separated)", "wss://relay.damus.io, wss://nos.lol")
	var bootstrap []string
	for _, r := range strings.Split(relayList, ",") {
		if r = strings.TrimSpace(r); r != "" {
			bootstrap = append(bootstrap, r)
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	genSecret := prompt(reader, "Generate JWT secret?", "yes")
	var jwtSecret string
	if strings.ToLower(genSecret) == "yes" || strings.ToLower(genSecret) == "y" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "relaypress")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
		funnelStr := prompt(reader, "Enable Funnel (public HTTPS)?", "no")
		tsFunnel = strings.ToLower(funnelStr) == "yes" || strings.ToLower(funnelStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# relaypress configuration\n")
	cfg.WriteString("# Generated by relaypressd init\n\n")

	cfg.WriteString("site:\n")
	if controller != "" {
		cfg.WriteString(fmt.Sprintf("  controller_pubkey: \"%s\"\n", controller))
	}
	if preferredRelay != "" {
		cfg.WriteString(fmt.Sprintf("  preferred_relay: \"%s\"\n", preferredRelay))
	}
	cfg.WriteString("\n")

	cfg.WriteString("relays:\n")
	cfg.WriteString("  bootstrap:\n")
	for _, r := range bootstrap {
		cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", r))
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	if jwtSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("sync:\n")
	cfg.WriteString("  interval: \"5m\"\n")
	cfg.WriteString("  endpoint_timeout: \"8s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the daemon:")
	fmt.Printf("  relaypressd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
