// ABOUTME: Admin CLI for the relaypress daemon
// ABOUTME: Publishes content, edits site config, and manages scheduled notes over the HTTP API

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/relaypress/relaypress/internal/aggregate"
	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/httpapi"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/publish"
	"github.com/relaypress/relaypress/internal/schedule"
)

const banner = `
           _
  _ __ ___| | __ _ _   _ _ __  _ __ ___  ___ ___
 | '__/ _ \ |/ _' | | | | '_ \| '__/ _ \/ __/ __|
 | | |  __/ | (_| | |_| | |_) | | |  __/\__ \__ \
 |_|  \___|_|\__,_|\__, | .__/|_|  \___||___/___/
                   |___/|_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	profile, err := loadProfile(profilePath())
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	client := &apiClient{
		baseURL: resolveServerURL(profile),
		token:   resolveToken(profile),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		err = cmdStatus(client)
	case "config":
		err = cmdConfig(client, args)
	case "publish":
		err = cmdPublish(client, args)
	case "article":
		err = cmdArticle(client, args)
	case "schedule":
		err = cmdSchedule(client, args)
	case "responses":
		err = cmdResponses(client, args)
	case "token":
		err = cmdToken(profile, args)
	case "keygen":
		err = cmdKeygen(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: relaypress-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                    Show daemon health and site config")
	fmt.Println("  config                    Show the effective site config")
	fmt.Println("  config set <field> <val>  Set a site config field")
	fmt.Println("  config theme <theme>      Set the theme (dark, light, system)")
	fmt.Println("  publish <text>            Publish a short note")
	fmt.Println("  article --file <path>     Publish or schedule a long-form article")
	fmt.Println("  schedule                  List scheduled notes")
	fmt.Println("  schedule cancel <id>      Cancel a scheduled note")
	fmt.Println("  responses <address>       Show responses to an article")
	fmt.Println("  token                     Mint an API token (needs jwt_secret)")
	fmt.Println("  keygen                    Generate a signing keypair")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  RELAYPRESS_URL            Daemon base URL (default: http://localhost:8080)")
	fmt.Println("  RELAYPRESS_TOKEN          Bearer token for the API")
	fmt.Println("  RELAYPRESS_ADMIN_CONFIG   Profile path (default: ~/.config/relaypress/admin.toml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  relaypress-admin status")
	fmt.Println("  relaypress-admin publish \"hello from the command line\"")
	fmt.Println("  relaypress-admin article --file post.md --title \"Launch Day\"")
	fmt.Println("  relaypress-admin config set title \"My Site\"")
	fmt.Println()
}

// apiClient wraps the daemon's HTTP API with bearer auth.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reaching %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("unauthorized (set RELAYPRESS_TOKEN or run relaypressd bootstrap)")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, apiErrorMessage(resp))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// apiErrorMessage extracts the {"error": ...} body, falling back to the
// HTTP status.
func apiErrorMessage(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

// cmdStatus shows daemon health plus a config summary.
func cmdStatus(client *apiClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	req, err := http.NewRequest(http.MethodGet, client.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.http.Do(req)
	if err != nil {
		yellow.Printf("  Daemon:   ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		green.Printf("  Daemon:   ")
		fmt.Printf("ok (%s)\n", client.baseURL)
	} else {
		yellow.Printf("  Daemon:   ")
		color.Red("status %d\n", resp.StatusCode)
		return nil
	}

	var snap configstore.Snapshot
	if err := client.do(http.MethodGet, "/api/config", nil, &snap); err != nil {
		yellow.Printf("  Config:   ")
		color.Red("%v\n", err)
		return nil
	}

	if title, _ := snap.Field(configstore.FieldTitle); title != "" {
		green.Printf("  Title:    ")
		fmt.Println(title)
	}
	green.Printf("  Theme:    ")
	fmt.Println(string(snap.Theme))
	if relay := snap.DefaultRelay(); relay != "" {
		green.Printf("  Relay:    ")
		fmt.Println(relay)
	}
	if len(snap.RelayMetadata.Relays) > 0 {
		green.Printf("  Relays:   ")
		fmt.Printf("%d in relay list\n", len(snap.RelayMetadata.Relays))
	}

	fmt.Println()
	return nil
}

// cmdConfig shows or edits the site configuration.
func cmdConfig(client *apiClient, args []string) error {
	if len(args) == 0 {
		return cmdConfigShow(client)
	}

	switch args[0] {
	case "show", "get":
		return cmdConfigShow(client)
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: config set <field> <value>")
		}
		return patchConfig(client, httpapi.ConfigPatchRequest{
			Fields: map[string]string{args[1]: strings.Join(args[2:], " ")},
		})
	case "theme":
		if len(args) < 2 {
			return fmt.Errorf("usage: config theme <dark|light|system>")
		}
		return patchConfig(client, httpapi.ConfigPatchRequest{Theme: args[1]})
	default:
		return fmt.Errorf("unknown config subcommand: %s (use show, set, theme)", args[0])
	}
}

func cmdConfigShow(client *apiClient) error {
	var snap configstore.Snapshot
	if err := client.do(http.MethodGet, "/api/config", nil, &snap); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Site Config")
	cyan.Println("  -----------")
	fmt.Printf("  theme: %s\n", snap.Theme)

	if len(snap.SiteConfig.Fields) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, key := range sortedKeys(snap.SiteConfig.Fields) {
			fmt.Fprintf(w, "  %s\t%s\n", key, snap.SiteConfig.Fields[key])
		}
		w.Flush()
	}

	if len(snap.Navigation) > 0 {
		fmt.Println()
		cyan.Println("  Navigation")
		cyan.Println("  ----------")
		for _, item := range snap.Navigation {
			if item.Path != "" {
				fmt.Printf("  %s -> %s\n", item.Label, item.Path)
			} else {
				fmt.Printf("  %s\n", item.Label)
			}
		}
	}

	if len(snap.RelayMetadata.Relays) > 0 {
		fmt.Println()
		cyan.Println("  Relay List")
		cyan.Println("  ----------")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  URL\tREAD\tWRITE")
		fmt.Fprintln(w, "  ---\t----\t-----")
		for _, r := range snap.RelayMetadata.Relays {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", r.URL, mark(r.CanRead), mark(r.CanWrite))
		}
		w.Flush()
	}

	fmt.Println()
	return nil
}

func patchConfig(client *apiClient, patch httpapi.ConfigPatchRequest) error {
	var snap configstore.Snapshot
	if err := client.do(http.MethodPatch, "/api/config", patch, &snap); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Println("✓ Config updated")
	return nil
}

// cmdPublish publishes a short note built from the remaining arguments.
func cmdPublish(client *apiClient, args []string) error {
	// Optional --target flags before the note text
	var targets []string
	rest := args
	for len(rest) > 0 && strings.HasPrefix(rest[0], "--") {
		switch {
		case rest[0] == "--target" || rest[0] == "-t":
			if len(rest) < 2 {
				return fmt.Errorf("--target requires a value")
			}
			targets = append(targets, rest[1])
			rest = rest[2:]
		case strings.HasPrefix(rest[0], "--target="):
			targets = append(targets, strings.TrimPrefix(rest[0], "--target="))
			rest = rest[1:]
		default:
			return fmt.Errorf("unknown flag: %s", rest[0])
		}
	}

	text := strings.TrimSpace(strings.Join(rest, " "))
	if text == "-" || text == "" {
		// Read the note body from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return fmt.Errorf("usage: publish [--target wss://...] <text>")
	}

	var report publish.Report
	err := client.do(http.MethodPost, "/api/publish", httpapi.PublishNoteRequest{
		Content: text,
		Targets: targets,
	}, &report)
	if err != nil {
		return err
	}

	printReport(&report)
	return nil
}

// cmdArticle publishes or schedules a long-form article from a markdown file.
func cmdArticle(client *apiClient, args []string) error {
	var req httpapi.ArticleRequest
	var file, publishAt string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--file", "-f":
			if i+1 < len(args) {
				file = args[i+1]
				i++
			}
		case "--title":
			if i+1 < len(args) {
				req.Title = args[i+1]
				i++
			}
		case "--slug":
			if i+1 < len(args) {
				req.Slug = args[i+1]
				i++
			}
		case "--summary":
			if i+1 < len(args) {
				req.Summary = args[i+1]
				i++
			}
		case "--hashtag":
			if i+1 < len(args) {
				req.Hashtags = append(req.Hashtags, args[i+1])
				i++
			}
		case "--target":
			if i+1 < len(args) {
				req.Targets = append(req.Targets, args[i+1])
				i++
			}
		case "--at":
			if i+1 < len(args) {
				publishAt = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if file == "" {
		return fmt.Errorf("usage: article --file <path> [--title t] [--slug s] [--at RFC3339]")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading article: %w", err)
	}
	req.Markdown = string(data)

	if publishAt != "" {
		t, err := time.Parse(time.RFC3339, publishAt)
		if err != nil {
			return fmt.Errorf("invalid --at time (want RFC3339, e.g. 2026-09-01T09:00:00Z): %w", err)
		}
		req.PublishAt = t.Unix()
	}

	if req.PublishAt > 0 {
		var note schedule.Note
		if err := client.do(http.MethodPost, "/api/articles", req, &note); err != nil {
			return err
		}
		green := color.New(color.FgGreen)
		green.Printf("✓ Scheduled: %s\n", note.ID)
		fmt.Printf("  Publish at: %s\n", time.Unix(note.PublishAt, 0).Format(time.RFC3339))
		return nil
	}

	var report publish.Report
	if err := client.do(http.MethodPost, "/api/articles", req, &report); err != nil {
		return err
	}
	printReport(&report)
	return nil
}

// printReport renders a publish report with per-target outcomes.
func printReport(report *publish.Report) {
	green := color.New(color.FgGreen)
	if report.Failed() == 0 {
		green.Printf("✓ Published to %d relay(s)\n", report.Succeeded())
	} else {
		yellow := color.New(color.FgYellow)
		yellow.Printf("! Published to %d/%d relay(s)\n", report.Succeeded(), len(report.Outcomes))
	}
	if report.Event != nil {
		fmt.Printf("  Event: %s\n", report.Event.ID)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, o := range report.Outcomes {
		status := "ok"
		detail := fmt.Sprintf("%dms", o.ElapsedMs)
		if !o.OK {
			status = "FAILED"
			detail = o.Error
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", o.URL, status, detail)
	}
	w.Flush()
}

// cmdSchedule lists or cancels scheduled notes.
func cmdSchedule(client *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdScheduleList(client)
	case "cancel", "rm", "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: schedule cancel <note-id>")
		}
		if err := client.do(http.MethodDelete, "/api/schedule/"+args[0], nil, nil); err != nil {
			return err
		}
		green := color.New(color.FgGreen)
		green.Printf("✓ Canceled: %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown schedule subcommand: %s (use list, cancel)", subcmd)
	}
}

func cmdScheduleList(client *apiClient) error {
	var notes []schedule.Note
	if err := client.do(http.MethodGet, "/api/schedule", nil, &notes); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Scheduled Notes")
	cyan.Println("  ---------------")

	if len(notes) == 0 {
		fmt.Println("  (nothing scheduled)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tKIND\tPUBLISH AT\tSTATUS\tCONTENT")
	fmt.Fprintln(w, "  --\t----\t----------\t------\t-------")
	for _, n := range notes {
		at := time.Unix(n.PublishAt, 0).Format("Jan 02 15:04")
		fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%s\n",
			truncate(n.ID, 12), n.Kind, at, n.Status, truncate(n.Content, 40))
	}
	w.Flush()
	fmt.Println()

	return nil
}

// cmdResponses shows notes and comments replying to an article address.
func cmdResponses(client *apiClient, args []string) error {
	var address string
	var countOnly bool
	for _, arg := range args {
		switch arg {
		case "--count", "-c":
			countOnly = true
		default:
			if strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unknown flag: %s", arg)
			}
			address = arg
		}
	}
	if address == "" {
		return fmt.Errorf("usage: responses <kind:pubkey:slug> [--count]")
	}

	query := "?address=" + address

	if countOnly {
		var count aggregate.Count
		if err := client.do(http.MethodGet, "/api/responses/count"+query, nil, &count); err != nil {
			return err
		}
		fmt.Printf("%d response(s) from %d author(s)\n", count.Events, count.Authors)
		return nil
	}

	var rr httpapi.ResponsesResponse
	if err := client.do(http.MethodGet, "/api/responses"+query, nil, &rr); err != nil {
		return err
	}

	if len(rr.Events) == 0 {
		fmt.Println("(no responses)")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, ev := range rr.Events {
		when := time.Unix(ev.CreatedAt, 0).Format("Jan 02 15:04")
		gray.Printf("%s  %s\n", when, truncate(ev.PubKey, 16))
		fmt.Printf("  %s\n\n", strings.TrimSpace(ev.Content))
	}
	return nil
}

// cmdToken mints a bearer token locally from the shared JWT secret.
func cmdToken(profile *Profile, args []string) error {
	subject := "admin"
	var ttlDays int64 = 30

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--subject", "-s":
			if i+1 < len(args) {
				subject = args[i+1]
				i++
			}
		case "--ttl", "-t":
			if i+1 < len(args) {
				days, err := parseIntArg(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid ttl: %w", err)
				}
				ttlDays = days
				i++
			}
		}
	}

	secret := resolveJWTSecret(profile)
	if secret == "" {
		return fmt.Errorf("no jwt_secret configured (set RELAYPRESS_JWT_SECRET or add [auth] jwt_secret to %s)", profilePath())
	}

	ttl := time.Duration(ttlDays) * 24 * time.Hour
	token, err := httpapi.NewJWTVerifier([]byte(secret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Println("  Token created")
	fmt.Println()
	cyan.Println("  Subject:  " + subject)
	cyan.Println("  Expires:  " + time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println("  Token (keep this secret!):")
	fmt.Println()
	fmt.Println("  " + token)
	fmt.Println()

	return nil
}

// cmdKeygen generates a signing keypair, optionally saving it to an
// encrypted keystore.
func cmdKeygen(args []string) error {
	var keystorePath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--keystore", "-k":
			if i+1 < len(args) {
				keystorePath = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	signer, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}

	npub, err := signer.Npub()
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	nsec, err := identity.EncodeNsec(signer.SecretKeyHex())
	if err != nil {
		return fmt.Errorf("encoding secret key: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("  New Identity")
	cyan.Println("  ------------")
	fmt.Printf("  Public key: %s\n", npub)

	if keystorePath != "" {
		passphrase := os.Getenv("RELAYPRESS_PASSPHRASE")
		if passphrase == "" {
			return fmt.Errorf("RELAYPRESS_PASSPHRASE must be set to write a keystore")
		}
		if err := identity.SaveKey(keystorePath, signer.SecretKeyHex(), passphrase); err != nil {
			return fmt.Errorf("writing keystore: %w", err)
		}
		green.Printf("  ✓ Keystore: %s\n", keystorePath)
		fmt.Println()
		fmt.Println("  Point the daemon at it:")
		fmt.Println()
		fmt.Println("    identity:")
		fmt.Printf("      keystore_path: \"%s\"\n", keystorePath)
	} else {
		fmt.Printf("  Secret key: %s\n", nsec)
		fmt.Println()
		yellow.Println("  Keep the secret key safe. Anyone holding it can publish as this site.")
	}
	fmt.Println()

	return nil
}

// parseIntArg parses a string to int64.
func parseIntArg(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
