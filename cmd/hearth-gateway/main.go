// ABOUTME: Entry point for the hearth-gateway chat gateway.
// ABOUTME: Subcommands: serve, init, health, hash-token.

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

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/hearth-gateway/internal/auth"
	"github.com/2389/hearth-gateway/internal/config"
	"github.com/2389/hearth-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                     _   _
| |__   ___  __ _ _ __| |_| |__
| '_ \ / _ \/ _' | '__| __| '_ \
| | | |  __/ (_| | |  | |_| | | |
|_| |_|\___|\__,_|_|   \__|_| |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: HEARTH_CONFIG env var > XDG_CONFIG_HOME/hearth/gateway.yaml > ~/.config/hearth/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HEARTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hearth", "gateway.yaml")
}

// getDataPath returns the path to the hearth data directory.
// Priority: XDG_DATA_HOME/hearth > ~/.local/share/hearth
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hearth")
}

func main() {
	// Load .env if present; real env vars win
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: hearth-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve              Start the gateway")
		fmt.Println("  init               Create a new config file interactively")
		fmt.Println("  health             Check gateway health via the admin API")
		fmt.Println("  hash-token TOKEN   Print the bcrypt hash of a static admin token")
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
	case "health":
		err = runHealth(ctx)
	case "hash-token":
		err = runHashToken()
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

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend:  %s\n", cfg.Backend.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Policy:   %s\n", cfg.Security.DMPolicy)
	if cfg.Admin.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Admin:    %s\n", cfg.Admin.Addr)
	}
	if cfg.Backend.EventsEnabled {
		green.Print("    ▶ ")
		fmt.Printf("Events:   ")
		yellow.Println(cfg.Backend.EventsURL)
	}
	fmt.Println()

	logger.Info("starting hearth-gateway",
		"config", configPath,
		"backend", cfg.Backend.BaseURL,
		"policy", cfg.Security.DMPolicy,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

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

	if cfg.Admin.Addr == "" {
		return fmt.Errorf("admin.addr not configured; the health endpoint lives on the admin API")
	}

	url := fmt.Sprintf("http://%s/health", cfg.Admin.Addr)
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

// runHashToken prints the bcrypt hash of a static admin token for
// pasting into admin.token_hash.
func runHashToken() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: hearth-gateway hash-token TOKEN")
	}

	hash, err := auth.HashToken(os.Args[2])
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hearth-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Backend Configuration ---")
	baseURL := prompt(reader, "Backend base URL", "http://localhost:4096")
	eventsStr := prompt(reader, "Enable push events?", "no")
	eventsEnabled := strings.ToLower(eventsStr) == "yes" || strings.ToLower(eventsStr) == "y"
	var eventsURL string
	if eventsEnabled {
		eventsURL = prompt(reader, "Events websocket URL", "ws://localhost:4096/events")
	}

	fmt.Println("\n--- Security Configuration ---")
	dmPolicy := prompt(reader, "DM policy (open/pairing/allowlist/disabled)", "pairing")

	fmt.Println("\n--- State Configuration ---")
	stateDir := prompt(reader, "State directory", filepath.Join(defaultDataPath, "state"))
	auditPath := prompt(reader, "Audit database path (empty to disable)", filepath.Join(defaultDataPath, "audit.db"))

	fmt.Println("\n--- Admin API Configuration ---")
	adminAddr := prompt(reader, "Admin API address (empty to disable)", "localhost:8790")
	var jwtSecret string
	if adminAddr != "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# hearth-gateway configuration\n")
	cfg.WriteString("# Generated by hearth-gateway init\n\n")

	cfg.WriteString("backend:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: %q\n", baseURL))
	if eventsEnabled {
		cfg.WriteString(fmt.Sprintf("  events_url: %q\n", eventsURL))
		cfg.WriteString("  events_enabled: true\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("security:\n")
	cfg.WriteString(fmt.Sprintf("  dm_policy: %q\n", dmPolicy))
	cfg.WriteString("  pairing_ttl: \"1h\"\n")
	cfg.WriteString("  rate_per_minute: 10\n")
	cfg.WriteString("  rate_per_hour: 100\n")
	cfg.WriteString("\n")

	cfg.WriteString("correlator:\n")
	cfg.WriteString("  poll_interval: \"2s\"\n")
	cfg.WriteString("  timeout: \"2m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("accumulator:\n")
	cfg.WriteString("  ttl: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("state:\n")
	cfg.WriteString(fmt.Sprintf("  dir: %q\n", stateDir))
	if auditPath != "" {
		cfg.WriteString(fmt.Sprintf("  audit_path: %q\n", auditPath))
	}
	cfg.WriteString("\n")

	if adminAddr != "" {
		cfg.WriteString("admin:\n")
		cfg.WriteString(fmt.Sprintf("  addr: %q\n", adminAddr))
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", jwtSecret))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("State directory: %s\n", stateDir)
	fmt.Println("\nTo start the gateway:")
	fmt.Printf("  hearth-gateway serve\n")

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
