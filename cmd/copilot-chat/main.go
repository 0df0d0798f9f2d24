// ABOUTME: Entry point for the copilot-chat web app
// ABOUTME: Serves a browser chat for a Copilot Studio agent behind Entra ID sign-in

package main

import (
	"bufio"
	"context"
	"errors"
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

	"github.com/2389/copilot-chat/internal/auth"
	"github.com/2389/copilot-chat/internal/config"
	"github.com/2389/copilot-chat/internal/debuglog"
	"github.com/2389/copilot-chat/internal/session"
	"github.com/2389/copilot-chat/internal/store"
	"github.com/2389/copilot-chat/internal/web"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                   _ _       _             _           _
  ___ ___  _ __  (_) | ___ | |_      ___ | |__   __ _| |_
 / __/ _ \| '_ \ | | |/ _ \| __|____/ __|| '_ \ / _' | __|
| (_| (_) | |_) || | | (_) | ||_____| (__ | | | | (_| | |_
 \___\___/| .__/ |_|_|\___/ \__|     \___||_| |_|\__,_|\__|
          |_|
`

// getConfigPath returns the path to the config file.
// Priority: COPILOT_CHAT_CONFIG env var > XDG_CONFIG_HOME/copilot-chat/config.yaml > ~/.config/copilot-chat/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COPILOT_CHAT_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "copilot-chat", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: copilot-chat <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the chat server")
		fmt.Println("  init    Create a new config file interactively")
		fmt.Println("  health  Check server health")
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
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to environment variables
// when no file exists.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, "", err
		}
		return cfg, "(environment)", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", cfg.Copilot.AgentIdentifier)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting copilot-chat",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"agent", cfg.Copilot.AgentIdentifier,
	)

	var st store.Store
	if cfg.Database.Path != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening transcript store: %w", err)
		}
		defer sqliteStore.Close()
		st = sqliteStore
	}

	recorder, err := debuglog.Open(cfg.Debug.ActivityLog, logger)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer recorder.Close()

	sessions := session.NewManager(cfg.Session.TTL, logger)
	defer sessions.Close()

	redirectURL := strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/auth/callback"
	authn := auth.New(cfg.Azure.TenantID, cfg.Azure.ClientID, cfg.Azure.ClientSecret, redirectURL, logger)
	defer authn.Close()

	server := web.New(cfg, sessions, authn, st, recorder)
	return web.NewApp(server).Run(ctx)
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
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/healthz", addr)
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

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("copilot-chat configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Copilot Studio ---")
	envID := prompt(reader, "Environment ID", "")
	agentID := prompt(reader, "Agent identifier (schema name)", "")

	fmt.Println("\n--- Azure Entra ID ---")
	tenantID := prompt(reader, "Tenant ID", "")
	clientID := prompt(reader, "App client ID", "")

	fmt.Println("\n--- Server ---")
	httpAddr := prompt(reader, "HTTP address", ":8080")
	baseURL := prompt(reader, "External base URL", "http://localhost:8080")

	fmt.Println("\n--- Transcripts ---")
	dbPath := prompt(reader, "SQLite database path (empty to disable)", "")

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# copilot-chat configuration\n")
	cfg.WriteString("# Generated by copilot-chat init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	cfg.WriteString("\n")

	cfg.WriteString("copilot:\n")
	cfg.WriteString(fmt.Sprintf("  environment_id: \"%s\"\n", envID))
	cfg.WriteString(fmt.Sprintf("  agent_identifier: \"%s\"\n", agentID))
	cfg.WriteString("  connect_timeout: \"30s\"\n")
	cfg.WriteString("  response_timeout: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("azure:\n")
	cfg.WriteString(fmt.Sprintf("  tenant_id: \"%s\"\n", tenantID))
	cfg.WriteString(fmt.Sprintf("  client_id: \"%s\"\n", clientID))
	cfg.WriteString("  client_secret: \"${AZURE_APP_CLIENT_SECRET}\"\n")
	cfg.WriteString("\n")

	if dbPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Secrets may end up in this file, keep it private
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  copilot-chat serve\n")

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
