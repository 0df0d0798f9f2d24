// ABOUTME: Configuration loading and parsing for copilot-chat
// ABOUTME: Supports YAML files with environment variable expansion and env-only startup

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultConnectTimeout  = 30 * time.Second
	DefaultResponseTimeout = 5 * time.Minute
	DefaultSessionTTL      = 12 * time.Hour
	DefaultMetricsPath     = "/metrics"
)

// requiredEnvVars maps each mandatory environment variable to a short
// description used in the startup error when it is missing.
var requiredEnvVars = []struct {
	Name        string
	Description string
}{
	{"COPILOT_ENVIRONMENT_ID", "Copilot Studio environment ID"},
	{"COPILOT_AGENT_IDENTIFIER", "Copilot Studio agent identifier"},
	{"AZURE_TENANT_ID", "Azure tenant ID"},
	{"AZURE_APP_CLIENT_ID", "Azure app client ID"},
	{"AZURE_APP_CLIENT_SECRET", "Azure app client secret"},
}

// Config represents the complete copilot-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Copilot   CopilotConfig   `yaml:"copilot"`
	Azure     AzureConfig     `yaml:"azure"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Debug     DebugConfig     `yaml:"debug"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL is the external URL of the app, used to build the OAuth
	// redirect URI. Defaults to http://localhost<http_addr>.
	BaseURL string `yaml:"base_url"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// CopilotConfig holds Copilot Studio agent configuration
type CopilotConfig struct {
	EnvironmentID   string `yaml:"environment_id"`
	AgentIdentifier string `yaml:"agent_identifier"`

	ConnectTimeout  time.Duration `yaml:"-"`
	ResponseTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw  string `yaml:"connect_timeout"`
	ResponseTimeoutRaw string `yaml:"response_timeout"`
}

// AzureConfig holds Entra ID sign-in configuration
type AzureConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DatabaseConfig holds transcript database configuration.
// An empty path disables transcript persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig holds browser session configuration
type SessionConfig struct {
	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DebugConfig holds debugging configuration.
// ActivityLog is a JSON-lines file capturing raw agent activities.
type DebugConfig struct {
	ActivityLog string `yaml:"activity_log"`
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

	cfg.applyDefaults()

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables alone, for running
// without a config file. All required variables must be set; the error
// lists every missing one so a misconfigured deployment fails loudly once.
func FromEnv() (*Config, error) {
	var missing []string
	for _, v := range requiredEnvVars {
		if os.Getenv(v.Name) == "" {
			missing = append(missing, fmt.Sprintf("  - %s: %s", v.Name, v.Description))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables:\n%s", strings.Join(missing, "\n"))
	}

	cfg := &Config{
		Copilot: CopilotConfig{
			EnvironmentID:   os.Getenv("COPILOT_ENVIRONMENT_ID"),
			AgentIdentifier: os.Getenv("COPILOT_AGENT_IDENTIFIER"),
		},
		Azure: AzureConfig{
			TenantID:     os.Getenv("AZURE_TENANT_ID"),
			ClientID:     os.Getenv("AZURE_APP_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_APP_CLIENT_SECRET"),
		},
		Database: DatabaseConfig{
			Path: os.Getenv("COPILOT_CHAT_DB_PATH"),
		},
		Debug: DebugConfig{
			ActivityLog: os.Getenv("COPILOT_CHAT_ACTIVITY_LOG"),
		},
	}
	if addr := os.Getenv("COPILOT_CHAT_HTTP_ADDR"); addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost" + c.Server.HTTPAddr
	}
	if c.Copilot.ConnectTimeout == 0 {
		c.Copilot.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Copilot.ResponseTimeout == 0 {
		c.Copilot.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
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

// Validate checks that all required configuration fields are present.
// Every missing field is reported in a single error.
func (c *Config) Validate() error {
	var missing []string

	if c.Copilot.EnvironmentID == "" {
		missing = append(missing, "  - copilot.environment_id: Copilot Studio environment ID")
	}
	if c.Copilot.AgentIdentifier == "" {
		missing = append(missing, "  - copilot.agent_identifier: Copilot Studio agent identifier")
	}
	if c.Azure.TenantID == "" {
		missing = append(missing, "  - azure.tenant_id: Azure tenant ID")
	}
	if c.Azure.ClientID == "" {
		missing = append(missing, "  - azure.client_id: Azure app client ID")
	}
	if c.Azure.ClientSecret == "" {
		missing = append(missing, "  - azure.client_secret: Azure app client secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration:\n%s", strings.Join(missing, "\n"))
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Copilot.ConnectTimeoutRaw != "" {
		cfg.Copilot.ConnectTimeout, err = time.ParseDuration(cfg.Copilot.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Copilot.ConnectTimeoutRaw, err)
		}
	}

	if cfg.Copilot.ResponseTimeoutRaw != "" {
		cfg.Copilot.ResponseTimeout, err = time.ParseDuration(cfg.Copilot.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Copilot.ResponseTimeoutRaw, err)
		}
	}

	if cfg.Session.TTLRaw != "" {
		cfg.Session.TTL, err = time.ParseDuration(cfg.Session.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session ttl %q: %w", cfg.Session.TTLRaw, err)
		}
	}

	return nil
}
