package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Telegram  TelegramConfig            `json:"telegram"`
	Providers map[string]ProviderConfig `json:"providers"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	DefaultProvider       string `json:"defaultProvider"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	HTTPTimeoutSeconds    int    `json:"httpTimeoutSeconds"`    // photo download and HTTP-based providers
	ProfilePath           string `json:"profilePath,omitempty"` // YAML bot profile; empty = built-in
}

type TelegramConfig struct {
	Token       string         `json:"token"`
	AllowFrom   FlexStringList `json:"allowFrom"`
	ParseMode   string         `json:"parseMode"`
	PollTimeout int            `json:"pollTimeout"`           // long-polling timeout in seconds
	APIEndpoint string         `json:"apiEndpoint,omitempty"` // self-hosted Bot API server, "%s" for token and method
	Debug       bool           `json:"debug,omitempty"`
}

type ProviderConfig struct {
	Enabled         bool   `json:"enabled"`
	APIBase         string `json:"apiBase,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	DefaultModel    string `json:"defaultModel,omitempty"`
	RateLimitPerMin int    `json:"rateLimitPerMinute,omitempty"` // 0 = unlimited
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, n.String())
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.plantbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".plantbot"
	}
	return filepath.Join(home, ".plantbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load builds the configuration from defaults, the optional JSON file at
// path and the process environment, in that order of precedence.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults + environment only
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		data = []byte(ExpandEnvVars(string(data)))
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.ProfilePath = ExpandPath(cfg.General.ProfilePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if def != "" {
			return def
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// The file may hold the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks value ranges and provider references. Secrets are checked
// separately by RequireSecrets because not every command needs them.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.HTTPTimeoutSeconds < 1 {
		errs = append(errs, "general.httpTimeoutSeconds must be >= 1")
	}

	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		errs = append(errs, "telegram.parseMode must be one of: Markdown, MarkdownV2, HTML (or empty)")
	}
	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.pollTimeout must be >= 0")
	}
	if ep := cfg.Telegram.APIEndpoint; ep != "" && strings.Count(ep, "%s") != 2 {
		errs = append(errs, "telegram.apiEndpoint must contain two %s placeholders (token, method)")
	}
	for _, id := range cfg.Telegram.AllowFrom {
		if _, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err != nil {
			errs = append(errs, fmt.Sprintf("telegram.allowFrom: %q is not a numeric user ID", id))
		}
	}

	pc, ok := cfg.Providers[cfg.General.DefaultProvider]
	switch {
	case !ok:
		errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
	case !pc.Enabled:
		errs = append(errs, fmt.Sprintf("general.defaultProvider %s is disabled", cfg.General.DefaultProvider))
	}
	for name, p := range cfg.Providers {
		if p.RateLimitPerMin < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s.rateLimitPerMinute must be >= 0", name))
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireSecrets checks that the credentials needed at startup are present.
// The bot token is only required when the Telegram channel will run.
func RequireSecrets(cfg *Config, needTelegram bool) error {
	var errs []string
	if needTelegram && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, "telegram.token is required (set "+EnvTelegramToken+")")
	}
	if cfg.General.DefaultProvider == ProviderGemini {
		if pc := cfg.Providers[ProviderGemini]; strings.TrimSpace(pc.APIKey) == "" {
			errs = append(errs, "providers.gemini.apiKey is required (set "+EnvGeminiAPIKey+")")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("missing credentials:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
