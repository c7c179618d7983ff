package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read at startup.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvProvider      = "PLANTBOT_PROVIDER"
	EnvModel         = "PLANTBOT_MODEL"
	EnvLogLevel      = "PLANTBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvGeminiAPIKey); v != "" {
		setProvider(cfg, ProviderGemini, func(pc *ProviderConfig) { pc.APIKey = v })
	}
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.General.DefaultProvider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		setProvider(cfg, cfg.General.DefaultProvider, func(pc *ProviderConfig) { pc.DefaultModel = v })
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.General.LogLevel = v
	}
}

func setProvider(cfg *Config, name string, fn func(*ProviderConfig)) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	pc, ok := cfg.Providers[name]
	if !ok {
		// Only providers declared in config or defaults can be tuned from env.
		return
	}
	fn(&pc)
	cfg.Providers[name] = pc
}
