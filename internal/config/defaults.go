package config

// Provider names understood by the provider factory.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultProvider:       ProviderGemini,
			MaxConcurrentMessages: 8,
			HTTPTimeoutSeconds:    120,
		},
		Telegram: TelegramConfig{
			ParseMode:   "Markdown",
			PollTimeout: 30,
		},
		Providers: map[string]ProviderConfig{
			ProviderGemini: {
				Enabled:      true,
				DefaultModel: "gemini-2.0-flash",
			},
			ProviderOllama: {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llava",
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
