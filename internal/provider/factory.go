package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"plantbot/internal/config"
	"plantbot/internal/domain"
)

// Constructor creates a provider from its config entry.
type Constructor func(ctx context.Context, pc config.ProviderConfig, f *Factory) (domain.VisionProvider, error)

// Factory builds vision providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	httpClient   *http.Client
	constructors map[string]Constructor
}

// NewFactory creates a factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		httpClient:   SharedHTTPClient(time.Duration(cfg.General.HTTPTimeoutSeconds) * time.Second),
		constructors: make(map[string]Constructor),
	}
	f.constructors[config.ProviderGemini] = func(ctx context.Context, pc config.ProviderConfig, f *Factory) (domain.VisionProvider, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: pc.APIKey, Model: pc.DefaultModel, Logger: f.logger})
	}
	f.constructors[config.ProviderOllama] = func(ctx context.Context, pc config.ProviderConfig, f *Factory) (domain.VisionProvider, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, Model: pc.DefaultModel, Client: f.httpClient, Logger: f.logger}), nil
	}
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// HTTPClient returns the pooled client shared by HTTP-based components.
func (f *Factory) HTTPClient() *http.Client {
	return f.httpClient
}

// Build creates the named provider, or the default one when name is empty,
// wrapped with its configured rate limit.
func (f *Factory) Build(ctx context.Context, name string) (domain.VisionProvider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}
	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: no constructor registered", name)
	}

	p, err := ctor(ctx, pc, f)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	f.logger.Info("vision provider ready", "provider", name, "model", pc.DefaultModel, "rate_limit_per_min", pc.RateLimitPerMin)
	return WithRateLimit(p, pc.RateLimitPerMin), nil
}
