package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plantbot/internal/domain"
	"plantbot/internal/metrics"
	"plantbot/internal/profile"
)

// ErrEmptyAnswer is returned when the provider answered with no text at all.
var ErrEmptyAnswer = errors.New("empty answer from vision provider")

// Pipeline submits one image to the vision provider and formats the answer.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	provider  domain.VisionProvider
	profile   *profile.Profile
	formatter *Formatter
	logger    *slog.Logger
}

type PipelineConfig struct {
	Provider  domain.VisionProvider
	Profile   *profile.Profile
	Formatter *Formatter // optional, built from Profile when nil
	Logger    *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Profile == nil {
		cfg.Profile = profile.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Formatter == nil {
		cfg.Formatter = NewFormatter(cfg.Profile, nil)
	}
	return &Pipeline{
		provider:  cfg.Provider,
		profile:   cfg.Profile,
		formatter: cfg.Formatter,
		logger:    cfg.Logger,
	}
}

// Identify sends image with the fixed prompt and returns the formatted reply.
func (p *Pipeline) Identify(ctx context.Context, image []byte) (Reply, error) {
	metrics.IdentificationsTotal.Inc()

	start := time.Now()
	resp, err := p.provider.Describe(ctx, domain.VisionRequest{
		Prompt:   p.profile.Prompt,
		Image:    image,
		MIMEType: domain.MIMETypeJPEG,
	})
	metrics.InferenceLatency.ObserveSince(start)
	if err != nil {
		return Reply{}, fmt.Errorf("%s inference: %w", p.provider.Name(), err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Reply{}, fmt.Errorf("%s inference: %w", p.provider.Name(), ErrEmptyAnswer)
	}

	p.logger.Debug("vision answer received",
		"provider", p.provider.Name(),
		"model", resp.Model,
		"latency_ms", resp.LatencyMs,
		"answer_len", len(resp.Text),
	)

	reply := p.formatter.Format(resp.Text)
	if reply.Rejected {
		metrics.RejectionsTotal.Inc()
	}
	return reply, nil
}
