package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plantbot/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiDefaultModel = "gemini-2.0-flash"

// Gemini implements domain.VisionProvider on the Google Generative AI API.
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *slog.Logger
}

type GeminiConfig struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

// NewGemini creates the API client. No request is made until Describe.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:    client,
		model:     client.GenerativeModel(cfg.Model),
		modelName: cfg.Model,
		logger:    cfg.Logger,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Describe sends the prompt and the image in a single request and waits
// for the complete answer.
func (g *Gemini) Describe(ctx context.Context, req domain.VisionRequest) (*domain.VisionResponse, error) {
	start := time.Now()
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(req.Prompt),
		genai.Blob{MIMEType: req.MIMEType, Data: req.Image},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text, err := geminiText(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini response: %w", err)
	}

	latency := time.Since(start).Milliseconds()
	if resp.UsageMetadata != nil {
		g.logger.Debug("gemini usage",
			"model", g.modelName,
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"completion_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"latency_ms", latency,
		)
	}
	return &domain.VisionResponse{Text: text, Model: g.modelName, LatencyMs: latency}, nil
}

// Healthy fetches the model metadata, which checks the key and the model name.
func (g *Gemini) Healthy(ctx context.Context) error {
	if _, err := g.model.Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s: %w", g.modelName, err)
	}
	return nil
}

// Close releases the underlying client connections.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("nil response")
	}
	if len(resp.Candidates) == 0 {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("prompt blocked: %s", fb.BlockReason)
		}
		return "", errors.New("no candidates")
	}

	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("empty candidate (finish reason %s)", cand.FinishReason)
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
