package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/careplan/intake/internal/platform/apperror"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiGenerator calls the generateContent REST endpoint. Each call is bound
// by the configured timeout and is never retried.
type GeminiGenerator struct {
	client  *resty.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewGeminiGenerator(cfg Config, logger zerolog.Logger) *GeminiGenerator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &GeminiGenerator{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With().Str("component", "gemini").Str("model", model).Logger(),
	}
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.call(ctx, req.Prompt)
	if err != nil {
		g.logger.Error().Err(err).
			Dur("elapsed", time.Since(start)).
			Str("medication", req.Medication).
			Msg("care plan generation failed")
		return "", &apperror.GenerationError{Backend: g.Name(), Cause: err}
	}

	g.logger.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("care plan generated")
	return text, nil
}

func (g *GeminiGenerator) call(ctx context.Context, prompt string) (string, error) {
	var (
		result geminiResponse
		apiErr geminiError
	)
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/models/%s:generateContent", g.model))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		return "", fmt.Errorf("call generateContent: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("generateContent returned %d: %s", resp.StatusCode(), msg)
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return "", errors.New("response has no candidates")
	}

	var b strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response (finish reason %q)", result.Candidates[0].FinishReason)
	}
	return text, nil
}
