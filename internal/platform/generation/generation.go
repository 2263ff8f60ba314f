// Package generation turns a care-plan request into document text, either
// through the Gemini API or, when no credential is configured, through a
// deterministic local template.
package generation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Header holds the values every generated document must open with.
type Header struct {
	Age            int
	FormattedDOB   string // MM/DD/YYYY
	GenerationDate string // MM/DD/YYYY
	GenerationTime string // HH:MM, 24h
}

// Request is a fully derived generation request. Prompt already embeds the
// header and every patient and order field.
type Request struct {
	Header      Header
	PatientName string
	Medication  string
	Prompt      string
}

// Generator produces care-plan text. Implementations return a
// *apperror.GenerationError on any backend failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config configures the remote backend. An empty APIKey selects MockGenerator.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

const (
	DefaultModel   = "gemini-1.5-pro"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTimeout = 45 * time.Second
)

// New picks the generator for cfg.
func New(cfg Config, logger zerolog.Logger) Generator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn().Msg("no generation API key configured, care plans will use the mock template")
		return NewMockGenerator()
	}
	return NewGeminiGenerator(cfg, logger)
}
