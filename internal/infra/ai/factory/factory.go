package factory

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/gemini"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/openai"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Options are transport settings shared by every session.
type Options struct {
	Timeout time.Duration
	Limiter *rate.Limiter
}

// New builds a model client for the given session settings.
func New(s ai.Settings, opts Options) (ai.Client, error) {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", ProviderGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
			Timeout: opts.Timeout,
			Limiter: opts.Limiter,
		}), nil
	case ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
			Timeout: opts.Timeout,
			Limiter: opts.Limiter,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", s.Provider)
	}
}
