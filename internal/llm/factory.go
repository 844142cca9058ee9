package llm

import (
	"context"
	"fmt"

	"teacherdev_backend/internal/config"

	"go.uber.org/zap"
)

// NewProvider builds the configured provider wrapped with request logging.
// Retries are not applied here; callers own their retry policy.
func NewProvider(ctx context.Context, cfg config.AIConfig, log *zap.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "openai", "":
		base, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithLogging(base, log), nil
}
