package llm

import (
	"errors"
	"fmt"

	"github.com/comigor/herald-go/internal/config"
	"github.com/sashabaranov/go-openai"
)

// NewClient creates a new OpenAI-compatible client. Any provider exposing the
// chat completions API (OpenAI, OpenRouter, Ollama, vLLM) is reached through
// base_url.
func NewClient(cfg config.LLMConfig) (*openai.Client, error) {
	if cfg.Provider != "" && cfg.Provider != "openai" {
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key missing; set llm.api_key or HERALD_LLM_API_KEY")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return openai.NewClientWithConfig(config), nil
}
