package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/herald-go/internal/config"
	"github.com/comigor/herald-go/internal/llm"
	"github.com/comigor/herald-go/internal/logger"
)

// Critic reviews drafts with a single chat completion. It implements
// reflection.Critic.
type Critic struct {
	llmClient    llm.Client
	cfg          config.LLMConfig
	systemPrompt string
}

func NewCritic(llmClient llm.Client, llmCfg config.LLMConfig, refCfg config.ReflectionConfig) *Critic {
	c := &Critic{
		llmClient:    llmClient,
		cfg:          llmCfg,
		systemPrompt: DefaultCriticPrompt,
	}
	if refCfg.CriticPrompt != "" {
		c.systemPrompt = refCfg.CriticPrompt
	}
	return c
}

// Critique implements reflection.Critic.
func (c *Critic) Critique(ctx context.Context, request string) (string, error) {
	resp, err := c.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: request},
		},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		logger.L.Error("critic LLM call failed", "error", err)
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}

	feedback := strings.TrimSpace(resp.Choices[0].Message.Content)
	if feedback == "" {
		return "", errEmptyContent
	}
	return feedback, nil
}
