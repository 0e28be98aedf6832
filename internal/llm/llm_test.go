package llm

import (
	"testing"

	"github.com/comigor/herald-go/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: "http://localhost:1234/v1"})
	require.NoError(t, err)
	require.NotNil(t, c)

	var _ Client = c
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "openai"})
	require.Error(t, err)

	_, err = NewClient(config.LLMConfig{Provider: "bedrock", APIKey: "k"})
	require.Error(t, err)
}
