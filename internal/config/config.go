package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientType selects the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// Search providers understood by tools.NewSearcher.
const (
	SearchProviderHTTP = "http"
	SearchProviderMCP  = "mcp"
	SearchProviderNone = "none"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig
	Server     ServerConfig
	Log        LogConfig
	Reflection ReflectionConfig
	Search     SearchConfig
	Store      StoreConfig
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	// RequestTimeout bounds one /api/process call; zero disables it.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ReflectionConfig tunes the generate/critique loop and the prompts it sends.
// Empty prompt fields fall back to the built-in defaults of the agent package.
type ReflectionConfig struct {
	MaxRounds          int    `mapstructure:"max_rounds"`
	FirstInstruction   string `mapstructure:"first_instruction"`
	ReviseInstruction  string `mapstructure:"revise_instruction"`
	CriticPrompt       string `mapstructure:"critic_prompt"`
	TolerateToolErrors bool   `mapstructure:"tolerate_tool_errors"`
	MaxToolTurns       int    `mapstructure:"max_tool_turns"`
}

// SearchConfig selects the backend of the generator's search tool.
type SearchConfig struct {
	Provider   string `mapstructure:"provider"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	// AuthHeader names the header carrying APIKey. "bearer" sends it as
	// "Authorization: Bearer <key>".
	AuthHeader string `mapstructure:"auth_header"`
	NumResults int    `mapstructure:"num_results"`
	// MCPTool is the tool name called on the MCP servers when Provider is "mcp".
	MCPTool string `mapstructure:"mcp_tool"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MCPServerConfig describes one MCP server used as a tool source.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "3m")
	v.SetDefault("log.level", "info")
	v.SetDefault("reflection.max_rounds", 3)
	v.SetDefault("reflection.first_instruction", "")
	v.SetDefault("reflection.revise_instruction", "")
	v.SetDefault("reflection.critic_prompt", "")
	v.SetDefault("reflection.tolerate_tool_errors", false)
	v.SetDefault("reflection.max_tool_turns", 5)
	v.SetDefault("search.provider", SearchProviderNone)
	v.SetDefault("search.url", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.auth_header", "x-api-key")
	v.SetDefault("search.num_results", 5)
	v.SetDefault("search.mcp_tool", "search")
	v.SetDefault("store.path", "herald.db")
}

// Load loads the configuration from the file named by CONFIG_PATH, or from
// config.yaml in the working directory. A missing config.yaml is not an error;
// defaults and HERALD_* environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HERALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
