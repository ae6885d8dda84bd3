package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"query-assistant/internal/application/port/output"
)

const (
	StateStoreMemory = "memory"
	StateStoreSQLite = "sqlite"

	DefaultBlockfrostURL = "https://cardano-preview.blockfrost.io/api/v0"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr       string
	SecretToken    string
	CORSOrigins    []string
	RequestTimeout time.Duration

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32

	BlockfrostProjectID string
	BlockfrostBaseURL   string

	ChromaURL        string
	KnowledgeDataDir string

	StateStore  string
	StateDBPath string

	MaxToolRounds int
	ModelTimeout  time.Duration
	ToolTimeout   time.Duration

	AgentProfilesPath string
}

// Load reads the configuration from env. Secrets are validated by Validate so
// the REPL and the server can require different subsets.
func Load(env output.ConfigPort) Config {
	return Config{
		AppEnv:   env.GetWithDefault("APP_ENV", "dev"),
		LogLevel: env.GetWithDefault("LOG_LEVEL", "info"),

		HTTPAddr:       env.GetWithDefault("HTTP_ADDR", ":8000"),
		SecretToken:    env.Get("SECRET_TOKEN"),
		CORSOrigins:    splitList(env.GetWithDefault("CORS_ORIGINS", "http://localhost:3000")),
		RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 3*time.Minute),

		OpenAIAPIKey:   env.Get("OPENAI_API_KEY"),
		OpenAIBaseURL:  env.GetWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:      env.GetWithDefault("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: env.GetWithDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		Temperature:    float32(env.GetFloat("TEMPERATURE", 0.1)),

		BlockfrostProjectID: env.Get("BLOCKFROST_PROJECT_ID"),
		BlockfrostBaseURL:   env.GetWithDefault("BLOCKFROST_BASE_URL", DefaultBlockfrostURL),

		ChromaURL:        env.GetWithDefault("CHROMA_URL", "http://localhost:8001"),
		KnowledgeDataDir: env.GetWithDefault("KNOWLEDGE_DATA_DIR", "./knowledge"),

		StateStore:  strings.ToLower(env.GetWithDefault("STATE_STORE", StateStoreMemory)),
		StateDBPath: env.GetWithDefault("STATE_DB_PATH", "./data/state.db"),

		MaxToolRounds: env.GetInt("MAX_TOOL_ROUNDS", 8),
		ModelTimeout:  env.GetDuration("MODEL_TIMEOUT", 60*time.Second),
		ToolTimeout:   env.GetDuration("TOOL_TIMEOUT", 20*time.Second),

		AgentProfilesPath: env.Get("AGENT_PROFILES_PATH"),
	}
}

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the settings every binary needs.
func (c Config) Validate() error {
	var problems []string
	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.BlockfrostProjectID == "" {
		problems = append(problems, "BLOCKFROST_PROJECT_ID is required")
	}
	switch c.StateStore {
	case StateStoreMemory, StateStoreSQLite:
	default:
		problems = append(problems, fmt.Sprintf("STATE_STORE must be %q or %q, got %q", StateStoreMemory, StateStoreSQLite, c.StateStore))
	}
	if c.MaxToolRounds < 1 {
		problems = append(problems, "MAX_TOOL_ROUNDS must be positive")
	}
	if c.ModelTimeout <= 0 || c.ToolTimeout <= 0 {
		problems = append(problems, "MODEL_TIMEOUT and TOOL_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer additionally requires the gateway secret.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.SecretToken == "" {
		return fmt.Errorf("%w: SECRET_TOKEN is required", ErrInvalidConfig)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
