package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"query-assistant/internal/adapter/tool"
	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/application/service"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/blockfrost"
	"query-assistant/internal/infrastructure/config"
	"query-assistant/internal/infrastructure/document"
	"query-assistant/internal/infrastructure/llm/openaiapi"
	"query-assistant/internal/infrastructure/logger"
	"query-assistant/internal/infrastructure/prompts"
	"query-assistant/internal/infrastructure/store/memory"
	"query-assistant/internal/infrastructure/store/sqlite"
	"query-assistant/internal/infrastructure/vectorstore"
	"query-assistant/internal/usecase/conversation"
	"query-assistant/internal/usecase/gateway"
	"query-assistant/internal/usecase/ingest"
)

type Container struct {
	Config    config.Config
	Logger    output.LoggerPort
	LLM       output.LLMPort
	Chain     output.BlockchainPort
	Knowledge *vectorstore.KnowledgeBase
	Store     output.ConversationStore
	Agents    service.AgentRegistry
	Gateway   input.QueryHandler
	Loader    input.KnowledgeLoader
}

type Options struct {
	// Progress receives loop events, the REPL passes its console here.
	Progress output.ProgressPort
	// Logger overrides the zap logger built from the config.
	Logger output.LoggerPort
}

func NewContainer(_ context.Context, cfg config.Config, opts Options) (*Container, error) {
	log := opts.Logger
	if log == nil {
		zl, err := logger.NewLoggerAdapter(logger.Options{
			Level:       cfg.LogLevel,
			Development: cfg.AppEnv == "dev",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		log = zl
	}

	profiles, err := config.LoadProfiles(cfg.AgentProfilesPath)
	if err != nil {
		log.Close()
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	llmCfg := openaiapi.DefaultConfig(cfg.OpenAIAPIKey, cfg.ChatModel)
	if cfg.OpenAIBaseURL != "" {
		llmCfg.BaseURL = cfg.OpenAIBaseURL
	}
	llmCfg.Logger = log
	llmCfg.LogBodies = cfg.LogLevel == "debug"
	llm := openaiapi.NewAdapter(llmCfg)

	chain := blockfrost.NewClient(blockfrost.Config{
		ProjectID: cfg.BlockfrostProjectID,
		BaseURL:   cfg.BlockfrostBaseURL,
		Logger:    log,
	})

	kb := vectorstore.NewChroma(vectorstore.Config{
		ChromaURL:      cfg.ChromaURL,
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
	}, log)

	c := &Container{
		Config:    cfg,
		Logger:    log,
		LLM:       llm,
		Chain:     chain,
		Knowledge: kb,
		Store:     store,
		Agents:    service.NewAgentRegistry(),
	}

	loopOpts := conversation.Options{
		ModelTimeout: cfg.ModelTimeout,
		ToolTimeout:  cfg.ToolTimeout,
		Progress:     opts.Progress,
	}

	cardanoTools := tool.NewCardanoTools(chain, kb, log)
	cardano, err := c.newAgent(entity.AgentDefinition{
		Type:        entity.AgentTypeCardano,
		Name:        "Cardano assistant",
		Model:       cfg.ChatModel,
		Temperature: cfg.Temperature,
		MaxRounds:   cfg.MaxToolRounds,
	}, prompts.CardanoPrompt, cardanoTools, nil, profiles, loopOpts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Agents.Register(cardano)

	legal, err := c.newAgent(entity.AgentDefinition{
		Type:        entity.AgentTypeLegal,
		Name:        "Legal assistant",
		Model:       cfg.ChatModel,
		Temperature: cfg.Temperature,
		MaxRounds:   cfg.MaxToolRounds,
	}, prompts.LegalPrompt, tool.NewLegalTools(kb, log), entity.LegalDomains(), profiles, loopOpts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Agents.Register(legal)

	c.Gateway = gateway.New(c.Agents, log)
	c.Loader = ingest.New(document.NewDirLoader(cfg.KnowledgeDataDir, log), kb, log, ingest.Options{})

	log.Info("Container ready", "agents", c.Agents.List(), "store", cfg.StateStore, "model", cfg.ChatModel)
	return c, nil
}

func (c *Container) newAgent(
	def entity.AgentDefinition,
	promptTemplate string,
	tools []output.ToolPort,
	domains []entity.LegalDomain,
	profiles *config.Profiles,
	opts conversation.Options,
) (input.Conversation, error) {
	prompt, err := prompts.GenerateSystemPrompt(promptTemplate, tools, domains...)
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", def.Type, err)
	}
	def.SystemPrompt = prompt
	def.Tools = tool.Names(tools)

	def, err = profiles.Apply(def)
	if err != nil {
		return nil, err
	}

	registry := service.NewToolRegistry()
	for _, t := range tools {
		registry.Register(t)
	}

	return conversation.New(def, c.LLM, registry, c.Store, c.Logger, opts), nil
}

func newStore(cfg config.Config) (output.ConversationStore, error) {
	if cfg.StateStore != config.StateStoreSQLite {
		return memory.New(), nil
	}
	if dir := filepath.Dir(cfg.StateDBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sqlite.Open(cfg.StateDBPath)
}

func (c *Container) Close() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && c.Logger != nil {
			c.Logger.Warn("Closing conversation store failed", "error", err)
		}
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
