package tool

import (
	"context"
	"fmt"
	"strings"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

const (
	defaultTopK = 4
	maxTopK     = 10
	faqTopK     = 3
)

// KnowledgeSearchTool runs a similarity search against one collection.
type KnowledgeSearchTool struct {
	name        entity.ToolName
	description string
	collection  entity.Collection
	kb          output.KnowledgeBasePort
	logger      output.LoggerPort
}

func NewKnowledgeSearchTool(
	name entity.ToolName,
	collection entity.Collection,
	description string,
	kb output.KnowledgeBasePort,
	logger output.LoggerPort,
) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{
		name:        name,
		description: description,
		collection:  collection,
		kb:          kb,
		logger:      logger,
	}
}

func NewCardanoKnowledgeTool(kb output.KnowledgeBasePort, logger output.LoggerPort) *KnowledgeSearchTool {
	return NewKnowledgeSearchTool(
		entity.ToolSearchCardanoKnowledge,
		entity.CollectionCardano,
		"Search the Cardano knowledge base for concepts and documentation: proof-of-stake (Ouroboros), staking and delegation, stake pools, eUTXO, Plutus smart contracts, native tokens, governance, wallets and fees. Use for general questions that do not need live blockchain data.",
		kb, logger,
	)
}

func NewLegalKnowledgeTool(domain entity.LegalDomain, kb output.KnowledgeBasePort, logger output.LoggerPort) *KnowledgeSearchTool {
	var (
		name  entity.ToolName
		scope string
	)
	switch domain {
	case entity.DomainCivilLaw:
		name = entity.ToolSearchCivilLaw
		scope = "contracts and their validity, obligations, torts and damages, family and inheritance matters, limitation periods"
	case entity.DomainCorporateLaw:
		name = entity.ToolSearchCorporateLaw
		scope = "company formation and registration, shareholders and directors, governance duties, mergers, insolvency and compliance filings"
	default:
		name = entity.ToolSearchPropertyLaw
		scope = "ownership and title, property transfer and conveyancing, leases and tenancy, mortgages, land registration"
	}
	return NewKnowledgeSearchTool(
		name,
		entity.CollectionForDomain(domain),
		fmt.Sprintf("Search the %s knowledge base: %s. Returns the most relevant legal passages with their sources.", domain.Title(), scope),
		kb, logger,
	)
}

func (t *KnowledgeSearchTool) Name() entity.ToolName { return t.name }
func (t *KnowledgeSearchTool) Description() string   { return t.description }
func (t *KnowledgeSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Natural language search query",
			},
			"top_k": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     maxTopK,
				"description": fmt.Sprintf("Number of passages to return (default %d)", defaultTopK),
			},
		},
		"required": []string{"query"},
	}
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, arguments string) (string, error) {
	var input struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := decodeArgs(arguments, &input); err != nil {
		return "", err
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return "", fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	topK := input.TopK
	switch {
	case topK == 0:
		topK = defaultTopK
	case topK < 0 || topK > maxTopK:
		return "", fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidArgument, maxTopK)
	}

	passages, err := t.kb.Search(ctx, t.collection, query, topK)
	if err != nil {
		return "", fmt.Errorf("knowledge base search failed: %w", err)
	}
	return formatPassages(t.collection, passages), nil
}

type FAQTool struct {
	kb     output.KnowledgeBasePort
	logger output.LoggerPort
}

func NewFAQTool(kb output.KnowledgeBasePort, logger output.LoggerPort) *FAQTool {
	return &FAQTool{kb: kb, logger: logger}
}

func (t *FAQTool) Name() entity.ToolName { return entity.ToolGetCardanoFAQ }
func (t *FAQTool) Description() string {
	return "Look up frequently asked questions about Cardano by topic (e.g. \"wallets\", \"staking rewards\", \"transaction fees\", \"testnet faucet\"). Returns short curated question/answer pairs; prefer this for beginner questions."
}
func (t *FAQTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "FAQ topic or question",
			},
		},
		"required": []string{"topic"},
	}
}

func (t *FAQTool) Execute(ctx context.Context, arguments string) (string, error) {
	var input struct {
		Topic string `json:"topic"`
	}
	if err := decodeArgs(arguments, &input); err != nil {
		return "", err
	}
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	}

	passages, err := t.kb.Search(ctx, entity.CollectionCardanoFAQ, topic, faqTopK)
	if err != nil {
		return "", fmt.Errorf("FAQ lookup failed: %w", err)
	}
	return formatPassages(entity.CollectionCardanoFAQ, passages), nil
}

func formatPassages(collection entity.Collection, passages []entity.Passage) string {
	if len(passages) == 0 {
		return fmt.Sprintf("No relevant passages found in the %s knowledge base.", collection)
	}

	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		source := p.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&sb, "[%d] (source: %s, score: %.2f)\n%s", i+1, source, p.Score, strings.TrimSpace(p.Content))
	}
	return sb.String()
}
