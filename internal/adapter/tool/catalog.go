package tool

import (
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

func NewCardanoTools(chain output.BlockchainPort, kb output.KnowledgeBasePort, logger output.LoggerPort) []output.ToolPort {
	return []output.ToolPort{
		NewAddressDetailsTool(chain, logger),
		NewCardanoKnowledgeTool(kb, logger),
		NewAddressTransactionsTool(chain, logger),
		NewTransactionDetailsTool(chain, logger),
		NewFAQTool(kb, logger),
	}
}

func NewLegalTools(kb output.KnowledgeBasePort, logger output.LoggerPort) []output.ToolPort {
	tools := make([]output.ToolPort, 0, len(entity.LegalDomains()))
	for _, d := range entity.LegalDomains() {
		tools = append(tools, NewLegalKnowledgeTool(d, kb, logger))
	}
	return tools
}

// Names lists tool names in order.
func Names(tools []output.ToolPort) []entity.ToolName {
	names := make([]entity.ToolName, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return names
}
