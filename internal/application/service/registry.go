package service

import (
	"sort"
	"sync"

	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

var _ output.ToolRegistry = (*ToolRegistryImpl)(nil)

type ToolRegistryImpl struct {
	mu    sync.RWMutex
	tools map[entity.ToolName]output.ToolPort
}

func NewToolRegistry() *ToolRegistryImpl {
	return &ToolRegistryImpl{
		tools: make(map[entity.ToolName]output.ToolPort),
	}
}

func (r *ToolRegistryImpl) Register(tool output.ToolPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistryImpl) Get(name entity.ToolName) (output.ToolPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *ToolRegistryImpl) All() []output.ToolPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]output.ToolPort, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Definitions returns the definitions of the named tools in the given order,
// or of every tool sorted by name when no names are passed. Unknown names are skipped.
func (r *ToolRegistryImpl) Definitions(names ...entity.ToolName) []entity.ToolDefinition {
	var tools []output.ToolPort
	if len(names) == 0 {
		tools = r.All()
	} else {
		r.mu.RLock()
		for _, name := range names {
			if tool, ok := r.tools[name]; ok {
				tools = append(tools, tool)
			}
		}
		r.mu.RUnlock()
	}

	result := make([]entity.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		result = append(result, entity.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return result
}

type AgentRegistry interface {
	Register(agent input.Conversation)
	Get(agentType entity.AgentType) (input.Conversation, bool)
	List() []entity.AgentType
}

var _ AgentRegistry = (*AgentRegistryImpl)(nil)

type AgentRegistryImpl struct {
	agents map[entity.AgentType]input.Conversation
}

func NewAgentRegistry() *AgentRegistryImpl {
	return &AgentRegistryImpl{
		agents: make(map[entity.AgentType]input.Conversation),
	}
}

func (r *AgentRegistryImpl) Register(agent input.Conversation) {
	r.agents[agent.Definition().Type] = agent
}

func (r *AgentRegistryImpl) Get(agentType entity.AgentType) (input.Conversation, bool) {
	agent, ok := r.agents[agentType]
	return agent, ok
}

func (r *AgentRegistryImpl) List() []entity.AgentType {
	result := make([]entity.AgentType, 0, len(r.agents))
	for agentType := range r.agents {
		result = append(result, agentType)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
