package entity

import "fmt"

type AgentType string

const (
	AgentTypeCardano AgentType = "cardano"
	AgentTypeLegal   AgentType = "legal"
)

func (t AgentType) String() string {
	return string(t)
}

type LegalDomain string

const (
	DomainCivilLaw     LegalDomain = "civil_law"
	DomainCorporateLaw LegalDomain = "corporate_law"
	DomainPropertyLaw  LegalDomain = "property_law"
)

func LegalDomains() []LegalDomain {
	return []LegalDomain{DomainCivilLaw, DomainCorporateLaw, DomainPropertyLaw}
}

func (d LegalDomain) Valid() bool {
	switch d {
	case DomainCivilLaw, DomainCorporateLaw, DomainPropertyLaw:
		return true
	}
	return false
}

// Title is the human readable name used in prompts.
func (d LegalDomain) Title() string {
	switch d {
	case DomainCivilLaw:
		return "Civil Law"
	case DomainCorporateLaw:
		return "Corporate Law"
	case DomainPropertyLaw:
		return "Property Law"
	}
	return string(d)
}

func ParseLegalDomain(s string) (LegalDomain, error) {
	d := LegalDomain(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown legal domain %q", s)
	}
	return d, nil
}

// AgentDefinition binds a system prompt, a tool set and model settings.
// It is built once per agent type and shared by every thread of that agent.
type AgentDefinition struct {
	Type         AgentType
	Name         string
	SystemPrompt string
	Model        string
	Temperature  float32
	Tools        []ToolName
	MaxRounds    int
}

func (d AgentDefinition) SystemMessage() Message {
	return Message{Role: RoleSystem, Content: d.SystemPrompt}
}
