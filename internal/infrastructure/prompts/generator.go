package prompts

import (
	"bytes"
	"text/template"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

type ToolInfo struct {
	Name        string
	Description string
}

type PromptData struct {
	Tools   []ToolInfo
	Domains []string
}

// GenerateSystemPrompt renders a system prompt template with the agent's tools
// (in binding order) and legal domains.
func GenerateSystemPrompt(baseTemplate string, tools []output.ToolPort, domains ...entity.LegalDomain) (string, error) {
	data := PromptData{
		Tools:   make([]ToolInfo, 0, len(tools)),
		Domains: make([]string, 0, len(domains)),
	}
	for _, t := range tools {
		data.Tools = append(data.Tools, ToolInfo{
			Name:        t.Name().String(),
			Description: t.Description(),
		})
	}
	for _, d := range domains {
		data.Domains = append(data.Domains, d.Title())
	}

	tmpl, err := template.New("system").Option("missingkey=error").Parse(baseTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
