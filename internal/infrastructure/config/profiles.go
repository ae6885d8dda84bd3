package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"query-assistant/internal/domain/entity"

	"github.com/BurntSushi/toml"
)

// Profile overrides model settings of one agent. Zero values keep the defaults.
type Profile struct {
	Model            string   `toml:"model"`
	Temperature      *float64 `toml:"temperature"`
	MaxRounds        int      `toml:"max_rounds"`
	SystemPromptFile string   `toml:"system_prompt_file"`
}

type Profiles struct {
	Agents map[string]Profile `toml:"agents"`
}

// LoadProfiles decodes an agent profile file, e.g.
//
//	[agents.cardano]
//	model = "gpt-4o"
//	max_rounds = 6
//
// An empty path yields no overrides.
func LoadProfiles(path string) (*Profiles, error) {
	p := &Profiles{Agents: map[string]Profile{}}
	if path == "" {
		return p, nil
	}

	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, fmt.Errorf("decode agent profiles %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	for name := range p.Agents {
		switch entity.AgentType(name) {
		case entity.AgentTypeCardano, entity.AgentTypeLegal:
		default:
			return nil, fmt.Errorf("%w: unknown agent %q in %s", ErrInvalidConfig, name, path)
		}
	}
	return p, nil
}

// Apply merges the profile for def.Type into def.
func (p *Profiles) Apply(def entity.AgentDefinition) (entity.AgentDefinition, error) {
	if p == nil {
		return def, nil
	}
	prof, ok := p.Agents[string(def.Type)]
	if !ok {
		return def, nil
	}
	if prof.Model != "" {
		def.Model = prof.Model
	}
	if prof.Temperature != nil {
		def.Temperature = float32(*prof.Temperature)
	}
	if prof.MaxRounds > 0 {
		def.MaxRounds = prof.MaxRounds
	}
	if prof.SystemPromptFile != "" {
		data, err := os.ReadFile(prof.SystemPromptFile)
		if err != nil {
			return def, fmt.Errorf("read system prompt for %s: %w", def.Type, err)
		}
		def.SystemPrompt = strings.TrimSpace(string(data))
	}
	return def, nil
}
