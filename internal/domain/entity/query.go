package entity

type Query struct {
	ThreadID ThreadID
	Input    string
	Lang     string
	Domain   *LegalDomain
}

// Agent resolves the agent a query is meant for.
func (q Query) Agent() AgentType {
	if q.Domain != nil {
		return AgentTypeLegal
	}
	return AgentTypeCardano
}

type Answer struct {
	Text      string
	Rounds    int
	NewThread bool
}
