package entity

import (
	"fmt"
	"strconv"
)

// ThreadID is the caller supplied conversation identifier.
type ThreadID string

func ThreadIDFromInt(id int64) ThreadID {
	return ThreadID(strconv.FormatInt(id, 10))
}

func (id ThreadID) String() string {
	return string(id)
}

// ThreadKey scopes a thread to an agent: the same id on two agents is two threads.
type ThreadKey struct {
	Agent AgentType
	ID    ThreadID
}

func (k ThreadKey) String() string {
	return fmt.Sprintf("%s/%s", k.Agent, k.ID)
}
