package agent

import "time"

// Handoff is a requested transfer of control. It is built per transition and
// only outlives the call through a HandoffRecord.
type Handoff struct {
	From        AgentRole      `json:"from"`
	TargetAgent AgentRole      `json:"target_agent"`
	Reason      string         `json:"reason"`
	Context     map[string]any `json:"context,omitempty"`
}

// HandoffRecord is the append-only audit entry for an executed handoff.
type HandoffRecord struct {
	ID        string    `json:"id"`
	Handoff   Handoff   `json:"handoff"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
