package agent

// RunState names where the agent is in its lifecycle.
type RunState string

const (
	StateIdle          RunState = "idle"
	StateRunning       RunState = "running"
	StateDone          RunState = "done"
	StateError         RunState = "error"
	StateMaxIterations RunState = "max_iterations"
)

// TokenUsage accumulates token counts across all provider calls of an
// agent's lifetime.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Snapshot is a read-only view of agent progress for UIs and exporters.
type Snapshot struct {
	State          RunState
	IterationCount int
	MessageCount   int
	Usage          TokenUsage
}
