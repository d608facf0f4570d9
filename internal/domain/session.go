package domain

import "time"

// SessionState is the lifecycle state of one in-flight generation.
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateReasoning   SessionState = "reasoning"
	StateInCodeBlock SessionState = "in_code_block"
	StateDone        SessionState = "done"
	StateCancelled   SessionState = "cancelled"
	StateFailed      SessionState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateDone, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// SessionUpdate is delivered to subscribers after every state change or chunk.
type SessionUpdate struct {
	SessionID  string       `json:"session_id"`
	State      SessionState `json:"state"`
	Extraction Extraction   `json:"extraction"`
	Chunks     int          `json:"chunks"`
	At         time.Time    `json:"at"`
}
