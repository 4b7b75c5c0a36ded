package model

// EventType discriminates events on the pipeline progress stream.
type EventType string

const (
	EventAgentStatus EventType = "agent-status"
	EventProgress    EventType = "progress"
	EventResult      EventType = "result"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// AgentState is the lifecycle state carried by an agent-status event.
type AgentState string

const (
	AgentActive   AgentState = "active"
	AgentComplete AgentState = "complete"
)

// Event is one entry on the progress stream. Exactly the fields for its
// type are populated. Consumers must tolerate more than one status event
// per underlying classifier call.
type Event struct {
	Type EventType `json:"type"`

	// agent-status
	Agent  string     `json:"agent,omitempty"`
	Action string     `json:"action,omitempty"`
	State  AgentState `json:"state,omitempty"`

	// progress
	Current     int    `json:"current,omitempty"`
	Total       int    `json:"total,omitempty"`
	CurrentName string `json:"current_name,omitempty"`

	// result
	Record *AnalyzedOpportunity `json:"record,omitempty"`

	// complete
	Count int `json:"count,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// EventSink receives pipeline events as they are emitted.
type EventSink func(Event)

// NopSink discards all events.
func NopSink(Event) {}
