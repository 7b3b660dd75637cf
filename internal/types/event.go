package types

// EventKind enumerates the tagged-union variants of spec.md §3 "Event" /
// §6.2's wire protocol. Keeping these as a closed Go string enum mirrors the
// teacher's `EventType` constants in `types/chat_manage.go`.
type EventKind string

const (
	EventSessionCreated       EventKind = "session_created"
	EventUserMessageSaved     EventKind = "user_message_saved"
	EventThought              EventKind = "thought"
	EventAction               EventKind = "action"
	EventObservation          EventKind = "observation"
	EventAnswerChunk          EventKind = "answer_chunk"
	EventDocuments            EventKind = "documents"
	EventAiMessageSaved       EventKind = "ai_message_saved"
	EventDone                 EventKind = "done"
	EventError                EventKind = "error"
)

// Event is the value passed through the Event Bus (C6) from the ReAct
// Engine (C5) to the Stream Orchestrator (C7). Kind selects which payload
// fields are meaningful; C7 is the only component that knows how to
// translate it to SSE wire form (spec.md §9 "callback-only coupling").
type Event struct {
	Kind EventKind

	// Thought / Action / Observation / AnswerChunk payload.
	Content string

	// SessionCreated payload.
	SessionID   string
	SessionName string

	// UserMessageSaved / AiMessageSaved payload.
	MessageUUID string

	// Documents payload.
	Documents []DocumentRef

	// Done payload reuses SessionID above.

	// Error payload.
	ErrorMessage string
	ErrorKind    string

	// DisplayType is rendered as the wire payload's display_type field, a
	// marker that needs no new wire kind. No producer in this module sets
	// it, so every event carries it empty.
	DisplayType string
}

// Thought event kind names for IntermediateEvent reasoning, reused by the
// SSE writer's show_thinking suppression (spec.md §6.1).
func (e Event) IsIntermediate() bool {
	switch e.Kind {
	case EventThought, EventAction, EventObservation:
		return true
	default:
		return false
	}
}
