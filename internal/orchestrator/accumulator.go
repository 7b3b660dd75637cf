package orchestrator

import (
	"strings"
	"sync"

	"github.com/weknora-chat/ragstream/internal/types"
)

// accumulator reassembles the finalised assistant message's structured
// side-channels (spec.md §6.3 "extra_data block") from the Event stream the
// reasoner goroutine emits, concurrently with the drain loop reading the
// same events off the bus. Both sides observe events in publish order, but
// the accumulator and bus consumer run as independent readers of
// runReasoner's emit callback, so its own state needs a mutex.
type accumulator struct {
	mu           sync.Mutex
	thoughts     []string
	actions      []types.ToolInvocation
	observations []string
	documents    []types.DocumentRef
	answerBuf    strings.Builder
	hadError     bool
	finalText    string
	pendingName  string
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

// observe records one event's contribution to the finalised message. It is
// called synchronously from the reasoner goroutine, in the same order
// events are published, so no event is ever observed out of order relative
// to another.
func (a *accumulator) observe(ev types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case types.EventThought:
		a.thoughts = append(a.thoughts, ev.Content)
	case types.EventAction:
		a.pendingName = ev.Content
		a.actions = append(a.actions, types.ToolInvocation{Name: ev.Content})
	case types.EventObservation:
		a.observations = append(a.observations, ev.Content)
	case types.EventAnswerChunk:
		a.answerBuf.WriteString(ev.Content)
	case types.EventError:
		a.hadError = true
	}
}

// addCitations is called from KnowledgeSearchTool's onCite callback,
// independently of observe (spec.md §4.5 "Citation channel").
func (a *accumulator) addCitations(passages []types.Passage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range passages {
		a.documents = append(a.documents, types.DocumentRef{UUID: p.VectorID, Name: p.Filename()})
	}
}

// setFinalAnswer records the engine's authoritative return value. When the
// loop exhausted its iteration budget without an Answer: line, this may
// differ from the AnswerChunk concatenation (a best-effort partial), so it
// takes precedence as the persisted content.
func (a *accumulator) setFinalAnswer(answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalText = answer
}

func (a *accumulator) finalAnswer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalText != "" {
		return a.finalText
	}
	return a.answerBuf.String()
}
