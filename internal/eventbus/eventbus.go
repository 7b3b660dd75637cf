// Package eventbus implements C6, the Event Bus (spec.md §4.6): a
// bounded, FIFO, multi-producer-single-consumer queue of typed events
// carrying the ReAct Engine's (C5) output to the Stream Orchestrator (C7).
// The goroutine+buffered-channel idiom mirrors the producer-goroutine
// shape of modelclient/chat/ollama.go's ChatStream.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/weknora-chat/ragstream/internal/types"
)

// MinCapacity is the floor spec.md §4.6 requires ("capacity ≥ 1024 events
// is required to avoid starving the reasoner on slow clients").
const MinCapacity = 1024

// Bus is the C6 Event Bus. The zero value is not usable; construct with
// New.
type Bus struct {
	events chan types.Event
	cancel chan struct{}

	closeOnce  sync.Once
	cancelOnce sync.Once

	publishTimeout time.Duration
	pollInterval   time.Duration

	mu     sync.Mutex
	reason string
}

// New builds a Bus with the given capacity (raised to MinCapacity if
// smaller), the soft per-publish timeout used for droppable events, and
// the poll interval Consume uses to periodically recheck its context.
func New(capacity int, publishTimeout, pollInterval time.Duration) *Bus {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if publishTimeout <= 0 {
		publishTimeout = 200 * time.Millisecond
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &Bus{
		events:         make(chan types.Event, capacity),
		cancel:         make(chan struct{}),
		publishTimeout: publishTimeout,
		pollInterval:   pollInterval,
	}
}

// critical reports whether ev is of a kind never dropped under back-pressure (spec.md §4.6
// "never drops AnswerChunk, Documents, or Error").
func critical(ev types.Event) bool {
	switch ev.Kind {
	case types.EventAnswerChunk, types.EventDocuments, types.EventError:
		return true
	default:
		return false
	}
}

// Publish is called from the reasoner goroutine. For non-critical events
// (Thought/Action/Observation/etc.) it times out after publishTimeout and
// silently drops the event rather than stalling the reasoner indefinitely;
// critical events always block until delivered or the consumer cancels.
// Publish is a no-op once the bus has been cancelled.
func (b *Bus) Publish(ev types.Event) {
	select {
	case <-b.cancel:
		return
	default:
	}

	select {
	case b.events <- ev:
		return
	case <-b.cancel:
		return
	default:
	}

	if critical(ev) {
		select {
		case b.events <- ev:
		case <-b.cancel:
		}
		return
	}

	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.events <- ev:
	case <-timer.C:
		// Dropped: intermediate event, bus stayed full past the soft deadline.
	case <-b.cancel:
	}
}

// Close signals end-of-stream. Only the producer may call it, and only
// once all of its Publish calls have returned. The consumer continues to
// receive any buffered events before seeing the terminal sentinel (ok ==
// false from Consume).
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.events) })
}

// Cancel signals "client gone" (spec.md §4.6). The producer observes this
// at its next Publish call or by selecting on Cancelled() directly inside
// its own suspension points (e.g. a streaming chat read).
func (b *Bus) Cancel(reason string) {
	b.cancelOnce.Do(func() {
		b.mu.Lock()
		b.reason = reason
		b.mu.Unlock()
		close(b.cancel)
	})
}

// Cancelled reports whether Cancel has been called.
func (b *Bus) Cancelled() <-chan struct{} { return b.cancel }

// CancelReason returns the reason passed to Cancel, or "" if not cancelled.
func (b *Bus) CancelReason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Consume returns the next event from the HTTP writer's perspective. It
// distinguishes "queue empty, producer still running" (it keeps blocking,
// waking every pollInterval to recheck ctx) from "producer finished"
// (ok == false once the channel is closed and drained).
func (b *Bus) Consume(ctx context.Context) (types.Event, bool) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-b.events:
			return ev, ok
		case <-ctx.Done():
			return types.Event{}, false
		case <-ticker.C:
			continue
		}
	}
}
