// Package agent implements C5, the ReAct Engine (spec.md §4.5): a fixed
// Thought/Action/Observation/Answer loop driven against C1.Chat in
// streaming mode. The step/callback shape is grounded on
// intelligencedev-manifold/internal/agents/engine.go's AgentStep/StepHook,
// adapted to this module's token-level streaming contract instead of that
// engine's whole-completion-then-parse loop.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/agent/tools"
	"github.com/weknora-chat/ragstream/internal/common"
	"github.com/weknora-chat/ragstream/internal/modelclient/chat"
	"github.com/weknora-chat/ragstream/internal/types"
)

// EventCallback receives every event the loop produces, synchronously on
// the engine's own goroutine (spec.md §4.5 "Callback interface").
type EventCallback func(types.Event)

// Config carries the loop's tunables (spec.md §4.5).
type Config struct {
	MaxIterations        int
	ObservationSoftLimit int           // default 10000, truncated with an ellipsis marker
	ToolDeadline         time.Duration // per-invocation deadline, spec.md §5 "Timeouts"
}

func DefaultConfig() Config {
	return Config{MaxIterations: 5, ObservationSoftLimit: 10000, ToolDeadline: 30 * time.Second}
}

// Engine drives the loop described in spec.md §4.5.
type Engine struct {
	chat     chat.Chat
	registry *tools.Registry
	cfg      Config
}

func New(c chat.Chat, registry *tools.Registry, cfg Config) *Engine {
	return &Engine{chat: c, registry: registry, cfg: cfg}
}

var (
	thoughtPrefix     = regexp.MustCompile(`(?i)^Thought:\s*`)
	actionPrefix      = regexp.MustCompile(`(?i)^Action:\s*`)
	answerPrefix      = regexp.MustCompile(`(?i)^Answer:\s*`)
	observationPrefix = regexp.MustCompile(`(?i)^Observation:\s*`)
	actionCallPattern = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)\s*$`)
)

// maxTagPrefixRunes bounds how long the current line-so-far is checked
// against answerPrefix before giving up: "Answer:" is 7 runes, so once the
// buffered line exceeds this it can no longer become an Answer: tag and the
// per-rune check is skipped until the next line.
const maxTagPrefixRunes = len("Answer:")

// Run drives the loop to completion, emitting events via emit and
// returning the finalised textual answer. history is the already-loaded
// conversation so far (C8's output); systemPrompt already includes the
// rendered tool catalogue (C4.DescribeAll).
func (e *Engine) Run(ctx context.Context, systemPrompt string, history []types.HistoryEntry, question string, emit EventCallback) (string, error) {
	messages := buildPrompt(systemPrompt, history, question)

	var lastAction string
	var duplicateStreak int
	var lastThought string

	for iteration := 0; iteration < e.cfg.MaxIterations; iteration++ {
		step, err := e.runOneCompletion(ctx, messages, emit)
		if err != nil {
			return "", err
		}
		if step.thought != "" {
			lastThought = step.thought
		}

		if step.answer != "" {
			return step.answer, nil
		}
		if step.answer == "" && step.answerStarted {
			// Answer region opened but produced no content before stream end;
			// treat the accumulated chunks (already emitted) as the answer.
			return step.answerAccum, nil
		}

		if step.action == "" {
			// No action and no answer: nudge the model to conclude.
			messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: step.raw})
			messages = append(messages, chat.Message{Role: chat.RoleUser, Content: "Please provide a final Answer: based on what you know so far."})
			continue
		}

		if step.action == lastAction {
			duplicateStreak++
			if duplicateStreak >= 2 {
				common.PipelineWarn(ctx, common.StageReact, "duplicate action repeated twice, terminating with best partial answer")
				return streamBestEffortAnswer(lastThought, emit), nil
			}
			obs := "Duplicate action detected; please answer based on prior observations."
			emit(types.Event{Kind: types.EventObservation, Content: obs})
			messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: step.raw})
			messages = append(messages, chat.Message{Role: chat.RoleUser, Content: fmt.Sprintf("Observation: %s\nPlease provide a final Answer: now.", obs)})
			lastAction = step.action
			continue
		}
		duplicateStreak = 0
		lastAction = step.action

		name, args, parseErr := parseActionCall(step.action)
		var observation string
		if parseErr != nil {
			observation = fmt.Sprintf("Error: could not parse action %q: %v", step.action, parseErr)
		} else {
			observation = e.invokeWithDeadline(ctx, name, args)
		}

		truncated := common.TruncateWithEllipsis(observation, e.cfg.ObservationSoftLimit)
		emit(types.Event{Kind: types.EventObservation, Content: truncated})

		messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: step.raw})
		messages = append(messages, chat.Message{Role: chat.RoleUser, Content: "Observation: " + truncated})
	}

	emit(types.Event{Kind: types.EventError, ErrorKind: string(rerr.KindIterationBudget), ErrorMessage: "max iterations reached without a final answer"})
	return streamBestEffortAnswer(lastThought, emit), nil
}

// streamBestEffortAnswer implements spec.md §4.5 step 4 / §7
// "IterationBudgetExceeded" and step 2's forced-duplicate termination: when
// the loop is cut off without ever opening an Answer: region, the model's
// most recent Thought: line is the closest thing to a finalised answer it
// produced. That text is streamed as answer_chunk events exactly like a
// real Answer: region, so the concatenation law (spec.md §8 property 1)
// still holds for the persisted content.
func streamBestEffortAnswer(lastThought string, emit EventCallback) string {
	answer := lastThought
	if answer == "" {
		answer = "I was unable to determine a final answer with the information available."
	}
	for _, r := range answer {
		emit(types.Event{Kind: types.EventAnswerChunk, Content: string(r)})
	}
	return answer
}

// invokeWithDeadline bounds one tool call to cfg.ToolDeadline (spec.md §5
// "on timeout the tool returns Error: tool <name> timed out as its
// observation and the loop continues").
func (e *Engine) invokeWithDeadline(ctx context.Context, name, args string) string {
	deadline := e.cfg.ToolDeadline
	if deadline <= 0 {
		return e.registry.Invoke(ctx, name, args)
	}

	toolCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct{ observation string }
	done := make(chan result, 1)
	go func() {
		done <- result{observation: e.registry.Invoke(toolCtx, name, args)}
	}()

	select {
	case r := <-done:
		return r.observation
	case <-toolCtx.Done():
		return fmt.Sprintf("Error: tool %s timed out", name)
	}
}

type completionStep struct {
	raw           string
	thought       string
	action        string
	answer        string
	answerAccum   string
	answerStarted bool
}

// runOneCompletion streams one completion, recognising Thought:/Action:/
// Answer: regions as they arrive and truncating at the first fabricated
// Observation: line (spec.md §4.5 step 1).
func (e *Engine) runOneCompletion(ctx context.Context, messages []chat.Message, emit EventCallback) (*completionStep, error) {
	stream, err := e.chat.ChatStream(ctx, messages, chat.Options{Stream: true, ToolsPresent: true})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("chat", err)
	}

	step := &completionStep{}
	var buf strings.Builder
	mode := modeNone

	flushLine := func(line string) bool {
		switch {
		case observationPrefix.MatchString(line):
			// protocol violation: cut the fabricated line and everything
			// after it from raw, then stop processing this completion
			if i := strings.LastIndex(step.raw, line); i >= 0 {
				step.raw = step.raw[:i]
			}
			return false
		case thoughtPrefix.MatchString(line):
			content := thoughtPrefix.ReplaceAllString(line, "")
			step.thought = content
			emit(types.Event{Kind: types.EventThought, Content: content})
		case actionPrefix.MatchString(line):
			content := actionPrefix.ReplaceAllString(line, "")
			step.action = content
			emit(types.Event{Kind: types.EventAction, Content: content})
		}
		return true
	}

	for chunk := range stream {
		if chunk.Err != nil {
			return nil, rerr.NewBackendProtocolError("chat", chunk.Err)
		}
		if chunk.Done {
			break
		}
		step.raw += chunk.Content

		for _, r := range chunk.Content {
			if mode == modeAnswer {
				step.answerAccum += string(r)
				emit(types.Event{Kind: types.EventAnswerChunk, Content: string(r)})
				continue
			}

			if r == '\n' {
				buf.WriteRune(r)
				line := strings.TrimRight(buf.String(), "\n")
				buf.Reset()
				if !flushLine(line) {
					goto streamDone
				}
				continue
			}

			buf.WriteRune(r)

			// Switch to true token-level streaming the moment the
			// buffered line-so-far becomes an Answer: tag, instead of
			// waiting for a line-terminating newline (spec.md §4.5 step 1
			// "every token is emitted ... the moment it arrives").
			if buf.Len() <= maxTagPrefixRunes {
				line := buf.String()
				if answerPrefix.MatchString(line) {
					mode = modeAnswer
					step.answerStarted = true
					content := answerPrefix.ReplaceAllString(line, "")
					buf.Reset()
					if content != "" {
						step.answerAccum += content
						emit(types.Event{Kind: types.EventAnswerChunk, Content: content})
					}
				}
			}
		}
	}

	if mode != modeAnswer {
		// Flush any trailing partial line (model ended without trailing newline).
		if rest := buf.String(); rest != "" {
			if answerPrefix.MatchString(rest) {
				mode = modeAnswer
				step.answerStarted = true
				content := answerPrefix.ReplaceAllString(rest, "")
				step.answerAccum += content
				if content != "" {
					emit(types.Event{Kind: types.EventAnswerChunk, Content: content})
				}
			} else {
				flushLine(rest)
			}
		}
	}

streamDone:
	if step.answerStarted {
		step.answer = step.answerAccum
	}
	return step, nil
}

type parseMode int

const (
	modeNone parseMode = iota
	modeAnswer
)

// parseActionCall splits "tool_name(arguments)" per spec.md §4.5 step 2.
func parseActionCall(action string) (name, args string, err error) {
	m := actionCallPattern.FindStringSubmatch(strings.TrimSpace(action))
	if m == nil {
		return "", "", fmt.Errorf("does not match tool_name(arguments)")
	}
	return m[1], m[2], nil
}

func buildPrompt(systemPrompt string, history []types.HistoryEntry, question string) []chat.Message {
	messages := make([]chat.Message, 0, len(history)+2)
	messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: systemPrompt})
	for _, h := range history {
		role := chat.Role(h.Role)
		if h.IsSystemSummary() {
			role = chat.RoleSystem
		}
		messages = append(messages, chat.Message{Role: role, Content: h.Content})
	}
	messages = append(messages, chat.Message{Role: chat.RoleUser, Content: question})
	return messages
}
