// Package jobs implements the background asynq tasks named in spec.md §4.7
// step 11 and §4.8 ("Background", "Auto-name policy") plus SPEC_FULL.md
// §C.8's QA-cache analytics export, matching
// internal/types/interfaces/task_handler.go's TaskHandler contract.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/modelclient/chat"
	"github.com/weknora-chat/ragstream/internal/store"
)

const TaskAutoName = "session:autoname"

// autoNamePayload is the task's JSON body.
type autoNamePayload struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	FirstMessage string `json:"first_message"`
}

// Enqueuer wraps an asynq.Client to implement orchestrator.AutoNamer
// without the orchestrator package needing to import asynq directly.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueAutoName implements orchestrator.AutoNamer.
func (e *Enqueuer) EnqueueAutoName(ctx context.Context, sessionID, userID, firstMessage string) error {
	payload, err := json.Marshal(autoNamePayload{SessionID: sessionID, UserID: userID, FirstMessage: firstMessage})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskAutoName, payload))
	return err
}

// AutoNameHandler generates a short session title from the first user
// question (spec.md §4.8 "Auto-name policy") and updates the session
// record if it is still carrying the placeholder name.
type AutoNameHandler struct {
	chat     chat.Chat
	sessions store.SessionStore
}

func NewAutoNameHandler(c chat.Chat, sessions store.SessionStore) *AutoNameHandler {
	return &AutoNameHandler{chat: c, sessions: sessions}
}

const autoNamePrompt = "Generate a short title, 20 characters or fewer, summarising this user question. Respond with the title only, no quotes or punctuation beyond what the title needs."

func (h *AutoNameHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload autoNamePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return errors.Join(fmt.Errorf("autoname: invalid payload: %v", err), asynq.SkipRetry)
	}

	resp, err := h.chat.Chat(ctx, []chat.Message{
		{Role: chat.RoleSystem, Content: autoNamePrompt},
		{Role: chat.RoleUser, Content: payload.FirstMessage},
	}, chat.Options{Temperature: 0.3, MaxTokens: 32})
	if err != nil {
		return fmt.Errorf("autoname: chat failed: %w", err)
	}

	title := strings.TrimSpace(resp.Content)
	if r := []rune(title); len(r) > 20 {
		title = string(r[:20])
	}
	if title == "" {
		return nil
	}

	updated, err := h.sessions.UpdateNameIfPlaceholder(ctx, payload.SessionID, title)
	if err != nil {
		return fmt.Errorf("autoname: update failed: %w", err)
	}
	if !updated {
		logger.Debugf(ctx, "autoname: session %s already renamed, skipping", payload.SessionID)
	}
	return nil
}
