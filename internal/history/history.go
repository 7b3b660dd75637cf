// Package history implements C8, the History Manager (spec.md §4.8):
// Redis-backed runtime conversation history with message-count/token
// threshold-triggered recursive summarisation, falling back to the
// relational MessageStore on a cache miss. The read-through-then-cache
// shape is grounded on application/service/chat_pipline's Redis usage
// pattern, generalised to this module's own store/chat contracts.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/weknora-chat/ragstream/internal/common"
	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/modelclient/chat"
	"github.com/weknora-chat/ragstream/internal/store"
	"github.com/weknora-chat/ragstream/internal/types"
)

// roughCharsPerToken approximates token count from rune length when an
// exact tokenizer isn't wired (spec.md §4.8 "approximate token counting is
// acceptable").
const roughCharsPerToken = 4

// Config carries C8's tunables (spec.md §4.8).
type Config struct {
	MessageThreshold int
	TokenThreshold   int
	TailTurns        int
}

// Manager is the History Manager.
type Manager struct {
	redis    *redis.Client
	messages store.MessageStore
	chat     chat.Chat
	cfg      Config
}

func New(redisClient *redis.Client, messages store.MessageStore, summariser chat.Chat, cfg Config) *Manager {
	return &Manager{redis: redisClient, messages: messages, chat: summariser, cfg: cfg}
}

func redisKey(userID, sessionID string) string {
	return fmt.Sprintf("history:%s:%s", userID, sessionID)
}

// Load returns the runtime history for (userID, sessionID), reading through
// to the relational MessageStore on a cache miss (spec.md §4.8 "Load").
func (m *Manager) Load(ctx context.Context, userID, sessionID string) ([]types.HistoryEntry, error) {
	key := redisKey(userID, sessionID)
	raw, err := m.redis.Get(ctx, key).Result()
	if err == nil {
		var entries []types.HistoryEntry
		if jsonErr := json.Unmarshal([]byte(raw), &entries); jsonErr == nil {
			return entries, nil
		}
	} else if err != redis.Nil {
		common.PipelineWarn(ctx, common.StageLoadHistory, "redis read failed, falling back to relational store: %v", err)
	}

	rows, err := m.messages.GetRecentBySession(ctx, sessionID, m.cfg.MessageThreshold*4)
	if err != nil {
		return nil, err
	}
	entries := make([]types.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		role := "user"
		switch r.Sender {
		case types.SenderAssistant:
			role = "assistant"
		case types.SenderSystemSummary:
			role = "system"
		}
		entries = append(entries, types.HistoryEntry{Role: role, Content: r.Content})
	}
	if err := m.save(ctx, key, entries); err != nil {
		logger.Warnf(ctx, "history: failed to prime cache from relational store: %v", err)
	}
	return entries, nil
}

// Append adds a (user, assistant) turn to the cached history and triggers
// summarisation if either threshold is crossed (spec.md §4.8 "Append").
func (m *Manager) Append(ctx context.Context, userID, sessionID, userContent, assistantContent string) error {
	key := redisKey(userID, sessionID)
	entries, err := m.Load(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	entries = append(entries,
		types.HistoryEntry{Role: "user", Content: userContent},
		types.HistoryEntry{Role: "assistant", Content: assistantContent},
	)

	entries, err = m.maybeSummarise(ctx, entries)
	if err != nil {
		common.PipelineWarn(ctx, common.StageLoadHistory, "summarisation failed, keeping untouched history: %v", err)
	}

	return m.save(ctx, key, entries)
}

func (m *Manager) save(ctx context.Context, key string, entries []types.HistoryEntry) error {
	buf, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return m.redis.Set(ctx, key, buf, 0).Err()
}

// MaybeSummarise applies the same threshold-triggered summarisation Append
// uses at write-back, but on demand: C7 calls this immediately after Load so
// a cold-cache reconstruction from the relational store is summarised before
// it enters this turn's prompt, not just before the next turn's (spec.md
// §4.7 step 4 / §4.8).
func (m *Manager) MaybeSummarise(ctx context.Context, entries []types.HistoryEntry) ([]types.HistoryEntry, error) {
	return m.maybeSummarise(ctx, entries)
}

// maybeSummarise implements spec.md §4.8's recursive summarisation: once the
// non-tail portion crosses either threshold, it is collapsed into a single
// system-summary entry prefixed with types.SystemSummaryPrefix, placed ahead
// of the preserved tail. A pre-existing summary entry in the head is folded
// into the new summarisation prompt, giving the "recursive" behaviour.
func (m *Manager) maybeSummarise(ctx context.Context, entries []types.HistoryEntry) ([]types.HistoryEntry, error) {
	tail := m.cfg.TailTurns * 2
	if tail < 0 {
		tail = 0
	}
	if len(entries) <= tail {
		return entries, nil
	}

	head := entries[:len(entries)-tail]
	tailEntries := entries[len(entries)-tail:]

	if len(head) < m.cfg.MessageThreshold && estimateTokens(head) < m.cfg.TokenThreshold {
		return entries, nil
	}
	if len(head) == 0 {
		return entries, nil
	}

	summary, err := m.summarise(ctx, head)
	if err != nil {
		return entries, err
	}

	out := make([]types.HistoryEntry, 0, 1+len(tailEntries))
	out = append(out, types.HistoryEntry{Role: "system", Content: types.SystemSummaryPrefix + summary})
	out = append(out, tailEntries...)
	return out, nil
}

func estimateTokens(entries []types.HistoryEntry) int {
	total := 0
	for _, e := range entries {
		total += len([]rune(e.Content)) / roughCharsPerToken
	}
	return total
}

const summarisePrompt = `Summarise the following conversation concisely, preserving names, decisions, and any unresolved questions. If the conversation already begins with a prior summary, fold it in rather than discarding it.`

func (m *Manager) summarise(ctx context.Context, head []types.HistoryEntry) (string, error) {
	var sb strings.Builder
	for _, e := range head {
		label := e.Role
		if e.IsSystemSummary() {
			label = "prior-summary"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}

	resp, err := m.chat.Chat(ctx, []chat.Message{
		{Role: chat.RoleSystem, Content: summarisePrompt},
		{Role: chat.RoleUser, Content: sb.String()},
	}, chat.Options{Temperature: 0.2, MaxTokens: 512})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
