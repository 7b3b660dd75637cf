// Package websearchstate implements SPEC_FULL.md §C.4's web-search state:
// per-session Redis state tracking which URLs the `web_search` tool has
// already returned, plus a per-session temp-KB id. No page content is stored
// here or ingested elsewhere, and `knowledge_search` does not read this
// state. Grounded on the teacher's
// application/service/web_search_state.go Redis key convention
// (`tempkb:{session_id}`), reimplemented against this module's own
// redis/go-redis/v9 client instead of the deleted file's broken import path.
package websearchstate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/weknora-chat/ragstream/internal/logger"
)

func redisKey(sessionID string) string { return "tempkb:" + sessionID }

type state struct {
	TempKBID     string          `json:"temp_kb_id"`
	SeenURLs     map[string]bool `json:"seen_urls"`
	KnowledgeIDs []string        `json:"knowledge_ids"`
}

// Service implements types/interfaces.WebSearchStateService and
// agent/tools.SeenURLTracker against one shared Redis client.
type Service struct {
	redis *redis.Client
	ttl   time.Duration
}

// New builds a Service; ttl is the expiry set on each write of the Redis
// state, 0 meaning no expiry.
func New(redisClient *redis.Client, ttl time.Duration) *Service {
	return &Service{redis: redisClient, ttl: ttl}
}

func (s *Service) load(ctx context.Context, sessionID string) state {
	raw, err := s.redis.Get(ctx, redisKey(sessionID)).Result()
	if err != nil {
		return state{SeenURLs: map[string]bool{}}
	}
	var st state
	if jsonErr := json.Unmarshal([]byte(raw), &st); jsonErr != nil {
		return state{SeenURLs: map[string]bool{}}
	}
	if st.SeenURLs == nil {
		st.SeenURLs = map[string]bool{}
	}
	return st
}

func (s *Service) store(ctx context.Context, sessionID string, st state) {
	buf, err := json.Marshal(st)
	if err != nil {
		logger.Warnf(ctx, "websearchstate: marshal failed: %v", err)
		return
	}
	if err := s.redis.Set(ctx, redisKey(sessionID), buf, s.ttl).Err(); err != nil {
		logger.Warnf(ctx, "websearchstate: redis write failed: %v", err)
	}
}

// GetWebSearchTempKBState implements
// types/interfaces.WebSearchStateService.
func (s *Service) GetWebSearchTempKBState(ctx context.Context, sessionID string) (string, map[string]bool, []string) {
	st := s.load(ctx, sessionID)
	return st.TempKBID, st.SeenURLs, st.KnowledgeIDs
}

// SaveWebSearchTempKBState implements
// types/interfaces.WebSearchStateService.
func (s *Service) SaveWebSearchTempKBState(ctx context.Context, sessionID, tempKBID string, seenURLs map[string]bool, knowledgeIDs []string) {
	s.store(ctx, sessionID, state{TempKBID: tempKBID, SeenURLs: seenURLs, KnowledgeIDs: knowledgeIDs})
}

// DeleteWebSearchTempKBState implements
// types/interfaces.WebSearchStateService.
func (s *Service) DeleteWebSearchTempKBState(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, redisKey(sessionID)).Err()
}

// EnsureTempKBID returns the session's temp-KB id, allocating one on first
// use (spec.md §C.4), without discarding existing seen-URL bookkeeping.
func (s *Service) EnsureTempKBID(ctx context.Context, sessionID string) string {
	st := s.load(ctx, sessionID)
	if st.TempKBID != "" {
		return st.TempKBID
	}
	st.TempKBID = "tempkb-" + uuid.NewString()
	s.store(ctx, sessionID, st)
	return st.TempKBID
}

// Seen implements agent/tools.SeenURLTracker.
func (s *Service) Seen(ctx context.Context, sessionID, url string) bool {
	return s.load(ctx, sessionID).SeenURLs[url]
}

// MarkSeen implements agent/tools.SeenURLTracker, also appending the URL to
// the session's KnowledgeIDs and allocating a temp-KB id if none exists.
func (s *Service) MarkSeen(ctx context.Context, sessionID, url string) {
	st := s.load(ctx, sessionID)
	if st.TempKBID == "" {
		st.TempKBID = "tempkb-" + uuid.NewString()
	}
	st.SeenURLs[url] = true
	st.KnowledgeIDs = append(st.KnowledgeIDs, url)
	s.store(ctx, sessionID, st)
}
