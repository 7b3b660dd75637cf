package types

import (
	"context"
	"time"
)

// contextKey is the type used for values stored on a request context.
type contextKey string

const (
	// TenantIDContextKey stores the resolved tenant/user id on a request context.
	TenantIDContextKey contextKey = "tenant_id"
	// UserIDContextKey stores the resolved user id on a request context.
	UserIDContextKey contextKey = "user_id"
)

// SenderKind identifies who produced a Message.
type SenderKind string

const (
	SenderUser          SenderKind = "user"
	SenderAssistant     SenderKind = "assistant"
	SenderSystemSummary SenderKind = "system-summary"
)

// FileInfo describes an uploaded attachment already processed by an
// external extractor (OCR/vision are out of scope here; see spec.md §1).
type FileInfo struct {
	URL         string `json:"url"`
	MimeType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	ParsedText  string `json:"parsed_text,omitempty"`
	VisionDescr string `json:"vision_description,omitempty"`
}

// DocumentRef is a citation descriptor recorded on an assistant message.
type DocumentRef struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// ToolInvocation records one Action/Observation pair from the ReAct loop.
type ToolInvocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ExtraData is the structured side-channel persisted alongside a Message's
// plain-text content: thoughts, actions, observations, citations and file
// metadata, matching spec.md §6.3.
type ExtraData struct {
	Thoughts        []string         `json:"thoughts,omitempty"`
	Actions         []ToolInvocation `json:"actions,omitempty"`
	Observations    []string         `json:"observations,omitempty"`
	Documents       []DocumentRef    `json:"documents,omitempty"`
	File            *FileInfo        `json:"file,omitempty"`
	Location        map[string]any   `json:"location,omitempty"`
	CacheSourced    bool             `json:"cache_sourced,omitempty"`
	ThoughtChainID  string           `json:"thought_chain_id,omitempty"`
}

// Message is one turn in a conversation (spec.md §3).
type Message struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SessionID string     `gorm:"type:varchar(64);index" json:"session_id"`
	TenantID  uint64     `gorm:"index" json:"tenant_id"`
	Sender    SenderKind `gorm:"type:varchar(32)" json:"sender"`
	Content   string     `gorm:"type:text" json:"content"`
	ExtraData ExtraData  `gorm:"serializer:json" json:"extra_data"`
	RequestID string     `gorm:"type:varchar(64);index" json:"request_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName pins the GORM table name instead of the pluralised default.
func (Message) TableName() string { return "messages" }

const placeholderSessionName = "New conversation"

// Session is an ordered, user-owned container of messages (spec.md §3).
type Session struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string    `gorm:"type:varchar(64);index" json:"user_id"`
	TenantID    uint64    `gorm:"index" json:"tenant_id"`
	Name        string    `gorm:"type:varchar(128)" json:"name"`
	LastExcerpt string    `gorm:"type:varchar(256)" json:"last_excerpt"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// IsPlaceholderName reports whether the session still carries its
// auto-generated placeholder name (i.e. the auto-name job has not run yet,
// or has nothing else to rename it to).
func (s Session) IsPlaceholderName() bool {
	return s.Name == "" || s.Name == placeholderSessionName
}

// NewPlaceholderSession builds the Session record created at step 1 of the
// Stream Orchestrator (spec.md §4.7) when a request arrives without a
// session id.
func NewPlaceholderSession(id, userID string, tenantID uint64, now time.Time) Session {
	return Session{
		ID:        id,
		UserID:    userID,
		TenantID:  tenantID,
		Name:      placeholderSessionName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PlaceholderSessionName exposes the sentinel name used above so callers
// (auto-name job, tests) can compare against it without importing the
// unexported constant.
func PlaceholderSessionName() string { return placeholderSessionName }

// HistoryEntry is one (role, content) pair of runtime conversation history
// (spec.md §3 "Conversation History"). Role mirrors SenderKind but is kept
// as a plain string since system-summary entries use the sentinel-prefixed
// role "system" on the wire (spec.md §6.3).
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemSummaryPrefix marks a HistoryEntry produced by summarisation so the
// prompt template and re-summarisation logic can recognise it anywhere in
// the oldest slot (spec.md §9 "re-summarisation recursion").
const SystemSummaryPrefix = "[summary] "

// IsSystemSummary reports whether an entry is a (possibly recursive)
// summarisation result.
func (h HistoryEntry) IsSystemSummary() bool {
	return h.Role == "system" && len(h.Content) >= len(SystemSummaryPrefix) &&
		h.Content[:len(SystemSummaryPrefix)] == SystemSummaryPrefix
}

// WithContextIDs returns a copy of ctx carrying the tenant and user ids, used
// by handlers and tools alike (grounded in agent/tools/database_query.go's
// `ctx.Value(types.TenantIDContextKey)` lookup).
func WithContextIDs(ctx context.Context, tenantID uint64, userID string) context.Context {
	ctx = context.WithValue(ctx, TenantIDContextKey, tenantID)
	ctx = context.WithValue(ctx, UserIDContextKey, userID)
	return ctx
}
