// Package store implements the relational persistence the Stream
// Orchestrator (C7) and History Manager (C8) read through to: Message and
// Session records (spec.md §3), backed by gorm.io/gorm +
// gorm.io/driver/postgres, matching the teacher's
// application/repository/custom_agent.go `*gorm.DB`-constructor-injection
// pattern.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weknora-chat/ragstream/internal/types"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// MessageStore is the message-record persistence contract C7/C8 depend on.
type MessageStore interface {
	Insert(ctx context.Context, msg *types.Message) error
	// GetRecentBySession returns up to limit messages for sessionID, oldest
	// first, filtered to the sender kinds the runtime history cares about
	// (spec.md §3 "Conversation History ... sender-kind-filtered").
	GetRecentBySession(ctx context.Context, sessionID string, limit int) ([]types.Message, error)
	// DeleteBySession cascades message deletion when a session is removed
	// (spec.md §3 Message invariant "deletions cascade").
	DeleteBySession(ctx context.Context, sessionID string) error
	// Delete removes a single message, used by the regenerate_message_id
	// invalidation path (spec.md §6.1).
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*types.Message, error)
}

// SessionStore is the session-record persistence contract C7 depends on.
type SessionStore interface {
	Create(ctx context.Context, s *types.Session) error
	Get(ctx context.Context, id string) (*types.Session, error)
	// UpdateNameIfPlaceholder renames a session only if it still carries the
	// placeholder name, implementing the auto-name job's "atomically update
	// ... only if its name is still the placeholder" rule (spec.md §4.8).
	UpdateNameIfPlaceholder(ctx context.Context, id, name string) (bool, error)
	Touch(ctx context.Context, id, excerpt string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type gormMessageStore struct{ db *gorm.DB }

// NewMessageStore builds a gorm-backed MessageStore, migrating its table on
// first use.
func NewMessageStore(db *gorm.DB) (MessageStore, error) {
	if err := db.AutoMigrate(&types.Message{}); err != nil {
		return nil, err
	}
	return &gormMessageStore{db: db}, nil
}

func (s *gormMessageStore) Insert(ctx context.Context, msg *types.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *gormMessageStore) GetRecentBySession(ctx context.Context, sessionID string, limit int) ([]types.Message, error) {
	var rows []types.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND sender IN ?", sessionID,
			[]types.SenderKind{types.SenderUser, types.SenderAssistant, types.SenderSystemSummary}).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	// Reverse to chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *gormMessageStore) DeleteBySession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&types.Message{}).Error
}

func (s *gormMessageStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&types.Message{}).Error
}

func (s *gormMessageStore) Get(ctx context.Context, id string) (*types.Message, error) {
	var m types.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

type gormSessionStore struct{ db *gorm.DB }

// NewSessionStore builds a gorm-backed SessionStore, migrating its table on
// first use.
func NewSessionStore(db *gorm.DB) (SessionStore, error) {
	if err := db.AutoMigrate(&types.Session{}); err != nil {
		return nil, err
	}
	return &gormSessionStore{db: db}, nil
}

func (s *gormSessionStore) Create(ctx context.Context, sess *types.Session) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *gormSessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *gormSessionStore) UpdateNameIfPlaceholder(ctx context.Context, id, name string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ? AND name = ?", id, types.PlaceholderSessionName()).
		Update("name", name)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *gormSessionStore) Touch(ctx context.Context, id, excerpt string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_excerpt": excerpt, "updated_at": at}).Error
}

func (s *gormSessionStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&types.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&types.Session{}).Error
	})
}
