// Package customagent implements SPEC_FULL.md §C.7: tenant-registered
// system prompt + tool subset + model selection bundles, addressable from
// POST /messages via an optional agent_id field. Adapted from the
// teacher's application/repository/custom_agent.go CRUD surface onto this
// module's own types.CustomAgent model and import path.
package customagent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weknora-chat/ragstream/internal/types"
)

// ErrNotFound is returned when a lookup by id finds no row owned by the
// requesting tenant.
var ErrNotFound = errors.New("customagent: not found")

// Repository is the CRUD surface C7/the HTTP layer use to resolve an
// agent_id into a (system prompt, tool subset, model) bundle.
type Repository interface {
	Create(ctx context.Context, tenantID uint64, name, systemPrompt, modelName string, toolNames []string) (*types.CustomAgent, error)
	Get(ctx context.Context, tenantID uint64, id string) (*types.CustomAgent, error)
	ListByTenant(ctx context.Context, tenantID uint64) ([]types.CustomAgent, error)
	Update(ctx context.Context, tenantID uint64, id string, name, systemPrompt, modelName string, toolNames []string) (*types.CustomAgent, error)
	Delete(ctx context.Context, tenantID uint64, id string) error
}

type gormRepository struct{ db *gorm.DB }

// New builds a gorm-backed Repository, migrating its table on first use.
func New(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&types.CustomAgent{}); err != nil {
		return nil, err
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) Create(ctx context.Context, tenantID uint64, name, systemPrompt, modelName string, toolNames []string) (*types.CustomAgent, error) {
	now := time.Now()
	agent := types.CustomAgent{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Name:         name,
		SystemPrompt: systemPrompt,
		ToolNames:    toolNames,
		ModelName:    modelName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *gormRepository) Get(ctx context.Context, tenantID uint64, id string) (*types.CustomAgent, error) {
	var agent types.CustomAgent
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (r *gormRepository) ListByTenant(ctx context.Context, tenantID uint64) ([]types.CustomAgent, error) {
	var agents []types.CustomAgent
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&agents).Error
	return agents, err
}

func (r *gormRepository) Update(ctx context.Context, tenantID uint64, id string, name, systemPrompt, modelName string, toolNames []string) (*types.CustomAgent, error) {
	result := r.db.WithContext(ctx).Model(&types.CustomAgent{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"name":          name,
			"system_prompt": systemPrompt,
			"model_name":    modelName,
			"tool_names":    toolNames,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, tenantID, id)
}

func (r *gormRepository) Delete(ctx context.Context, tenantID uint64, id string) error {
	result := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&types.CustomAgent{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
