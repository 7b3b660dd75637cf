package types

import "time"

// CustomAgent is a tenant-registered system prompt + tool subset + model
// selection bundle (SPEC_FULL.md §C.7), addressable from /messages via an
// optional `agent_id` field.
type CustomAgent struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID     uint64    `gorm:"index" json:"tenant_id"`
	Name         string    `gorm:"type:varchar(128)" json:"name"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt"`
	// ToolNames restricts the tool catalogue available to this agent; empty
	// means "all registered tools" (the default built-in agent's behaviour).
	ToolNames []string  `gorm:"serializer:json" json:"tool_names,omitempty"`
	ModelName string    `gorm:"type:varchar(128)" json:"model_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CustomAgent) TableName() string { return "custom_agents" }
