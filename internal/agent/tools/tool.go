// Package tools implements C4, the Tool Registry (spec.md §4.4): a name ->
// descriptor mapping with a lenient CSV-or-JSON invocation contract. The
// BaseTool/Tool shape is grounded on agent/tools/sequentialthinking.go and
// agent/tools/database_query.go, which both embed an (unexported in the
// teacher) BaseTool{name, description, schema} and override Execute.
package tools

import (
	"context"
	"encoding/json"

	"github.com/weknora-chat/ragstream/internal/types"
)

// Name enumerates the tool identifiers the catalogue can hold. Built-ins
// supplied by external collaborators are opaque beyond their name per
// spec.md §4.4 "the core imposes no further semantics".
type Name string

const (
	ToolThinking        Name = "sequential_thinking"
	ToolDatabaseQuery   Name = "database_query"
	ToolKnowledgeSearch Name = "knowledge_search"
	ToolWebSearch       Name = "web_search"
	ToolWeatherQuery    Name = "weather_query"
	ToolEmailSender     Name = "email_sender"
	ToolGeocode         Name = "geocode"
	ToolIPLocation      Name = "ip_location"
	ToolPOISearch       Name = "poi_search"
	ToolRoutePlanning   Name = "route_planning"
)

// BaseTool carries the static descriptor fields every Tool embeds.
type BaseTool struct {
	name        Name
	description string
	schema      json.RawMessage
}

func (b BaseTool) Name() string           { return string(b.name) }
func (b BaseTool) Description() string    { return b.description }
func (b BaseTool) Schema() json.RawMessage { return b.schema }

// Tool is the synchronous invocation contract (spec.md §4.4).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error)
}
