package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weknora-chat/ragstream/internal/retriever"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/utils"
)

var knowledgeSearchTool = BaseTool{
	name:        ToolKnowledgeSearch,
	description: "Search the tenant's knowledge base for passages relevant to a query. Returns formatted passages; each call records citations for the final answer's Documents event.",
	schema:      utils.GenerateSchema[KnowledgeSearchInput](),
}

// KnowledgeSearchInput matches spec.md §4.4's
// `knowledge_search(query: string, k: integer=5)` signature.
type KnowledgeSearchInput struct {
	Query string `json:"query" jsonschema:"The search query."`
	K     int    `json:"k,omitempty" jsonschema:"Number of passages to return, default 5."`
}

// KnowledgeSearchTool is the one built-in the core cares about beyond its
// name: it is the tool the Citation channel (spec.md §4.5) watches for.
type KnowledgeSearchTool struct {
	BaseTool
	retriever *retriever.Retriever
	level     types.PermissionLevel
	opts      retriever.Options
	onCite    func(passages []types.Passage)
}

// NewKnowledgeSearchTool builds the tool bound to one request's permission
// level. onCite is invoked with every passage a call returns, feeding the
// ReAct engine's citation accumulator.
func NewKnowledgeSearchTool(r *retriever.Retriever, level types.PermissionLevel, opts retriever.Options, onCite func([]types.Passage)) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{BaseTool: knowledgeSearchTool, retriever: r, level: level, opts: opts, onCite: onCite}
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input KnowledgeSearchInput
	if err := json.Unmarshal(args, &input); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}
	if input.Query == "" {
		return &types.ToolResult{Success: false, Error: "missing 'query' parameter"}, nil
	}

	opts := t.opts
	if input.K > 0 {
		opts.FinalK = input.K
	}

	result, err := t.retriever.Retrieve(ctx, input.Query, t.level, opts)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("search failed: %v", err)}, nil
	}

	if t.onCite != nil && len(result.Passages) > 0 {
		t.onCite(result.Passages)
	}

	output := result.FormattedContext
	if output == "" {
		output = "No relevant passages found."
	}
	return &types.ToolResult{
		Success: true,
		Output:  output,
		Data:    map[string]any{"passage_count": len(result.Passages)},
	}, nil
}
