package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/utils"
)

var sequentialThinkingTool = BaseTool{
	name: ToolThinking,
	description: `A detailed tool for dynamic and reflective problem-solving through thoughts.

This tool helps analyze problems through a flexible thinking process that can adapt and evolve. Each
thought can build on, question, or revise previous insights as understanding deepens.

Write thoughts in natural, user-friendly language describing WHAT you're trying to find and WHY, not
HOW (never mention other tool names inside a thought).

- thought: the current thinking step
- next_thought_needed: true if more thinking is required, even past the initial estimate
- thought_number / total_thoughts: position in the (adjustable) sequence
- is_revision / revises_thought: mark a thought that reconsiders an earlier one
- branch_from_thought / branch_id: mark a thought that branches into a new path`,
	schema: utils.GenerateSchema[SequentialThinkingInput](),
}

// SequentialThinkingInput mirrors the tool's JSON argument shape, adapted
// from agent/tools/sequentialthinking.go's SequentialThinkingInput.
type SequentialThinkingInput struct {
	Thought           string `json:"thought" jsonschema:"the current thinking step"`
	ThoughtNumber     int    `json:"thought_number" jsonschema:"current position in the sequence, 1-based"`
	TotalThoughts     int    `json:"total_thoughts" jsonschema:"current estimate of thoughts needed"`
	IsRevision        bool   `json:"is_revision,omitempty"`
	RevisesThought    *int   `json:"revises_thought,omitempty"`
	BranchFromThought *int   `json:"branch_from_thought,omitempty"`
	BranchID          string `json:"branch_id,omitempty"`
	NeedsMoreThoughts bool   `json:"needs_more_thoughts,omitempty"`
	NextThoughtNeeded bool   `json:"next_thought_needed"`
}

// SequentialThinkingTool lets the ReAct engine externalize multi-step
// reasoning as a tool call. Its result carries display_type=thinking in
// ToolResult.Data, but only the Output text reaches the stream, as an
// ordinary observation event; no event's DisplayType is set from it.
type SequentialThinkingTool struct {
	BaseTool
	history  []SequentialThinkingInput
	branches map[string][]SequentialThinkingInput
}

func NewSequentialThinkingTool() *SequentialThinkingTool {
	return &SequentialThinkingTool{
		BaseTool: sequentialThinkingTool,
		branches: make(map[string][]SequentialThinkingInput),
	}
}

func (t *SequentialThinkingTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input SequentialThinkingInput
	if err := json.Unmarshal(args, &input); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}
	if err := t.validate(input); err != nil {
		return &types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	if input.ThoughtNumber > input.TotalThoughts {
		input.TotalThoughts = input.ThoughtNumber
	}
	t.history = append(t.history, input)
	if input.BranchFromThought != nil && input.BranchID != "" {
		t.branches[input.BranchID] = append(t.branches[input.BranchID], input)
	}

	branchKeys := make([]string, 0, len(t.branches))
	for k := range t.branches {
		branchKeys = append(branchKeys, k)
	}
	incomplete := input.NextThoughtNeeded || input.NeedsMoreThoughts || input.ThoughtNumber < input.TotalThoughts

	logger.Debugf(ctx, "sequential thinking %d/%d: %s", input.ThoughtNumber, input.TotalThoughts, input.Thought)

	outputMsg := "Thought process recorded"
	if incomplete {
		outputMsg = "Thought process recorded - unfinished steps remain, continue exploring and calling tools"
	}

	return &types.ToolResult{
		Success: true,
		Output:  outputMsg,
		Data: map[string]any{
			"thought_number":      input.ThoughtNumber,
			"total_thoughts":      input.TotalThoughts,
			"next_thought_needed": input.NextThoughtNeeded,
			"branches":            branchKeys,
			"display_type":        "thinking",
			"thought":             input.Thought,
			"incomplete_steps":    incomplete,
		},
	}, nil
}

func (t *SequentialThinkingTool) validate(in SequentialThinkingInput) error {
	if in.Thought == "" {
		return fmt.Errorf("invalid thought: must be non-empty")
	}
	if in.ThoughtNumber < 1 {
		return fmt.Errorf("invalid thought_number: must be >= 1")
	}
	if in.TotalThoughts < 1 {
		return fmt.Errorf("invalid total_thoughts: must be >= 1")
	}
	return nil
}
