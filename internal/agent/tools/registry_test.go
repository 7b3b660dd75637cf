package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	BaseTool
}

func (e *echoTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	return &types.ToolResult{Success: true, Output: string(args)}, nil
}

func TestRegistry_InvokeWithJSONArgs(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{BaseTool: BaseTool{name: "echo", description: "echoes args"}}
	r.Register(tool, []types.ArgSpec{{Name: "query", Type: types.ArgString, Required: true}})

	out := r.Invoke(context.Background(), "echo", `{"query": "hello"}`)
	assert.JSONEq(t, `{"query":"hello"}`, out)
}

func TestRegistry_InvokeWithPositionalCSV(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{BaseTool: BaseTool{name: "echo", description: "echoes args"}}
	r.Register(tool, []types.ArgSpec{
		{Name: "query", Type: types.ArgString, Required: true},
		{Name: "k", Type: types.ArgInteger, Required: false},
	})

	out := r.Invoke(context.Background(), "echo", "hello world, 5")
	assert.JSONEq(t, `{"query":"hello world","k":5}`, out)
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	out := r.Invoke(context.Background(), "nonexistent", "{}")
	assert.Regexp(t, `^Error:`, out)
}

func TestRegistry_InvokeMissingRequiredCSVArg(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{BaseTool: BaseTool{name: "echo", description: "echoes args"}}
	r.Register(tool, []types.ArgSpec{{Name: "query", Type: types.ArgString, Required: true}})

	out := r.Invoke(context.Background(), "echo", "")
	assert.Regexp(t, `^Error:`, out)
}

func TestRegistry_DescribeAllRendersCatalogue(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{BaseTool: BaseTool{name: "echo", description: "echoes args"}}
	r.Register(tool, []types.ArgSpec{{Name: "query", Type: types.ArgString, Required: true}})

	catalogue := r.DescribeAll()
	assert.Contains(t, catalogue, "echo")
	assert.Contains(t, catalogue, "echoes args")
	assert.Contains(t, catalogue, "query*:string")
}

func TestSQLSecurityValidator_RejectsNonSelect(t *testing.T) {
	v := NewSQLSecurityValidator(7)
	_, err := v.ValidateAndSecure("DELETE FROM sessions")
	require.Error(t, err)
}

func TestSQLSecurityValidator_RejectsDisallowedTable(t *testing.T) {
	v := NewSQLSecurityValidator(7)
	_, err := v.ValidateAndSecure("SELECT * FROM pg_catalog.pg_tables")
	require.Error(t, err)
}

func TestSQLSecurityValidator_InjectsTenantFilter(t *testing.T) {
	v := NewSQLSecurityValidator(42)
	secured, err := v.ValidateAndSecure("SELECT id, title FROM sessions ORDER BY created_at DESC LIMIT 5")
	require.NoError(t, err)
	assert.Contains(t, secured, "tenant_id = 42")
}

func TestSQLSecurityValidator_RejectsSubquery(t *testing.T) {
	v := NewSQLSecurityValidator(7)
	_, err := v.ValidateAndSecure("SELECT id FROM sessions WHERE id IN (SELECT session_id FROM messages)")
	require.Error(t, err)
}
