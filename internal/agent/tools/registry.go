package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/types"
)

// Registry is the C4 Tool Registry: name -> descriptor + invocation hook.
type Registry struct {
	tools map[string]Tool
	// argOrder records each tool's ArgSpec ordering so positional CSV
	// invocations (spec.md §4.4 "either a positional CSV or a JSON object")
	// can be mapped back onto named JSON fields.
	argOrder map[string][]types.ArgSpec
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), argOrder: make(map[string][]types.ArgSpec)}
}

// Register adds tool to the catalogue. argOrder declares the positional
// order used when an invocation supplies a bare CSV argument list instead
// of a JSON object; pass nil for tools that only accept JSON.
func (r *Registry) Register(tool Tool, argOrder []types.ArgSpec) {
	r.tools[tool.Name()] = tool
	r.argOrder[tool.Name()] = argOrder
}

// DescribeAll renders the textual tool catalogue inserted into the system
// prompt (spec.md §4.4 describe_all): name, description, argument list.
func (r *Registry) DescribeAll() string {
	var b strings.Builder
	for name, tool := range r.tools {
		fmt.Fprintf(&b, "### %s\n%s\n", name, tool.Description())
		if args := r.argOrder[name]; len(args) > 0 {
			b.WriteString("Arguments: ")
			parts := make([]string, 0, len(args))
			for _, a := range args {
				req := ""
				if a.Required {
					req = "*"
				}
				parts = append(parts, fmt.Sprintf("%s%s:%s", a.Name, req, a.Type))
			}
			b.WriteString(strings.Join(parts, ", "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Descriptors returns every registered tool's Descriptor, for callers that
// want structured catalogue data instead of the rendered text form.
func (r *Registry) Descriptors() []types.Descriptor {
	out := make([]types.Descriptor, 0, len(r.tools))
	for name, tool := range r.tools {
		out = append(out, types.Descriptor{
			Name:        name,
			Description: tool.Description(),
			Args:        r.argOrder[name],
			Schema:      tool.Schema(),
		})
	}
	return out
}

// Invoke implements spec.md §4.4's invoke contract: schema violations and
// handler exceptions both surface as an Observation-style "Error: ..."
// string rather than propagating, since the ReAct engine treats the
// returned text as the literal Observation content.
func (r *Registry) Invoke(ctx context.Context, name, argumentString string) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	args, err := r.toJSONArgs(name, argumentString)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		logger.Warnf(ctx, "tool %s execution error: %v", name, err)
		return fmt.Sprintf("Error: %v", err)
	}
	if !result.Success {
		return fmt.Sprintf("Error: %s", result.Error)
	}
	return result.Output
}

// toJSONArgs parses argumentString as a JSON object when it looks like
// one, otherwise as a positional CSV list mapped onto the tool's declared
// ArgSpec order (spec.md §4.4).
func (r *Registry) toJSONArgs(name, argumentString string) ([]byte, error) {
	trimmed := strings.TrimSpace(argumentString)
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}

	order := r.argOrder[name]
	if len(order) == 0 {
		return nil, fmt.Errorf("tool %q requires a JSON argument object, got %q", name, argumentString)
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.TrimLeadingSpace = true
	fields, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not parse arguments for %q: %v", name, err)
	}

	obj := make(map[string]any, len(fields))
	for i, spec := range order {
		if i >= len(fields) {
			if spec.Required {
				return nil, fmt.Errorf("missing required argument %q for tool %q", spec.Name, name)
			}
			continue
		}
		obj[spec.Name] = convertField(spec, fields[i])
	}
	return json.Marshal(obj)
}

func convertField(spec types.ArgSpec, raw string) any {
	switch spec.Type {
	case types.ArgInteger:
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case types.ArgNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case types.ArgBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}
