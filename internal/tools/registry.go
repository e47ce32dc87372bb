// Package tools provides the declarative catalog of functions the model may
// invoke mid-generation: each tool is a data record with a name, parameter
// specs, and a handler, built once at startup.
package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/zulandar/conductor/internal/ollama"
)

// Param specifies one tool parameter.
type Param struct {
	Name        string
	Type        string // "string", "integer", "number", "boolean"
	Description string
	Required    bool
}

// Handler executes a tool call with validated arguments and returns a text
// result. Handlers are pure functions of their declared parameters; a
// returned error is reported to the model, never fatal to the turn.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable tool: descriptor plus handler.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Registry is the immutable tool catalog.
type Registry struct {
	tools  []Tool
	byName map[string]*Tool
}

// NewRegistry builds a Registry from the given tools, rejecting duplicates
// and incomplete records.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tools: tool with empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tools: %s has no handler", t.Name)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %s", t.Name)
		}
		r.tools = append(r.tools, t)
		r.byName[t.Name] = &r.tools[len(r.tools)-1]
	}
	return r, nil
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Catalog renders the registry in the wire schema advertised to the model.
func (r *Registry) Catalog() []ollama.Tool {
	out := make([]ollama.Tool, len(r.tools))
	for i, t := range r.tools {
		props := make(map[string]ollama.ToolParam, len(t.Params))
		var required []string
		for _, p := range t.Params {
			props[p.Name] = ollama.ToolParam{Type: p.Type, Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out[i] = ollama.Tool{
			Type: "function",
			Function: ollama.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: ollama.ToolParams{
					Type:       "object",
					Properties: props,
					Required:   required,
				},
			},
		}
	}
	return out
}

// Execute validates a model-issued call against the tool's parameter spec
// and runs its handler synchronously.
func (r *Registry) Execute(ctx context.Context, call ollama.ToolCall) (string, error) {
	t, ok := r.Lookup(call.Function.Name)
	if !ok {
		return "", fmt.Errorf("tools: unknown tool %q", call.Function.Name)
	}
	args := call.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}
	for _, p := range t.Params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return "", fmt.Errorf("tools: %s: missing required argument %q", t.Name, p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return "", fmt.Errorf("tools: %s: argument %q is not a %s", t.Name, p.Name, p.Type)
		}
	}
	return t.Handler(ctx, args)
}

// typeMatches checks a decoded JSON value against a declared parameter type.
// Models are sloppy with numerics, so integer accepts numeric strings and
// integral floats.
func typeMatches(declared string, v any) bool {
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "integer":
		_, err := toInt(v)
		return err == nil
	}
	return true
}

// toInt coerces a decoded JSON value to an int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integral number %v", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

// intArg reads an integer argument.
func intArg(args map[string]any, name string) (int, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", name)
	}
	return toInt(v)
}

// stringArg reads a string argument, with "" for a missing optional.
func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// boolArg reads a boolean argument, false when missing.
func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
