// Package tools exposes CRM operations to the AI agent as callable tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/imobflow/imobflow/internal/auth"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Func runs a tool on behalf of actor.
type Func func(ctx context.Context, actor auth.Actor, args map[string]any) (any, error)

// Tool is a named function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema of the arguments object
	Execute     Func
}

// Schema is the model-facing description of a tool.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is the outcome of a tool call as fed back to the model.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// String serializes the result for the transcript.
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Result{Error: "result could not be encoded: " + err.Error()})
	}
	return string(b)
}

// ErrUnknownTool is reported for calls to names the registry doesn't hold.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds a fixed set of tools.
type Registry struct {
	tools map[string]Tool
	names []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)
	return r
}

// Names returns the tool names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Schemas returns the model-facing tool descriptions in name order.
func (r *Registry) Schemas() []Schema {
	schemas := make([]Schema, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		schemas = append(schemas, Schema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return schemas
}

// Execute runs the named tool. It never fails: errors and panics become a
// failure result that is handed back to the model.
func (r *Registry) Execute(ctx context.Context, actor auth.Actor, name string, args map[string]any) (res Result) {
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("tool", name))
	metrics.AgentToolCallsTotal.Add(ctx, 1, attrs)

	logger := zerolog.Ctx(ctx).With().Str("tool", name).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Tool panicked")
			res = Result{Error: fmt.Sprintf("tool %s failed unexpectedly", name)}
		}
		if !res.Success {
			metrics.AgentToolFailuresTotal.Add(ctx, 1, attrs)
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return Result{Error: fmt.Sprintf("%s: %s", ErrUnknownTool, name)}
	}
	if args == nil {
		args = map[string]any{}
	}

	data, err := tool.Execute(ctx, actor, args)
	if err != nil {
		logger.Debug().Err(err).Msg("Tool call failed")
		return Result{Error: err.Error()}
	}
	return Result{Success: true, Data: data}
}
