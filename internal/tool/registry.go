package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/metrics"
)

// Registry holds all available tools and executes them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		r.logger.Warn("tool replaced", "name", t.Name())
	}
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Filter replaces every tool with gate(tool), dropping those for which gate
// returns nil. It reports how many tools were dropped.
func (r *Registry) Filter(gate func(domain.Tool) domain.Tool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for name, t := range r.tools {
		if g := gate(t); g != nil {
			r.tools[name] = g
			continue
		}
		delete(r.tools, name)
		dropped++
	}
	return dropped
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool. Unknown tools and panics inside a tool are
// reported as error envelopes like any other failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (env domain.Envelope) {
	t := r.Get(name)
	if t == nil {
		return domain.Envelope{
			IsError: true,
			Message: fmt.Sprintf("%s Failed: %s: unknown tool", name, domain.Unexpected.Code()),
			Data:    map[string]any{"error": domain.Unexpected.Code(), "detail": "unknown tool: " + name},
			Kind:    domain.Unexpected.String(),
		}
	}

	start := time.Now()
	metrics.ToolsInFlight.Inc()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panic", "tool", name, "panic", rec)
			env = domain.Envelope{
				IsError: true,
				Message: fmt.Sprintf("%s Failed: %s: %v", name, domain.Unexpected.Code(), rec),
				Data:    map[string]any{"error": domain.Unexpected.Code(), "detail": fmt.Sprint(rec)},
				Kind:    domain.Unexpected.String(),
			}
		}
		metrics.ToolsInFlight.Dec()
		metrics.RecordToolCall(KindOf(t), env.Kind, time.Since(start))
		r.logger.Debug("tool executed", "tool", name, "is_error", env.IsError, "elapsed", time.Since(start))
	}()

	return t.Execute(ctx, args)
}

// Definitions returns tool definitions sorted by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Kinds used for metrics labels.
const (
	KindAction  = "action"
	KindCase    = "case"
	KindFalcon  = "falcon"
	KindBuiltin = "builtin"
)

type kinded interface{ Kind() string }

// KindOf reports the metrics kind of t.
func KindOf(t domain.Tool) string {
	if k, ok := t.(kinded); ok {
		return k.Kind()
	}
	return KindBuiltin
}

// Search returns registered tools whose name or description contains every
// space separated term, case-insensitively.
func (r *Registry) Search(query string) []domain.ToolDefinition {
	terms := strings.Fields(strings.ToLower(query))
	var out []domain.ToolDefinition
	for _, d := range r.Definitions() {
		hay := strings.ToLower(d.Name + " " + d.Description)
		match := true
		for _, term := range terms {
			if !strings.Contains(hay, term) {
				match = false
				break
			}
		}
		if match {
			out = append(out, d)
		}
	}
	return out
}
