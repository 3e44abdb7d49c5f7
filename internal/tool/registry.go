package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/dealroom/orchestrator/internal/apperr"
)

// Registry manages all registered tools with thread-safe access.
//
// A Registry can be either a "root" registry (parent == nil) that owns its
// tools map, or a "view" registry (parent != nil) created by WithExtra that
// overlays additional tools on top of a parent. Views delegate Get/List to
// the parent, so changes to the parent (Register/Unregister) are immediately
// visible through the view. agentcore.New uses WithOnly to build each
// agent's assigned tool subset without mutating the shared root registry
// (spec §3); WithOnly returns a root registry holding copies, not a view.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	parent *Registry // non-nil → view mode; tools map holds extras only
}

// NewRegistry creates an empty root tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Returns apperr.ErrDuplicateTool if
// a tool with the same name already exists (spec §4.1).
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %q", apperr.ErrDuplicateTool, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Unregister removes a tool from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get retrieves a tool by name.
// For view registries: checks extras first, then delegates to parent.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// List returns all registered tools sorted by name.
// For view registries: merges parent tools with extras (extras override parent).
func (r *Registry) List() []Tool {
	if r.parent != nil {
		return r.listView()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// listView merges parent tools with this view's extras.
// Extras take precedence over parent tools with the same name.
func (r *Registry) listView() []Tool {
	parentTools := r.parent.List()

	r.mu.RLock()
	extras := make(map[string]Tool, len(r.tools))
	for k, v := range r.tools {
		extras[k] = v
	}
	r.mu.RUnlock()

	// Build merged list: parent tools (excluding overridden) + extras
	result := make([]Tool, 0, len(parentTools)+len(extras))
	for _, t := range parentTools {
		if _, overridden := extras[t.Name()]; !overridden {
			result = append(result, t)
		}
	}
	for _, t := range extras {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// WithExtra returns a view of this Registry with additional tools overlaid.
// The returned Registry delegates Get/List to the parent, so changes to the
// parent are immediately visible through the view. Extras take precedence
// over parent tools with the same name.
//
// Can be chained: root.WithExtra(a).WithExtra(b) creates a view chain where
// lookups check b's extras → a's extras → root's tools.
func (r *Registry) WithExtra(extras ...Tool) *Registry {
	extrasMap := make(map[string]Tool, len(extras))
	for _, t := range extras {
		extrasMap[t.Name()] = t
	}
	return &Registry{
		parent: r,
		tools:  extrasMap,
	}
}

// WithOnly returns a new root registry holding exactly the named tools, used
// when an agent is assigned a subset of the catalogue (spec §3 "recognized
// tool names (subset of registry)"). Names not found in r are skipped; tools
// registered or unregistered in r afterwards are not reflected in it.
func (r *Registry) WithOnly(names ...string) *Registry {
	scoped := &Registry{tools: make(map[string]Tool)}
	for _, n := range names {
		if t, ok := r.Get(n); ok {
			scoped.tools[n] = t
		}
	}
	return scoped
}

// GenerateToolsPrompt creates a detailed description of all tools
// including their parameter schemas for injection into LLM prompts.
func (r *Registry) GenerateToolsPrompt() string {
	tools := r.List()
	if len(tools) == 0 {
		return "(no tools available)"
	}

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("\n### %s\n%s\n", t.Name(), t.Description()))
		schema := t.InputSchema()
		if len(schema) > 0 {
			sb.WriteString(fmt.Sprintf("Parameter schema: %s\n", string(schema)))
		}
	}
	return sb.String()
}

// Schema returns the OpenAI-compatible tool-schema list for a subset of
// names, used to build LLM tool-calling request payloads (spec §4.1). An
// unknown name is silently skipped rather than failing the whole request.
func (r *Registry) Schema(names []string) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: ToolDefinitionFunc{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.InputSchema(),
			},
		})
	}
	return defs
}

// Invoke validates arguments against the tool's schema, coerces
// string-typed values to their declared JSON types, and dispatches to
// the resolver (local handler or remote routing descriptor). It never
// surfaces a resolver-level failure as a Go error: such failures are
// folded into Result{Success:false} per spec §4.1 so a tool failure never
// aborts the calling agent's turn.
func (r *Registry) Invoke(ctx context.Context, name string, arguments json.RawMessage) Result {
	t, ok := r.Get(name)
	if !ok {
		msg := fmt.Sprintf("tool %q is not registered", name)
		return Result{Success: false, Error: msg, Summary: msg}
	}

	coerced, err := validateAndCoerce(t.InputSchema(), arguments)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: invalid arguments (%v)", name, err)}
	}

	result, err := t.Execute(ctx, coerced)
	if err != nil {
		log.Printf("[Registry] tool %q resolver error: %v", name, err)
		return Result{Success: false, Error: err.Error(), Summary: fmt.Sprintf("%s: execution failed (%v)", name, err)}
	}
	if result.Summary == "" {
		if result.Success {
			result.Summary = fmt.Sprintf("%s completed", name)
		} else {
			result.Summary = fmt.Sprintf("%s failed: %s", name, result.Error)
		}
	}
	return result
}

// InitAll initializes all registered tools.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, t := range r.tools {
		if err := t.Init(ctx); err != nil {
			return fmt.Errorf("init tool %q: %w", name, err)
		}
	}
	return nil
}

// CloseAll closes all registered tools, logging errors but not failing.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, t := range r.tools {
		if err := t.Close(); err != nil {
			log.Printf("[Registry] error closing tool %s: %v", name, err)
		}
	}
}

// IsDecisionTool reports whether name is registered and tagged as a
// decision tool (observable side effects on the ledger, spec §3/§4.4).
func (r *Registry) IsDecisionTool(name string) bool {
	t, ok := r.Get(name)
	if !ok {
		return false
	}
	d, ok := t.(Decision)
	return ok && d.IsDecisionTool()
}
