package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"butler/internal/action"
	"butler/internal/logging"
)

// RuntimeContextKey is the reserved key the full schema list is published
// under in the runtime context handed to the planner.
const RuntimeContextKey = "available_tools"

// Registry holds all registered capability handlers, their declared
// schemas, and the direct slash-command table. All tables are populated
// by explicit Register calls before first use; there is no discovery or
// reflection.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler    // handler name -> handler
	owner    map[string]string     // capability name -> handler name
	items    []SchemaItem          // declaration order
	byName   map[string]SchemaItem // capability name -> schema
	direct   map[string]DirectRoute
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		owner:    make(map[string]string),
		byName:   make(map[string]SchemaItem),
		direct:   make(map[string]DirectRoute),
	}
}

// Register adds a handler under its unique name together with the schema
// items it exposes. A handler registered without schema items is
// addressable by its own name. A single handler may expose multiple
// named capabilities.
func (r *Registry) Register(h Handler, items ...SchemaItem) error {
	if h == nil {
		return ErrHandlerNil
	}
	name := h.Name()
	if name == "" {
		return ErrHandlerNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerRegistered, name)
	}
	if owner, exists := r.owner[name]; exists && owner != name {
		return fmt.Errorf("%w: %s (owned by %s)", ErrCapabilityDeclared, name, owner)
	}
	for _, item := range items {
		if item.Name == "" {
			return fmt.Errorf("%w: schema item for handler %s", ErrHandlerNameEmpty, name)
		}
		if owner, exists := r.owner[item.Name]; exists {
			return fmt.Errorf("%w: %s (owned by %s)", ErrCapabilityDeclared, item.Name, owner)
		}
	}

	r.handlers[name] = h
	r.owner[name] = name
	for _, item := range items {
		r.owner[item.Name] = name
		r.byName[item.Name] = item
		r.items = append(r.items, item)
	}

	logging.Tools("registered handler %s (capabilities=%d)", name, len(items))
	return nil
}

// MustRegister registers a handler and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(h Handler, items ...SchemaItem) {
	if err := r.Register(h, items...); err != nil {
		panic(fmt.Sprintf("failed to register handler: %v", err))
	}
}

// Resolve maps a capability name (or bare handler name) to its handler.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owner[name]
	if !ok {
		return nil, false
	}
	h, ok := r.handlers[owner]
	return h, ok
}

// Has reports whether a capability name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owner[name]
	return ok
}

// KnownOp reports whether op is valid for the named capability. A
// capability registered without a schema accepts any op; with a schema,
// only declared ops are known.
func (r *Registry) KnownOp(name, op string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.byName[name]
	if !ok {
		_, registered := r.owner[name]
		return registered
	}
	for _, spec := range item.Ops {
		if spec.Op == op {
			return true
		}
	}
	return false
}

// Ops returns the declared operation names for a capability.
func (r *Registry) Ops(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.byName[name]
	if !ok {
		return nil
	}
	return item.OpNames()
}

// ListSchema returns the full declared capability surface in
// registration order.
func (r *Registry) ListSchema() []SchemaItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SchemaItem, len(r.items))
	copy(out, r.items)
	return out
}

// SchemaNames returns all declared capability names, sorted.
func (r *Registry) SchemaNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for _, item := range r.items {
		names = append(names, item.Name)
	}
	sort.Strings(names)
	return names
}

// BuildRuntimeContext merges each handler's optional RuntimeContext
// keyed by handler name, plus the schema list under the reserved key.
// This is how live handler state reaches the planner without
// re-querying handlers per turn.
func (r *Registry) BuildRuntimeContext() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.handlers)+1)
	for name, h := range r.handlers {
		if p, ok := h.(RuntimeContextProvider); ok {
			if rc := p.RuntimeContext(); rc != nil {
				out[name] = rc
			}
		}
	}
	schema := make([]SchemaItem, len(r.items))
	copy(schema, r.items)
	out[RuntimeContextKey] = schema
	return out
}

// ArgMode controls how a direct command's argument text is passed on.
type ArgMode int

const (
	// ArgModeRest passes everything after the command token.
	ArgModeRest ArgMode = iota
	// ArgModeFull passes the full raw input including the command.
	ArgModeFull
)

// DirectRoute maps a slash command straight to a capability call,
// bypassing the planner entirely.
type DirectRoute struct {
	Command string
	Tool    string
	Op      string
	ArgMode ArgMode

	// FireAndForget returns Ack immediately; the real result is
	// delivered out of band.
	FireAndForget bool
	Ack           string
}

// RegisterDirect adds a direct slash-command route. Matching is
// case-insensitive on the command token; registering the same command
// twice replaces the earlier route.
func (r *Registry) RegisterDirect(route DirectRoute) error {
	if !strings.HasPrefix(route.Command, "/") {
		return fmt.Errorf("%w: %q", ErrCommandInvalid, route.Command)
	}
	if route.Tool == "" || route.Op == "" {
		return fmt.Errorf("%w: %q", ErrRouteIncomplete, route.Command)
	}

	key := strings.ToLower(route.Command)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.direct[key]; exists {
		logging.ToolsDebug("direct route %s replaced", key)
	}
	r.direct[key] = route
	return nil
}

// MatchDirect checks whether raw input starts with a registered slash
// command. On a match it returns the mapped tool call and the route.
func (r *Registry) MatchDirect(input string) (*action.ToolCall, DirectRoute, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, DirectRoute{}, false
	}

	token := trimmed
	rest := ""
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		token = trimmed[:i]
		rest = strings.TrimSpace(trimmed[i+1:])
	}

	r.mu.RLock()
	route, ok := r.direct[strings.ToLower(token)]
	r.mu.RUnlock()
	if !ok {
		return nil, DirectRoute{}, false
	}

	argText := rest
	if route.ArgMode == ArgModeFull {
		argText = trimmed
	}

	tc := &action.ToolCall{
		Tool: route.Tool,
		Op:   route.Op,
		Args: map[string]any{"input": argText},
	}
	logging.RoutingDebug("direct command %s -> %s.%s", token, route.Tool, route.Op)
	return tc, route, true
}
