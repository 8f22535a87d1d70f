package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Common errors returned by the registry
var (
	ErrMalformedType = errors.New("task type string has no category/subtype delimiter")
	ErrUnknownType   = errors.New("no task registered for type")
)

// Func is a task body. It receives the per-invocation context and returns
// the task's result value or an error. Bodies run synchronously inside an
// execution unit and must not retain the context after returning.
type Func func(ctx *Context) (any, error)

// Handler holds the task bodies of one category, keyed by subtype.
type Handler struct {
	subtypes map[string]Func
}

// NewHandler creates an empty category handler.
func NewHandler() *Handler {
	return &Handler{subtypes: make(map[string]Func)}
}

// Register binds a task body to a subtype. Registering the same subtype
// again replaces the previous body without error.
func (h *Handler) Register(subtype string, fn Func) *Handler {
	h.subtypes[subtype] = fn
	return h
}

// Registry maps two-part type strings to task bodies through a two-level
// lookup: category name to handler, then subtype name inside the handler.
// Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	categories map[string]*Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{categories: make(map[string]*Handler)}
}

// RegisterCategory installs a handler under a category name, replacing
// any handler previously registered for that name.
func (r *Registry) RegisterCategory(name string, h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[name] = h
}

// Register binds a task body directly to a (category, subtype) pair,
// creating the category handler if needed.
func (r *Registry) Register(category, subtype string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.categories[category]
	if !ok {
		h = NewHandler()
		r.categories[category] = h
	}
	h.subtypes[subtype] = fn
}

// Resolve splits typeString on its first "/" and looks up the category
// handler, then the subtype body inside it. A string without a delimiter
// is rejected as malformed rather than mis-routed; a missing category or
// subtype yields a not-found error.
func (r *Registry) Resolve(typeString string) (Func, error) {
	category, subtype, found := strings.Cut(typeString, "/")
	if !found {
		return nil, fmt.Errorf("%q: %w", typeString, ErrMalformedType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.categories[category]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typeString, ErrUnknownType)
	}
	fn, ok := h.subtypes[subtype]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typeString, ErrUnknownType)
	}
	return fn, nil
}

// Types returns every registered type string, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var types []string
	for category, h := range r.categories {
		for subtype := range h.subtypes {
			types = append(types, category+"/"+subtype)
		}
	}
	return types
}
