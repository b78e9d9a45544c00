// Package tools implements the tool registry and the mandatory
// built-in handlers: GPIO, I2C scan, memory, scheduling, system
// introspection, and user-defined tool lifecycle management.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/fieldmind/core/internal/apperrors"
)

const (
	ResultBufferBytes = 512
	HandlerDeadline   = 2 * time.Second
	MaxUserTools      = 16
)

// Handler is the common contract every tool satisfies: consume a JSON
// argument object, produce a short textual result.
type Handler interface {
	Name() string
	Description() string
	// Schema returns the JSON schema for the tool's input object.
	Schema() json.RawMessage
	Handle(ctx context.Context, input json.RawMessage) (string, error)
}

// Definition is the LLM-facing manifest entry for one tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// Registry is the name → handler map. Built-ins are immutable; a
// late-bound overlay of user-defined tools is loaded from the store at
// startup and mutated via create_tool/delete_user_tool.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Handler
	user     map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[string]Handler),
		user:     make(map[string]Handler),
	}
}

// RegisterBuiltin adds an immutable built-in tool. Panics on duplicate
// name — built-ins are wired once at startup, a collision there is a
// programming error, not a runtime condition.
func (r *Registry) RegisterBuiltin(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[h.Name()]; exists {
		panic("tools: duplicate built-in " + h.Name())
	}
	r.builtins[h.Name()] = h
}

// ErrDuplicateName is returned by RegisterUser when name collides with
// an existing tool and replace was not requested.
var ErrDuplicateName = fmt.Errorf("tools: duplicate name")

// ErrImmutable is returned when a caller attempts to remove or replace
// a built-in tool.
var ErrImmutable = fmt.Errorf("tools: built-in is immutable")

// RegisterUser installs or replaces a user-defined tool. Registration
// is idempotent by name: a duplicate replaces description+action only
// when replace is true, otherwise it fails ErrDuplicateName.
func (r *Registry) RegisterUser(h Handler, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, isBuiltin := r.builtins[h.Name()]; isBuiltin {
		return ErrImmutable
	}
	if _, exists := r.user[h.Name()]; exists && !replace {
		return ErrDuplicateName
	}
	r.user[h.Name()] = h
	return nil
}

// RemoveUser deletes a user-defined tool from the in-memory overlay.
func (r *Registry) RemoveUser(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, isBuiltin := r.builtins[name]; isBuiltin {
		return ErrImmutable
	}
	delete(r.user, name)
	return nil
}

// Lookup resolves a tool by exact name, checking built-ins first.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.builtins[name]; ok {
		return h, true
	}
	h, ok := r.user[name]
	return h, ok
}

// DescribeAll builds the LLM tool-manifest for the current registry
// state: built-ins plus whatever user tools are presently registered.
func (r *Registry) DescribeAll() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.builtins)+len(r.user))
	for _, h := range r.builtins {
		defs = append(defs, Definition{Name: h.Name(), Description: h.Description(), Schema: h.Schema()})
	}
	for _, h := range r.user {
		defs = append(defs, Definition{Name: h.Name(), Description: h.Description(), Schema: h.Schema()})
	}
	return defs
}

// Execute runs a tool's handler under the soft handler deadline and
// truncates the result to ResultBufferBytes. Unknown tool names are the
// caller's responsibility to detect via Lookup first; Execute itself
// assumes h is non-nil.
func Execute(ctx context.Context, h Handler, input json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, HandlerDeadline)
	defer cancel()

	result, err := h.Handle(ctx, input)
	if err != nil {
		return "", err
	}
	return truncateResult(result), nil
}

func truncateResult(s string) string {
	if len(s) <= ResultBufferBytes {
		return s
	}
	const marker = "…"
	cut := ResultBufferBytes - len(marker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + marker
}

func validToolName(name string) error {
	if !toolNamePattern.MatchString(name) {
		return apperrors.Validation("name", "must be 1-32 chars of [A-Za-z0-9_]")
	}
	return nil
}
