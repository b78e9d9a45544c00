package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldmind/core/internal/store"
)

// memoryStore is the subset of *store.Store the memory tools need.
type memoryStore interface {
	Get(ns store.Namespace, key string) ([]byte, error)
	Put(ns store.Namespace, key string, value []byte) error
	Delete(ns store.Namespace, key string) error
	Iterate(ns store.Namespace) ([]store.Entry, error)
}

type MemoryPutTool struct{ Store memoryStore }

func (t *MemoryPutTool) Name() string        { return "memory_put" }
func (t *MemoryPutTool) Description() string { return "Store a value under a short key for later recall." }
func (t *MemoryPutTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"},"value":{"type":"string"}},"required":["key","value"]}`)
}
func (t *MemoryPutTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.Store.Put(store.NamespaceUserMemory, in.Key, []byte(in.Value)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored %q", in.Key), nil
}

type MemoryGetTool struct{ Store memoryStore }

func (t *MemoryGetTool) Name() string        { return "memory_get" }
func (t *MemoryGetTool) Description() string { return "Recall a previously stored value by key." }
func (t *MemoryGetTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`)
}
func (t *MemoryGetTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	v, err := t.Store.Get(store.NamespaceUserMemory, in.Key)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Sprintf("No value stored for %q", in.Key), nil
		}
		return "", err
	}
	return string(v), nil
}

type MemoryListTool struct{ Store memoryStore }

func (t *MemoryListTool) Name() string        { return "memory_list" }
func (t *MemoryListTool) Description() string { return "List all stored memory keys." }
func (t *MemoryListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *MemoryListTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	entries, err := t.Store.Iterate(store.NamespaceUserMemory)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No stored memory keys.", nil
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return strings.Join(keys, ", "), nil
}

type MemoryDeleteTool struct{ Store memoryStore }

func (t *MemoryDeleteTool) Name() string        { return "memory_delete" }
func (t *MemoryDeleteTool) Description() string { return "Delete a stored memory key." }
func (t *MemoryDeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`)
}
func (t *MemoryDeleteTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.Store.Delete(store.NamespaceUserMemory, in.Key); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %q", in.Key), nil
}
