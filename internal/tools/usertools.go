package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fieldmind/core/internal/store"
)

// UserTool is the persisted {name, description, action-text} triplet.
type UserTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// UserToolHandler adapts a persisted UserTool into a Handler by
// re-submitting its action-text through RunAction, implemented as a
// callback so this package never imports the agent package that
// actually runs the nested bounded loop.
type UserToolHandler struct {
	Tool      UserTool
	RunAction func(ctx context.Context, actionText string) (string, error)
}

func (h *UserToolHandler) Name() string        { return h.Tool.Name }
func (h *UserToolHandler) Description() string { return h.Tool.Description }
func (h *UserToolHandler) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (h *UserToolHandler) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	return h.RunAction(ctx, h.Tool.Action)
}

// LoadUserTools reads every persisted user tool and installs it into
// reg, wiring each one to runAction. Called once at startup.
func LoadUserTools(reg *Registry, st memoryStore, runAction func(ctx context.Context, actionText string) (string, error)) error {
	entries, err := st.Iterate(store.NamespaceUserTools)
	if err != nil {
		return err
	}
	for _, e := range entries {
		var ut UserTool
		if err := json.Unmarshal(e.Value, &ut); err != nil {
			continue // corrupt slot, skip rather than fail boot
		}
		_ = reg.RegisterUser(&UserToolHandler{Tool: ut, RunAction: runAction}, true)
	}
	return nil
}

func findFreeSlot(st memoryStore) (string, error) {
	entries, err := st.Iterate(store.NamespaceUserTools)
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		used[e.Key] = true
	}
	for i := 0; i < MaxUserTools; i++ {
		slot := strconv.Itoa(i)
		if !used[slot] {
			return slot, nil
		}
	}
	return "", fmt.Errorf("user tool capacity (%d) reached", MaxUserTools)
}

func findSlotByName(st memoryStore, name string) (string, *UserTool, error) {
	entries, err := st.Iterate(store.NamespaceUserTools)
	if err != nil {
		return "", nil, err
	}
	for _, e := range entries {
		var ut UserTool
		if err := json.Unmarshal(e.Value, &ut); err != nil {
			continue
		}
		if ut.Name == name {
			return e.Key, &ut, nil
		}
	}
	return "", nil, nil
}

// CreateToolTool implements create_tool.
type CreateToolTool struct {
	Registry  *Registry
	Store     memoryStore
	RunAction func(ctx context.Context, actionText string) (string, error)
}

func (t *CreateToolTool) Name() string { return "create_tool" }
func (t *CreateToolTool) Description() string {
	return "Define a new user tool: its action-text is re-submitted to the agent whenever the tool is called."
}
func (t *CreateToolTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"description": {"type": "string"},
			"action": {"type": "string"},
			"replace": {"type": "boolean"}
		},
		"required": ["name", "description", "action"]
	}`)
}
func (t *CreateToolTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Action      string `json:"action"`
		Replace     bool   `json:"replace"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := validToolName(in.Name); err != nil {
		return "", err
	}

	existingSlot, _, err := findSlotByName(t.Store, in.Name)
	if err != nil {
		return "", err
	}
	if existingSlot != "" && !in.Replace {
		return "", ErrDuplicateName
	}

	slot := existingSlot
	if slot == "" {
		slot, err = findFreeSlot(t.Store)
		if err != nil {
			return "", err
		}
	}

	ut := UserTool{Name: in.Name, Description: in.Description, Action: in.Action}
	blob, err := json.Marshal(ut)
	if err != nil {
		return "", err
	}
	if err := t.Store.Put(store.NamespaceUserTools, slot, blob); err != nil {
		return "", err
	}
	if err := t.Registry.RegisterUser(&UserToolHandler{Tool: ut, RunAction: t.RunAction}, true); err != nil {
		return "", err
	}
	return fmt.Sprintf("Tool %q created", in.Name), nil
}

// ListUserToolsTool implements list_user_tools.
type ListUserToolsTool struct{ Store memoryStore }

func (t *ListUserToolsTool) Name() string        { return "list_user_tools" }
func (t *ListUserToolsTool) Description() string { return "List all user-defined tools." }
func (t *ListUserToolsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *ListUserToolsTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	entries, err := t.Store.Iterate(store.NamespaceUserTools)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No user-defined tools.", nil
	}
	result := ""
	for i, e := range entries {
		var ut UserTool
		if err := json.Unmarshal(e.Value, &ut); err != nil {
			continue
		}
		if i > 0 {
			result += "; "
		}
		result += fmt.Sprintf("%s: %s", ut.Name, ut.Description)
	}
	return result, nil
}

// DeleteUserToolTool implements delete_user_tool.
type DeleteUserToolTool struct {
	Registry *Registry
	Store    memoryStore
}

func (t *DeleteUserToolTool) Name() string        { return "delete_user_tool" }
func (t *DeleteUserToolTool) Description() string { return "Delete a user-defined tool by name." }
func (t *DeleteUserToolTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
}
func (t *DeleteUserToolTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	slot, ut, err := findSlotByName(t.Store, in.Name)
	if err != nil {
		return "", err
	}
	if ut == nil {
		return fmt.Sprintf("No user tool named %q", in.Name), nil
	}
	if err := t.Store.Delete(store.NamespaceUserTools, slot); err != nil {
		return "", err
	}
	if err := t.Registry.RemoveUser(in.Name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Tool %q deleted", in.Name), nil
}
