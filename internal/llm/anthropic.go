package llm

import (
	"encoding/json"
	"fmt"
)

type anthropicContentBlock struct {
	Type string `json:"type"`
	// text block
	Text string `json:"text,omitempty"`
	// tool_use block
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// tool_result block
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

func encodeAnthropicRequest(model, systemPrompt string, history []Turn, tools []ToolDefinition, maxTokens int) ([]byte, error) {
	req := anthropicRequest{Model: model, MaxTokens: maxTokens, System: systemPrompt}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Schema})
	}
	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			req.Messages = append(req.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: turn.Content}},
			})
		case RoleAssistant:
			req.Messages = append(req.Messages, anthropicMessage{
				Role:    "assistant",
				Content: []anthropicContentBlock{{Type: "text", Text: turn.Content}},
			})
		case RoleTool:
			req.Messages = append(req.Messages, anthropicMessage{
				Role: "assistant",
				Content: []anthropicContentBlock{{
					Type: "tool_use", ID: turn.ToolCallID, Name: turn.ToolName, Input: turn.CallArgs,
				}},
			})
			req.Messages = append(req.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type: "tool_result", ToolUseID: turn.ToolCallID, Content: turn.Content,
				}},
			})
		}
	}
	return json.Marshal(req)
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func decodeAnthropicReply(body []byte) (Reply, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if resp.Error != nil {
		kind := ErrInvalidResponse
		switch resp.Error.Type {
		case "authentication_error", "permission_error":
			kind = ErrAuth
		case "rate_limit_error":
			kind = ErrRateLimitedByVendor
		case "overloaded_error", "api_error":
			kind = ErrTransport
		}
		return Reply{Kind: ReplyError, Err: kind}, nil
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return Reply{Kind: ReplyToolCall, ToolCallID: block.ID, ToolName: block.Name, ToolArgs: block.Input}, nil
		}
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return Reply{Kind: ReplyAssistantText, Text: block.Text}, nil
		}
	}
	return Reply{Kind: ReplyError, Err: ErrInvalidResponse}, nil
}
