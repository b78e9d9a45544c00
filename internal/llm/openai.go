package llm

import (
	"encoding/json"
	"fmt"
)

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type openaiRequest struct {
	Model     string           `json:"model"`
	Messages  []openaiMessage  `json:"messages"`
	Tools     []openaiTool     `json:"tools,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

func encodeOpenAIRequest(model, systemPrompt string, history []Turn, tools []ToolDefinition, maxTokens int) ([]byte, error) {
	req := openaiRequest{Model: model, MaxTokens: maxTokens}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: systemPrompt})
	}
	for _, t := range tools {
		ot := openaiTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Schema
		req.Tools = append(req.Tools, ot)
	}
	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			req.Messages = append(req.Messages, openaiMessage{Role: "user", Content: turn.Content})
		case RoleAssistant:
			req.Messages = append(req.Messages, openaiMessage{Role: "assistant", Content: turn.Content})
		case RoleTool:
			call := openaiToolCall{ID: turn.ToolCallID, Type: "function"}
			call.Function.Name = turn.ToolName
			call.Function.Arguments = string(turn.CallArgs)
			req.Messages = append(req.Messages, openaiMessage{Role: "assistant", ToolCalls: []openaiToolCall{call}})
			req.Messages = append(req.Messages, openaiMessage{
				Role: "tool", Content: turn.Content, ToolCallID: turn.ToolCallID, Name: turn.ToolName,
			})
		}
	}
	return json.Marshal(req)
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func decodeOpenAIReply(body []byte) (Reply, error) {
	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode openai response: %w", err)
	}
	if resp.Error != nil {
		kind := ErrInvalidResponse
		switch resp.Error.Type {
		case "invalid_request_error":
			if resp.Error.Code == "invalid_api_key" {
				kind = ErrAuth
			}
		case "authentication_error":
			kind = ErrAuth
		case "rate_limit_error", "insufficient_quota":
			kind = ErrRateLimitedByVendor
		case "server_error", "api_error":
			kind = ErrTransport
		}
		return Reply{Kind: ReplyError, Err: kind}, nil
	}
	if len(resp.Choices) == 0 {
		return Reply{Kind: ReplyError, Err: ErrInvalidResponse}, nil
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		return Reply{
			Kind: ReplyToolCall, ToolCallID: tc.ID, ToolName: tc.Function.Name,
			ToolArgs: json.RawMessage(tc.Function.Arguments),
		}, nil
	}
	return Reply{Kind: ReplyAssistantText, Text: msg.Content}, nil
}
