// Package llm implements the vendor-agnostic transport: a tagged union
// over {Anthropic, OpenAI, OpenRouter} with retry/backoff, a circuit
// breaker, and rate-paced outbound calls.
package llm

import "encoding/json"

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Turn is one entry of the rolling conversation history. A Role Tool
// turn carries both the call it answers (ToolCallID, ToolName,
// CallArgs) and the result (Content) in a single entry — vendor
// encoders reconstruct the paired assistant tool_use/tool_calls
// message from this metadata at request-build time, so one tool round
// costs one history turn, not two.
type Turn struct {
	Role    Role
	Content string

	// Set when Role == RoleTool: the call this turn is the result of.
	ToolCallID string
	ToolName   string
	CallArgs   json.RawMessage
}

// ToolDefinition is the vendor-agnostic tool-manifest entry.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ReplyKind tags a Reply's variant.
type ReplyKind int

const (
	ReplyAssistantText ReplyKind = iota
	ReplyToolCall
	ReplyError
)

// ErrorKind enumerates the transport-level failure classes.
type ErrorKind string

const (
	ErrTransport           ErrorKind = "transport"
	ErrAuth                ErrorKind = "auth"
	ErrRateLimitedByVendor ErrorKind = "rate_limited_by_vendor"
	ErrInvalidResponse     ErrorKind = "invalid_response"
	ErrTruncated           ErrorKind = "truncated"
)

// Reply is the tagged union a vendor decode produces.
type Reply struct {
	Kind ReplyKind

	// ReplyAssistantText
	Text string

	// ReplyToolCall
	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage

	// ReplyError
	Err ErrorKind
}

// Vendor enumerates the supported LLM vendors.
type Vendor string

const (
	VendorAnthropic  Vendor = "anthropic"
	VendorOpenAI     Vendor = "openai"
	VendorOpenRouter Vendor = "openrouter"
)
