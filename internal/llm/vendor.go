package llm

import "fmt"

// EncodeRequest, DecodeReply, and AuthHeader are the three
// per-variant operations named in the design notes. They are modeled
// as a direct switch over Vendor rather than a dispatch table: three
// variants is small enough that a vtable buys nothing but indirection.

func EncodeRequest(v Vendor, model string, systemPrompt string, history []Turn, tools []ToolDefinition, maxTokens int) ([]byte, error) {
	switch v {
	case VendorAnthropic:
		return encodeAnthropicRequest(model, systemPrompt, history, tools, maxTokens)
	case VendorOpenAI, VendorOpenRouter:
		return encodeOpenAIRequest(model, systemPrompt, history, tools, maxTokens)
	default:
		return nil, fmt.Errorf("llm: unknown vendor %q", v)
	}
}

func DecodeReply(v Vendor, body []byte) (Reply, error) {
	switch v {
	case VendorAnthropic:
		return decodeAnthropicReply(body)
	case VendorOpenAI, VendorOpenRouter:
		return decodeOpenAIReply(body)
	default:
		return Reply{}, fmt.Errorf("llm: unknown vendor %q", v)
	}
}

// AuthHeader returns the (name, value) HTTP header pair for vendor.
func AuthHeader(v Vendor, apiKey string) (string, string) {
	switch v {
	case VendorAnthropic:
		return "x-api-key", apiKey
	case VendorOpenAI, VendorOpenRouter:
		return "Authorization", "Bearer " + apiKey
	default:
		return "", ""
	}
}

// Endpoint returns the full request URL for vendor given baseURL (the
// vendor's default if baseURL is empty).
func Endpoint(v Vendor, baseURL string) string {
	switch v {
	case VendorAnthropic:
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return baseURL + "/v1/messages"
	case VendorOpenAI:
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		return baseURL + "/v1/chat/completions"
	case VendorOpenRouter:
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api"
		}
		return baseURL + "/v1/chat/completions"
	default:
		return ""
	}
}

// ExtraHeaders returns vendor-specific headers beyond auth, e.g.
// Anthropic's required API version header.
func ExtraHeaders(v Vendor) map[string]string {
	if v == VendorAnthropic {
		return map[string]string{"anthropic-version": "2023-06-01"}
	}
	return nil
}
