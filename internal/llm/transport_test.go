package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHistory() []Turn {
	return []Turn{
		{Role: RoleUser, Content: "set gpio 5 high"},
	}
}

func TestEncodeRequestPerVendor(t *testing.T) {
	tools := []ToolDefinition{{Name: "gpio_set", Description: "set a pin", Schema: json.RawMessage(`{"type":"object"}`)}}

	for _, v := range []Vendor{VendorAnthropic, VendorOpenAI, VendorOpenRouter} {
		body, err := EncodeRequest(v, "model-x", "sys", sampleHistory(), tools, 512)
		require.NoError(t, err, v)
		require.NotEmpty(t, body)
	}
}

func TestDecodeAnthropicToolUse(t *testing.T) {
	body := []byte(`{"content":[{"type":"tool_use","id":"call_1","name":"gpio_set","input":{"pin":5,"level":1}}]}`)
	reply, err := decodeAnthropicReply(body)
	require.NoError(t, err)
	require.Equal(t, ReplyToolCall, reply.Kind)
	require.Equal(t, "gpio_set", reply.ToolName)
	require.Equal(t, "call_1", reply.ToolCallID)
}

func TestDecodeOpenAIToolCall(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_2","type":"function","function":{"name":"gpio_set","arguments":"{\"pin\":5,\"level\":1}"}}]}}]}`)
	reply, err := decodeOpenAIReply(body)
	require.NoError(t, err)
	require.Equal(t, ReplyToolCall, reply.Kind)
	require.Equal(t, "gpio_set", reply.ToolName)
}

func TestDecodeAssistantTextBothVendors(t *testing.T) {
	a, err := decodeAnthropicReply([]byte(`{"content":[{"type":"text","text":"Hi!"}]}`))
	require.NoError(t, err)
	require.Equal(t, ReplyAssistantText, a.Kind)
	require.Equal(t, "Hi!", a.Text)

	o, err := decodeOpenAIReply([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi!"}}]}`))
	require.NoError(t, err)
	require.Equal(t, ReplyAssistantText, o.Kind)
	require.Equal(t, "Hi!", o.Text)
}

func TestEncodeRequestBoundedPreservesCurrentTurn(t *testing.T) {
	var history []Turn
	for i := 0; i < 500; i++ {
		history = append(history, Turn{Role: RoleUser, Content: "filler filler filler filler filler filler filler"})
	}
	history = append(history, Turn{Role: RoleUser, Content: "current turn"})

	body, evicted, err := EncodeRequestBounded(VendorOpenAI, "m", "sys", history, nil, 512)
	require.NoError(t, err)
	require.True(t, evicted)
	require.LessOrEqual(t, len(body), MaxRequestBytes)
	require.Contains(t, string(body), "current turn")
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	d1 := backoffDelay(1)
	d3 := backoffDelay(3)
	require.Greater(t, d3, d1/2) // jitter tolerant, but order of magnitude must grow
}
