package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/llm"
	"github.com/fieldmind/core/internal/message"
	"github.com/fieldmind/core/internal/ratelimit"
	"github.com/fieldmind/core/internal/tools"
)

type fakeCompleter struct {
	replies []llm.Reply
	calls   int
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt string, history []llm.Turn, toolDefs []llm.ToolDefinition) (llm.Reply, error) {
	r := f.replies[f.calls]
	if f.calls < len(f.replies)-1 {
		f.calls++
	}
	return r, nil
}

type fakeTools struct {
	handlers map[string]tools.Handler
	calls    int
}

func (f *fakeTools) Lookup(name string) (tools.Handler, bool) {
	h, ok := f.handlers[name]
	return h, ok
}
func (f *fakeTools) DescribeAll() []tools.Definition { return nil }

type fakeHandler struct {
	result string
	calls  *int
}

func (h *fakeHandler) Name() string                 { return "stub" }
func (h *fakeHandler) Description() string          { return "stub" }
func (h *fakeHandler) Schema() json.RawMessage      { return json.RawMessage(`{}`) }
func (h *fakeHandler) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	*h.calls = *h.calls + 1
	return h.result, nil
}

type alwaysAllow struct{}

func (alwaysAllow) Admit() (ratelimit.Decision, string) { return ratelimit.Allow, "" }

type alwaysDeny struct{}

func (alwaysDeny) Admit() (ratelimit.Decision, string) { return ratelimit.Deny, "hourly quota reached" }

func TestDirectReply(t *testing.T) {
	completer := &fakeCompleter{replies: []llm.Reply{{Kind: llm.ReplyAssistantText, Text: "Hi!"}}}
	a := New(completer, &fakeTools{}, alwaysAllow{}, zap.NewNop())

	out := a.Process(context.Background(), message.New("hello", message.OriginLocal))
	require.Equal(t, "Hi!", out)
	require.Equal(t, 2, a.History.Len())
}

func TestSingleToolCall(t *testing.T) {
	calls := 0
	handler := &fakeHandler{result: "GPIO 5 = HIGH", calls: &calls}
	completer := &fakeCompleter{replies: []llm.Reply{
		{Kind: llm.ReplyToolCall, ToolCallID: "1", ToolName: "gpio_set", ToolArgs: json.RawMessage(`{"pin":5,"level":1}`)},
		{Kind: llm.ReplyAssistantText, Text: "Done"},
	}}
	ft := &fakeTools{handlers: map[string]tools.Handler{"gpio_set": handler}}
	a := New(completer, ft, alwaysAllow{}, zap.NewNop())

	out := a.Process(context.Background(), message.New("set gpio 5 high", message.OriginLocal))
	require.Equal(t, "Done", out)
	require.Equal(t, 1, calls)
	require.Equal(t, 3, a.History.Len())
}

func TestIterationCap(t *testing.T) {
	completer := &fakeCompleter{replies: []llm.Reply{
		{Kind: llm.ReplyToolCall, ToolCallID: "1", ToolName: "get_health"},
	}}
	calls := 0
	handler := &fakeHandler{result: "ok", calls: &calls}
	ft := &fakeTools{handlers: map[string]tools.Handler{"get_health": handler}}
	a := New(completer, ft, alwaysAllow{}, zap.NewNop())

	out := a.Process(context.Background(), message.New("loop forever", message.OriginLocal))
	require.Equal(t, "Reached iteration limit; stopping.", out)
	require.Equal(t, MaxToolIterations, calls)
}

func TestUnknownToolProducesToolTurnNotAbort(t *testing.T) {
	completer := &fakeCompleter{replies: []llm.Reply{
		{Kind: llm.ReplyToolCall, ToolCallID: "1", ToolName: "nope"},
		{Kind: llm.ReplyAssistantText, Text: "ok"},
	}}
	a := New(completer, &fakeTools{}, alwaysAllow{}, zap.NewNop())
	out := a.Process(context.Background(), message.New("x", message.OriginLocal))
	require.Equal(t, "ok", out)
}

func TestRateLimitedDenial(t *testing.T) {
	completer := &fakeCompleter{replies: []llm.Reply{{Kind: llm.ReplyAssistantText, Text: "unused"}}}
	a := New(completer, &fakeTools{}, alwaysDeny{}, zap.NewNop())
	out := a.Process(context.Background(), message.New("x", message.OriginLocal))
	require.Contains(t, out, "Quota reached")
	require.Equal(t, 0, a.History.Len())
}

func TestHistoryCapsAtTwelve(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 20; i++ {
		h.Append(llm.Turn{Role: llm.RoleUser, Content: "x"})
	}
	require.Equal(t, MaxHistoryTurns, h.Len())
}
