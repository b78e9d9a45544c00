// Package agent implements the bounded tool-calling reasoning cycle:
// one inbound message in, zero or more replies and tool side effects
// out, never more than one turn in flight at a time.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/llm"
	"github.com/fieldmind/core/internal/message"
	"github.com/fieldmind/core/internal/ratelimit"
	"github.com/fieldmind/core/internal/tools"
)

// MaxToolIterations is the hard cap on LLM round trips within a single
// inbound-message turn.
const MaxToolIterations = 5

// Completer is the subset of *llm.Client the loop depends on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []llm.Turn, toolDefs []llm.ToolDefinition) (llm.Reply, error)
}

// ToolLookup is the subset of *tools.Registry the loop depends on.
type ToolLookup interface {
	Lookup(name string) (tools.Handler, bool)
	DescribeAll() []tools.Definition
}

// Admitter is the subset of *ratelimit.Limiter the loop depends on.
type Admitter interface {
	Admit() (ratelimit.Decision, string)
}

// State names one node of the per-turn state machine: Idle →
// Admitting → Thinking ⇄ ToolExecuting → Responding → Idle. It exists
// for logging/observability; the loop itself is a plain Go function,
// not a literal state machine object.
type State string

const (
	StateIdle         State = "idle"
	StateAdmitting    State = "admitting"
	StateThinking     State = "thinking"
	StateToolExecuting State = "tool_executing"
	StateResponding   State = "responding"
)

const SystemPrompt = `You are the on-device assistant. Use the available tools when a ` +
	`request requires hardware, memory, scheduling, or system information. ` +
	`Reply with plain text once you have a final answer.`

// ResetDirective is a reserved input line that clears conversation
// history without spending an LLM call, independent of origin channel.
const ResetDirective = "/new"

// ResetReply is returned to the caller in place of running the loop
// when the inbound text is ResetDirective.
const ResetReply = "Conversation reset."

// Agent wires the rate limiter, tool registry, and LLM transport
// together to drive one bounded loop per inbound message.
type Agent struct {
	LLM         Completer
	Tools       ToolLookup
	RateLimiter Admitter
	History     *History
	Logger      *zap.Logger

	SystemPrompt  string
	MaxIterations int
}

func New(llmClient Completer, toolRegistry ToolLookup, limiter Admitter, logger *zap.Logger) *Agent {
	return &Agent{
		LLM:           llmClient,
		Tools:         toolRegistry,
		RateLimiter:   limiter,
		History:       NewHistory(),
		Logger:        logger,
		SystemPrompt:  SystemPrompt,
		MaxIterations: MaxToolIterations,
	}
}

func toolDefinitions(defs []tools.Definition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema}
	}
	return out
}

// Process runs one full inbound message through the bounded loop and
// returns the single reply text to emit to the output channels; every
// branch of the algorithm produces a reply.
func (a *Agent) Process(ctx context.Context, msg message.Message) string {
	if msg.Text == ResetDirective {
		a.History.Reset()
		return ResetReply
	}

	decision, reason := a.RateLimiter.Admit()
	if decision == ratelimit.Deny {
		a.Logger.Info("admission denied", zap.String("reason", reason))
		return "Quota reached, " + reason
	}

	a.History.Append(llm.Turn{Role: llm.RoleUser, Content: msg.Text})
	return a.runLoop(ctx, a.History, a.MaxIterations)
}

// RunUserToolAction re-submits a user-defined tool's action-text as a
// user-level directive inside a fresh bounded loop with its own
// history and its own iteration cap. It is wired as the RunAction
// callback on tools.UserToolHandler.
func (a *Agent) RunUserToolAction(ctx context.Context, actionText string) (string, error) {
	decision, reason := a.RateLimiter.Admit()
	if decision == ratelimit.Deny {
		return "", fmt.Errorf("quota reached, %s", reason)
	}
	sub := NewHistory()
	sub.Append(llm.Turn{Role: llm.RoleUser, Content: actionText})
	return a.runLoop(ctx, sub, a.MaxIterations), nil
}

// runLoop drives the think/act cycle against history, starting from
// whatever is already appended to it.
func (a *Agent) runLoop(ctx context.Context, history *History, maxIterations int) string {
	toolDefs := toolDefinitions(a.Tools.DescribeAll())

	maxIter := maxIterations
	if maxIter <= 0 {
		maxIter = MaxToolIterations
	}

	for iteration := 0; iteration < maxIter; iteration++ {
		reply, err := a.LLM.Complete(ctx, a.SystemPrompt, history.Snapshot(), toolDefs)
		if err != nil {
			a.Logger.Error("llm transport error", zap.Error(err))
			return "LLM unavailable, please try again later."
		}

		switch reply.Kind {
		case llm.ReplyAssistantText:
			history.Append(llm.Turn{Role: llm.RoleAssistant, Content: reply.Text})
			return reply.Text

		case llm.ReplyToolCall:
			result := a.runTool(ctx, reply.ToolName, reply.ToolArgs)
			history.Append(llm.Turn{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: reply.ToolCallID,
				ToolName:   reply.ToolName,
				CallArgs:   reply.ToolArgs,
			})
			continue

		case llm.ReplyError:
			// Retries are already exhausted inside the transport
			// layer; a surfaced Error here means the turn fails now.
			switch reply.Err {
			case llm.ErrAuth:
				return "LLM not configured, please set an API key."
			case llm.ErrRateLimitedByVendor:
				return "LLM vendor is rate-limiting us, please try again shortly."
			default:
				return "LLM unavailable, please try again later."
			}
		}
	}

	final := "Reached iteration limit; stopping."
	history.Append(llm.Turn{Role: llm.RoleAssistant, Content: final})
	return final
}

func (a *Agent) runTool(ctx context.Context, name string, args json.RawMessage) string {
	handler, ok := a.Tools.Lookup(name)
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", name)
	}
	result, err := tools.Execute(ctx, handler, args)
	if err != nil {
		return fmt.Sprintf("Tool %s failed: %s", name, err.Error())
	}
	return result
}
