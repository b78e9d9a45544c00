package agent

import (
	"sync"

	"github.com/fieldmind/core/internal/llm"
)

// MaxHistoryTurns bounds the rolling conversation history. It lives in
// process memory only and is cleared on reboot.
const MaxHistoryTurns = 12

// History is an ordered bounded buffer of turns with oldest-first
// eviction, guarded for the single-writer/occasional-reader access
// pattern of one agent turn at a time.
type History struct {
	mu    sync.Mutex
	turns []llm.Turn
}

func NewHistory() *History {
	return &History{}
}

// Append adds a turn, evicting the oldest turn if the buffer is full.
func (h *History) Append(t llm.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
	if len(h.turns) > MaxHistoryTurns {
		h.turns = h.turns[len(h.turns)-MaxHistoryTurns:]
	}
}

// Snapshot returns a copy of the current turns, safe to hand to the
// transport without risk of a concurrent Append mutating it mid-encode.
func (h *History) Snapshot() []llm.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Reset drops every turn, starting the next Append from empty. Used by
// the conversation-reset directive, which clears context without
// spending an LLM call.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
