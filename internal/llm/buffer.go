package llm

const (
	MaxRequestBytes  = 12 * 1024
	MaxResponseBytes = 16 * 1024
)

// EncodeRequestBounded encodes history into a request that fits within
// MaxRequestBytes, evicting the oldest turns first when it doesn't.
// The current user turn (the most recent user turn) and the pending
// tool-result turns after it are never evicted: dropping any of them
// would produce a request the vendor cannot answer.
func EncodeRequestBounded(v Vendor, model, systemPrompt string, history []Turn, tools []ToolDefinition, maxTokens int) ([]byte, bool, error) {
	protected := 1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			protected = len(history) - i
			break
		}
	}
	if protected > len(history) {
		protected = len(history)
	}

	working := history
	evicted := false
	for {
		body, err := EncodeRequest(v, model, systemPrompt, working, tools, maxTokens)
		if err != nil {
			return nil, evicted, err
		}
		if len(body) <= MaxRequestBytes || len(working) <= protected {
			return body, evicted, nil
		}
		// Drop the oldest turn outside the protected trailing window.
		working = append([]Turn{}, working[1:]...)
		evicted = true
	}
}

// ErrTruncatedResponse is returned by Client.send when the vendor's
// response exceeds MaxResponseBytes; Complete reports it as an
// ErrTruncated reply.
type ErrTruncatedResponse struct{}

func (ErrTruncatedResponse) Error() string { return "llm: response exceeded bounded buffer" }
