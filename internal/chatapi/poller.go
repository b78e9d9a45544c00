// Package chatapi implements the long-poll chat ingest and the egress
// sender, grounded on the original firmware's Telegram
// getUpdates/sendMessage long-poll loop but built on net/http instead
// of the vendored HTTP client the device used — and on raw net/http
// rather than the go-telegram-bot-api library's GetUpdatesChan, since
// that library drives its own offset and cannot express the
// flush-on-boot replay-suppression sequence this component requires.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/message"
)

const (
	maxResponseBytes = 4096
	pollTimeoutSecs  = 30

	backoffBaseSecs = 5
	backoffMaxSecs  = 300

	// maxExactJSONInt is 2^53, the largest magnitude a float64 JSON
	// number holds exactly.
	maxExactJSONInt = int64(1) << 53
)

// State is the persisted poller state.
type State struct {
	LastSeenUpdateID int64
	AuthorisedChatID int64
}

// StateStore is the subset of *store.Store the poller needs, scoped to
// avoid importing the store package's namespace constants here.
type StateStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Poller long-polls the chat API's getUpdates endpoint, suppressing
// replay of anything queued before boot, and recovers from truncated
// bodies by scanning for the highest update_id rather than reprocessing.
type Poller struct {
	BaseURL string // e.g. https://api.telegram.org/bot<token>
	HTTP    *http.Client
	Logger  *zap.Logger
	Store   StateStore

	lastSeenUpdateID int64
	authorisedChatID int64
	allowList        map[int64]bool
	failures         int
}

// SetAllowList installs a set of additional chat ids accepted alongside
// authorisedChatID, for a household or workshop running more than one
// authorised device/operator against one bot token. The list widens
// the gate only while authorisedChatID is non-zero. An empty or nil
// list leaves the single-chat gate unchanged.
func (p *Poller) SetAllowList(ids []int64) {
	if len(ids) == 0 {
		p.allowList = nil
		return
	}
	p.allowList = make(map[int64]bool, len(ids))
	for _, id := range ids {
		p.allowList[id] = true
	}
}

func (p *Poller) chatAuthorised(chatID int64) bool {
	if chatID == p.authorisedChatID {
		return true
	}
	return p.allowList != nil && p.allowList[chatID]
}

const stateKey = "last_id"
const chatIDKey = "chat_id"

func NewPoller(baseURL string, authorisedChatID int64, store StateStore, logger *zap.Logger) *Poller {
	p := &Poller{
		BaseURL:          baseURL,
		HTTP:             &http.Client{Timeout: time.Duration(pollTimeoutSecs+10) * time.Second},
		Logger:           logger,
		Store:            store,
		authorisedChatID: authorisedChatID,
	}
	if authorisedChatID != 0 {
		// Persist the constructor-supplied chat id so a later boot that
		// re-derives it some other way can fall back to what was last
		// seen working.
		_ = p.Store.Put(chatIDKey, []byte(fmt.Sprintf("%d", authorisedChatID)))
	} else if raw, err := p.Store.Get(chatIDKey); err == nil {
		var id int64
		if _, err := fmt.Sscanf(string(raw), "%d", &id); err == nil {
			p.authorisedChatID = id
		}
	}
	return p
}

// Flush runs the two-step startup sequence: peek the single most
// recent pending update to discover the highest pending id, then
// acknowledge everything up to and including it. It must run exactly
// once at startup if no last-seen-update-id was persisted.
func (p *Poller) Flush(ctx context.Context) error {
	peek, err := p.getUpdates(ctx, -1, 1, 0)
	if err != nil {
		return fmt.Errorf("flush peek: %w", err)
	}
	highest := int64(0)
	for _, u := range peek {
		if u.UpdateID > highest {
			highest = u.UpdateID
		}
	}
	if highest == 0 {
		p.lastSeenUpdateID = 0
		return p.persist()
	}
	if _, err := p.getUpdates(ctx, highest+1, 1, 0); err != nil {
		return fmt.Errorf("flush confirm: %w", err)
	}
	p.lastSeenUpdateID = highest
	return p.persist()
}

func (p *Poller) persist() error {
	return p.Store.Put(stateKey, []byte(fmt.Sprintf("%d", p.lastSeenUpdateID)))
}

// LoadState restores the poller's persisted last-seen-update-id; it
// returns hadState=false if none was ever persisted (fresh boot).
func (p *Poller) LoadState() (hadState bool, err error) {
	raw, err := p.Store.Get(stateKey)
	if err != nil {
		return false, nil // treat missing as "no state" for the caller to flush
	}
	var id int64
	if _, err := fmt.Sscanf(string(raw), "%d", &id); err != nil {
		return false, nil
	}
	p.lastSeenUpdateID = id
	return true, nil
}

// PollOnce issues one long-poll and returns the messages that should
// be enqueued. last-seen-update-id is advanced and persisted before
// this call returns, so any crash between enqueue and persist can only
// cause a gap, never a replay — emission happens after the offset that
// would replay that update has already moved on.
func (p *Poller) PollOnce(ctx context.Context) ([]message.Message, error) {
	updates, err := p.getUpdates(ctx, p.lastSeenUpdateID+1, 1, pollTimeoutSecs)
	if err != nil {
		if trunc, ok := err.(*truncatedError); ok {
			if trunc.recoveredID > p.lastSeenUpdateID {
				p.lastSeenUpdateID = trunc.recoveredID
				if perr := p.persist(); perr != nil {
					return nil, perr
				}
			}
			p.failures = 0
			return nil, nil
		}
		p.failures++
		return nil, err
	}
	p.failures = 0

	var out []message.Message
	for _, u := range updates {
		if u.UpdateID > maxExactJSONInt {
			p.Logger.Warn("update_id exceeds 2^53", zap.Int64("update_id", u.UpdateID))
		}
		if u.UpdateID > p.lastSeenUpdateID {
			p.lastSeenUpdateID = u.UpdateID
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		if id := u.Message.Chat.ID; id > maxExactJSONInt || id < -maxExactJSONInt {
			p.Logger.Warn("chat id exceeds 2^53", zap.Int64("chat_id", id))
		}
		if p.authorisedChatID == 0 || !p.chatAuthorised(u.Message.Chat.ID) {
			p.Logger.Info("discarding update from unauthorised chat", zap.Int64("chat_id", u.Message.Chat.ID))
			continue
		}
		text := u.Message.Text
		if len(text) > message.MaxBytes {
			text = text[:message.MaxBytes]
		}
		out = append(out, message.New(text, message.OriginChat))
	}
	if err := p.persist(); err != nil {
		return nil, err
	}
	return out, nil
}

// BackoffDelay returns the sleep duration after the current run of
// consecutive failures.
func (p *Poller) BackoffDelay() time.Duration {
	if p.failures <= 0 {
		return 0
	}
	secs := backoffBaseSecs
	for i := 1; i < p.failures; i++ {
		secs *= 2
		if secs >= backoffMaxSecs {
			secs = backoffMaxSecs
			break
		}
	}
	return time.Duration(secs) * time.Second
}

type truncatedError struct {
	recoveredID int64
}

func (e *truncatedError) Error() string { return "chatapi: response truncated" }

func (p *Poller) getUpdates(ctx context.Context, offset int64, limit, timeoutSecs int) ([]update, error) {
	body, _ := json.Marshal(map[string]int64{"offset": offset, "limit": int64(limit), "timeout": int64(timeoutSecs)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/getUpdates", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}

	if len(data) > maxResponseBytes {
		if id := extractMaxUpdateID(data[:maxResponseBytes]); id > 0 {
			return nil, &truncatedError{recoveredID: id}
		}
		return nil, fmt.Errorf("chatapi: truncated response, no update_id recoverable")
	}

	var parsed getUpdatesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("chatapi: decode response: %w", err)
	}
	return parsed.Result, nil
}
