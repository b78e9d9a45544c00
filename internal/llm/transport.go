package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxRetries    = 3
	backoffBase   = 1 * time.Second
	backoffFactor = 2
	jitterFrac    = 0.25

	DefaultCallTimeout = 30 * time.Second
)

// Config selects and authenticates a vendor at startup; VendorProfile
// is chosen once and held for the process lifetime.
type Config struct {
	Vendor      Vendor
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	CallTimeout time.Duration
	// RatePerSecond paces outbound calls to this vendor; zero disables
	// pacing (the local admission limiter in internal/ratelimit is the
	// primary guard, this is a secondary smoothing layer).
	RatePerSecond float64
}

// Client is the vendor-agnostic transport. It wraps a single vendor's
// HTTP endpoint behind retry/backoff, a circuit breaker (adapted from
// a multi-provider failover design — this runtime only ever has one
// active vendor, so the breaker fails fast and recovers instead of
// switching providers), and call pacing.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	settings := gobreaker.Settings{
		Name:        "llm-" + string(cfg.Vendor),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.CallTimeout},
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		limiter: limiter,
	}
}

// Complete performs one vendor round trip: encode, send with retry,
// decode. It never mutates history — eviction for the bounded request
// buffer happens on a local copy and is invisible to the caller.
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []Turn, tools []ToolDefinition) (Reply, error) {
	body, _, err := EncodeRequestBounded(c.cfg.Vendor, c.cfg.Model, systemPrompt, history, tools, c.cfg.MaxTokens)
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Reply{}, err
			}
		}

		respBody, err := c.breaker.Execute(func() ([]byte, error) {
			return c.send(ctx, body)
		})
		if err != nil {
			lastErr = err
			var trunc ErrTruncatedResponse
			if errors.As(err, &trunc) {
				return Reply{Kind: ReplyError, Err: ErrTruncated}, nil
			}
			if !retryable(err) {
				return Reply{Kind: ReplyError, Err: ErrTransport}, nil
			}
			c.logger.Warn("llm call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		reply, err := DecodeReply(c.cfg.Vendor, respBody)
		if err != nil {
			return Reply{}, fmt.Errorf("decode reply: %w", err)
		}
		if reply.Kind == ReplyError && (reply.Err == ErrTransport || reply.Err == ErrRateLimitedByVendor) && attempt < maxRetries {
			lastErr = fmt.Errorf("vendor reported %s", reply.Err)
			continue
		}
		return reply, nil
	}
	return Reply{Kind: ReplyError, Err: ErrTransport}, lastErr
}

func (c *Client) send(ctx context.Context, body []byte) ([]byte, error) {
	url := Endpoint(c.cfg.Vendor, c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	name, value := AuthHeader(c.cfg.Vendor, c.cfg.APIKey)
	if name != "" {
		req.Header.Set(name, value)
	}
	for k, v := range ExtraHeaders(c.cfg.Vendor) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportErr{cause: err}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &transportErr{cause: err}
	}
	if len(data) > MaxResponseBytes {
		return nil, ErrTruncatedResponse{}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &vendorStatusErr{status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return nil, &transportErr{cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		// Fatal for this turn: auth or other 4xx. Decode anyway so the
		// vendor's structured error (auth vs invalid request) surfaces.
		return data, nil
	}
	return data, nil
}

type transportErr struct{ cause error }

func (e *transportErr) Error() string { return "llm transport: " + e.cause.Error() }
func (e *transportErr) Unwrap() error { return e.cause }

type vendorStatusErr struct{ status int }

func (e *vendorStatusErr) Error() string { return fmt.Sprintf("llm transport: vendor status %d", e.status) }

func retryable(err error) bool {
	var te *transportErr
	if errors.As(err, &te) {
		return true
	}
	var ve *vendorStatusErr
	if errors.As(err, &ve) {
		return ve.status == http.StatusTooManyRequests
	}
	return false
}

// backoffDelay computes the exponential backoff with ±25% jitter for
// retry attempt n (1-indexed).
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
	}
	jitter := (rand.Float64()*2 - 1) * jitterFrac
	return time.Duration(float64(d) * (1 + jitter))
}
