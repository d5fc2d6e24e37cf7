package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RetryPolicy is the transport's retry behavior as one inspectable
// value: how often a request is attempted, how the delay between
// attempts grows, how long a single attempt may take, and which
// response statuses are worth retrying.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	RequestTimeout time.Duration
	RetryStatuses  []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		BackoffBase:    500 * time.Millisecond,
		RequestTimeout: 15 * time.Second,
		RetryStatuses:  []int{500, 502, 503, 504},
	}
}

// withDefaults fills unset fields so a partially configured policy
// still behaves.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = def.BackoffBase
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	if p.RetryStatuses == nil {
		p.RetryStatuses = def.RetryStatuses
	}
	return p
}

// delay is the wait before the given retry attempt (1-based): the base
// doubled for each attempt after the first.
func (p RetryPolicy) delay(attempt int) time.Duration {
	return p.BackoffBase << (attempt - 1)
}

func (p RetryPolicy) retryableStatus(code int) bool {
	for _, s := range p.RetryStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// ErrUnauthorized is returned when the controller rejects the agent's
// token. The runner reacts by re-registering.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response that is not worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Transport is the agent's HTTP client. It holds an ordered list of
// controller endpoints and fails over to the next one only when a
// connection cannot be established at all. Timeouts and HTTP-level
// failures, including 5xx, stay on the current endpoint: they are
// per-request signals, not evidence the endpoint is down.
type Transport struct {
	endpoints []string
	client    *http.Client
	policy    RetryPolicy

	mu      sync.RWMutex
	current int
	token   string
}

// NewTransport builds a client over the given endpoints, tried in
// order. insecureSkipVerify disables TLS certificate verification for
// controllers running on self-signed certificates.
func NewTransport(endpoints []string, insecureSkipVerify bool, policy RetryPolicy) *Transport {
	trimmed := make([]string, len(endpoints))
	for i, e := range endpoints {
		trimmed[i] = strings.TrimRight(e, "/")
	}

	policy = policy.withDefaults()
	client := &http.Client{Timeout: policy.RequestTimeout}
	if insecureSkipVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Transport{
		endpoints: trimmed,
		client:    client,
		policy:    policy,
	}
}

// Policy returns the retry policy the transport runs with.
func (t *Transport) Policy() RetryPolicy {
	return t.policy
}

// SetToken installs the bearer token used for all subsequent requests.
func (t *Transport) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *Transport) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// Endpoint returns the endpoint requests currently go to.
func (t *Transport) Endpoint() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endpoints[t.current]
}

func (t *Transport) advanceEndpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = (t.current + 1) % len(t.endpoints)
	return t.endpoints[t.current]
}

// Do sends one JSON request and decodes the response into out (which
// may be nil). Connection failures rotate to the next endpoint and
// retry; retryable server statuses back off on the same endpoint.
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < t.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(t.policy.delay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retry, err := t.doOnce(ctx, method, path, encoded, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("request failed after %d attempts: %w", t.policy.MaxAttempts, lastErr)
}

func (t *Transport) doOnce(ctx context.Context, method, path string, body []byte, out any) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.Endpoint()+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := t.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if isTimeout(err) {
			// A slow answer is not a dead endpoint. Retry where we are.
			slog.Warn("Request timed out, will retry", "endpoint", t.Endpoint(), "path", path)
			return true, err
		}
		if len(t.endpoints) > 1 {
			next := t.advanceEndpoint()
			slog.Warn("Endpoint unreachable, failing over", "error", err, "next_endpoint", next)
		} else {
			slog.Warn("Endpoint unreachable", "error", err)
		}
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, ErrUnauthorized
	case t.policy.retryableStatus(resp.StatusCode):
		slog.Warn("Server error, will retry", "status", resp.StatusCode, "path", path)
		return true, &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	case resp.StatusCode >= 400:
		return false, &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return false, nil
}

// isTimeout reports whether the request died waiting rather than
// failing to connect. http.Client surfaces its own Timeout through a
// url.Error that satisfies net.Error.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(data)
}
