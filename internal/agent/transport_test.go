package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy keeps retry waits negligible in tests.
func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BackoffBase: time.Millisecond}
}

func TestDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL}, false, fastPolicy())

	var out map[string]string
	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
}

func TestDoSendsBearerToken(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL}, false, fastPolicy())
	transport.SetToken("nt_secret")

	err := transport.Do(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer nt_secret", got)
}

func TestDoFailsOverOnConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Port 1 refuses connections, so the first attempt must rotate to
	// the live endpoint.
	transport := NewTransport([]string{"http://127.0.0.1:1", server.URL}, false, fastPolicy())

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, transport.Endpoint())
}

func TestDoTimeoutStaysOnEndpoint(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	transport := NewTransport([]string{slow.URL, "http://backup.invalid"}, false, RetryPolicy{
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
	})

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.Equal(t, slow.URL, transport.Endpoint(), "a slow endpoint is not a dead endpoint")
}

func TestDoSingleEndpointNeverRotates(t *testing.T) {
	transport := NewTransport([]string{"http://127.0.0.1:1"}, false, RetryPolicy{
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
	})

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "http://127.0.0.1:1", transport.Endpoint())
}

func TestDoRetriesServerErrorsOnSameEndpoint(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL, "http://127.0.0.1:1"}, false, fastPolicy())

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, server.URL, transport.Endpoint(), "5xx must not trigger failover")
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL}, false, fastPolicy())

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(transport.Policy().MaxAttempts), calls.Load())
}

func TestDoNonRetryableServerStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer server.Close()

	policy := fastPolicy()
	policy.RetryStatuses = []int{http.StatusServiceUnavailable}
	transport := NewTransport([]string{server.URL}, false, policy)

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "statuses outside the policy set are not retried")
}

func TestDoUnauthorizedNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL}, false, fastPolicy())

	err := transport.Do(context.Background(), http.MethodGet, "/health", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoClientErrorSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "node not found"})
	}))
	defer server.Close()

	transport := NewTransport([]string{server.URL}, false, fastPolicy())

	err := transport.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "node not found", apiErr.Message)
}

func TestDoContextCancelled(t *testing.T) {
	transport := NewTransport([]string{"http://127.0.0.1:1"}, false, fastPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transport.Do(ctx, http.MethodGet, "/health", nil, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 500*time.Millisecond, policy.delay(1))
	assert.Equal(t, time.Second, policy.delay(2))
	assert.Equal(t, 2*time.Second, policy.delay(3))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 7}.withDefaults()

	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.BackoffBase)
	assert.Equal(t, 15*time.Second, policy.RequestTimeout)
	assert.Equal(t, []int{500, 502, 503, 504}, policy.RetryStatuses)
}
