package bibliometrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(cfg HTTPClientConfig) *HTTPClient {
	cfg.RateLimit = 1000
	cfg.BurstSize = 100
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewHTTPClient(cfg)
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{})
	assert.Equal(t, 30*time.Second, c.client.Timeout)
	assert.Equal(t, "Helixir-Registry/1.0", c.config.UserAgent)
	assert.Equal(t, 3, c.config.MaxRetries)
	assert.Equal(t, time.Second, c.config.RetryDelay)
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestHTTPClient_Headers(t *testing.T) {
	var ua, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua, key = r.Header.Get("User-Agent"), r.Header.Get("X-ELS-APIKey")
	}))
	defer server.Close()

	c := fastClient(HTTPClientConfig{UserAgent: "TestAgent/2.0", APIKey: "secret", APIKeyHeader: "X-ELS-APIKey"})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "TestAgent/2.0", ua)
	assert.Equal(t, "secret", key)
}

func TestHTTPClient_Retries(t *testing.T) {
	t.Run("retries 429 and 5xx then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				_, _ = w.Write([]byte("ok"))
			}
		}))
		defer server.Close()

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := fastClient(HTTPClientConfig{}).Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, err := fastClient(HTTPClientConfig{MaxRetries: 2}).Do(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exhausted after 3 attempts")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := fastClient(HTTPClientConfig{}).Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("rewinds the body", func(t *testing.T) {
		var bodies []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(strings.Builder)
			_, _ = io.Copy(buf, r.Body)
			bodies = append(bodies, buf.String())
			if len(bodies) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer server.Close()

		req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
		resp, err := fastClient(HTTPClientConfig{}).Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, []string{"payload", "payload"}, bodies)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := fastClient(HTTPClientConfig{}).Do(req)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHTTPClient_RetryDelay(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{RetryDelay: 2 * time.Second})
	resp := func(v string) *http.Response {
		r := &http.Response{Header: http.Header{}}
		if v != "" {
			r.Header.Set("Retry-After", v)
		}
		return r
	}
	assert.Equal(t, 2*time.Second, c.retryDelay(resp("")))
	assert.Equal(t, 7*time.Second, c.retryDelay(resp("7")))
	assert.Equal(t, 2*time.Second, c.retryDelay(resp("garbage")))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := c.retryDelay(resp(future))
	assert.Greater(t, d, 50*time.Second)
}
