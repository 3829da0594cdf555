package scopus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/domain"
)

const metricsResponse = `{
  "author-retrieval-response": [{
    "coredata": {
      "dc:identifier": "AUTHOR_ID:7004212771",
      "document-count": "87",
      "cited-by-count": "2451",
      "citation-count": "3012"
    },
    "h-index": "24"
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := Config{BaseURL: server.URL, APIKey: "test-key", Enabled: true}
	return NewWithHTTPClient(cfg, bibliometrics.NewHTTPClient(bibliometrics.HTTPClientConfig{
		RateLimit:    1000,
		BurstSize:    10,
		MaxRetries:   1,
		RetryDelay:   time.Millisecond,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	}))
}

func TestFetchIndicator_ByScopusID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/author/author_id/7004212771", r.URL.Path)
		assert.Equal(t, "METRICS", r.URL.Query().Get("view"))
		assert.Equal(t, "test-key", r.Header.Get("X-ELS-APIKey"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(metricsResponse))
	})

	ind, err := c.FetchIndicator(context.Background(), domain.Person{ScopusID: "7004212771", ORCID: "0000-0002-1825-0097"})
	require.NoError(t, err)
	assert.Equal(t, 24, ind.HIndex)
	assert.Equal(t, 2451, ind.Citations)
}

func TestFetchIndicator_ByORCID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/author/orcid/0000-0002-1825-0097", r.URL.Path)
		_, _ = w.Write([]byte(metricsResponse))
	})
	_, err := c.FetchIndicator(context.Background(), domain.Person{ORCID: "0000-0002-1825-0097"})
	require.NoError(t, err)
}

func TestFetchIndicator_Errors(t *testing.T) {
	t.Run("no identifier", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := c.FetchIndicator(context.Background(), domain.Person{LastName: "Nobody"})
		assert.ErrorIs(t, err, bibliometrics.ErrNoIdentifier)
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := c.FetchIndicator(context.Background(), domain.Person{ScopusID: "1"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty response", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"author-retrieval-response": []}`))
		})
		_, err := c.FetchIndicator(context.Background(), domain.Person{ScopusID: "1"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unauthorized", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"service-error":{"status":{"statusCode":"AUTHENTICATION_ERROR"}}}`))
		})
		_, err := c.FetchIndicator(context.Background(), domain.Person{ScopusID: "1"})
		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("malformed number", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"author-retrieval-response": [{"h-index": "many"}]}`))
		})
		_, err := c.FetchIndicator(context.Background(), domain.Person{ScopusID: "1"})
		assert.ErrorContains(t, err, "h-index")
	})
}

func TestIsEnabled(t *testing.T) {
	assert.True(t, New(Config{Enabled: true, APIKey: "k"}).IsEnabled())
	assert.False(t, New(Config{Enabled: true}).IsEnabled())
	assert.False(t, New(Config{APIKey: "k"}).IsEnabled())
	assert.Equal(t, domain.PlatformScopus, New(Config{}).Platform())
}
