// Package scopus reads author metrics from the Elsevier Scopus Author
// Retrieval API.
package scopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/domain"
)

const (
	// DefaultBaseURL is the default Scopus API base URL.
	DefaultBaseURL = "https://api.elsevier.com/content"

	// DefaultRateLimit is the default rate limit (2 requests per second).
	DefaultRateLimit = 2.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	apiKeyHeader = "X-ELS-APIKey"
	sourceName   = "Scopus"
)

// Config holds configuration for the Scopus client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	Enabled   bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
}

// Client implements bibliometrics.Source for Scopus.
type Client struct {
	config     Config
	httpClient *bibliometrics.HTTPClient
}

var _ bibliometrics.Source = (*Client)(nil)

// New creates a Scopus client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		httpClient: bibliometrics.NewHTTPClient(bibliometrics.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		}),
	}
}

// NewWithHTTPClient creates a Scopus client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *bibliometrics.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Platform implements bibliometrics.Source.
func (c *Client) Platform() domain.Platform { return domain.PlatformScopus }

// IsEnabled reports whether the source is enabled. Scopus needs an API key.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// FetchIndicator looks the person up by Scopus author id, or by ORCID when
// no Scopus id is known.
func (c *Client) FetchIndicator(ctx context.Context, person domain.Person) (*domain.Indicator, error) {
	var path, id string
	switch {
	case person.ScopusID != "":
		path, id = "/author/author_id/", person.ScopusID
	case person.ORCID != "":
		path, id = "/author/orcid/", person.ORCID
	default:
		return nil, bibliometrics.ErrNoIdentifier
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + path + url.PathEscape(id)
	base.RawQuery = url.Values{"view": {"METRICS"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("scopus author", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var payload RetrievalResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(payload.Authors) == 0 {
		return nil, domain.NewNotFoundError("scopus author", id)
	}

	author := payload.Authors[0]
	hIndex, err := atoi(author.HIndex)
	if err != nil {
		return nil, fmt.Errorf("h-index %q: %w", author.HIndex, err)
	}
	citations, err := atoi(author.CoreData.CitedByCount)
	if err != nil {
		return nil, fmt.Errorf("cited-by-count %q: %w", author.CoreData.CitedByCount, err)
	}
	return &domain.Indicator{HIndex: hIndex, Citations: citations}, nil
}

// atoi parses the numeric strings Scopus returns; empty means zero.
func atoi(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
