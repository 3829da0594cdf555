// Package openalex reads author metrics from the OpenAlex API.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/domain"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// The polite pool (with mailto) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	openAlexIDPrefix = "https://openalex.org/"
	sourceName       = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	BaseURL string

	// Email is the contact address sent as mailto for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

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

// Client implements bibliometrics.Source for OpenAlex.
type Client struct {
	config     Config
	httpClient *bibliometrics.HTTPClient
}

var _ bibliometrics.Source = (*Client)(nil)

// New creates an OpenAlex client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	ua := "Helixir-Registry/1.0"
	if cfg.Email != "" {
		ua += " (mailto:" + cfg.Email + ")"
	}
	return &Client{
		config: cfg,
		httpClient: bibliometrics.NewHTTPClient(bibliometrics.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: 10,
			UserAgent: ua,
		}),
	}
}

// NewWithHTTPClient creates an OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *bibliometrics.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Platform implements bibliometrics.Source.
func (c *Client) Platform() domain.Platform { return domain.PlatformOpenAlex }

// IsEnabled implements bibliometrics.Source. OpenAlex needs no key.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// FetchIndicator looks the person up by OpenAlex id, or by ORCID.
func (c *Client) FetchIndicator(ctx context.Context, person domain.Person) (*domain.Indicator, error) {
	id := authorKey(person)
	if id == "" {
		return nil, bibliometrics.ErrNoIdentifier
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/authors/" + id
	query := url.Values{"select": {"id,orcid,display_name,works_count,cited_by_count,summary_stats,updated_date"}}
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

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
		return nil, domain.NewNotFoundError("openalex author", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var author Author
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&author); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &domain.Indicator{
		HIndex:    author.SummaryStats.HIndex,
		Citations: author.CitedByCount,
	}, nil
}

// authorKey returns the path segment identifying the person: the bare
// OpenAlex id ("A5023888391") or "orcid:<id>".
func authorKey(p domain.Person) string {
	if id := strings.TrimSpace(p.OpenAlexID); id != "" {
		return strings.TrimPrefix(id, openAlexIDPrefix)
	}
	if orcid := strings.TrimSpace(p.ORCID); orcid != "" {
		return "orcid:" + strings.TrimPrefix(orcid, "https://orcid.org/")
	}
	return ""
}
