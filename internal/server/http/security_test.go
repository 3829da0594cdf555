package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/helixir/research-registry-service/internal/bibliometrics"
	"github.com/helixir/research-registry-service/internal/domain"
)

// ---------------------------------------------------------------------------
// TestSQLInjection_PersonName
// ---------------------------------------------------------------------------

// TestSQLInjection_PersonName verifies that SQL injection payloads in names
// and search filters are treated as opaque data: the person is stored with
// the payload verbatim and the search never returns a 500.
func TestSQLInjection_PersonName(t *testing.T) {
	payloads := []struct {
		name  string
		value string
	}{
		{"drop table", "'; DROP TABLE persons; --"},
		{"boolean tautology", "1 OR 1=1"},
		{"union select", "' UNION SELECT * FROM authorships --"},
		{"bobby tables", "Robert'); DROP TABLE students;--"},
		{"nested quotes", "'' OR ''='"},
		{"comment injection", "Lovelace/* comment */"},
		{"stacked queries", "'; EXEC xp_cmdshell('dir'); --"},
		{"batch separator", "Lovelace\nGO\nDROP TABLE publications"},
	}

	for _, tc := range payloads {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.do(t, http.MethodPost, "/api/v1/persons", map[string]string{"last_name": tc.value})
			if rr.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
			}
			var created domain.Person
			if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if created.LastName != strings.TrimSpace(tc.value) && created.LastName != tc.value {
				t.Errorf("expected last name to be stored verbatim as %q, got %q", tc.value, created.LastName)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/persons?name="+url.QueryEscape(tc.value), nil)
			rr = httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(rr, req)
			if rr.Code == http.StatusInternalServerError {
				t.Errorf("payload %q caused a 500 response: %s", tc.value, rr.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestResponseSanitization
// ---------------------------------------------------------------------------

// TestResponseSanitization verifies that internal error details from
// dependencies (driver errors, connection strings, IP addresses) are never
// leaked to the HTTP client.
func TestResponseSanitization(t *testing.T) {
	sensitiveErrors := []struct {
		name      string
		err       error
		forbidden []string
	}{
		{
			name:      "postgres connection refused",
			err:       fmt.Errorf("pgx: connection refused to 10.0.0.5:5432"),
			forbidden: []string{"pgx", "connection refused", "10.0.0.5", "5432"},
		},
		{
			name:      "authentication failure",
			err:       fmt.Errorf("password authentication failed for user \"registry_user\""),
			forbidden: []string{"password", "registry_user", "authentication"},
		},
		{
			name:      "api key in url",
			err:       fmt.Errorf("GET https://api.elsevier.com/content/author?apiKey=0123abcd: EOF"),
			forbidden: []string{"apiKey", "0123abcd", "elsevier"},
		},
		{
			name:      "file path leak",
			err:       fmt.Errorf("open /var/lib/registry/publications/12.pdf: permission denied"),
			forbidden: []string{"/var/lib", "12.pdf"},
		},
		{
			name:      "temporal internal error",
			err:       fmt.Errorf("rpc error: code = Unavailable desc = connection error: desc = \"transport: Error while dialing: dial tcp 10.0.1.20:7233\""),
			forbidden: []string{"10.0.1.20", "7233", "dial tcp", "transport"},
		},
	}

	for _, tc := range sensitiveErrors {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				d.Refresher = refresherFunc(func(context.Context, int64) (*bibliometrics.RefreshReport, error) {
					return nil, tc.err
				})
			})

			rr := env.do(t, http.MethodPost, "/api/v1/persons/1/indicators/refresh", nil)
			responseBody := rr.Body.String()

			if rr.Code != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", rr.Code)
			}
			for _, fragment := range tc.forbidden {
				if strings.Contains(responseBody, fragment) {
					t.Errorf("response body contains sensitive fragment %q: %s", fragment, responseBody)
				}
			}

			var resp map[string]string
			if err := json.NewDecoder(strings.NewReader(responseBody)).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != "internal server error" {
				t.Errorf("expected generic error message, got %q", resp["error"])
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestBodyLimit_Security
// ---------------------------------------------------------------------------

// TestBodyLimit_Security verifies that the JSON body limit is enforced
// precisely at the configured size.
func TestBodyLimit_Security(t *testing.T) {
	env := newTestEnv(t)
	limit := int(env.srv.maxBody)
	frame := `{"last_name":""}`

	body := func(size int) []byte {
		return []byte(`{"last_name":"` + strings.Repeat("a", size-len(frame)) + `"}`)
	}

	t.Run("exactly the limit is read", func(t *testing.T) {
		rr := env.doRaw(t, http.MethodPost, "/api/v1/persons", "application/json", body(limit))
		// The name is longer than allowed, so validation rejects it, but
		// only after the body was read in full.
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("limit plus one is rejected", func(t *testing.T) {
		rr := env.doRaw(t, http.MethodPost, "/api/v1/persons", "application/json", body(limit+1))
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("trailing data after the object is rejected", func(t *testing.T) {
		rr := env.doRaw(t, http.MethodPost, "/api/v1/persons", "application/json",
			[]byte(`{"last_name":"Lovelace"}{"last_name":"Babbage"}`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

// ---------------------------------------------------------------------------
// TestXSSPayload_PublicationTitle
// ---------------------------------------------------------------------------

// TestXSSPayload_PublicationTitle verifies that XSS payloads are safely
// handled in JSON responses. Go's encoding/json escapes HTML characters
// (<, >, &) by default, preventing reflected XSS in JSON.
func TestXSSPayload_PublicationTitle(t *testing.T) {
	xssPayloads := []struct {
		name    string
		title   string
		mustNot []string
	}{
		{"script tag", "<script>alert('xss')</script>", []string{"<script>", "</script>"}},
		{"img onerror", `<img src=x onerror=alert('xss')>`, []string{"<img"}},
		{"svg tag", `<svg/onload=alert('xss')>`, []string{"<svg"}},
		{"iframe injection", `<iframe src="javascript:alert('xss')">`, []string{"<iframe"}},
	}

	for _, tc := range xssPayloads {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.do(t, http.MethodPost, "/api/v1/publications", map[string]any{
				"publication": map[string]any{"kind": "misc_document", "title": tc.title, "details": map[string]any{}},
			})
			if rr.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
			}
			for _, raw := range tc.mustNot {
				if strings.Contains(rr.Body.String(), raw) {
					t.Errorf("response contains unescaped %q: %s", raw, rr.Body.String())
				}
			}

			var snap domain.PublicationSnapshot
			if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if snap.Publication.Title != tc.title {
				t.Errorf("expected title to round-trip as %q, got %q", tc.title, snap.Publication.Title)
			}

			// The HTML export escapes titles too.
			rr = env.do(t, http.MethodGet, "/api/v1/exports?format=html", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			for _, raw := range tc.mustNot {
				if strings.Contains(rr.Body.String(), raw) {
					t.Errorf("html export contains unescaped %q", raw)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestWriteDomainError_NeverLeaksInternalDetails
// ---------------------------------------------------------------------------

// TestWriteDomainError_NeverLeaksInternalDetails checks every mapped error
// class against its status code and verifies unclassified errors carry no
// detail.
func TestWriteDomainError_NeverLeaksInternalDetails(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"not found", domain.NewNotFoundError("person", "7"), http.StatusNotFound, ""},
		{"validation", domain.NewValidationError("title", "is required"), http.StatusBadRequest, ""},
		{"type mismatch", domain.NewTypeMismatchError(domain.TypeBook, domain.TypeThesis), http.StatusUnprocessableEntity, ""},
		{"business rule", domain.NewBusinessRuleError("organization_cycle", "cycle"), http.StatusUnprocessableEntity, ""},
		{"conflict", domain.NewConflictError("person", "7", 3), http.StatusConflict, ""},
		{"already exists", domain.NewAlreadyExistsError("person", "Ada Lovelace"), http.StatusConflict, ""},
		{"rate limited", fmt.Errorf("scopus 10.2.3.4: %w", domain.ErrRateLimited), http.StatusTooManyRequests, "rate limited"},
		{"unavailable", fmt.Errorf("openalex via proxy.internal: %w", domain.ErrServiceUnavailable), http.StatusServiceUnavailable, "service unavailable"},
		{"wrapped internal", fmt.Errorf("query persons: %w", fmt.Errorf("pq: relation \"persons\" does not exist")), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if tc.wantError != "" && resp.Error != tc.wantError {
				t.Errorf("expected error %q, got %q", tc.wantError, resp.Error)
			}
			for _, leak := range []string{"10.2.3.4", "proxy.internal", "pq:", "relation"} {
				if strings.Contains(rr.Body.String(), leak) {
					t.Errorf("response leaks %q: %s", leak, rr.Body.String())
				}
			}
		})
	}
}

func TestWriteDomainError_Batch(t *testing.T) {
	batch := &domain.BatchError{Operation: "import", Failures: []*domain.EntryError{
		{Index: 1, Key: "imitation", Title: "Computing Machinery and Intelligence", Err: domain.NewNotFoundError("journal", "Mind")},
	}}
	rr := httptest.NewRecorder()
	writeDomainError(rr, fmt.Errorf("import: %w", batch))

	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rr.Code)
	}
	var resp batchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].Kind != "not_found" || resp.Failures[0].Key != "imitation" {
		t.Errorf("unexpected failures: %+v", resp.Failures)
	}
}
