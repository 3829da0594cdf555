package httpserver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/temporal"
)

// Pagination constants.
const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// batchResponse is the 207 body of an operation where some entries failed.
type batchResponse struct {
	Error    string                  `json:"error"`
	Failures []temporal.EntryFailure `json:"failures"`
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
	TotalCount    int64  `json:"total_count"`
}

func newListResponse[T any](items []T, offset, limit int, total int64) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{
		Items:         items,
		NextPageToken: encodeHTTPPageToken(offset, limit, int(total)),
		TotalCount:    total,
	}
}

// entryFailures flattens the failures of a batch for a response body.
func entryFailures(batch *domain.BatchError) []temporal.EntryFailure {
	out := make([]temporal.EntryFailure, len(batch.Failures))
	for i, f := range batch.Failures {
		out[i] = temporal.EntryFailure{
			Index: f.Index,
			Key:   f.Key,
			Title: f.Title,
			Kind:  domain.ErrorKind(f.Err),
			Error: f.Err.Error(),
		}
	}
	return out
}

// writeDomainError maps domain and temporal errors to HTTP status codes and
// writes a JSON error response. Messages of typed domain errors are returned
// as is; anything unexpected becomes a bare 500.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	// A batch unwraps to its entry errors, so it must be matched first.
	var batch *domain.BatchError
	if errors.As(err, &batch) {
		writeJSON(w, http.StatusMultiStatus, batchResponse{
			Error:    fmt.Sprintf("%d entries failed", len(batch.Failures)),
			Failures: entryFailures(batch),
		})
		return
	}

	kind := domain.ErrorKind(err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: kind})
	case errors.Is(err, domain.ErrInvalidInput):
		resp := errorResponse{Error: "invalid input", Kind: kind}
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			resp.Error = ve.Error()
			resp.Field = ve.Field
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, domain.ErrTypeMismatch), errors.Is(err, domain.ErrBusinessRule):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: kind})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: kind})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "job already started")
	case errors.Is(err, temporal.ErrConnectionFailed), errors.Is(err, temporal.ErrClientClosed):
		writeError(w, http.StatusServiceUnavailable, "job service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseID parses a positive integer id, writing a 400 error response if it is
// not one.
func parseID(w http.ResponseWriter, s, fieldName string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", fieldName))
		return 0, false
	}
	return id, true
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
		return 0, false
	}
	return v, true
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
