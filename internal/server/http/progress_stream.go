package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/research-registry-service/internal/temporal"
)

const (
	// sseQueryInterval is how often the job state is polled.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string              `json:"event_type"`
	JobID     string              `json:"job_id"`
	Job       *temporal.JobStatus `json:"job,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// streamJob handles GET /jobs/{id}/events. It sends the job state every poll
// interval until the job closes.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "background jobs are not configured")
		return
	}
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	status, err := s.deps.Jobs.Job(ctx, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if isClosed(status) {
		sendSSEEvent(w, flusher, closedEvent(jobID, status))
		return
	}
	sendSSEEvent(w, flusher, sseEvent{
		EventType: "stream_started",
		JobID:     jobID,
		Job:       status,
		Timestamp: time.Now(),
	})

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				JobID:     jobID,
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current, pollErr := s.deps.Jobs.Job(ctx, jobID)
			if pollErr != nil {
				logger := s.requestLogger(r)
				logger.Error().Err(pollErr).Str("job_id", jobID).Msg("failed to poll job status")
				continue
			}
			if isClosed(current) {
				sendSSEEvent(w, flusher, closedEvent(jobID, current))
				return
			}
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "progress_update",
				JobID:     jobID,
				Job:       current,
				Timestamp: time.Now(),
			})
		}
	}
}

func isClosed(status *temporal.JobStatus) bool {
	return status.Status != "running"
}

func closedEvent(jobID string, status *temporal.JobStatus) sseEvent {
	eventType := "failed"
	if status.Status == "completed" {
		eventType = "completed"
	}
	return sseEvent{
		EventType: eventType,
		JobID:     jobID,
		Job:       status,
		Message:   "job closed with status: " + status.Status,
		Timestamp: time.Now(),
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
