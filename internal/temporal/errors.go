package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/serviceerror"
)

// Error kinds reported by the jobs client.
var (
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")
	ErrQueryFailed            = errors.New("query failed")
	ErrClientClosed           = errors.New("client closed")
	ErrConnectionFailed       = errors.New("connection failed")
	ErrDeadlineExceeded       = errors.New("deadline exceeded")
)

// TemporalError is a failed jobs client call. Kind is one of the Err*
// values above and is what errors.Is matches against.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	RunID      string
	Err        error
}

func (e *TemporalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Kind)
	switch {
	case e.WorkflowID != "" && e.RunID != "":
		fmt.Fprintf(&b, " [workflowID=%s, runID=%s]", e.WorkflowID, e.RunID)
	case e.WorkflowID != "":
		fmt.Fprintf(&b, " [workflowID=%s]", e.WorkflowID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TemporalError) Unwrap() error { return e.Err }

func (e *TemporalError) Is(target error) bool { return errors.Is(e.Kind, target) }

// wrapTemporalError classifies an SDK error. Anything the server did not
// explain is treated as a connection problem.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}
	return &TemporalError{Op: op, Kind: classify(err), WorkflowID: workflowID, RunID: runID, Err: err}
}

func classify(err error) error {
	var svcErr serviceerror.ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.(type) {
		case *serviceerror.NotFound, *serviceerror.NamespaceNotFound:
			return ErrWorkflowNotFound
		case *serviceerror.WorkflowExecutionAlreadyStarted:
			return ErrWorkflowAlreadyStarted
		case *serviceerror.QueryFailed:
			return ErrQueryFailed
		case *serviceerror.DeadlineExceeded:
			return ErrDeadlineExceeded
		}
		return ErrConnectionFailed
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ErrClientClosed
	}
	return ErrConnectionFailed
}

// IsWorkflowNotFound reports whether err is an unknown job.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted reports whether a job with the same id is running.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}
