package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestWorkflowContext(t *testing.T) {
	t.Run("stores and retrieves workflow IDs", func(t *testing.T) {
		ctx := WithWorkflow(context.Background(), "wf-1", "run-1")

		workflowID, runID := WorkflowFromContext(ctx)
		assert.Equal(t, "wf-1", workflowID)
		assert.Equal(t, "run-1", runID)
	})

	t.Run("returns empty strings when not set", func(t *testing.T) {
		workflowID, runID := WorkflowFromContext(context.Background())
		assert.Empty(t, workflowID)
		assert.Empty(t, runID)
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "first")
	ctx = WithRequestID(ctx, "second")
	assert.Equal(t, "second", RequestIDFromContext(ctx))
}
