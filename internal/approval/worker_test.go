package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/booking"
	"github.com/openfleet/ride-booking/internal/metrics"
	"github.com/openfleet/ride-booking/internal/queue"
)

type stubProcessor struct {
	outcome booking.Outcome
	err     error

	processed []string
	exhausted []string
}

func (p *stubProcessor) ProcessApproval(ctx context.Context, msg booking.ApprovalMessage) (booking.Outcome, error) {
	p.processed = append(p.processed, msg.BookingReference)
	return p.outcome, p.err
}

func (p *stubProcessor) MarkProcessingExhausted(ctx context.Context, ref string) {
	p.exhausted = append(p.exhausted, ref)
}

func newTestWorker(proc Processor) *Worker {
	return &Worker{
		proc:    proc,
		metrics: metrics.New(),
		log:     zap.NewNop(),
	}
}

func approvalTask(t *testing.T, ref string) *asynq.Task {
	t.Helper()
	task, err := queue.NewApprovalTask(booking.ApprovalMessage{
		BookingReference: ref,
		BikeID:           "BIKE-0001",
		Date:             "2026-09-14",
		StartTime:        "09:00",
		EndTime:          "10:00",
		UserID:           "rider@example.com",
	})
	require.NoError(t, err)
	return task
}

func TestHandleApproveSuccess(t *testing.T) {
	proc := &stubProcessor{outcome: booking.OutcomeBooked}
	w := newTestWorker(proc)

	err := w.handleApprove(context.Background(), approvalTask(t, "BOOK00000001"))
	require.NoError(t, err)

	assert.Equal(t, []string{"BOOK00000001"}, proc.processed)
	assert.Empty(t, proc.exhausted)
}

func TestHandleApproveUndecodablePayloadSkipsRetry(t *testing.T) {
	proc := &stubProcessor{}
	w := newTestWorker(proc)

	task := asynq.NewTask(queue.TypeBookingApprove, []byte("{not json"))

	err := w.handleApprove(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, proc.processed)
}

func TestHandleApproveTransientErrorRequeues(t *testing.T) {
	proc := &stubProcessor{err: errors.New("connection reset")}
	w := newTestWorker(proc)

	// Outside a running server the context carries no retry metadata, so
	// the failure must be treated as retryable, never as exhausted.
	err := w.handleApprove(context.Background(), approvalTask(t, "BOOK00000002"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, proc.exhausted)
}
