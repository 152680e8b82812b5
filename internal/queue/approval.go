package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openfleet/ride-booking/internal/booking"
)

const TypeBookingApprove = "booking:approve"

// NewApprovalTask wraps an approval message in an asynq task. The task ID is
// the booking reference, so a duplicate admission of the same booking cannot
// double-enqueue while the first task is still alive.
func NewApprovalTask(msg booking.ApprovalMessage) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal approval message: %w", err)
	}
	return asynq.NewTask(TypeBookingApprove, payload), nil
}

func DecodeApprovalTask(task *asynq.Task) (booking.ApprovalMessage, error) {
	var msg booking.ApprovalMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return booking.ApprovalMessage{}, fmt.Errorf("unmarshal approval message: %w", err)
	}
	return msg, nil
}

// Client enqueues approval tasks. It satisfies booking.Enqueuer.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func NewClient(redisOpt asynq.RedisClientOpt, queue string, maxRetry int) *Client {
	return &Client{
		client:   asynq.NewClient(redisOpt),
		queue:    queue,
		maxRetry: maxRetry,
	}
}

func (c *Client) EnqueueApproval(ctx context.Context, msg booking.ApprovalMessage) error {
	task, err := NewApprovalTask(msg)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(msg.BookingReference),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue approval task: %w", err)
	}

	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
