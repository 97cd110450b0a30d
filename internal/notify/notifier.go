package notify

import (
	"context"
	"fmt"
)

// Notifier is called after a fund operation or message write has committed.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Direct publishes straight to the hub. Used when no job queue is available.
type Direct struct {
	Hub *Hub
}

func (d Direct) Notify(_ context.Context, ev Event) error {
	d.Hub.Publish(ev)
	return nil
}

// InsertFunc enqueues a notification job.
type InsertFunc func(ctx context.Context, args EventArgs) error

// Queue hands events to the background job queue.
type Queue struct {
	insert InsertFunc
}

func NewQueue(insert InsertFunc) *Queue {
	return &Queue{insert: insert}
}

func (q *Queue) Notify(ctx context.Context, ev Event) error {
	if err := q.insert(ctx, EventArgs{Event: ev}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", ev.Type, err)
	}
	return nil
}
