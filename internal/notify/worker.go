package notify

import (
	"context"

	"github.com/riverqueue/river"
)

type EventArgs struct {
	Event Event `json:"event"`
}

func (EventArgs) Kind() string { return "notify_event" }

// Event jobs are retried at most three times.
func (EventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 3}
}

// Publisher is the part of the hub the worker needs.
type Publisher interface {
	Publish(ev Event)
}

type EventWorker struct {
	river.WorkerDefaults[EventArgs]
	pub Publisher
}

func NewEventWorker(pub Publisher) *EventWorker {
	return &EventWorker{pub: pub}
}

func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventArgs]) error {
	w.pub.Publish(job.Args.Event)
	return nil
}
