package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

const sendMaxAttempts = 5

// SendArgs is the River job carrying one batch of notifications.
type SendArgs struct {
	Notifications []Notification `json:"notifications"`
}

func (SendArgs) Kind() string { return "send_notifications" }

func (SendArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: sendMaxAttempts}
}

// SendWorker delivers queued batches through a sink. Returned errors make River retry.
type SendWorker struct {
	river.WorkerDefaults[SendArgs]
	sink Sink
}

func NewSendWorker(sink Sink) *SendWorker {
	return &SendWorker{sink: sink}
}

func (w *SendWorker) Work(ctx context.Context, job *river.Job[SendArgs]) error {
	if len(job.Args.Notifications) == 0 {
		return nil
	}
	if err := w.sink.Send(ctx, job.Args.Notifications); err != nil {
		return fmt.Errorf("deliver notifications (attempt %d): %w", job.Attempt, err)
	}
	return nil
}

// RiverDispatcher queues notification batches for background delivery.
type RiverDispatcher struct {
	Client *river.Client[pgx.Tx]
	Log    *slog.Logger
}

func (d *RiverDispatcher) Dispatch(ctx context.Context, ns ...Notification) {
	if len(ns) == 0 {
		return
	}
	if _, err := d.Client.Insert(ctx, SendArgs{Notifications: ns}, nil); err != nil {
		log := d.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("queue notifications failed", "kind", ns[0].Kind, "count", len(ns), "error", err)
	}
}
