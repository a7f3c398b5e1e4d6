package mail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/contactbook/apiserver/internal/mq"
)

// Subscriber is the subset of mq.MQ the worker consumes from.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker drains the mail queue and delivers each job.
type Worker struct {
	subscriber Subscriber
	queue      string
	sender     Sender
	logger     *slog.Logger
}

func NewWorker(subscriber Subscriber, queue string, sender Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{subscriber: subscriber, queue: queue, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("mail worker started", "queue", w.queue)
	err := w.subscriber.Subscribe(ctx, w.queue, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle delivers one job. Malformed jobs are dropped; delivery errors are
// returned so the broker redelivers.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	job, err := Decode(msg.Data)
	if err != nil {
		w.logger.WarnContext(ctx, "dropping malformed mail job", "message_id", msg.ID, "error", err)
		return nil
	}
	if err := w.sender.Send(ctx, job); err != nil {
		w.logger.ErrorContext(ctx, "deliver mail failed",
			"message_id", msg.ID,
			"kind", job.Kind,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		return err
	}
	w.logger.InfoContext(ctx, "mail delivered", "message_id", msg.ID, "kind", job.Kind)
	return nil
}
