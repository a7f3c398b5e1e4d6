package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/contactbook/apiserver/internal/mq"
)

const defaultAsyncTimeout = 30 * time.Second

// Dispatcher hands a message off for delivery without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Publisher is the subset of mq.MQ used to enqueue jobs.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

// QueueDispatcher enqueues messages for the mail worker.
type QueueDispatcher struct {
	publisher Publisher
	queue     string
}

func NewQueueDispatcher(publisher Publisher, queue string) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher, queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if _, err := d.publisher.PublishJSON(ctx, d.queue, msg, map[string]string{"kind": string(msg.Kind)}); err != nil {
		return fmt.Errorf("enqueue %s mail: %w", msg.Kind, err)
	}
	return nil
}

// AsyncDispatcher sends in a background goroutine. Failures are logged.
type AsyncDispatcher struct {
	sender  Sender
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncDispatcher(sender Sender, logger *slog.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncDispatcher{sender: sender, logger: logger, timeout: defaultAsyncTimeout}
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.ErrorContext(ctx, "send mail failed", "kind", msg.Kind, "error", err)
			return
		}
		d.logger.InfoContext(ctx, "mail sent", "kind", msg.Kind)
	}()
	return nil
}

// Wait blocks until all in-flight sends finish.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// NewDispatcher picks the queue when a broker is available and direct
// background sending otherwise.
func NewDispatcher(queue *mq.MQ, queueName string, sender Sender, logger *slog.Logger) Dispatcher {
	if queue != nil {
		return NewQueueDispatcher(queue, queueName)
	}
	return NewAsyncDispatcher(sender, logger)
}
