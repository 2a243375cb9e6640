package servicebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/logger"
)

// NewServiceBus connects to a namespace with the default Azure credential
// chain.
func NewServiceBus(ctx context.Context, namespace string) (*azservicebus.Client, error) {
	if namespace == "" {
		return nil, errors.New("service bus namespace is not configured")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(namespace, cred, nil)
}

type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	ScheduleMessages(ctx context.Context, messages []*azservicebus.Message, scheduledEnqueueTime time.Time, options *azservicebus.ScheduleMessagesOptions) ([]int64, error)
	Close(ctx context.Context) error
}

type receiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	RenewMessageLock(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.RenewMessageLockOptions) error
	Close(ctx context.Context) error
}

// TaskHandler processes one delivered task. Returning an error abandons the
// message so Service Bus redelivers it.
type TaskHandler func(ctx context.Context, task model.Task) error

// Options tune a TaskQueue.
type Options struct {
	// SweepInterval sizes the slot a sweep message id is keyed by, so one
	// sweep per slot survives duplicate detection.
	SweepInterval time.Duration
	// LockRenewal is how often the lock of the message being handled is
	// renewed. It must be shorter than the queue's lock duration.
	LockRenewal time.Duration
}

// TaskQueue sends publish and sweep tasks to a Service Bus queue and
// consumes them one message at a time. Future tasks use scheduled messages.
// The message id is the dedupe key, so queues with duplicate detection drop
// repeated enqueues.
type TaskQueue struct {
	sender   sender
	receiver receiver
	opts     Options
}

func NewTaskQueue(client *azservicebus.Client, queue string, opts Options) (*TaskQueue, error) {
	s, err := client.NewSender(queue, nil)
	if err != nil {
		return nil, err
	}
	r, err := client.NewReceiverForQueue(queue, nil)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return newTaskQueue(s, r, opts), nil
}

func newTaskQueue(s sender, r receiver, opts Options) *TaskQueue {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.LockRenewal <= 0 {
		opts.LockRenewal = 20 * time.Second
	}
	return &TaskQueue{sender: s, receiver: r, opts: opts}
}

func (q *TaskQueue) EnqueuePublish(ctx context.Context, postID int64) error {
	return q.send(ctx, model.Task{Kind: model.JobKindPublish, PostID: postID, Attempt: 1}, time.Time{})
}

func (q *TaskQueue) EnqueueRetry(ctx context.Context, task model.Task, runAt time.Time, lastErr string) error {
	logger.GetLogger().WithField("post_id", task.PostID).WithField("attempt", task.Attempt).
		WithField("last_error", lastErr).Info("Scheduling publish retry")
	return q.send(ctx, task, runAt)
}

// EnqueueSweep aligns runAt to the start of its sweep slot. Sweeps enqueued
// by different processes for the same slot share a message id, so parallel
// sweep chains collapse into one.
func (q *TaskQueue) EnqueueSweep(ctx context.Context, runAt time.Time) error {
	if runAt.IsZero() {
		runAt = time.Now()
	}
	return q.send(ctx, model.Task{Kind: model.JobKindSweep, Attempt: 1}, runAt.Truncate(q.opts.SweepInterval))
}

func (q *TaskQueue) messageID(task model.Task, runAt time.Time) string {
	if task.Kind == model.JobKindSweep {
		return fmt.Sprintf("sweep:%d", runAt.UnixNano()/int64(q.opts.SweepInterval))
	}
	return fmt.Sprintf("publish:%d:%d", task.PostID, task.Attempt)
}

func (q *TaskQueue) send(ctx context.Context, task model.Task, runAt time.Time) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	id := q.messageID(task, runAt)
	contentType := "application/json"
	msg := &azservicebus.Message{
		Body:                  body,
		MessageID:             &id,
		ContentType:           &contentType,
		ApplicationProperties: map[string]any{"kind": string(task.Kind)},
	}
	if runAt.IsZero() || !runAt.After(time.Now()) {
		if err := q.sender.SendMessage(ctx, msg, nil); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while sending message.")
			return err
		}
		return nil
	}
	if _, err := q.sender.ScheduleMessages(ctx, []*azservicebus.Message{msg}, runAt, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while scheduling message.")
		return err
	}
	return nil
}

// Run receives tasks until ctx is done.
func (q *TaskQueue) Run(ctx context.Context, handle TaskHandler) error {
	for {
		if err := q.receiveOne(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.GetLogger().WithField("error", err).Error("Error while receiving messages.")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (q *TaskQueue) receiveOne(ctx context.Context, handle TaskHandler) error {
	messages, err := q.receiver.ReceiveMessages(ctx, 1, nil)
	if err != nil {
		return err
	}
	for _, message := range messages {
		q.process(ctx, message, handle)
	}
	return nil
}

func (q *TaskQueue) process(ctx context.Context, message *azservicebus.ReceivedMessage, handle TaskHandler) {
	lg := logger.GetLogger().WithField("message_id", message.MessageID)
	var task model.Task
	if err := json.Unmarshal(message.Body, &task); err != nil || task.Kind == "" {
		reason := "malformed task"
		if err := q.receiver.DeadLetterMessage(ctx, message, &azservicebus.DeadLetterOptions{Reason: &reason}); err != nil {
			lg.WithField("error", err).Error("Error while dead-lettering message.")
		}
		return
	}

	stop := q.keepLocked(ctx, message)
	err := handle(ctx, task)
	stop()

	// settle even during shutdown
	bg := context.WithoutCancel(ctx)
	if err != nil {
		lg.WithField("error", err).WithField("delivery_count", message.DeliveryCount).
			Warn("Task failed, abandoning message")
		if err := q.receiver.AbandonMessage(bg, message, nil); err != nil {
			lg.WithField("error", err).Error("Error while abandoning message.")
		}
		return
	}
	if err := q.receiver.CompleteMessage(bg, message, nil); err != nil {
		lg.WithField("error", err).Error("Error while completing message.")
	}
}

// keepLocked renews the message lock until the returned func is called.
func (q *TaskQueue) keepLocked(ctx context.Context, message *azservicebus.ReceivedMessage) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(q.opts.LockRenewal)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.receiver.RenewMessageLock(ctx, message, nil); err != nil && ctx.Err() == nil {
					logger.GetLogger().WithField("message_id", message.MessageID).WithField("error", err).
						Error("Error while renewing message lock.")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (q *TaskQueue) Close(ctx context.Context) error {
	return errors.Join(q.sender.Close(ctx), q.receiver.Close(ctx))
}
