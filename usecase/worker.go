package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/metrics"
)

type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	// StaleAfter is how long a claimed job may run before it is requeued.
	StaleAfter time.Duration
}

// Worker executes publish and sweep tasks.
type Worker struct {
	queue     repository.ITaskQueue
	publisher IPublishUsecase
	scheduler ISchedulerUsecase
	retry     RetryPolicy
	cfg       WorkerConfig
	now       func() time.Time
}

func NewWorker(queue repository.ITaskQueue, publisher IPublishUsecase, scheduler ISchedulerUsecase, retry RetryPolicy, cfg WorkerConfig) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{queue: queue, publisher: publisher, scheduler: scheduler, retry: retry, cfg: cfg, now: time.Now}
}

// Handle runs one task. A returned error means the task should be
// redelivered; outcomes that are already recorded return nil.
func (w *Worker) Handle(ctx context.Context, task model.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		result := "done"
		if err != nil {
			result = "error"
		}
		metrics.ObserveJob(task.Kind, result)
	}()

	switch task.Kind {
	case model.JobKindSweep:
		return w.scheduler.RunSweep(ctx)
	case model.JobKindPublish:
		return w.handlePublish(ctx, task)
	}
	logger.GetLogger().WithField("kind", task.Kind).Warn("Unknown task kind, dropping")
	return nil
}

func (w *Worker) handlePublish(ctx context.Context, task model.Task) error {
	lg := logger.GetLogger().WithField("post_id", task.PostID).WithField("attempt", task.Attempt)
	outcome, err := w.publisher.Publish(ctx, task)
	switch {
	case errors.Is(err, model.ErrStaleAttempt), errors.Is(err, model.ErrPostNotFound):
		lg.WithField("reason", err).Info("Publish task has nothing to do")
		return nil
	case err != nil:
		if w.retry.CanRetry(task.Attempt) {
			next, runAt := w.retry.Next(task, w.now())
			lg.WithField("error", err).Warn("Publish attempt errored, retrying")
			return w.queue.EnqueueRetry(ctx, next, runAt, err.Error())
		}
		lg.WithField("error", err).Error("Publish attempts exhausted")
		return w.publisher.Abort(ctx, task.PostID, err.Error())
	case outcome.Retry:
		next := task
		next.Attempt = task.Attempt + 1
		return w.queue.EnqueueRetry(ctx, next, outcome.RetryAt, outcome.LastError)
	}
	return nil
}

// Run drains the Postgres job table with cfg.Workers concurrent loops until
// ctx is done. It also requeues jobs abandoned by crashed workers.
func (w *Worker) Run(ctx context.Context, source repository.IJobSource) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.cfg.Workers {
		g.Go(func() error {
			w.loop(ctx, source, i)
			return nil
		})
	}
	if w.cfg.StaleAfter > 0 {
		g.Go(func() error {
			w.reapStale(ctx, source)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, source repository.IJobSource, id int) {
	lg := logger.GetLogger().WithField("worker_id", id)
	lg.Debug("Worker started")
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessNext(ctx, source)
		if err != nil && ctx.Err() == nil {
			lg.WithField("error", err).Error("Error while processing job")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// ProcessNext claims and runs one job. It reports whether a job was found.
func (w *Worker) ProcessNext(ctx context.Context, source repository.IJobSource) (bool, error) {
	job, err := source.Claim(ctx, w.now())
	if errors.Is(err, model.ErrNoJobAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// job bookkeeping must land even during shutdown
	bg := context.WithoutCancel(ctx)
	if herr := w.Handle(ctx, job.Task()); herr != nil {
		return true, errors.Join(herr, source.Fail(bg, job.ID, herr.Error()))
	}
	return true, source.Complete(bg, job.ID)
}

func (w *Worker) reapStale(ctx context.Context, source repository.IJobSource) {
	ticker := time.NewTicker(w.cfg.StaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := source.RequeueStale(ctx, w.now().Add(-w.cfg.StaleAfter))
			if err != nil {
				logger.GetLogger().WithField("error", err).Error("Error while requeueing stale jobs")
				continue
			}
			if n > 0 {
				logger.GetLogger().WithField("count", n).Warn("Requeued stale jobs")
			}
		}
	}
}
