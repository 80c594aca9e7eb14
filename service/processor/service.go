package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/service/messaging"
)

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers processing tasks
	WorkerCount int `json:"workerCount,omitempty" yaml:"workerCount,omitempty" mapstructure:"workerCount"`

	// MaxTaskRetries is the maximum number of retries of a failing job body
	MaxTaskRetries int `json:"maxTaskRetries,omitempty" yaml:"maxTaskRetries,omitempty" mapstructure:"maxTaskRetries"`

	// RetryDelay is the delay between task retry attempts
	RetryDelay time.Duration `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty" mapstructure:"retryDelay"`
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		MaxTaskRetries: 0,
		RetryDelay:     time.Second,
	}
}

// Executor runs job bodies
type Executor interface {
	Execute(ctx context.Context, task *execution.Task) error
	Fail(ctx context.Context, runJobID string, cause error) error
}

// CompletionHandler receives the final outcome of a task
type CompletionHandler func(ctx context.Context, task *execution.Task, failed bool)

// Service runs the worker pool
type Service struct {
	config     Config
	queue      messaging.Queue[execution.Task]
	executor   Executor
	onComplete CompletionHandler
	logger     *slog.Logger

	workers    []*worker
	workerWg   sync.WaitGroup
	retryWg    sync.WaitGroup
	shutdownCh chan struct{}
	once       sync.Once
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a processor
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:     DefaultConfig(),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = DefaultConfig().WorkerCount
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Start launches the workers; they run until Shutdown or ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) || w.ctx.Err() != nil {
				return
			}
			w.service.logger.Warn("failed to consume task", "worker", w.id, "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Error("failed to process task", "worker", w.id, "error", pErr)
		}
	}
}

func (s *Service) processMessage(ctx context.Context, message messaging.Message[execution.Task]) error {
	task := message.T()
	logger := s.logger.With("run_id", task.RunID, "run_job_id", task.RunJobID, "job", task.JobName, "task", task.ID)
	ctx = logging.WithLogger(ctx, logger)

	err := s.executor.Execute(ctx, task)
	switch {
	case err == nil:
		if ackErr := message.Ack(); ackErr != nil {
			logger.Warn("failed to ack task", "error", ackErr)
		}
		s.complete(ctx, task, false)
		return nil
	case errors.Is(err, executor.ErrNotRunning):
		// stale redelivery; the owner of the RunJob already reported it
		logger.Debug("skipping stale task", "error", err)
		return message.Ack()
	}

	if task.Attempts < s.config.MaxTaskRetries {
		logger.Warn("job failed, retrying", "attempt", task.Attempts+1, "error", err)
		s.retry(*task)
		return message.Ack()
	}

	if failErr := s.executor.Fail(ctx, task.RunJobID, err); failErr != nil {
		if errors.Is(failErr, executor.ErrNotRunning) {
			return message.Ack()
		}
		return message.Nack(fmt.Errorf("job error: %w, and failed to record failure: %v", err, failErr))
	}
	logger.Warn("job failed", "attempts", task.Attempts+1, "error", err)
	if ackErr := message.Ack(); ackErr != nil {
		logger.Warn("failed to ack task", "error", ackErr)
	}
	s.complete(ctx, task, true)
	return nil
}

func (s *Service) retry(task execution.Task) {
	task.Attempts++
	s.retryWg.Add(1)
	go func() {
		defer s.retryWg.Done()
		timer := time.NewTimer(s.config.RetryDelay)
		defer timer.Stop()
		select {
		case <-s.shutdownCh:
			return
		case <-timer.C:
		}
		if err := s.queue.Publish(context.Background(), &task); err != nil {
			s.logger.Error("failed to requeue task", "run_job_id", task.RunJobID, "error", err)
		}
	}()
}

func (s *Service) complete(ctx context.Context, task *execution.Task, failed bool) {
	if s.onComplete == nil {
		return
	}
	s.onComplete(ctx, task, failed)
}

// Shutdown stops the workers and pending retries
func (s *Service) Shutdown() {
	s.once.Do(func() {
		close(s.shutdownCh)
		for _, w := range s.workers {
			w.cancelFn()
		}
		s.workerWg.Wait()
		s.retryWg.Wait()
	})
}
