package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/scheduler"
	"github.com/viant/graphrun/tracing"
)

// Config represents allocator service configuration
type Config struct {
	// PollingInterval is how often open runs are swept; zero disables the sweep
	PollingInterval time.Duration `json:"pollingInterval,omitempty" yaml:"pollingInterval,omitempty" mapstructure:"pollingInterval"`
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		PollingInterval: 5 * time.Second,
	}
}

// Advancer advances a run
type Advancer interface {
	Advance(ctx context.Context, runID string) (scheduler.Outcome, error)
}

// LostTaskMessage is recorded on RunJobs whose task did not survive a restart.
const LostTaskMessage = "task lost on restart"

// Service sweeps open runs
type Service struct {
	config     Config
	store      run.Store
	advancer   Advancer
	shutdownCh chan struct{}
	mux        sync.Mutex
	recovered  []string
}

// New creates a new allocator service
func New(store run.Store, advancer Advancer, config Config) *Service {
	return &Service{
		config:     config,
		store:      store,
		advancer:   advancer,
		shutdownCh: make(chan struct{}),
	}
}

// Recover fails RunJobs left RUNNING by a previous process. Tasks live in memory only, so
// it must run before this process dispatches anything. Affected runs are advanced by Start.
func (s *Service) Recover(ctx context.Context) (runIDs []string, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.Recover", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	runs, err := s.store.ListRuns(ctx, dao.NewParameter("Status", string(execution.RunStatusRunning)))
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)
	for _, aRun := range runs {
		runJobs, err := s.store.RunJobs(ctx, aRun.ID)
		if err != nil {
			return runIDs, err
		}
		failed := 0
		for _, runJob := range runJobs {
			if runJob.Status != execution.StatusRunning {
				continue
			}
			ok, err := s.store.Transition(ctx, runJob.ID, execution.StatusRunning, execution.StatusFailed, LostTaskMessage)
			if err != nil {
				return runIDs, err
			}
			if ok {
				failed++
			}
		}
		if failed > 0 {
			logger.Warn("failed orphaned run jobs", "run_id", aRun.ID, "count", failed)
			runIDs = append(runIDs, aRun.ID)
		}
	}
	s.mux.Lock()
	s.recovered = append(s.recovered, runIDs...)
	s.mux.Unlock()
	return runIDs, nil
}

func (s *Service) advanceRecovered(ctx context.Context) {
	s.mux.Lock()
	runIDs := s.recovered
	s.recovered = nil
	s.mux.Unlock()
	for _, runID := range runIDs {
		if _, err := s.advancer.Advance(ctx, runID); err != nil {
			logging.FromContext(ctx).Warn("failed to advance recovered run", "run_id", runID, "error", err)
		}
	}
}

// Start advances recovered runs, then sweeps until ctx is cancelled or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.advanceRecovered(ctx)
	if s.config.PollingInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logging.FromContext(ctx).Warn("failed to sweep runs", "error", err)
			}
		}
	}
}

// Sweep advances every RUNNING run once and returns the outcome per run.
func (s *Service) Sweep(ctx context.Context) (outcomes map[string]scheduler.Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.Sweep", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	runs, err := s.store.ListRuns(ctx, dao.NewParameter("Status", string(execution.RunStatusRunning)))
	if err != nil {
		return nil, err
	}
	outcomes = make(map[string]scheduler.Outcome, len(runs))
	for _, aRun := range runs {
		outcome, advanceErr := s.advancer.Advance(ctx, aRun.ID)
		if advanceErr != nil {
			logging.FromContext(ctx).Warn("failed to advance run", "run_id", aRun.ID, "error", advanceErr)
			continue
		}
		outcomes[aRun.ID] = outcome
	}
	return outcomes, nil
}

// Shutdown stops the sweep loop
func (s *Service) Shutdown() {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}
