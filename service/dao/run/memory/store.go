package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/criteria"
	"github.com/viant/graphrun/service/dao/run"
)

// Store implements an in-memory, thread-safe run store. A single mutex guards every
// table so each predicate scoped mutation is atomic; all API methods hand out copies.
type Store struct {
	mux       sync.RWMutex
	runs      map[string]*execution.WorkflowRun
	runOrder  []string
	runJobs   map[string]*execution.RunJob
	byRun     map[string][]string
	resources map[string]*execution.Resource
	inputs    map[string][]*execution.Input
	outputs   map[string][]*execution.Output
	producer  map[string]string
}

var _ run.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.runs = map[string]*execution.WorkflowRun{}
	s.runOrder = nil
	s.runJobs = map[string]*execution.RunJob{}
	s.byRun = map[string][]string{}
	s.resources = map[string]*execution.Resource{}
	s.inputs = map[string][]*execution.Input{}
	s.outputs = map[string][]*execution.Output{}
	s.producer = map[string]string{}
}

func (s *Store) CreateRun(_ context.Context, plan *execution.Plan) error {
	if plan == nil || plan.Run == nil {
		return dao.ErrNilEntity
	}
	if plan.Run.ID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.runs[plan.Run.ID]; ok {
		return fmt.Errorf("run %s: %w", plan.Run.ID, dao.ErrAlreadyExists)
	}
	for _, runJob := range plan.RunJobs {
		if _, ok := s.runJobs[runJob.ID]; ok {
			return fmt.Errorf("run job %s: %w", runJob.ID, dao.ErrAlreadyExists)
		}
	}
	s.insert(plan)
	return nil
}

func (s *Store) insert(plan *execution.Plan) {
	s.runs[plan.Run.ID] = plan.Run.Clone()
	s.runOrder = append(s.runOrder, plan.Run.ID)
	for _, runJob := range plan.RunJobs {
		s.runJobs[runJob.ID] = runJob.Clone()
		s.byRun[runJob.RunID] = append(s.byRun[runJob.RunID], runJob.ID)
	}
	for _, resource := range plan.Resources {
		s.resources[resource.ID] = resource.Clone()
	}
	for _, input := range plan.Inputs {
		in := *input
		s.inputs[in.RunJobID] = append(s.inputs[in.RunJobID], &in)
	}
	for _, output := range plan.Outputs {
		out := *output
		s.outputs[out.RunJobID] = append(s.outputs[out.RunJobID], &out)
		s.producer[out.ResourceID] = out.RunJobID
	}
}

func (s *Store) Run(_ context.Context, runID string) (*execution.WorkflowRun, error) {
	if runID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	item, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, dao.ErrNotFound)
	}
	return item.Clone(), nil
}

func (s *Store) ListRuns(_ context.Context, parameters ...*dao.Parameter) ([]*execution.WorkflowRun, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*execution.WorkflowRun, 0, len(s.runs))
	for _, id := range s.runOrder {
		item := s.runs[id]
		if !criteria.FilterByStatus(string(item.Status), parameters) {
			continue
		}
		out = append(out, item.Clone())
	}
	return out, nil
}

func (s *Store) RunJob(_ context.Context, id string) (*execution.RunJob, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	item, ok := s.runJobs[id]
	if !ok {
		return nil, fmt.Errorf("run job %s: %w", id, dao.ErrNotFound)
	}
	return item.Clone(), nil
}

func (s *Store) RunJobs(_ context.Context, runID string) (execution.RunJobs, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ids := s.byRun[runID]
	out := make(execution.RunJobs, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.runJobs[id].Clone())
	}
	return out, nil
}

// inputsReady reports whether every input of the RunJob is bound to an existing
// resource with a populated compatible representation. Caller holds the lock.
func (s *Store) inputsReady(runJobID string) bool {
	for _, input := range s.inputs[runJobID] {
		if input.ResourceID == "" {
			return false
		}
		if !s.resources[input.ResourceID].IsReady() {
			return false
		}
	}
	return true
}

func (s *Store) MarkReadyForInput(_ context.Context, runID string) ([]string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	var marked []string
	now := clock.Now()
	for _, id := range s.byRun[runID] {
		runJob := s.runJobs[id]
		if runJob.Status != execution.StatusNotRunning || !runJob.NeedsInput || runJob.ReadyForInput {
			continue
		}
		if !s.inputsReady(id) {
			continue
		}
		runJob.ReadyForInput = true
		runJob.UpdatedAt = now
		marked = append(marked, id)
	}
	return marked, nil
}

func (s *Store) Eligible(_ context.Context, runID string) (execution.RunJobs, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var out execution.RunJobs
	for _, id := range s.byRun[runID] {
		runJob := s.runJobs[id]
		if runJob.Status != execution.StatusNotRunning || !runJob.IsAutomatic() {
			continue
		}
		if !s.inputsReady(id) {
			continue
		}
		out = append(out, runJob.Clone())
	}
	return out, nil
}

func (s *Store) Claim(_ context.Context, runID string, ids []string) (execution.RunJobs, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	var claimed execution.RunJobs
	now := clock.Now()
	for _, id := range ids {
		runJob, ok := s.runJobs[id]
		if !ok || runJob.RunID != runID {
			continue
		}
		if runJob.Status != execution.StatusNotRunning || !runJob.IsAutomatic() {
			continue
		}
		runJob.Status = execution.StatusRunning
		runJob.UpdatedAt = now
		claimed = append(claimed, runJob.Clone())
	}
	return claimed, nil
}

func (s *Store) SetTaskHandle(_ context.Context, runJobID, handle string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	runJob, ok := s.runJobs[runJobID]
	if !ok {
		return fmt.Errorf("run job %s: %w", runJobID, dao.ErrNotFound)
	}
	runJob.TaskHandle = handle
	runJob.UpdatedAt = clock.Now()
	return nil
}

func (s *Store) Transition(_ context.Context, runJobID string, from, to execution.Status, message string) (bool, error) {
	if err := execution.CheckTransition(from, to); err != nil {
		return false, err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	runJob, ok := s.runJobs[runJobID]
	if !ok {
		return false, fmt.Errorf("run job %s: %w", runJobID, dao.ErrNotFound)
	}
	if runJob.Status != from {
		return false, nil
	}
	runJob.Status = to
	if message != "" {
		runJob.Error = message
	}
	runJob.UpdatedAt = clock.Now()
	return true, nil
}

func (s *Store) CancelBlocked(_ context.Context, runID string) ([]string, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	var cancelled []string
	now := clock.Now()
	for changed := true; changed; {
		changed = false
		for _, id := range s.byRun[runID] {
			runJob := s.runJobs[id]
			if runJob.Status != execution.StatusNotRunning {
				continue
			}
			upstream := s.blockingProducer(id)
			if upstream == nil {
				continue
			}
			runJob.Status = execution.StatusCancelled
			runJob.Error = fmt.Sprintf("upstream job %s is %s", upstream.WorkflowJobID, upstream.Status)
			runJob.UpdatedAt = now
			cancelled = append(cancelled, id)
			changed = true
		}
	}
	return cancelled, nil
}

func (s *Store) blockingProducer(runJobID string) *execution.RunJob {
	for _, input := range s.inputs[runJobID] {
		producerID, ok := s.producer[input.ResourceID]
		if !ok {
			continue
		}
		producer := s.runJobs[producerID]
		if producer.Status == execution.StatusFailed || producer.Status == execution.StatusCancelled {
			return producer
		}
	}
	return nil
}

func (s *Store) HasNonTerminal(_ context.Context, runID string) (bool, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	for _, id := range s.byRun[runID] {
		if !s.runJobs[id].Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) FinishRun(_ context.Context, runID string) (bool, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	item, ok := s.runs[runID]
	if !ok {
		return false, fmt.Errorf("run %s: %w", runID, dao.ErrNotFound)
	}
	if item.Status != execution.RunStatusRunning {
		return false, nil
	}
	now := clock.Now()
	item.Status = execution.RunStatusFinished
	item.FinishedAt = &now
	return true, nil
}

func (s *Store) SaveResource(_ context.Context, resource *execution.Resource) error {
	if resource == nil {
		return dao.ErrNilEntity
	}
	if resource.ID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.resources[resource.ID] = resource.Clone()
	return nil
}

func (s *Store) Resource(_ context.Context, id string) (*execution.Resource, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	item, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", id, dao.ErrNotFound)
	}
	return item.Clone(), nil
}

func (s *Store) SetCompatible(_ context.Context, resourceID, compatURL string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	item, ok := s.resources[resourceID]
	if !ok {
		return fmt.Errorf("resource %s: %w", resourceID, dao.ErrNotFound)
	}
	item.CompatURL = compatURL
	return nil
}

func (s *Store) Inputs(_ context.Context, runJobID string) ([]*execution.Input, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*execution.Input, 0, len(s.inputs[runJobID]))
	for _, input := range s.inputs[runJobID] {
		in := *input
		out = append(out, &in)
	}
	return out, nil
}

func (s *Store) Outputs(_ context.Context, runJobID string) ([]*execution.Output, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*execution.Output, 0, len(s.outputs[runJobID]))
	for _, output := range s.outputs[runJobID] {
		o := *output
		out = append(out, &o)
	}
	return out, nil
}

func (s *Store) RunsAwaiting(_ context.Context, resourceID string) ([]string, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	seen := map[string]bool{}
	var out []string
	for runJobID, inputs := range s.inputs {
		for _, input := range inputs {
			if input.ResourceID != resourceID {
				continue
			}
			runJob := s.runJobs[runJobID]
			if runJob == nil || runJob.Status != execution.StatusNotRunning {
				continue
			}
			if item := s.runs[runJob.RunID]; item == nil || item.Status != execution.RunStatusRunning || seen[runJob.RunID] {
				continue
			}
			seen[runJob.RunID] = true
			out = append(out, runJob.RunID)
		}
	}
	sort.Strings(out)
	return out, nil
}
