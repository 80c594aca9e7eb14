// Package fs provides a run store persisted as a JSON document on any afs supported storage
// (local file system, mem://, gs://, s3://). State is kept in memory and written through
// after every mutation that changed something; a mutation whose write fails is rolled back.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/dao/run/memory"
)

// StateFile is the document name under the store base URL.
const StateFile = "graphrun-state.json"

// Store implements run.Store on top of an afs location.
type Store struct {
	*memory.Store
	fs       afs.Service
	location string
	mu       sync.Mutex
}

var _ run.Store = (*Store)(nil)

// New creates a store rooted at baseURL, loading the state document when present.
func New(ctx context.Context, fs afs.Service, baseURL string) (*Store, error) {
	if fs == nil {
		fs = afs.New()
	}
	s := &Store{Store: memory.New(), fs: fs, location: url.Join(baseURL, StateFile)}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Location returns the state document URL.
func (s *Store) Location() string {
	return s.location
}

func (s *Store) load(ctx context.Context) error {
	exists, err := s.fs.Exists(ctx, s.location)
	if err != nil {
		return fmt.Errorf("failed to check state %s: %w", s.location, err)
	}
	if !exists {
		return nil
	}
	data, err := s.fs.DownloadWithURL(ctx, s.location)
	if err != nil {
		return fmt.Errorf("failed to read state %s: %w", s.location, err)
	}
	snapshot := &memory.Snapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal state %s: %w", s.location, err)
	}
	s.Store.Restore(snapshot)
	return nil
}

// persist writes the current state; caller holds s.mu.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.Marshal(s.Store.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.fs.Upload(ctx, s.location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save state to %s: %w", s.location, err)
	}
	return nil
}

// mutate applies fn to the memory state and writes the document when fn reports a change.
// A failed write restores the previous memory state, the document stays authoritative.
func (s *Store) mutate(ctx context.Context, fn func() (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.Store.Snapshot()
	changed, err := fn()
	if err != nil || !changed {
		return err
	}
	if err = s.persist(ctx); err != nil {
		s.Store.Restore(before)
		return err
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, plan *execution.Plan) error {
	return s.mutate(ctx, func() (bool, error) {
		return true, s.Store.CreateRun(ctx, plan)
	})
}

func (s *Store) MarkReadyForInput(ctx context.Context, runID string) ([]string, error) {
	var marked []string
	err := s.mutate(ctx, func() (bool, error) {
		var err error
		marked, err = s.Store.MarkReadyForInput(ctx, runID)
		return len(marked) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

func (s *Store) Claim(ctx context.Context, runID string, ids []string) (execution.RunJobs, error) {
	var claimed execution.RunJobs
	err := s.mutate(ctx, func() (bool, error) {
		var err error
		claimed, err = s.Store.Claim(ctx, runID, ids)
		return len(claimed) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) SetTaskHandle(ctx context.Context, runJobID, handle string) error {
	return s.mutate(ctx, func() (bool, error) {
		return true, s.Store.SetTaskHandle(ctx, runJobID, handle)
	})
}

func (s *Store) Transition(ctx context.Context, runJobID string, from, to execution.Status, message string) (bool, error) {
	var ok bool
	err := s.mutate(ctx, func() (bool, error) {
		var err error
		ok, err = s.Store.Transition(ctx, runJobID, from, to, message)
		return ok, err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) CancelBlocked(ctx context.Context, runID string) ([]string, error) {
	var cancelled []string
	err := s.mutate(ctx, func() (bool, error) {
		var err error
		cancelled, err = s.Store.CancelBlocked(ctx, runID)
		return len(cancelled) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string) (bool, error) {
	var ok bool
	err := s.mutate(ctx, func() (bool, error) {
		var err error
		ok, err = s.Store.FinishRun(ctx, runID)
		return ok, err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) SaveResource(ctx context.Context, resource *execution.Resource) error {
	return s.mutate(ctx, func() (bool, error) {
		return true, s.Store.SaveResource(ctx, resource)
	})
}

func (s *Store) SetCompatible(ctx context.Context, resourceID, compatURL string) error {
	if resourceID == "" {
		return dao.ErrInvalidID
	}
	return s.mutate(ctx, func() (bool, error) {
		return true, s.Store.SetCompatible(ctx, resourceID, compatURL)
	})
}
