// Package conversion turns uploaded resources into their compatible representation
// and advances every run waiting on them.
package conversion

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/internal/idgen"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/scheduler"
)

// Converter produces the compatible representation of a resource and returns its URL.
type Converter interface {
	Convert(ctx context.Context, resource *execution.Resource, destURL string) (string, error)
}

// ConverterFunc adapts a function to Converter
type ConverterFunc func(ctx context.Context, resource *execution.Resource, destURL string) (string, error)

// Convert calls f
func (f ConverterFunc) Convert(ctx context.Context, resource *execution.Resource, destURL string) (string, error) {
	return f(ctx, resource, destURL)
}

// Copier is the default converter: the raw representation is already compatible and is copied as is.
type Copier struct {
	fs afs.Service
}

// Convert copies the raw representation to destURL
func (c *Copier) Convert(ctx context.Context, resource *execution.Resource, destURL string) (string, error) {
	if err := c.fs.Copy(ctx, resource.RawURL, destURL); err != nil {
		return "", err
	}
	return destURL, nil
}

// Advancer advances a run
type Advancer interface {
	Advance(ctx context.Context, runID string) (scheduler.Outcome, error)
}

// Option customises the conversion service
type Option func(s *Service)

// WithConverter sets the converter
func WithConverter(converter Converter) Option {
	return func(s *Service) {
		s.converter = converter
	}
}

// WithFS sets the file system
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// Service uploads and converts resources
type Service struct {
	store     run.Store
	advancer  Advancer
	fs        afs.Service
	baseURL   string
	converter Converter
	wg        sync.WaitGroup
}

// Upload stores data as a new, not yet compatible resource.
func (s *Service) Upload(ctx context.Context, name, resourceType string, data []byte) (*execution.Resource, error) {
	id := idgen.New()
	resource := &execution.Resource{
		ID:           id,
		Name:         name,
		ResourceType: resourceType,
		RawURL:       url.Join(s.baseURL, "uploads", id, name),
		CreatedAt:    clock.Now(),
	}
	if err := s.fs.Upload(ctx, resource.RawURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := s.store.SaveResource(ctx, resource); err != nil {
		return nil, err
	}
	return resource, nil
}

// Convert populates the compatible representation of a resource, then advances every run
// with a RunJob waiting on it. Advance errors are logged; only conversion errors are returned.
func (s *Service) Convert(ctx context.Context, resourceID string) error {
	resource, err := s.store.Resource(ctx, resourceID)
	if err != nil {
		return err
	}
	logger := logging.FromContext(ctx).With("resource_id", resourceID)
	if !resource.IsReady() {
		compatURL, err := s.converter.Convert(ctx, resource, url.Join(s.baseURL, "compat", resource.ID, resource.Name))
		if err != nil {
			return fmt.Errorf("failed to convert %s: %w", resource.Name, err)
		}
		if err = s.store.SetCompatible(ctx, resourceID, compatURL); err != nil {
			return err
		}
		logger.Debug("resource converted", "url", compatURL)
	}
	runIDs, err := s.store.RunsAwaiting(ctx, resourceID)
	if err != nil {
		return err
	}
	for _, runID := range runIDs {
		if _, err := s.advancer.Advance(ctx, runID); err != nil {
			logger.Error("failed to advance run", "run_id", runID, "error", err)
		}
	}
	return nil
}

// ConvertAsync runs Convert on its own goroutine, logging failures.
func (s *Service) ConvertAsync(ctx context.Context, resourceID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Convert(ctx, resourceID); err != nil {
			logging.FromContext(ctx).Error("conversion failed", "resource_id", resourceID, "error", err)
		}
	}()
}

// Wait blocks until every asynchronous conversion returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// New creates a conversion service storing resources under baseURL
func New(store run.Store, advancer Advancer, baseURL string, opts ...Option) *Service {
	ret := &Service{store: store, advancer: advancer, baseURL: baseURL}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if ret.converter == nil {
		ret.converter = &Copier{fs: ret.fs}
	}
	return ret
}
