// Package workflow loads workflow graph definitions from YAML documents.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/graphrun/model"
	"gopkg.in/yaml.v3"
)

// Service loads workflows from any afs supported location.
type Service struct {
	fs        afs.Service
	baseURL   string
	fsOptions []storage.Option
	lookup    model.SpecLookup
}

// Load loads a workflow from YAML at the specified URL; ".yaml" is appended when the URL has no extension.
func (s *Service) Load(ctx context.Context, URL string) (*model.Workflow, error) {
	if path.Ext(URL) == "" {
		URL += ".yaml"
	}
	if s.baseURL != "" && url.IsRelative(URL) {
		URL = url.Join(s.baseURL, URL)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL, s.fsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	return s.DecodeYAML(URL, data)
}

// DecodeYAML decodes and validates a workflow; URL is recorded as the workflow source
// and names the workflow when the document does not.
func (s *Service) DecodeYAML(URL string, encoded []byte) (*model.Workflow, error) {
	workflow := &model.Workflow{}
	if err := yaml.Unmarshal(encoded, workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", URL, err)
	}
	if URL != "" {
		workflow.Source = &model.Source{URL: URL}
	}
	if workflow.Name == "" {
		workflow.Name = nameFromURL(URL)
	}
	if s.lookup != nil {
		if issues := workflow.Validate(s.lookup); len(issues) > 0 {
			return nil, fmt.Errorf("invalid workflow %s: %w", workflow.Name, errors.Join(issues...))
		}
	}
	return workflow, nil
}

// nameFromURL extracts workflow name from URL (file name without extension)
func nameFromURL(URL string) string {
	if URL == "" {
		return ""
	}
	_, name := url.Split(URL, file.Scheme)
	return strings.TrimSuffix(name, path.Ext(name))
}

// New creates a workflow loader
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	return s
}
