package workflow

import (
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/graphrun/model"
)

type Option func(*Service)

// WithFS sets the file system used to load workflow documents
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithBaseURL sets the location relative workflow URLs are resolved against
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithFSOptions passes storage options (e.g. *embed.FS) to every download
func WithFSOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.fsOptions = append(s.fsOptions, options...)
	}
}

// WithSpecLookup enables job and port validation of loaded workflows
func WithSpecLookup(lookup model.SpecLookup) Option {
	return func(s *Service) {
		s.lookup = lookup
	}
}
