package extension

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/graphrun/model/job"
)

var (
	// ErrUnknownJob is a configuration error: the identifier is not registered.
	ErrUnknownJob = errors.New("extension: unknown job")
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("extension: duplicate job")
)

// Registry provides job lookup by identifier
type Registry struct {
	jobs map[string]job.Job
	mux  sync.RWMutex
}

// Lookup returns a job by name
func (r *Registry) Lookup(name string) (job.Job, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return ret, nil
}

// Spec returns the declared spec of a job; it satisfies model.SpecLookup.
func (r *Registry) Spec(name string) (*job.Spec, error) {
	ret, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return ret.Spec(), nil
}

// Register registers jobs; a name may be registered only once.
func (r *Registry) Register(jobs ...job.Job) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	for _, candidate := range jobs {
		if candidate == nil || candidate.Spec() == nil {
			return fmt.Errorf("cannot register job without spec")
		}
		name := candidate.Spec().Name
		if _, ok := r.jobs[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateJob, name)
		}
		r.jobs[name] = candidate
	}
	return nil
}

// Names returns registered job names in sorted order.
func (r *Registry) Names() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Validate checks every registered job exhaustively and returns all problems joined.
// It also verifies that each name in required (for example job names referenced by
// persisted runs) is registered.
func (r *Registry) Validate(required ...string) error {
	r.mux.RLock()
	defer r.mux.RUnlock()
	var issues []error
	for name, candidate := range r.jobs {
		spec := candidate.Spec()
		if spec.Name == "" {
			issues = append(issues, fmt.Errorf("job registered under %q has empty name", name))
		}
		if err := validatePorts(name, "input", spec.Inputs); err != nil {
			issues = append(issues, err)
		}
		if err := validatePorts(name, "output", spec.Outputs); err != nil {
			issues = append(issues, err)
		}
		if _, ok := candidate.(job.InteractiveJob); spec.Interactive && !ok {
			issues = append(issues, fmt.Errorf("job %q is interactive but does not accept user input", name))
		}
	}
	for _, name := range required {
		if _, ok := r.jobs[name]; !ok {
			issues = append(issues, fmt.Errorf("%w: %q", ErrUnknownJob, name))
		}
	}
	return errors.Join(issues...)
}

func validatePorts(jobName, kind string, ports []*job.PortType) error {
	seen := map[string]bool{}
	for _, port := range ports {
		if port == nil || port.Name == "" {
			return fmt.Errorf("job %q declares an unnamed %s port", jobName, kind)
		}
		if seen[port.Name] {
			return fmt.Errorf("job %q declares duplicate %s port %q", jobName, kind, port.Name)
		}
		seen[port.Name] = true
	}
	return nil
}

// NewRegistry creates a registry with the supplied jobs.
func NewRegistry(jobs ...job.Job) (*Registry, error) {
	ret := &Registry{jobs: make(map[string]job.Job)}
	if err := ret.Register(jobs...); err != nil {
		return nil, err
	}
	return ret, nil
}
