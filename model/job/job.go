package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/toolbox"
)

// ErrInvalidInput is returned by InteractiveJob.ValidateInput when user supplied data is rejected.
var ErrInvalidInput = errors.New("job: invalid input")

// NewInvalidInputError wraps ErrInvalidInput with a reason.
func NewInvalidInputError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Job is an executable job body.
type Job interface {
	Spec() *Spec
	Run(ctx context.Context, jobCtx *Context) error
}

// InteractiveJob is a job whose outputs are produced from data submitted by a human.
// The engine never dispatches it; ValidateInput runs before the RunJob is claimed, and
// SaveInput writes the outputs afterwards.
type InteractiveJob interface {
	Job
	ValidateInput(ctx context.Context, jobCtx *Context, data map[string]interface{}) error
	SaveInput(ctx context.Context, jobCtx *Context, data map[string]interface{}) error
}

// Artifact exposes a resource bound to a port.
type Artifact struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	// URL is the compatible representation for inputs and the raw location to write for outputs.
	URL string `json:"url"`
}

// Context is handed to a job body.
type Context struct {
	RunID    string
	RunJobID string
	Settings map[string]interface{}
	Inputs   map[string][]*Artifact
	Outputs  map[string][]*Artifact
	FS       afs.Service
}

// Input returns the first artifact bound to the input port.
func (c *Context) Input(port string) *Artifact {
	if items := c.Inputs[port]; len(items) > 0 {
		return items[0]
	}
	return nil
}

// Output returns the first artifact bound to the output port.
func (c *Context) Output(port string) *Artifact {
	if items := c.Outputs[port]; len(items) > 0 {
		return items[0]
	}
	return nil
}

// Setting returns a setting value falling back to defaultValue.
func (c *Context) Setting(name string, defaultValue interface{}) interface{} {
	if value, ok := c.Settings[name]; ok {
		return value
	}
	return defaultValue
}

// IntSetting returns a numeric setting as int, falling back to defaultValue when the setting
// is absent or not numeric. Settings restored from JSON hold float64 values.
func (c *Context) IntSetting(name string, defaultValue int) int {
	value, ok := c.Settings[name]
	if !ok || value == nil {
		return defaultValue
	}
	ret, err := toolbox.ToInt(value)
	if err != nil {
		return defaultValue
	}
	return ret
}
