package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PortRef addresses a port of a WorkflowJob.
type PortRef struct {
	Job  string `json:"job" yaml:"job"`
	Port string `json:"port" yaml:"port"`
}

// ParsePortRef parses "<workflowJobID>.<port>". The last dot separates the port.
func ParsePortRef(encoded string) (PortRef, error) {
	idx := strings.LastIndex(encoded, ".")
	if idx <= 0 || idx == len(encoded)-1 {
		return PortRef{}, fmt.Errorf("invalid port reference %q, expected <job>.<port>", encoded)
	}
	return PortRef{Job: encoded[:idx], Port: encoded[idx+1:]}, nil
}

// String returns the "<job>.<port>" form.
func (p PortRef) String() string {
	return p.Job + "." + p.Port
}

// UnmarshalYAML accepts both the scalar "<job>.<port>" form and a {job, port} mapping.
func (p *PortRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		ref, err := ParsePortRef(node.Value)
		if err != nil {
			return err
		}
		*p = ref
		return nil
	}
	type plain PortRef
	return node.Decode((*plain)(p))
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	From PortRef `json:"from" yaml:"from"`
	To   PortRef `json:"to" yaml:"to"`
}

func (c *Connection) String() string {
	return c.From.String() + " -> " + c.To.String()
}
