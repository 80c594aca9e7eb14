package job

import "strings"

// Wildcard matches any resource type.
const Wildcard = "*/*"

// PortType declares a named input or output port and the resource types it accepts.
type PortType struct {
	Name          string   `json:"name" yaml:"name"`
	ResourceTypes []string `json:"resourceTypes,omitempty" yaml:"resourceTypes,omitempty"`
}

// Accepts reports whether any of the supplied resource types can flow through the port.
// A port without declared types, or declaring Wildcard, accepts anything.
func (p *PortType) Accepts(types ...string) bool {
	if len(p.ResourceTypes) == 0 || len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		for _, accepted := range p.ResourceTypes {
			if matchType(accepted, candidate) {
				return true
			}
		}
	}
	return false
}

// Compatible reports whether an output port can feed an input port.
func Compatible(from, to *PortType) bool {
	if len(from.ResourceTypes) == 0 {
		return true
	}
	return to.Accepts(from.ResourceTypes...)
}

func matchType(pattern, candidate string) bool {
	if pattern == Wildcard || candidate == Wildcard {
		return true
	}
	if strings.EqualFold(pattern, candidate) {
		return true
	}
	// image/* matches image/png
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(strings.ToLower(candidate), strings.ToLower(prefix)+"/")
	}
	if prefix, ok := strings.CutSuffix(candidate, "/*"); ok {
		return strings.HasPrefix(strings.ToLower(pattern), strings.ToLower(prefix)+"/")
	}
	return false
}

// Spec describes a job definition: its identity, its declared ports and whether a human
// has to supply input before it may proceed.
type Spec struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string                 `json:"category,omitempty" yaml:"category,omitempty"`
	Interactive bool                   `json:"interactive,omitempty" yaml:"interactive,omitempty"`
	Inputs      []*PortType            `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []*PortType            `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Settings    map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Input returns the named input port or nil.
func (s *Spec) Input(name string) *PortType {
	return lookupPort(s.Inputs, name)
}

// Output returns the named output port or nil.
func (s *Spec) Output(name string) *PortType {
	return lookupPort(s.Outputs, name)
}

func lookupPort(ports []*PortType, name string) *PortType {
	for _, port := range ports {
		if port.Name == name {
			return port
		}
	}
	return nil
}
