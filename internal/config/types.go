package config

import "gopkg.in/yaml.v3"

// Document is the top-level on-disk YAML shape.
type Document struct {
	Services map[string]ServiceDef `yaml:"services"`
}

// LifecycleStep is the scalar-or-map union a lifecycle step allows: a bare
// string is sugar for {Script: <string>}.
type LifecycleStep struct {
	Script  string            `yaml:"script"`
	Timeout string            `yaml:"timeout,omitempty"`
	SetEnv  map[string]string `yaml:"setenv,omitempty"`
	SkipIf  string            `yaml:"skipif,omitempty"`
}

// UnmarshalYAML accepts either a bare scalar ("exit 0") or the full map
// form.
func (s *LifecycleStep) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var scalar string
		if err := value.Decode(&scalar); err != nil {
			return err
		}
		s.Script = scalar
		return nil
	}
	type plain LifecycleStep
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = LifecycleStep(p)
	return nil
}

// Lifecycle holds the five named steps, all optional.
type Lifecycle struct {
	Install  *LifecycleStep `yaml:"install,omitempty"`
	Startup  *LifecycleStep `yaml:"startup,omitempty"`
	Run      *LifecycleStep `yaml:"run,omitempty"`
	Shutdown *LifecycleStep `yaml:"shutdown,omitempty"`
	Recover  *LifecycleStep `yaml:"recover,omitempty"`
}

// ServiceDef is one entry under the top-level "services" map.
type ServiceDef struct {
	Type          string                 `yaml:"type,omitempty"` // external | builtin | plugin
	Lifecycle     Lifecycle              `yaml:"lifecycle,omitempty"`
	Dependencies  []string               `yaml:"dependencies,omitempty"` // "name[:HARD|SOFT]"
	Configuration map[string]interface{} `yaml:"configuration,omitempty"`
	Parameters    map[string]interface{} `yaml:"parameters,omitempty"`
	SetEnv        map[string]string      `yaml:"setenv,omitempty"`
	Version       string                 `yaml:"version,omitempty"`
}

// Params returns Configuration, falling back to the "parameters" alias,
// which is accepted as equivalent.
func (d ServiceDef) Params() map[string]interface{} {
	if d.Configuration != nil {
		return d.Configuration
	}
	return d.Parameters
}
