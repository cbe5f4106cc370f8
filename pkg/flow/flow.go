// Package flow handles parsing and representation of domkit YAML flow files.
package flow

// Flow represents a parsed flow file.
type Flow struct {
	SourcePath string // Path to the source file
	Config     Config // Flow configuration (url, tags, etc.)
	Steps      []Step // Steps to execute
}

// Config represents flow-level configuration.
type Config struct {
	Name           string            `yaml:"name"`
	URL            string            `yaml:"url"` // Opened before the first step
	Tags           []string          `yaml:"tags"`
	Env            map[string]string `yaml:"env"`
	Timeout        int               `yaml:"timeout"`       // Flow timeout in ms
	ActionTimeout  int               `yaml:"actionTimeout"` // Per-action wait in ms, overrides the run default
	OnFlowStart    []Step            `yaml:"-"`             // Lifecycle hook: runs before commands
	OnFlowComplete []Step            `yaml:"-"`             // Lifecycle hook: runs after commands
}
