package schema

// ProgramDocument is the declarative (YAML or JSON) form of a program.
type ProgramDocument struct {
	Name     string          `yaml:"name" json:"name"`
	Config   *ConfigDocument `yaml:"config,omitempty" json:"config,omitempty"`
	Events   []EventBinding  `yaml:"events,omitempty" json:"events,omitempty"`
	Body     *ActionNode     `yaml:"body" json:"body"`
	Shutdown *ActionNode     `yaml:"shutdown,omitempty" json:"shutdown,omitempty"`
}

// ConfigDocument overrides DesignConfig values for a single program.
type ConfigDocument struct {
	RegistrationCapacity          int `yaml:"registration_capacity,omitempty" json:"registration_capacity,omitempty"`
	MaxConcurrentActionExecutions int `yaml:"max_concurrent_action_executions,omitempty" json:"max_concurrent_action_executions,omitempty"`
}

// EventBinding binds a tag to an event source.
//
// Source is one of "local", "ipc", "timer:<duration>" or "cron:<expression>".
type EventBinding struct {
	Tag    string `yaml:"tag" json:"tag"`
	Source string `yaml:"source" json:"source"`
}

// ActionNode describes one action. Exactly one of Invoke, Sequence,
// Concurrency, Select, Graph, Sync, Trigger, Catch or If is set.
type ActionNode struct {
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	Invoke string `yaml:"invoke,omitempty" json:"invoke,omitempty"`

	Sequence      []*ActionNode `yaml:"sequence,omitempty" json:"sequence,omitempty"`
	Concurrency   []*ActionNode `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	MaxConcurrent int           `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`

	Select []*ActionNode `yaml:"select,omitempty" json:"select,omitempty"`

	// Graph children name their dependencies by id in After.
	Graph []*ActionNode `yaml:"graph,omitempty" json:"graph,omitempty"`
	After []string      `yaml:"after,omitempty" json:"after,omitempty"`

	Sync *SyncNode `yaml:"sync,omitempty" json:"sync,omitempty"`

	Trigger *ActionNode `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	On      string      `yaml:"on,omitempty" json:"on,omitempty"`

	Catch  *ActionNode `yaml:"catch,omitempty" json:"catch,omitempty"`
	Filter []string    `yaml:"filter,omitempty" json:"filter,omitempty"` // user, timeout, all

	If   string      `yaml:"if,omitempty" json:"if,omitempty"`
	Then *ActionNode `yaml:"then,omitempty" json:"then,omitempty"`
	Else *ActionNode `yaml:"else,omitempty" json:"else,omitempty"`
}

// SyncNode selects the direction of a Sync action.
type SyncNode struct {
	Notify string `yaml:"notify,omitempty" json:"notify,omitempty"`
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`
	Value  uint32 `yaml:"value,omitempty" json:"value,omitempty"`
}
