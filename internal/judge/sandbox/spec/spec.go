// Package spec defines run requests, engine run specs and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs" json:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs" json:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB" json:"memoryMB"`
	StackMB    int64 `yaml:"stackMB" json:"stackMB"`
	OutputMB   int64 `yaml:"outputMB" json:"outputMB"`
	PIDs       int64 `yaml:"pids" json:"pids"`
}

// Merge returns base with every positive field of override applied.
func (base ResourceLimit) Merge(override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

// RunRequest is one self-contained sandbox invocation: one program, one stdin.
type RunRequest struct {
	RunID      string        `json:"runId"`
	SourceCode string        `json:"sourceCode"`
	Language   string        `json:"language"`
	Stdin      string        `json:"stdin"`
	Limits     ResourceLimit `json:"limits"`
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is what the engine executes for one step of a run.
type RunSpec struct {
	RunID      string
	Step       string
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []MountSpec
	Profile    string
	Limits     ResourceLimit
}
