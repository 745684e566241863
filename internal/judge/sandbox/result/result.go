// Package result defines run states and sandbox execution results.
package result

// RunStatus is the state of one run.
// Queued and Running are transient; every other value is terminal.
type RunStatus string

const (
	StatusQueued              RunStatus = "Queued"
	StatusRunning             RunStatus = "Running"
	StatusFinished            RunStatus = "Finished"
	StatusTimedOut            RunStatus = "TimedOut"
	StatusMemoryLimitExceeded RunStatus = "MemoryLimitExceeded"
	StatusCompileError        RunStatus = "CompileError"
	StatusRuntimeError        RunStatus = "RuntimeError"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusTimedOut, StatusMemoryLimitExceeded, StatusCompileError, StatusRuntimeError:
		return true
	default:
		return false
	}
}

// Execution is the raw outcome of one engine step.
type Execution struct {
	ExitCode        int
	Signal          int
	TimedOut        bool
	OomKilled       bool
	CPUTimeMs       int64
	WallTimeMs      int64
	MemoryKB        int64
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// RunResult is the terminal outcome of one RunRequest.
type RunResult struct {
	Status          RunStatus `json:"status"`
	Stdout          string    `json:"stdout"`
	Stderr          string    `json:"stderr"`
	CompileOutput   string    `json:"compileOutput"`
	ExitCode        int       `json:"exitCode"`
	Signal          int       `json:"signal,omitempty"`
	WallTimeMs      int64     `json:"wallTimeMs"`
	CPUTimeMs       int64     `json:"cpuTimeMs"`
	MemoryKB        int64     `json:"memoryKB"`
	StdoutTruncated bool      `json:"stdoutTruncated,omitempty"`
	StderrTruncated bool      `json:"stderrTruncated,omitempty"`
}

// PrimaryOutput is the single signal a comparator or renderer should consume.
func (r RunResult) PrimaryOutput() string {
	switch {
	case r.Status == StatusCompileError:
		return r.CompileOutput
	case r.Status == StatusRuntimeError && r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout
	}
}
