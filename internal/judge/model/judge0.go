package model

import (
	"encoding/json"
	"fmt"

	"codejudge/internal/judge/sandbox/result"
)

// Judge0 status ids, kept wire-compatible with existing clients.
const (
	Judge0InQueue             = 1
	Judge0Processing          = 2
	Judge0Accepted            = 3
	Judge0WrongAnswer         = 4
	Judge0TimeLimitExceeded   = 5
	Judge0CompilationError    = 6
	Judge0RuntimeSIGSEGV      = 7
	Judge0RuntimeSIGXFSZ      = 8
	Judge0RuntimeSIGFPE       = 9
	Judge0RuntimeSIGABRT      = 10
	Judge0RuntimeNZEC         = 11
	Judge0RuntimeOther        = 12
	Judge0InternalError       = 13
	Judge0MemoryLimitExceeded = 15
	Judge0WaitTimedOut        = 16
	Judge0QueueFull           = 17
)

var judge0Descriptions = map[int]string{
	Judge0InQueue:             "In Queue",
	Judge0Processing:          "Processing",
	Judge0Accepted:            "Accepted",
	Judge0WrongAnswer:         "Wrong Answer",
	Judge0TimeLimitExceeded:   "Time Limit Exceeded",
	Judge0CompilationError:    "Compilation Error",
	Judge0RuntimeSIGSEGV:      "Runtime Error (SIGSEGV)",
	Judge0RuntimeSIGXFSZ:      "Runtime Error (SIGXFSZ)",
	Judge0RuntimeSIGFPE:       "Runtime Error (SIGFPE)",
	Judge0RuntimeSIGABRT:      "Runtime Error (SIGABRT)",
	Judge0RuntimeNZEC:         "Runtime Error (NZEC)",
	Judge0RuntimeOther:        "Runtime Error (Other)",
	Judge0InternalError:       "Internal Error",
	Judge0MemoryLimitExceeded: "Memory Limit Exceeded",
	Judge0WaitTimedOut:        "Wait Timed Out",
	Judge0QueueFull:           "Queue Full",
}

// Judge0Status is the {id, description} pair of a Judge0 response.
type Judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

func NewJudge0Status(id int) Judge0Status {
	return Judge0Status{ID: id, Description: judge0Descriptions[id]}
}

// Judge0Response is the serialized verdict returned by the execute endpoints.
type Judge0Response struct {
	Status        Judge0Status `json:"status"`
	Stdout        string       `json:"stdout"`
	Stderr        string       `json:"stderr"`
	CompileOutput string       `json:"compile_output"`
	Time          string       `json:"time"`
	Memory        string       `json:"memory"`
	Token         string       `json:"token,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	ExitSignal    *int         `json:"exit_signal,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Judge0StatusID maps a verdict onto the Judge0 status table.
func Judge0StatusID(status VerdictStatus, exitCode, signal int) int {
	switch status {
	case VerdictAccepted:
		return Judge0Accepted
	case VerdictWrongAnswer:
		return Judge0WrongAnswer
	case VerdictTimedOut:
		return Judge0TimeLimitExceeded
	case VerdictCompileError:
		return Judge0CompilationError
	case VerdictRuntimeError:
		return runtimeStatusID(exitCode, signal)
	case VerdictMemoryLimitExceeded:
		return Judge0MemoryLimitExceeded
	case VerdictWaitTimedOut:
		return Judge0WaitTimedOut
	case VerdictQueueFull:
		return Judge0QueueFull
	default:
		return Judge0InternalError
	}
}

func runtimeStatusID(exitCode, signal int) int {
	switch signal {
	case 0:
		if exitCode != 0 {
			return Judge0RuntimeNZEC
		}
		return Judge0RuntimeOther
	case 11:
		return Judge0RuntimeSIGSEGV
	case 25:
		return Judge0RuntimeSIGXFSZ
	case 8:
		return Judge0RuntimeSIGFPE
	case 6:
		return Judge0RuntimeSIGABRT
	default:
		return Judge0RuntimeOther
	}
}

// ToJudge0 serializes a verdict. The output variant decides what stdout carries.
func (v Verdict) ToJudge0(token string) (Judge0Response, error) {
	stdout, err := v.Output.Render()
	if err != nil {
		return Judge0Response{}, err
	}
	resp := Judge0Response{
		Status:        NewJudge0Status(Judge0StatusID(v.Status, v.ExitCode, v.Signal)),
		Stdout:        stdout,
		Stderr:        v.Stderr,
		CompileOutput: v.CompileOutput,
		Time:          formatSeconds(v.TimeMs),
		Memory:        fmt.Sprintf("%d", v.MemoryKB),
		Token:         token,
		Message:       v.Message,
	}
	if v.Status == VerdictRuntimeError {
		exitCode, signal := v.ExitCode, v.Signal
		resp.ExitCode = &exitCode
		if signal != 0 {
			resp.ExitSignal = &signal
		}
	}
	return resp, nil
}

// Render returns the stdout field: raw text, or the case report as a JSON array.
func (o Output) Render() (string, error) {
	switch o.Kind {
	case OutputReport:
		report := o.Report
		if report == nil {
			report = []CaseResult{}
		}
		data, err := json.Marshal(report)
		if err != nil {
			return "", fmt.Errorf("encode case report failed: %w", err)
		}
		return string(data), nil
	default:
		return o.Text, nil
	}
}

// RunToJudge0 renders one scheduler run for the async token API.
func RunToJudge0(token string, status result.RunStatus, res *result.RunResult) Judge0Response {
	switch status {
	case result.StatusQueued:
		return Judge0Response{Status: NewJudge0Status(Judge0InQueue), Token: token}
	case result.StatusRunning:
		return Judge0Response{Status: NewJudge0Status(Judge0Processing), Token: token}
	}
	if res == nil {
		return Judge0Response{Status: NewJudge0Status(Judge0InternalError), Token: token}
	}
	v := Verdict{
		Status:        VerdictFromRun(res.Status),
		Output:        RawOutput(res.Stdout),
		Stderr:        res.Stderr,
		CompileOutput: res.CompileOutput,
		TimeMs:        res.WallTimeMs,
		MemoryKB:      res.MemoryKB,
		ExitCode:      res.ExitCode,
		Signal:        res.Signal,
	}
	resp, _ := v.ToJudge0(token)
	return resp
}

func formatSeconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}
