package model

import "codejudge/internal/judge/sandbox/result"

// VerdictStatus is the overall outcome of a submission.
type VerdictStatus string

const (
	VerdictAccepted            VerdictStatus = "Accepted"
	VerdictWrongAnswer         VerdictStatus = "WrongAnswer"
	VerdictCompileError        VerdictStatus = "CompileError"
	VerdictRuntimeError        VerdictStatus = "RuntimeError"
	VerdictTimedOut            VerdictStatus = "TimedOut"
	VerdictMemoryLimitExceeded VerdictStatus = "MemoryLimitExceeded"
	VerdictWaitTimedOut        VerdictStatus = "WaitTimedOut"
	VerdictQueueFull           VerdictStatus = "QueueFull"
	VerdictInternalError       VerdictStatus = "InternalError"
)

// VerdictFromRun maps a failed run status onto the verdict that stops judging.
// Finished maps to Accepted; callers decide WrongAnswer from comparisons.
func VerdictFromRun(status result.RunStatus) VerdictStatus {
	switch status {
	case result.StatusFinished:
		return VerdictAccepted
	case result.StatusTimedOut:
		return VerdictTimedOut
	case result.StatusMemoryLimitExceeded:
		return VerdictMemoryLimitExceeded
	case result.StatusCompileError:
		return VerdictCompileError
	case result.StatusRuntimeError:
		return VerdictRuntimeError
	default:
		return VerdictInternalError
	}
}

// CaseResult is the comparison outcome of one test case.
type CaseResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
}

// OutputKind tags what Output carries.
type OutputKind string

const (
	OutputRaw    OutputKind = "raw"
	OutputReport OutputKind = "report"
)

// Output is either the raw stdout of a free run or the per-case report.
type Output struct {
	Kind   OutputKind   `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Report []CaseResult `json:"report,omitempty"`
}

func RawOutput(text string) Output {
	return Output{Kind: OutputRaw, Text: text}
}

func TestCaseReport(cases []CaseResult) Output {
	report := make([]CaseResult, len(cases))
	copy(report, cases)
	return Output{Kind: OutputReport, Report: report}
}

// Verdict is the final result of judging a submission.
type Verdict struct {
	SubmissionID  string        `json:"submissionId"`
	Status        VerdictStatus `json:"status"`
	Cases         []CaseResult  `json:"cases"`
	Output        Output        `json:"output"`
	Stderr        string        `json:"stderr"`
	CompileOutput string        `json:"compileOutput"`
	TimeMs        int64         `json:"timeMs"`
	MemoryKB      int64         `json:"memoryKB"`
	ExitCode      int           `json:"exitCode"`
	Signal        int           `json:"signal,omitempty"`
	// Message explains InternalError, QueueFull and WaitTimedOut verdicts.
	Message string `json:"message,omitempty"`
}

// Accepted reports the overall success of the submission.
func (v Verdict) Accepted() bool {
	return v.Status == VerdictAccepted
}
