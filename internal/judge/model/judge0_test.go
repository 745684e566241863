package model

import (
	"encoding/json"
	"testing"

	"codejudge/internal/judge/sandbox/result"
)

func TestJudge0StatusID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   VerdictStatus
		exitCode int
		signal   int
		want     int
	}{
		{name: "accepted", status: VerdictAccepted, want: 3},
		{name: "wrong_answer", status: VerdictWrongAnswer, want: 4},
		{name: "timed_out", status: VerdictTimedOut, want: 5},
		{name: "compile_error", status: VerdictCompileError, want: 6},
		{name: "sigsegv", status: VerdictRuntimeError, exitCode: -1, signal: 11, want: 7},
		{name: "sigxfsz", status: VerdictRuntimeError, exitCode: -1, signal: 25, want: 8},
		{name: "sigfpe", status: VerdictRuntimeError, exitCode: -1, signal: 8, want: 9},
		{name: "sigabrt", status: VerdictRuntimeError, exitCode: -1, signal: 6, want: 10},
		{name: "nzec", status: VerdictRuntimeError, exitCode: 1, want: 11},
		{name: "other_signal", status: VerdictRuntimeError, exitCode: -1, signal: 9, want: 12},
		{name: "internal", status: VerdictInternalError, want: 13},
		{name: "mle", status: VerdictMemoryLimitExceeded, want: 15},
		{name: "wait_timeout", status: VerdictWaitTimedOut, want: 16},
		{name: "queue_full", status: VerdictQueueFull, want: 17},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Judge0StatusID(tt.status, tt.exitCode, tt.signal); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestVerdictToJudge0RawOutput(t *testing.T) {
	t.Parallel()
	v := Verdict{
		SubmissionID: "s1",
		Status:       VerdictAccepted,
		Output:       RawOutput("5\n"),
		TimeMs:       1234,
		MemoryKB:     2048,
	}
	resp, err := v.ToJudge0("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status.ID != 3 || resp.Status.Description != "Accepted" {
		t.Fatalf("expected accepted status, got %+v", resp.Status)
	}
	if resp.Stdout != "5\n" {
		t.Fatalf("expected raw stdout, got %q", resp.Stdout)
	}
	if resp.Time != "1.234" || resp.Memory != "2048" {
		t.Fatalf("expected time 1.234 memory 2048, got %s %s", resp.Time, resp.Memory)
	}
	if resp.ExitCode != nil {
		t.Fatalf("expected no exit code for accepted verdict")
	}
}

func TestVerdictToJudge0Report(t *testing.T) {
	t.Parallel()
	cases := []CaseResult{
		{Input: "1", ExpectedOutput: "[0,1]", ActualOutput: "[1,0]", Passed: true},
		{Input: "2", ExpectedOutput: "[0,2]", ActualOutput: "[0,1]", Passed: false},
	}
	v := Verdict{Status: VerdictWrongAnswer, Cases: cases, Output: TestCaseReport(cases)}
	resp, err := v.ToJudge0("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded []CaseResult
	if err := json.Unmarshal([]byte(resp.Stdout), &decoded); err != nil {
		t.Fatalf("expected JSON report, got %q: %v", resp.Stdout, err)
	}
	if len(decoded) != 2 || decoded[1].Passed {
		t.Fatalf("expected two cases with the second failing, got %+v", decoded)
	}
	if resp.Status.ID != Judge0WrongAnswer {
		t.Fatalf("expected wrong answer, got %d", resp.Status.ID)
	}
}

func TestOutputRenderDoesNotParseText(t *testing.T) {
	t.Parallel()
	raw := RawOutput(`[{"passed":true}]`)
	got, err := raw.Render()
	if err != nil || got != `[{"passed":true}]` {
		t.Fatalf("expected raw text untouched, got %q %v", got, err)
	}
	empty, err := TestCaseReport(nil).Render()
	if err != nil || empty != "[]" {
		t.Fatalf("expected empty array, got %q %v", empty, err)
	}
}

func TestRunToJudge0(t *testing.T) {
	t.Parallel()
	if got := RunToJudge0("t", result.StatusQueued, nil); got.Status.ID != Judge0InQueue {
		t.Fatalf("expected in queue, got %d", got.Status.ID)
	}
	if got := RunToJudge0("t", result.StatusRunning, nil); got.Status.ID != Judge0Processing {
		t.Fatalf("expected processing, got %d", got.Status.ID)
	}
	res := &result.RunResult{Status: result.StatusRuntimeError, ExitCode: 1, Stderr: "boom", WallTimeMs: 20}
	got := RunToJudge0("t", res.Status, res)
	if got.Status.ID != Judge0RuntimeNZEC {
		t.Fatalf("expected NZEC, got %d", got.Status.ID)
	}
	if got.ExitCode == nil || *got.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %v", got.ExitCode)
	}
	if got.Time != "0.020" {
		t.Fatalf("expected 0.020, got %s", got.Time)
	}
}

func TestNewVerdictEvent(t *testing.T) {
	t.Parallel()
	pid := int64(2)
	sub := Submission{ID: "s", Language: "python", ProblemID: &pid}
	v := Verdict{SubmissionID: "s", Status: VerdictWrongAnswer, Cases: []CaseResult{{Passed: true}, {Passed: false}}}
	ev := NewVerdictEvent(sub, v, 10)
	if ev.ProblemID != 2 || ev.CasesPassed != 1 || ev.CasesRun != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
