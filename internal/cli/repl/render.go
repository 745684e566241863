package repl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	httpclient "codejudge/internal/cli/http"

	"github.com/fatih/color"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	pendingColor = color.New(color.FgYellow)
	faultColor   = color.New(color.FgMagenta, color.Bold)
	dimColor     = color.New(color.Faint)
	labelColor   = color.New(color.FgCyan)
)

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Body struct {
	Status        *judge0Status `json:"status"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	CompileOutput string        `json:"compile_output"`
	Time          string        `json:"time"`
	Memory        string        `json:"memory"`
	Token         string        `json:"token"`
	ExitCode      *int          `json:"exit_code"`
	ExitSignal    *int          `json:"exit_signal"`
	Message       string        `json:"message"`
}

type caseReport struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
}

// Render prints a response. Judge0 bodies get a colored summary; other JSON is indented when pretty is set.
func Render(w io.Writer, resp httpclient.ResponseInfo, pretty bool) {
	dimColor.Fprintf(w, "HTTP %d (%s)\n", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	var body judge0Body
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Status != nil && body.Status.ID > 0 {
		renderJudge0(w, body)
		return
	}
	if pretty {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			fmt.Fprintln(w, string(formatted))
			return
		}
	}
	fmt.Fprintln(w, string(resp.Body))
}

func statusColor(id int) *color.Color {
	switch {
	case id == 3:
		return okColor
	case id == 1 || id == 2:
		return pendingColor
	case id == 13 || id >= 16:
		return faultColor
	default:
		return failColor
	}
}

func renderJudge0(w io.Writer, body judge0Body) {
	statusColor(body.Status.ID).Fprintf(w, "%s (%d)", body.Status.Description, body.Status.ID)
	var meta []string
	if body.Time != "" {
		meta = append(meta, "time="+body.Time+"s")
	}
	if body.Memory != "" {
		meta = append(meta, "memory="+body.Memory+"KB")
	}
	if body.ExitCode != nil {
		meta = append(meta, fmt.Sprintf("exit=%d", *body.ExitCode))
	}
	if body.ExitSignal != nil {
		meta = append(meta, fmt.Sprintf("signal=%d", *body.ExitSignal))
	}
	if body.Token != "" {
		meta = append(meta, "token="+body.Token)
	}
	if len(meta) > 0 {
		dimColor.Fprintf(w, "  %s", strings.Join(meta, " "))
	}
	fmt.Fprintln(w)

	if cases, ok := parseCaseReport(body.Stdout); ok {
		renderCases(w, cases)
	} else {
		section(w, "stdout", body.Stdout)
	}
	section(w, "stderr", body.Stderr)
	section(w, "compile_output", body.CompileOutput)
	section(w, "message", body.Message)
}

func parseCaseReport(stdout string) ([]caseReport, bool) {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "[{") {
		return nil, false
	}
	var cases []caseReport
	if err := json.Unmarshal([]byte(trimmed), &cases); err != nil {
		return nil, false
	}
	return cases, true
}

func renderCases(w io.Writer, cases []caseReport) {
	passed := 0
	for i, c := range cases {
		if c.Passed {
			passed++
			okColor.Fprintf(w, "  case %d PASS", i+1)
		} else {
			failColor.Fprintf(w, "  case %d FAIL", i+1)
		}
		dimColor.Fprintf(w, "  expected=%q actual=%q\n", c.ExpectedOutput, c.ActualOutput)
	}
	labelColor.Fprintf(w, "passed %d/%d\n", passed, len(cases))
}

func section(w io.Writer, name, text string) {
	if text == "" {
		return
	}
	labelColor.Fprintf(w, "%s:\n", name)
	fmt.Fprint(w, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(w)
	}
}
