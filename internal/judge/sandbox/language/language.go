// Package language defines the languages the sandbox can run and how to
// turn their command templates into argv.
package language

import (
	"fmt"
	"path/filepath"
	"strings"

	"codejudge/internal/judge/sandbox/security"
	appErr "codejudge/pkg/errors"

	"github.com/google/shlex"
)

// Task names one engine step of a run.
type Task string

const (
	TaskCheck Task = "check"
	TaskRun   Task = "run"
)

// Spec defines how to check and run one language.
type Spec struct {
	ID               string                    `yaml:"id"`
	Name             string                    `yaml:"name"`
	Aliases          []string                  `yaml:"aliases"`
	Judge0ID         int                       `yaml:"judge0Id"`
	SourceFile       string                    `yaml:"sourceFile"`
	CheckCmd         string                    `yaml:"checkCmd"`
	RunCmd           string                    `yaml:"runCmd"`
	Env              []string                  `yaml:"env"`
	TimeMultiplier   float64                   `yaml:"timeMultiplier"`
	MemoryMultiplier float64                   `yaml:"memoryMultiplier"`
	Isolation        security.IsolationProfile `yaml:"isolation"`
}

// HasCheck reports whether the language has a syntax-check step.
func (s Spec) HasCheck() bool {
	return strings.TrimSpace(s.CheckCmd) != ""
}

// BuildCommand expands {src} in tpl against workDir and splits it into argv.
func BuildCommand(tpl string, lang Spec, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", filepath.Join(workDir, lang.SourceFile))
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// ProfileName is the isolation profile key for a language step.
func ProfileName(languageID string, task Task) string {
	if languageID == "" {
		return string(task)
	}
	return fmt.Sprintf("%s-%s", languageID, task)
}

var defaultEnv = []string{
	"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	"HOME=/tmp",
	"LANG=C.UTF-8",
}

// Defaults returns the built-in python and javascript languages.
func Defaults() []Spec {
	return []Spec{
		{
			ID:               "python",
			Name:             "Python 3",
			Aliases:          []string{"python3", "py", "71"},
			Judge0ID:         71,
			SourceFile:       "solution.py",
			CheckCmd:         "python3 -m py_compile {src}",
			RunCmd:           "python3 {src}",
			Env:              append([]string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"}, defaultEnv...),
			TimeMultiplier:   1,
			MemoryMultiplier: 1,
			Isolation:        security.IsolationProfile{DisableNetwork: true, SeccompProfile: security.DefaultSeccompProfile},
		},
		{
			ID:               "javascript",
			Name:             "JavaScript (Node.js)",
			Aliases:          []string{"js", "node", "nodejs", "63"},
			Judge0ID:         63,
			SourceFile:       "solution.js",
			CheckCmd:         "node --check {src}",
			RunCmd:           "node {src}",
			Env:              defaultEnv,
			TimeMultiplier:   1.5,
			MemoryMultiplier: 2,
			Isolation:        security.IsolationProfile{DisableNetwork: true, SeccompProfile: security.DefaultSeccompProfile},
		},
	}
}
