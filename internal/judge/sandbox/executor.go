// Package sandbox runs one untrusted program against one stdin and classifies
// the outcome.
package sandbox

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"codejudge/internal/judge/observer"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/language"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/spec"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	containerWorkDir = "/work"
	stdinName        = "stdin.txt"
	stdoutName       = "stdout.txt"
	stderrName       = "stderr.txt"
	checkLogName     = "check.log"
	checkOutName     = "check.out"
)

// Executor runs a RunRequest to a terminal RunResult. A non-nil error is an
// infrastructure fault; program failures are statuses.
type Executor interface {
	Execute(ctx context.Context, req spec.RunRequest) (result.RunResult, error)
}

// Config controls scratch space and default limits.
type Config struct {
	WorkRoot      string             `yaml:"workRoot"`
	KeepWorkDir   bool               `yaml:"keepWorkDir"`
	DefaultLimits spec.ResourceLimit `yaml:"defaultLimits"`
	CheckLimits   spec.ResourceLimit `yaml:"checkLimits"`
}

// ProcessExecutor drives the sandbox engine through the check and run steps.
type ProcessExecutor struct {
	eng     engine.Engine
	langs   *language.Repository
	cfg     Config
	metrics observer.MetricsRecorder
}

// NewExecutor creates an executor backed by the sandbox engine.
func NewExecutor(eng engine.Engine, langs *language.Repository, cfg Config, metrics observer.MetricsRecorder) *ProcessExecutor {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "codejudge")
	}
	return &ProcessExecutor{eng: eng, langs: langs, cfg: cfg, metrics: metrics}
}

func (e *ProcessExecutor) Execute(ctx context.Context, req spec.RunRequest) (result.RunResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.RunResult{}, err
	}
	lang, err := e.langs.Get(req.Language)
	if err != nil {
		return result.RunResult{}, err
	}

	hostDir := filepath.Join(e.cfg.WorkRoot, req.RunID)
	if !e.cfg.KeepWorkDir {
		defer func() {
			if err := os.RemoveAll(hostDir); err != nil {
				logger.Warn(ctx, "remove work dir failed", zap.String("dir", hostDir), zap.Error(err))
			}
		}()
	}
	if err := prepareWorkDir(hostDir, lang, req); err != nil {
		return result.RunResult{}, err
	}
	mounts := []spec.MountSpec{{Source: hostDir, Target: containerWorkDir}}

	if lang.HasCheck() {
		checkRes, passed, err := e.check(ctx, req, lang, mounts)
		if err != nil {
			return result.RunResult{}, err
		}
		if !passed {
			return checkRes, nil
		}
	}

	limits := applyLimits(req.Limits, e.cfg.DefaultLimits, lang)
	cmd, err := language.BuildCommand(lang.RunCmd, lang, containerWorkDir)
	if err != nil {
		return result.RunResult{}, err
	}
	runSpec := spec.RunSpec{
		RunID:      req.RunID,
		Step:       string(language.TaskRun),
		WorkDir:    containerWorkDir,
		Cmd:        cmd,
		Env:        lang.Env,
		StdinPath:  filepath.Join(containerWorkDir, stdinName),
		StdoutPath: filepath.Join(containerWorkDir, stdoutName),
		StderrPath: filepath.Join(containerWorkDir, stderrName),
		BindMounts: mounts,
		Profile:    language.ProfileName(lang.ID, language.TaskRun),
		Limits:     limits,
	}
	exec, err := e.eng.Run(ctx, runSpec)
	if err != nil {
		e.metrics.ObserveStep(ctx, lang.ID, string(language.TaskRun), false, 0)
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "sandbox run failed")
	}
	status := mapRunStatus(exec, limits)
	e.metrics.ObserveStep(ctx, lang.ID, string(language.TaskRun), true, exec.WallTimeMs)
	e.metrics.ObserveRun(ctx, lang.ID, string(status), exec.WallTimeMs, exec.MemoryKB)
	logger.Debug(ctx, "run finished",
		zap.String("run_id", req.RunID),
		zap.String("language", lang.ID),
		zap.String("status", string(status)),
		zap.Int64("wall_ms", exec.WallTimeMs),
		zap.Int64("memory_kb", exec.MemoryKB),
	)
	return toRunResult(status, exec), nil
}

// check runs the syntax-check step. passed is false when the program must
// not be run; the returned result is then terminal.
func (e *ProcessExecutor) check(ctx context.Context, req spec.RunRequest, lang language.Spec, mounts []spec.MountSpec) (result.RunResult, bool, error) {
	cmd, err := language.BuildCommand(lang.CheckCmd, lang, containerWorkDir)
	if err != nil {
		return result.RunResult{}, false, err
	}
	limits := applyLimits(e.cfg.CheckLimits, e.cfg.DefaultLimits, lang)
	checkSpec := spec.RunSpec{
		RunID:      req.RunID,
		Step:       string(language.TaskCheck),
		WorkDir:    containerWorkDir,
		Cmd:        cmd,
		Env:        lang.Env,
		StdoutPath: filepath.Join(containerWorkDir, checkOutName),
		StderrPath: filepath.Join(containerWorkDir, checkLogName),
		BindMounts: mounts,
		Profile:    language.ProfileName(lang.ID, language.TaskCheck),
		Limits:     limits,
	}
	exec, err := e.eng.Run(ctx, checkSpec)
	if err != nil {
		e.metrics.ObserveStep(ctx, lang.ID, string(language.TaskCheck), false, 0)
		return result.RunResult{}, false, appErr.Wrapf(err, appErr.JudgeSystemError, "sandbox check failed")
	}
	ok := !exec.TimedOut && exec.ExitCode == 0 && exec.Signal == 0
	e.metrics.ObserveStep(ctx, lang.ID, string(language.TaskCheck), ok, exec.WallTimeMs)
	if ok {
		return result.RunResult{}, true, nil
	}
	if exec.TimedOut {
		return toRunResult(result.StatusTimedOut, exec), false, nil
	}
	output := exec.Stderr
	if strings.TrimSpace(output) == "" {
		output = exec.Stdout
	}
	return result.RunResult{
		Status:        result.StatusCompileError,
		CompileOutput: output,
		ExitCode:      exec.ExitCode,
		WallTimeMs:    exec.WallTimeMs,
		CPUTimeMs:     exec.CPUTimeMs,
		MemoryKB:      exec.MemoryKB,
	}, false, nil
}

func toRunResult(status result.RunStatus, exec result.Execution) result.RunResult {
	return result.RunResult{
		Status:          status,
		Stdout:          exec.Stdout,
		Stderr:          exec.Stderr,
		ExitCode:        exec.ExitCode,
		Signal:          exec.Signal,
		WallTimeMs:      exec.WallTimeMs,
		CPUTimeMs:       exec.CPUTimeMs,
		MemoryKB:        exec.MemoryKB,
		StdoutTruncated: exec.StdoutTruncated,
		StderrTruncated: exec.StderrTruncated,
	}
}

func mapRunStatus(exec result.Execution, limits spec.ResourceLimit) result.RunStatus {
	if exec.TimedOut {
		return result.StatusTimedOut
	}
	if exec.OomKilled {
		return result.StatusMemoryLimitExceeded
	}
	if limits.MemoryMB > 0 && exec.MemoryKB > limits.MemoryMB*1024 {
		return result.StatusMemoryLimitExceeded
	}
	if exec.ExitCode != 0 || exec.Signal != 0 {
		return result.StatusRuntimeError
	}
	return result.StatusFinished
}

func applyLimits(override, defaults spec.ResourceLimit, lang language.Spec) spec.ResourceLimit {
	limits := defaults.Merge(override)
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func validateRunRequest(req spec.RunRequest) error {
	if req.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	if req.RunID != filepath.Base(req.RunID) || strings.HasPrefix(req.RunID, ".") {
		return appErr.ValidationError("run_id", "must be a plain name")
	}
	if req.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	return nil
}

func prepareWorkDir(hostDir string, lang language.Spec, req spec.RunRequest) error {
	if lang.SourceFile == "" {
		return appErr.ValidationError("source_file", "required")
	}
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	if err := os.WriteFile(filepath.Join(hostDir, lang.SourceFile), []byte(req.SourceCode), 0644); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
	}
	if err := os.WriteFile(filepath.Join(hostDir, stdinName), []byte(req.Stdin), 0644); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write stdin failed")
	}
	return nil
}
