//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/security"
	"codejudge/internal/judge/sandbox/spec"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
)

// helperFailureExitCode is what cmd/sandbox-init exits with when it cannot
// set up the sandbox before exec.
const helperFailureExitCode = 127

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &linuxEngine{cfg: cfg, resolver: resolver}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.Execution, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.Execution{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.Execution{}, fmt.Errorf("resolve profile: %w", err)
	}
	var policy *security.SeccompPolicy
	if e.cfg.EnableSeccomp {
		if isoProfile.SeccompProfile == "" {
			return result.Execution{}, fmt.Errorf("profile %s has no seccomp policy", runSpec.Profile)
		}
		loaded, err := security.LoadSeccompPolicy(e.cfg.SeccompDir, isoProfile.SeccompProfile)
		if err != nil {
			return result.Execution{}, err
		}
		policy = &loaded
	}

	helperSpec := runSpec
	sandboxRoot := ""
	if e.cfg.EnableNamespaces {
		if isoProfile.RootFS == "" {
			sandboxRoot, err = os.MkdirTemp(e.cfg.ScratchDir, "root-")
			if err != nil {
				return result.Execution{}, fmt.Errorf("create sandbox root: %w", err)
			}
			defer os.RemoveAll(sandboxRoot)
		}
	} else {
		helperSpec = flattenMounts(runSpec)
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if e.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.RunID, runSpec.Step)
		if err != nil {
			return result.Execution{}, fmt.Errorf("create cgroup: %w", err)
		}
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			cgroupCleanup()
			return result.Execution{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
	}
	defer cgroupCleanup()

	initReq := initRequest{
		RunSpec:       helperSpec,
		Isolation:     isoProfile,
		SandboxRoot:   sandboxRoot,
		Seccomp:       policy,
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
	}

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	var helperStdout bytes.Buffer
	var helperStderr bytes.Buffer
	cmd.Stdout = &helperStdout
	cmd.Stderr = &helperStderr
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return result.Execution{}, fmt.Errorf("helper stdin: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.Execution{}, fmt.Errorf("start helper: %w", err)
	}
	pid := cmd.Process.Pid

	// The helper blocks on its stdin, so nothing runs before it joins the cgroup.
	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, pid); err != nil {
			e.killProcessGroup(pid)
			_ = stdinPipe.Close()
			_ = cmd.Wait()
			return result.Execution{}, fmt.Errorf("add process to cgroup: %w", err)
		}
	}
	encodeErr := json.NewEncoder(stdinPipe).Encode(initReq)
	_ = stdinPipe.Close()
	if encodeErr != nil {
		e.killProcessGroup(pid)
		_ = cmd.Wait()
		return result.Execution{}, fmt.Errorf("encode init request: %w", encodeErr)
	}

	var timedOut atomic.Bool
	var cancelled atomic.Bool
	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.Limits.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			timer := time.NewTimer(wallLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			e.kill(pid, cgroupPath)
		case <-wallTimer:
			timedOut.Store(true)
			e.kill(pid, cgroupPath)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	wallTimeMs := time.Since(start).Milliseconds()

	if cancelled.Load() {
		return result.Execution{}, fmt.Errorf("run %s/%s cancelled: %w", runSpec.RunID, runSpec.Step, ctx.Err())
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result.Execution{}, fmt.Errorf("wait helper: %w", waitErr)
	}

	exitCode, signal := exitStatus(cmd.ProcessState)
	if exitCode == helperFailureExitCode && helperStderr.Len() > 0 && !timedOut.Load() {
		logger.Warn(ctx, "sandbox helper failed",
			zap.String("run_id", runSpec.RunID),
			zap.String("step", runSpec.Step),
			zap.String("stderr", helperStderr.String()),
		)
		return result.Execution{}, fmt.Errorf("sandbox helper failed: %s", lastLine(helperStderr.String()))
	}

	stdoutPath := resolveHostPath(runSpec.StdoutPath, runSpec)
	stderrPath := resolveHostPath(runSpec.StderrPath, runSpec)
	stdout, stdoutTruncated := readLimitedFile(stdoutPath, e.cfg.StdoutStderrMaxBytes)
	stderr, stderrTruncated := readLimitedFile(stderrPath, e.cfg.StdoutStderrMaxBytes)

	out := result.Execution{
		ExitCode:        exitCode,
		Signal:          signal,
		TimedOut:        timedOut.Load(),
		OomKilled:       wasOomKilled(cgroupPath),
		CPUTimeMs:       cpuTimeMs(cmd.ProcessState),
		WallTimeMs:      wallTimeMs,
		MemoryKB:        memoryPeakKB(cgroupPath, cmd.ProcessState),
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
	}
	if runSpec.Limits.CPUTimeMs > 0 && out.CPUTimeMs > runSpec.Limits.CPUTimeMs {
		out.TimedOut = true
	}
	if out.TimedOut && out.ExitCode == 0 {
		out.ExitCode = -1
	}
	return out, nil
}

func (e *linuxEngine) kill(pid int, cgroupPath string) {
	e.killProcessGroup(pid)
	if cgroupPath != "" {
		_ = killCgroup(cgroupPath)
	}
}

func (e *linuxEngine) killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitStatus(state *os.ProcessState) (int, int) {
	if state == nil {
		return -1, 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, int(ws.Signal())
	}
	return state.ExitCode(), 0
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if runSpec.Step == "" {
		return fmt.Errorf("step is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if runSpec.Profile == "" {
		return fmt.Errorf("profile is required")
	}
	return nil
}

func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
