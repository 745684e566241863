//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codejudge/internal/judge/sandbox/security"
	"codejudge/internal/judge/sandbox/spec"
)

type staticResolver struct {
	profile security.IsolationProfile
	err     error
}

func (r staticResolver) Resolve(profile string) (security.IsolationProfile, error) {
	if r.err != nil {
		return security.IsolationProfile{}, r.err
	}
	return r.profile, nil
}

func TestReadLimitedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name      string
		max       int64
		want      string
		truncated bool
	}{
		{name: "under_limit", max: 64, want: "0123456789"},
		{name: "exact_limit", max: 10, want: "0123456789"},
		{name: "over_limit", max: 4, want: "0123", truncated: true},
	}
	for _, tc := range cases {
		got, truncated := readLimitedFile(path, tc.max)
		if got != tc.want || truncated != tc.truncated {
			t.Fatalf("%s: expected (%q,%v), got (%q,%v)", tc.name, tc.want, tc.truncated, got, truncated)
		}
	}
	if got, truncated := readLimitedFile(filepath.Join(dir, "missing"), 8); got != "" || truncated {
		t.Fatalf("expected empty read for missing file, got %q", got)
	}
}

func TestResolveHostPath(t *testing.T) {
	t.Parallel()

	runSpec := spec.RunSpec{
		BindMounts: []spec.MountSpec{
			{Source: "/var/judge/run-1", Target: "/work"},
			{Source: "/var/judge/run-1/out", Target: "/work/out"},
		},
	}
	cases := map[string]string{
		"/work/solution.py": "/var/judge/run-1/solution.py",
		"/work/out/stdout":  "/var/judge/run-1/out/stdout",
		"/work":             "/var/judge/run-1",
		"/workspace/x":      "/workspace/x",
		"":                  "",
	}
	for in, want := range cases {
		if got := resolveHostPath(in, runSpec); got != want {
			t.Fatalf("resolve %q: expected %q, got %q", in, want, got)
		}
	}
}

func TestFlattenMounts(t *testing.T) {
	t.Parallel()

	runSpec := spec.RunSpec{
		WorkDir:    "/work",
		Cmd:        []string{"python3", "/work/solution.py", "-u"},
		StdinPath:  "/work/stdin",
		StdoutPath: "/work/stdout",
		BindMounts: []spec.MountSpec{{Source: "/tmp/run-9", Target: "/work"}},
	}
	flat := flattenMounts(runSpec)
	if flat.WorkDir != "/tmp/run-9" {
		t.Fatalf("expected host workdir, got %q", flat.WorkDir)
	}
	if flat.Cmd[1] != "/tmp/run-9/solution.py" || flat.Cmd[0] != "python3" || flat.Cmd[2] != "-u" {
		t.Fatalf("unexpected cmd: %v", flat.Cmd)
	}
	if flat.StdinPath != "/tmp/run-9/stdin" || flat.StdoutPath != "/tmp/run-9/stdout" {
		t.Fatalf("unexpected io paths: %q %q", flat.StdinPath, flat.StdoutPath)
	}
	if len(flat.BindMounts) != 0 {
		t.Fatalf("expected bind mounts to be dropped")
	}
	if runSpec.Cmd[1] != "/work/solution.py" {
		t.Fatalf("original spec must not be modified")
	}
}

func TestValidateRunSpec(t *testing.T) {
	t.Parallel()

	valid := spec.RunSpec{RunID: "r", Step: "run", WorkDir: "/w", Cmd: []string{"true"}, Profile: "p"}
	if err := validateRunSpec(valid); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
	broken := []func(*spec.RunSpec){
		func(s *spec.RunSpec) { s.RunID = "" },
		func(s *spec.RunSpec) { s.Step = "" },
		func(s *spec.RunSpec) { s.WorkDir = "" },
		func(s *spec.RunSpec) { s.Cmd = nil },
		func(s *spec.RunSpec) { s.Profile = "" },
	}
	for i, mutate := range broken {
		s := valid
		mutate(&s)
		if err := validateRunSpec(s); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLinuxEngineRun(t *testing.T) {
	helperPath := buildTestHelper(t)
	resolver := staticResolver{profile: security.IsolationProfile{}}

	newEngine := func(t *testing.T, cfg Config) Engine {
		cfg.HelperPath = helperPath
		cfg.AllowUnconfined = true
		eng, err := NewEngine(cfg, resolver)
		if err != nil {
			t.Fatalf("create engine: %v", err)
		}
		return eng
	}
	newSpec := func(workDir, script string, limits spec.ResourceLimit) spec.RunSpec {
		return spec.RunSpec{
			RunID:      "run-" + filepath.Base(workDir),
			Step:       "run",
			WorkDir:    workDir,
			Cmd:        []string{"/bin/sh", "-c", script},
			StdoutPath: filepath.Join(workDir, "stdout.txt"),
			StderrPath: filepath.Join(workDir, "stderr.txt"),
			Profile:    "default",
			Limits:     limits,
		}
	}

	t.Run("captures_output_and_stats", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := eng.Run(ctx, newSpec(workDir, "echo hello; echo oops 1>&2", spec.ResourceLimit{WallTimeMs: 2000}))
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if res.ExitCode != 0 || res.TimedOut {
			t.Fatalf("expected clean exit, got code=%d timedOut=%v", res.ExitCode, res.TimedOut)
		}
		if strings.TrimSpace(res.Stdout) != "hello" {
			t.Fatalf("unexpected stdout: %q", res.Stdout)
		}
		if !strings.Contains(res.Stderr, "oops") {
			t.Fatalf("stderr missing expected content: %q", res.Stderr)
		}
		if res.WallTimeMs < 0 {
			t.Fatalf("expected non-negative wall time, got %d", res.WallTimeMs)
		}
	})

	t.Run("nonzero_exit", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{})
		res, err := eng.Run(context.Background(), newSpec(workDir, "exit 3", spec.ResourceLimit{WallTimeMs: 2000}))
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if res.ExitCode != 3 {
			t.Fatalf("expected exit code 3, got %d", res.ExitCode)
		}
	})

	t.Run("output_truncation", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{StdoutStderrMaxBytes: 8})
		res, err := eng.Run(context.Background(), newSpec(workDir, "printf '0123456789'; printf 'abcdefghij' 1>&2", spec.ResourceLimit{WallTimeMs: 2000}))
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if res.Stdout != "01234567" || !res.StdoutTruncated {
			t.Fatalf("expected truncated stdout, got %q truncated=%v", res.Stdout, res.StdoutTruncated)
		}
		if res.Stderr != "abcdefgh" || !res.StderrTruncated {
			t.Fatalf("expected truncated stderr, got %q truncated=%v", res.Stderr, res.StderrTruncated)
		}
	})

	t.Run("wall_timeout_kills_process", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{})
		start := time.Now()
		res, err := eng.Run(context.Background(), newSpec(workDir, "sleep 5", spec.ResourceLimit{WallTimeMs: 100}))
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if !res.TimedOut {
			t.Fatalf("expected timed out execution")
		}
		if res.ExitCode != -1 && res.ExitCode != 255 {
			t.Fatalf("expected killed exit code, got %d", res.ExitCode)
		}
		if time.Since(start) > 3*time.Second {
			t.Fatalf("timeout did not stop the process promptly")
		}
	})

	t.Run("context_cancel_is_engine_error", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()
		_, err := eng.Run(ctx, newSpec(workDir, "sleep 5", spec.ResourceLimit{WallTimeMs: 4000}))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	})

	t.Run("cgroup_limits_and_kill", func(t *testing.T) {
		workDir := t.TempDir()
		cgroupRoot := filepath.Join(t.TempDir(), "cgroup")
		eng := newEngine(t, Config{CgroupRoot: cgroupRoot, EnableCgroup: true})
		runSpec := newSpec(workDir, "echo ok; sleep 0.5", spec.ResourceLimit{MemoryMB: 16, PIDs: 5, WallTimeMs: 3000})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			_, runErr := eng.Run(ctx, runSpec)
			errCh <- runErr
		}()

		stepDir, err := waitForStepDir(cgroupRoot, runSpec.RunID, 2*time.Second)
		if err != nil {
			t.Fatalf("wait for cgroup directory: %v", err)
		}
		expect := map[string]string{
			"pids.max":   "5",
			"memory.max": "16777216",
			"cpu.max":    "max 100000",
		}
		for name, want := range expect {
			data, err := os.ReadFile(filepath.Join(stepDir, name))
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			if strings.TrimSpace(string(data)) != want {
				t.Fatalf("unexpected %s: %q", name, strings.TrimSpace(string(data)))
			}
		}

		killPath := filepath.Join(stepDir, "cgroup.kill")
		if err := os.WriteFile(killPath, []byte("0"), 0600); err != nil {
			t.Fatalf("prepare cgroup.kill: %v", err)
		}
		if err := killCgroup(stepDir); err != nil {
			t.Fatalf("kill cgroup: %v", err)
		}
		if data, err := os.ReadFile(killPath); err != nil {
			t.Fatalf("read cgroup.kill: %v", err)
		} else if strings.TrimSpace(string(data)) != "1" {
			t.Fatalf("unexpected cgroup.kill value: %q", strings.TrimSpace(string(data)))
		}

		if err := <-errCh; err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if _, err := os.Stat(stepDir); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected cgroup directory to be cleaned up, got %v", err)
		}
	})

	t.Run("same_spec_twice_is_identical", func(t *testing.T) {
		workDir := t.TempDir()
		eng := newEngine(t, Config{})
		runSpec := newSpec(workDir, "read a b; echo $((a+b)); echo warn 1>&2", spec.ResourceLimit{WallTimeMs: 2000})
		runSpec.StdinPath = filepath.Join(workDir, "stdin.txt")
		if err := os.WriteFile(runSpec.StdinPath, []byte("2 3\n"), 0644); err != nil {
			t.Fatalf("write stdin: %v", err)
		}
		first, err := eng.Run(context.Background(), runSpec)
		if err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		second, err := eng.Run(context.Background(), runSpec)
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if first.Stdout != "5\n" {
			t.Fatalf("expected stdout 5, got %q", first.Stdout)
		}
		if first.Stdout != second.Stdout || first.Stderr != second.Stderr || first.ExitCode != second.ExitCode {
			t.Fatalf("expected identical runs, got %+v and %+v", first, second)
		}
	})

	t.Run("profile_error", func(t *testing.T) {
		eng, err := NewEngine(Config{HelperPath: helperPath, AllowUnconfined: true}, staticResolver{err: fmt.Errorf("unknown profile")})
		if err != nil {
			t.Fatalf("create engine: %v", err)
		}
		workDir := t.TempDir()
		if _, err := eng.Run(context.Background(), newSpec(workDir, "true", spec.ResourceLimit{})); err == nil {
			t.Fatalf("expected resolve error")
		}
	})
}

func waitForStepDir(root, runID string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	runDir := filepath.Join(root, runID)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(runDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					return filepath.Join(runDir, entry.Name()), nil
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for cgroup directory")
}

// buildTestHelper compiles a namespace-free helper that speaks the same
// stdin protocol as cmd/sandbox-init.
func buildTestHelper(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	helperDir := filepath.Join(t.TempDir(), "helper")
	if err := os.MkdirAll(helperDir, 0755); err != nil {
		t.Fatalf("create helper dir: %v", err)
	}
	goMod := []byte("module sandboxhelper\n\ngo 1.21\n")
	if err := os.WriteFile(filepath.Join(helperDir, "go.mod"), goMod, 0644); err != nil {
		t.Fatalf("write helper go.mod: %v", err)
	}
	if err := os.WriteFile(filepath.Join(helperDir, "main.go"), []byte(testHelperSource), 0644); err != nil {
		t.Fatalf("write helper main.go: %v", err)
	}
	helperPath := filepath.Join(helperDir, "sandbox-init")
	cmd := exec.Command("go", "build", "-o", helperPath, ".")
	cmd.Dir = helperDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build helper failed: %v: %s", err, string(output))
	}
	return helperPath
}

const testHelperSource = `package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

type initRequest struct {
	RunSpec struct {
		WorkDir    string
		Cmd        []string
		StdinPath  string
		StdoutPath string
		StderrPath string
	}
}

func open(path string, write bool) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	if write {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	}
	return os.Open(path)
}

func main() {
	var req initRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init: decode request:", err)
		os.Exit(127)
	}
	stdin, err := open(req.RunSpec.StdinPath, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(127)
	}
	stdout, err := open(req.RunSpec.StdoutPath, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(127)
	}
	stderr, err := open(req.RunSpec.StderrPath, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(127)
	}
	cmd := exec.Command(req.RunSpec.Cmd[0], req.RunSpec.Cmd[1:]...)
	cmd.Dir = req.RunSpec.WorkDir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stderr
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(127)
	}
}
`
