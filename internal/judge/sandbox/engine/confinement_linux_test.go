//go:build linux

package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"codejudge/internal/judge/sandbox/security"
	"codejudge/internal/judge/sandbox/spec"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "namespaces", cfg: Config{EnableNamespaces: true}},
		{name: "unconfined_opt_in", cfg: Config{AllowUnconfined: true}},
		{name: "unconfined_by_default", cfg: Config{}, wantErr: true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: expected error=%v, got %v", tc.name, tc.wantErr, err)
		}
	}
	if _, err := NewEngine(Config{}, staticResolver{}); err == nil {
		t.Fatalf("expected engine without namespaces to be refused")
	}
}

func TestEngineRequiresSeccompPolicy(t *testing.T) {
	t.Parallel()

	eng, err := NewEngine(Config{EnableNamespaces: true, EnableSeccomp: true, HelperPath: "/nonexistent"}, staticResolver{})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	workDir := t.TempDir()
	_, err = eng.Run(context.Background(), spec.RunSpec{
		RunID: "r", Step: "run", WorkDir: "/work", Cmd: []string{"true"}, Profile: "python-run",
		BindMounts: []spec.MountSpec{{Source: workDir, Target: "/work"}},
	})
	if err == nil || !strings.Contains(err.Error(), "no seccomp policy") {
		t.Fatalf("expected missing policy error, got %v", err)
	}
}

// TestNamespacedRunCannotSeeSiblingRuns runs the real helper with namespaces
// and checks that another run's scratch dir is neither readable nor writable.
func TestNamespacedRunCannotSeeSiblingRuns(t *testing.T) {
	helperPath := buildSandboxInit(t)

	workRoot := t.TempDir()
	sibling := filepath.Join(workRoot, "other-run")
	own := filepath.Join(workRoot, "this-run")
	for _, dir := range []string{sibling, own} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(sibling, "solution.py"), []byte("OTHER_RUN_SOURCE\n"), 0644); err != nil {
		t.Fatalf("write sibling source: %v", err)
	}

	eng, err := NewEngine(Config{
		HelperPath:       helperPath,
		ScratchDir:       t.TempDir(),
		EnableNamespaces: true,
	}, staticResolver{profile: security.IsolationProfile{DisableNetwork: true}})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	script := "echo alive; cat " + sibling + "/solution.py; echo x > " + sibling + "/tampered; ls /"
	res, err := eng.Run(context.Background(), spec.RunSpec{
		RunID:      "this-run",
		Step:       "run",
		WorkDir:    "/work",
		Cmd:        []string{"/bin/sh", "-c", script},
		StdoutPath: "/work/stdout.txt",
		StderrPath: "/work/stderr.txt",
		BindMounts: []spec.MountSpec{{Source: own, Target: "/work"}},
		Profile:    "sh-run",
		Limits:     spec.ResourceLimit{WallTimeMs: 5000},
	})
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "permission denied") {
			t.Skipf("user namespaces unavailable: %v", err)
		}
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "alive") {
		t.Fatalf("expected the program to run, stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if strings.Contains(res.Stdout, "OTHER_RUN_SOURCE") {
		t.Fatalf("sibling run source leaked into sandbox: %q", res.Stdout)
	}
	if _, err := os.Stat(filepath.Join(sibling, "tampered")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected sibling dir to be untouched, got %v", err)
	}
	if strings.Contains(res.Stdout, "home") {
		t.Fatalf("expected a minimal root, got listing %q", res.Stdout)
	}
}

func buildSandboxInit(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	out := filepath.Join(t.TempDir(), "sandbox-init")
	cmd := exec.Command("go", "build", "-o", out, "codejudge/cmd/sandbox-init")
	if output, err := cmd.CombinedOutput(); err != nil {
		// libseccomp headers are needed for cgo
		t.Skipf("build sandbox-init: %v: %s", err, string(output))
	}
	return out
}
