package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicyDeniesMountAndPtrace(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	if policy.DefaultAction != "SCMP_ACT_ALLOW" {
		t.Fatalf("expected allow default, got %s", policy.DefaultAction)
	}
	denied := make(map[string]bool)
	for _, rule := range policy.Syscalls {
		for _, name := range rule.Names {
			denied[name] = rule.Action != "SCMP_ACT_ALLOW"
		}
	}
	for _, name := range []string{"mount", "pivot_root", "unshare", "setns", "ptrace", "bpf"} {
		if !denied[name] {
			t.Fatalf("expected %s to be denied", name)
		}
	}
}

func TestLoadSeccompPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	custom := `{"defaultAction":"SCMP_ACT_ALLOW","syscalls":[{"names":["ptrace"],"action":"SCMP_ACT_KILL"}]}`
	if err := os.WriteFile(filepath.Join(dir, "strict.json"), []byte(custom), 0644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"defaultAction":"SCMP_ACT_TRACE"}`), 0644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	policy, err := LoadSeccompPolicy(dir, DefaultSeccompProfile)
	if err != nil {
		t.Fatalf("expected built-in fallback, got %v", err)
	}
	if len(policy.Syscalls) == 0 {
		t.Fatalf("expected built-in rules")
	}

	policy, err = LoadSeccompPolicy(dir, "strict.json")
	if err != nil {
		t.Fatalf("load strict: %v", err)
	}
	if len(policy.Syscalls) != 1 || policy.Syscalls[0].Names[0] != "ptrace" {
		t.Fatalf("unexpected policy: %+v", policy)
	}

	for _, name := range []string{"bad.json", "missing.json", ""} {
		if _, err := LoadSeccompPolicy(dir, name); err == nil {
			t.Fatalf("%q: expected error", name)
		}
	}
}
