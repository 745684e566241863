// Package security defines sandbox isolation profiles and seccomp policies.
package security

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSeccompProfile names the policy built into the service. A file with
// the same name in the seccomp dir overrides it.
const DefaultSeccompProfile = "default.json"

//go:embed default_seccomp.json
var defaultSeccompPolicy []byte

// IsolationProfile describes namespace, filesystem and seccomp settings.
// An empty RootFS makes the helper build a minimal read-only root per run.
type IsolationProfile struct {
	RootFS         string `yaml:"rootFS"`
	SeccompProfile string `yaml:"seccompProfile"`
	DisableNetwork bool   `yaml:"disableNetwork"`
}

// SeccompPolicy is the JSON seccomp format understood by cmd/sandbox-init.
type SeccompPolicy struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []SyscallRule `json:"syscalls"`
}

// SyscallRule applies one action to a set of syscalls.
type SyscallRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

var knownActions = map[string]bool{
	"SCMP_ACT_ALLOW":        true,
	"SCMP_ACT_ERRNO":        true,
	"SCMP_ACT_KILL":         true,
	"SCMP_ACT_KILL_PROCESS": true,
}

// Validate checks that every action is supported and every rule names a syscall.
func (p SeccompPolicy) Validate() error {
	if !knownActions[strings.ToUpper(p.DefaultAction)] {
		return fmt.Errorf("unsupported seccomp default action: %q", p.DefaultAction)
	}
	for i, rule := range p.Syscalls {
		if !knownActions[strings.ToUpper(rule.Action)] {
			return fmt.Errorf("seccomp rule %d: unsupported action %q", i, rule.Action)
		}
		if len(rule.Names) == 0 {
			return fmt.Errorf("seccomp rule %d: no syscalls", i)
		}
	}
	return nil
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() SeccompPolicy {
	policy, err := parsePolicy(defaultSeccompPolicy)
	if err != nil {
		panic(fmt.Sprintf("built-in seccomp policy: %v", err))
	}
	return policy
}

// LoadSeccompPolicy reads a policy file. Relative names resolve against dir.
// The default profile falls back to the built-in policy when no file exists.
func LoadSeccompPolicy(dir, name string) (SeccompPolicy, error) {
	if strings.TrimSpace(name) == "" {
		return SeccompPolicy{}, fmt.Errorf("seccomp profile is required")
	}
	path := name
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && name == DefaultSeccompProfile {
			return DefaultPolicy(), nil
		}
		return SeccompPolicy{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	policy, err := parsePolicy(data)
	if err != nil {
		return SeccompPolicy{}, fmt.Errorf("seccomp profile %s: %w", path, err)
	}
	return policy, nil
}

func parsePolicy(data []byte) (SeccompPolicy, error) {
	var policy SeccompPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return SeccompPolicy{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return SeccompPolicy{}, err
	}
	return policy, nil
}
