package engine

import (
	"codejudge/internal/judge/sandbox/security"
	"codejudge/internal/judge/sandbox/spec"
)

// initRequest is decoded by cmd/sandbox-init from its stdin.
type initRequest struct {
	RunSpec   spec.RunSpec
	Isolation security.IsolationProfile
	// SandboxRoot is an empty host dir the helper mounts its minimal root on.
	SandboxRoot   string
	Seccomp       *security.SeccompPolicy
	EnableSeccomp bool
	EnableNs      bool
}
