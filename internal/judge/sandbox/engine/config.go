package engine

import (
	"fmt"

	"codejudge/internal/judge/sandbox/security"
)

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	ScratchDir           string `yaml:"scratchDir"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
	// AllowUnconfined permits runs without a private mount namespace. Such runs
	// see the host filesystem with the service's permissions.
	AllowUnconfined bool `yaml:"allowUnconfined"`
}

// Validate rejects configurations that would run programs without
// filesystem confinement.
func (c Config) Validate() error {
	if !c.EnableNamespaces && !c.AllowUnconfined {
		return fmt.Errorf("namespaces are disabled: programs would share the host filesystem; set allowUnconfined to accept this")
	}
	return nil
}
