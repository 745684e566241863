//go:build linux

package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"codejudge/internal/judge/sandbox/spec"
)

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (utime + stime).Milliseconds()
}

// readLimitedFile reads at most maxBytes and reports whether more data existed.
func readLimitedFile(path string, maxBytes int64) (string, bool) {
	if path == "" || maxBytes <= 0 {
		return "", false
	}
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return "", false
	}
	if int64(len(data)) > maxBytes {
		return string(data[:maxBytes]), true
	}
	return string(data), false
}

// resolveHostPath maps a sandbox path to its host location through the
// longest matching bind mount.
func resolveHostPath(path string, runSpec spec.RunSpec) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	longest := ""
	source := ""
	for _, mount := range runSpec.BindMounts {
		if mount.Target == "" || mount.Source == "" {
			continue
		}
		target := filepath.Clean(mount.Target)
		if !underDir(clean, target) {
			continue
		}
		if len(target) > len(longest) {
			longest = target
			source = mount.Source
		}
	}
	if source == "" {
		return path
	}
	rel := strings.TrimPrefix(clean, longest)
	rel = strings.TrimPrefix(rel, string(os.PathSeparator))
	return filepath.Join(source, rel)
}

// flattenMounts rewrites sandbox paths to host paths for runs without a
// private mount namespace.
func flattenMounts(runSpec spec.RunSpec) spec.RunSpec {
	out := runSpec
	out.WorkDir = resolveHostPath(runSpec.WorkDir, runSpec)
	out.StdinPath = resolveHostPath(runSpec.StdinPath, runSpec)
	out.StdoutPath = resolveHostPath(runSpec.StdoutPath, runSpec)
	out.StderrPath = resolveHostPath(runSpec.StderrPath, runSpec)
	out.Cmd = make([]string, len(runSpec.Cmd))
	for i, arg := range runSpec.Cmd {
		if filepath.IsAbs(arg) {
			arg = resolveHostPath(arg, runSpec)
		}
		out.Cmd[i] = arg
	}
	out.BindMounts = nil
	return out
}

func underDir(path, dir string) bool {
	if path == dir {
		return true
	}
	if dir == string(os.PathSeparator) {
		return true
	}
	return strings.HasPrefix(path, dir+string(os.PathSeparator))
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
