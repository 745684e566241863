package model

import "codejudge/internal/judge/sandbox/spec"

// TestCase is one input/expected-output pair of a problem.
type TestCase struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expectedOutput" yaml:"expectedOutput"`
}

// Problem is the judge-facing view of a catalog entry.
// Zero cases means custom-input mode.
type Problem struct {
	ID     int64              `json:"id" yaml:"id"`
	Title  string             `json:"title" yaml:"title"`
	Limits spec.ResourceLimit `json:"limits" yaml:"limits"`
	Cases  []TestCase         `json:"cases" yaml:"cases"`
}
