package model

import "time"

// Submission is one request to judge a program. A nil ProblemID means free-run.
type Submission struct {
	ID          string    `json:"id"`
	SourceCode  string    `json:"sourceCode"`
	Language    string    `json:"language"`
	ProblemID   *int64    `json:"problemId,omitempty"`
	CustomInput string    `json:"customInput"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasProblem reports whether the submission targets a catalog problem.
func (s Submission) HasProblem() bool {
	return s.ProblemID != nil
}
