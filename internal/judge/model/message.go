package model

// VerdictEvent is the Kafka payload published when a submission reaches its final verdict.
type VerdictEvent struct {
	SubmissionID string        `json:"submission_id"`
	ProblemID    int64         `json:"problem_id,omitempty"`
	Language     string        `json:"language"`
	Status       VerdictStatus `json:"status"`
	CasesPassed  int           `json:"cases_passed"`
	CasesRun     int           `json:"cases_run"`
	TimeMs       int64         `json:"time_ms"`
	MemoryKB     int64         `json:"memory_kb"`
	FinishedAt   int64         `json:"finished_at"`
}

// NewVerdictEvent summarizes a verdict for downstream consumers.
func NewVerdictEvent(sub Submission, v Verdict, finishedAt int64) VerdictEvent {
	ev := VerdictEvent{
		SubmissionID: v.SubmissionID,
		Language:     sub.Language,
		Status:       v.Status,
		CasesRun:     len(v.Cases),
		TimeMs:       v.TimeMs,
		MemoryKB:     v.MemoryKB,
		FinishedAt:   finishedAt,
	}
	if sub.ProblemID != nil {
		ev.ProblemID = *sub.ProblemID
	}
	for _, c := range v.Cases {
		if c.Passed {
			ev.CasesPassed++
		}
	}
	return ev
}
