package service

import (
	"context"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/spec"
	"codejudge/internal/judge/scheduler"
	appErr "codejudge/pkg/errors"
)

// SubmitRun queues a single free run and returns its token without waiting.
// Problem cases are not consulted; only the problem's limits apply.
func (s *Service) SubmitRun(ctx context.Context, sub model.Submission) (scheduler.JobHandle, error) {
	sub, _, err := s.prepare(sub)
	if err != nil {
		return "", err
	}
	problem, err := s.resolveProblem(ctx, sub)
	if err != nil {
		return "", err
	}
	return s.scheduler.Submit(ctx, spec.RunRequest{
		SourceCode: sub.SourceCode,
		Language:   sub.Language,
		Stdin:      sub.CustomInput,
		Limits:     problem.Limits,
	})
}

// RunStatus reports an async run in Judge0 form: In Queue, Processing or the terminal result.
func (s *Service) RunStatus(ctx context.Context, token scheduler.JobHandle) (model.Judge0Response, bool, error) {
	res, done, err := s.scheduler.Poll(ctx, token)
	if err != nil {
		if appErr.Is(err, appErr.JudgeSystemError) {
			resp := model.Judge0Response{
				Status:  model.NewJudge0Status(model.Judge0InternalError),
				Token:   string(token),
				Message: err.Error(),
			}
			return resp, true, nil
		}
		return model.Judge0Response{}, false, err
	}
	if !done {
		return model.RunToJudge0(string(token), res.Status, nil), false, nil
	}
	return model.RunToJudge0(string(token), res.Status, &res), true, nil
}
