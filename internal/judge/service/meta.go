package service

import (
	"context"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// resolveProblem loads the submission's problem. Free-run submissions get an
// empty problem, which means one run against the custom input.
func (s *Service) resolveProblem(ctx context.Context, sub model.Submission) (model.Problem, error) {
	if !sub.HasProblem() {
		return model.Problem{}, nil
	}
	problemID := *sub.ProblemID
	if problemID <= 0 {
		return model.Problem{}, appErr.ValidationError("problemId", "must be positive")
	}
	if s.catalog == nil {
		return model.Problem{}, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
	}

	ctxCatalog, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	defer cancel()
	problem, err := s.catalog.GetProblem(ctxCatalog, problemID)
	if err != nil {
		if ctx.Err() != nil {
			return model.Problem{}, ctx.Err()
		}
		return model.Problem{}, err
	}
	problem.ID = problemID
	return problem, nil
}
