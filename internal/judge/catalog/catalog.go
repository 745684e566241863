// Package catalog resolves problems and their test cases for judging.
package catalog

import (
	"context"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// ProblemCatalog looks up problems by id.
// Implementations return an appErr.ProblemNotFound error for unknown ids.
type ProblemCatalog interface {
	GetProblem(ctx context.Context, problemID int64) (model.Problem, error)
}

// GetTestCases returns the ordered test cases of a problem.
func GetTestCases(ctx context.Context, c ProblemCatalog, problemID int64) ([]model.TestCase, error) {
	p, err := c.GetProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	return p.Cases, nil
}

// Chain consults catalogs in order and returns the first hit.
type Chain []ProblemCatalog

func (c Chain) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		p, err := src.GetProblem(ctx, problemID)
		if err == nil {
			return p, nil
		}
		if !appErr.Is(err, appErr.ProblemNotFound) {
			return model.Problem{}, err
		}
	}
	return model.Problem{}, notFound(problemID)
}

func notFound(problemID int64) error {
	return appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
}
