package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"

	"gopkg.in/yaml.v3"
)

// StaticCatalog serves problems defined in configuration.
type StaticCatalog struct {
	problems map[int64]model.Problem
}

type staticFile struct {
	Problems []model.Problem `yaml:"problems"`
}

// NewStaticCatalog indexes problems by id; later duplicates win.
func NewStaticCatalog(problems []model.Problem) *StaticCatalog {
	c := &StaticCatalog{problems: make(map[int64]model.Problem, len(problems))}
	for _, p := range problems {
		c.problems[p.ID] = p
	}
	return c
}

// LoadStaticCatalog reads a problems YAML file.
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problems file failed: %w", err)
	}
	var file staticFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse problems file failed: %w", err)
	}
	for i, p := range file.Problems {
		if p.ID <= 0 {
			return nil, appErr.ValidationError("problems", fmt.Sprintf("entry %d has no positive id", i))
		}
	}
	return NewStaticCatalog(file.Problems), nil
}

func (c *StaticCatalog) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	p, ok := c.problems[problemID]
	if !ok {
		return model.Problem{}, notFound(problemID)
	}
	return p, nil
}

// IDs lists the known problem ids in ascending order.
func (c *StaticCatalog) IDs() []int64 {
	ids := make([]int64, 0, len(c.problems))
	for id := range c.problems {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DefaultProblems are the built-in problems bound to the default comparators.
func DefaultProblems() []model.Problem {
	return []model.Problem{
		{
			ID:    1,
			Title: "Two Sum",
			Cases: []model.TestCase{
				{Input: "2 7 11 15\n9\n", ExpectedOutput: "[0,1]"},
				{Input: "3 2 4\n6\n", ExpectedOutput: "[1,2]"},
				{Input: "3 3\n6\n", ExpectedOutput: "[0,1]"},
			},
		},
		{
			ID:    2,
			Title: "Reverse Integer",
			Cases: []model.TestCase{
				{Input: "123\n", ExpectedOutput: "321"},
				{Input: "-123\n", ExpectedOutput: "-321"},
				{Input: "120\n", ExpectedOutput: "21"},
			},
		},
	}
}
