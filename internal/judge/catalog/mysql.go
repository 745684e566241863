package catalog

import (
	"context"

	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

const (
	problemQuery = "SELECT id, title, cpu_time_ms, wall_time_ms, memory_mb FROM problems WHERE id = ?"
	casesQuery   = "SELECT input, expected_output FROM problem_test_cases WHERE problem_id = ? ORDER BY ordinal ASC, id ASC"
)

// MySQLCatalog reads problems from the shared problems database.
type MySQLCatalog struct {
	db db.Querier
}

func NewMySQLCatalog(querier db.Querier) *MySQLCatalog {
	return &MySQLCatalog{db: querier}
}

func (c *MySQLCatalog) GetProblem(ctx context.Context, problemID int64) (model.Problem, error) {
	if c.db == nil {
		return model.Problem{}, appErr.New(appErr.DatabaseError).WithMessage("database is not initialized")
	}
	var p model.Problem
	row := c.db.QueryRow(ctx, problemQuery, problemID)
	if err := row.Scan(&p.ID, &p.Title, &p.Limits.CPUTimeMs, &p.Limits.WallTimeMs, &p.Limits.MemoryMB); err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, notFound(problemID)
		}
		if db.IsUnknownTable(err) {
			return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "problems table is missing")
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem %d failed", problemID)
	}

	rows, err := c.db.Query(ctx, casesQuery, problemID)
	if err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "load test cases of problem %d failed", problemID)
	}
	defer rows.Close()
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput); err != nil {
			return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		p.Cases = append(p.Cases, tc)
	}
	if err := rows.Err(); err != nil {
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return p, nil
}
