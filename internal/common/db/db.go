package db

import "context"

// Database is the subset of a SQL connection pool the judge reads from.
type Database interface {
	Querier
	Ping(ctx context.Context) error
	Close() error
}

// Querier abstracts query execution.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
}

// Rows iterates a result set.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...interface{}) error
}
