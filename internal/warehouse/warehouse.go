package warehouse

import (
	"errors"
	"time"
)

var (
	// ErrQueryTimeout is returned when a query exceeds its wall-clock budget.
	// The in-flight statement is cancelled server-side via context cancellation.
	ErrQueryTimeout = errors.New("warehouse: query timed out")

	// ErrResourceExhausted is returned when no pooled connection becomes
	// available within the queueing timeout.
	ErrResourceExhausted = errors.New("warehouse: connection pool exhausted")
)

// QueryResult holds the bounded, decoded output of a single read query.
// Rows never exceed the configured row cap; Truncated records whether more
// rows were available.
type QueryResult struct {
	Columns   []string
	Rows      []map[string]Value
	RowCount  int
	Truncated bool
	Duration  time.Duration
}
