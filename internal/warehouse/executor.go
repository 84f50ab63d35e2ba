package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/finchat/finchat/internal/observability"
)

type ExecutorConfig struct {
	QueryTimeout  time.Duration
	QueueTimeout  time.Duration
	MaxResultRows int
	MaxConcurrent int
}

// Executor runs validated read-only SQL against the warehouse. Admission is
// bounded by a weighted semaphore sized to the connection pool so saturated
// pools fail fast instead of queueing unboundedly.
type Executor struct {
	db      *sql.DB
	sem     *semaphore.Weighted
	timeout time.Duration
	queue   time.Duration
	rowCap  int
}

func NewExecutor(db *sql.DB, cfg ExecutorConfig) (*Executor, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if cfg.MaxResultRows <= 0 {
		return nil, fmt.Errorf("max result rows must be positive")
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	queue := cfg.QueueTimeout
	if queue <= 0 {
		queue = 5 * time.Second
	}
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 10
	}
	return &Executor{
		db:      db,
		sem:     semaphore.NewWeighted(int64(concurrent)),
		timeout: timeout,
		queue:   queue,
		rowCap:  cfg.MaxResultRows,
	}, nil
}

// Execute runs one canonical statement under the executor's timeout and row
// cap. Failures are never retried here; retrying against a live warehouse is
// the caller's call.
func (e *Executor) Execute(ctx context.Context, sqlText string) (QueryResult, error) {
	queueCtx, cancelQueue := context.WithTimeout(ctx, e.queue)
	defer cancelQueue()
	if err := e.sem.Acquire(queueCtx, 1); err != nil {
		if ctx.Err() != nil {
			return QueryResult{}, ctx.Err()
		}
		observability.IncrementPoolExhausted()
		return QueryResult{}, ErrResourceExhausted
	}
	defer e.sem.Release(1)

	start := time.Now()
	queryCtx, cancelQuery := context.WithTimeout(ctx, e.timeout)
	defer cancelQuery()

	rows, err := e.db.QueryContext(queryCtx, sqlText)
	if err != nil {
		return QueryResult{}, classifyQueryError(queryCtx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{}, fmt.Errorf("read query columns: %w", err)
	}
	columns = uniqueColumns(columns)

	result := QueryResult{Columns: columns, Rows: make([]map[string]Value, 0)}
	for rows.Next() {
		if len(result.Rows) >= e.rowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return QueryResult{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]Value, len(columns))
		for i, column := range columns {
			row[column] = DecodeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, classifyQueryError(queryCtx, err)
	}

	result.RowCount = len(result.Rows)
	result.Duration = time.Since(start)
	observability.ObserveQueryLatency(result.Duration)
	if result.Truncated {
		observability.IncrementResultTruncation()
	}
	return result, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func classifyQueryError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrQueryTimeout
	}
	return fmt.Errorf("execute query: %w", err)
}

// uniqueColumns disambiguates repeated projection names so row mappings keep
// one entry per column.
func uniqueColumns(columns []string) []string {
	seen := make(map[string]int, len(columns))
	unique := make([]string, len(columns))
	for i, column := range columns {
		seen[column]++
		if seen[column] == 1 {
			unique[i] = column
			continue
		}
		unique[i] = column + "_" + strconv.Itoa(seen[column])
	}
	return unique
}
