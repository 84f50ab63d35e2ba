package warehouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/finchat/finchat/internal/sqlguard"
)

func newSQLMock(t *testing.T) (*Executor, sqlmock.Sqlmock, ExecutorConfig) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := ExecutorConfig{
		QueryTimeout:  time.Second,
		QueueTimeout:  time.Second,
		MaxResultRows: 3,
		MaxConcurrent: 2,
	}
	executor, err := NewExecutor(db, cfg)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return executor, mock, cfg
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestExecuteReturnsDecodedRows(t *testing.T) {
	executor, mock, _ := newSQLMock(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT account_id, name, balance, updated_at FROM accounts LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "name", "balance", "updated_at"}).
			AddRow(int64(100), "Cash", []byte("1200.50"), now).
			AddRow(int64(200), nil, []byte("0.00"), now))

	result, err := executor.Execute(context.Background(), "SELECT account_id, name, balance, updated_at FROM accounts LIMIT 3")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if result.Truncated {
		t.Fatal("Truncated should be false")
	}
	if result.Duration <= 0 {
		t.Fatalf("Duration = %v", result.Duration)
	}
	if got := result.Rows[0]["account_id"]; got.Kind != KindInt || got.Int != 100 {
		t.Fatalf("account_id = %+v", got)
	}
	if got := result.Rows[0]["balance"]; got.Kind != KindText || got.Text != "1200.50" {
		t.Fatalf("balance = %+v", got)
	}
	if got := result.Rows[1]["name"]; got.Kind != KindNull {
		t.Fatalf("null name = %+v", got)
	}
	if got := result.Rows[0]["updated_at"]; got.Kind != KindTimestamp || !got.Time.Equal(now) {
		t.Fatalf("updated_at = %+v", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteTruncatesAtRowCap(t *testing.T) {
	executor, mock, cfg := newSQLMock(t)

	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < cfg.MaxResultRows+2; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT n FROM numbers`)).WillReturnRows(rows)

	result, err := executor.Execute(context.Background(), "SELECT n FROM numbers")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != cfg.MaxResultRows {
		t.Fatalf("RowCount = %d, want %d", result.RowCount, cfg.MaxResultRows)
	}
	if !result.Truncated {
		t.Fatal("Truncated should be true when more rows were available")
	}
}

// The validator rewrites missing limits to one past the row cap, so even a
// database that honors the LIMIT exactly still hands the executor the extra
// row it needs to set the truncation flag.
func TestExecuteFlagsTruncationOnValidatedQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	const rowCap = 2
	executor, err := NewExecutor(db, ExecutorConfig{
		QueryTimeout:  time.Second,
		QueueTimeout:  time.Second,
		MaxResultRows: rowCap,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	verdict := sqlguard.NewValidator(rowCap, nil).Validate("SELECT name FROM accounts")
	if !verdict.Accepted {
		t.Fatalf("rejected: %s (%s)", verdict.Reason, verdict.Detail)
	}

	mock.ExpectQuery(regexp.QuoteMeta(verdict.SQL)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("Cash").AddRow("Payables").AddRow("Receivables"))

	result, err := executor.Execute(context.Background(), verdict.SQL)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != rowCap {
		t.Fatalf("RowCount = %d, want %d", result.RowCount, rowCap)
	}
	if !result.Truncated {
		t.Fatal("Truncated should be true when the limit bound returned a full extra row")
	}
	assertSQLMock(t, mock)
}

func TestExecuteTimesOut(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	executor, err := NewExecutor(db, ExecutorConfig{
		QueryTimeout:  20 * time.Millisecond,
		QueueTimeout:  time.Second,
		MaxResultRows: 10,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_sleep(10)`)).
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"pg_sleep"}))

	_, err = executor.Execute(context.Background(), "SELECT pg_sleep(10)")
	if !errors.Is(err, ErrQueryTimeout) {
		t.Fatalf("Execute() error = %v, want ErrQueryTimeout", err)
	}
}

func TestExecuteFailsFastWhenPoolSaturated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	executor, err := NewExecutor(db, ExecutorConfig{
		QueryTimeout:  2 * time.Second,
		QueueTimeout:  50 * time.Millisecond,
		MaxResultRows: 10,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1`)).
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = executor.Execute(context.Background(), "SELECT 1")
		close(done)
	}()

	<-started
	time.Sleep(100 * time.Millisecond)

	_, err = executor.Execute(context.Background(), "SELECT 2")
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("Execute() error = %v, want ErrResourceExhausted", err)
	}
	<-done
}

func TestExecuteWrapsEngineErrors(t *testing.T) {
	executor, mock, _ := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT broken FROM nowhere`)).
		WillReturnError(errors.New(`relation "nowhere" does not exist`))

	_, err := executor.Execute(context.Background(), "SELECT broken FROM nowhere")
	if err == nil {
		t.Fatal("expected execution error")
	}
	if errors.Is(err, ErrQueryTimeout) || errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("error misclassified: %v", err)
	}
}

func TestUniqueColumns(t *testing.T) {
	got := uniqueColumns([]string{"id", "name", "id", "id"})
	want := []string{"id", "name", "id_2", "id_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uniqueColumns() = %v, want %v", got, want)
		}
	}
}
