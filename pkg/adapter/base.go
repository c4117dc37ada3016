package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// ErrNotConnected is returned when a statement runs before Connect.
var ErrNotConnected = errors.New("database connection not established")

// ErrConstraintsFailed is returned when a write reports unsatisfied
// constraints; the transaction is rolled back.
var ErrConstraintsFailed = errors.New("write constraints not satisfied")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Run and RunTwoStage implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Exec runs a statement that returns no rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, stmt *core.Statement) error {
	if b.DB == nil {
		return ErrNotConnected
	}
	if _, err := b.DB.ExecContext(ctx, stmt.SQL, stmt.Args()...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Run executes env and main in one transaction.
func (b *BaseSQLAdapter) Run(ctx context.Context, env, main *core.Statement) (*Result, error) {
	var res *Result
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		if err := execEnv(ctx, tx, env); err != nil {
			return err
		}
		var err error
		res, err = scanResult(tx.QueryContext(ctx, main.SQL, main.Args()...))
		return err
	})
	return res, err
}

// RunTwoStage executes a split write in one transaction.
func (b *BaseSQLAdapter) RunTwoStage(ctx context.Context, env *core.Statement, ts *compiler.TwoStage) (*Result, error) {
	var res *Result
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		if err := execEnv(ctx, tx, env); err != nil {
			return err
		}
		ids, err := queryKeys(ctx, tx, ts.Mutate(), len(ts.KeyColumns()))
		if err != nil {
			return err
		}
		b.logger().Debug("mutate stage done", slog.Int("rows", len(ids)))
		ts.SetIDs(ids)

		sel, err := ts.Select()
		if err != nil {
			return err
		}
		res, err = scanResult(tx.QueryContext(ctx, sel.SQL, sel.Args()...))
		return err
	})
	return res, err
}

func (b *BaseSQLAdapter) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if b.DB == nil {
		return ErrNotConnected
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

func execEnv(ctx context.Context, tx *sql.Tx, env *core.Statement) error {
	if env == nil || env.ParamsCount() == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, env.SQL, env.Args()...); err != nil {
		return fmt.Errorf("failed to set request context: %w", err)
	}
	return nil
}

// queryKeys runs the mutate stage and collects the leading n key columns of
// every row. Composite keys are encoded as a JSON array of their values.
func queryKeys(ctx context.Context, tx *sql.Tx, stmt *core.Statement, n int) ([]string, error) {
	rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute mutate statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read mutate columns: %w", err)
	}
	if n < 1 {
		n = 1
	}
	if len(cols) < n {
		return nil, fmt.Errorf("mutate statement returned %d columns, want at least %d", len(cols), n)
	}
	ids := []string{}
	for rows.Next() {
		keys := make([]sql.NullString, n)
		dest := make([]any, len(cols))
		for i := range dest {
			if i < n {
				dest[i] = &keys[i]
			} else {
				dest[i] = new(any)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan mutate row: %w", err)
		}
		if n == 1 {
			ids = append(ids, keys[0].String)
			continue
		}
		values := make([]string, n)
		for i, k := range keys {
			values[i] = k.String
		}
		id, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key: %w", err)
		}
		ids = append(ids, string(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mutate rows: %w", err)
	}
	return ids, nil
}

// scanResult reads the response row. Dialects order the columns
// differently, so they are matched by name.
func scanResult(rows *sql.Rows, err error) (*Result, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to execute main statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read response columns: %w", err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response row: %w", err)
		}
		return nil, errors.New("main statement returned no rows")
	}

	var (
		res         Result
		total       sql.NullInt64
		body        sql.NullString
		headers     sql.NullString
		status      sql.NullString
		constraints sql.NullBool
	)
	dest := make([]any, len(cols))
	for i, c := range cols {
		switch c {
		case "page_total":
			dest[i] = &res.PageTotal
		case "total_result_set":
			dest[i] = &total
		case "body":
			dest[i] = &body
		case "response_headers":
			dest[i] = &headers
		case "response_status":
			dest[i] = &status
		case "constraints_satisfied":
			dest[i] = &constraints
		default:
			dest[i] = new(any)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan response row: %w", err)
	}

	res.Body = body.String
	if total.Valid {
		res.TotalResultSet = &total.Int64
	}
	if headers.Valid {
		res.ResponseHeaders = &headers.String
	}
	if status.Valid {
		res.ResponseStatus = &status.String
	}
	res.ConstraintsSatisfied = !constraints.Valid || constraints.Bool
	if !res.ConstraintsSatisfied {
		return &res, ErrConstraintsFailed
	}
	return &res, nil
}
