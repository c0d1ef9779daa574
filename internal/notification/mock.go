package notification

import (
	"context"
	"database/sql"
)

type MockDB struct {
	ExecContextFunc     func(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContextFunc    func(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRowContextFunc func(ctx context.Context, query string, args ...any) Row
}

func (m *MockDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return m.ExecContextFunc(ctx, query, args...)
}

func (m *MockDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return m.QueryContextFunc(ctx, query, args...)
}

func (m *MockDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return m.QueryRowContextFunc(ctx, query, args...)
}

type MockRow struct {
	ScanFunc func(dest ...any) error
}

func (m *MockRow) Scan(dest ...any) error {
	return m.ScanFunc(dest...)
}

// MockRows yields one row per entry in ScanFuncs.
type MockRows struct {
	ScanFuncs []func(dest ...any) error
	ErrValue  error
	pos       int
}

func (m *MockRows) Next() bool {
	if m.pos >= len(m.ScanFuncs) {
		return false
	}
	m.pos++
	return true
}

func (m *MockRows) Scan(dest ...any) error {
	return m.ScanFuncs[m.pos-1](dest...)
}

func (m *MockRows) Close() error { return nil }

func (m *MockRows) Err() error { return m.ErrValue }

type MockResult struct {
	Rows int64
}

func (m MockResult) LastInsertId() (int64, error) { return 0, nil }

func (m MockResult) RowsAffected() (int64, error) { return m.Rows, nil }
