package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var ErrNotFound = errors.New("record not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every repository method. Store runs them on the pool and Tx
// inside a transaction.
//
// Rows are always read to the end and closed before the next query is issued,
// sqlite runs on a single connection and would deadlock otherwise.
type Queries struct {
	q     querier
	sugar *zap.SugaredLogger
}

type Store struct {
	Queries
	db *sql.DB
}

type Tx struct {
	Queries
}

func NewStore(db *sql.DB, sugar *zap.SugaredLogger) *Store {
	return &Store{
		Queries: Queries{q: db, sugar: sugar},
		db:      db,
	}
}

// WithTx runs fn in a transaction and commits when it returns nil. The
// transaction is detached from ctx cancellation, once started it either
// commits or rolls back on its own terms.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx = context.WithoutCancel(ctx)

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&Tx{Queries{q: sqlTx, sugar: s.sugar}}); err != nil {
		if rollbackErr := sqlTx.Rollback(); rollbackErr != nil {
			s.sugar.Errorf("Rolling back transaction failed: %v", rollbackErr)
		}
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err comes from a unique or primary key
// constraint, on either driver.
func IsUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		// without extended result codes only the primary code is set
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
