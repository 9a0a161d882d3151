package persistence

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roasbeef/holon/internal/persistence/sqlc"
)

// Store wraps the BaseDB with transaction support and additional business
// logic methods. It provides the TransactionExecutor for automatic retry on
// serialization errors.
type Store struct {
	*BaseDB

	txExecutor *TransactionExecutor[*sqlc.Queries]

	log *slog.Logger
}

// NewStore creates a new Store instance wrapping the given database
// connection.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	baseDB := NewBaseDB(db)

	createQuery := func(tx *sql.Tx) *sqlc.Queries {
		return sqlc.New(tx)
	}

	return &Store{
		BaseDB:     baseDB,
		txExecutor: NewTransactionExecutor(baseDB, createQuery, log),
		log:        log,
	}
}

// Queries returns the underlying sqlc Queries for direct access to
// generated query methods.
func (s *Store) Queries() *sqlc.Queries {
	return s.BaseDB.Queries
}

// ExecTx executes the given function within a database transaction with
// automatic retry on serialization errors.
func (s *Store) ExecTx(ctx context.Context, txOptions TxOptions,
	txBody func(*sqlc.Queries) error) error {

	return s.txExecutor.ExecTx(ctx, txOptions, txBody)
}

// TxFunc is the function signature for transaction callbacks.
type TxFunc func(ctx context.Context, q *sqlc.Queries) error

// WithTx executes fn within a read-write transaction, retrying on
// serialization errors.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	return s.ExecTx(ctx, WriteTxOption(), func(q *sqlc.Queries) error {
		return fn(ctx, q)
	})
}

// WithReadTx executes fn within a read-only transaction.
func (s *Store) WithReadTx(ctx context.Context, fn TxFunc) error {
	return s.ExecTx(ctx, ReadTxOption(), func(q *sqlc.Queries) error {
		return fn(ctx, q)
	})
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.BaseDB.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.BaseDB.DB
}

// TxFuncResult is the function signature for transaction callbacks that
// return a value.
type TxFuncResult[T any] func(ctx context.Context, q *sqlc.Queries) (T, error)

// WithTxResult executes fn within a read-write transaction and returns its
// result.
func WithTxResult[T any](s *Store, ctx context.Context,
	fn TxFuncResult[T]) (T, error) {

	var result T

	err := s.ExecTx(ctx, WriteTxOption(), func(q *sqlc.Queries) error {
		var err error
		result, err = fn(ctx, q)
		return err
	})

	return result, err
}

// WithReadTxResult executes fn within a read-only transaction and returns
// its result.
func WithReadTxResult[T any](s *Store, ctx context.Context,
	fn TxFuncResult[T]) (T, error) {

	var result T

	err := s.ExecTx(ctx, ReadTxOption(), func(q *sqlc.Queries) error {
		var err error
		result, err = fn(ctx, q)
		return err
	})

	return result, err
}
