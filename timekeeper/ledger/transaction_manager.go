package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// DefaultTxTimeout bounds every executor transaction.
const DefaultTxTimeout = 30 * time.Second

// TransactionOptions configures transaction behavior.
type TransactionOptions struct {
	Timeout time.Duration
}

// StandardTransactionOptions returns default transaction options.
func StandardTransactionOptions() *TransactionOptions {
	return &TransactionOptions{Timeout: DefaultTxTimeout}
}

// TransactionManager wraps every multi-row mutation in a single
// immediate write transaction. The SQLite connection is opened with
// _txlock=immediate, so BeginTx acquires the write lock before any row
// is read and no other writer can observe a partial state.
type TransactionManager struct {
	db *bun.DB
}

func NewTransactionManager(db *bun.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction executes fn inside a transaction, rolling back on any
// error. Lock contention surfaces as a ConcurrencyAborted ledger error
// so callers can decide to retry.
func (tm *TransactionManager) WithTransaction(ctx context.Context, opts *TransactionOptions, fn func(context.Context, bun.Tx) error) error {
	if opts == nil {
		opts = StandardTransactionOptions()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tx, err := tm.db.BeginTx(timeoutCtx, &sql.TxOptions{})
	if err != nil {
		return classifyTxError(fmt.Errorf("failed to start transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(timeoutCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyTxError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// DB returns the underlying database handle.
func (tm *TransactionManager) DB() *bun.DB {
	return tm.db
}

func classifyTxError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "context deadline exceeded") {
		return &Error{Kind: KindConcurrencyAborted, Message: msg}
	}
	return err
}
