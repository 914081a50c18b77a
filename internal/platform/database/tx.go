package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const defaultTxTimeout = 15 * time.Second

type txContextKey struct{}

// UnitOfWork runs repository calls inside a gorm transaction carried on the context.
// Nested RunInTx calls join the outer transaction.
type UnitOfWork struct {
	db      *gorm.DB
	timeout time.Duration
}

// TxOption customises transaction behaviour.
type TxOption func(*UnitOfWork)

// WithTxTimeout caps how long a transaction may run when the caller has no tighter deadline.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(u *UnitOfWork) {
		if timeout > 0 {
			u.timeout = timeout
		}
	}
}

// NewUnitOfWork binds a UnitOfWork to the connection pool.
func NewUnitOfWork(db *gorm.DB, opts ...TxOption) *UnitOfWork {
	u := &UnitOfWork{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// RunInTx executes fn within a transaction; returning an error rolls it back.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.db == nil {
		return WrapError("transaction", errors.New("database: connection is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("database: transaction function is nil"))
	}
	if _, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	txCtx := ctx
	if u.timeout > 0 {
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline || time.Until(deadline) > u.timeout {
			var cancel context.CancelFunc
			txCtx, cancel = context.WithTimeout(ctx, u.timeout)
			defer cancel()
		}
	}

	return u.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(txCtx, txContextKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or the pool when no transaction is active.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
