package postgres

import (
	"context"

	"gorm.io/gorm"
)

type txContextKey struct{}

// TxManager runs application callbacks inside one GORM transaction. The tx
// handle travels in the context, so repository calls made with that ctx join
// the transaction transparently. Nested InTx calls join the outer transaction
// rather than opening a savepoint.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, m.db, fn)
}

// inTx is the shared join-or-open primitive. Repositories whose protocol is
// lock-then-write use it directly so their row locks outlive the statement.
func inTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txContextKey{}).(*gorm.DB)
	return tx
}

// conn resolves the ambient transaction when one is running, otherwise the
// shared pool.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
