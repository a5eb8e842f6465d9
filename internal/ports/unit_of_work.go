package ports

import "context"

// Tx is the store transaction carried on a context. The concrete type belongs
// to the persistence adapter (*gorm.DB for sqlite and postgres).
type Tx any

// UnitOfWork runs fn in one store transaction. Every repository call made
// with the ctx handed to fn joins it; a non-nil return rolls back.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns nil outside a unit of work.
func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}
