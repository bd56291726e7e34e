package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context and, when the caller is inside a
// transaction, the transaction handle repos must write through.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New returns a Context that is not bound to a transaction.
func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// DB picks the transaction when one is set and base otherwise, bound to Ctx.
func (c Context) DB(base *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = base
	}
	if c.Ctx == nil {
		return db
	}
	return db.WithContext(c.Ctx)
}

// InTx runs fn inside a transaction. An existing transaction is reused so
// nested calls commit together.
func (c Context) InTx(base *gorm.DB, fn func(Context) error) error {
	if c.Tx != nil {
		return fn(c)
	}
	return c.DB(base).Transaction(func(tx *gorm.DB) error {
		return fn(Context{Ctx: c.Ctx, Tx: tx})
	})
}
