// Package tx carries transactions through context so stores can join the
// caller's unit of work without changing their signatures.
package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "pollster/pkg/domain-errors"
)

// Runner executes fn as one atomic unit. Stores called with the context passed
// to fn participate in the same transaction. Nested calls join the outer one.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// DefaultTimeout bounds a transaction when the caller set no deadline.
const DefaultTimeout = 5 * time.Second

// Prepare rejects cancelled contexts and applies DefaultTimeout when the
// context carries no deadline. Callers must invoke the returned cancel.
func Prepare(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// -----------------------------------------------------------------------------
// In-memory transactions
// -----------------------------------------------------------------------------

type journalKey struct{}

type journal struct {
	owner *Memory
	undo  []func()
}

// Memory serializes transactions behind one coarse lock and keeps an undo
// journal so in-memory stores can restore state when fn fails.
type Memory struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewMemory returns an in-memory Runner.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok && j.owner == m {
		return fn(ctx)
	}

	ctx, cancel, err := Prepare(ctx, m.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j := &journal{owner: m}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the in-memory transaction in ctx fails.
// It is a no-op outside a Memory transaction.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// InMemoryTx reports whether ctx belongs to a Memory transaction.
func InMemoryTx(ctx context.Context) bool {
	_, ok := ctx.Value(journalKey{}).(*journal)
	return ok
}
