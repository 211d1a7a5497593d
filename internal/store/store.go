// Package store defines the persistence contract shared by the local and
// remote adapters and the selector that routes between them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

// ErrNoIdentity is returned when an operation requires an authenticated
// identity and none is set. Rejected before any I/O.
var ErrNoIdentity = errors.New("store: no authenticated identity")

// Store is the persistence contract for one logical ledger. Load returns
// both collections with legacy-id migration applied and default categories
// guaranteed present. The per-record write operations carry the optimistic
// mutation protocol; the Upsert operations carry reconciliation writes.
//
// Every failed write returns a *WriteError and performs no partial write
// from the caller's perspective.
type Store interface {
	Load(ctx context.Context) ([]domain.Transaction, []domain.Category, error)

	InsertTransaction(ctx context.Context, t domain.Transaction) error
	UpdateTransaction(ctx context.Context, t domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	UpsertTransactions(ctx context.Context, txs []domain.Transaction) error

	InsertCategory(ctx context.Context, c domain.Category) error
	UpdateCategory(ctx context.Context, c domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
	UpsertCategories(ctx context.Context, cats []domain.Category) error
}

// WriteError is a structured adapter write failure. The mutation
// coordinator rolls back optimistic state on seeing one and surfaces the
// message to the caller.
type WriteError struct {
	Entity string // "transactions" or "categories"
	Op     string // "insert", "update", "delete", "upsert", "save"
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NewWriteError wraps an adapter failure. Returns nil when err is nil.
func NewWriteError(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Entity: entity, Op: op, Err: err}
}
