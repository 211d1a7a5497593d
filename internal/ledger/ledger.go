// Package ledger holds the in-memory ledger state and implements the
// optimistic mutation protocol on top of the active store.
//
// Every mutation follows one pattern: stamp the record, snapshot the
// collection, apply the change in memory, persist through the selector's
// active store, and on failure restore the snapshot so the in-memory state
// is identical to before the call. The in-memory collections are a cache of
// the authoritative store and diverge from it only inside that in-flight
// window.
//
// One mutex per entity kind serializes mutations of that kind, so two
// optimistic mutations can never race to roll back each other's snapshot.
// Import takes both, since reconciliation needs exclusive access to both
// collections for its whole duration.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/darrenwu-git/snap-ledger/internal/backup"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/reconcile"
	"github.com/darrenwu-git/snap-ledger/internal/store"
)

// ErrNotFound is returned by Update/Delete when no record has the given id.
var ErrNotFound = errors.New("ledger: record not found")

// Ledger owns the in-memory collections. Inject one instance into whatever
// drives the UI layer; it is safe for concurrent use.
type Ledger struct {
	sel   *store.Selector
	log   zerolog.Logger
	clock func() time.Time
	newID func() string

	txMu         sync.Mutex
	transactions []domain.Transaction

	catMu      sync.Mutex
	categories []domain.Category
}

// New creates a ledger over the given selector. Call Load before use.
func New(sel *store.Selector, log zerolog.Logger) *Ledger {
	return &Ledger{
		sel:   sel,
		log:   log,
		clock: time.Now,
		newID: domain.NewID,
	}
}

// Load replaces the in-memory cache with the active store's content.
func (l *Ledger) Load(ctx context.Context) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.catMu.Lock()
	defer l.catMu.Unlock()

	txs, cats, err := l.sel.Active().Load(ctx)
	if err != nil {
		return err
	}
	l.transactions = txs
	l.categories = cats
	return nil
}

// SetIdentity switches between local and remote mode, discarding the cache
// built under the previous mode and reloading from the newly active store.
// No merge happens across the switch.
func (l *Ledger) SetIdentity(ctx context.Context, id *store.Identity) error {
	l.sel.SetIdentity(id)
	return l.Load(ctx)
}

// Transactions returns a copy of the cached transaction collection.
func (l *Ledger) Transactions() []domain.Transaction {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	out := make([]domain.Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// Categories returns a copy of the cached category collection.
func (l *Ledger) Categories() []domain.Category {
	l.catMu.Lock()
	defer l.catMu.Unlock()
	out := make([]domain.Category, len(l.categories))
	copy(out, l.categories)
	return out
}

// Category looks a category up by id. A miss is not an error: transactions
// may reference a deleted category and render as uncategorized.
func (l *Ledger) Category(id string) (domain.Category, bool) {
	l.catMu.Lock()
	defer l.catMu.Unlock()
	for _, c := range l.categories {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Category{}, false
}

// AddTransaction mints an id, stamps the record and persists it
// optimistically. Voice-extracted drafts come through here with
// StatusDraft; anything without a status is completed.
func (l *Ledger) AddTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	t.ID = l.newID()
	t.CategoryID = domain.ResolveCategoryID(t.CategoryID)
	if t.Status == "" {
		t.Status = domain.StatusCompleted
	}
	t = t.Stamp(l.clock())

	snapshot := l.snapshotTransactions()
	l.transactions = append([]domain.Transaction{t}, l.transactions...)

	if err := l.sel.Active().InsertTransaction(ctx, t); err != nil {
		l.transactions = snapshot
		l.log.Error().Err(err).Str("id", t.ID).Msg("Add transaction failed, rolled back")
		return domain.Transaction{}, err
	}
	return t, nil
}

// UpdateTransaction replaces the record with the given id, refreshing
// updated_at. The id itself is immutable.
func (l *Ledger) UpdateTransaction(ctx context.Context, id string, t domain.Transaction) (domain.Transaction, error) {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	idx := -1
	for i := range l.transactions {
		if l.transactions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Transaction{}, ErrNotFound
	}

	t.ID = id
	t.CategoryID = domain.ResolveCategoryID(t.CategoryID)
	if t.Status == "" {
		t.Status = domain.StatusCompleted
	}
	t = t.Stamp(l.clock())

	snapshot := l.snapshotTransactions()
	l.transactions[idx] = t

	if err := l.sel.Active().UpdateTransaction(ctx, t); err != nil {
		l.transactions = snapshot
		l.log.Error().Err(err).Str("id", id).Msg("Update transaction failed, rolled back")
		return domain.Transaction{}, err
	}
	return t, nil
}

// DeleteTransaction removes the record with the given id.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	snapshot := l.snapshotTransactions()
	kept := make([]domain.Transaction, 0, len(l.transactions))
	for _, t := range l.transactions {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(l.transactions) {
		return ErrNotFound
	}
	l.transactions = kept

	if err := l.sel.Active().DeleteTransaction(ctx, id); err != nil {
		l.transactions = snapshot
		l.log.Error().Err(err).Str("id", id).Msg("Delete transaction failed, rolled back")
		return err
	}
	return nil
}

// AddCategory mints an id, stamps the record and persists it optimistically.
func (l *Ledger) AddCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	l.catMu.Lock()
	defer l.catMu.Unlock()

	c.ID = l.newID()
	c = c.Stamp(l.clock())

	snapshot := l.snapshotCategories()
	l.categories = append(l.categories, c)

	if err := l.sel.Active().InsertCategory(ctx, c); err != nil {
		l.categories = snapshot
		l.log.Error().Err(err).Str("id", c.ID).Msg("Add category failed, rolled back")
		return domain.Category{}, err
	}
	return c, nil
}

// UpdateCategory replaces name/icon/kind of the category with the given id.
func (l *Ledger) UpdateCategory(ctx context.Context, id string, c domain.Category) (domain.Category, error) {
	l.catMu.Lock()
	defer l.catMu.Unlock()

	idx := -1
	for i := range l.categories {
		if l.categories[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Category{}, ErrNotFound
	}

	c.ID = id
	c = c.Stamp(l.clock())

	snapshot := l.snapshotCategories()
	l.categories[idx] = c

	if err := l.sel.Active().UpdateCategory(ctx, c); err != nil {
		l.categories = snapshot
		l.log.Error().Err(err).Str("id", id).Msg("Update category failed, rolled back")
		return domain.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes the category. It does not cascade: transactions
// keep their dangling category id and render as uncategorized.
func (l *Ledger) DeleteCategory(ctx context.Context, id string) error {
	l.catMu.Lock()
	defer l.catMu.Unlock()

	snapshot := l.snapshotCategories()
	kept := make([]domain.Category, 0, len(l.categories))
	for _, c := range l.categories {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(l.categories) {
		return ErrNotFound
	}
	l.categories = kept

	if err := l.sel.Active().DeleteCategory(ctx, id); err != nil {
		l.categories = snapshot
		l.log.Error().Err(err).Str("id", id).Msg("Delete category failed, rolled back")
		return err
	}
	return nil
}

// Export projects the current collections into a backup bundle, with no
// transformation.
func (l *Ledger) Export() backup.Bundle {
	return backup.New(l.Transactions(), l.Categories(), l.clock())
}

// snapshot helpers copy the slice so rollback is a pure assignment, not a
// view into mutated backing storage.
func (l *Ledger) snapshotTransactions() []domain.Transaction {
	return append([]domain.Transaction(nil), l.transactions...)
}

func (l *Ledger) snapshotCategories() []domain.Category {
	return append([]domain.Category(nil), l.categories...)
}

// ImportResult reports the outcome of a bundle import. The merge itself
// never fails; persistence of each entity kind is best-effort and
// independent, so either error may be set while the in-memory merge is
// still applied.
type ImportResult struct {
	TransactionsChanged int
	CategoriesChanged   int

	TransactionErr error
	CategoryErr    error
}

// FullyPersisted reports whether both entity kinds were persisted. Callers
// rendering a success message must check this rather than assume full
// success.
func (r ImportResult) FullyPersisted() bool {
	return r.TransactionErr == nil && r.CategoryErr == nil
}

// Import reconciles a backup bundle into the ledger. The merged result
// always replaces the in-memory collections; only records the merge marked
// changed are forwarded to the active store, categories and transactions
// each best-effort.
func (l *Ledger) Import(ctx context.Context, b backup.Bundle) ImportResult {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.catMu.Lock()
	defer l.catMu.Unlock()

	res := reconcile.Merge(l.transactions, l.categories, b.Transactions, b.Categories)
	l.transactions = res.Transactions
	l.categories = res.Categories

	out := ImportResult{
		TransactionsChanged: len(res.ChangedTransactions),
		CategoriesChanged:   len(res.ChangedCategories),
	}

	active := l.sel.Active()
	if len(res.ChangedCategories) > 0 {
		if err := active.UpsertCategories(ctx, res.ChangedCategories); err != nil {
			l.log.Error().Err(err).Int("count", len(res.ChangedCategories)).Msg("Import: persisting categories failed")
			out.CategoryErr = err
		}
	}
	if len(res.ChangedTransactions) > 0 {
		if err := active.UpsertTransactions(ctx, res.ChangedTransactions); err != nil {
			l.log.Error().Err(err).Int("count", len(res.ChangedTransactions)).Msg("Import: persisting transactions failed")
			out.TransactionErr = err
		}
	}
	return out
}
