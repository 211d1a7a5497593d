// Package local persists the ledger to an on-device BadgerDB store, one
// key per collection. It is the authoritative store whenever no user is
// signed in.
//
// Loading is fail-soft: a blob that does not parse is logged and treated as
// absent rather than surfaced, so a corrupted device store never crashes
// the application. Loading also performs the two one-time migrations —
// legacy category ids and missing default categories — and persists their
// result immediately so they do not repeat on every start.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/reconcile"
	"github.com/darrenwu-git/snap-ledger/internal/store"
)

// Storage keys, kept compatible with earlier releases of the app.
const (
	transactionsKey = "snap_ledger_transactions"
	categoriesKey   = "snap_ledger_categories"
)

// Config holds configuration for the local store.
type Config struct {
	// Path is the directory for the BadgerDB files. Ignored in-memory.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// DefaultConfig returns the production configuration for the given
// directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration suitable for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is the local adapter. Safe for concurrent use; every per-record
// write is a single read-modify-write Badger transaction.
type Store struct {
	db    *badger.DB
	log   zerolog.Logger
	clock func() time.Time
}

// Open opens (or creates) the local store.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("local.Open: opening badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db, log: log, clock: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads both collections, applying the fail-soft parse policy, the
// legacy category-id migration and default-category seeding. Migration
// results are re-saved once, inside this call.
func (s *Store) Load(ctx context.Context) ([]domain.Transaction, []domain.Category, error) {
	txBlob, err := s.read(transactionsKey)
	if err != nil {
		return nil, nil, fmt.Errorf("local.Load: reading transactions: %w", err)
	}
	catBlob, err := s.read(categoriesKey)
	if err != nil {
		return nil, nil, fmt.Errorf("local.Load: reading categories: %w", err)
	}

	txs, txDirty := s.parseTransactions(txBlob)
	cats, catDirty := s.parseCategories(catBlob)

	if txDirty {
		if err := s.write(transactionsKey, txs); err != nil {
			return nil, nil, fmt.Errorf("local.Load: persisting migrated transactions: %w", err)
		}
	}
	if catDirty {
		if err := s.write(categoriesKey, cats); err != nil {
			return nil, nil, fmt.Errorf("local.Load: persisting seeded categories: %w", err)
		}
	}
	return txs, cats, nil
}

// parseTransactions decodes the transaction blob and applies the read-time
// migrations: a missing status becomes Completed and legacy category ids
// are resolved to stable ids. dirty reports whether anything changed and
// must be re-saved.
func (s *Store) parseTransactions(blob []byte) (txs []domain.Transaction, dirty bool) {
	if len(blob) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(blob, &txs); err != nil {
		s.log.Error().Err(err).Msg("Failed to parse local transactions, starting empty")
		return nil, false
	}
	for i := range txs {
		if txs[i].Status == "" {
			txs[i].Status = domain.StatusCompleted
			dirty = true
		}
		if id := domain.ResolveCategoryID(txs[i].CategoryID); id != txs[i].CategoryID {
			txs[i].CategoryID = id
			dirty = true
		}
	}
	return txs, dirty
}

// parseCategories decodes the category blob and backfills missing default
// categories. An absent blob yields exactly the default set; a corrupt blob
// is reseeded with defaults rather than left empty, since an empty category
// list makes the ledger unusable.
func (s *Store) parseCategories(blob []byte) (cats []domain.Category, dirty bool) {
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &cats); err != nil {
			s.log.Error().Err(err).Msg("Failed to parse local categories, reseeding defaults")
			cats = nil
		}
	}
	merged, added := reconcile.SeedDefaults(cats, s.clock())
	return merged, len(added) > 0 || len(blob) == 0
}

func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) error {
	return store.NewWriteError("transactions", "insert", s.mutateTransactions(func(txs []domain.Transaction) []domain.Transaction {
		// Newest first, matching load order.
		return append([]domain.Transaction{t}, txs...)
	}))
}

func (s *Store) UpdateTransaction(ctx context.Context, t domain.Transaction) error {
	return store.NewWriteError("transactions", "update", s.mutateTransactions(func(txs []domain.Transaction) []domain.Transaction {
		for i := range txs {
			if txs[i].ID == t.ID {
				txs[i] = t
			}
		}
		return txs
	}))
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return store.NewWriteError("transactions", "delete", s.mutateTransactions(func(txs []domain.Transaction) []domain.Transaction {
		out := txs[:0]
		for _, t := range txs {
			if t.ID != id {
				out = append(out, t)
			}
		}
		return out
	}))
}

func (s *Store) UpsertTransactions(ctx context.Context, incoming []domain.Transaction) error {
	return store.NewWriteError("transactions", "upsert", s.mutateTransactions(func(txs []domain.Transaction) []domain.Transaction {
		index := make(map[string]int, len(txs))
		for i, t := range txs {
			index[t.ID] = i
		}
		for _, in := range incoming {
			if i, ok := index[in.ID]; ok {
				txs[i] = in
			} else {
				index[in.ID] = len(txs)
				txs = append(txs, in)
			}
		}
		return txs
	}))
}

func (s *Store) InsertCategory(ctx context.Context, c domain.Category) error {
	return store.NewWriteError("categories", "insert", s.mutateCategories(func(cats []domain.Category) []domain.Category {
		return append(cats, c)
	}))
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) error {
	return store.NewWriteError("categories", "update", s.mutateCategories(func(cats []domain.Category) []domain.Category {
		for i := range cats {
			if cats[i].ID == c.ID {
				cats[i] = c
			}
		}
		return cats
	}))
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return store.NewWriteError("categories", "delete", s.mutateCategories(func(cats []domain.Category) []domain.Category {
		out := cats[:0]
		for _, c := range cats {
			if c.ID != id {
				out = append(out, c)
			}
		}
		return out
	}))
}

func (s *Store) UpsertCategories(ctx context.Context, incoming []domain.Category) error {
	return store.NewWriteError("categories", "upsert", s.mutateCategories(func(cats []domain.Category) []domain.Category {
		index := make(map[string]int, len(cats))
		for i, c := range cats {
			index[c.ID] = i
		}
		for _, in := range incoming {
			if i, ok := index[in.ID]; ok {
				cats[i] = in
			} else {
				index[in.ID] = len(cats)
				cats = append(cats, in)
			}
		}
		return cats
	}))
}

// mutateTransactions applies mutate to the stored transaction collection
// inside one Badger transaction, so concurrent writers never interleave a
// read-modify-write.
func (s *Store) mutateTransactions(mutate func([]domain.Transaction) []domain.Transaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var txs []domain.Transaction
		blob, err := readKey(txn, transactionsKey)
		if err != nil {
			return err
		}
		if len(blob) > 0 {
			if err := json.Unmarshal(blob, &txs); err != nil {
				s.log.Error().Err(err).Msg("Failed to parse local transactions, starting empty")
				txs = nil
			}
		}
		return writeKey(txn, transactionsKey, mutate(txs))
	})
}

func (s *Store) mutateCategories(mutate func([]domain.Category) []domain.Category) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var cats []domain.Category
		blob, err := readKey(txn, categoriesKey)
		if err != nil {
			return err
		}
		if len(blob) > 0 {
			if err := json.Unmarshal(blob, &cats); err != nil {
				s.log.Error().Err(err).Msg("Failed to parse local categories, starting empty")
				cats = nil
			}
		}
		return writeKey(txn, categoriesKey, mutate(cats))
	})
}

func (s *Store) read(key string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		blob, err = readKey(txn, key)
		return err
	})
	return blob, err
}

func (s *Store) write(key string, v interface{}) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return writeKey(txn, key, v)
	})
}

func readKey(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func writeKey(txn *badger.Txn, key string, v interface{}) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), blob)
}

var _ store.Store = (*Store)(nil)
